//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dhima/chronos/internal/logging"
	"github.com/dhima/chronos/internal/models"
	"github.com/dhima/chronos/internal/scheduler"
	"github.com/dhima/chronos/internal/store"
	"github.com/dhima/chronos/internal/testutil/fakes"
	"github.com/dhima/chronos/internal/trigger"
	"github.com/dhima/chronos/pkg/clock"
	"github.com/dhima/chronos/pkg/config"
	"github.com/dhima/chronos/platform/events"
)

func TestSchedulerFlow_FireExecutePublishComplete(t *testing.T) {
	cfg := config.Default()
	cfg.InstanceName = "chronos-it"
	cfg.ThreadPoolSize = 2
	cfg.MaxBatchSize = 2
	cfg.IdleWait = 20 * time.Millisecond
	cfg.MisfireThreshold = 5 * time.Second

	log := logging.NewNoOpLogger()
	js := store.NewMemoryStore(clock.RealClock{}, log)

	var executions int32
	factory := scheduler.JobFactoryFunc(func(*models.JobDetail) (scheduler.Job, error) {
		return scheduler.JobFunc(func(context.Context, *scheduler.JobExecutionContext) error {
			atomic.AddInt32(&executions, 1)
			return nil
		}), nil
	})

	s, err := scheduler.New(cfg, js, factory, log, clock.RealClock{})
	require.NoError(t, err)
	t.Cleanup(func() { s.Shutdown(true) })

	writer := fakes.NewKafkaWriter()
	pub := events.NewPublisher(writer, cfg.InstanceName, log)
	pub.Register(s.ListenerManager())

	job := models.NewJobDetail(models.NewKeyWithGroup("pipeline", "it"), "pipeline")
	job.Durable = true
	tr := trigger.NewSimple(
		models.NewKeyWithGroup("pipeline-burst", "it"), job.Key,
		time.Time{}, 50*time.Millisecond, 2)

	_, err = s.ScheduleJob(job, tr)
	require.NoError(t, err)
	require.NoError(t, s.Start())

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if atomic.LoadInt32(&executions) == 3 &&
			s.GetTriggerState(tr.Key()) == models.TriggerStateComplete {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.Equal(t, int32(3), atomic.LoadInt32(&executions))
	require.Equal(t, models.TriggerStateComplete, s.GetTriggerState(tr.Key()))

	// Every firing publishes a fired record and an executed record.
	msgs := writer.Messages()
	require.Len(t, msgs, 6)
	var fired, executed int
	for _, m := range msgs {
		require.Equal(t, "it.pipeline", string(m.Key))
		var rec events.Record
		require.NoError(t, json.Unmarshal(m.Value, &rec))
		require.Equal(t, "chronos-it", rec.Scheduler)
		switch rec.Event {
		case events.EventTriggerFired:
			fired++
		case events.EventJobExecuted:
			executed++
			require.Empty(t, rec.Error)
		}
	}
	require.Equal(t, 3, fired)
	require.Equal(t, 3, executed)
}

func TestSchedulerFlow_ManualTriggerWithData(t *testing.T) {
	cfg := config.Default()
	cfg.IdleWait = 20 * time.Millisecond

	log := logging.NewNoOpLogger()
	js := store.NewMemoryStore(clock.RealClock{}, log)

	got := make(chan string, 1)
	factory := scheduler.JobFactoryFunc(func(*models.JobDetail) (scheduler.Job, error) {
		return scheduler.JobFunc(func(_ context.Context, jec *scheduler.JobExecutionContext) error {
			got <- jec.MergedDataMap.GetString("requested_by")
			return nil
		}), nil
	})

	s, err := scheduler.New(cfg, js, factory, log, clock.RealClock{})
	require.NoError(t, err)
	t.Cleanup(func() { s.Shutdown(true) })
	require.NoError(t, s.Start())

	job := models.NewJobDetail(models.NewKey("export"), "export")
	job.Durable = true
	require.NoError(t, s.AddJob(job, false))
	require.NoError(t, s.TriggerNow(job.Key, models.NewJobDataMap().Put("requested_by", "ops")))

	select {
	case by := <-got:
		require.Equal(t, "ops", by)
	case <-time.After(10 * time.Second):
		t.Fatal("manual trigger did not execute")
	}
}
