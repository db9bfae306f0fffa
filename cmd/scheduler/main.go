package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/dhima/chronos/internal/logging"
	"github.com/dhima/chronos/internal/models"
	"github.com/dhima/chronos/internal/scheduler"
	"github.com/dhima/chronos/internal/store"
	"github.com/dhima/chronos/internal/trigger"
	"github.com/dhima/chronos/pkg/clock"
	"github.com/dhima/chronos/pkg/config"
	"github.com/dhima/chronos/platform/events"
)

// heartbeatJob logs once per firing; it is the only job type this binary
// ships and exists to demonstrate a complete scheduling round trip.
type heartbeatJob struct {
	log logging.Logger
}

func (j *heartbeatJob) Execute(_ context.Context, jec *scheduler.JobExecutionContext) error {
	j.log.Info("heartbeat",
		zap.String("job", jec.JobDetail.Key.String()),
		zap.String("fire_instance", jec.FireInstanceID),
		zap.Time("fired_at", jec.FireTime))
	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	env := os.Getenv("CHRONOS_ENV")
	if env == "" {
		env = "production"
	}
	log, err := logging.NewLogger(env, os.Getenv("CHRONOS_LOG_LEVEL"))
	if err != nil {
		return err
	}
	defer log.Sync()

	js := store.NewMemoryStore(clock.RealClock{}, log)
	factory := scheduler.JobFactoryFunc(func(job *models.JobDetail) (scheduler.Job, error) {
		switch job.JobType {
		case "heartbeat":
			return &heartbeatJob{log: log}, nil
		default:
			return nil, fmt.Errorf("unknown job type %q", job.JobType)
		}
	})

	sched, err := scheduler.New(cfg, js, factory, log, clock.RealClock{})
	if err != nil {
		return err
	}

	if brokers := os.Getenv("CHRONOS_KAFKA_BROKERS"); brokers != "" {
		topic := os.Getenv("CHRONOS_KAFKA_TOPIC")
		if topic == "" {
			topic = "chronos-events"
		}
		writer := events.NewKafkaWriter(strings.Split(brokers, ","), topic)
		pub := events.NewPublisher(writer, cfg.InstanceName, log)
		pub.Register(sched.ListenerManager())
		defer pub.Close()
		log.Info("kafka event publishing enabled", zap.String("topic", topic))
	}

	job := models.NewJobDetail(models.NewKey("heartbeat"), "heartbeat")
	job.Durable = true
	cronTrigger, err := trigger.NewCron(
		models.NewKey("heartbeat-every-minute"), job.Key, "0 * * * * ?", time.UTC)
	if err != nil {
		return err
	}
	firstFire, err := sched.ScheduleJob(job, cronTrigger)
	if err != nil {
		return err
	}
	log.Info("heartbeat scheduled", zap.Time("first_fire", firstFire))

	if err := sched.Start(); err != nil {
		return err
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	sig := <-stop
	log.Info("shutting down", zap.String("signal", sig.String()))
	sched.Shutdown(true)
	return nil
}
