// Package events publishes scheduler firing events to Kafka so downstream
// consumers can audit or react to executions.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/dhima/chronos/internal/logging"
	"github.com/dhima/chronos/internal/scheduler"
	"github.com/dhima/chronos/internal/trigger"
)

// Event type values carried in each record.
const (
	EventTriggerFired    = "trigger_fired"
	EventTriggerMisfired = "trigger_misfired"
	EventJobExecuted     = "job_executed"
)

const publishTimeout = 10 * time.Second

// Writer is the slice of kafka.Writer the publisher needs; tests plug in a
// fake.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter builds a kafka-go writer for the given brokers and topic,
// keyed so all events of one job land in one partition.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
}

// Record is the JSON payload of every published event.
type Record struct {
	Event             string    `json:"event"`
	Scheduler         string    `json:"scheduler"`
	JobKey            string    `json:"job_key"`
	TriggerKey        string    `json:"trigger_key"`
	FireInstanceID    string    `json:"fire_instance_id,omitempty"`
	FireTime          time.Time `json:"fire_time,omitempty"`
	ScheduledFireTime time.Time `json:"scheduled_fire_time,omitempty"`
	Error             string    `json:"error,omitempty"`
	PublishedAt       time.Time `json:"published_at"`
}

// Publisher turns scheduler listener callbacks into Kafka records. Publish
// failures are logged and dropped; the scheduler never blocks on Kafka
// longer than the publish timeout.
type Publisher struct {
	scheduler.JobListenerBase
	scheduler.TriggerListenerBase

	writer        Writer
	log           logging.Logger
	schedulerName string
}

// NewPublisher wires a publisher for the given scheduler name.
func NewPublisher(writer Writer, schedulerName string, log logging.Logger) *Publisher {
	return &Publisher{
		writer:        writer,
		log:           logging.OrNop(log),
		schedulerName: schedulerName,
	}
}

// Name satisfies both listener interfaces.
func (p *Publisher) Name() string { return "kafka-event-publisher" }

// Register installs the publisher as job and trigger listener.
func (p *Publisher) Register(m *scheduler.ListenerManager) {
	m.AddTriggerListener(p)
	m.AddJobListener(p)
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error { return p.writer.Close() }

func (p *Publisher) TriggerFired(jec *scheduler.JobExecutionContext) {
	p.publish(Record{
		Event:             EventTriggerFired,
		JobKey:            jec.JobDetail.Key.String(),
		TriggerKey:        jec.Trigger.Key().String(),
		FireInstanceID:    jec.FireInstanceID,
		FireTime:          jec.FireTime,
		ScheduledFireTime: jec.ScheduledFireTime,
	})
}

func (p *Publisher) TriggerMisfired(t trigger.Trigger) {
	p.publish(Record{
		Event:             EventTriggerMisfired,
		JobKey:            t.JobKey().String(),
		TriggerKey:        t.Key().String(),
		ScheduledFireTime: t.NextFireTime(),
	})
}

func (p *Publisher) JobWasExecuted(jec *scheduler.JobExecutionContext, err error) {
	rec := Record{
		Event:          EventJobExecuted,
		JobKey:         jec.JobDetail.Key.String(),
		TriggerKey:     jec.Trigger.Key().String(),
		FireInstanceID: jec.FireInstanceID,
		FireTime:       jec.FireTime,
	}
	if err != nil {
		rec.Error = err.Error()
	}
	p.publish(rec)
}

func (p *Publisher) publish(rec Record) {
	rec.Scheduler = p.schedulerName
	rec.PublishedAt = time.Now().UTC()

	value, err := json.Marshal(rec)
	if err != nil {
		p.log.Error("event record not serializable", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	msg := kafka.Message{
		Key:   []byte(rec.JobKey),
		Value: value,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.log.Error("event publish failed",
			zap.String("event", rec.Event),
			zap.String("job", rec.JobKey),
			zap.Error(err))
	}
}

var (
	_ scheduler.TriggerListener = (*Publisher)(nil)
	_ scheduler.JobListener     = (*Publisher)(nil)
)
