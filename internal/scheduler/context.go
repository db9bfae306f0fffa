// Package scheduler hosts the engine that turns stored triggers into job
// executions, the worker pool it dispatches on, and the public scheduling
// surface.
package scheduler

import (
	"context"
	"time"

	"github.com/dhima/chronos/internal/models"
	"github.com/dhima/chronos/internal/trigger"
)

// Job is the unit of executable work. Implementations must be safe for
// concurrent execution unless their job detail disallows it.
type Job interface {
	Execute(ctx context.Context, jec *JobExecutionContext) error
}

// InterruptableJob is a Job that supports cooperative interruption.
type InterruptableJob interface {
	Job
	Interrupt(key models.Key)
}

// JobFactory resolves a job detail's type name to an executable instance.
// It is called once per firing.
type JobFactory interface {
	NewJob(detail *models.JobDetail) (Job, error)
}

// JobFactoryFunc adapts a function to the JobFactory interface.
type JobFactoryFunc func(detail *models.JobDetail) (Job, error)

func (f JobFactoryFunc) NewJob(detail *models.JobDetail) (Job, error) { return f(detail) }

// JobFunc adapts a function to the Job interface.
type JobFunc func(ctx context.Context, jec *JobExecutionContext) error

func (f JobFunc) Execute(ctx context.Context, jec *JobExecutionContext) error { return f(ctx, jec) }

// JobExecutionContext carries everything a job sees about its firing. The
// trigger and job detail are snapshots; mutating them affects nothing except
// the data map when the job persists data after execution.
type JobExecutionContext struct {
	Scheduler *Scheduler
	Trigger   trigger.Trigger
	JobDetail *models.JobDetail

	// MergedDataMap layers the trigger's data map over the job's.
	MergedDataMap models.JobDataMap

	FireTime          time.Time
	ScheduledFireTime time.Time
	PrevFireTime      time.Time
	NextFireTime      time.Time
	FireInstanceID    string

	// RefireCount is how many times this firing has been re-executed via the
	// refire-immediately error flag.
	RefireCount int
	// Recovering is set when the firing replays a recovered execution.
	Recovering bool

	// Result is a slot for the job to leave a value for listeners.
	Result interface{}
}
