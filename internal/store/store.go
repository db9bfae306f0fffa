// Package store holds jobs, triggers and calendars and drives the trigger
// state machine that the scheduler engine runs against.
package store

import (
	"time"

	"github.com/dhima/chronos/internal/calendar"
	"github.com/dhima/chronos/internal/models"
	"github.com/dhima/chronos/internal/trigger"
)

// TriggerFiredResult is the store's answer to a fire request: everything the
// engine needs to build a job execution context. A nil result for a position
// means that trigger vanished or became unfireable between acquire and fire.
type TriggerFiredResult struct {
	Trigger           trigger.Trigger
	Job               *models.JobDetail
	Calendar          calendar.Calendar
	FireTime          time.Time
	ScheduledFireTime time.Time
	PrevFireTime      time.Time
	NextFireTime      time.Time
	Recovering        bool
}

// MisfireHandler is invoked with a snapshot of each trigger the store decides
// has misfired, taken before its misfire instruction is applied. The store
// delivers notifications after the detecting transaction ends, so the handler
// may call back into the store.
type MisfireHandler func(t trigger.Trigger)

// JobStore is the persistence boundary of the scheduler. Implementations
// must make every method atomic and must never alias stored state with
// values passed in or handed out.
type JobStore interface {
	// Jobs.
	StoreJob(job *models.JobDetail, replace bool) error
	RetrieveJob(key models.Key) (*models.JobDetail, error)
	RemoveJob(key models.Key) (bool, error)
	CheckJobExists(key models.Key) bool

	// Triggers.
	StoreTrigger(t trigger.Trigger, replace bool) error
	RetrieveTrigger(key models.Key) (trigger.Trigger, error)
	RemoveTrigger(key models.Key) (bool, error)
	ReplaceTrigger(key models.Key, newTrigger trigger.Trigger) (bool, error)
	CheckTriggerExists(key models.Key) bool
	TriggerState(key models.Key) models.TriggerState
	ResetTriggerFromErrorState(key models.Key) error
	TriggersForJob(jobKey models.Key) ([]trigger.Trigger, error)

	// Calendars.
	StoreCalendar(name string, cal calendar.Calendar, replace, updateTriggers bool) error
	RetrieveCalendar(name string) (calendar.Calendar, error)
	RemoveCalendar(name string) (bool, error)
	CalendarNames() []string

	// Pause and resume.
	PauseTrigger(key models.Key) error
	PauseTriggers(matcher models.Matcher) ([]string, error)
	ResumeTrigger(key models.Key) error
	ResumeTriggers(matcher models.Matcher) ([]string, error)
	PauseJob(key models.Key) error
	PauseJobs(matcher models.Matcher) ([]string, error)
	ResumeJob(key models.Key) error
	ResumeJobs(matcher models.Matcher) ([]string, error)
	PauseAll() error
	ResumeAll() error
	PausedTriggerGroups() []string

	// Queries.
	JobKeys(matcher models.Matcher) []models.Key
	TriggerKeys(matcher models.Matcher) []models.Key
	JobGroupNames() []string
	TriggerGroupNames() []string
	NumberOfJobs() int
	NumberOfTriggers() int
	NumberOfCalendars() int
	Clear() error

	// Fire cycle.
	AcquireNextTriggers(noLaterThan time.Time, maxCount int, timeWindow time.Duration) ([]trigger.Trigger, error)
	ReleaseAcquiredTrigger(t trigger.Trigger)
	TriggersFired(triggers []trigger.Trigger) ([]*TriggerFiredResult, error)
	TriggeredJobComplete(t trigger.Trigger, job *models.JobDetail, instruction models.CompletedExecutionInstruction)

	// Misfire configuration.
	SetMisfireThreshold(d time.Duration)
	SetMisfireHandler(fn MisfireHandler)
}
