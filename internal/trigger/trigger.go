// Package trigger implements the four trigger variants that compute
// monotonically advancing fire-time sequences: simple (fixed repeat), cron,
// calendar-interval and daily-time-interval.
package trigger

import (
	"time"

	"github.com/dhima/chronos/internal/calendar"
	"github.com/dhima/chronos/internal/models"
)

// DefaultPriority is assigned to triggers that do not set one explicitly.
// Higher priorities win ties between triggers with the same fire time.
const DefaultPriority = 5

// RepeatIndefinitely makes a repeat count unbounded.
const RepeatIndefinitely = -1

// MisfireInstruction selects how a trigger recovers when a scheduled fire
// time lies further in the past than the misfire threshold. Values 1+ are
// variant-specific; see the constants below.
type MisfireInstruction int

const (
	// MisfireIgnorePolicy fires each missed instant in turn as fast as
	// possible.
	MisfireIgnorePolicy MisfireInstruction = -1
	// MisfireSmartPolicy picks a variant-defined default.
	MisfireSmartPolicy MisfireInstruction = 0
)

// Simple-trigger misfire instructions.
const (
	MisfireFireNow MisfireInstruction = iota + 1
	MisfireRescheduleNowWithExistingRepeatCount
	MisfireRescheduleNowWithRemainingRepeatCount
	MisfireRescheduleNextWithRemainingCount
	MisfireRescheduleNextWithExistingCount
)

// Cron, calendar-interval and daily-time-interval misfire instructions.
const (
	MisfireFireOnceNow MisfireInstruction = iota + 1
	MisfireDoNothing
)

// IntervalUnit is the unit of a calendar-interval or daily-time-interval.
type IntervalUnit int

const (
	IntervalSecond IntervalUnit = iota
	IntervalMinute
	IntervalHour
	IntervalDay
	IntervalWeek
	IntervalMonth
	IntervalYear
)

func (u IntervalUnit) String() string {
	switch u {
	case IntervalSecond:
		return "SECOND"
	case IntervalMinute:
		return "MINUTE"
	case IntervalHour:
		return "HOUR"
	case IntervalDay:
		return "DAY"
	case IntervalWeek:
		return "WEEK"
	case IntervalMonth:
		return "MONTH"
	case IntervalYear:
		return "YEAR"
	default:
		return "UNKNOWN"
	}
}

// Trigger is a schedule bound to a job, firing it at computed instants.
// A trigger's mutable fire-state fields (next/previous fire time, times
// triggered, fire instance id) are owned by the store between operations;
// the zero time.Time stands for "no time".
type Trigger interface {
	Key() models.Key
	JobKey() models.Key
	Description() string
	CalendarName() string
	Priority() int
	StartTime() time.Time
	EndTime() time.Time
	MisfireInstruction() MisfireInstruction
	JobDataMap() models.JobDataMap
	// SetStartTime is used by the scheduler to anchor triggers created with
	// a zero start time to the moment of scheduling.
	SetStartTime(t time.Time)

	NextFireTime() time.Time
	PreviousFireTime() time.Time
	TimesTriggered() int
	FireInstanceID() string
	SetFireInstanceID(id string)
	SetNextFireTime(t time.Time)
	SetPreviousFireTime(t time.Time)

	// ComputeFirstFireTime sets and returns the first fire time at or after
	// the start time, skipping instants the calendar excludes.
	ComputeFirstFireTime(cal calendar.Calendar) time.Time
	// FireTimeAfter is a pure query for the next fire time strictly after
	// the given instant, ignoring calendars.
	FireTimeAfter(after time.Time) time.Time
	// FinalFireTime returns the last instant at which the trigger can fire,
	// or zero when unbounded or unknown.
	FinalFireTime() time.Time
	// Triggered advances the fire state after a firing, skipping
	// calendar-excluded instants.
	Triggered(cal calendar.Calendar)
	// UpdateAfterMisfire applies the trigger's misfire instruction relative
	// to the given "now".
	UpdateAfterMisfire(cal calendar.Calendar, now time.Time)
	// UpdateWithNewCalendar recomputes the next fire time against a replaced
	// calendar; fire times already further in the past than the misfire
	// threshold snap forward to now-ish times on the schedule.
	UpdateWithNewCalendar(cal calendar.Calendar, misfireThreshold time.Duration, now time.Time)
	MayFireAgain() bool
	Validate() error
	// Clone returns a by-value snapshot so store-owned state is never
	// aliased across transaction boundaries.
	Clone() Trigger
}

// baseTrigger carries the header fields shared by all variants.
type baseTrigger struct {
	key            models.Key
	jobKey         models.Key
	description    string
	calendarName   string
	priority       int
	startTime      time.Time
	endTime        time.Time
	misfire        MisfireInstruction
	dataMap        models.JobDataMap
	nextFireTime   time.Time
	prevFireTime   time.Time
	timesTriggered int
	fireInstanceID string
}

func newBase(key, jobKey models.Key, start time.Time) baseTrigger {
	return baseTrigger{
		key:       key,
		jobKey:    jobKey,
		priority:  DefaultPriority,
		startTime: start,
		dataMap:   models.NewJobDataMap(),
	}
}

func (b *baseTrigger) Key() models.Key                        { return b.key }
func (b *baseTrigger) JobKey() models.Key                     { return b.jobKey }
func (b *baseTrigger) Description() string                    { return b.description }
func (b *baseTrigger) CalendarName() string                   { return b.calendarName }
func (b *baseTrigger) Priority() int                          { return b.priority }
func (b *baseTrigger) StartTime() time.Time                   { return b.startTime }
func (b *baseTrigger) EndTime() time.Time                     { return b.endTime }
func (b *baseTrigger) MisfireInstruction() MisfireInstruction { return b.misfire }
func (b *baseTrigger) JobDataMap() models.JobDataMap          { return b.dataMap }
func (b *baseTrigger) NextFireTime() time.Time                { return b.nextFireTime }
func (b *baseTrigger) PreviousFireTime() time.Time            { return b.prevFireTime }
func (b *baseTrigger) TimesTriggered() int                    { return b.timesTriggered }
func (b *baseTrigger) FireInstanceID() string                 { return b.fireInstanceID }

func (b *baseTrigger) SetDescription(d string)                    { b.description = d }
func (b *baseTrigger) SetCalendarName(name string)                { b.calendarName = name }
func (b *baseTrigger) SetPriority(p int)                          { b.priority = p }
func (b *baseTrigger) SetStartTime(t time.Time)                   { b.startTime = t }
func (b *baseTrigger) SetEndTime(t time.Time)                     { b.endTime = t }
func (b *baseTrigger) SetMisfireInstruction(m MisfireInstruction) { b.misfire = m }
func (b *baseTrigger) SetJobDataMap(m models.JobDataMap)          { b.dataMap = m }
func (b *baseTrigger) SetFireInstanceID(id string)                { b.fireInstanceID = id }
func (b *baseTrigger) SetNextFireTime(t time.Time)                { b.nextFireTime = t }
func (b *baseTrigger) SetPreviousFireTime(t time.Time)            { b.prevFireTime = t }

func (b *baseTrigger) MayFireAgain() bool { return !b.nextFireTime.IsZero() }

func (b *baseTrigger) validateBase() error {
	if b.key.Name == "" {
		return models.NewValidationError("trigger key name is required")
	}
	if b.jobKey.Name == "" {
		return models.NewValidationError("trigger %s must reference a job", b.key)
	}
	if !b.startTime.IsZero() && !b.endTime.IsZero() && b.endTime.Before(b.startTime) {
		return models.NewValidationError("trigger %s end time precedes start time", b.key)
	}
	return nil
}

func (b *baseTrigger) cloneBase() baseTrigger {
	out := *b
	out.dataMap = b.dataMap.Clone()
	return out
}

// fireTimeQuery is the variant-supplied pure next-fire-time function used by
// the shared advancement helpers.
type fireTimeQuery func(after time.Time) time.Time

// nextIncludedFireTime advances from to the first schedule instant that the
// calendar includes. Searches give up past the maximum cron year so that a
// never-included calendar terminates.
func nextIncludedFireTime(from time.Time, cal calendar.Calendar, after fireTimeQuery) time.Time {
	next := from
	for !next.IsZero() && cal != nil && !cal.IsTimeIncluded(next) {
		if next.Year() > 2099 {
			return time.Time{}
		}
		next = after(next)
	}
	return next
}

// triggeredAdvance is the shared Triggered body: record the firing and move
// the next fire time past any calendar-excluded instants.
func (b *baseTrigger) triggeredAdvance(cal calendar.Calendar, after fireTimeQuery) {
	b.timesTriggered++
	b.prevFireTime = b.nextFireTime
	b.nextFireTime = nextIncludedFireTime(after(b.nextFireTime), cal, after)
}

// updateWithNewCalendar recomputes the next fire time against a replaced
// calendar, snapping far-past results forward.
func (b *baseTrigger) updateWithNewCalendar(cal calendar.Calendar, misfireThreshold time.Duration, now time.Time, after fireTimeQuery) {
	next := nextIncludedFireTime(after(b.prevFireTimeOr(b.startTime)), cal, after)
	if next.IsZero() {
		b.nextFireTime = next
		return
	}
	if now.Sub(next) >= misfireThreshold {
		next = nextIncludedFireTime(after(now), cal, after)
	}
	b.nextFireTime = next
}

func (b *baseTrigger) prevFireTimeOr(fallback time.Time) time.Time {
	if b.prevFireTime.IsZero() {
		return fallback.Add(-time.Second)
	}
	return b.prevFireTime
}
