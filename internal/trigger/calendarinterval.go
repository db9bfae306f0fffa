package trigger

import (
	"time"

	"github.com/dhima/chronos/internal/calendar"
	"github.com/dhima/chronos/internal/models"
)

// CalendarIntervalTrigger fires at its start time and then every N units of
// calendar time. Second/minute/hour intervals use exact duration arithmetic;
// day and larger units iterate in the configured zone, so "1 month" lands on
// the same day-of-month (clamped to month length).
type CalendarIntervalTrigger struct {
	baseTrigger
	interval int
	unit     IntervalUnit
	location *time.Location

	// PreserveHourOfDay keeps the start time's wall-clock hour across DST
	// transitions for day and week intervals.
	PreserveHourOfDay bool
	// SkipDayIfHourDoesNotExist advances one extra interval when the
	// preserved hour falls into a spring-forward gap.
	SkipDayIfHourDoesNotExist bool
}

// NewCalendarInterval builds a calendar-interval trigger firing every
// interval units from start, iterated in loc (UTC when nil).
func NewCalendarInterval(key, jobKey models.Key, start time.Time, interval int, unit IntervalUnit, loc *time.Location) *CalendarIntervalTrigger {
	if loc == nil {
		loc = time.UTC
	}
	return &CalendarIntervalTrigger{
		baseTrigger: newBase(key, jobKey, start),
		interval:    interval,
		unit:        unit,
		location:    loc,
	}
}

func (t *CalendarIntervalTrigger) Interval() int            { return t.interval }
func (t *CalendarIntervalTrigger) Unit() IntervalUnit       { return t.unit }
func (t *CalendarIntervalTrigger) Location() *time.Location { return t.location }

func (t *CalendarIntervalTrigger) Validate() error {
	if err := t.validateBase(); err != nil {
		return err
	}
	if t.interval < 1 {
		return models.NewValidationError("trigger %s interval must be at least 1", t.key)
	}
	return nil
}

func (t *CalendarIntervalTrigger) ComputeFirstFireTime(cal calendar.Calendar) time.Time {
	t.nextFireTime = nextIncludedFireTime(t.startTime, cal, t.FireTimeAfter)
	return t.nextFireTime
}

func (t *CalendarIntervalTrigger) FireTimeAfter(after time.Time) time.Time {
	if after.Before(t.startTime) {
		return t.startTime
	}
	if !t.endTime.IsZero() && !after.Before(t.endTime) {
		return time.Time{}
	}

	var next time.Time
	switch t.unit {
	case IntervalSecond, IntervalMinute, IntervalHour:
		d := t.exactIntervalDuration()
		n := after.Sub(t.startTime)/d + 1
		next = t.startTime.Add(n * d)
	case IntervalDay, IntervalWeek:
		next = t.nextDayBased(after)
	case IntervalMonth:
		next = t.nextStepped(after, func(n int) time.Time { return t.addMonths(n) })
	case IntervalYear:
		next = t.nextStepped(after, func(n int) time.Time { return t.addYears(n) })
	}

	if next.IsZero() || (!t.endTime.IsZero() && !next.Before(t.endTime)) {
		return time.Time{}
	}
	return next
}

func (t *CalendarIntervalTrigger) exactIntervalDuration() time.Duration {
	switch t.unit {
	case IntervalMinute:
		return time.Duration(t.interval) * time.Minute
	case IntervalHour:
		return time.Duration(t.interval) * time.Hour
	default:
		return time.Duration(t.interval) * time.Second
	}
}

// nextDayBased advances by whole days. Without PreserveHourOfDay the step is
// an exact multiple of 24h; with it, the wall-clock time of day from the
// start time is re-applied after each calendar step.
func (t *CalendarIntervalTrigger) nextDayBased(after time.Time) time.Time {
	daysPer := t.interval
	if t.unit == IntervalWeek {
		daysPer *= 7
	}

	if !t.PreserveHourOfDay {
		d := time.Duration(daysPer) * 24 * time.Hour
		n := after.Sub(t.startTime)/d + 1
		return t.startTime.Add(n * d)
	}

	// Estimate the jump, then walk forward; the estimate is conservative so
	// at most a few steps remain.
	approxDays := int(after.Sub(t.startTime).Hours()/24) - 2
	n := approxDays / daysPer
	if n < 0 {
		n = 0
	}
	for i := 0; i < iterationGuardSteps; i++ {
		cand := t.addDaysPreservingHour(n * daysPer)
		if cand.After(after) {
			return cand
		}
		n++
	}
	return time.Time{}
}

const iterationGuardSteps = 100000

// addDaysPreservingHour lands n days after the start at the start's
// wall-clock time of day, applying the skip rule when that hour does not
// exist on the target day.
func (t *CalendarIntervalTrigger) addDaysPreservingHour(n int) time.Time {
	s := t.startTime.In(t.location)
	y, mo, d := s.Date()
	cand := time.Date(y, mo, d+n, s.Hour(), s.Minute(), s.Second(), s.Nanosecond(), t.location)
	if cand.Hour() != s.Hour() && t.SkipDayIfHourDoesNotExist {
		daysPer := t.interval
		if t.unit == IntervalWeek {
			daysPer *= 7
		}
		cand = time.Date(y, mo, d+n+daysPer, s.Hour(), s.Minute(), s.Second(), s.Nanosecond(), t.location)
	}
	return cand
}

// nextStepped finds the smallest multiple of the interval whose instant is
// strictly after the given time, using the supplied calendar step function.
func (t *CalendarIntervalTrigger) nextStepped(after time.Time, step func(n int) time.Time) time.Time {
	lo := 0
	for i := 0; i < iterationGuardSteps; i++ {
		cand := step(lo * t.interval)
		if cand.After(after) {
			return cand
		}
		lo++
	}
	return time.Time{}
}

// addMonths adds n months to the start time, clamping the day-of-month to
// the target month's length so Jan 31 + 1 month is Feb 28/29, not Mar 3.
func (t *CalendarIntervalTrigger) addMonths(n int) time.Time {
	s := t.startTime.In(t.location)
	y, mo, d := s.Date()
	total := int(mo) - 1 + n
	ty := y + total/12
	tmo := time.Month(total%12 + 1)
	if last := daysOfMonth(ty, tmo); d > last {
		d = last
	}
	return time.Date(ty, tmo, d, s.Hour(), s.Minute(), s.Second(), s.Nanosecond(), t.location)
}

// addYears adds n years, clamping Feb 29 to Feb 28 on non-leap years.
func (t *CalendarIntervalTrigger) addYears(n int) time.Time {
	s := t.startTime.In(t.location)
	y, mo, d := s.Date()
	if last := daysOfMonth(y+n, mo); d > last {
		d = last
	}
	return time.Date(y+n, mo, d, s.Hour(), s.Minute(), s.Second(), s.Nanosecond(), t.location)
}

func daysOfMonth(y int, mo time.Month) int {
	return time.Date(y, mo+1, 0, 12, 0, 0, 0, time.UTC).Day()
}

// FinalFireTime returns the last instant before the end time, or zero when
// the trigger has no end time.
func (t *CalendarIntervalTrigger) FinalFireTime() time.Time {
	if t.endTime.IsZero() {
		return time.Time{}
	}
	prev := t.startTime
	for i := 0; i < iterationGuardSteps; i++ {
		next := t.FireTimeAfter(prev)
		if next.IsZero() {
			return prev
		}
		prev = next
	}
	return time.Time{}
}

func (t *CalendarIntervalTrigger) Triggered(cal calendar.Calendar) {
	t.triggeredAdvance(cal, t.FireTimeAfter)
}

func (t *CalendarIntervalTrigger) UpdateWithNewCalendar(cal calendar.Calendar, misfireThreshold time.Duration, now time.Time) {
	t.updateWithNewCalendar(cal, misfireThreshold, now, t.FireTimeAfter)
}

func (t *CalendarIntervalTrigger) UpdateAfterMisfire(cal calendar.Calendar, now time.Time) {
	instr := t.misfire
	if instr == MisfireIgnorePolicy {
		return
	}
	if instr == MisfireSmartPolicy {
		instr = MisfireFireOnceNow
	}

	switch instr {
	case MisfireDoNothing:
		t.nextFireTime = nextIncludedFireTime(t.FireTimeAfter(now), cal, t.FireTimeAfter)
	case MisfireFireOnceNow:
		t.nextFireTime = now
	}
}

func (t *CalendarIntervalTrigger) Clone() Trigger {
	out := *t
	out.baseTrigger = t.cloneBase()
	return &out
}
