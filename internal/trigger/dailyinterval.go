package trigger

import (
	"fmt"
	"time"

	"github.com/dhima/chronos/internal/calendar"
	"github.com/dhima/chronos/internal/models"
)

// TimeOfDay is a wall-clock time within a day.
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

// NewTimeOfDay builds a time-of-day value.
func NewTimeOfDay(hour, minute, second int) TimeOfDay {
	return TimeOfDay{Hour: hour, Minute: minute, Second: second}
}

func (t TimeOfDay) Validate() error {
	if t.Hour < 0 || t.Hour > 23 || t.Minute < 0 || t.Minute > 59 || t.Second < 0 || t.Second > 59 {
		return fmt.Errorf("time of day %s out of range", t)
	}
	return nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

// Before reports whether t is earlier in the day than other.
func (t TimeOfDay) Before(other TimeOfDay) bool {
	return t.offset() < other.offset()
}

func (t TimeOfDay) offset() time.Duration {
	return time.Duration(t.Hour)*time.Hour + time.Duration(t.Minute)*time.Minute + time.Duration(t.Second)*time.Second
}

// On places the time-of-day onto the civil date of ref, in loc.
func (t TimeOfDay) On(ref time.Time, loc *time.Location) time.Time {
	y, mo, d := ref.In(loc).Date()
	return time.Date(y, mo, d, t.Hour, t.Minute, t.Second, 0, loc)
}

// DailyTimeIntervalTrigger fires every N seconds/minutes/hours inside a
// daily time-of-day window, on an allowed set of weekdays. RepeatCount
// bounds the total number of firings to RepeatCount+1.
type DailyTimeIntervalTrigger struct {
	baseTrigger
	interval       int
	unit           IntervalUnit
	daysOfWeek     map[time.Weekday]bool
	startTimeOfDay TimeOfDay
	endTimeOfDay   TimeOfDay
	repeatCount    int
	location       *time.Location
}

// AllDaysOfWeek returns a set containing every weekday.
func AllDaysOfWeek() map[time.Weekday]bool {
	out := make(map[time.Weekday]bool, 7)
	for d := time.Sunday; d <= time.Saturday; d++ {
		out[d] = true
	}
	return out
}

// WeekdaysOnly returns the Monday..Friday set.
func WeekdaysOnly() map[time.Weekday]bool {
	out := make(map[time.Weekday]bool, 5)
	for d := time.Monday; d <= time.Friday; d++ {
		out[d] = true
	}
	return out
}

// NewDailyTimeInterval builds a daily-time-interval trigger. The start time
// defaults to "now on scheduling" and may be set with SetStartTime; days is
// copied.
func NewDailyTimeInterval(key, jobKey models.Key, interval int, unit IntervalUnit,
	days map[time.Weekday]bool, startOfDay, endOfDay TimeOfDay, loc *time.Location) *DailyTimeIntervalTrigger {
	if loc == nil {
		loc = time.UTC
	}
	daysCopy := make(map[time.Weekday]bool, len(days))
	for d, ok := range days {
		if ok {
			daysCopy[d] = true
		}
	}
	return &DailyTimeIntervalTrigger{
		baseTrigger:    newBase(key, jobKey, time.Time{}),
		interval:       interval,
		unit:           unit,
		daysOfWeek:     daysCopy,
		startTimeOfDay: startOfDay,
		endTimeOfDay:   endOfDay,
		repeatCount:    RepeatIndefinitely,
		location:       loc,
	}
}

func (t *DailyTimeIntervalTrigger) Interval() int                     { return t.interval }
func (t *DailyTimeIntervalTrigger) Unit() IntervalUnit                { return t.unit }
func (t *DailyTimeIntervalTrigger) StartTimeOfDay() TimeOfDay         { return t.startTimeOfDay }
func (t *DailyTimeIntervalTrigger) EndTimeOfDay() TimeOfDay           { return t.endTimeOfDay }
func (t *DailyTimeIntervalTrigger) RepeatCount() int                  { return t.repeatCount }
func (t *DailyTimeIntervalTrigger) Location() *time.Location          { return t.location }
func (t *DailyTimeIntervalTrigger) SetRepeatCount(n int)              { t.repeatCount = n }
func (t *DailyTimeIntervalTrigger) DaysOfWeek() map[time.Weekday]bool { return t.daysOfWeek }

func (t *DailyTimeIntervalTrigger) intervalDuration() time.Duration {
	switch t.unit {
	case IntervalMinute:
		return time.Duration(t.interval) * time.Minute
	case IntervalHour:
		return time.Duration(t.interval) * time.Hour
	default:
		return time.Duration(t.interval) * time.Second
	}
}

func (t *DailyTimeIntervalTrigger) Validate() error {
	if err := t.validateBase(); err != nil {
		return err
	}
	if t.interval < 1 {
		return models.NewValidationError("trigger %s interval must be at least 1", t.key)
	}
	switch t.unit {
	case IntervalSecond, IntervalMinute, IntervalHour:
	default:
		return models.NewValidationError("trigger %s interval unit must be second, minute or hour", t.key)
	}
	if t.intervalDuration() > 24*time.Hour {
		return models.NewValidationError("trigger %s interval exceeds 24 hours", t.key)
	}
	if err := t.startTimeOfDay.Validate(); err != nil {
		return models.NewValidationError("trigger %s: %v", t.key, err)
	}
	if err := t.endTimeOfDay.Validate(); err != nil {
		return models.NewValidationError("trigger %s: %v", t.key, err)
	}
	if !t.startTimeOfDay.Before(t.endTimeOfDay) {
		return models.NewValidationError("trigger %s start time of day must precede end time of day", t.key)
	}
	if len(t.daysOfWeek) == 0 {
		return models.NewValidationError("trigger %s must allow at least one day of week", t.key)
	}
	if t.repeatCount < RepeatIndefinitely {
		return models.NewValidationError("trigger %s repeat count %d is invalid", t.key, t.repeatCount)
	}
	return nil
}

func (t *DailyTimeIntervalTrigger) ComputeFirstFireTime(cal calendar.Calendar) time.Time {
	first := t.FireTimeAfter(t.startTime.Add(-time.Second))
	t.nextFireTime = nextIncludedFireTime(first, cal, t.FireTimeAfter)
	return t.nextFireTime
}

func (t *DailyTimeIntervalTrigger) FireTimeAfter(after time.Time) time.Time {
	if !t.endTime.IsZero() && !after.Before(t.endTime) {
		return time.Time{}
	}
	if after.Before(t.startTime.Add(-time.Second)) {
		after = t.startTime.Add(-time.Second)
	}

	a := after.In(t.location)
	// At most a full week of day steps is needed to reach an allowed day.
	for i := 0; i < 9; i++ {
		dayStart := t.startTimeOfDay.On(a, t.location)
		dayEnd := t.endTimeOfDay.On(a, t.location)

		if !t.daysOfWeek[a.Weekday()] || !a.Before(dayEnd) {
			a = startOfNextDay(a, t.location)
			continue
		}

		var cand time.Time
		if a.Before(dayStart) {
			cand = dayStart
		} else {
			n := a.Sub(dayStart)/t.intervalDuration() + 1
			cand = dayStart.Add(n * t.intervalDuration())
		}
		if cand.After(dayEnd) {
			a = startOfNextDay(a, t.location)
			continue
		}
		if !cand.After(after) {
			// Candidate collapsed onto the query instant (DST edge); step on.
			a = cand.Add(time.Second)
			continue
		}
		if !t.endTime.IsZero() && !cand.Before(t.endTime) {
			return time.Time{}
		}
		return cand
	}
	return time.Time{}
}

func startOfNextDay(t time.Time, loc *time.Location) time.Time {
	y, mo, d := t.In(loc).Date()
	return time.Date(y, mo, d+1, 0, 0, 0, 0, loc)
}

// FinalFireTime walks the schedule to the last firing implied by the repeat
// count and end time; zero when unbounded.
func (t *DailyTimeIntervalTrigger) FinalFireTime() time.Time {
	if t.repeatCount == RepeatIndefinitely && t.endTime.IsZero() {
		return time.Time{}
	}
	remaining := t.repeatCount
	prev := time.Time{}
	cur := t.FireTimeAfter(t.startTime.Add(-time.Second))
	for i := 0; !cur.IsZero() && i < iterationGuardSteps; i++ {
		prev = cur
		if t.repeatCount != RepeatIndefinitely {
			if remaining == 0 {
				return prev
			}
			remaining--
		}
		cur = t.FireTimeAfter(cur)
	}
	return prev
}

func (t *DailyTimeIntervalTrigger) Triggered(cal calendar.Calendar) {
	t.triggeredAdvance(cal, t.FireTimeAfter)
	if t.repeatCount != RepeatIndefinitely && t.timesTriggered > t.repeatCount {
		t.nextFireTime = time.Time{}
	}
}

func (t *DailyTimeIntervalTrigger) UpdateWithNewCalendar(cal calendar.Calendar, misfireThreshold time.Duration, now time.Time) {
	t.updateWithNewCalendar(cal, misfireThreshold, now, t.FireTimeAfter)
}

func (t *DailyTimeIntervalTrigger) UpdateAfterMisfire(cal calendar.Calendar, now time.Time) {
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

func (t *DailyTimeIntervalTrigger) Clone() Trigger {
	out := *t
	out.baseTrigger = t.cloneBase()
	out.daysOfWeek = make(map[time.Weekday]bool, len(t.daysOfWeek))
	for d, ok := range t.daysOfWeek {
		out.daysOfWeek[d] = ok
	}
	return &out
}
