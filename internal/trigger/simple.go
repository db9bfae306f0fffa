package trigger

import (
	"time"

	"github.com/dhima/chronos/internal/calendar"
	"github.com/dhima/chronos/internal/models"
)

// SimpleTrigger fires at its start time and then every RepeatInterval, up
// to RepeatCount additional times (RepeatIndefinitely for no bound).
type SimpleTrigger struct {
	baseTrigger
	repeatInterval time.Duration
	repeatCount    int
}

// NewSimple builds a simple trigger firing at start and repeating
// repeatCount more times every interval.
func NewSimple(key, jobKey models.Key, start time.Time, interval time.Duration, repeatCount int) *SimpleTrigger {
	return &SimpleTrigger{
		baseTrigger:    newBase(key, jobKey, start),
		repeatInterval: interval,
		repeatCount:    repeatCount,
	}
}

// NewOneShot builds a simple trigger that fires exactly once at start.
func NewOneShot(key, jobKey models.Key, start time.Time) *SimpleTrigger {
	return NewSimple(key, jobKey, start, 0, 0)
}

func (t *SimpleTrigger) RepeatInterval() time.Duration { return t.repeatInterval }
func (t *SimpleTrigger) RepeatCount() int              { return t.repeatCount }

func (t *SimpleTrigger) Validate() error {
	if err := t.validateBase(); err != nil {
		return err
	}
	if t.repeatCount < RepeatIndefinitely {
		return models.NewValidationError("trigger %s repeat count %d is invalid", t.key, t.repeatCount)
	}
	if t.repeatCount != 0 && t.repeatInterval < time.Millisecond {
		return models.NewValidationError("trigger %s repeat interval must be at least 1ms", t.key)
	}
	return nil
}

func (t *SimpleTrigger) ComputeFirstFireTime(cal calendar.Calendar) time.Time {
	t.nextFireTime = nextIncludedFireTime(t.startTime, cal, t.FireTimeAfter)
	return t.nextFireTime
}

func (t *SimpleTrigger) FireTimeAfter(after time.Time) time.Time {
	if t.repeatCount != RepeatIndefinitely && t.timesTriggered > t.repeatCount {
		return time.Time{}
	}
	if after.Before(t.startTime) {
		return t.startTime
	}
	if !t.endTime.IsZero() && !after.Before(t.endTime) {
		return time.Time{}
	}
	if t.repeatCount == 0 {
		return time.Time{} // only fire is at the start time, already past
	}

	n := after.Sub(t.startTime)/t.repeatInterval + 1
	if t.repeatCount != RepeatIndefinitely && n > time.Duration(t.repeatCount) {
		return time.Time{}
	}
	next := t.startTime.Add(n * t.repeatInterval)
	if !t.endTime.IsZero() && !next.Before(t.endTime) {
		return time.Time{}
	}
	return next
}

func (t *SimpleTrigger) FinalFireTime() time.Time {
	if t.repeatCount == 0 {
		return t.startTime
	}
	if t.repeatCount == RepeatIndefinitely {
		if t.endTime.IsZero() {
			return time.Time{}
		}
		return t.lastFireBefore(t.endTime)
	}
	final := t.startTime.Add(time.Duration(t.repeatCount) * t.repeatInterval)
	if !t.endTime.IsZero() && !final.Before(t.endTime) {
		return t.lastFireBefore(t.endTime)
	}
	return final
}

// lastFireBefore returns the last scheduled instant strictly before bound.
func (t *SimpleTrigger) lastFireBefore(bound time.Time) time.Time {
	if !bound.After(t.startTime) {
		return time.Time{}
	}
	n := (bound.Sub(t.startTime) - 1) / t.repeatInterval
	return t.startTime.Add(n * t.repeatInterval)
}

func (t *SimpleTrigger) Triggered(cal calendar.Calendar) {
	t.triggeredAdvance(cal, t.FireTimeAfter)
}

func (t *SimpleTrigger) UpdateWithNewCalendar(cal calendar.Calendar, misfireThreshold time.Duration, now time.Time) {
	t.updateWithNewCalendar(cal, misfireThreshold, now, t.FireTimeAfter)
}

func (t *SimpleTrigger) UpdateAfterMisfire(cal calendar.Calendar, now time.Time) {
	instr := t.misfire
	if instr == MisfireIgnorePolicy {
		return
	}
	if instr == MisfireSmartPolicy {
		switch {
		case t.repeatCount != RepeatIndefinitely && t.timesTriggered == 0:
			instr = MisfireFireNow
		case t.repeatCount == RepeatIndefinitely || t.timesTriggered < t.repeatCount:
			instr = MisfireRescheduleNowWithExistingRepeatCount
		default:
			instr = MisfireRescheduleNextWithRemainingCount
		}
	}

	switch instr {
	case MisfireFireNow, MisfireRescheduleNowWithExistingRepeatCount:
		t.setNextOrExpire(now)
	case MisfireRescheduleNowWithRemainingRepeatCount:
		if t.repeatCount != RepeatIndefinitely {
			t.repeatCount -= t.timesTriggered
			if t.repeatCount < 0 {
				t.repeatCount = 0
			}
		}
		t.timesTriggered = 0
		t.startTime = now
		t.setNextOrExpire(now)
	case MisfireRescheduleNextWithRemainingCount, MisfireRescheduleNextWithExistingCount:
		next := nextIncludedFireTime(t.FireTimeAfter(now), cal, t.FireTimeAfter)
		t.nextFireTime = next
	}
}

func (t *SimpleTrigger) setNextOrExpire(now time.Time) {
	if !t.endTime.IsZero() && !now.Before(t.endTime) {
		t.nextFireTime = time.Time{}
		return
	}
	t.nextFireTime = now
}

func (t *SimpleTrigger) Clone() Trigger {
	out := &SimpleTrigger{
		baseTrigger:    t.cloneBase(),
		repeatInterval: t.repeatInterval,
		repeatCount:    t.repeatCount,
	}
	return out
}
