package trigger

import (
	"time"

	"github.com/dhima/chronos/internal/calendar"
	"github.com/dhima/chronos/internal/cron"
	"github.com/dhima/chronos/internal/models"
)

// CronTrigger fires on the instants matched by a cron expression, evaluated
// in a configured time zone.
type CronTrigger struct {
	baseTrigger
	expression *cron.Expression
	location   *time.Location
}

// NewCron builds a cron trigger from an expression string evaluated in loc
// (UTC when nil). The start time defaults to "now on scheduling" and may be
// set explicitly with SetStartTime.
func NewCron(key, jobKey models.Key, expression string, loc *time.Location) (*CronTrigger, error) {
	expr, err := cron.Parse(expression)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.UTC
	}
	return &CronTrigger{
		baseTrigger: newBase(key, jobKey, time.Time{}),
		expression:  expr,
		location:    loc,
	}, nil
}

// Expression returns the parsed cron expression.
func (t *CronTrigger) Expression() *cron.Expression { return t.expression }

// Location returns the zone the expression is evaluated in.
func (t *CronTrigger) Location() *time.Location { return t.location }

func (t *CronTrigger) Validate() error {
	if err := t.validateBase(); err != nil {
		return err
	}
	if t.expression == nil {
		return models.NewValidationError("trigger %s has no cron expression", t.key)
	}
	return nil
}

func (t *CronTrigger) ComputeFirstFireTime(cal calendar.Calendar) time.Time {
	first := t.FireTimeAfter(t.startTime.Add(-time.Second))
	t.nextFireTime = nextIncludedFireTime(first, cal, t.FireTimeAfter)
	return t.nextFireTime
}

func (t *CronTrigger) FireTimeAfter(after time.Time) time.Time {
	if after.Before(t.startTime) {
		after = t.startTime.Add(-time.Second)
	}
	if !t.endTime.IsZero() && !after.Before(t.endTime) {
		return time.Time{}
	}
	next, ok := t.expression.NextAfter(after, t.location)
	if !ok {
		return time.Time{}
	}
	if !t.endTime.IsZero() && !next.Before(t.endTime) {
		return time.Time{}
	}
	return next
}

// FinalFireTime returns zero: a cron schedule has no closed-form final
// instant, and the expression grammar only supports forward queries.
func (t *CronTrigger) FinalFireTime() time.Time { return time.Time{} }

func (t *CronTrigger) Triggered(cal calendar.Calendar) {
	t.triggeredAdvance(cal, t.FireTimeAfter)
}

func (t *CronTrigger) UpdateWithNewCalendar(cal calendar.Calendar, misfireThreshold time.Duration, now time.Time) {
	t.updateWithNewCalendar(cal, misfireThreshold, now, t.FireTimeAfter)
}

func (t *CronTrigger) UpdateAfterMisfire(cal calendar.Calendar, now time.Time) {
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

func (t *CronTrigger) Clone() Trigger {
	return &CronTrigger{
		baseTrigger: t.cloneBase(),
		expression:  t.expression,
		location:    t.location,
	}
}
