package calendar

import (
	"time"

	"github.com/dhima/chronos/internal/cron"
)

// CronCalendar excludes every second matched by a cron expression. For
// example "* * 0-7 * * ?" excludes the hours between midnight and 8 a.m.
type CronCalendar struct {
	BaseCalendar
	expression *cron.Expression
	location   *time.Location
}

// NewCron builds a cron calendar from an expression string evaluated in loc
// (UTC when nil). Instants matched by the expression are EXCLUDED time;
// everything the expression does not match is included.
func NewCron(expression string, loc *time.Location) (*CronCalendar, error) {
	expr, err := cron.Parse(expression)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.UTC
	}
	return &CronCalendar{expression: expr, location: loc}, nil
}

// Expression returns the underlying cron expression.
func (c *CronCalendar) Expression() *cron.Expression { return c.expression }

func (c *CronCalendar) IsTimeIncluded(t time.Time) bool {
	return !c.expression.Matches(t, c.location) && c.baseIncludes(t)
}

func (c *CronCalendar) NextIncludedTime(t time.Time) time.Time {
	// Step in whole seconds; matched seconds are contiguous in the common
	// hour/day exclusion expressions, so this converges quickly.
	limit := t.Add(time.Duration(searchHorizonDays) * 24 * time.Hour)
	for t.Before(limit) {
		if c.expression.Matches(t, c.location) {
			t = t.Truncate(time.Second).Add(time.Second)
			continue
		}
		next := c.advanceOverBase(t)
		if next.IsZero() {
			return next
		}
		if !next.Equal(t) {
			t = next
			continue
		}
		return t
	}
	return time.Time{}
}

func (c *CronCalendar) Clone() Calendar {
	return &CronCalendar{
		BaseCalendar: c.cloneBase(),
		expression:   c.expression,
		location:     c.location,
	}
}
