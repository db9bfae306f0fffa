package calendar

import "time"

// MonthlyCalendar excludes a set of days of the month (1..31).
type MonthlyCalendar struct {
	BaseCalendar
	excluded map[int]bool
}

// NewMonthly builds a monthly calendar with no days excluded.
func NewMonthly() *MonthlyCalendar {
	return &MonthlyCalendar{excluded: make(map[int]bool)}
}

// SetDayExcluded marks a day of the month as excluded or re-included.
func (c *MonthlyCalendar) SetDayExcluded(day int, excluded bool) *MonthlyCalendar {
	c.excluded[day] = excluded
	return c
}

// IsDayExcluded reports whether the given day of the month is excluded.
func (c *MonthlyCalendar) IsDayExcluded(day int) bool { return c.excluded[day] }

func (c *MonthlyCalendar) IsTimeIncluded(t time.Time) bool {
	return !c.excluded[t.Day()] && c.baseIncludes(t)
}

func (c *MonthlyCalendar) NextIncludedTime(t time.Time) time.Time {
	for i := 0; i < searchHorizonDays; i++ {
		if c.excluded[t.Day()] {
			t = startOfDay(t).AddDate(0, 0, 1)
			continue
		}
		if next := c.advanceOverBase(t); !next.Equal(t) {
			if next.IsZero() {
				return next
			}
			t = next
			continue
		}
		return t
	}
	return time.Time{}
}

func (c *MonthlyCalendar) Clone() Calendar {
	out := NewMonthly()
	out.BaseCalendar = c.cloneBase()
	for d, e := range c.excluded {
		out.excluded[d] = e
	}
	return out
}
