package calendar

import "time"

// WeeklyCalendar excludes a set of days of the week (e.g. weekends).
type WeeklyCalendar struct {
	BaseCalendar
	excluded map[time.Weekday]bool
}

// NewWeekly builds a weekly calendar with no days excluded.
func NewWeekly() *WeeklyCalendar {
	return &WeeklyCalendar{excluded: make(map[time.Weekday]bool)}
}

// SetDayExcluded marks a day of the week as excluded or re-included.
func (c *WeeklyCalendar) SetDayExcluded(day time.Weekday, excluded bool) *WeeklyCalendar {
	c.excluded[day] = excluded
	return c
}

// IsDayExcluded reports whether the given day of the week is excluded.
func (c *WeeklyCalendar) IsDayExcluded(day time.Weekday) bool { return c.excluded[day] }

func (c *WeeklyCalendar) IsTimeIncluded(t time.Time) bool {
	return !c.excluded[t.Weekday()] && c.baseIncludes(t)
}

func (c *WeeklyCalendar) NextIncludedTime(t time.Time) time.Time {
	for i := 0; i < searchHorizonDays; i++ {
		if c.excluded[t.Weekday()] {
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

func (c *WeeklyCalendar) Clone() Calendar {
	out := NewWeekly()
	out.BaseCalendar = c.cloneBase()
	for d, e := range c.excluded {
		out.excluded[d] = e
	}
	return out
}
