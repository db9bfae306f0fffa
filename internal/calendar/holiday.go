package calendar

import "time"

// HolidayCalendar excludes a set of whole calendar days (specific dates,
// not recurring ones).
type HolidayCalendar struct {
	BaseCalendar
	excluded map[string]bool // keyed yyyy-mm-dd in the date's own location
}

// NewHoliday builds a holiday calendar with no dates excluded.
func NewHoliday() *HolidayCalendar {
	return &HolidayCalendar{excluded: make(map[string]bool)}
}

func dateKey(t time.Time) string { return t.Format("2006-01-02") }

// AddExcludedDate excludes the calendar day containing t.
func (c *HolidayCalendar) AddExcludedDate(t time.Time) *HolidayCalendar {
	c.excluded[dateKey(t)] = true
	return c
}

// RemoveExcludedDate re-includes the calendar day containing t.
func (c *HolidayCalendar) RemoveExcludedDate(t time.Time) *HolidayCalendar {
	delete(c.excluded, dateKey(t))
	return c
}

// ExcludedDates returns the excluded days formatted yyyy-mm-dd.
func (c *HolidayCalendar) ExcludedDates() []string {
	out := make([]string, 0, len(c.excluded))
	for k := range c.excluded {
		out = append(out, k)
	}
	return out
}

func (c *HolidayCalendar) IsTimeIncluded(t time.Time) bool {
	return !c.excluded[dateKey(t)] && c.baseIncludes(t)
}

func (c *HolidayCalendar) NextIncludedTime(t time.Time) time.Time {
	for i := 0; i < searchHorizonDays; i++ {
		if c.excluded[dateKey(t)] {
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

func (c *HolidayCalendar) Clone() Calendar {
	out := NewHoliday()
	out.BaseCalendar = c.cloneBase()
	for k, e := range c.excluded {
		out.excluded[k] = e
	}
	return out
}
