package calendar

import "time"

type monthDay struct {
	month time.Month
	day   int
}

// AnnualCalendar excludes a set of month/day pairs that repeat every year.
type AnnualCalendar struct {
	BaseCalendar
	excluded map[monthDay]bool
}

// NewAnnual builds an annual calendar with no days excluded.
func NewAnnual() *AnnualCalendar {
	return &AnnualCalendar{excluded: make(map[monthDay]bool)}
}

// SetDayExcluded marks a month/day pair as excluded or re-included.
func (c *AnnualCalendar) SetDayExcluded(month time.Month, day int, excluded bool) *AnnualCalendar {
	c.excluded[monthDay{month: month, day: day}] = excluded
	return c
}

// IsDayExcluded reports whether the given month/day pair is excluded.
func (c *AnnualCalendar) IsDayExcluded(month time.Month, day int) bool {
	return c.excluded[monthDay{month: month, day: day}]
}

func (c *AnnualCalendar) dayExcluded(t time.Time) bool {
	return c.excluded[monthDay{month: t.Month(), day: t.Day()}]
}

func (c *AnnualCalendar) IsTimeIncluded(t time.Time) bool {
	return !c.dayExcluded(t) && c.baseIncludes(t)
}

func (c *AnnualCalendar) NextIncludedTime(t time.Time) time.Time {
	for i := 0; i < searchHorizonDays; i++ {
		if c.dayExcluded(t) {
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

func (c *AnnualCalendar) Clone() Calendar {
	out := NewAnnual()
	out.BaseCalendar = c.cloneBase()
	for d, e := range c.excluded {
		out.excluded[d] = e
	}
	return out
}
