package calendar

import (
	"fmt"
	"time"
)

// DailyCalendar excludes a wall-clock time window that repeats every day.
// With Invert set, only the window is included instead.
type DailyCalendar struct {
	BaseCalendar
	windowStart time.Duration // offset from midnight
	windowEnd   time.Duration
	invert      bool
}

// NewDaily builds a daily calendar from wall-clock hour/minute pairs. The
// [start, end) window is EXCLUDED time; use SetInvert to make the window the
// only included time of the day.
func NewDaily(startHour, startMinute, endHour, endMinute int) (*DailyCalendar, error) {
	start := time.Duration(startHour)*time.Hour + time.Duration(startMinute)*time.Minute
	end := time.Duration(endHour)*time.Hour + time.Duration(endMinute)*time.Minute
	if startHour < 0 || startHour > 23 || endHour < 0 || endHour > 24 ||
		startMinute < 0 || startMinute > 59 || endMinute < 0 || endMinute > 59 {
		return nil, fmt.Errorf("daily calendar: time of day out of range")
	}
	if end <= start {
		return nil, fmt.Errorf("daily calendar: window end must be after window start")
	}
	return &DailyCalendar{windowStart: start, windowEnd: end}, nil
}

// SetInvert makes the window the included part of the day rather than the
// excluded part.
func (c *DailyCalendar) SetInvert(invert bool) *DailyCalendar {
	c.invert = invert
	return c
}

func (c *DailyCalendar) wallOffset(t time.Time) time.Duration {
	return t.Sub(startOfDay(t))
}

func (c *DailyCalendar) inWindow(t time.Time) bool {
	off := c.wallOffset(t)
	return off >= c.windowStart && off < c.windowEnd
}

func (c *DailyCalendar) IsTimeIncluded(t time.Time) bool {
	if c.inWindow(t) != c.invert {
		return false
	}
	return c.baseIncludes(t)
}

func (c *DailyCalendar) NextIncludedTime(t time.Time) time.Time {
	for i := 0; i < searchHorizonDays; i++ {
		switch {
		case !c.invert && c.inWindow(t):
			t = startOfDay(t).Add(c.windowEnd)
		case c.invert && c.wallOffset(t) < c.windowStart:
			t = startOfDay(t).Add(c.windowStart)
		case c.invert && c.wallOffset(t) >= c.windowEnd:
			t = startOfDay(t).AddDate(0, 0, 1).Add(c.windowStart)
		default:
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
	}
	return time.Time{}
}

func (c *DailyCalendar) Clone() Calendar {
	out := &DailyCalendar{
		BaseCalendar: c.cloneBase(),
		windowStart:  c.windowStart,
		windowEnd:    c.windowEnd,
		invert:       c.invert,
	}
	return out
}
