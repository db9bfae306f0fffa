package cron

import (
	"sort"
	"time"
)

// iterationGuard bounds the field-advancement loop. Each pass advances at
// least one calendar field, so legitimate searches stay far below this.
const iterationGuard = 100000

// NextAfter returns the smallest instant strictly after t that matches the
// expression, evaluated against wall-clock time in loc. The second return
// is false when no matching instant exists at or before the maximum year.
func (e *Expression) NextAfter(t time.Time, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.UTC
	}
	cur := t.In(loc).Truncate(time.Second).Add(time.Second)

	for iter := 0; iter < iterationGuard; iter++ {
		y := cur.Year()
		if y > MaxYear {
			return time.Time{}, false
		}
		if !e.yearMatches(y) {
			ny, ok := e.nextYear(y)
			if !ok {
				return time.Time{}, false
			}
			cur = time.Date(ny, time.January, 1, 0, 0, 0, 0, loc)
			continue
		}

		mo := int(cur.Month())
		nm, ok := nextGE(e.months, mo)
		if !ok {
			cur = time.Date(y+1, time.January, 1, 0, 0, 0, 0, loc)
			continue
		}
		if nm != mo {
			cur = time.Date(y, time.Month(nm), 1, 0, 0, 0, 0, loc)
			continue
		}

		days := e.daysIn(y, time.Month(mo))
		d := cur.Day()
		nd, ok := nextGE(days, d)
		if !ok {
			cur = time.Date(y, time.Month(mo+1), 1, 0, 0, 0, 0, loc)
			continue
		}
		if nd != d {
			// A midnight that falls in a DST gap normalizes forward, which
			// is still the earliest wall time on the target day.
			cur = time.Date(y, time.Month(mo), nd, 0, 0, 0, 0, loc)
			continue
		}

		h := cur.Hour()
		nh, ok := nextGE(e.hours, h)
		if !ok {
			cur = time.Date(y, time.Month(mo), d+1, 0, 0, 0, 0, loc)
			continue
		}

		var mi, s int
		switch {
		case nh != h:
			mi, s = e.minutes[0], e.seconds[0]
		default:
			var nmi int
			nmi, ok = nextGE(e.minutes, cur.Minute())
			if !ok {
				cur = time.Date(y, time.Month(mo), d, h+1, 0, 0, 0, loc)
				continue
			}
			if nmi != cur.Minute() {
				mi, s = nmi, e.seconds[0]
			} else {
				ns, ok := nextGE(e.seconds, cur.Second())
				if !ok {
					cur = time.Date(y, time.Month(mo), d, h, cur.Minute()+1, 0, 0, loc)
					continue
				}
				mi, s = nmi, ns
			}
		}

		candidate := time.Date(y, time.Month(mo), d, nh, mi, s, 0, loc)
		cy, cmo, cd := candidate.Date()
		if cy != y || cmo != time.Month(mo) || cd != d ||
			candidate.Hour() != nh || candidate.Minute() != mi || candidate.Second() != s {
			// The wall-clock time does not exist in loc (spring-forward
			// gap); resume the search from the normalized instant.
			cur = candidate
			continue
		}
		if !candidate.After(t) {
			cur = candidate.Add(time.Second)
			continue
		}
		return candidate, true
	}
	return time.Time{}, false
}

// Matches reports whether t (truncated to the second) satisfies every field
// of the expression in loc.
func (e *Expression) Matches(t time.Time, loc *time.Location) bool {
	if loc == nil {
		loc = time.UTC
	}
	lt := t.In(loc)
	if !e.yearMatches(lt.Year()) {
		return false
	}
	if !contains(e.months, int(lt.Month())) {
		return false
	}
	if !contains(e.hours, lt.Hour()) || !contains(e.minutes, lt.Minute()) || !contains(e.seconds, lt.Second()) {
		return false
	}
	return contains(e.daysIn(lt.Year(), lt.Month()), lt.Day())
}

func (e *Expression) yearMatches(y int) bool {
	if e.years == nil {
		return y >= MinYear && y <= MaxYear
	}
	return contains(e.years, y)
}

func (e *Expression) nextYear(y int) (int, bool) {
	if e.years == nil {
		if y < MinYear {
			return MinYear, true
		}
		if y >= MaxYear {
			return 0, false
		}
		return y + 1, true
	}
	return nextGE(e.years, y+1)
}

// daysIn resolves the allowed day-of-month set for the given month,
// applying whichever of the two day fields is specified.
func (e *Expression) daysIn(y int, mo time.Month) []int {
	last := daysInMonth(y, mo)

	if !e.dom.unspecified {
		switch {
		case e.dom.lastWeekday:
			return []int{lastWeekdayOfMonth(y, mo)}
		case e.dom.last:
			d := last - e.dom.lastOffset
			if d < 1 {
				return nil
			}
			return []int{d}
		case e.dom.weekdayDay > 0:
			return []int{nearestWeekday(y, mo, e.dom.weekdayDay)}
		case e.dom.all:
			return fullRange(1, last)
		default:
			var out []int
			for _, d := range e.dom.values {
				if d <= last {
					out = append(out, d)
				}
			}
			return out
		}
	}

	switch {
	case e.dow.lastOfMonth > 0:
		for d := last; d > last-7; d-- {
			if weekdayOf(y, mo, d) == e.dow.lastOfMonth {
				return []int{d}
			}
		}
		return nil
	case e.dow.nthWeekday > 0:
		count := 0
		for d := 1; d <= last; d++ {
			if weekdayOf(y, mo, d) == e.dow.nthWeekday {
				count++
				if count == e.dow.nth {
					return []int{d}
				}
			}
		}
		return nil
	case e.dow.all:
		return fullRange(1, last)
	default:
		var out []int
		for d := 1; d <= last; d++ {
			if contains(e.dow.values, weekdayOf(y, mo, d)) {
				out = append(out, d)
			}
		}
		return out
	}
}

// nearestWeekday resolves "nW": the weekday closest to day n that stays
// within the month. Day 1 on a weekend moves forward; the last day moves
// backward.
func nearestWeekday(y int, mo time.Month, n int) int {
	last := daysInMonth(y, mo)
	if n > last {
		n = last
	}
	switch weekdayOf(y, mo, n) {
	case 7: // Saturday
		if n == 1 {
			return 3 // Monday the 3rd
		}
		return n - 1
	case 1: // Sunday
		if n+1 > last {
			return n - 2
		}
		return n + 1
	default:
		return n
	}
}

func lastWeekdayOfMonth(y int, mo time.Month) int {
	d := daysInMonth(y, mo)
	for weekdayOf(y, mo, d) == 1 || weekdayOf(y, mo, d) == 7 {
		d--
	}
	return d
}

// weekdayOf returns the 1..7 (1=Sunday) weekday of a civil date.
func weekdayOf(y int, mo time.Month, d int) int {
	return int(time.Date(y, mo, d, 12, 0, 0, 0, time.UTC).Weekday()) + 1
}

func daysInMonth(y int, mo time.Month) int {
	return time.Date(y, mo+1, 0, 12, 0, 0, 0, time.UTC).Day()
}

func fullRange(lo, hi int) []int {
	out := make([]int, 0, hi-lo+1)
	for v := lo; v <= hi; v++ {
		out = append(out, v)
	}
	return out
}

// nextGE returns the smallest element of sorted values that is >= v.
func nextGE(values []int, v int) (int, bool) {
	i := sort.SearchInts(values, v)
	if i == len(values) {
		return 0, false
	}
	return values[i], true
}

func contains(values []int, v int) bool {
	i := sort.SearchInts(values, v)
	return i < len(values) && values[i] == v
}
