// Package calendar provides composable time-inclusion filters used to
// exclude otherwise scheduled instants. Each calendar may carry a base
// calendar; the effective result is the conjunction of both.
package calendar

import "time"

// Calendar answers whether an instant is included and where the next
// included instant lies. Implementations must be safe to snapshot by value
// via Clone; the store is the sole owner of stored calendars.
type Calendar interface {
	// IsTimeIncluded reports whether t is included by this calendar and its
	// base chain.
	IsTimeIncluded(t time.Time) bool
	// NextIncludedTime returns the earliest instant at or after t that is
	// included. The zero time means no such instant was found within the
	// search horizon.
	NextIncludedTime(t time.Time) time.Time
	// Description is an optional human-readable note.
	Description() string
	// Base returns the base calendar, or nil.
	Base() Calendar
	// Clone returns a by-value copy including the base chain.
	Clone() Calendar
}

// searchHorizonDays bounds day-stepping searches in NextIncludedTime so a
// fully excluded calendar terminates.
const searchHorizonDays = 366 * 5

// BaseCalendar carries the base-calendar link and description shared by all
// variants.
type BaseCalendar struct {
	base        Calendar
	description string
}

// SetBase attaches a base calendar whose exclusions compound with this one.
func (b *BaseCalendar) SetBase(base Calendar) { b.base = base }

// SetDescription attaches a human-readable note.
func (b *BaseCalendar) SetDescription(d string) { b.description = d }

func (b *BaseCalendar) Description() string { return b.description }

func (b *BaseCalendar) Base() Calendar { return b.base }

// baseIncludes reports whether the base chain (if any) includes t.
func (b *BaseCalendar) baseIncludes(t time.Time) bool {
	return b.base == nil || b.base.IsTimeIncluded(t)
}

func (b *BaseCalendar) cloneBase() BaseCalendar {
	out := BaseCalendar{description: b.description}
	if b.base != nil {
		out.base = b.base.Clone()
	}
	return out
}

// advanceOverBase pushes t forward until the base chain includes it.
func (b *BaseCalendar) advanceOverBase(t time.Time) time.Time {
	if b.base == nil {
		return t
	}
	return b.base.NextIncludedTime(t)
}

// startOfDay truncates t to midnight in its own location.
func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
