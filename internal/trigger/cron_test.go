package trigger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dhima/chronos/internal/calendar"
)

func TestCronTriggerRejectsBadExpression(t *testing.T) {
	tk, jk := testKeys()
	_, err := NewCron(tk, jk, "0 0 25 * * ?", time.UTC)
	assert.Error(t, err)
}

func TestCronTriggerFirstFireTime(t *testing.T) {
	tk, jk := testKeys()
	tr, err := NewCron(tk, jk, "0 30 9 ? * MON-FRI", time.UTC)
	assert.NoError(t, err)

	// Saturday morning; the first weekday firing is Monday 09:30.
	tr.SetStartTime(time.Date(2025, 6, 7, 8, 0, 0, 0, time.UTC))
	first := tr.ComputeFirstFireTime(nil)
	assert.Equal(t, time.Date(2025, 6, 9, 9, 30, 0, 0, time.UTC), first)
}

func TestCronTriggerFireTimeAtStartBoundary(t *testing.T) {
	tk, jk := testKeys()
	tr, err := NewCron(tk, jk, "0 0 12 * * ?", time.UTC)
	assert.NoError(t, err)

	// Start time exactly on a matching instant is itself the first firing.
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tr.SetStartTime(start)
	assert.Equal(t, start, tr.ComputeFirstFireTime(nil))
}

func TestCronTriggerHonorsZone(t *testing.T) {
	tk, jk := testKeys()
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	assert.NoError(t, err)

	tr, err := NewCron(tk, jk, "0 0 9 * * ?", tokyo)
	assert.NoError(t, err)
	tr.SetStartTime(time.Date(2025, 6, 1, 3, 0, 0, 0, time.UTC))

	// 03:00 UTC is already past 09:00 in Tokyo that day.
	first := tr.ComputeFirstFireTime(nil)
	assert.Equal(t, time.Date(2025, 6, 2, 9, 0, 0, 0, tokyo).UTC(), first.UTC())
}

func TestCronTriggerCalendarSkip(t *testing.T) {
	tk, jk := testKeys()
	tr, err := NewCron(tk, jk, "0 0 12 * * ?", time.UTC)
	assert.NoError(t, err)
	tr.SetStartTime(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))

	// June 1 2025 is a Sunday; the calendar pushes the first firing to Monday.
	cal := calendar.NewWeekly().SetDayExcluded(time.Sunday, true)
	first := tr.ComputeFirstFireTime(cal)
	assert.Equal(t, time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC), first)
}

func TestCronTriggerTriggeredAdvances(t *testing.T) {
	tk, jk := testKeys()
	tr, err := NewCron(tk, jk, "0 0 12 * * ?", time.UTC)
	assert.NoError(t, err)
	tr.SetStartTime(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	tr.ComputeFirstFireTime(nil)

	tr.Triggered(nil)
	assert.Equal(t, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), tr.PreviousFireTime())
	assert.Equal(t, time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC), tr.NextFireTime())
	assert.Equal(t, 1, tr.TimesTriggered())
}

func TestCronTriggerEndTime(t *testing.T) {
	tk, jk := testKeys()
	tr, err := NewCron(tk, jk, "0 0 12 * * ?", time.UTC)
	assert.NoError(t, err)
	tr.SetStartTime(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	tr.SetEndTime(time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC))

	tr.ComputeFirstFireTime(nil)
	tr.Triggered(nil)
	assert.Equal(t, time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC), tr.NextFireTime())
	tr.Triggered(nil)
	assert.True(t, tr.NextFireTime().IsZero())
}

func TestCronTriggerMisfire(t *testing.T) {
	tk, jk := testKeys()
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2025, 6, 3, 15, 0, 0, 0, time.UTC)

	t.Run("smart policy fires once now", func(t *testing.T) {
		tr, err := NewCron(tk, jk, "0 0 12 * * ?", time.UTC)
		assert.NoError(t, err)
		tr.SetStartTime(start)
		tr.ComputeFirstFireTime(nil)
		tr.UpdateAfterMisfire(nil, now)
		assert.Equal(t, now, tr.NextFireTime())
	})

	t.Run("do nothing moves to next scheduled instant", func(t *testing.T) {
		tr, err := NewCron(tk, jk, "0 0 12 * * ?", time.UTC)
		assert.NoError(t, err)
		tr.SetStartTime(start)
		tr.SetMisfireInstruction(MisfireDoNothing)
		tr.ComputeFirstFireTime(nil)
		tr.UpdateAfterMisfire(nil, now)
		assert.Equal(t, time.Date(2025, 6, 4, 12, 0, 0, 0, time.UTC), tr.NextFireTime())
	})
}

func TestCronTriggerUpdateWithNewCalendar(t *testing.T) {
	tk, jk := testKeys()
	tr, err := NewCron(tk, jk, "0 0 12 * * ?", time.UTC)
	assert.NoError(t, err)
	tr.SetStartTime(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	tr.ComputeFirstFireTime(nil)
	tr.Triggered(nil)

	now := time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC)
	hol := calendar.NewHoliday()
	hol.AddExcludedDate(time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC))

	tr.UpdateWithNewCalendar(hol, time.Minute, now)
	assert.Equal(t, time.Date(2025, 6, 3, 12, 0, 0, 0, time.UTC), tr.NextFireTime())
}

func TestCronTriggerClone(t *testing.T) {
	tk, jk := testKeys()
	tr, err := NewCron(tk, jk, "0 0 12 * * ?", time.UTC)
	assert.NoError(t, err)
	tr.SetStartTime(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	tr.ComputeFirstFireTime(nil)

	cp := tr.Clone().(*CronTrigger)
	cp.Triggered(nil)
	assert.Equal(t, 0, tr.TimesTriggered())
	assert.Equal(t, tr.Expression().String(), cp.Expression().String())
}
