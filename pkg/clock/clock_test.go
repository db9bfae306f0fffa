package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRealClockTracksWallClock(t *testing.T) {
	c := RealClock{}
	before := time.Now()
	got := c.Now()
	after := time.Now()

	assert.False(t, got.Before(before))
	assert.False(t, got.After(after))
}

func TestFixedClockIsStable(t *testing.T) {
	ref := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := NewFixed(ref)

	assert.Equal(t, ref, c.Now())
	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, ref, c.Now())
}

func TestSteppingClockAdvances(t *testing.T) {
	ref := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := NewStepping(ref)

	assert.Equal(t, ref, c.Now())
	got := c.Advance(90 * time.Second)
	assert.Equal(t, ref.Add(90*time.Second), got)
	assert.Equal(t, got, c.Now())

	c.Set(ref)
	assert.Equal(t, ref, c.Now())
}
