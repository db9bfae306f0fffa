package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dhima/chronos/internal/calendar"
	"github.com/dhima/chronos/internal/models"
	"github.com/dhima/chronos/internal/trigger"
	"github.com/dhima/chronos/pkg/clock"
)

var storeEpoch = time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

func newTestStore() (*MemoryStore, *clock.SteppingClock) {
	clk := clock.NewStepping(storeEpoch)
	return NewMemoryStore(clk, nil), clk
}

func storeJob(t *testing.T, s *MemoryStore, name string) *models.JobDetail {
	t.Helper()
	job := models.NewJobDetail(models.NewKey(name), "noop")
	assert.NoError(t, s.StoreJob(job, false))
	return job
}

// storeSimple computes the first fire time (as the scheduler would) and
// stores the trigger.
func storeSimple(t *testing.T, s *MemoryStore, name string, jobKey models.Key, start time.Time, interval time.Duration, repeat int) *trigger.SimpleTrigger {
	t.Helper()
	tr := trigger.NewSimple(models.NewKey(name), jobKey, start, interval, repeat)
	tr.ComputeFirstFireTime(nil)
	assert.NoError(t, s.StoreTrigger(tr, false))
	return tr
}

func TestStoreJobAndTriggerRoundTrip(t *testing.T) {
	s, _ := newTestStore()
	job := storeJob(t, s, "j1")

	got, err := s.RetrieveJob(job.Key)
	assert.NoError(t, err)
	assert.Equal(t, job.Key, got.Key)

	// Mutating the returned copy must not touch stored state.
	got.DataMap = got.DataMap.Put("k", "v")
	again, err := s.RetrieveJob(job.Key)
	assert.NoError(t, err)
	assert.Empty(t, again.DataMap)

	tr := storeSimple(t, s, "t1", job.Key, storeEpoch, time.Second, 5)
	gotTr, err := s.RetrieveTrigger(tr.Key())
	assert.NoError(t, err)
	assert.Equal(t, tr.Key(), gotTr.Key())
	assert.Equal(t, models.TriggerStateWaiting, s.TriggerState(tr.Key()))
}

func TestStoreDuplicateAndReplaceSemantics(t *testing.T) {
	s, _ := newTestStore()
	job := storeJob(t, s, "j1")

	dup := models.NewJobDetail(job.Key, "noop")
	err := s.StoreJob(dup, false)
	var exists models.ObjectAlreadyExistsError
	assert.ErrorAs(t, err, &exists)
	assert.NoError(t, s.StoreJob(dup, true))

	storeSimple(t, s, "t1", job.Key, storeEpoch, time.Second, 1)
	tr2 := trigger.NewSimple(models.NewKey("t1"), job.Key, storeEpoch, time.Second, 1)
	tr2.ComputeFirstFireTime(nil)
	assert.Error(t, s.StoreTrigger(tr2, false))
	assert.NoError(t, s.StoreTrigger(tr2, true))
	assert.Equal(t, 1, s.NumberOfTriggers())
}

func TestStoreTriggerRequiresJob(t *testing.T) {
	s, _ := newTestStore()
	tr := trigger.NewSimple(models.NewKey("t1"), models.NewKey("ghost"), storeEpoch, time.Second, 1)
	tr.ComputeFirstFireTime(nil)
	err := s.StoreTrigger(tr, false)
	var notFound models.ObjectNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestAcquireOrdering(t *testing.T) {
	s, _ := newTestStore()
	job := storeJob(t, s, "j1")

	// Same fire time: priority breaks the tie, then key.
	late := storeSimple(t, s, "late", job.Key, storeEpoch.Add(2*time.Second), time.Second, 0)
	a := storeSimple(t, s, "a-low", job.Key, storeEpoch, time.Second, 0)
	urgent := trigger.NewSimple(models.NewKey("urgent"), job.Key, storeEpoch, time.Second, 0)
	urgent.SetPriority(9)
	urgent.ComputeFirstFireTime(nil)
	assert.NoError(t, s.StoreTrigger(urgent, false))

	acquired, err := s.AcquireNextTriggers(storeEpoch.Add(time.Minute), 10, 0)
	assert.NoError(t, err)
	if assert.Len(t, acquired, 3) {
		assert.Equal(t, urgent.Key(), acquired[0].Key())
		assert.Equal(t, a.Key(), acquired[1].Key())
		assert.Equal(t, late.Key(), acquired[2].Key())
	}
	for _, tr := range acquired {
		assert.NotEmpty(t, tr.FireInstanceID())
		assert.Equal(t, models.TriggerStateAcquired, s.TriggerState(tr.Key()))
	}
}

func TestAcquireHonorsMaxCountAndHorizon(t *testing.T) {
	s, _ := newTestStore()
	job := storeJob(t, s, "j1")
	storeSimple(t, s, "t1", job.Key, storeEpoch, time.Second, 0)
	storeSimple(t, s, "t2", job.Key, storeEpoch.Add(time.Second), time.Second, 0)
	storeSimple(t, s, "t3", job.Key, storeEpoch.Add(time.Hour), time.Second, 0)

	acquired, err := s.AcquireNextTriggers(storeEpoch.Add(time.Minute), 1, 0)
	assert.NoError(t, err)
	assert.Len(t, acquired, 1)

	// Second call sees the remaining near trigger but not the far one.
	acquired, err = s.AcquireNextTriggers(storeEpoch.Add(time.Minute), 10, 0)
	assert.NoError(t, err)
	assert.Len(t, acquired, 1)
	assert.Equal(t, models.NewKey("t2"), acquired[0].Key())
}

func TestAcquireBatchTimeWindow(t *testing.T) {
	s, _ := newTestStore()
	job := storeJob(t, s, "j1")
	storeSimple(t, s, "t1", job.Key, storeEpoch.Add(time.Second), time.Second, 0)
	storeSimple(t, s, "t2", job.Key, storeEpoch.Add(3*time.Second), time.Second, 0)

	// Without a window only the first trigger is inside the horizon of its
	// own fire time.
	acquired, err := s.AcquireNextTriggers(storeEpoch.Add(2*time.Second), 10, 0)
	assert.NoError(t, err)
	assert.Len(t, acquired, 1)
	s.ReleaseAcquiredTrigger(acquired[0])

	// A 5s window anchored at the first trigger's fire time pulls in both.
	acquired, err = s.AcquireNextTriggers(storeEpoch.Add(2*time.Second), 10, 5*time.Second)
	assert.NoError(t, err)
	assert.Len(t, acquired, 2)
}

func TestReleaseAcquiredTriggerRequeues(t *testing.T) {
	s, _ := newTestStore()
	job := storeJob(t, s, "j1")
	storeSimple(t, s, "t1", job.Key, storeEpoch, time.Second, 0)

	acquired, err := s.AcquireNextTriggers(storeEpoch.Add(time.Minute), 10, 0)
	assert.NoError(t, err)
	assert.Len(t, acquired, 1)

	s.ReleaseAcquiredTrigger(acquired[0])
	assert.Equal(t, models.TriggerStateWaiting, s.TriggerState(acquired[0].Key()))

	again, err := s.AcquireNextTriggers(storeEpoch.Add(time.Minute), 10, 0)
	assert.NoError(t, err)
	assert.Len(t, again, 1)
}

func TestMisfireDoNothingSkipsToNextInstant(t *testing.T) {
	s, clk := newTestStore()
	s.SetMisfireThreshold(30 * time.Second)
	job := storeJob(t, s, "j1")

	tr := trigger.NewSimple(models.NewKey("t1"), job.Key, storeEpoch, time.Minute, trigger.RepeatIndefinitely)
	tr.SetMisfireInstruction(trigger.MisfireRescheduleNextWithRemainingCount)
	tr.ComputeFirstFireTime(nil)
	assert.NoError(t, s.StoreTrigger(tr, false))

	var misfired []models.Key
	s.SetMisfireHandler(func(t trigger.Trigger) { misfired = append(misfired, t.Key()) })

	// Jump the clock 5 minutes past the first fire time.
	now := clk.Advance(5 * time.Minute)

	acquired, err := s.AcquireNextTriggers(now.Add(time.Second), 10, 0)
	assert.NoError(t, err)
	assert.Len(t, misfired, 1)
	// The missed instants are skipped; the next fire time is in the future.
	assert.Empty(t, acquired)
	got, err := s.RetrieveTrigger(tr.Key())
	assert.NoError(t, err)
	assert.Equal(t, storeEpoch.Add(6*time.Minute), got.NextFireTime())
}

func TestMisfireSmartPolicyFiresNow(t *testing.T) {
	s, clk := newTestStore()
	s.SetMisfireThreshold(30 * time.Second)
	job := storeJob(t, s, "j1")
	storeSimple(t, s, "t1", job.Key, storeEpoch, time.Minute, 3)

	now := clk.Advance(5 * time.Minute)
	acquired, err := s.AcquireNextTriggers(now.Add(time.Second), 10, 0)
	assert.NoError(t, err)
	if assert.Len(t, acquired, 1) {
		assert.Equal(t, now, acquired[0].NextFireTime())
	}
}

func TestMisfireWithinThresholdStillFires(t *testing.T) {
	s, clk := newTestStore()
	s.SetMisfireThreshold(time.Minute)
	job := storeJob(t, s, "j1")
	storeSimple(t, s, "t1", job.Key, storeEpoch, time.Minute, 3)

	var misfired int
	s.SetMisfireHandler(func(trigger.Trigger) { misfired++ })

	// 10s late is inside the threshold: a late fire, not a misfire.
	now := clk.Advance(10 * time.Second)
	acquired, err := s.AcquireNextTriggers(now.Add(time.Second), 10, 0)
	assert.NoError(t, err)
	assert.Len(t, acquired, 1)
	assert.Equal(t, 0, misfired)
	assert.Equal(t, storeEpoch, acquired[0].NextFireTime())
}

func TestTriggersFiredAdvancesAndExecutes(t *testing.T) {
	s, _ := newTestStore()
	job := storeJob(t, s, "j1")
	storeSimple(t, s, "t1", job.Key, storeEpoch, time.Minute, 5)

	acquired, _ := s.AcquireNextTriggers(storeEpoch.Add(time.Second), 10, 0)
	fired, err := s.TriggersFired(acquired)
	assert.NoError(t, err)
	if assert.Len(t, fired, 1) {
		res := fired[0]
		assert.NotNil(t, res)
		assert.Equal(t, storeEpoch, res.ScheduledFireTime)
		assert.Equal(t, storeEpoch.Add(time.Minute), res.NextFireTime)
		assert.Equal(t, job.Key, res.Job.Key)
	}
	assert.Equal(t, models.TriggerStateExecuting, s.TriggerState(models.NewKey("t1")))
}

func TestTriggersFiredNilForVanished(t *testing.T) {
	s, _ := newTestStore()
	job := storeJob(t, s, "j1")
	storeSimple(t, s, "t1", job.Key, storeEpoch, time.Minute, 5)

	acquired, _ := s.AcquireNextTriggers(storeEpoch.Add(time.Second), 10, 0)
	_, err := s.RemoveTrigger(models.NewKey("t1"))
	assert.NoError(t, err)

	fired, err := s.TriggersFired(acquired)
	assert.NoError(t, err)
	if assert.Len(t, fired, 1) {
		assert.Nil(t, fired[0])
	}
}

func TestDisallowConcurrentBlocksSiblings(t *testing.T) {
	s, _ := newTestStore()
	job := models.NewJobDetail(models.NewKey("j1"), "noop")
	job.DisallowConcurrent = true
	assert.NoError(t, s.StoreJob(job, false))

	storeSimple(t, s, "t1", job.Key, storeEpoch, time.Minute, 5)
	storeSimple(t, s, "t2", job.Key, storeEpoch.Add(time.Second), time.Minute, 5)

	// Acquire skips the second trigger of the same disallow-concurrent job.
	acquired, _ := s.AcquireNextTriggers(storeEpoch.Add(time.Minute), 10, time.Minute)
	assert.Len(t, acquired, 1)

	fired, err := s.TriggersFired(acquired)
	assert.NoError(t, err)
	assert.NotNil(t, fired[0])
	assert.Equal(t, models.TriggerStateBlocked, s.TriggerState(models.NewKey("t2")))

	// Nothing else of the job is acquirable while it executes.
	more, _ := s.AcquireNextTriggers(storeEpoch.Add(time.Minute), 10, time.Minute)
	assert.Empty(t, more)

	s.TriggeredJobComplete(fired[0].Trigger, fired[0].Job, models.InstructionNoop)
	assert.Equal(t, models.TriggerStateWaiting, s.TriggerState(models.NewKey("t2")))
	assert.Equal(t, models.TriggerStateWaiting, s.TriggerState(models.NewKey("t1")))
}

func TestTriggeredJobCompleteInstructions(t *testing.T) {
	newFired := func(t *testing.T, repeat int) (*MemoryStore, *TriggerFiredResult) {
		t.Helper()
		s, _ := newTestStore()
		job := models.NewJobDetail(models.NewKey("j1"), "noop")
		job.Durable = true
		assert.NoError(t, s.StoreJob(job, false))
		storeSimple(t, s, "t1", job.Key, storeEpoch, time.Minute, repeat)
		acquired, _ := s.AcquireNextTriggers(storeEpoch.Add(time.Second), 10, 0)
		fired, err := s.TriggersFired(acquired)
		assert.NoError(t, err)
		return s, fired[0]
	}

	t.Run("noop requeues when fire times remain", func(t *testing.T) {
		s, res := newFired(t, 5)
		s.TriggeredJobComplete(res.Trigger, res.Job, models.InstructionNoop)
		assert.Equal(t, models.TriggerStateWaiting, s.TriggerState(res.Trigger.Key()))
	})

	t.Run("noop completes an exhausted trigger", func(t *testing.T) {
		s, res := newFired(t, 0)
		s.TriggeredJobComplete(res.Trigger, res.Job, models.InstructionNoop)
		assert.Equal(t, models.TriggerStateComplete, s.TriggerState(res.Trigger.Key()))
		// Durable job survives.
		assert.True(t, s.CheckJobExists(res.Job.Key))
	})

	t.Run("set trigger complete", func(t *testing.T) {
		s, res := newFired(t, 5)
		s.TriggeredJobComplete(res.Trigger, res.Job, models.InstructionSetTriggerComplete)
		assert.Equal(t, models.TriggerStateComplete, s.TriggerState(res.Trigger.Key()))
	})

	t.Run("delete trigger", func(t *testing.T) {
		s, res := newFired(t, 5)
		s.TriggeredJobComplete(res.Trigger, res.Job, models.InstructionDeleteTrigger)
		assert.Equal(t, models.TriggerStateNone, s.TriggerState(res.Trigger.Key()))
	})

	t.Run("set trigger error", func(t *testing.T) {
		s, res := newFired(t, 5)
		s.TriggeredJobComplete(res.Trigger, res.Job, models.InstructionSetTriggerError)
		assert.Equal(t, models.TriggerStateError, s.TriggerState(res.Trigger.Key()))
		assert.NoError(t, s.ResetTriggerFromErrorState(res.Trigger.Key()))
		assert.Equal(t, models.TriggerStateWaiting, s.TriggerState(res.Trigger.Key()))
	})
}

func TestNonDurableJobRemovedWhenTriggersComplete(t *testing.T) {
	s, _ := newTestStore()
	job := storeJob(t, s, "j1")
	storeSimple(t, s, "t1", job.Key, storeEpoch, time.Second, 0)

	acquired, _ := s.AcquireNextTriggers(storeEpoch.Add(time.Second), 10, 0)
	fired, _ := s.TriggersFired(acquired)
	s.TriggeredJobComplete(fired[0].Trigger, fired[0].Job, models.InstructionNoop)

	assert.False(t, s.CheckJobExists(job.Key))
	assert.Equal(t, 0, s.NumberOfTriggers())
}

func TestRemoveTriggerCascadesNonDurableJob(t *testing.T) {
	s, _ := newTestStore()
	job := storeJob(t, s, "j1")
	storeSimple(t, s, "t1", job.Key, storeEpoch, time.Second, 3)

	removed, err := s.RemoveTrigger(models.NewKey("t1"))
	assert.NoError(t, err)
	assert.True(t, removed)
	assert.False(t, s.CheckJobExists(job.Key))
}

func TestRemoveJobCascadesTriggers(t *testing.T) {
	s, _ := newTestStore()
	job := storeJob(t, s, "j1")
	storeSimple(t, s, "t1", job.Key, storeEpoch, time.Second, 3)
	storeSimple(t, s, "t2", job.Key, storeEpoch, time.Second, 3)

	removed, err := s.RemoveJob(job.Key)
	assert.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, 0, s.NumberOfTriggers())
	assert.Equal(t, 0, s.NumberOfJobs())
}

func TestReplaceTriggerKeepsCounts(t *testing.T) {
	s, _ := newTestStore()
	job := storeJob(t, s, "j1")
	storeSimple(t, s, "t1", job.Key, storeEpoch, time.Second, 3)

	repl := trigger.NewSimple(models.NewKey("t1"), job.Key, storeEpoch.Add(time.Hour), time.Minute, 1)
	repl.ComputeFirstFireTime(nil)
	ok, err := s.ReplaceTrigger(models.NewKey("t1"), repl)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, s.NumberOfTriggers())
	assert.Equal(t, 1, s.NumberOfJobs())

	got, err := s.RetrieveTrigger(models.NewKey("t1"))
	assert.NoError(t, err)
	assert.Equal(t, storeEpoch.Add(time.Hour), got.NextFireTime())
}

func TestReplaceTriggerRejectsDifferentJob(t *testing.T) {
	s, _ := newTestStore()
	job := storeJob(t, s, "j1")
	storeJob(t, s, "j2")
	storeSimple(t, s, "t1", job.Key, storeEpoch, time.Second, 3)

	repl := trigger.NewSimple(models.NewKey("t1"), models.NewKey("j2"), storeEpoch, time.Second, 3)
	repl.ComputeFirstFireTime(nil)
	_, err := s.ReplaceTrigger(models.NewKey("t1"), repl)
	assert.Error(t, err)
}

func TestPauseResumeTrigger(t *testing.T) {
	s, _ := newTestStore()
	job := storeJob(t, s, "j1")
	storeSimple(t, s, "t1", job.Key, storeEpoch, time.Minute, 5)

	assert.NoError(t, s.PauseTrigger(models.NewKey("t1")))
	assert.Equal(t, models.TriggerStatePaused, s.TriggerState(models.NewKey("t1")))

	acquired, _ := s.AcquireNextTriggers(storeEpoch.Add(time.Minute), 10, 0)
	assert.Empty(t, acquired)

	assert.NoError(t, s.ResumeTrigger(models.NewKey("t1")))
	assert.Equal(t, models.TriggerStateWaiting, s.TriggerState(models.NewKey("t1")))
	acquired, _ = s.AcquireNextTriggers(storeEpoch.Add(time.Minute), 10, 0)
	assert.Len(t, acquired, 1)
}

func TestPausedGroupCatchesNewTriggers(t *testing.T) {
	s, _ := newTestStore()
	job := storeJob(t, s, "j1")

	_, err := s.PauseTriggers(models.GroupEquals("reports"))
	assert.NoError(t, err)
	assert.Equal(t, []string{"reports"}, s.PausedTriggerGroups())

	tr := trigger.NewSimple(models.NewKeyWithGroup("t1", "reports"), job.Key, storeEpoch, time.Minute, 5)
	tr.ComputeFirstFireTime(nil)
	assert.NoError(t, s.StoreTrigger(tr, false))
	assert.Equal(t, models.TriggerStatePaused, s.TriggerState(tr.Key()))

	_, err = s.ResumeTriggers(models.GroupEquals("reports"))
	assert.NoError(t, err)
	assert.Empty(t, s.PausedTriggerGroups())
	assert.Equal(t, models.TriggerStateWaiting, s.TriggerState(tr.Key()))
}

func TestPauseAllResumeAll(t *testing.T) {
	s, _ := newTestStore()
	job := storeJob(t, s, "j1")
	storeSimple(t, s, "t1", job.Key, storeEpoch, time.Minute, 5)
	storeSimple(t, s, "t2", job.Key, storeEpoch, time.Minute, 5)

	assert.NoError(t, s.PauseAll())
	assert.Equal(t, models.TriggerStatePaused, s.TriggerState(models.NewKey("t1")))
	assert.Equal(t, models.TriggerStatePaused, s.TriggerState(models.NewKey("t2")))

	assert.NoError(t, s.ResumeAll())
	assert.Equal(t, models.TriggerStateWaiting, s.TriggerState(models.NewKey("t1")))
}

func TestResumeAppliesMisfire(t *testing.T) {
	s, clk := newTestStore()
	s.SetMisfireThreshold(30 * time.Second)
	job := storeJob(t, s, "j1")

	tr := trigger.NewSimple(models.NewKey("t1"), job.Key, storeEpoch, time.Minute, trigger.RepeatIndefinitely)
	tr.SetMisfireInstruction(trigger.MisfireRescheduleNextWithRemainingCount)
	tr.ComputeFirstFireTime(nil)
	assert.NoError(t, s.StoreTrigger(tr, false))
	assert.NoError(t, s.PauseTrigger(tr.Key()))

	clk.Advance(10 * time.Minute)
	assert.NoError(t, s.ResumeTrigger(tr.Key()))

	got, err := s.RetrieveTrigger(tr.Key())
	assert.NoError(t, err)
	assert.Equal(t, storeEpoch.Add(11*time.Minute), got.NextFireTime())
}

func TestCalendarLifecycle(t *testing.T) {
	s, _ := newTestStore()
	job := storeJob(t, s, "j1")

	weekly := calendar.NewWeekly().SetDayExcluded(time.Sunday, true)
	assert.NoError(t, s.StoreCalendar("business", weekly, false, false))
	assert.Error(t, s.StoreCalendar("business", weekly, false, false))
	assert.Equal(t, []string{"business"}, s.CalendarNames())

	tr := trigger.NewSimple(models.NewKey("t1"), job.Key, storeEpoch, time.Minute, 5)
	tr.SetCalendarName("business")
	cal, err := s.RetrieveCalendar("business")
	assert.NoError(t, err)
	tr.ComputeFirstFireTime(cal)
	assert.NoError(t, s.StoreTrigger(tr, false))

	// Referenced calendars cannot be removed.
	removed, err := s.RemoveCalendar("business")
	assert.Error(t, err)
	assert.False(t, removed)

	_, err = s.RemoveTrigger(tr.Key())
	assert.NoError(t, err)
	removed, err = s.RemoveCalendar("business")
	assert.NoError(t, err)
	assert.True(t, removed)
}

func TestStoreCalendarUpdateRecomputesTriggers(t *testing.T) {
	s, _ := newTestStore()
	job := storeJob(t, s, "j1")

	open := calendar.NewWeekly()
	assert.NoError(t, s.StoreCalendar("business", open, false, false))

	// Monday noon trigger, daily repeats.
	tr := trigger.NewSimple(models.NewKey("t1"), job.Key, storeEpoch, 24*time.Hour, trigger.RepeatIndefinitely)
	tr.SetCalendarName("business")
	tr.ComputeFirstFireTime(open)
	assert.NoError(t, s.StoreTrigger(tr, false))

	// Exclude Mondays and update referencing triggers.
	noMonday := calendar.NewWeekly().SetDayExcluded(time.Monday, true)
	assert.NoError(t, s.StoreCalendar("business", noMonday, true, true))

	got, err := s.RetrieveTrigger(tr.Key())
	assert.NoError(t, err)
	// The Monday instants are skipped; Tuesday noon is next.
	assert.Equal(t, storeEpoch.Add(24*time.Hour), got.NextFireTime())
}

func TestQueriesAndClear(t *testing.T) {
	s, _ := newTestStore()
	j1 := storeJob(t, s, "j1")
	job2 := models.NewJobDetail(models.NewKeyWithGroup("j2", "batch"), "noop")
	assert.NoError(t, s.StoreJob(job2, false))
	storeSimple(t, s, "t1", j1.Key, storeEpoch, time.Minute, 5)

	assert.Equal(t, []string{models.DefaultGroup, "batch"}, s.JobGroupNames())
	assert.Equal(t, []string{models.DefaultGroup}, s.TriggerGroupNames())
	assert.Len(t, s.JobKeys(models.GroupEquals("batch")), 1)
	assert.Len(t, s.JobKeys(models.MatchEverything()), 2)
	assert.Len(t, s.TriggerKeys(models.MatchEverything()), 1)

	assert.NoError(t, s.Clear())
	assert.Equal(t, 0, s.NumberOfJobs())
	assert.Equal(t, 0, s.NumberOfTriggers())
	assert.Equal(t, 0, s.NumberOfCalendars())
}

func TestTriggeredJobCompletePersistsDataMap(t *testing.T) {
	s, _ := newTestStore()
	job := models.NewJobDetail(models.NewKey("stateful"), "noop")
	job.Durable = true
	job.PersistDataAfterExecution = true
	job.DataMap = job.DataMap.Put("cursor", 1)
	assert.NoError(t, s.StoreJob(job, false))
	storeSimple(t, s, "t1", job.Key, storeEpoch, time.Minute, 1)

	acquired, err := s.AcquireNextTriggers(storeEpoch.Add(time.Second), 1, 0)
	assert.NoError(t, err)
	fired, err := s.TriggersFired(acquired)
	assert.NoError(t, err)
	if !assert.Len(t, fired, 1) {
		return
	}

	// The execution mutates its job snapshot; completion writes it back.
	fired[0].Job.DataMap.Put("cursor", 2)
	s.TriggeredJobComplete(fired[0].Trigger, fired[0].Job, models.InstructionNoop)

	got, err := s.RetrieveJob(job.Key)
	assert.NoError(t, err)
	cursor, err := got.DataMap.GetInt("cursor")
	assert.NoError(t, err)
	assert.Equal(t, 2, cursor)

	// The write-back clones; later snapshot mutations change nothing.
	fired[0].Job.DataMap.Put("cursor", 99)
	got, err = s.RetrieveJob(job.Key)
	assert.NoError(t, err)
	cursor, err = got.DataMap.GetInt("cursor")
	assert.NoError(t, err)
	assert.Equal(t, 2, cursor)
}

func TestTriggeredJobCompleteDiscardsDataWithoutFlag(t *testing.T) {
	s, _ := newTestStore()
	job := models.NewJobDetail(models.NewKey("stateless"), "noop")
	job.Durable = true
	job.DataMap = job.DataMap.Put("cursor", 1)
	assert.NoError(t, s.StoreJob(job, false))
	storeSimple(t, s, "t1", job.Key, storeEpoch, time.Minute, 1)

	acquired, err := s.AcquireNextTriggers(storeEpoch.Add(time.Second), 1, 0)
	assert.NoError(t, err)
	fired, err := s.TriggersFired(acquired)
	assert.NoError(t, err)
	if !assert.Len(t, fired, 1) {
		return
	}

	fired[0].Job.DataMap.Put("cursor", 2)
	s.TriggeredJobComplete(fired[0].Trigger, fired[0].Job, models.InstructionNoop)

	got, err := s.RetrieveJob(job.Key)
	assert.NoError(t, err)
	cursor, err := got.DataMap.GetInt("cursor")
	assert.NoError(t, err)
	assert.Equal(t, 1, cursor)
}

func TestMisfireHandlerMayCallStore(t *testing.T) {
	s, clk := newTestStore()
	s.SetMisfireThreshold(30 * time.Second)
	job := storeJob(t, s, "j1")
	tr := storeSimple(t, s, "t1", job.Key, storeEpoch, time.Minute, 0)

	// Notifications arrive after the detecting call's transaction, so the
	// handler is free to query the store.
	var observed models.TriggerState
	s.SetMisfireHandler(func(mt trigger.Trigger) {
		observed = s.TriggerState(mt.Key())
	})

	clk.Advance(time.Hour)
	acquired, err := s.AcquireNextTriggers(clk.Now().Add(time.Second), 1, 0)
	assert.NoError(t, err)
	if assert.Len(t, acquired, 1) {
		assert.Equal(t, tr.Key(), acquired[0].Key())
	}
	// Smart policy rescheduled the one-shot to fire now; it was acquired by
	// the time the handler ran.
	assert.Equal(t, models.TriggerStateAcquired, observed)
}
