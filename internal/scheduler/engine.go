package scheduler

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dhima/chronos/internal/models"
	"github.com/dhima/chronos/internal/store"
	"github.com/dhima/chronos/internal/trigger"
)

// run is the scheduler main loop: wait for worker capacity, acquire the next
// batch of due triggers, sleep until their fire time, fire and dispatch.
// A signal on s.signal wakes any sleep early; the loop then re-evaluates
// standby, shutdown and the schedule.
func (s *Scheduler) run() {
	defer close(s.runDone)
	for {
		if s.isShutdown() {
			return
		}
		if s.inStandby() {
			<-s.signal
			continue
		}

		avail := s.pool.blockUntilAvailable()
		if avail == 0 {
			continue
		}
		maxCount := avail
		if maxCount > s.cfg.MaxBatchSize {
			maxCount = s.cfg.MaxBatchSize
		}

		now := s.clk.Now()
		acquired, err := s.store.AcquireNextTriggers(now.Add(s.cfg.IdleWait), maxCount, s.cfg.BatchTimeWindow)
		if err != nil {
			s.log.Error("trigger acquisition failed", zap.Error(err))
			s.sleep(time.Second)
			continue
		}
		if len(acquired) == 0 {
			s.sleep(s.cfg.IdleWait)
			continue
		}

		if !s.waitForFireTime(acquired[0].NextFireTime()) {
			// Woken early: the schedule changed, or we are pausing or
			// shutting down. Put the batch back and re-evaluate.
			for _, t := range acquired {
				s.store.ReleaseAcquiredTrigger(t)
			}
			continue
		}

		fired, err := s.store.TriggersFired(acquired)
		if err != nil {
			s.log.Error("trigger fire failed", zap.Error(err))
			for _, t := range acquired {
				s.store.ReleaseAcquiredTrigger(t)
			}
			continue
		}
		for _, res := range fired {
			if res == nil {
				continue
			}
			s.dispatch(res)
		}
	}
}

// sleep waits up to d, returning early when signaled.
func (s *Scheduler) sleep(d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-s.signal:
	case <-timer.C:
	}
}

// waitForFireTime sleeps until the given fire time. Returns false when
// woken by a signal before the time arrived.
func (s *Scheduler) waitForFireTime(fireTime time.Time) bool {
	for {
		wait := fireTime.Sub(s.clk.Now())
		if wait <= 0 {
			return true
		}
		timer := time.NewTimer(wait)
		select {
		case <-s.signal:
			timer.Stop()
			return false
		case <-timer.C:
		}
	}
}

// dispatch builds the execution context for one fired trigger, runs the
// listener veto protocol and hands the job to the worker pool.
func (s *Scheduler) dispatch(res *store.TriggerFiredResult) {
	jec := &JobExecutionContext{
		Scheduler:         s,
		Trigger:           res.Trigger,
		JobDetail:         res.Job,
		MergedDataMap:     res.Job.DataMap.Merge(res.Trigger.JobDataMap()),
		FireTime:          res.FireTime,
		ScheduledFireTime: res.ScheduledFireTime,
		PrevFireTime:      res.PrevFireTime,
		NextFireTime:      res.NextFireTime,
		FireInstanceID:    res.Trigger.FireInstanceID(),
		Recovering:        res.Recovering,
	}

	job, err := s.factory.NewJob(res.Job)
	if err != nil {
		s.log.Error("job factory failed; erroring all triggers of job",
			zap.String("job", res.Job.Key.String()), zap.Error(err))
		s.store.TriggeredJobComplete(res.Trigger, res.Job, models.InstructionSetAllJobTriggersError)
		s.signalWake()
		return
	}

	s.notifyTriggerFired(jec)
	if s.vetoJobExecution(jec) {
		s.log.Debug("job execution vetoed",
			zap.String("job", res.Job.Key.String()),
			zap.String("trigger", res.Trigger.Key().String()))
		s.notifyJobVetoed(jec)
		s.store.TriggeredJobComplete(res.Trigger, res.Job, models.InstructionNoop)
		s.signalWake()
		return
	}

	s.trackRunning(jec.FireInstanceID, job, res.Job.Key)
	if !s.pool.submit(func() { s.runJob(job, jec) }) {
		// Pool refused the task during shutdown; the firing is abandoned.
		s.untrackRunning(jec.FireInstanceID)
		s.store.TriggeredJobComplete(res.Trigger, res.Job, models.InstructionNoop)
	}
}

// runJob executes one firing on a worker, looping while the job requests an
// immediate refire, then reports completion to the store.
func (s *Scheduler) runJob(job Job, jec *JobExecutionContext) {
	defer s.untrackRunning(jec.FireInstanceID)
	for {
		s.notifyJobToBeExecuted(jec)
		err := s.executeOnce(job, jec)
		if err != nil {
			s.log.Warn("job execution failed",
				zap.String("job", jec.JobDetail.Key.String()),
				zap.String("fire_instance", jec.FireInstanceID),
				zap.Error(err))
		}
		s.notifyJobWasExecuted(jec, err)

		var jobErr *models.JobExecutionError
		if errors.As(err, &jobErr) && jobErr.Refire {
			jec.RefireCount++
			continue
		}
		instr := completionInstruction(err)
		s.notifyTriggerComplete(jec, instr)
		s.store.TriggeredJobComplete(jec.Trigger, jec.JobDetail, instr)
		s.signalWake()
		return
	}
}

// executeOnce runs the job, converting a panic into a job execution error
// that does not refire.
func (s *Scheduler) executeOnce(job Job, jec *JobExecutionContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &models.JobExecutionError{
				Cause: fmt.Errorf("panic in job %s: %v", jec.JobDetail.Key, r),
			}
		}
	}()
	return job.Execute(s.ctx, jec)
}

// completionInstruction maps an execution outcome to the store instruction.
// The refire flag is handled before this is consulted.
func completionInstruction(err error) models.CompletedExecutionInstruction {
	if err == nil {
		return models.InstructionNoop
	}
	var jobErr *models.JobExecutionError
	if errors.As(err, &jobErr) {
		switch {
		case jobErr.UnscheduleAll:
			return models.InstructionSetAllJobTriggersComplete
		case jobErr.UnscheduleThis:
			return models.InstructionSetTriggerComplete
		}
	}
	return models.InstructionNoop
}

// ---- running-job tracking ----

type runningJob struct {
	job    Job
	jobKey models.Key
}

func (s *Scheduler) trackRunning(fireInstanceID string, job Job, jobKey models.Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[fireInstanceID] = &runningJob{job: job, jobKey: jobKey}
}

func (s *Scheduler) untrackRunning(fireInstanceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, fireInstanceID)
}

// ---- listener notification ----

// safeNotify shields the engine from listener panics.
func (s *Scheduler) safeNotify(kind, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("listener panicked",
				zap.String("listener_kind", kind),
				zap.String("listener", name),
				zap.Any("panic", r))
		}
	}()
	fn()
}

func (s *Scheduler) notifyTriggerFired(jec *JobExecutionContext) {
	for _, l := range s.listeners.triggerListenersFor(jec.Trigger.Key()) {
		l := l
		s.safeNotify("trigger", l.Name(), func() { l.TriggerFired(jec) })
	}
}

func (s *Scheduler) vetoJobExecution(jec *JobExecutionContext) bool {
	vetoed := false
	for _, l := range s.listeners.triggerListenersFor(jec.Trigger.Key()) {
		l := l
		s.safeNotify("trigger", l.Name(), func() {
			if l.VetoJobExecution(jec) {
				vetoed = true
			}
		})
	}
	return vetoed
}

func (s *Scheduler) notifyTriggerComplete(jec *JobExecutionContext, instr models.CompletedExecutionInstruction) {
	for _, l := range s.listeners.triggerListenersFor(jec.Trigger.Key()) {
		l := l
		s.safeNotify("trigger", l.Name(), func() { l.TriggerComplete(jec, instr) })
	}
}

func (s *Scheduler) notifyTriggerMisfired(t trigger.Trigger) {
	for _, l := range s.listeners.triggerListenersFor(t.Key()) {
		l := l
		s.safeNotify("trigger", l.Name(), func() { l.TriggerMisfired(t) })
	}
}

func (s *Scheduler) notifyJobToBeExecuted(jec *JobExecutionContext) {
	for _, l := range s.listeners.jobListenersFor(jec.JobDetail.Key) {
		l := l
		s.safeNotify("job", l.Name(), func() { l.JobToBeExecuted(jec) })
	}
}

func (s *Scheduler) notifyJobVetoed(jec *JobExecutionContext) {
	for _, l := range s.listeners.jobListenersFor(jec.JobDetail.Key) {
		l := l
		s.safeNotify("job", l.Name(), func() { l.JobExecutionVetoed(jec) })
	}
}

func (s *Scheduler) notifyJobWasExecuted(jec *JobExecutionContext, err error) {
	for _, l := range s.listeners.jobListenersFor(jec.JobDetail.Key) {
		l := l
		s.safeNotify("job", l.Name(), func() { l.JobWasExecuted(jec, err) })
	}
}

func (s *Scheduler) notifySchedulerListeners(fn func(SchedulerListener)) {
	for _, l := range s.listeners.schedulerListenersSnapshot() {
		l := l
		s.safeNotify("scheduler", "", func() { fn(l) })
	}
}
