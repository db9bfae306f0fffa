package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"

	"github.com/dhima/chronos/internal/calendar"
	"github.com/dhima/chronos/internal/logging"
	"github.com/dhima/chronos/internal/models"
	"github.com/dhima/chronos/internal/store"
	"github.com/dhima/chronos/internal/trigger"
	"github.com/dhima/chronos/pkg/clock"
	"github.com/dhima/chronos/pkg/config"
)

// manualTriggerGroup holds the one-shot triggers created by TriggerNow.
const manualTriggerGroup = "MANUAL"

// Scheduler is the public face of the engine. All methods are safe for
// concurrent use.
type Scheduler struct {
	cfg        config.Config
	store      store.JobStore
	factory    JobFactory
	log        logging.Logger
	clk        clock.Clock
	listeners  *ListenerManager
	pool       *workerPool
	instanceID string

	ctx    context.Context
	cancel context.CancelFunc

	// signal wakes the main loop early after any schedule change.
	signal  chan struct{}
	runDone chan struct{}

	mu       sync.Mutex
	started  bool
	standby  bool
	shutdown bool
	running  map[string]*runningJob
}

// New wires a scheduler from its collaborators. A nil clock means real time
// and a nil logger means silent. The store's misfire threshold and handler
// are taken over by the scheduler.
func New(cfg config.Config, js store.JobStore, factory JobFactory, log logging.Logger, clk clock.Clock) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if js == nil {
		return nil, models.NewValidationError("scheduler requires a job store")
	}
	if factory == nil {
		return nil, models.NewValidationError("scheduler requires a job factory")
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	instanceID := cfg.InstanceID
	if instanceID == "" || instanceID == config.AutoInstanceID {
		instanceID = uuid.New().String()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cfg:        cfg,
		store:      js,
		factory:    factory,
		log:        logging.OrNop(log).With(zap.String("scheduler", cfg.InstanceName), zap.String("instance", instanceID)),
		clk:        clk,
		listeners:  NewListenerManager(),
		pool:       newWorkerPool(cfg.ThreadPoolSize),
		instanceID: instanceID,
		ctx:        ctx,
		cancel:     cancel,
		signal:     make(chan struct{}, 1),
		runDone:    make(chan struct{}),
		running:    make(map[string]*runningJob),
	}
	js.SetMisfireThreshold(cfg.MisfireThreshold)
	js.SetMisfireHandler(s.notifyTriggerMisfired)
	return s, nil
}

// InstanceID returns the resolved scheduler instance id.
func (s *Scheduler) InstanceID() string { return s.instanceID }

// ListenerManager exposes listener registration.
func (s *Scheduler) ListenerManager() *ListenerManager { return s.listeners }

// ---- lifecycle ----

// Start begins (or resumes, after Standby) trigger processing.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return models.NewValidationError("scheduler cannot be restarted after shutdown")
	}
	resuming := s.started
	s.standby = false
	s.started = true
	s.mu.Unlock()

	if resuming {
		s.signalWake()
	} else {
		s.pool.start()
		go s.run()
	}
	s.log.Info("scheduler started")
	s.notifySchedulerListeners(func(l SchedulerListener) { l.SchedulerStarted() })
	return nil
}

// Standby stops firing triggers without releasing any state. Jobs already
// executing run to completion.
func (s *Scheduler) Standby() {
	s.mu.Lock()
	s.standby = true
	s.mu.Unlock()
	s.signalWake()
	s.log.Info("scheduler in standby")
	s.notifySchedulerListeners(func(l SchedulerListener) { l.SchedulerInStandby() })
}

// Shutdown stops the scheduler permanently. With wait set it blocks until
// executing jobs finish; without it, executing jobs that implement
// InterruptableJob are asked to stop and the run context is cancelled.
func (s *Scheduler) Shutdown(wait bool) {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return
	}
	s.shutdown = true
	wasStarted := s.started
	s.mu.Unlock()

	s.signalWake()
	// markClosed unblocks the main loop if it is waiting for a free worker.
	s.pool.markClosed()
	if wasStarted {
		<-s.runDone
	}
	if !wait {
		// Not waiting for executions to finish, so ask the ones that can be
		// interrupted to stop now; the rest see the context cancel below.
		s.interruptAllRunning()
	}
	s.pool.shutdown(wait)
	s.cancel()
	s.log.Info("scheduler shut down", zap.Bool("waited", wait))
	s.notifySchedulerListeners(func(l SchedulerListener) { l.SchedulerShutdown() })
}

// IsStarted reports whether Start has been called and Shutdown has not.
func (s *Scheduler) IsStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started && !s.shutdown
}

// InStandby reports whether the scheduler is paused as a whole.
func (s *Scheduler) InStandby() bool { return s.inStandby() }

func (s *Scheduler) inStandby() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.standby
}

func (s *Scheduler) isShutdown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdown
}

// signalWake nudges the main loop; coalesces when a wake is already pending.
func (s *Scheduler) signalWake() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// ---- scheduling ----

// ScheduleJob stores the job and its trigger and returns the first fire
// time. The trigger must reference the job's key.
func (s *Scheduler) ScheduleJob(job *models.JobDetail, t trigger.Trigger) (time.Time, error) {
	if err := job.Validate(); err != nil {
		return time.Time{}, err
	}
	if t.JobKey() != job.Key {
		return time.Time{}, models.NewValidationError(
			"trigger %s references job %s, not %s", t.Key(), t.JobKey(), job.Key)
	}
	if err := validateDataSchema(job, job.DataMap.Merge(t.JobDataMap())); err != nil {
		return time.Time{}, err
	}

	first, err := s.prepareTrigger(t)
	if err != nil {
		return time.Time{}, err
	}

	jobExisted := s.store.CheckJobExists(job.Key)
	if err := s.store.StoreJob(job, false); err != nil {
		return time.Time{}, err
	}
	if err := s.store.StoreTrigger(t, false); err != nil {
		if !jobExisted {
			_, _ = s.store.RemoveJob(job.Key)
		}
		return time.Time{}, err
	}

	s.log.Info("job scheduled",
		zap.String("job", job.Key.String()),
		zap.String("trigger", t.Key().String()),
		zap.Time("first_fire", first))
	s.notifySchedulerListeners(func(l SchedulerListener) { l.JobScheduled(t.Clone()) })
	s.signalWake()
	return first, nil
}

// AddJob stores a job with no trigger. The job must be durable, otherwise
// the store would immediately discard it.
func (s *Scheduler) AddJob(job *models.JobDetail, replace bool) error {
	if err := job.Validate(); err != nil {
		return err
	}
	if !job.Durable {
		return models.NewValidationError("job %s without a trigger must be durable", job.Key)
	}
	return s.store.StoreJob(job, replace)
}

// ScheduleTrigger adds a trigger for an already stored job.
func (s *Scheduler) ScheduleTrigger(t trigger.Trigger) (time.Time, error) {
	job, err := s.store.RetrieveJob(t.JobKey())
	if err != nil {
		return time.Time{}, err
	}
	if err := validateDataSchema(job, job.DataMap.Merge(t.JobDataMap())); err != nil {
		return time.Time{}, err
	}
	first, err := s.prepareTrigger(t)
	if err != nil {
		return time.Time{}, err
	}
	if err := s.store.StoreTrigger(t, false); err != nil {
		return time.Time{}, err
	}
	s.notifySchedulerListeners(func(l SchedulerListener) { l.JobScheduled(t.Clone()) })
	s.signalWake()
	return first, nil
}

// prepareTrigger validates the trigger, anchors a zero start time at now and
// computes the first fire time.
func (s *Scheduler) prepareTrigger(t trigger.Trigger) (time.Time, error) {
	if t.StartTime().IsZero() {
		t.SetStartTime(s.clk.Now())
	}
	if err := t.Validate(); err != nil {
		return time.Time{}, err
	}
	cal, err := s.calendarFor(t)
	if err != nil {
		return time.Time{}, err
	}
	first := t.ComputeFirstFireTime(cal)
	if first.IsZero() {
		return time.Time{}, models.NewValidationError("trigger %s will never fire", t.Key())
	}
	return first, nil
}

func (s *Scheduler) calendarFor(t trigger.Trigger) (calendar.Calendar, error) {
	name := t.CalendarName()
	if name == "" {
		return nil, nil
	}
	return s.store.RetrieveCalendar(name)
}

// RescheduleJob swaps the trigger stored under triggerKey for newTrigger,
// which must reference the same job. Returns the new first fire time, or a
// zero time when no trigger was stored under triggerKey.
func (s *Scheduler) RescheduleJob(triggerKey models.Key, newTrigger trigger.Trigger) (time.Time, error) {
	first, err := s.prepareTrigger(newTrigger)
	if err != nil {
		return time.Time{}, err
	}
	replaced, err := s.store.ReplaceTrigger(triggerKey, newTrigger)
	if err != nil {
		return time.Time{}, err
	}
	if !replaced {
		return time.Time{}, nil
	}
	s.notifySchedulerListeners(func(l SchedulerListener) {
		l.JobUnscheduled(triggerKey)
		l.JobScheduled(newTrigger.Clone())
	})
	s.signalWake()
	return first, nil
}

// UnscheduleJob removes one trigger; the job goes too when it is not
// durable and has no other triggers.
func (s *Scheduler) UnscheduleJob(triggerKey models.Key) (bool, error) {
	removed, err := s.store.RemoveTrigger(triggerKey)
	if err != nil || !removed {
		return removed, err
	}
	s.notifySchedulerListeners(func(l SchedulerListener) { l.JobUnscheduled(triggerKey) })
	s.signalWake()
	return true, nil
}

// DeleteJob removes a job and all of its triggers.
func (s *Scheduler) DeleteJob(jobKey models.Key) (bool, error) {
	removed, err := s.store.RemoveJob(jobKey)
	if err != nil || !removed {
		return removed, err
	}
	s.notifySchedulerListeners(func(l SchedulerListener) { l.JobDeleted(jobKey) })
	s.signalWake()
	return true, nil
}

// TriggerNow fires the job once, immediately, with dataMap layered over the
// job's own data map for that execution.
func (s *Scheduler) TriggerNow(jobKey models.Key, dataMap models.JobDataMap) error {
	job, err := s.store.RetrieveJob(jobKey)
	if err != nil {
		return err
	}
	if err := validateDataSchema(job, job.DataMap.Merge(dataMap)); err != nil {
		return err
	}
	t := trigger.NewOneShot(models.UniqueKey(manualTriggerGroup), jobKey, s.clk.Now())
	if dataMap != nil {
		t.SetJobDataMap(dataMap.Clone())
	}
	t.ComputeFirstFireTime(nil)
	if err := s.store.StoreTrigger(t, false); err != nil {
		return err
	}
	s.log.Info("job triggered manually", zap.String("job", jobKey.String()))
	s.signalWake()
	return nil
}

// ---- pause and resume ----

func (s *Scheduler) PauseTrigger(key models.Key) error {
	if err := s.store.PauseTrigger(key); err != nil {
		return err
	}
	s.notifySchedulerListeners(func(l SchedulerListener) { l.TriggerPaused(key) })
	return nil
}

func (s *Scheduler) PauseTriggers(matcher models.Matcher) error {
	groups, err := s.store.PauseTriggers(matcher)
	if err != nil {
		return err
	}
	s.notifySchedulerListeners(func(l SchedulerListener) {
		for _, g := range groups {
			l.TriggersPaused(g)
		}
	})
	return nil
}

func (s *Scheduler) ResumeTrigger(key models.Key) error {
	if err := s.store.ResumeTrigger(key); err != nil {
		return err
	}
	s.notifySchedulerListeners(func(l SchedulerListener) { l.TriggerResumed(key) })
	s.signalWake()
	return nil
}

func (s *Scheduler) ResumeTriggers(matcher models.Matcher) error {
	groups, err := s.store.ResumeTriggers(matcher)
	if err != nil {
		return err
	}
	s.notifySchedulerListeners(func(l SchedulerListener) {
		for _, g := range groups {
			l.TriggersResumed(g)
		}
	})
	s.signalWake()
	return nil
}

func (s *Scheduler) PauseJob(key models.Key) error {
	return s.store.PauseJob(key)
}

func (s *Scheduler) PauseJobs(matcher models.Matcher) error {
	_, err := s.store.PauseJobs(matcher)
	return err
}

func (s *Scheduler) ResumeJob(key models.Key) error {
	if err := s.store.ResumeJob(key); err != nil {
		return err
	}
	s.signalWake()
	return nil
}

func (s *Scheduler) ResumeJobs(matcher models.Matcher) error {
	if _, err := s.store.ResumeJobs(matcher); err != nil {
		return err
	}
	s.signalWake()
	return nil
}

func (s *Scheduler) PauseAll() error {
	return s.store.PauseAll()
}

func (s *Scheduler) ResumeAll() error {
	if err := s.store.ResumeAll(); err != nil {
		return err
	}
	s.signalWake()
	return nil
}

// ---- queries and maintenance ----

func (s *Scheduler) GetTriggerState(key models.Key) models.TriggerState {
	return s.store.TriggerState(key)
}

func (s *Scheduler) GetTriggersOfJob(jobKey models.Key) ([]trigger.Trigger, error) {
	return s.store.TriggersForJob(jobKey)
}

func (s *Scheduler) GetJobDetail(key models.Key) (*models.JobDetail, error) {
	return s.store.RetrieveJob(key)
}

func (s *Scheduler) CheckJobExists(key models.Key) bool { return s.store.CheckJobExists(key) }

func (s *Scheduler) CheckTriggerExists(key models.Key) bool { return s.store.CheckTriggerExists(key) }

// Clear drops all jobs, triggers and calendars.
func (s *Scheduler) Clear() error {
	if err := s.store.Clear(); err != nil {
		return err
	}
	s.notifySchedulerListeners(func(l SchedulerListener) { l.SchedulingDataCleared() })
	s.signalWake()
	return nil
}

// AddCalendar registers a calendar. With updateTriggers set, triggers
// referencing the name get their next fire times recomputed.
func (s *Scheduler) AddCalendar(name string, cal calendar.Calendar, replace, updateTriggers bool) error {
	if strings.TrimSpace(name) == "" {
		return models.NewValidationError("calendar name is required")
	}
	if err := s.store.StoreCalendar(name, cal, replace, updateTriggers); err != nil {
		return err
	}
	if updateTriggers {
		s.signalWake()
	}
	return nil
}

func (s *Scheduler) DeleteCalendar(name string) (bool, error) {
	return s.store.RemoveCalendar(name)
}

func (s *Scheduler) GetCalendar(name string) (calendar.Calendar, error) {
	return s.store.RetrieveCalendar(name)
}

func (s *Scheduler) CalendarNames() []string { return s.store.CalendarNames() }

// interruptAllRunning asks every executing job with the interruptable
// capability to stop.
func (s *Scheduler) interruptAllRunning() {
	type target struct {
		job    InterruptableJob
		jobKey models.Key
	}
	s.mu.Lock()
	var targets []target
	for _, rj := range s.running {
		if ij, ok := rj.job.(InterruptableJob); ok {
			targets = append(targets, target{job: ij, jobKey: rj.jobKey})
		}
	}
	s.mu.Unlock()
	for _, tg := range targets {
		tg.job.Interrupt(tg.jobKey)
	}
}

// InterruptJob asks all executing instances of the job to interrupt. It
// fails when the job runs but does not implement InterruptableJob, and when
// no instance is executing.
func (s *Scheduler) InterruptJob(jobKey models.Key) error {
	s.mu.Lock()
	var targets []InterruptableJob
	found := false
	for _, rj := range s.running {
		if rj.jobKey != jobKey {
			continue
		}
		found = true
		if ij, ok := rj.job.(InterruptableJob); ok {
			targets = append(targets, ij)
		}
	}
	s.mu.Unlock()

	if !found {
		return models.ObjectNotFoundError{Kind: "executing job", Name: jobKey.String()}
	}
	if len(targets) == 0 {
		return models.UnableToInterruptJobError{JobKey: jobKey}
	}
	for _, ij := range targets {
		ij.Interrupt(jobKey)
	}
	return nil
}

// validateDataSchema checks the merged data map against the job's optional
// JSON schema.
func validateDataSchema(job *models.JobDetail, data models.JobDataMap) error {
	if len(job.DataSchema) == 0 {
		return nil
	}
	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(job.DataSchema),
		gojsonschema.NewGoLoader(map[string]interface{}(data)),
	)
	if err != nil {
		return fmt.Errorf("job %s data schema: %w", job.Key, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return models.NewValidationError(
			"job %s data map fails its schema: %s", job.Key, strings.Join(msgs, "; "))
	}
	return nil
}
