package store

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dhima/chronos/internal/calendar"
	"github.com/dhima/chronos/internal/logging"
	"github.com/dhima/chronos/internal/models"
	"github.com/dhima/chronos/internal/trigger"
	"github.com/dhima/chronos/pkg/clock"
)

// DefaultMisfireThreshold is how far in the past a fire time may lie before
// the store treats the trigger as misfired.
const DefaultMisfireThreshold = 60 * time.Second

// triggerRecord is the store-owned trigger instance plus its runtime state.
type triggerRecord struct {
	trig  trigger.Trigger
	state models.TriggerState
}

// MemoryStore is a transactional in-memory JobStore. Every public method
// takes the single store mutex, so each call is one atomic transaction, and
// stored state is cloned at the boundary in both directions.
type MemoryStore struct {
	mu  sync.Mutex
	clk clock.Clock
	log logging.Logger

	jobs      map[models.Key]*models.JobDetail
	triggers  map[models.Key]*triggerRecord
	byJob     map[models.Key]map[models.Key]*triggerRecord
	calendars map[string]calendar.Calendar

	// queue holds WAITING records ordered by (next fire time, priority desc,
	// key); it is the acquire scan order.
	queue []*triggerRecord

	pausedTriggerGroups map[string]bool
	pausedJobGroups     map[string]bool
	blockedJobs         map[models.Key]bool

	misfireThreshold time.Duration
	misfireHandler   MisfireHandler

	// pendingMisfires collects trigger snapshots whose misfire was detected
	// inside the current transaction; the notifications go out after the
	// mutex is released.
	pendingMisfires []trigger.Trigger
}

var _ JobStore = (*MemoryStore)(nil)

// NewMemoryStore builds an empty store reading time from clk. A nil logger
// is replaced with a no-op one.
func NewMemoryStore(clk clock.Clock, log logging.Logger) *MemoryStore {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &MemoryStore{
		clk:                 clk,
		log:                 logging.OrNop(log),
		jobs:                make(map[models.Key]*models.JobDetail),
		triggers:            make(map[models.Key]*triggerRecord),
		byJob:               make(map[models.Key]map[models.Key]*triggerRecord),
		calendars:           make(map[string]calendar.Calendar),
		pausedTriggerGroups: make(map[string]bool),
		pausedJobGroups:     make(map[string]bool),
		blockedJobs:         make(map[models.Key]bool),
		misfireThreshold:    DefaultMisfireThreshold,
	}
}

func (s *MemoryStore) SetMisfireThreshold(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.misfireThreshold = d
}

func (s *MemoryStore) SetMisfireHandler(fn MisfireHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.misfireHandler = fn
}

// ---- jobs ----

func (s *MemoryStore) StoreJob(job *models.JobDetail, replace bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.Key]; ok && !replace {
		return models.ObjectAlreadyExistsError{Kind: "job", Name: job.Key.String()}
	}
	s.jobs[job.Key] = job.Clone()
	if s.byJob[job.Key] == nil {
		s.byJob[job.Key] = make(map[models.Key]*triggerRecord)
	}
	return nil
}

func (s *MemoryStore) RetrieveJob(key models.Key) (*models.JobDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[key]
	if !ok {
		return nil, models.ObjectNotFoundError{Kind: "job", Name: key.String()}
	}
	return job.Clone(), nil
}

func (s *MemoryStore) RemoveJob(key models.Key) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[key]; !ok {
		return false, nil
	}
	for tk := range s.byJob[key] {
		s.deleteTriggerRecordLocked(tk)
	}
	delete(s.byJob, key)
	delete(s.jobs, key)
	delete(s.blockedJobs, key)
	return true, nil
}

func (s *MemoryStore) CheckJobExists(key models.Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[key]
	return ok
}

// ---- triggers ----

func (s *MemoryStore) StoreTrigger(t trigger.Trigger, replace bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storeTriggerLocked(t, replace)
}

func (s *MemoryStore) storeTriggerLocked(t trigger.Trigger, replace bool) error {
	key := t.Key()
	if _, ok := s.triggers[key]; ok {
		if !replace {
			return models.ObjectAlreadyExistsError{Kind: "trigger", Name: key.String()}
		}
		s.deleteTriggerRecordLocked(key)
	}
	jobKey := t.JobKey()
	if _, ok := s.jobs[jobKey]; !ok {
		return models.ObjectNotFoundError{Kind: "job", Name: jobKey.String()}
	}

	rec := &triggerRecord{trig: t.Clone(), state: models.TriggerStateWaiting}
	switch {
	case s.pausedTriggerGroups[key.Group] || s.pausedJobGroups[jobKey.Group]:
		rec.state = models.TriggerStatePaused
		if s.blockedJobs[jobKey] {
			rec.state = models.TriggerStatePausedBlocked
		}
	case s.blockedJobs[jobKey]:
		rec.state = models.TriggerStateBlocked
	}

	s.triggers[key] = rec
	if s.byJob[jobKey] == nil {
		s.byJob[jobKey] = make(map[models.Key]*triggerRecord)
	}
	s.byJob[jobKey][key] = rec
	if rec.state == models.TriggerStateWaiting {
		s.queueInsert(rec)
	}
	return nil
}

func (s *MemoryStore) RetrieveTrigger(key models.Key) (trigger.Trigger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.triggers[key]
	if !ok {
		return nil, models.ObjectNotFoundError{Kind: "trigger", Name: key.String()}
	}
	return rec.trig.Clone(), nil
}

func (s *MemoryStore) RemoveTrigger(key models.Key) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeTriggerLocked(key), nil
}

// removeTriggerLocked removes the trigger and, when it was the job's last
// trigger and the job is not durable, the job itself.
func (s *MemoryStore) removeTriggerLocked(key models.Key) bool {
	rec, ok := s.triggers[key]
	if !ok {
		return false
	}
	jobKey := rec.trig.JobKey()
	s.deleteTriggerRecordLocked(key)
	if job, ok := s.jobs[jobKey]; ok && !job.Durable && len(s.byJob[jobKey]) == 0 {
		delete(s.jobs, jobKey)
		delete(s.byJob, jobKey)
		delete(s.blockedJobs, jobKey)
	}
	return true
}

// deleteTriggerRecordLocked unlinks a record from all indexes without any
// job cleanup.
func (s *MemoryStore) deleteTriggerRecordLocked(key models.Key) {
	rec, ok := s.triggers[key]
	if !ok {
		return
	}
	delete(s.triggers, key)
	if m := s.byJob[rec.trig.JobKey()]; m != nil {
		delete(m, key)
	}
	s.queueRemove(rec)
}

func (s *MemoryStore) ReplaceTrigger(key models.Key, newTrigger trigger.Trigger) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.triggers[key]
	if !ok {
		return false, nil
	}
	if rec.trig.JobKey() != newTrigger.JobKey() {
		return false, models.NewValidationError(
			"replacement trigger %s must reference job %s", newTrigger.Key(), rec.trig.JobKey())
	}
	s.deleteTriggerRecordLocked(key)
	if err := s.storeTriggerLocked(newTrigger, false); err != nil {
		return false, err
	}
	return true, nil
}

func (s *MemoryStore) CheckTriggerExists(key models.Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.triggers[key]
	return ok
}

func (s *MemoryStore) TriggerState(key models.Key) models.TriggerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.triggers[key]
	if !ok {
		return models.TriggerStateNone
	}
	return rec.state
}

func (s *MemoryStore) ResetTriggerFromErrorState(key models.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.triggers[key]
	if !ok {
		return models.ObjectNotFoundError{Kind: "trigger", Name: key.String()}
	}
	if rec.state != models.TriggerStateError {
		return models.NewValidationError("trigger %s is not in the error state", key)
	}
	if s.pausedTriggerGroups[key.Group] || s.pausedJobGroups[rec.trig.JobKey().Group] {
		rec.state = models.TriggerStatePaused
		return nil
	}
	rec.state = models.TriggerStateWaiting
	s.queueInsert(rec)
	return nil
}

func (s *MemoryStore) TriggersForJob(jobKey models.Key) ([]trigger.Trigger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]trigger.Trigger, 0, len(s.byJob[jobKey]))
	for _, rec := range s.byJob[jobKey] {
		out = append(out, rec.trig.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key().Compare(out[j].Key()) < 0 })
	return out, nil
}

// ---- calendars ----

func (s *MemoryStore) StoreCalendar(name string, cal calendar.Calendar, replace, updateTriggers bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.calendars[name]; ok && !replace {
		return models.ObjectAlreadyExistsError{Kind: "calendar", Name: name}
	}
	stored := cal.Clone()
	s.calendars[name] = stored

	if !updateTriggers {
		return nil
	}
	now := s.clk.Now()
	for _, rec := range s.triggers {
		if rec.trig.CalendarName() != name {
			continue
		}
		inQueue := rec.state == models.TriggerStateWaiting
		if inQueue {
			s.queueRemove(rec)
		}
		rec.trig.UpdateWithNewCalendar(stored, s.misfireThreshold, now)
		if inQueue {
			if rec.trig.NextFireTime().IsZero() {
				s.completeTriggerLocked(rec)
			} else {
				s.queueInsert(rec)
			}
		}
	}
	return nil
}

func (s *MemoryStore) RetrieveCalendar(name string) (calendar.Calendar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cal, ok := s.calendars[name]
	if !ok {
		return nil, models.ObjectNotFoundError{Kind: "calendar", Name: name}
	}
	return cal.Clone(), nil
}

func (s *MemoryStore) RemoveCalendar(name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.calendars[name]; !ok {
		return false, nil
	}
	for _, rec := range s.triggers {
		if rec.trig.CalendarName() == name {
			return false, models.NewValidationError(
				"calendar %q is referenced by trigger %s", name, rec.trig.Key())
		}
	}
	delete(s.calendars, name)
	return true, nil
}

func (s *MemoryStore) CalendarNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.calendars))
	for name := range s.calendars {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ---- pause and resume ----

func (s *MemoryStore) PauseTrigger(key models.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.triggers[key]
	if !ok {
		return models.ObjectNotFoundError{Kind: "trigger", Name: key.String()}
	}
	s.pauseTriggerLocked(rec)
	return nil
}

func (s *MemoryStore) pauseTriggerLocked(rec *triggerRecord) {
	switch rec.state {
	case models.TriggerStateWaiting, models.TriggerStateAcquired:
		s.queueRemove(rec)
		rec.state = models.TriggerStatePaused
	case models.TriggerStateBlocked:
		rec.state = models.TriggerStatePausedBlocked
	}
}

func (s *MemoryStore) PauseTriggers(matcher models.Matcher) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	groups := make(map[string]bool)
	if gm, ok := matcher.(models.GroupMatcher); ok && gm.Op == models.OpEquals {
		// Remember the group even when empty so later arrivals pause too.
		groups[gm.Value] = true
	}
	for key, rec := range s.triggers {
		if matcher.Matches(key) {
			s.pauseTriggerLocked(rec)
			groups[key.Group] = true
		}
	}
	if _, isGroup := matcher.(models.GroupMatcher); isGroup {
		for g := range groups {
			s.pausedTriggerGroups[g] = true
		}
	}
	return sortedKeys(groups), nil
}

func (s *MemoryStore) ResumeTrigger(key models.Key) error {
	s.mu.Lock()
	rec, ok := s.triggers[key]
	if !ok {
		s.mu.Unlock()
		return models.ObjectNotFoundError{Kind: "trigger", Name: key.String()}
	}
	s.resumeTriggerLocked(rec)
	handler, misfired := s.takeMisfiresLocked()
	s.mu.Unlock()
	notifyMisfires(handler, misfired)
	return nil
}

func (s *MemoryStore) resumeTriggerLocked(rec *triggerRecord) {
	switch rec.state {
	case models.TriggerStatePausedBlocked:
		if s.blockedJobs[rec.trig.JobKey()] {
			rec.state = models.TriggerStateBlocked
			return
		}
	case models.TriggerStatePaused:
	default:
		return
	}
	s.applyMisfireLocked(rec, s.clk.Now())
	if rec.trig.NextFireTime().IsZero() {
		s.completeTriggerLocked(rec)
		return
	}
	rec.state = models.TriggerStateWaiting
	s.queueInsert(rec)
}

func (s *MemoryStore) ResumeTriggers(matcher models.Matcher) ([]string, error) {
	s.mu.Lock()
	groups := make(map[string]bool)
	if gm, ok := matcher.(models.GroupMatcher); ok {
		for g := range s.pausedTriggerGroups {
			if gm.Matches(models.Key{Name: "", Group: g}) {
				delete(s.pausedTriggerGroups, g)
				groups[g] = true
			}
		}
	}
	for key, rec := range s.triggers {
		if matcher.Matches(key) {
			s.resumeTriggerLocked(rec)
			groups[key.Group] = true
		}
	}
	handler, misfired := s.takeMisfiresLocked()
	s.mu.Unlock()
	notifyMisfires(handler, misfired)
	return sortedKeys(groups), nil
}

func (s *MemoryStore) PauseJob(key models.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[key]; !ok {
		return models.ObjectNotFoundError{Kind: "job", Name: key.String()}
	}
	for _, rec := range s.byJob[key] {
		s.pauseTriggerLocked(rec)
	}
	return nil
}

func (s *MemoryStore) PauseJobs(matcher models.Matcher) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	groups := make(map[string]bool)
	if gm, ok := matcher.(models.GroupMatcher); ok && gm.Op == models.OpEquals {
		groups[gm.Value] = true
	}
	for key := range s.jobs {
		if matcher.Matches(key) {
			groups[key.Group] = true
			for _, rec := range s.byJob[key] {
				s.pauseTriggerLocked(rec)
			}
		}
	}
	if _, isGroup := matcher.(models.GroupMatcher); isGroup {
		for g := range groups {
			s.pausedJobGroups[g] = true
		}
	}
	return sortedKeys(groups), nil
}

func (s *MemoryStore) ResumeJob(key models.Key) error {
	s.mu.Lock()
	if _, ok := s.jobs[key]; !ok {
		s.mu.Unlock()
		return models.ObjectNotFoundError{Kind: "job", Name: key.String()}
	}
	for _, rec := range s.byJob[key] {
		s.resumeTriggerLocked(rec)
	}
	handler, misfired := s.takeMisfiresLocked()
	s.mu.Unlock()
	notifyMisfires(handler, misfired)
	return nil
}

func (s *MemoryStore) ResumeJobs(matcher models.Matcher) ([]string, error) {
	s.mu.Lock()
	groups := make(map[string]bool)
	if gm, ok := matcher.(models.GroupMatcher); ok {
		for g := range s.pausedJobGroups {
			if gm.Matches(models.Key{Name: "", Group: g}) {
				delete(s.pausedJobGroups, g)
				groups[g] = true
			}
		}
	}
	for key := range s.jobs {
		if matcher.Matches(key) {
			groups[key.Group] = true
			for _, rec := range s.byJob[key] {
				s.resumeTriggerLocked(rec)
			}
		}
	}
	handler, misfired := s.takeMisfiresLocked()
	s.mu.Unlock()
	notifyMisfires(handler, misfired)
	return sortedKeys(groups), nil
}

func (s *MemoryStore) PauseAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.triggers {
		s.pausedTriggerGroups[rec.trig.Key().Group] = true
		s.pauseTriggerLocked(rec)
	}
	return nil
}

func (s *MemoryStore) ResumeAll() error {
	s.mu.Lock()
	s.pausedTriggerGroups = make(map[string]bool)
	s.pausedJobGroups = make(map[string]bool)
	for _, rec := range s.triggers {
		s.resumeTriggerLocked(rec)
	}
	handler, misfired := s.takeMisfiresLocked()
	s.mu.Unlock()
	notifyMisfires(handler, misfired)
	return nil
}

func (s *MemoryStore) PausedTriggerGroups() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedKeys(s.pausedTriggerGroups)
}

// ---- queries ----

func (s *MemoryStore) JobKeys(matcher models.Matcher) []models.Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Key, 0, len(s.jobs))
	for key := range s.jobs {
		if matcher == nil || matcher.Matches(key) {
			out = append(out, key)
		}
	}
	sortKeys(out)
	return out
}

func (s *MemoryStore) TriggerKeys(matcher models.Matcher) []models.Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Key, 0, len(s.triggers))
	for key := range s.triggers {
		if matcher == nil || matcher.Matches(key) {
			out = append(out, key)
		}
	}
	sortKeys(out)
	return out
}

func (s *MemoryStore) JobGroupNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	groups := make(map[string]bool)
	for key := range s.jobs {
		groups[key.Group] = true
	}
	return sortedKeys(groups)
}

func (s *MemoryStore) TriggerGroupNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	groups := make(map[string]bool)
	for key := range s.triggers {
		groups[key.Group] = true
	}
	return sortedKeys(groups)
}

func (s *MemoryStore) NumberOfJobs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func (s *MemoryStore) NumberOfTriggers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.triggers)
}

func (s *MemoryStore) NumberOfCalendars() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calendars)
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = make(map[models.Key]*models.JobDetail)
	s.triggers = make(map[models.Key]*triggerRecord)
	s.byJob = make(map[models.Key]map[models.Key]*triggerRecord)
	s.calendars = make(map[string]calendar.Calendar)
	s.queue = nil
	s.pausedTriggerGroups = make(map[string]bool)
	s.pausedJobGroups = make(map[string]bool)
	s.blockedJobs = make(map[models.Key]bool)
	return nil
}

// ---- fire cycle ----

func (s *MemoryStore) AcquireNextTriggers(noLaterThan time.Time, maxCount int, timeWindow time.Duration) ([]trigger.Trigger, error) {
	s.mu.Lock()
	now := s.clk.Now()

	var acquired []trigger.Trigger
	usedJobs := make(map[models.Key]bool)
	var batchEnd time.Time

	i := 0
	for i < len(s.queue) && len(acquired) < maxCount {
		rec := s.queue[i]
		next := rec.trig.NextFireTime()
		if next.IsZero() {
			s.queueRemoveAt(i)
			s.completeTriggerLocked(rec)
			continue
		}
		if s.applyMisfireLocked(rec, now) {
			s.queueRemoveAt(i)
			if rec.trig.NextFireTime().IsZero() {
				s.completeTriggerLocked(rec)
			} else {
				s.queueInsert(rec)
			}
			// The queue order changed under us; rescan from the front.
			i = 0
			continue
		}
		limit := noLaterThan
		if !batchEnd.IsZero() {
			limit = batchEnd
		}
		if next.After(limit) {
			break
		}

		jobKey := rec.trig.JobKey()
		if job := s.jobs[jobKey]; job != nil && job.DisallowConcurrent && usedJobs[jobKey] {
			i++
			continue
		}
		usedJobs[jobKey] = true

		s.queueRemoveAt(i)
		rec.state = models.TriggerStateAcquired
		rec.trig.SetFireInstanceID(uuid.New().String())
		if batchEnd.IsZero() {
			from := next
			if from.Before(now) {
				from = now
			}
			batchEnd = from.Add(timeWindow)
		}
		acquired = append(acquired, rec.trig.Clone())
	}
	handler, misfired := s.takeMisfiresLocked()
	s.mu.Unlock()
	notifyMisfires(handler, misfired)
	return acquired, nil
}

func (s *MemoryStore) ReleaseAcquiredTrigger(t trigger.Trigger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.triggers[t.Key()]
	if !ok || rec.state != models.TriggerStateAcquired {
		return
	}
	rec.state = models.TriggerStateWaiting
	s.queueInsert(rec)
}

func (s *MemoryStore) TriggersFired(triggers []trigger.Trigger) ([]*TriggerFiredResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clk.Now()

	results := make([]*TriggerFiredResult, 0, len(triggers))
	for _, t := range triggers {
		rec, ok := s.triggers[t.Key()]
		if !ok || rec.state != models.TriggerStateAcquired {
			results = append(results, nil)
			continue
		}
		var cal calendar.Calendar
		if name := rec.trig.CalendarName(); name != "" {
			cal = s.calendars[name]
			if cal == nil {
				results = append(results, nil)
				continue
			}
		}
		job := s.jobs[rec.trig.JobKey()]
		if job == nil {
			results = append(results, nil)
			continue
		}

		scheduled := rec.trig.NextFireTime()
		prev := rec.trig.PreviousFireTime()
		rec.trig.Triggered(cal)
		rec.state = models.TriggerStateExecuting

		if job.DisallowConcurrent {
			for _, other := range s.byJob[job.Key] {
				if other == rec {
					continue
				}
				switch other.state {
				case models.TriggerStateWaiting, models.TriggerStateAcquired:
					s.queueRemove(other)
					other.state = models.TriggerStateBlocked
				case models.TriggerStatePaused:
					other.state = models.TriggerStatePausedBlocked
				}
			}
			s.blockedJobs[job.Key] = true
		}

		results = append(results, &TriggerFiredResult{
			Trigger:           rec.trig.Clone(),
			Job:               job.Clone(),
			Calendar:          cal,
			FireTime:          now,
			ScheduledFireTime: scheduled,
			PrevFireTime:      prev,
			NextFireTime:      rec.trig.NextFireTime(),
		})
	}
	return results, nil
}

func (s *MemoryStore) TriggeredJobComplete(t trigger.Trigger, job *models.JobDetail, instruction models.CompletedExecutionInstruction) {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobKey := t.JobKey()
	stored := s.jobs[jobKey]
	if stored != nil && stored.PersistDataAfterExecution && job != nil {
		stored.DataMap = job.DataMap.Clone()
	}
	if stored != nil && stored.DisallowConcurrent {
		delete(s.blockedJobs, jobKey)
		for _, other := range s.byJob[jobKey] {
			switch other.state {
			case models.TriggerStateBlocked:
				other.state = models.TriggerStateWaiting
				s.queueInsert(other)
			case models.TriggerStatePausedBlocked:
				other.state = models.TriggerStatePaused
			}
		}
	}

	rec, ok := s.triggers[t.Key()]
	if !ok {
		return
	}

	switch instruction {
	case models.InstructionNoop:
		if rec.state != models.TriggerStateExecuting {
			return
		}
		if rec.trig.NextFireTime().IsZero() {
			s.completeTriggerLocked(rec)
			return
		}
		if s.pausedTriggerGroups[rec.trig.Key().Group] || s.pausedJobGroups[jobKey.Group] {
			rec.state = models.TriggerStatePaused
			return
		}
		rec.state = models.TriggerStateWaiting
		s.queueInsert(rec)
	case models.InstructionReExecuteJob:
		// The engine re-dispatches; the trigger stays executing.
	case models.InstructionSetTriggerComplete:
		s.completeTriggerLocked(rec)
	case models.InstructionDeleteTrigger:
		s.removeTriggerLocked(rec.trig.Key())
	case models.InstructionSetAllJobTriggersComplete:
		for _, other := range s.byJob[jobKey] {
			s.completeTriggerLocked(other)
		}
	case models.InstructionSetTriggerError:
		s.log.Warn("trigger moved to error state",
			zap.String("trigger", rec.trig.Key().String()),
			zap.String("job", jobKey.String()))
		s.queueRemove(rec)
		rec.state = models.TriggerStateError
	case models.InstructionSetAllJobTriggersError:
		s.log.Warn("all triggers of job moved to error state",
			zap.String("job", jobKey.String()))
		for _, other := range s.byJob[jobKey] {
			s.queueRemove(other)
			other.state = models.TriggerStateError
		}
	}
}

// completeTriggerLocked parks the record in the COMPLETE state. When the job
// is not durable and every one of its triggers has completed, the job and
// those trigger records are dropped.
func (s *MemoryStore) completeTriggerLocked(rec *triggerRecord) {
	s.queueRemove(rec)
	rec.state = models.TriggerStateComplete

	jobKey := rec.trig.JobKey()
	job := s.jobs[jobKey]
	if job == nil || job.Durable {
		return
	}
	for _, other := range s.byJob[jobKey] {
		if other.state != models.TriggerStateComplete {
			return
		}
	}
	for tk := range s.byJob[jobKey] {
		s.deleteTriggerRecordLocked(tk)
	}
	delete(s.byJob, jobKey)
	delete(s.jobs, jobKey)
	delete(s.blockedJobs, jobKey)
}

// applyMisfireLocked checks a trigger against the misfire threshold and, when
// it has misfired, records a handler notification (delivered after the
// transaction) and applies the trigger's misfire instruction. Reports whether
// the next fire time changed.
func (s *MemoryStore) applyMisfireLocked(rec *triggerRecord, now time.Time) bool {
	misfireTime := now
	if s.misfireThreshold > 0 {
		misfireTime = misfireTime.Add(-s.misfireThreshold)
	}
	next := rec.trig.NextFireTime()
	if next.IsZero() || next.After(misfireTime) ||
		rec.trig.MisfireInstruction() == trigger.MisfireIgnorePolicy {
		return false
	}

	var cal calendar.Calendar
	if name := rec.trig.CalendarName(); name != "" {
		cal = s.calendars[name]
	}
	if s.misfireHandler != nil {
		s.pendingMisfires = append(s.pendingMisfires, rec.trig.Clone())
	}
	rec.trig.UpdateAfterMisfire(cal, now)

	updated := rec.trig.NextFireTime()
	if updated.IsZero() {
		return true
	}
	return !next.Equal(updated)
}

// takeMisfiresLocked hands the pending misfire notifications to the caller,
// which delivers them once the mutex is released. The handler therefore runs
// outside any store transaction and may call back into the store.
func (s *MemoryStore) takeMisfiresLocked() (MisfireHandler, []trigger.Trigger) {
	misfired := s.pendingMisfires
	s.pendingMisfires = nil
	return s.misfireHandler, misfired
}

func notifyMisfires(handler MisfireHandler, misfired []trigger.Trigger) {
	if handler == nil {
		return
	}
	for _, t := range misfired {
		handler(t)
	}
}

// ---- time-ordered queue ----

func triggerLess(a, b *triggerRecord) bool {
	at, bt := a.trig.NextFireTime(), b.trig.NextFireTime()
	if !at.Equal(bt) {
		return at.Before(bt)
	}
	if a.trig.Priority() != b.trig.Priority() {
		return a.trig.Priority() > b.trig.Priority()
	}
	return a.trig.Key().Compare(b.trig.Key()) < 0
}

func (s *MemoryStore) queueInsert(rec *triggerRecord) {
	i := sort.Search(len(s.queue), func(i int) bool { return triggerLess(rec, s.queue[i]) })
	s.queue = append(s.queue, nil)
	copy(s.queue[i+1:], s.queue[i:])
	s.queue[i] = rec
}

func (s *MemoryStore) queueRemove(rec *triggerRecord) {
	for i, r := range s.queue {
		if r == rec {
			s.queueRemoveAt(i)
			return
		}
	}
}

func (s *MemoryStore) queueRemoveAt(i int) {
	copy(s.queue[i:], s.queue[i+1:])
	s.queue[len(s.queue)-1] = nil
	s.queue = s.queue[:len(s.queue)-1]
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortKeys(keys []models.Key) {
	sort.Slice(keys, func(i, j int) bool { return keys[i].Compare(keys[j]) < 0 })
}
