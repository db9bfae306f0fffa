package scheduler

import (
	"sync"

	"github.com/dhima/chronos/internal/models"
	"github.com/dhima/chronos/internal/trigger"
)

// TriggerListener observes the firing lifecycle of triggers it matches.
type TriggerListener interface {
	Name() string
	TriggerFired(jec *JobExecutionContext)
	// VetoJobExecution may return true to cancel the execution; the trigger
	// still advances.
	VetoJobExecution(jec *JobExecutionContext) bool
	TriggerMisfired(t trigger.Trigger)
	TriggerComplete(jec *JobExecutionContext, instruction models.CompletedExecutionInstruction)
}

// JobListener observes job executions for jobs it matches.
type JobListener interface {
	Name() string
	JobToBeExecuted(jec *JobExecutionContext)
	JobExecutionVetoed(jec *JobExecutionContext)
	JobWasExecuted(jec *JobExecutionContext, err error)
}

// SchedulerListener observes scheduler-level events.
type SchedulerListener interface {
	JobScheduled(t trigger.Trigger)
	JobUnscheduled(triggerKey models.Key)
	JobDeleted(jobKey models.Key)
	TriggerPaused(triggerKey models.Key)
	TriggersPaused(group string)
	TriggerResumed(triggerKey models.Key)
	TriggersResumed(group string)
	SchedulerStarted()
	SchedulerInStandby()
	SchedulerShutdown()
	SchedulingDataCleared()
}

// TriggerListenerBase is a no-op TriggerListener for embedding.
type TriggerListenerBase struct{}

func (TriggerListenerBase) TriggerFired(*JobExecutionContext)          {}
func (TriggerListenerBase) VetoJobExecution(*JobExecutionContext) bool { return false }
func (TriggerListenerBase) TriggerMisfired(trigger.Trigger)            {}
func (TriggerListenerBase) TriggerComplete(*JobExecutionContext, models.CompletedExecutionInstruction) {
}

// JobListenerBase is a no-op JobListener for embedding.
type JobListenerBase struct{}

func (JobListenerBase) JobToBeExecuted(*JobExecutionContext)         {}
func (JobListenerBase) JobExecutionVetoed(*JobExecutionContext)      {}
func (JobListenerBase) JobWasExecuted(*JobExecutionContext, error)   {}

// SchedulerListenerBase is a no-op SchedulerListener for embedding.
type SchedulerListenerBase struct{}

func (SchedulerListenerBase) JobScheduled(trigger.Trigger)   {}
func (SchedulerListenerBase) JobUnscheduled(models.Key)      {}
func (SchedulerListenerBase) JobDeleted(models.Key)          {}
func (SchedulerListenerBase) TriggerPaused(models.Key)       {}
func (SchedulerListenerBase) TriggersPaused(string)          {}
func (SchedulerListenerBase) TriggerResumed(models.Key)      {}
func (SchedulerListenerBase) TriggersResumed(string)         {}
func (SchedulerListenerBase) SchedulerStarted()              {}
func (SchedulerListenerBase) SchedulerInStandby()            {}
func (SchedulerListenerBase) SchedulerShutdown()             {}
func (SchedulerListenerBase) SchedulingDataCleared()         {}

type jobListenerEntry struct {
	listener JobListener
	matchers []models.Matcher
}

type triggerListenerEntry struct {
	listener TriggerListener
	matchers []models.Matcher
}

// ListenerManager registers listeners and their key matchers. Listeners are
// notified in registration order; matchers on one listener combine with OR,
// and a listener with no matchers matches everything. Notification iterates
// over a snapshot, so listeners may add or remove listeners from callbacks.
type ListenerManager struct {
	mu                 sync.RWMutex
	jobListeners       []jobListenerEntry
	triggerListeners   []triggerListenerEntry
	schedulerListeners []SchedulerListener
}

func NewListenerManager() *ListenerManager {
	return &ListenerManager{}
}

// AddJobListener registers a job listener. A listener with the same name
// replaces the existing registration in place.
func (m *ListenerManager) AddJobListener(l JobListener, matchers ...models.Matcher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.jobListeners {
		if e.listener.Name() == l.Name() {
			m.jobListeners[i] = jobListenerEntry{listener: l, matchers: matchers}
			return
		}
	}
	m.jobListeners = append(m.jobListeners, jobListenerEntry{listener: l, matchers: matchers})
}

// RemoveJobListener deregisters by name.
func (m *ListenerManager) RemoveJobListener(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.jobListeners {
		if e.listener.Name() == name {
			m.jobListeners = append(m.jobListeners[:i], m.jobListeners[i+1:]...)
			return true
		}
	}
	return false
}

// AddTriggerListener registers a trigger listener, replacing any listener
// with the same name.
func (m *ListenerManager) AddTriggerListener(l TriggerListener, matchers ...models.Matcher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.triggerListeners {
		if e.listener.Name() == l.Name() {
			m.triggerListeners[i] = triggerListenerEntry{listener: l, matchers: matchers}
			return
		}
	}
	m.triggerListeners = append(m.triggerListeners, triggerListenerEntry{listener: l, matchers: matchers})
}

// RemoveTriggerListener deregisters by name.
func (m *ListenerManager) RemoveTriggerListener(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.triggerListeners {
		if e.listener.Name() == name {
			m.triggerListeners = append(m.triggerListeners[:i], m.triggerListeners[i+1:]...)
			return true
		}
	}
	return false
}

// AddSchedulerListener registers a scheduler listener.
func (m *ListenerManager) AddSchedulerListener(l SchedulerListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedulerListeners = append(m.schedulerListeners, l)
}

func matcherSetMatches(matchers []models.Matcher, key models.Key) bool {
	if len(matchers) == 0 {
		return true
	}
	for _, m := range matchers {
		if m.Matches(key) {
			return true
		}
	}
	return false
}

// jobListenersFor snapshots the job listeners matching the given job key.
func (m *ListenerManager) jobListenersFor(key models.Key) []JobListener {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []JobListener
	for _, e := range m.jobListeners {
		if matcherSetMatches(e.matchers, key) {
			out = append(out, e.listener)
		}
	}
	return out
}

// triggerListenersFor snapshots the trigger listeners matching the given
// trigger key.
func (m *ListenerManager) triggerListenersFor(key models.Key) []TriggerListener {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []TriggerListener
	for _, e := range m.triggerListeners {
		if matcherSetMatches(e.matchers, key) {
			out = append(out, e.listener)
		}
	}
	return out
}

// schedulerListenersSnapshot copies the scheduler listener list.
func (m *ListenerManager) schedulerListenersSnapshot() []SchedulerListener {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]SchedulerListener(nil), m.schedulerListeners...)
}
