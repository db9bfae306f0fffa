package models

import "fmt"

// ValidationError represents user-facing validation issues.
type ValidationError struct {
	msg string
}

func (e ValidationError) Error() string { return e.msg }

// NewValidationError creates a new validation error.
func NewValidationError(format string, args ...interface{}) error {
	return ValidationError{msg: fmt.Sprintf(format, args...)}
}

// ObjectAlreadyExistsError reports a store insertion conflict.
type ObjectAlreadyExistsError struct {
	Kind string // "job", "trigger" or "calendar"
	Name string
}

func (e ObjectAlreadyExistsError) Error() string {
	return fmt.Sprintf("%s %q already exists", e.Kind, e.Name)
}

// ObjectNotFoundError reports a store lookup miss on an operation that
// requires presence.
type ObjectNotFoundError struct {
	Kind string
	Name string
}

func (e ObjectNotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Name)
}

// JobExecutionError is raised by user jobs to steer what happens after the
// failed execution. Refire dominates the unschedule flags.
type JobExecutionError struct {
	Refire         bool
	UnscheduleThis bool
	UnscheduleAll  bool
	Cause          error
}

func (e *JobExecutionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("job execution failed: %v", e.Cause)
	}
	return "job execution failed"
}

func (e *JobExecutionError) Unwrap() error { return e.Cause }

// UnableToInterruptJobError signals that a running job does not support
// cooperative interruption.
type UnableToInterruptJobError struct {
	JobKey Key
}

func (e UnableToInterruptJobError) Error() string {
	return fmt.Sprintf("job %s cannot be interrupted: it does not implement the interruptable capability", e.JobKey)
}

// SchedulerError wraps unexpected store or listener faults so they surface
// with scheduler context attached.
type SchedulerError struct {
	Op  string
	Err error
}

func (e *SchedulerError) Error() string {
	return fmt.Sprintf("scheduler: %s: %v", e.Op, e.Err)
}

func (e *SchedulerError) Unwrap() error { return e.Err }
