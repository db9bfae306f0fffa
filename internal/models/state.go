package models

// TriggerState is the runtime state of a trigger, held by the store.
type TriggerState string

const (
	TriggerStateNone          TriggerState = "NONE"
	TriggerStateWaiting       TriggerState = "WAITING"
	TriggerStateAcquired      TriggerState = "ACQUIRED"
	TriggerStateExecuting     TriggerState = "EXECUTING"
	TriggerStateComplete      TriggerState = "COMPLETE"
	TriggerStatePaused        TriggerState = "PAUSED"
	TriggerStatePausedBlocked TriggerState = "PAUSED_BLOCKED"
	TriggerStateBlocked       TriggerState = "BLOCKED"
	TriggerStateError         TriggerState = "ERROR"
)

// validTriggerStates enumerates all accepted state values.
var validTriggerStates = map[TriggerState]bool{
	TriggerStateNone:          true,
	TriggerStateWaiting:       true,
	TriggerStateAcquired:      true,
	TriggerStateExecuting:     true,
	TriggerStateComplete:      true,
	TriggerStatePaused:        true,
	TriggerStatePausedBlocked: true,
	TriggerStateBlocked:       true,
	TriggerStateError:         true,
}

// IsValid returns true if the state is one of the recognized values.
func (s TriggerState) IsValid() bool { return validTriggerStates[s] }

// CompletedExecutionInstruction tells the store what to do with a trigger
// once its job execution has finished.
type CompletedExecutionInstruction int

const (
	InstructionNoop CompletedExecutionInstruction = iota
	InstructionReExecuteJob
	InstructionSetTriggerComplete
	InstructionDeleteTrigger
	InstructionSetAllJobTriggersComplete
	InstructionSetTriggerError
	InstructionSetAllJobTriggersError
)

func (i CompletedExecutionInstruction) String() string {
	switch i {
	case InstructionNoop:
		return "NOOP"
	case InstructionReExecuteJob:
		return "RE_EXECUTE_JOB"
	case InstructionSetTriggerComplete:
		return "SET_TRIGGER_COMPLETE"
	case InstructionDeleteTrigger:
		return "DELETE_TRIGGER"
	case InstructionSetAllJobTriggersComplete:
		return "SET_ALL_JOB_TRIGGERS_COMPLETE"
	case InstructionSetTriggerError:
		return "SET_TRIGGER_ERROR"
	case InstructionSetAllJobTriggersError:
		return "SET_ALL_JOB_TRIGGERS_ERROR"
	default:
		return "UNKNOWN"
	}
}
