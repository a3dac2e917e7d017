package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// ExecutionStatus represents the lifecycle state of one workflow run.
type ExecutionStatus string

const (
	ExecutionStatusPending         ExecutionStatus = "pending"
	ExecutionStatusRunning         ExecutionStatus = "running"
	ExecutionStatusSuccess         ExecutionStatus = "success"
	ExecutionStatusFailed          ExecutionStatus = "failed"
	ExecutionStatusWaitingApproval ExecutionStatus = "waiting_approval"
	ExecutionStatusCancelled       ExecutionStatus = "cancelled"
)

// String returns the string representation of ExecutionStatus.
func (s ExecutionStatus) String() string {
	return string(s)
}

// IsValid checks if the ExecutionStatus is a known value.
func (s ExecutionStatus) IsValid() bool {
	switch s {
	case ExecutionStatusPending, ExecutionStatusRunning, ExecutionStatusSuccess,
		ExecutionStatusFailed, ExecutionStatusWaitingApproval, ExecutionStatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status admits no further transitions.
// waiting_approval is not terminal: the run resumes on approval.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionStatusSuccess, ExecutionStatusFailed, ExecutionStatusCancelled:
		return true
	default:
		return false
	}
}

// UnmarshalJSON implements json.Unmarshaler with value validation.
func (s *ExecutionStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}

	status := ExecutionStatus(str)
	if !status.IsValid() {
		return fmt.Errorf("invalid execution status: %s", str)
	}

	*s = status
	return nil
}

// StepStatus represents the state of one step within an execution.
// Transitions are monotone: pending → running → one of the rest; a
// status never regresses.
type StepStatus string

const (
	StepStatusPending         StepStatus = "pending"
	StepStatusRunning         StepStatus = "running"
	StepStatusSuccess         StepStatus = "success"
	StepStatusFailed          StepStatus = "failed"
	StepStatusSkipped         StepStatus = "skipped"
	StepStatusWaitingApproval StepStatus = "waiting_approval"
)

// String returns the string representation of StepStatus.
func (s StepStatus) String() string {
	return string(s)
}

// IsValid checks if the StepStatus is a known value.
func (s StepStatus) IsValid() bool {
	switch s {
	case StepStatusPending, StepStatusRunning, StepStatusSuccess,
		StepStatusFailed, StepStatusSkipped, StepStatusWaitingApproval:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether a step in this status has finished its
// node body. waiting_approval is terminal at the step level: the engine
// suspends and a resumed run re-marks the step.
func (s StepStatus) IsTerminal() bool {
	switch s {
	case StepStatusSuccess, StepStatusFailed, StepStatusSkipped, StepStatusWaitingApproval:
		return true
	default:
		return false
	}
}

// rank orders statuses along the allowed progression for monotonicity
// checks. Terminal statuses share the top rank.
func (s StepStatus) rank() int {
	switch s {
	case StepStatusPending:
		return 0
	case StepStatusRunning:
		return 1
	default:
		return 2
	}
}

// CanTransitionTo reports whether moving from s to next preserves the
// monotone pending → running → terminal progression.
func (s StepStatus) CanTransitionTo(next StepStatus) bool {
	if s == next {
		return true
	}
	if s.IsTerminal() {
		// Only an approval resume may move waiting_approval forward.
		return s == StepStatusWaitingApproval && next == StepStatusSuccess
	}
	return next.rank() > s.rank()
}

// UnmarshalJSON implements json.Unmarshaler with value validation.
func (s *StepStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}

	status := StepStatus(str)
	if !status.IsValid() {
		return fmt.Errorf("invalid step status: %s", str)
	}

	*s = status
	return nil
}

// Execution is one run of a workflow. Finalized at its terminal
// transition and never mutated thereafter.
type Execution struct {
	ID             ID              `json:"id"`
	WorkflowID     ID              `json:"workflow_id"`
	Status         ExecutionStatus `json:"status"`
	InputVariables map[string]any  `json:"input_variables,omitempty"`
	FinalVariables map[string]any  `json:"final_variables,omitempty"`
	Error          string          `json:"error,omitempty"`
	ErrorStepID    *ID             `json:"error_step_id,omitempty"`
	StartedAt      time.Time       `json:"started_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
}

// Duration returns the wall-clock duration of the execution, or the
// elapsed time so far when it has not completed.
func (e *Execution) Duration() time.Duration {
	if e.CompletedAt != nil {
		return e.CompletedAt.Sub(e.StartedAt)
	}
	return time.Since(e.StartedAt)
}

// StepExecution records one attempted step within an execution.
type StepExecution struct {
	ID          ID             `json:"id"`
	ExecutionID ID             `json:"execution_id"`
	StepID      ID             `json:"step_id"`
	StepName    string         `json:"step_name"`
	Status      StepStatus     `json:"status"`
	Output      map[string]any `json:"output,omitempty"`
	Logs        []string       `json:"logs,omitempty"`
	Error       string         `json:"error,omitempty"`
	RetryCount  int            `json:"retry_count"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// TriggerType classifies how an execution gets initiated.
type TriggerType string

const (
	TriggerTypeManual    TriggerType = "manual"
	TriggerTypeScheduled TriggerType = "scheduled"
	TriggerTypeEvent     TriggerType = "event"
	TriggerTypeWebhook   TriggerType = "webhook"
)

// String returns the string representation of TriggerType.
func (t TriggerType) String() string {
	return string(t)
}

// IsValid checks if the TriggerType is a known value.
func (t TriggerType) IsValid() bool {
	switch t {
	case TriggerTypeManual, TriggerTypeScheduled, TriggerTypeEvent, TriggerTypeWebhook:
		return true
	default:
		return false
	}
}

// Trigger binds a workflow to an initiation source. The scheduler that
// fires scheduled triggers lives outside the core; the store and the
// fired-counters are maintained here.
type Trigger struct {
	ID              ID             `json:"id"`
	WorkflowID      ID             `json:"workflow_id"`
	Type            TriggerType    `json:"trigger_type"`
	Config          map[string]any `json:"config,omitempty"`
	Enabled         bool           `json:"enabled"`
	LastTriggeredAt *time.Time     `json:"last_triggered_at,omitempty"`
	NextTriggerAt   *time.Time     `json:"next_trigger_at,omitempty"`
	TriggerCount    int            `json:"trigger_count"`
	CreatedAt       time.Time      `json:"created_at"`
}
