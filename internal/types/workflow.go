package types

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// WorkflowStatus represents the lifecycle state of a workflow definition.
type WorkflowStatus string

const (
	WorkflowStatusDraft    WorkflowStatus = "draft"
	WorkflowStatusActive   WorkflowStatus = "active"
	WorkflowStatusArchived WorkflowStatus = "archived"
)

// String returns the string representation of WorkflowStatus.
func (s WorkflowStatus) String() string {
	return string(s)
}

// IsValid checks if the WorkflowStatus is a known value.
func (s WorkflowStatus) IsValid() bool {
	switch s {
	case WorkflowStatusDraft, WorkflowStatusActive, WorkflowStatusArchived:
		return true
	default:
		return false
	}
}

// UnmarshalJSON implements json.Unmarshaler with value validation.
func (s *WorkflowStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}

	status := WorkflowStatus(str)
	if !status.IsValid() {
		return fmt.Errorf("invalid workflow status: %s", str)
	}

	*s = status
	return nil
}

// StepType identifies what kind of work a step performs. The dispatcher
// branches on this tag; adding a type means adding a dispatcher case, a
// config schema, and a validator entry.
type StepType string

const (
	StepTypeLLMCall       StepType = "llm_call"
	StepTypeAPICall       StepType = "api_call"
	StepTypePythonScript  StepType = "python_script"
	StepTypeCondition     StepType = "condition"
	StepTypeApproval      StepType = "approval"
	StepTypeNotification  StepType = "notification"
	StepTypeDataTransform StepType = "data_transform"
)

// String returns the string representation of StepType.
func (t StepType) String() string {
	return string(t)
}

// IsValid checks if the StepType is a known value.
func (t StepType) IsValid() bool {
	switch t {
	case StepTypeLLMCall, StepTypeAPICall, StepTypePythonScript,
		StepTypeCondition, StepTypeApproval, StepTypeNotification,
		StepTypeDataTransform:
		return true
	default:
		return false
	}
}

// UnmarshalJSON implements json.Unmarshaler with value validation.
func (t *StepType) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}

	st := StepType(str)
	if !st.IsValid() {
		return fmt.Errorf("invalid step type: %s", str)
	}

	*t = st
	return nil
}

// RetryConfig bounds the per-step retry loop run by the engine.
// Retries never rewind graph state; they re-invoke the same step.
type RetryConfig struct {
	MaxRetries        int     `json:"max_retries" mapstructure:"max_retries"`
	RetryDelaySeconds float64 `json:"retry_delay_seconds" mapstructure:"retry_delay_seconds"`
}

// Step is one unit of work within a workflow.
//
// InputMapping maps a step-local name to a workflow variable name; the
// dispatcher projects the step's view of the variables through it.
// OutputMapping maps a workflow variable name to a key path into the
// step's structured output; the engine folds results back through it.
type Step struct {
	ID            ID                `json:"id"`
	WorkflowID    ID                `json:"workflow_id"`
	Order         int               `json:"order"`
	Name          string            `json:"name"`
	Type          StepType          `json:"step_type"`
	Config        map[string]any    `json:"config,omitempty"`
	Code          string            `json:"code,omitempty"`
	InputMapping  map[string]string `json:"input_mapping,omitempty"`
	OutputMapping map[string]string `json:"output_mapping,omitempty"`
	RetryConfig   *RetryConfig      `json:"retry_config,omitempty"`
	Condition     string            `json:"condition,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// Validate checks step-level structural requirements.
func (s *Step) Validate() error {
	if s.Name == "" {
		return NewError(STEP_INVALID, "step name cannot be empty")
	}
	if !s.Type.IsValid() {
		return NewError(STEP_INVALID, fmt.Sprintf("step %q: invalid step type %q", s.Name, s.Type))
	}
	if s.Type == StepTypePythonScript && s.Code == "" {
		return NewError(STEP_INVALID, fmt.Sprintf("step %q: python_script steps require a code body", s.Name))
	}
	if s.RetryConfig != nil && s.RetryConfig.MaxRetries < 0 {
		return NewError(STEP_INVALID, fmt.Sprintf("step %q: max_retries must be non-negative", s.Name))
	}
	return nil
}

// Workflow is an ordered, persisted plan of steps plus initial variables.
// Every modification allocates a new Version; prior definitions are kept
// as version records.
type Workflow struct {
	ID          ID             `json:"id"`
	Version     int            `json:"version"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	FolderID    *ID            `json:"folder_id,omitempty"`
	Status      WorkflowStatus `json:"status"`
	Steps       []Step         `json:"steps"`
	Variables   map[string]any `json:"variables,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Validate checks the workflow and all its steps.
func (w *Workflow) Validate() error {
	if w.Name == "" {
		return NewError(WORKFLOW_INVALID, "workflow name cannot be empty")
	}
	if w.Status != "" && !w.Status.IsValid() {
		return NewError(WORKFLOW_INVALID, fmt.Sprintf("invalid workflow status %q", w.Status))
	}
	for i := range w.Steps {
		if err := w.Steps[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// OrderedSteps returns the steps sorted by Order, ties broken by ID.
// Order is dense but need not be contiguous.
func (w *Workflow) OrderedSteps() []Step {
	steps := make([]Step, len(w.Steps))
	copy(steps, w.Steps)
	sort.SliceStable(steps, func(i, j int) bool {
		if steps[i].Order != steps[j].Order {
			return steps[i].Order < steps[j].Order
		}
		return steps[i].ID < steps[j].ID
	})
	return steps
}

// Folder groups workflows for browsing. Flat, no nesting.
type Folder struct {
	ID          ID        `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// WorkflowVersion preserves a workflow definition as it was before a
// modification. Definition holds the full serialized workflow.
type WorkflowVersion struct {
	ID            ID             `json:"id"`
	WorkflowID    ID             `json:"workflow_id"`
	Version       int            `json:"version"`
	Name          string         `json:"name"`
	Description   string         `json:"description,omitempty"`
	Definition    map[string]any `json:"definition"`
	ChangeSummary string         `json:"change_summary,omitempty"`
	ChangedBy     string         `json:"changed_by,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}
