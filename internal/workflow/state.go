package workflow

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/kimjoonhwaan/metaworkflow/internal/types"
)

// StepError records one step failure in insertion order.
type StepError struct {
	StepID    string    `json:"step_id"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// ExecutionState is the in-memory working set while a graph runs. It is
// owned by the goroutine driving the execution; checkpoints are
// snapshots taken by that owner. The mutex guards the monitoring reads
// (logs, statuses) that may come from other goroutines.
type ExecutionState struct {
	WorkflowID  types.ID `json:"workflow_id"`
	ExecutionID types.ID `json:"execution_id"`

	// CurrentStepIndex counts steps entered so far.
	CurrentStepIndex int `json:"current_step_index"`

	// StepStatuses is monotone per step: pending → running → terminal.
	StepStatuses map[string]types.StepStatus `json:"step_statuses"`

	// Variables is the shared working mapping steps read and write
	// through their input/output mappings.
	Variables map[string]any `json:"variables"`

	// StepOutputs holds the structured output of each completed step,
	// set exactly once per step.
	StepOutputs map[string]any `json:"step_outputs"`

	// Errors accumulates step failures in insertion order.
	Errors []StepError `json:"errors,omitempty"`

	// ShouldStop freezes every pending step once set.
	ShouldStop bool `json:"should_stop"`

	// WaitingApproval suspends the run at ApprovalStepID.
	WaitingApproval bool   `json:"waiting_approval"`
	ApprovalStepID  string `json:"approval_step_id,omitempty"`

	Logs []string `json:"logs,omitempty"`

	mu sync.RWMutex
}

// NewExecutionState creates a state for one run with every step pending.
func NewExecutionState(workflowID, executionID types.ID, steps []types.Step, variables map[string]any) *ExecutionState {
	statuses := make(map[string]types.StepStatus, len(steps))
	for _, step := range steps {
		statuses[step.ID.String()] = types.StepStatusPending
	}

	vars := make(map[string]any, len(variables))
	for name, value := range variables {
		vars[name] = value
	}

	return &ExecutionState{
		WorkflowID:   workflowID,
		ExecutionID:  executionID,
		StepStatuses: statuses,
		Variables:    vars,
		StepOutputs:  make(map[string]any),
	}
}

// Status returns the current status of one step.
func (s *ExecutionState) Status(stepID string) types.StepStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.StepStatuses[stepID]
}

// setStatus transitions a step's status, enforcing monotonicity.
// Regressions are dropped rather than applied.
func (s *ExecutionState) setStatus(stepID string, next types.StepStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.StepStatuses[stepID]
	if !ok {
		current = types.StepStatusPending
	}
	if !current.CanTransitionTo(next) {
		return false
	}
	s.StepStatuses[stepID] = next
	return true
}

// MarkRunning transitions a step to running and bumps the step index.
func (s *ExecutionState) MarkRunning(stepID string) bool {
	if !s.setStatus(stepID, types.StepStatusRunning) {
		return false
	}
	s.mu.Lock()
	s.CurrentStepIndex++
	s.mu.Unlock()
	return true
}

// MarkSuccess stores the step's output (exactly once) and transitions
// it to success.
func (s *ExecutionState) MarkSuccess(stepID string, output any) {
	s.setStatus(stepID, types.StepStatusSuccess)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.StepOutputs[stepID]; !exists {
		s.StepOutputs[stepID] = output
	}
}

// MarkSkipped transitions a step to skipped without touching variables.
func (s *ExecutionState) MarkSkipped(stepID string, reason string) {
	s.setStatus(stepID, types.StepStatusSkipped)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.StepOutputs[stepID]; !exists {
		s.StepOutputs[stepID] = map[string]any{"skipped": true, "reason": reason}
	}
}

// MarkFailed records the error, transitions the step to failed, and
// stops the graph.
func (s *ExecutionState) MarkFailed(stepID, message string) {
	s.setStatus(stepID, types.StepStatusFailed)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Errors = append(s.Errors, StepError{
		StepID:    stepID,
		Message:   message,
		Timestamp: time.Now(),
	})
	s.ShouldStop = true
}

// MarkWaitingApproval suspends the run at the given approval step.
func (s *ExecutionState) MarkWaitingApproval(stepID string) {
	s.setStatus(stepID, types.StepStatusWaitingApproval)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.WaitingApproval = true
	s.ApprovalStepID = stepID
}

// ResumeFromApproval clears the suspension and marks the approval step
// successful so the router continues past it.
func (s *ExecutionState) ResumeFromApproval(output any) {
	s.mu.Lock()
	stepID := s.ApprovalStepID
	s.WaitingApproval = false
	s.ApprovalStepID = ""
	s.mu.Unlock()

	if stepID != "" {
		s.setStatus(stepID, types.StepStatusSuccess)
		s.mu.Lock()
		if _, exists := s.StepOutputs[stepID]; !exists {
			s.StepOutputs[stepID] = output
		}
		s.mu.Unlock()
	}
}

// Stop requests cooperative cancellation: the current step completes,
// then the router returns stop.
func (s *ExecutionState) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ShouldStop = true
}

// SetVariable assigns a workflow variable.
func (s *ExecutionState) SetVariable(name string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Variables[name] = value
}

// VariablesCopy returns a shallow copy of the variables for a step's
// input projection.
func (s *ExecutionState) VariablesCopy() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.Variables))
	for name, value := range s.Variables {
		out[name] = value
	}
	return out
}

// AppendLog records one log line.
func (s *ExecutionState) AppendLog(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Logs = append(s.Logs, line)
}

// FirstError returns the earliest recorded step error, if any.
func (s *ExecutionState) FirstError() *StepError {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.Errors) == 0 {
		return nil
	}
	err := s.Errors[0]
	return &err
}

// Snapshot returns an immutable deep copy of the state for
// checkpointing. Writers never mutate prior snapshots.
func (s *ExecutionState) Snapshot() *ExecutionState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &ExecutionState{
		WorkflowID:       s.WorkflowID,
		ExecutionID:      s.ExecutionID,
		CurrentStepIndex: s.CurrentStepIndex,
		StepStatuses:     make(map[string]types.StepStatus, len(s.StepStatuses)),
		Variables:        deepCopyMap(s.Variables),
		StepOutputs:      deepCopyMap(s.StepOutputs),
		Errors:           make([]StepError, len(s.Errors)),
		ShouldStop:       s.ShouldStop,
		WaitingApproval:  s.WaitingApproval,
		ApprovalStepID:   s.ApprovalStepID,
		Logs:             make([]string, len(s.Logs)),
	}
	for id, status := range s.StepStatuses {
		snap.StepStatuses[id] = status
	}
	copy(snap.Errors, s.Errors)
	copy(snap.Logs, s.Logs)
	return snap
}

// deepCopyMap copies a JSON-representable map via a marshal round
// trip; values the codec cannot express are kept by reference.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		out := make(map[string]any, len(m))
		for k, v := range m {
			out[k] = v
		}
		return out
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		out = make(map[string]any, len(m))
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}
