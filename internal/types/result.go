package types

// StepResult is the uniform result shape every step type produces, so
// that output mappings can address any part of it the same way.
//
// Output is the step-specific structured payload. For most step types it
// is a map; scripts may emit any JSON document, and approval steps set
// the literal string "waiting_approval".
type StepResult struct {
	Success          bool     `json:"success"`
	Output           any      `json:"output,omitempty"`
	Error            string   `json:"error,omitempty"`
	Logs             []string `json:"logs,omitempty"`
	RequiresApproval bool     `json:"requires_approval,omitempty"`
	ApprovalMessage  string   `json:"approval_message,omitempty"`
}

// SuccessStepResult builds a successful result around output.
func SuccessStepResult(output any) *StepResult {
	return &StepResult{Success: true, Output: output}
}

// FailedStepResult builds a failed result carrying a human-readable
// error message.
func FailedStepResult(message string) *StepResult {
	return &StepResult{Success: false, Error: message}
}

// OutputMap returns the output as a map when it is one, or nil.
// Key-path walking over non-map outputs yields nothing.
func (r *StepResult) OutputMap() map[string]any {
	if m, ok := r.Output.(map[string]any); ok {
		return m
	}
	return nil
}
