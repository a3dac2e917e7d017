package types

import (
	"testing"
)

func TestExecutionStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status ExecutionStatus
		want   bool
	}{
		{ExecutionStatusPending, false},
		{ExecutionStatusRunning, false},
		{ExecutionStatusWaitingApproval, false},
		{ExecutionStatusSuccess, true},
		{ExecutionStatusFailed, true},
		{ExecutionStatusCancelled, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.IsTerminal(); got != tt.want {
				t.Errorf("IsTerminal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStepStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		name string
		from StepStatus
		to   StepStatus
		want bool
	}{
		{"pending to running", StepStatusPending, StepStatusRunning, true},
		{"pending to skipped", StepStatusPending, StepStatusSkipped, true},
		{"running to success", StepStatusRunning, StepStatusSuccess, true},
		{"running to failed", StepStatusRunning, StepStatusFailed, true},
		{"running to waiting", StepStatusRunning, StepStatusWaitingApproval, true},
		{"self transition", StepStatusRunning, StepStatusRunning, true},

		// No status regresses.
		{"success back to running", StepStatusSuccess, StepStatusRunning, false},
		{"failed back to pending", StepStatusFailed, StepStatusPending, false},
		{"skipped to success", StepStatusSkipped, StepStatusSuccess, false},
		{"running to pending", StepStatusRunning, StepStatusPending, false},

		// Approval resume is the one allowed forward move out of a
		// terminal step status.
		{"waiting to success on approve", StepStatusWaitingApproval, StepStatusSuccess, true},
		{"waiting to failed", StepStatusWaitingApproval, StepStatusFailed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
				t.Errorf("CanTransitionTo(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestStepResult_OutputMap(t *testing.T) {
	r := SuccessStepResult(map[string]any{"n": 2.0})
	if m := r.OutputMap(); m == nil || m["n"] != 2.0 {
		t.Errorf("OutputMap() = %v, want map with n=2", m)
	}

	// Approval results carry a string output; key-path walking gets nothing.
	appr := &StepResult{Success: true, Output: "waiting_approval", RequiresApproval: true}
	if m := appr.OutputMap(); m != nil {
		t.Errorf("OutputMap() over string output = %v, want nil", m)
	}

	failed := FailedStepResult("boom")
	if failed.Success {
		t.Error("FailedStepResult should not be successful")
	}
	if failed.Error != "boom" {
		t.Errorf("Error = %q, want boom", failed.Error)
	}
}

func TestTriggerType_IsValid(t *testing.T) {
	for _, tt := range []TriggerType{TriggerTypeManual, TriggerTypeScheduled, TriggerTypeEvent, TriggerTypeWebhook} {
		if !tt.IsValid() {
			t.Errorf("%s should be valid", tt)
		}
	}
	if TriggerType("cron").IsValid() {
		t.Error("unknown trigger type should be invalid")
	}
}
