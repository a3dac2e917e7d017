package types

import (
	"testing"
)

func TestWorkflow_OrderedSteps(t *testing.T) {
	wf := &Workflow{
		Name: "ordering",
		Steps: []Step{
			{ID: "b", Name: "third", Type: StepTypeCondition, Order: 30},
			{ID: "a", Name: "second-tie", Type: StepTypeCondition, Order: 20},
			{ID: "c", Name: "first", Type: StepTypeCondition, Order: 10},
			{ID: "d", Name: "second-tie-later-id", Type: StepTypeCondition, Order: 20},
		},
	}

	ordered := wf.OrderedSteps()

	wantNames := []string{"first", "second-tie", "second-tie-later-id", "third"}
	for i, want := range wantNames {
		if ordered[i].Name != want {
			t.Errorf("ordered[%d] = %q, want %q", i, ordered[i].Name, want)
		}
	}

	// Order values need not be contiguous; gaps do not imply skipped steps.
	if ordered[0].Order != 10 || ordered[3].Order != 30 {
		t.Error("non-contiguous orders must be preserved")
	}

	// The source slice must stay untouched.
	if wf.Steps[0].Name != "third" {
		t.Error("OrderedSteps must not mutate the workflow")
	}
}

func TestStep_Validate(t *testing.T) {
	tests := []struct {
		name    string
		step    Step
		wantErr bool
	}{
		{
			name: "valid api step",
			step: Step{Name: "fetch", Type: StepTypeAPICall},
		},
		{
			name:    "missing name",
			step:    Step{Type: StepTypeAPICall},
			wantErr: true,
		},
		{
			name:    "unknown type",
			step:    Step{Name: "x", Type: StepType("teleport")},
			wantErr: true,
		},
		{
			name:    "python script without code",
			step:    Step{Name: "calc", Type: StepTypePythonScript},
			wantErr: true,
		},
		{
			name: "python script with code",
			step: Step{Name: "calc", Type: StepTypePythonScript, Code: "print('{}')"},
		},
		{
			name:    "negative retries",
			step:    Step{Name: "r", Type: StepTypeAPICall, RetryConfig: &RetryConfig{MaxRetries: -1}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.step.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestWorkflow_Validate(t *testing.T) {
	wf := &Workflow{
		Name:   "pipeline",
		Status: WorkflowStatusActive,
		Steps: []Step{
			{Name: "ok", Type: StepTypeCondition},
			{Name: "broken", Type: StepTypePythonScript}, // no code
		},
	}

	if err := wf.Validate(); err == nil {
		t.Error("workflow with an invalid step should fail validation")
	}

	wf.Steps[1].Code = "import json\nprint(json.dumps({}))"
	if err := wf.Validate(); err != nil {
		t.Errorf("valid workflow failed: %v", err)
	}

	wf.Name = ""
	if err := wf.Validate(); err == nil {
		t.Error("empty workflow name should fail validation")
	}
}

func TestStepType_IsValid(t *testing.T) {
	valid := []StepType{
		StepTypeLLMCall, StepTypeAPICall, StepTypePythonScript,
		StepTypeCondition, StepTypeApproval, StepTypeNotification,
		StepTypeDataTransform,
	}
	for _, st := range valid {
		if !st.IsValid() {
			t.Errorf("%s should be valid", st)
		}
	}
	if StepType("shell").IsValid() {
		t.Error("unknown step type should be invalid")
	}
}
