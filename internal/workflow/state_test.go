package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kimjoonhwaan/metaworkflow/internal/types"
)

func TestStatusTransitionsAreMonotone(t *testing.T) {
	step := makeStep("only", 1)
	state := NewExecutionState(types.NewID(), types.NewID(), []types.Step{step}, nil)
	id := step.ID.String()

	require.True(t, state.MarkRunning(id))
	state.MarkSuccess(id, "final")

	// A terminal status never regresses.
	assert.False(t, state.MarkRunning(id))
	state.MarkFailed(id, "late failure")
	assert.Equal(t, types.StepStatusSuccess, state.Status(id))
}

func TestStepOutputSetExactlyOnce(t *testing.T) {
	step := makeStep("only", 1)
	state := NewExecutionState(types.NewID(), types.NewID(), []types.Step{step}, nil)
	id := step.ID.String()

	state.MarkRunning(id)
	state.MarkSuccess(id, "first")
	state.MarkSuccess(id, "second")

	assert.Equal(t, "first", state.StepOutputs[id])
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	step := makeStep("only", 1)
	state := NewExecutionState(types.NewID(), types.NewID(), []types.Step{step},
		map[string]any{"nested": map[string]any{"k": "v"}})

	snap := state.Snapshot()

	nested := state.Variables["nested"].(map[string]any)
	nested["k"] = "changed"
	state.SetVariable("extra", true)

	snapNested := snap.Variables["nested"].(map[string]any)
	assert.Equal(t, "v", snapNested["k"])
	assert.NotContains(t, snap.Variables, "extra")
}

func TestResumeFromApprovalSettlesStep(t *testing.T) {
	step := makeStep("gate", 1)
	state := NewExecutionState(types.NewID(), types.NewID(), []types.Step{step}, nil)
	id := step.ID.String()

	state.MarkRunning(id)
	state.MarkWaitingApproval(id)
	require.True(t, state.WaitingApproval)

	state.ResumeFromApproval(map[string]any{"approved": true})

	assert.False(t, state.WaitingApproval)
	assert.Empty(t, state.ApprovalStepID)
	assert.Equal(t, types.StepStatusSuccess, state.Status(id))
	assert.Contains(t, state.StepOutputs, id)
}
