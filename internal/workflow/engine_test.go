package workflow

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kimjoonhwaan/metaworkflow/internal/types"
)

// stubExecutor routes steps to per-name handlers and records the order
// in which steps ran.
type stubExecutor struct {
	mu       sync.Mutex
	calls    []string
	inputs   map[string]map[string]any
	handlers map[string]func(input map[string]any) (*types.StepResult, error)
}

func newStubExecutor() *stubExecutor {
	return &stubExecutor{
		inputs:   make(map[string]map[string]any),
		handlers: make(map[string]func(input map[string]any) (*types.StepResult, error)),
	}
}

func (s *stubExecutor) handle(name string, fn func(input map[string]any) (*types.StepResult, error)) {
	s.handlers[name] = fn
}

func (s *stubExecutor) succeedWith(name string, output any) {
	s.handle(name, func(map[string]any) (*types.StepResult, error) {
		return types.SuccessStepResult(output), nil
	})
}

func (s *stubExecutor) ExecuteStep(ctx context.Context, step types.Step, input map[string]any) (*types.StepResult, error) {
	s.mu.Lock()
	s.calls = append(s.calls, step.Name)
	s.inputs[step.Name] = input
	fn := s.handlers[step.Name]
	s.mu.Unlock()

	if fn == nil {
		return types.SuccessStepResult(map[string]any{}), nil
	}
	return fn(input)
}

func (s *stubExecutor) callNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	copy(out, s.calls)
	return out
}

func makeStep(name string, order int) types.Step {
	return types.Step{
		ID:    types.NewID(),
		Order: order,
		Name:  name,
		Type:  types.StepTypeDataTransform,
	}
}

func makeWorkflow(steps ...types.Step) *types.Workflow {
	return &types.Workflow{
		ID:     types.NewID(),
		Name:   "test workflow",
		Status: types.WorkflowStatusActive,
		Steps:  steps,
	}
}

func newTestEngine(executor StepExecutor, opts ...EngineOption) *Engine {
	e := NewEngine(executor, opts...)
	e.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return e
}

func TestRunSequentialSuccess(t *testing.T) {
	s1 := makeStep("fetch", 1)
	s1.OutputMapping = map[string]string{"fetched": "output.data.value"}
	s2 := makeStep("analyze", 2)
	s2.OutputMapping = map[string]string{"score": "score"}
	s3 := makeStep("report", 3)

	executor := newStubExecutor()
	executor.succeedWith("fetch", map[string]any{"data": map[string]any{"value": "payload"}})
	executor.succeedWith("analyze", map[string]any{"score": float64(87)})
	executor.succeedWith("report", map[string]any{"done": true})

	wf := makeWorkflow(s1, s2, s3)
	engine := newTestEngine(executor)
	state := NewExecutionState(wf.ID, types.NewID(), wf.OrderedSteps(), nil)

	state, err := engine.Run(context.Background(), wf, state)
	require.NoError(t, err)

	assert.Equal(t, []string{"fetch", "analyze", "report"}, executor.callNames())
	assert.Equal(t, 3, state.CurrentStepIndex)
	for _, step := range []types.Step{s1, s2, s3} {
		assert.Equal(t, types.StepStatusSuccess, state.Status(step.ID.String()))
		assert.Contains(t, state.StepOutputs, step.ID.String())
	}
	assert.Equal(t, "payload", state.Variables["fetched"])
	assert.Equal(t, float64(87), state.Variables["score"])
	assert.False(t, state.ShouldStop)
	assert.Empty(t, state.Errors)
}

func TestRunFailureStopsExecution(t *testing.T) {
	s1 := makeStep("first", 1)
	s2 := makeStep("second", 2)
	s3 := makeStep("third", 3)

	executor := newStubExecutor()
	executor.handle("second", func(map[string]any) (*types.StepResult, error) {
		return types.FailedStepResult("boom"), nil
	})

	wf := makeWorkflow(s1, s2, s3)
	engine := newTestEngine(executor)
	state := NewExecutionState(wf.ID, types.NewID(), wf.OrderedSteps(), nil)

	state, err := engine.Run(context.Background(), wf, state)
	require.NoError(t, err)

	assert.Equal(t, []string{"first", "second"}, executor.callNames())
	assert.Equal(t, types.StepStatusSuccess, state.Status(s1.ID.String()))
	assert.Equal(t, types.StepStatusFailed, state.Status(s2.ID.String()))
	assert.Equal(t, types.StepStatusPending, state.Status(s3.ID.String()))
	assert.True(t, state.ShouldStop)

	firstErr := state.FirstError()
	require.NotNil(t, firstErr)
	assert.Equal(t, s2.ID.String(), firstErr.StepID)
	assert.Equal(t, "boom", firstErr.Message)
}

func TestRunRetriesThenSucceeds(t *testing.T) {
	step := makeStep("flaky", 1)
	step.RetryConfig = &types.RetryConfig{MaxRetries: 3, RetryDelaySeconds: 0.01}

	attempts := 0
	executor := newStubExecutor()
	executor.handle("flaky", func(map[string]any) (*types.StepResult, error) {
		attempts++
		if attempts < 3 {
			return types.FailedStepResult("transient"), nil
		}
		return types.SuccessStepResult(map[string]any{"ok": true}), nil
	})

	var recorded StepEvent
	wf := makeWorkflow(step)
	engine := newTestEngine(executor, WithStepCallback(func(ctx context.Context, state *ExecutionState, event StepEvent) {
		recorded = event
	}))
	state := NewExecutionState(wf.ID, types.NewID(), wf.OrderedSteps(), nil)

	state, err := engine.Run(context.Background(), wf, state)
	require.NoError(t, err)

	assert.Equal(t, 3, attempts)
	assert.Equal(t, types.StepStatusSuccess, state.Status(step.ID.String()))
	assert.Equal(t, 2, recorded.RetryCount)
}

func TestRunRetriesExhausted(t *testing.T) {
	step := makeStep("hopeless", 1)
	step.RetryConfig = &types.RetryConfig{MaxRetries: 2}

	attempts := 0
	executor := newStubExecutor()
	executor.handle("hopeless", func(map[string]any) (*types.StepResult, error) {
		attempts++
		return types.FailedStepResult("still down"), nil
	})

	wf := makeWorkflow(step)
	engine := newTestEngine(executor)
	state := NewExecutionState(wf.ID, types.NewID(), wf.OrderedSteps(), nil)

	state, err := engine.Run(context.Background(), wf, state)
	require.NoError(t, err)

	assert.Equal(t, 3, attempts)
	assert.Equal(t, types.StepStatusFailed, state.Status(step.ID.String()))
}

func TestRunConditionGateSkips(t *testing.T) {
	s1 := makeStep("always", 1)
	s2 := makeStep("gated", 2)
	s2.Condition = "run_optional"
	s3 := makeStep("after", 3)

	executor := newStubExecutor()
	wf := makeWorkflow(s1, s2, s3)
	engine := newTestEngine(executor)
	state := NewExecutionState(wf.ID, types.NewID(), wf.OrderedSteps(),
		map[string]any{"run_optional": false})

	state, err := engine.Run(context.Background(), wf, state)
	require.NoError(t, err)

	// Gated step never reaches the executor; the rest still run.
	assert.Equal(t, []string{"always", "after"}, executor.callNames())
	assert.Equal(t, types.StepStatusSkipped, state.Status(s2.ID.String()))
	assert.Equal(t, types.StepStatusSuccess, state.Status(s3.ID.String()))

	// Skipped steps still get a step output entry.
	assert.Contains(t, state.StepOutputs, s2.ID.String())
}

func TestRunConditionErrorFailsStep(t *testing.T) {
	step := makeStep("broken-gate", 1)
	step.Condition = `missing_var > 0`

	executor := newStubExecutor()
	wf := makeWorkflow(step)
	engine := newTestEngine(executor)
	state := NewExecutionState(wf.ID, types.NewID(), wf.OrderedSteps(), nil)

	state, err := engine.Run(context.Background(), wf, state)
	require.NoError(t, err)

	assert.Empty(t, executor.callNames())
	assert.Equal(t, types.StepStatusFailed, state.Status(step.ID.String()))
	assert.True(t, state.ShouldStop)
}

func TestRunApprovalSuspendsAndResumes(t *testing.T) {
	s1 := makeStep("prepare", 1)
	s2 := makeStep("approve", 2)
	s2.Type = types.StepTypeApproval
	s3 := makeStep("finalize", 3)

	executor := newStubExecutor()
	executor.handle("approve", func(map[string]any) (*types.StepResult, error) {
		return &types.StepResult{
			Success:          true,
			Output:           "waiting_approval",
			RequiresApproval: true,
			ApprovalMessage:  "sign off required",
		}, nil
	})

	wf := makeWorkflow(s1, s2, s3)
	engine := newTestEngine(executor)
	state := NewExecutionState(wf.ID, types.NewID(), wf.OrderedSteps(), nil)

	state, err := engine.Run(context.Background(), wf, state)
	require.NoError(t, err)

	assert.True(t, state.WaitingApproval)
	assert.Equal(t, s2.ID.String(), state.ApprovalStepID)
	assert.Equal(t, types.StepStatusWaitingApproval, state.Status(s2.ID.String()))
	assert.Equal(t, types.StepStatusPending, state.Status(s3.ID.String()))
	assert.Equal(t, []string{"prepare", "approve"}, executor.callNames())

	// Resume: the approval settles and the remainder runs; settled
	// steps are not re-executed.
	state.ResumeFromApproval(map[string]any{"approved": true})
	state, err = engine.Run(context.Background(), wf, state)
	require.NoError(t, err)

	assert.False(t, state.WaitingApproval)
	assert.Equal(t, types.StepStatusSuccess, state.Status(s2.ID.String()))
	assert.Equal(t, types.StepStatusSuccess, state.Status(s3.ID.String()))
	assert.Equal(t, []string{"prepare", "approve", "finalize"}, executor.callNames())
}

func TestRunCancellationFreezesPendingSteps(t *testing.T) {
	s1 := makeStep("one", 1)
	s2 := makeStep("two", 2)

	executor := newStubExecutor()
	wf := makeWorkflow(s1, s2)
	engine := newTestEngine(executor)
	state := NewExecutionState(wf.ID, types.NewID(), wf.OrderedSteps(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	state, err := engine.Run(ctx, wf, state)
	require.NoError(t, err)

	assert.Empty(t, executor.callNames())
	assert.True(t, state.ShouldStop)
	assert.Equal(t, types.StepStatusPending, state.Status(s1.ID.String()))
	assert.Equal(t, types.StepStatusPending, state.Status(s2.ID.String()))
}

func TestRunStopRequestHaltsBetweenSteps(t *testing.T) {
	s1 := makeStep("one", 1)
	s2 := makeStep("two", 2)

	executor := newStubExecutor()
	wf := makeWorkflow(s1, s2)
	engine := newTestEngine(executor)
	state := NewExecutionState(wf.ID, types.NewID(), wf.OrderedSteps(), nil)

	// The first step requests a stop; the second must not run.
	executor.handle("one", func(map[string]any) (*types.StepResult, error) {
		state.Stop()
		return types.SuccessStepResult(map[string]any{}), nil
	})

	state, err := engine.Run(context.Background(), wf, state)
	require.NoError(t, err)

	assert.Equal(t, []string{"one"}, executor.callNames())
	assert.Equal(t, types.StepStatusSuccess, state.Status(s1.ID.String()))
	assert.Equal(t, types.StepStatusPending, state.Status(s2.ID.String()))
}

func TestCheckpointAfterEveryStep(t *testing.T) {
	s1 := makeStep("one", 1)
	s1.OutputMapping = map[string]string{"v": "output"}
	s2 := makeStep("two", 2)

	executor := newStubExecutor()
	executor.succeedWith("one", "first-output")

	sink := NewMemoryCheckpointSink()
	saves := 0
	wf := makeWorkflow(s1, s2)
	engine := newTestEngine(executor, WithCheckpointSink(&countingSink{inner: sink, saves: &saves}))
	executionID := types.NewID()
	state := NewExecutionState(wf.ID, executionID, wf.OrderedSteps(), nil)

	var firstSnapshot *ExecutionState
	_, err := engine.Run(context.Background(), wf, state)
	require.NoError(t, err)
	assert.Equal(t, 2, saves)

	latest, err := sink.Latest(context.Background(), executionID)
	require.NoError(t, err)
	assert.Equal(t, types.StepStatusSuccess, latest.StepStatuses[s1.ID.String()])
	assert.Equal(t, types.StepStatusSuccess, latest.StepStatuses[s2.ID.String()])

	// Snapshots are deep copies: mutating the live state afterwards
	// leaves them untouched.
	firstSnapshot = latest
	state.SetVariable("v", "mutated")
	assert.Equal(t, "first-output", firstSnapshot.Variables["v"])
}

type countingSink struct {
	inner CheckpointSink
	saves *int
}

func (c *countingSink) Save(ctx context.Context, snapshot *ExecutionState) error {
	*c.saves++
	return c.inner.Save(ctx, snapshot)
}

func (c *countingSink) Latest(ctx context.Context, executionID types.ID) (*ExecutionState, error) {
	return c.inner.Latest(ctx, executionID)
}

func TestOutputMappingFallbackAndMissingPath(t *testing.T) {
	step := makeStep("produce", 1)
	step.OutputMapping = map[string]string{
		"direct":   "top",
		"fallback": "nested.value",
		"missing":  "output.absent.path",
	}

	executor := newStubExecutor()
	executor.succeedWith("produce", map[string]any{
		"top": "direct-hit",
		"data": map[string]any{
			"nested": map[string]any{"value": float64(7)},
		},
	})

	wf := makeWorkflow(step)
	engine := newTestEngine(executor)
	state := NewExecutionState(wf.ID, types.NewID(), wf.OrderedSteps(),
		map[string]any{"missing": "unchanged"})

	state, err := engine.Run(context.Background(), wf, state)
	require.NoError(t, err)

	assert.Equal(t, "direct-hit", state.Variables["direct"])
	assert.Equal(t, float64(7), state.Variables["fallback"])
	assert.Equal(t, "unchanged", state.Variables["missing"])
	assert.Equal(t, types.StepStatusSuccess, state.Status(step.ID.String()))
}

func TestInputProjection(t *testing.T) {
	step := makeStep("consumer", 1)
	step.InputMapping = map[string]string{
		"local_name": "wf_var",
		"absent":     "no_such_var",
	}

	executor := newStubExecutor()
	wf := makeWorkflow(step)
	engine := newTestEngine(executor)
	state := NewExecutionState(wf.ID, types.NewID(), wf.OrderedSteps(),
		map[string]any{"wf_var": "hello", "unrelated": "hidden"})

	_, err := engine.Run(context.Background(), wf, state)
	require.NoError(t, err)

	// Locals are aliases layered over the full variable view.
	input := executor.inputs["consumer"]
	assert.Equal(t, "hello", input["local_name"])
	assert.Equal(t, "hello", input["wf_var"])
	assert.Equal(t, "hidden", input["unrelated"])
	assert.NotContains(t, input, "absent")
}

func TestInputProjectionWithoutMappingSeesEverything(t *testing.T) {
	step := makeStep("open", 1)

	executor := newStubExecutor()
	wf := makeWorkflow(step)
	engine := newTestEngine(executor)
	state := NewExecutionState(wf.ID, types.NewID(), wf.OrderedSteps(),
		map[string]any{"a": float64(1), "b": "two"})

	_, err := engine.Run(context.Background(), wf, state)
	require.NoError(t, err)

	input := executor.inputs["open"]
	assert.Equal(t, map[string]any{"a": float64(1), "b": "two"}, input)
}

func TestBuildGraphRejectsDuplicateStepIDs(t *testing.T) {
	s1 := makeStep("dup", 1)
	s2 := makeStep("dup2", 2)
	s2.ID = s1.ID

	wf := makeWorkflow(s1, s2)
	_, err := BuildGraph(wf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate step id")
}

func TestExecutorErrorBecomesFailedResult(t *testing.T) {
	step := makeStep("erroring", 1)

	executor := newStubExecutor()
	executor.handle("erroring", func(map[string]any) (*types.StepResult, error) {
		return nil, types.NewError(types.INTERNAL_ERROR, "dispatcher blew up")
	})

	wf := makeWorkflow(step)
	engine := newTestEngine(executor)
	state := NewExecutionState(wf.ID, types.NewID(), wf.OrderedSteps(), nil)

	state, err := engine.Run(context.Background(), wf, state)
	require.NoError(t, err)

	assert.Equal(t, types.StepStatusFailed, state.Status(step.ID.String()))
	firstErr := state.FirstError()
	require.NotNil(t, firstErr)
	assert.Contains(t, firstErr.Message, "dispatcher blew up")
}
