package runner

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kimjoonhwaan/metaworkflow/internal/database"
	"github.com/kimjoonhwaan/metaworkflow/internal/types"
)

// nameExecutor resolves step behavior by step name.
type nameExecutor struct {
	handlers map[string]func(input map[string]any) (*types.StepResult, error)
	calls    []string
}

func (e *nameExecutor) ExecuteStep(ctx context.Context, step types.Step, input map[string]any) (*types.StepResult, error) {
	e.calls = append(e.calls, step.Name)
	if h, ok := e.handlers[step.Name]; ok {
		return h(input)
	}
	return types.SuccessStepResult(map[string]any{"done": true}), nil
}

func (e *nameExecutor) on(name string, h func(input map[string]any) (*types.StepResult, error)) {
	if e.handlers == nil {
		e.handlers = make(map[string]func(map[string]any) (*types.StepResult, error))
	}
	e.handlers[name] = h
}

type fixture struct {
	runner     *Runner
	workflows  database.WorkflowDAO
	executions database.ExecutionDAO
	executor   *nameExecutor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "runner.db"))
	require.NoError(t, err)
	require.NoError(t, db.InitSchema(context.Background()))
	t.Cleanup(func() { db.Close() })

	executor := &nameExecutor{}
	workflows := database.NewWorkflowDAO(db)
	executions := database.NewExecutionDAO(db)
	return &fixture{
		runner:     New(workflows, executions, executor),
		workflows:  workflows,
		executions: executions,
		executor:   executor,
	}
}

func (f *fixture) createWorkflow(t *testing.T, steps ...types.Step) *types.Workflow {
	t.Helper()
	wf := &types.Workflow{
		Name:      "pipeline",
		Status:    types.WorkflowStatusActive,
		Variables: map[string]any{"query": "golang", "count": 3},
		Steps:     steps,
	}
	require.NoError(t, f.workflows.Create(context.Background(), wf))
	return wf
}

func step(name string, order int) types.Step {
	return types.Step{
		Order: order,
		Name:  name,
		Type:  types.StepTypeDataTransform,
		Config: map[string]any{
			"rules": []any{},
		},
	}
}

func TestExecuteSuccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	fetch := step("fetch", 1)
	fetch.OutputMapping = map[string]string{"articles": "output.items"}
	wf := f.createWorkflow(t, fetch, step("publish", 2))

	f.executor.on("fetch", func(input map[string]any) (*types.StepResult, error) {
		return types.SuccessStepResult(map[string]any{"items": []any{"a", "b"}}), nil
	})

	exec, err := f.runner.Execute(ctx, wf.ID, map[string]any{"count": 5})
	require.NoError(t, err)
	assert.Equal(t, types.ExecutionStatusSuccess, exec.Status)
	assert.NotNil(t, exec.CompletedAt)
	assert.Equal(t, []string{"fetch", "publish"}, f.executor.calls)

	// Input overlays workflow variables; output mapping lands in finals.
	loaded, err := f.executions.GetExecution(ctx, exec.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 5, loaded.InputVariables["count"])
	assert.Equal(t, "golang", loaded.FinalVariables["query"])
	assert.Equal(t, []any{"a", "b"}, loaded.FinalVariables["articles"])

	steps, err := f.executions.ListStepExecutions(ctx, exec.ID)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	for _, se := range steps {
		assert.Equal(t, types.StepStatusSuccess, se.Status)
	}

	checkpoint, err := f.executions.GetCheckpoint(ctx, exec.ID)
	require.NoError(t, err)
	assert.Contains(t, string(checkpoint), exec.ID.String())
}

func TestExecuteFailureFreezesDownstream(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	wf := f.createWorkflow(t, step("fetch", 1), step("publish", 2))
	f.executor.on("fetch", func(input map[string]any) (*types.StepResult, error) {
		return types.FailedStepResult("upstream is down"), nil
	})

	exec, err := f.runner.Execute(ctx, wf.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, types.ExecutionStatusFailed, exec.Status)
	assert.Equal(t, "upstream is down", exec.Error)
	require.NotNil(t, exec.ErrorStepID)
	assert.Equal(t, wf.Steps[0].ID, *exec.ErrorStepID)
	assert.Equal(t, []string{"fetch"}, f.executor.calls)

	steps, err := f.executions.ListStepExecutions(ctx, exec.ID)
	require.NoError(t, err)
	byName := map[string]*types.StepExecution{}
	for _, se := range steps {
		byName[se.StepName] = se
	}
	assert.Equal(t, types.StepStatusFailed, byName["fetch"].Status)
	assert.Equal(t, "upstream is down", byName["fetch"].Error)
	assert.Equal(t, types.StepStatusPending, byName["publish"].Status)
}

func TestExecuteEmptyWorkflow(t *testing.T) {
	f := newFixture(t)

	wf := f.createWorkflow(t)
	exec, err := f.runner.Execute(context.Background(), wf.ID, map[string]any{"extra": true})
	require.NoError(t, err)
	assert.Equal(t, types.ExecutionStatusSuccess, exec.Status)
	assert.Equal(t, true, exec.FinalVariables["extra"])
	assert.Equal(t, "golang", exec.FinalVariables["query"])
	assert.NotNil(t, exec.CompletedAt)
}

func TestExecuteUnknownWorkflow(t *testing.T) {
	f := newFixture(t)

	_, err := f.runner.Execute(context.Background(), types.NewID(), nil)
	assert.True(t, errors.Is(err, types.NewError(types.WORKFLOW_NOT_FOUND, "")))
}

func TestApprovalSuspendAndApprove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	wf := f.createWorkflow(t, step("draft", 1), step("sign off", 2), step("publish", 3))
	f.executor.on("sign off", func(input map[string]any) (*types.StepResult, error) {
		return &types.StepResult{
			Output:           "waiting_approval",
			RequiresApproval: true,
			ApprovalMessage:  "please review",
		}, nil
	})

	exec, err := f.runner.Execute(ctx, wf.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, types.ExecutionStatusWaitingApproval, exec.Status)
	assert.Nil(t, exec.CompletedAt)
	assert.Equal(t, []string{"draft", "sign off"}, f.executor.calls)

	resumed, err := f.runner.Approve(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ExecutionStatusSuccess, resumed.Status)
	assert.Equal(t, []string{"draft", "sign off", "publish"}, f.executor.calls)

	steps, err := f.executions.ListStepExecutions(ctx, exec.ID)
	require.NoError(t, err)
	byName := map[string]types.StepStatus{}
	for _, se := range steps {
		byName[se.StepName] = se.Status
	}
	assert.Equal(t, types.StepStatusSuccess, byName["sign off"])
	assert.Equal(t, types.StepStatusSuccess, byName["publish"])
}

func TestApproveRequiresSuspension(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	wf := f.createWorkflow(t, step("fetch", 1))
	exec, err := f.runner.Execute(ctx, wf.ID, nil)
	require.NoError(t, err)
	require.Equal(t, types.ExecutionStatusSuccess, exec.Status)

	_, err = f.runner.Approve(ctx, exec.ID)
	assert.True(t, errors.Is(err, types.NewError(types.EXECUTION_NOT_WAITING, "")))
}

func TestRejectCancels(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	wf := f.createWorkflow(t, step("sign off", 1), step("publish", 2))
	f.executor.on("sign off", func(input map[string]any) (*types.StepResult, error) {
		return &types.StepResult{RequiresApproval: true, ApprovalMessage: "review"}, nil
	})

	exec, err := f.runner.Execute(ctx, wf.ID, nil)
	require.NoError(t, err)
	require.Equal(t, types.ExecutionStatusWaitingApproval, exec.Status)

	rejected, err := f.runner.Reject(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ExecutionStatusCancelled, rejected.Status)
	assert.Equal(t, "approval rejected", rejected.Error)
	assert.NotNil(t, rejected.CompletedAt)
	assert.Equal(t, []string{"sign off"}, f.executor.calls)
}

func TestRetryCarriesFinalVariables(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	fetch := step("fetch", 1)
	fetch.OutputMapping = map[string]string{"cursor": "output.cursor"}
	wf := f.createWorkflow(t, fetch, step("publish", 2))

	f.executor.on("fetch", func(input map[string]any) (*types.StepResult, error) {
		return types.SuccessStepResult(map[string]any{"cursor": "page-2"}), nil
	})
	f.executor.on("publish", func(input map[string]any) (*types.StepResult, error) {
		return types.FailedStepResult("flaky sink"), nil
	})

	exec, err := f.runner.Execute(ctx, wf.ID, nil)
	require.NoError(t, err)
	require.Equal(t, types.ExecutionStatusFailed, exec.Status)

	f.executor.on("publish", func(input map[string]any) (*types.StepResult, error) {
		assert.Equal(t, "page-2", input["cursor"])
		return types.SuccessStepResult(map[string]any{"sent": true}), nil
	})

	retried, err := f.runner.Retry(ctx, exec.ID)
	require.NoError(t, err)
	assert.NotEqual(t, exec.ID, retried.ID)
	assert.Equal(t, types.ExecutionStatusSuccess, retried.Status)
	assert.Equal(t, "page-2", retried.InputVariables["cursor"])
}

func TestCancelFinishedExecution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	wf := f.createWorkflow(t, step("fetch", 1))
	exec, err := f.runner.Execute(ctx, wf.ID, nil)
	require.NoError(t, err)
	require.Equal(t, types.ExecutionStatusSuccess, exec.Status)

	err = f.runner.Cancel(ctx, exec.ID)
	require.Error(t, err)
}

func TestExecutionLogs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	wf := f.createWorkflow(t, step("fetch", 1), step("publish", 2))
	f.executor.on("fetch", func(input map[string]any) (*types.StepResult, error) {
		return &types.StepResult{
			Success: true,
			Output:  map[string]any{"items": 2},
			Logs:    []string{"fetched 2 items"},
		}, nil
	})
	f.executor.on("publish", func(input map[string]any) (*types.StepResult, error) {
		return types.FailedStepResult("sink unavailable"), nil
	})

	exec, err := f.runner.Execute(ctx, wf.ID, nil)
	require.NoError(t, err)

	lines, err := f.runner.ExecutionLogs(ctx, exec.ID)
	require.NoError(t, err)
	joined := ""
	for _, line := range lines {
		joined += line + "\n"
	}
	assert.Contains(t, joined, "fetched 2 items")
	assert.Contains(t, joined, "sink unavailable")
	assert.Contains(t, joined, `step "fetch": success`)
}
