// Package runner drives complete workflow executions: it loads the
// workflow, runs the state-graph engine, and persists execution and
// per-step records as the run progresses. One Runner serves many
// concurrent executions; each execution is strictly sequential inside.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/kimjoonhwaan/metaworkflow/internal/database"
	"github.com/kimjoonhwaan/metaworkflow/internal/types"
	"github.com/kimjoonhwaan/metaworkflow/internal/workflow"
)

// Runner executes workflows against the persistent store.
type Runner struct {
	workflows  database.WorkflowDAO
	executions database.ExecutionDAO
	executor   workflow.StepExecutor
	logger     *slog.Logger
	tracer     trace.Tracer

	mu   sync.Mutex
	live map[types.ID]*workflow.ExecutionState
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithTracer sets the OpenTelemetry tracer passed down to the engine.
func WithTracer(tracer trace.Tracer) Option {
	return func(r *Runner) {
		if tracer != nil {
			r.tracer = tracer
		}
	}
}

// New creates a Runner over the workflow and execution stores.
func New(workflows database.WorkflowDAO, executions database.ExecutionDAO, executor workflow.StepExecutor, opts ...Option) *Runner {
	r := &Runner{
		workflows:  workflows,
		executions: executions,
		executor:   executor,
		logger:     slog.Default(),
		tracer:     noop.NewTracerProvider().Tracer("runner"),
		live:       make(map[types.ID]*workflow.ExecutionState),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Execute runs a workflow to a terminal status or an approval
// suspension. Input data overlays the workflow's declared variables.
// The returned execution carries the terminal (or suspended) status and
// the final variables; step failures surface there, never as the
// returned error.
func (r *Runner) Execute(ctx context.Context, workflowID types.ID, inputData map[string]any) (*types.Execution, error) {
	wf, err := r.workflows.GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	initial := mergeVariables(wf.Variables, inputData)
	exec := &types.Execution{
		WorkflowID:     wf.ID,
		Status:         types.ExecutionStatusRunning,
		InputVariables: initial,
		StartedAt:      time.Now().UTC(),
	}
	if err := r.executions.CreateExecution(ctx, exec); err != nil {
		return nil, err
	}

	steps := wf.OrderedSteps()
	for _, step := range steps {
		se := &types.StepExecution{
			ExecutionID: exec.ID,
			StepID:      step.ID,
			StepName:    step.Name,
			Status:      types.StepStatusPending,
		}
		if err := r.executions.UpsertStepExecution(ctx, se); err != nil {
			return nil, err
		}
	}

	if len(steps) == 0 {
		exec.Status = types.ExecutionStatusSuccess
		exec.FinalVariables = initial
		now := time.Now().UTC()
		exec.CompletedAt = &now
		if err := r.executions.UpdateExecution(ctx, exec); err != nil {
			return nil, err
		}
		return exec, nil
	}

	state := workflow.NewExecutionState(wf.ID, exec.ID, steps, initial)
	return r.run(ctx, wf, exec, state)
}

// Retry starts a fresh execution of the same workflow, seeding it with
// the prior run's final variables layered over its inputs so partial
// progress carries forward.
func (r *Runner) Retry(ctx context.Context, executionID types.ID) (*types.Execution, error) {
	prior, err := r.executions.GetExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}
	input := mergeVariables(prior.InputVariables, prior.FinalVariables)
	return r.Execute(ctx, prior.WorkflowID, input)
}

// Approve resumes an execution suspended at an approval step: the step
// settles as success and the run continues from its successor.
func (r *Runner) Approve(ctx context.Context, executionID types.ID) (*types.Execution, error) {
	exec, state, err := r.loadSuspended(ctx, executionID)
	if err != nil {
		return nil, err
	}

	wf, err := r.workflows.GetByID(ctx, exec.WorkflowID)
	if err != nil {
		return nil, err
	}

	approvalStepID := state.ApprovalStepID
	state.ResumeFromApproval(map[string]any{"approved": true})
	r.settleApprovalStep(ctx, exec.ID, wf, approvalStepID)

	exec.Status = types.ExecutionStatusRunning
	if err := r.executions.UpdateExecution(ctx, exec); err != nil {
		return nil, err
	}
	return r.run(ctx, wf, exec, state)
}

// Reject terminates a suspended execution as cancelled.
func (r *Runner) Reject(ctx context.Context, executionID types.ID) (*types.Execution, error) {
	exec, state, err := r.loadSuspended(ctx, executionID)
	if err != nil {
		return nil, err
	}

	exec.Status = types.ExecutionStatusCancelled
	exec.Error = "approval rejected"
	exec.FinalVariables = state.VariablesCopy()
	now := time.Now().UTC()
	exec.CompletedAt = &now
	if err := r.executions.UpdateExecution(ctx, exec); err != nil {
		return nil, err
	}
	return exec, nil
}

// Cancel requests cooperative cancellation of a running execution. The
// step in flight completes; pending steps stay frozen and the execution
// finalizes as cancelled. Cancelling an execution that is no longer
// running (and not live in this process) marks it cancelled directly.
func (r *Runner) Cancel(ctx context.Context, executionID types.ID) error {
	r.mu.Lock()
	state, ok := r.live[executionID]
	r.mu.Unlock()
	if ok {
		state.Stop()
		return nil
	}

	exec, err := r.executions.GetExecution(ctx, executionID)
	if err != nil {
		return err
	}
	if exec.Status.IsTerminal() {
		return types.NewError(types.EXECUTION_NOT_FOUND,
			fmt.Sprintf("execution %s already finished as %s", executionID, exec.Status))
	}

	exec.Status = types.ExecutionStatusCancelled
	exec.Error = "cancelled"
	now := time.Now().UTC()
	exec.CompletedAt = &now
	return r.executions.UpdateExecution(ctx, exec)
}

// ExecutionLogs returns the ordered per-step log lines of an execution
// for post-mortem inspection.
func (r *Runner) ExecutionLogs(ctx context.Context, executionID types.ID) ([]string, error) {
	steps, err := r.executions.ListStepExecutions(ctx, executionID)
	if err != nil {
		return nil, err
	}

	var lines []string
	for _, se := range steps {
		lines = append(lines, fmt.Sprintf("step %q: %s", se.StepName, se.Status))
		for _, line := range se.Logs {
			lines = append(lines, fmt.Sprintf("  [%s] %s", se.StepName, line))
		}
		if se.Error != "" {
			lines = append(lines, fmt.Sprintf("  [%s] error: %s", se.StepName, se.Error))
		}
	}
	return lines, nil
}

// run drives the engine over the state and finalizes the execution row.
func (r *Runner) run(ctx context.Context, wf *types.Workflow, exec *types.Execution, state *workflow.ExecutionState) (*types.Execution, error) {
	r.mu.Lock()
	r.live[exec.ID] = state
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.live, exec.ID)
		r.mu.Unlock()
	}()

	engine := workflow.NewEngine(r.executor,
		workflow.WithLogger(r.logger),
		workflow.WithTracer(r.tracer),
		workflow.WithCheckpointSink(&daoCheckpointSink{dao: r.executions}),
		workflow.WithStepCallback(r.recordStep),
	)

	if _, err := engine.Run(ctx, wf, state); err != nil {
		exec.Status = types.ExecutionStatusFailed
		exec.Error = err.Error()
		now := time.Now().UTC()
		exec.CompletedAt = &now
		if updateErr := r.executions.UpdateExecution(ctx, exec); updateErr != nil {
			r.logger.Error("failed to finalize execution",
				"execution_id", exec.ID.String(), "error", updateErr)
		}
		return exec, err
	}

	r.finalize(ctx, exec, state)
	return exec, nil
}

// finalize maps the engine's end state onto the execution row.
func (r *Runner) finalize(ctx context.Context, exec *types.Execution, state *workflow.ExecutionState) {
	snap := state.Snapshot()
	exec.FinalVariables = snap.Variables

	switch {
	case len(snap.Errors) > 0:
		first := snap.Errors[0]
		exec.Status = types.ExecutionStatusFailed
		exec.Error = first.Message
		stepID := types.ID(first.StepID)
		exec.ErrorStepID = &stepID

	case snap.WaitingApproval:
		exec.Status = types.ExecutionStatusWaitingApproval

	case snap.ShouldStop:
		exec.Status = types.ExecutionStatusCancelled
		exec.Error = "cancelled"

	default:
		exec.Status = types.ExecutionStatusSuccess
	}

	if exec.Status != types.ExecutionStatusWaitingApproval {
		now := time.Now().UTC()
		exec.CompletedAt = &now
	}

	if err := r.executions.UpdateExecution(ctx, exec); err != nil {
		r.logger.Error("failed to finalize execution",
			"execution_id", exec.ID.String(), "error", err)
	}
}

// recordStep persists one per-step record after each node body.
func (r *Runner) recordStep(ctx context.Context, state *workflow.ExecutionState, event workflow.StepEvent) {
	se := &types.StepExecution{
		ExecutionID: state.ExecutionID,
		StepID:      event.Step.ID,
		StepName:    event.Step.Name,
		Status:      event.Status,
		RetryCount:  event.RetryCount,
		StartedAt:   &event.StartedAt,
		CompletedAt: &event.CompletedAt,
	}
	if event.Result != nil {
		se.Output = event.Result.OutputMap()
		se.Logs = event.Result.Logs
		if !event.Result.Success {
			se.Error = event.Result.Error
		}
	}
	if err := r.executions.UpsertStepExecution(ctx, se); err != nil {
		r.logger.Error("failed to record step execution",
			"execution_id", state.ExecutionID.String(),
			"step", event.Step.Name, "error", err)
	}
}

// settleApprovalStep marks the approved step's record successful so the
// stored history matches the resumed state.
func (r *Runner) settleApprovalStep(ctx context.Context, executionID types.ID, wf *types.Workflow, approvalStepID string) {
	if approvalStepID == "" {
		return
	}
	for _, step := range wf.Steps {
		if step.ID.String() != approvalStepID {
			continue
		}
		now := time.Now().UTC()
		se := &types.StepExecution{
			ExecutionID: executionID,
			StepID:      step.ID,
			StepName:    step.Name,
			Status:      types.StepStatusSuccess,
			Output:      map[string]any{"approved": true},
			CompletedAt: &now,
		}
		if err := r.executions.UpsertStepExecution(ctx, se); err != nil {
			r.logger.Error("failed to settle approval step",
				"execution_id", executionID.String(), "error", err)
		}
		return
	}
}

// loadSuspended loads an execution plus its checkpoint, requiring the
// execution to be suspended at an approval step.
func (r *Runner) loadSuspended(ctx context.Context, executionID types.ID) (*types.Execution, *workflow.ExecutionState, error) {
	exec, err := r.executions.GetExecution(ctx, executionID)
	if err != nil {
		return nil, nil, err
	}
	if exec.Status != types.ExecutionStatusWaitingApproval {
		return nil, nil, types.NewError(types.EXECUTION_NOT_WAITING,
			fmt.Sprintf("execution %s is %s, not waiting for approval", executionID, exec.Status))
	}

	sink := &daoCheckpointSink{dao: r.executions}
	state, err := sink.Latest(ctx, executionID)
	if err != nil {
		return nil, nil, err
	}
	return exec, state, nil
}

// mergeVariables overlays overrides onto base without mutating either.
func mergeVariables(base, overrides map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(overrides))
	for name, value := range base {
		merged[name] = value
	}
	for name, value := range overrides {
		merged[name] = value
	}
	return merged
}
