package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/kimjoonhwaan/metaworkflow/internal/types"
)

const defaultRetryDelaySeconds = 1.0

// StepExecutor runs one step against its projected input view and
// returns the uniform result. The dispatcher implements this; the
// engine never knows which step type it is driving.
type StepExecutor interface {
	ExecuteStep(ctx context.Context, step types.Step, input map[string]any) (*types.StepResult, error)
}

// StepEvent describes one completed node body for observers.
type StepEvent struct {
	Step        types.Step
	Status      types.StepStatus
	Result      *types.StepResult
	RetryCount  int
	StartedAt   time.Time
	CompletedAt time.Time
}

// StepCallback is invoked after every node body, before the
// checkpoint. The runner uses it to persist per-step records.
type StepCallback func(ctx context.Context, state *ExecutionState, event StepEvent)

// Engine interprets a workflow as a sequential state graph: one node
// per step, a router between nodes, a checkpoint after each. A single
// execution never runs two steps concurrently.
type Engine struct {
	executor  StepExecutor
	evaluator *ConditionEvaluator
	sink      CheckpointSink
	logger    *slog.Logger
	tracer    trace.Tracer
	onStep    StepCallback

	// sleep is replaceable in tests to avoid real retry delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithTracer sets the OpenTelemetry tracer used for per-step spans.
func WithTracer(tracer trace.Tracer) EngineOption {
	return func(e *Engine) {
		if tracer != nil {
			e.tracer = tracer
		}
	}
}

// WithCheckpointSink sets where snapshots go after each node.
func WithCheckpointSink(sink CheckpointSink) EngineOption {
	return func(e *Engine) {
		if sink != nil {
			e.sink = sink
		}
	}
}

// WithEvaluator replaces the condition evaluator.
func WithEvaluator(evaluator *ConditionEvaluator) EngineOption {
	return func(e *Engine) {
		if evaluator != nil {
			e.evaluator = evaluator
		}
	}
}

// WithStepCallback registers the per-step observer.
func WithStepCallback(cb StepCallback) EngineOption {
	return func(e *Engine) {
		e.onStep = cb
	}
}

// NewEngine creates an Engine around a step executor.
func NewEngine(executor StepExecutor, opts ...EngineOption) *Engine {
	e := &Engine{
		executor:  executor,
		evaluator: NewConditionEvaluator(),
		sink:      NewMemoryCheckpointSink(),
		logger:    slog.Default(),
		tracer:    noop.NewTracerProvider().Tracer("workflow"),
		sleep: func(ctx context.Context, d time.Duration) error {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
				return nil
			}
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Sink returns the engine's checkpoint sink.
func (e *Engine) Sink() CheckpointSink {
	return e.sink
}

// Run drives the graph from the state's current position to a stop or
// suspension. A fresh state starts at the first step; a resumed state
// skips every step already in a terminal status. The returned state is
// the same object, after the final checkpoint.
//
// Run returns an error only for structural problems (an unbuildable
// graph). Step failures are recorded in the state, not returned.
func (e *Engine) Run(ctx context.Context, wf *types.Workflow, state *ExecutionState) (*ExecutionState, error) {
	graph, err := BuildGraph(wf)
	if err != nil {
		return state, err
	}

	ctx, span := e.tracer.Start(ctx, "workflow.run",
		trace.WithAttributes(
			attribute.String("workflow.id", state.WorkflowID.String()),
			attribute.String("execution.id", state.ExecutionID.String()),
			attribute.Int("workflow.steps", graph.Len()),
		))
	defer span.End()

	for _, id := range graph.Order {
		if ctx.Err() != nil {
			state.Stop()
			state.AppendLog("execution cancelled")
		}

		if r := route(state); r != RouteContinue {
			e.logger.Info("routing halted execution",
				"execution_id", state.ExecutionID.String(),
				"route", string(r))
			break
		}

		// Resume path: steps already settled by a prior run stay as
		// they are.
		if state.Status(id).IsTerminal() {
			continue
		}

		e.runNode(ctx, graph.Node(id), state)
		e.checkpoint(ctx, state)
	}

	return state, nil
}

// runNode executes one node body: gate, input projection, bounded
// retries, result handling.
func (e *Engine) runNode(ctx context.Context, node *Node, state *ExecutionState) {
	step := node.Step
	ctx, span := e.tracer.Start(ctx, "workflow.step",
		trace.WithAttributes(
			attribute.String("step.id", node.ID),
			attribute.String("step.name", step.Name),
			attribute.String("step.type", step.Type.String()),
		))
	defer span.End()

	startedAt := time.Now()
	state.MarkRunning(node.ID)

	if step.Condition != "" {
		met, err := e.evaluator.Evaluate(step.Condition, state.VariablesCopy())
		if err != nil {
			state.MarkFailed(node.ID, err.Error())
			state.AppendLog(fmt.Sprintf("step %q: condition error: %v", step.Name, err))
			e.notify(ctx, state, StepEvent{
				Step: step, Status: types.StepStatusFailed,
				Result:    types.FailedStepResult(err.Error()),
				StartedAt: startedAt, CompletedAt: time.Now(),
			})
			return
		}
		if !met {
			state.MarkSkipped(node.ID, "condition not met")
			state.AppendLog(fmt.Sprintf("step %q skipped: condition not met", step.Name))
			e.notify(ctx, state, StepEvent{
				Step: step, Status: types.StepStatusSkipped,
				Result:    types.SuccessStepResult(map[string]any{"skipped": true}),
				StartedAt: startedAt, CompletedAt: time.Now(),
			})
			return
		}
	}

	input := e.projectInput(step, state)
	result, retries := e.executeWithRetries(ctx, step, input, state)

	for _, line := range result.Logs {
		state.AppendLog(fmt.Sprintf("[%s] %s", step.Name, line))
	}

	completedAt := time.Now()

	switch {
	case result.RequiresApproval:
		state.MarkWaitingApproval(node.ID)
		state.AppendLog(fmt.Sprintf("step %q waiting for approval: %s", step.Name, result.ApprovalMessage))
		e.notify(ctx, state, StepEvent{
			Step: step, Status: types.StepStatusWaitingApproval, Result: result,
			RetryCount: retries, StartedAt: startedAt, CompletedAt: completedAt,
		})

	case result.Success:
		e.applyOutputMapping(step, result, state)
		state.MarkSuccess(node.ID, result.Output)
		e.notify(ctx, state, StepEvent{
			Step: step, Status: types.StepStatusSuccess, Result: result,
			RetryCount: retries, StartedAt: startedAt, CompletedAt: completedAt,
		})

	default:
		state.MarkFailed(node.ID, result.Error)
		state.AppendLog(fmt.Sprintf("step %q failed: %s", step.Name, result.Error))
		e.notify(ctx, state, StepEvent{
			Step: step, Status: types.StepStatusFailed, Result: result,
			RetryCount: retries, StartedAt: startedAt, CompletedAt: completedAt,
		})
	}
}

// projectInput builds the step's view of the variables: every workflow
// variable plus a local alias for each input mapping entry. Mappings
// naming unknown variables are logged and tolerated.
func (e *Engine) projectInput(step types.Step, state *ExecutionState) map[string]any {
	input := state.VariablesCopy()
	for local, wfVar := range step.InputMapping {
		value, ok := input[wfVar]
		if !ok {
			e.logger.Warn("input mapping references unknown variable",
				"step", step.Name, "local", local, "variable", wfVar)
			continue
		}
		input[local] = value
	}
	return input
}

// executeWithRetries runs the step, re-invoking it up to MaxRetries
// times on failure with delay*2^(attempt-1) between attempts. Retries
// re-invoke the step only; graph state never rewinds.
func (e *Engine) executeWithRetries(ctx context.Context, step types.Step, input map[string]any, state *ExecutionState) (*types.StepResult, int) {
	maxRetries := 0
	delaySeconds := defaultRetryDelaySeconds
	if step.RetryConfig != nil {
		maxRetries = step.RetryConfig.MaxRetries
		if step.RetryConfig.RetryDelaySeconds > 0 {
			delaySeconds = step.RetryConfig.RetryDelaySeconds
		}
	}

	var result *types.StepResult
	retries := 0
	for attempt := 1; ; attempt++ {
		res, err := e.executor.ExecuteStep(ctx, step, input)
		if err != nil {
			res = types.FailedStepResult(err.Error())
		}
		if res == nil {
			res = types.FailedStepResult("step executor returned no result")
		}
		result = res

		if result.Success || result.RequiresApproval || attempt > maxRetries {
			break
		}
		if ctx.Err() != nil {
			break
		}

		retries++
		delay := time.Duration(delaySeconds*math.Pow(2, float64(attempt-1))*1000) * time.Millisecond
		state.AppendLog(fmt.Sprintf("step %q attempt %d failed, retrying in %s: %s",
			step.Name, attempt, delay, result.Error))
		if err := e.sleep(ctx, delay); err != nil {
			break
		}
	}

	return result, retries
}

// applyOutputMapping folds the step result back into the workflow
// variables: each entry maps a workflow variable to a key path into
// the result's output. Paths resolve against the output directly, then
// fall back into output["data"]; a path that resolves nowhere leaves
// the variable unchanged.
func (e *Engine) applyOutputMapping(step types.Step, result *types.StepResult, state *ExecutionState) {
	for wfVar, keyPath := range step.OutputMapping {
		value, ok := resolveOutputValue(result, keyPath)
		if !ok {
			e.logger.Warn("output mapping path not found",
				"step", step.Name, "variable", wfVar, "path", keyPath)
			state.AppendLog(fmt.Sprintf("step %q: output path %q not found, variable %q unchanged",
				step.Name, keyPath, wfVar))
			continue
		}
		state.SetVariable(wfVar, value)
	}
}

// resolveOutputValue walks keyPath into the result's output. "output"
// addresses the whole payload; a leading "output." is stripped before
// walking. Unresolved paths are retried under output["data"], the
// canonical payload key.
func resolveOutputValue(result *types.StepResult, keyPath string) (any, bool) {
	if keyPath == "output" || keyPath == "" {
		return result.Output, true
	}
	path := strings.TrimPrefix(keyPath, "output.")

	outputMap := result.OutputMap()
	if outputMap == nil {
		return nil, false
	}

	if value, ok := walkKeys(outputMap, path); ok {
		return value, true
	}
	if data, ok := outputMap["data"].(map[string]any); ok {
		return walkKeys(data, path)
	}
	return nil, false
}

// walkKeys descends a dot-separated key path through nested maps.
func walkKeys(m map[string]any, path string) (any, bool) {
	var current any = m
	for _, key := range strings.Split(path, ".") {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = node[key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func (e *Engine) notify(ctx context.Context, state *ExecutionState, event StepEvent) {
	if e.onStep != nil {
		e.onStep(ctx, state, event)
	}
}

// checkpoint snapshots the state into the sink. Sink failures are
// logged and swallowed so persistence trouble never kills a run.
func (e *Engine) checkpoint(ctx context.Context, state *ExecutionState) {
	if e.sink == nil {
		return
	}
	if err := e.sink.Save(ctx, state.Snapshot()); err != nil {
		e.logger.Error("checkpoint save failed",
			"execution_id", state.ExecutionID.String(), "error", err)
	}
}
