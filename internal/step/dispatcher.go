// Package step dispatches graph nodes to their concrete executors. The
// dispatcher is the single place that knows what each step type means;
// the engine above it only sees uniform StepResults.
package step

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/kimjoonhwaan/metaworkflow/internal/apiclient"
	"github.com/kimjoonhwaan/metaworkflow/internal/format"
	"github.com/kimjoonhwaan/metaworkflow/internal/llm"
	"github.com/kimjoonhwaan/metaworkflow/internal/notify"
	"github.com/kimjoonhwaan/metaworkflow/internal/sandbox"
	"github.com/kimjoonhwaan/metaworkflow/internal/types"
	"github.com/kimjoonhwaan/metaworkflow/internal/workflow"
)

// Dispatcher routes steps to their executors by type.
type Dispatcher struct {
	sandbox   *sandbox.Sandbox
	apiClient *apiclient.Client
	provider  llm.Provider
	llmConfig llm.Config
	notifier  *notify.Registry
	formatter *format.Formatter
	evaluator *workflow.ConditionEvaluator
	logger    *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithSandbox sets the script sandbox.
func WithSandbox(s *sandbox.Sandbox) Option {
	return func(d *Dispatcher) {
		if s != nil {
			d.sandbox = s
		}
	}
}

// WithAPIClient sets the REST client.
func WithAPIClient(c *apiclient.Client) Option {
	return func(d *Dispatcher) {
		if c != nil {
			d.apiClient = c
		}
	}
}

// WithLLMProvider sets the completion provider and its defaults. A nil
// provider makes llm_call steps fail with a not-configured error.
func WithLLMProvider(p llm.Provider, cfg llm.Config) Option {
	return func(d *Dispatcher) {
		d.provider = p
		d.llmConfig = cfg
	}
}

// WithNotifier sets the notification transport registry.
func WithNotifier(r *notify.Registry) Option {
	return func(d *Dispatcher) {
		if r != nil {
			d.notifier = r
		}
	}
}

// WithFormatter sets the variable formatter.
func WithFormatter(f *format.Formatter) Option {
	return func(d *Dispatcher) {
		if f != nil {
			d.formatter = f
		}
	}
}

// WithEvaluator sets the condition evaluator.
func WithEvaluator(e *workflow.ConditionEvaluator) Option {
	return func(d *Dispatcher) {
		if e != nil {
			d.evaluator = e
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// New creates a Dispatcher with working defaults for every executor.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		sandbox:   sandbox.New(),
		apiClient: apiclient.New(),
		formatter: format.New(),
		evaluator: workflow.NewConditionEvaluator(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.notifier == nil {
		d.notifier = notify.NewRegistry(d.logger)
	}
	return d
}

// ExecuteStep runs one step against its projected input view. The
// switch over step types is closed: unknown types are rejected by
// workflow validation before an execution ever starts, so reaching the
// default arm is an internal error, not a user one.
func (d *Dispatcher) ExecuteStep(ctx context.Context, step types.Step, input map[string]any) (*types.StepResult, error) {
	if input == nil {
		input = map[string]any{}
	}

	switch step.Type {
	case types.StepTypePythonScript:
		return d.executeScript(ctx, step, input)
	case types.StepTypeAPICall:
		return d.executeAPICall(ctx, step, input)
	case types.StepTypeLLMCall:
		return d.executeLLMCall(ctx, step, input)
	case types.StepTypeCondition:
		return d.executeCondition(step, input)
	case types.StepTypeApproval:
		return d.executeApproval(step, input)
	case types.StepTypeNotification:
		return d.executeNotification(ctx, step, input)
	case types.StepTypeDataTransform:
		return d.executeDataTransform(step, input)
	default:
		return types.FailedStepResult(fmt.Sprintf("unsupported step type %q", step.Type)), nil
	}
}

type scriptConfig struct {
	TimeoutSeconds int `mapstructure:"timeout"`
}

func (d *Dispatcher) executeScript(ctx context.Context, step types.Step, input map[string]any) (*types.StepResult, error) {
	var cfg scriptConfig
	if err := decodeConfig(step.Config, &cfg); err != nil {
		return types.FailedStepResult(err.Error()), nil
	}

	var timeout time.Duration
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}

	res, err := d.sandbox.Execute(ctx, sandbox.ExecuteRequest{
		Code:      step.Code,
		Variables: input,
		Timeout:   timeout,
	})
	if err != nil {
		return types.FailedStepResult(err.Error()), nil
	}

	return &types.StepResult{
		Success: res.Success,
		Output:  anyMap(res.Output),
		Error:   res.Error,
		Logs:    res.Logs,
	}, nil
}

func (d *Dispatcher) executeAPICall(ctx context.Context, step types.Step, input map[string]any) (*types.StepResult, error) {
	var req apiclient.Request
	if err := decodeConfig(step.Config, &req); err != nil {
		return types.FailedStepResult(err.Error()), nil
	}

	result := d.apiClient.Do(ctx, req, input)
	return &types.StepResult{
		Success: result.Success,
		Output:  result.ToMap(),
		Error:   result.Error,
	}, nil
}

type llmCallConfig struct {
	Prompt       string  `mapstructure:"prompt"`
	SystemPrompt string  `mapstructure:"system_prompt"`
	Model        string  `mapstructure:"model"`
	Temperature  float64 `mapstructure:"temperature"`
	MaxTokens    int     `mapstructure:"max_tokens"`
}

func (d *Dispatcher) executeLLMCall(ctx context.Context, step types.Step, input map[string]any) (*types.StepResult, error) {
	if d.provider == nil {
		return types.FailedStepResult(
			types.NewError(types.LLM_NOT_CONFIGURED, "no llm provider configured").Error()), nil
	}

	var cfg llmCallConfig
	if err := decodeConfig(step.Config, &cfg); err != nil {
		return types.FailedStepResult(err.Error()), nil
	}
	if cfg.Prompt == "" {
		return types.FailedStepResult("llm_call step requires a prompt"), nil
	}

	prompt := d.formatter.Format(cfg.Prompt, input)
	systemPrompt := d.formatter.Format(cfg.SystemPrompt, input)

	req := llm.CompletionRequest{
		Model:        cfg.Model,
		SystemPrompt: systemPrompt,
		Prompt:       prompt,
		Temperature:  cfg.Temperature,
		MaxTokens:    cfg.MaxTokens,
	}
	if req.Model == "" {
		req.Model = d.llmConfig.Model
	}
	if req.Temperature == 0 {
		req.Temperature = d.llmConfig.Temperature
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = d.llmConfig.MaxTokens
	}

	resp, err := d.provider.Complete(ctx, req)
	if err != nil {
		return types.FailedStepResult(err.Error()), nil
	}

	return types.SuccessStepResult(map[string]any{
		"response":      resp.Content,
		"prompt":        prompt,
		"system_prompt": systemPrompt,
		"model":         resp.Model,
		"raw_response": map[string]any{
			"content":     resp.Content,
			"model":       resp.Model,
			"stop_reason": resp.StopReason,
		},
	}), nil
}

type conditionConfig struct {
	// Condition is the canonical config key; Expression is accepted as
	// an alias.
	Condition  string `mapstructure:"condition"`
	Expression string `mapstructure:"expression"`
}

func (c conditionConfig) expression() string {
	if c.Condition != "" {
		return c.Condition
	}
	return c.Expression
}

func (d *Dispatcher) executeCondition(step types.Step, input map[string]any) (*types.StepResult, error) {
	var cfg conditionConfig
	if err := decodeConfig(step.Config, &cfg); err != nil {
		return types.FailedStepResult(err.Error()), nil
	}
	if cfg.expression() == "" {
		return types.FailedStepResult("condition step requires a condition expression"), nil
	}

	met, err := d.evaluator.Evaluate(cfg.expression(), input)
	if err != nil {
		return types.FailedStepResult(err.Error()), nil
	}

	return types.SuccessStepResult(map[string]any{"condition_met": met}), nil
}

type approvalConfig struct {
	Message string `mapstructure:"message"`
}

func (d *Dispatcher) executeApproval(step types.Step, input map[string]any) (*types.StepResult, error) {
	var cfg approvalConfig
	if err := decodeConfig(step.Config, &cfg); err != nil {
		return types.FailedStepResult(err.Error()), nil
	}

	message := d.formatter.Format(cfg.Message, input)
	if message == "" {
		message = fmt.Sprintf("approval required for step %q", step.Name)
	}

	return &types.StepResult{
		Success:          true,
		Output:           "waiting_approval",
		RequiresApproval: true,
		ApprovalMessage:  message,
	}, nil
}

func (d *Dispatcher) executeNotification(ctx context.Context, step types.Step, input map[string]any) (*types.StepResult, error) {
	var msg notify.Message
	if err := decodeConfig(step.Config, &msg); err != nil {
		return types.FailedStepResult(err.Error()), nil
	}

	msg.Subject = d.formatter.Format(msg.Subject, input)
	msg.Body = d.formatter.Format(msg.Body, input)

	output := map[string]any{"type": msg.Type, "sent": true}
	var logs []string
	if err := d.notifier.Notify(ctx, msg); err != nil {
		// Delivery failures are reported but do not fail the step.
		output["sent"] = false
		output["error"] = err.Error()
		logs = append(logs, fmt.Sprintf("notification delivery failed: %v", err))
		d.logger.Warn("notification delivery failed", "step", step.Name, "error", err)
	}

	return &types.StepResult{Success: true, Output: output, Logs: logs}, nil
}

type transformRule struct {
	Target     string `mapstructure:"target"`
	Expression string `mapstructure:"expression"`
}

type transformConfig struct {
	Rules []transformRule `mapstructure:"rules"`
}

func (d *Dispatcher) executeDataTransform(step types.Step, input map[string]any) (*types.StepResult, error) {
	var cfg transformConfig
	if err := decodeConfig(step.Config, &cfg); err != nil {
		return types.FailedStepResult(err.Error()), nil
	}

	output := make(map[string]any, len(cfg.Rules))
	for _, rule := range cfg.Rules {
		if rule.Target == "" {
			return types.FailedStepResult("data_transform rule is missing a target"), nil
		}
		output[rule.Target] = d.resolveExpression(step, rule.Expression, input)
	}

	return types.SuccessStepResult(output), nil
}

// resolveExpression evaluates a data_transform expression: a quoted
// string or bare literal stays a literal, anything else reads a
// variable name or dotted path from the step's input view. Unresolved
// paths yield nil so downstream steps can probe them.
func (d *Dispatcher) resolveExpression(step types.Step, expr string, input map[string]any) any {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil
	}

	if len(expr) >= 2 {
		first, last := expr[0], expr[len(expr)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			return expr[1 : len(expr)-1]
		}
	}
	switch expr {
	case "true":
		return true
	case "false":
		return false
	case "null":
		return nil
	}
	if n, err := strconv.ParseFloat(expr, 64); err == nil {
		return n
	}

	var current any = input
	for _, key := range strings.Split(expr, ".") {
		node, ok := current.(map[string]any)
		if !ok {
			d.logger.Warn("transform expression path not found",
				"step", step.Name, "expression", expr)
			return nil
		}
		current, ok = node[key]
		if !ok {
			d.logger.Warn("transform expression path not found",
				"step", step.Name, "expression", expr)
			return nil
		}
	}
	return current
}

// decodeConfig decodes a step config map into a typed struct. Weak
// typing tolerates the float64 numbers JSON decoding produces.
func decodeConfig(config map[string]any, target any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return types.WrapError(types.INTERNAL_ERROR, "failed to build config decoder", err)
	}
	if err := decoder.Decode(config); err != nil {
		return types.WrapError(types.VALIDATION_ERROR, "invalid step config", err)
	}
	return nil
}

// anyMap widens a concrete map for the uniform result shape.
func anyMap(m map[string]any) any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
