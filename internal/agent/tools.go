// Package agent exposes the contracts the workflow authoring and
// modification agents consume: knowledge retrieval, script validation,
// and validated workflow persistence. The agents themselves are black
// boxes to the core.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kimjoonhwaan/metaworkflow/internal/database"
	"github.com/kimjoonhwaan/metaworkflow/internal/knowledge"
	"github.com/kimjoonhwaan/metaworkflow/internal/llm"
	"github.com/kimjoonhwaan/metaworkflow/internal/types"
	"github.com/kimjoonhwaan/metaworkflow/internal/validate"
)

// Purpose states why an agent is retrieving context.
type Purpose string

const (
	// PurposeCreate retrieves broad context for authoring a new workflow.
	PurposeCreate Purpose = "create"
	// PurposeFix retrieves focused context for repairing a failing one.
	PurposeFix Purpose = "fix"
)

// AuthoringTools is what the authoring agents see of the core.
type AuthoringTools interface {
	// RetrieveContext returns a rendered context window of relevant
	// knowledge for the query.
	RetrieveContext(ctx context.Context, query string, purpose Purpose) (string, error)

	// ValidateCode statically checks one python_script body.
	ValidateCode(code string) validate.Result

	// PersistWorkflow validates every script body and stores the
	// workflow, allocating version 1 for new workflows and version+1
	// with a prior-definition archive for updates.
	PersistWorkflow(ctx context.Context, wf *types.Workflow) (types.ID, error)
}

// Default context budgets per purpose, in approximate tokens.
const (
	createContextTokens = 2000
	fixContextTokens    = 1200
)

// Tools is the concrete AuthoringTools backed by the knowledge index,
// the workflow store, and the script validator.
type Tools struct {
	knowledge *knowledge.Manager
	workflows database.WorkflowDAO
	validator *validate.Validator
	provider  llm.Provider
	llmConfig llm.Config
	logger    *slog.Logger
}

// Option configures Tools.
type Option func(*Tools)

// WithLLMProvider enables the one-shot validation auto-fix pass.
func WithLLMProvider(provider llm.Provider, cfg llm.Config) Option {
	return func(t *Tools) {
		t.provider = provider
		t.llmConfig = cfg
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tools) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// NewTools creates the authoring toolset.
func NewTools(km *knowledge.Manager, workflows database.WorkflowDAO, opts ...Option) *Tools {
	t := &Tools{
		knowledge: km,
		workflows: workflows,
		validator: validate.New(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// RetrieveContext routes the query through the domain classifier and
// hybrid search, then renders the hits into one context window. Fix
// retrievals get a tighter budget and fewer hits so the failing detail
// stays prominent.
func (t *Tools) RetrieveContext(ctx context.Context, query string, purpose Purpose) (string, error) {
	limit, budget := 5, createContextTokens
	switch purpose {
	case PurposeCreate:
	case PurposeFix:
		limit, budget = 3, fixContextTokens
	default:
		return "", types.NewError(types.VALIDATION_ERROR,
			fmt.Sprintf("unknown retrieval purpose %q", purpose))
	}

	hits, err := t.knowledge.SearchMetadata(ctx, query, "", limit, 0)
	if err != nil {
		return "", err
	}
	if len(hits) == 0 {
		return "", nil
	}
	return knowledge.BuildContext(hits, budget), nil
}

// ValidateCode checks one script body.
func (t *Tools) ValidateCode(code string) validate.Result {
	return t.validator.Validate(code)
}

// PersistWorkflow stores a validated workflow. Fatal validation issues
// in any python_script body reject the whole definition; when an LLM
// provider is configured, one automatic fix attempt per failing step
// runs first.
func (t *Tools) PersistWorkflow(ctx context.Context, wf *types.Workflow) (types.ID, error) {
	for i := range wf.Steps {
		step := &wf.Steps[i]
		if step.Type != types.StepTypePythonScript {
			continue
		}

		result := t.validator.Validate(step.Code)
		if !result.HasErrors() {
			continue
		}

		fixed, ok := t.tryAutoFix(ctx, step.Code, result)
		if !ok {
			return "", validationError(step.Name, result)
		}
		t.logger.Info("auto-fixed script validation failures", "step", step.Name)
		step.Code = fixed
	}

	if wf.ID == "" {
		if err := t.workflows.Create(ctx, wf); err != nil {
			return "", err
		}
		return wf.ID, nil
	}
	if err := t.workflows.Update(ctx, wf, "agent update", "agent"); err != nil {
		return "", err
	}
	return wf.ID, nil
}

// tryAutoFix asks the LLM to repair a failing script once. Returns the
// fixed body only when it passes validation.
func (t *Tools) tryAutoFix(ctx context.Context, code string, result validate.Result) (string, bool) {
	if t.provider == nil {
		return "", false
	}

	resp, err := t.provider.Complete(ctx, llm.CompletionRequest{
		Model:        t.llmConfig.Model,
		SystemPrompt: "You fix Python scripts. Return only the corrected script, no explanation.",
		Prompt:       fixPrompt(code, result),
		Temperature:  t.llmConfig.Temperature,
		MaxTokens:    t.llmConfig.MaxTokens,
	})
	if err != nil {
		t.logger.Warn("auto-fix completion failed", "error", err)
		return "", false
	}

	fixed := stripCodeFences(resp.Content)
	if fixed == "" || t.validator.Validate(fixed).HasErrors() {
		return "", false
	}
	return fixed, true
}

func fixPrompt(code string, result validate.Result) string {
	var b strings.Builder
	b.WriteString("The following Python script fails validation.\n\nIssues:\n")
	for _, issue := range result.Errors() {
		fmt.Fprintf(&b, "- line %d: %s\n", issue.Line, issue.Message)
	}
	b.WriteString("\nScript:\n")
	b.WriteString(code)
	return b.String()
}

// stripCodeFences unwraps a markdown-fenced completion.
func stripCodeFences(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	lines := strings.Split(content, "\n")
	if len(lines) < 2 {
		return content
	}
	lines = lines[1:]
	if strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// validationError renders fatal issues into one structured error.
func validationError(stepName string, result validate.Result) error {
	var b strings.Builder
	fmt.Fprintf(&b, "step %q failed script validation:", stepName)
	for _, issue := range result.Errors() {
		fmt.Fprintf(&b, " line %d: %s;", issue.Line, issue.Message)
	}
	return types.NewError(types.VALIDATION_ERROR, strings.TrimSuffix(b.String(), ";"))
}
