// Package providers holds the concrete LLM backends, built on
// langchaingo's provider clients.
package providers

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"

	"github.com/kimjoonhwaan/metaworkflow/internal/llm"
	"github.com/kimjoonhwaan/metaworkflow/internal/types"
)

// langchainProvider adapts any langchaingo llms.Model to llm.Provider.
// The concrete backends differ only in construction.
type langchainProvider struct {
	name         string
	model        llms.Model
	defaultModel string
}

// Name returns the provider name.
func (p *langchainProvider) Name() string {
	return p.name
}

// Complete sends a completion request through langchaingo.
func (p *langchainProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	var messages []llms.MessageContent
	if req.SystemPrompt != "" {
		messages = append(messages, llms.TextParts(schema.ChatMessageTypeSystem, req.SystemPrompt))
	}
	messages = append(messages, llms.TextParts(schema.ChatMessageTypeHuman, req.Prompt))

	var opts []llms.CallOption
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}
	if model != "" {
		opts = append(opts, llms.WithModel(model))
	}
	if req.Temperature > 0 {
		opts = append(opts, llms.WithTemperature(req.Temperature))
	}
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}

	resp, err := p.model.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return nil, types.WrapError(types.LLM_COMPLETION_FAILED,
			fmt.Sprintf("%s completion failed", p.name), err)
	}
	if len(resp.Choices) == 0 {
		return nil, types.NewError(types.LLM_COMPLETION_FAILED,
			fmt.Sprintf("%s returned no choices", p.name))
	}

	choice := resp.Choices[0]
	return &llm.CompletionResponse{
		Content:    choice.Content,
		Model:      model,
		StopReason: choice.StopReason,
	}, nil
}

// Health reports reachability. Completion providers expose no cheap
// ping, so health reflects construction state only.
func (p *langchainProvider) Health(ctx context.Context) types.HealthStatus {
	if p.model == nil {
		return types.Unhealthy(fmt.Sprintf("%s provider not initialized", p.name))
	}
	return types.Healthy(fmt.Sprintf("%s provider configured (model: %s)", p.name, p.defaultModel))
}
