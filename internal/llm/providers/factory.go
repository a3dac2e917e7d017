package providers

import (
	"fmt"
	"os"

	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/kimjoonhwaan/metaworkflow/internal/llm"
	"github.com/kimjoonhwaan/metaworkflow/internal/types"
)

// New creates a provider from configuration. An empty provider name
// returns (nil, nil): llm_call steps then fail with a clear
// not-configured error instead of at construction time.
func New(cfg llm.Config) (llm.Provider, error) {
	switch cfg.Provider {
	case "":
		return nil, nil
	case "openai":
		return newOpenAI(cfg)
	case "anthropic":
		return newAnthropic(cfg)
	case "ollama":
		return newOllama(cfg)
	case "mock":
		return NewMock("mock response"), nil
	default:
		return nil, types.NewError(types.LLM_NOT_CONFIGURED,
			fmt.Sprintf("unknown llm provider %q", cfg.Provider))
	}
}

func newOpenAI(cfg llm.Config) (llm.Provider, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, types.NewError(types.LLM_NOT_CONFIGURED,
			"openai provider requires api_key (or OPENAI_API_KEY)")
	}

	opts := []openai.Option{openai.WithToken(apiKey)}
	if cfg.Model != "" {
		opts = append(opts, openai.WithModel(cfg.Model))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	client, err := openai.New(opts...)
	if err != nil {
		return nil, types.WrapError(types.LLM_NOT_CONFIGURED, "failed to create openai client", err)
	}
	return &langchainProvider{name: "openai", model: client, defaultModel: cfg.Model}, nil
}

func newAnthropic(cfg llm.Config) (llm.Provider, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, types.NewError(types.LLM_NOT_CONFIGURED,
			"anthropic provider requires api_key (or ANTHROPIC_API_KEY)")
	}

	opts := []anthropic.Option{anthropic.WithToken(apiKey)}
	if cfg.Model != "" {
		opts = append(opts, anthropic.WithModel(cfg.Model))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
	}

	client, err := anthropic.New(opts...)
	if err != nil {
		return nil, types.WrapError(types.LLM_NOT_CONFIGURED, "failed to create anthropic client", err)
	}
	return &langchainProvider{name: "anthropic", model: client, defaultModel: cfg.Model}, nil
}

func newOllama(cfg llm.Config) (llm.Provider, error) {
	var opts []ollama.Option
	if cfg.Model != "" {
		opts = append(opts, ollama.WithModel(cfg.Model))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
	}

	client, err := ollama.New(opts...)
	if err != nil {
		return nil, types.WrapError(types.LLM_NOT_CONFIGURED, "failed to create ollama client", err)
	}
	return &langchainProvider{name: "ollama", model: client, defaultModel: cfg.Model}, nil
}
