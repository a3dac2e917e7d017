package providers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kimjoonhwaan/metaworkflow/internal/llm"
	"github.com/kimjoonhwaan/metaworkflow/internal/types"
)

func TestNewEmptyProviderIsNil(t *testing.T) {
	provider, err := New(llm.Config{})
	require.NoError(t, err)
	assert.Nil(t, provider)
}

func TestNewUnknownProvider(t *testing.T) {
	_, err := New(llm.Config{Provider: "watson"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.NewError(types.LLM_NOT_CONFIGURED, "")))
}

func TestNewOpenAIRequiresKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := New(llm.Config{Provider: "openai", Model: "gpt-4o-mini"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key")
}

func TestNewMockProvider(t *testing.T) {
	provider, err := New(llm.Config{Provider: "mock"})
	require.NoError(t, err)
	require.NotNil(t, provider)
	assert.Equal(t, "mock", provider.Name())
}

func TestMockProviderCyclesResponses(t *testing.T) {
	mock := NewMock("first", "second")

	resp, err := mock.Complete(context.Background(), llm.CompletionRequest{Prompt: "a"})
	require.NoError(t, err)
	assert.Equal(t, "first", resp.Content)

	resp, err = mock.Complete(context.Background(), llm.CompletionRequest{Prompt: "b"})
	require.NoError(t, err)
	assert.Equal(t, "second", resp.Content)

	resp, err = mock.Complete(context.Background(), llm.CompletionRequest{Prompt: "c"})
	require.NoError(t, err)
	assert.Equal(t, "first", resp.Content)

	requests := mock.Requests()
	require.Len(t, requests, 3)
	assert.Equal(t, "a", requests[0].Prompt)
}

func TestMockProviderError(t *testing.T) {
	mock := NewMock("ok")
	mock.SetError(errors.New("rate limited"))

	_, err := mock.Complete(context.Background(), llm.CompletionRequest{Prompt: "x"})
	assert.Error(t, err)
}
