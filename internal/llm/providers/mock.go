package providers

import (
	"context"
	"sync"

	"github.com/kimjoonhwaan/metaworkflow/internal/llm"
	"github.com/kimjoonhwaan/metaworkflow/internal/types"
)

// MockProvider returns canned responses for tests and offline runs.
type MockProvider struct {
	mu        sync.Mutex
	responses []string
	next      int
	err       error
	requests  []llm.CompletionRequest
}

// NewMock creates a MockProvider cycling through the given responses.
func NewMock(responses ...string) *MockProvider {
	if len(responses) == 0 {
		responses = []string{""}
	}
	return &MockProvider{responses: responses}
}

// Name returns "mock".
func (m *MockProvider) Name() string {
	return "mock"
}

// Complete records the request and returns the next canned response.
func (m *MockProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}

	content := m.responses[m.next%len(m.responses)]
	m.next++
	return &llm.CompletionResponse{
		Content:    content,
		Model:      req.Model,
		StopReason: "stop",
	}, nil
}

// Health always reports healthy.
func (m *MockProvider) Health(ctx context.Context) types.HealthStatus {
	return types.Healthy("mock provider")
}

// SetError makes every subsequent Complete call fail with err.
func (m *MockProvider) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Requests returns a copy of every recorded request.
func (m *MockProvider) Requests() []llm.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]llm.CompletionRequest, len(m.requests))
	copy(out, m.requests)
	return out
}
