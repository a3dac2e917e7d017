package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"math/rand"
	"sync"

	"github.com/kimjoonhwaan/metaworkflow/internal/types"
)

// MockEmbedder produces deterministic unit vectors seeded from a text
// hash: the same text always embeds identically, and different texts
// diverge. Used in tests and offline development.
type MockEmbedder struct {
	mu         sync.RWMutex
	dimensions int
	embedErr   error
	calls      int
}

// NewMockEmbedder creates a deterministic test embedder.
func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{dimensions: 64}
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	return m.generate(text), nil
}

func (m *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	out := make([][]float64, len(texts))
	for i, text := range texts {
		out[i] = m.generate(text)
	}
	return out, nil
}

// generate hashes the text into a PRNG seed and draws a normalized
// vector from it.
func (m *MockEmbedder) generate(text string) []float64 {
	hash := sha256.Sum256([]byte(text))
	rng := rand.New(rand.NewSource(int64(binary.BigEndian.Uint64(hash[:8]))))

	vec := make([]float64, m.dimensions)
	var sum float64
	for i := range vec {
		vec[i] = rng.Float64()*2 - 1
		sum += vec[i] * vec[i]
	}
	if sum == 0 {
		return vec
	}
	norm := math.Sqrt(sum)
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

func (m *MockEmbedder) Dimensions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dimensions
}

func (m *MockEmbedder) Model() string {
	return "mock-embedder"
}

func (m *MockEmbedder) Health(ctx context.Context) types.HealthStatus {
	return types.Healthy("mock embedder")
}

// SetDimensions changes the vector width for subsequent embeds.
func (m *MockEmbedder) SetDimensions(dims int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dimensions = dims
}

// SetEmbedError makes every embed call fail with err.
func (m *MockEmbedder) SetEmbedError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.embedErr = err
}

// CallCount returns how many embed calls were made.
func (m *MockEmbedder) CallCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls
}
