package gateway

import (
	"context"
	"sync"
)

// MockProvider is a lightweight in-memory Provider useful for tests and
// examples. Responses are served in FIFO order; errors queued via FailWith
// are returned before any queued response.
type MockProvider struct {
	mu        sync.Mutex
	name      string
	responses []string
	errs      []error
	calls     int
}

// NewMockProvider constructs a named MockProvider.
func NewMockProvider(name string) *MockProvider {
	return &MockProvider{name: name}
}

// Name implements Provider.
func (m *MockProvider) Name() string { return m.name }

// AddResponse queues a canned completion.
func (m *MockProvider) AddResponse(text string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, text)
	return m
}

// FailWith queues an error returned ahead of any queued response.
func (m *MockProvider) FailWith(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = append(m.errs, err)
	return m
}

// Calls returns how many times GenerateText was invoked.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// GenerateText implements Provider.
func (m *MockProvider) GenerateText(_ context.Context, _ TextRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		return "", err
	}
	if len(m.responses) == 0 {
		return "ok", nil
	}
	text := m.responses[0]
	if len(m.responses) > 1 {
		m.responses = m.responses[1:]
	}
	return text, nil
}

// MockEmbedder is an Embedder double returning a fixed vector or queued
// errors.
type MockEmbedder struct {
	mu     sync.Mutex
	name   string
	vector []float64
	errs   []error
	calls  int
}

// NewMockEmbedder constructs a named MockEmbedder returning vector.
func NewMockEmbedder(name string, vector []float64) *MockEmbedder {
	return &MockEmbedder{name: name, vector: vector}
}

// Name implements Embedder.
func (m *MockEmbedder) Name() string { return m.name }

// FailWith queues an error returned ahead of the fixed vector.
func (m *MockEmbedder) FailWith(err error) *MockEmbedder {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = append(m.errs, err)
	return m
}

// Calls returns how many times EmbedText was invoked.
func (m *MockEmbedder) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// EmbedText implements Embedder.
func (m *MockEmbedder) EmbedText(_ context.Context, _ string) ([]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		return nil, err
	}
	out := make([]float64, len(m.vector))
	copy(out, m.vector)
	return out, nil
}
