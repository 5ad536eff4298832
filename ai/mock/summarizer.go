package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/poiesic/lexsync/ai"
)

// MockSummarizer is a test double for ai.Summarizer.
// It allows custom behavior injection via function fields.
type MockSummarizer struct {
	// SummarizeFunc is called by Summarize if set.
	// If nil, the first sentence of the text becomes the summary.
	SummarizeFunc func(ctx context.Context, req ai.SummaryRequest) (*ai.Summary, error)

	mu        sync.Mutex
	callCount int
	requests  []ai.SummaryRequest
}

// NewMockSummarizer creates a mock summarizer with default behavior.
// Note: Returns concrete type to allow test assertions.
func NewMockSummarizer() *MockSummarizer {
	return &MockSummarizer{}
}

// WithSummarizeFunc sets custom behavior for Summarize.
func (m *MockSummarizer) WithSummarizeFunc(fn func(ctx context.Context, req ai.SummaryRequest) (*ai.Summary, error)) *MockSummarizer {
	m.SummarizeFunc = fn
	return m
}

// Summarize records the call and returns a deterministic summary.
func (m *MockSummarizer) Summarize(ctx context.Context, req ai.SummaryRequest) (*ai.Summary, error) {
	m.mu.Lock()
	m.callCount++
	m.requests = append(m.requests, req)
	fn := m.SummarizeFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	text := strings.TrimSpace(req.Text)
	if i := strings.IndexAny(text, ".!?"); i >= 0 {
		text = text[:i+1]
	}
	if text == "" {
		text = "No text available for " + req.FileName + "."
	}
	s := &ai.Summary{Text: text}
	return ai.Finalize(s, req.Text), nil
}

// CallCount returns the number of times Summarize was called.
func (m *MockSummarizer) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// Requests returns a copy of every request received.
func (m *MockSummarizer) Requests() []ai.SummaryRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ai.SummaryRequest(nil), m.requests...)
}

// Reset clears the call history.
func (m *MockSummarizer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount = 0
	m.requests = nil
}
