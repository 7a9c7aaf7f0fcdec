package llm

import (
	"context"
)

// MockGateway is a configurable mock for testing model interactions.
// Set the function fields to control behavior in tests.
type MockGateway struct {
	// GenerateFunc is called when Generate is invoked.
	// If nil, returns an empty result and nil error.
	GenerateFunc func(ctx context.Context, req *GenerateRequest) (*GenerateResult, error)

	// GenerateStreamFunc is called when GenerateStream is invoked.
	// If nil, returns a closed channel.
	GenerateStreamFunc func(ctx context.Context, req *GenerateRequest, tools []ToolDefinition) (<-chan Chunk, error)

	// ModelName is returned by Model. Defaults to "mock-model".
	ModelName string

	// Call tracking for verification
	GenerateCalls       int
	GenerateStreamCalls int

	// GenerateRequests records every request passed to Generate, in order.
	GenerateRequests []*GenerateRequest
}

// NewMockGateway creates a new mock with sensible defaults.
func NewMockGateway() *MockGateway {
	return &MockGateway{
		ModelName: "mock-model",
	}
}

// Generate implements Gateway.
func (m *MockGateway) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResult, error) {
	m.GenerateCalls++
	m.GenerateRequests = append(m.GenerateRequests, req)
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, req)
	}
	return &GenerateResult{}, nil
}

// GenerateStream implements Gateway.
func (m *MockGateway) GenerateStream(ctx context.Context, req *GenerateRequest, tools []ToolDefinition) (<-chan Chunk, error) {
	m.GenerateStreamCalls++
	if m.GenerateStreamFunc != nil {
		return m.GenerateStreamFunc(ctx, req, tools)
	}
	ch := make(chan Chunk)
	close(ch)
	return ch, nil
}

// Model implements Gateway.
func (m *MockGateway) Model() string {
	if m.ModelName == "" {
		return "mock-model"
	}
	return m.ModelName
}

// Reset clears call tracking.
func (m *MockGateway) Reset() {
	m.GenerateCalls = 0
	m.GenerateStreamCalls = 0
	m.GenerateRequests = nil
}

// StreamOf builds a pre-baked chunk channel for GenerateStreamFunc.
func StreamOf(chunks ...Chunk) <-chan Chunk {
	ch := make(chan Chunk, len(chunks))
	for _, c := range chunks {
		ch <- c
	}
	close(ch)
	return ch
}

// Ensure MockGateway implements Gateway at compile time.
var _ Gateway = (*MockGateway)(nil)
