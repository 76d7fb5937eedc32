package llm

import (
	"context"
	"fmt"
	"sync"
)

// MockProvider is a testing implementation of StreamingProvider.
type MockProvider struct {
	Response string
	Err      error
	ChatFunc func(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	// ToolMessage is returned by Chat and carried on the Done chunk.
	ToolMessage string

	// Chunks are streamed in order by ChatStream; Response is streamed as a
	// single chunk when empty.
	Chunks []string
	// StreamErr is delivered after Chunks instead of the final Done chunk.
	StreamErr error

	mu       sync.Mutex
	requests []ChatRequest
}

func (m *MockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	m.record(req)
	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, req)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return &ChatResponse{
		Content:     m.Response,
		ToolMessage: m.ToolMessage,
		Usage: Usage{
			PromptTokens:     10,
			CompletionTokens: 10,
			TotalTokens:      20,
		},
	}, nil
}

// ChatStream streams Chunks (or Response) and then either StreamErr or a
// Done chunk.
func (m *MockProvider) ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error) {
	m.record(req)
	if m.Err != nil {
		return nil, m.Err
	}
	parts := m.Chunks
	if len(parts) == 0 {
		parts = []string{m.Response}
	}

	chunks := make(chan StreamChunk)
	go func() {
		defer close(chunks)
		send := func(c StreamChunk) bool {
			select {
			case chunks <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}
		for _, p := range parts {
			if !send(StreamChunk{Role: RoleAssistant, Content: p}) {
				return
			}
		}
		if m.StreamErr != nil {
			send(StreamChunk{Error: m.StreamErr})
			return
		}
		send(StreamChunk{
			Done:        true,
			ToolMessage: m.ToolMessage,
			Usage:       &Usage{PromptTokens: 10, CompletionTokens: len(parts), TotalTokens: 10 + len(parts)},
		})
	}()
	return chunks, nil
}

// Requests returns a copy of the requests received so far.
func (m *MockProvider) Requests() []ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ChatRequest(nil), m.requests...)
}

func (m *MockProvider) record(req ChatRequest) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
}

// FailingMockProvider always fails.
type FailingMockProvider struct {
	Err error
}

func (f *FailingMockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if f.Err == nil {
		return nil, fmt.Errorf("mock error")
	}
	return nil, f.Err
}

var _ StreamingProvider = (*MockProvider)(nil)
