package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MockResponse configures a single response from the mock client. Fragments,
// when set, are the exact fragments emitted before the terminal event;
// otherwise Content is emitted as one fragment. Error, when set, terminates
// the stream after the fragments instead of a done event.
type MockResponse struct {
	Content   string
	Fragments []string
	Error     error
}

// MockClient is a configurable mock chat client for testing. Responses are
// returned in order; if exhausted, the last response repeats.
type MockClient struct {
	mu        sync.Mutex
	responses []MockResponse
	callIndex int
	calls     []ChatRequest
}

// NewMockClient creates a mock client with a sequence of responses.
func NewMockClient(responses ...MockResponse) *MockClient {
	return &MockClient{responses: responses}
}

func (m *MockClient) next(req ChatRequest) (MockResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, req)

	if len(m.responses) == 0 {
		return MockResponse{}, fmt.Errorf("mock: no responses configured")
	}

	idx := m.callIndex
	if idx >= len(m.responses) {
		idx = len(m.responses) - 1
	} else {
		m.callIndex++
	}
	return m.responses[idx], nil
}

// Chat returns the next configured response.
func (m *MockClient) Chat(_ context.Context, req ChatRequest) (*ChatResponse, error) {
	resp, err := m.next(req)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	content := resp.Content
	if content == "" {
		content = strings.Join(resp.Fragments, "")
	}
	return &ChatResponse{Content: content}, nil
}

// ChatStream emits the next configured response as a scripted stream.
func (m *MockClient) ChatStream(_ context.Context, req ChatRequest) (<-chan StreamEvent, error) {
	resp, err := m.next(req)
	if err != nil {
		return nil, err
	}

	fragments := resp.Fragments
	if fragments == nil && resp.Content != "" {
		fragments = []string{resp.Content}
	}

	ch := make(chan StreamEvent, len(fragments)+1)
	go func() {
		defer close(ch)

		for _, f := range fragments {
			ch <- StreamEvent{Type: "text", Text: f}
		}
		if resp.Error != nil {
			ch <- StreamEvent{Type: "error", Error: resp.Error}
			return
		}
		ch <- StreamEvent{Type: "done", Response: &ChatResponse{
			Content: strings.Join(fragments, ""),
		}}
	}()

	return ch, nil
}

// Calls returns all requests made to the mock client.
func (m *MockClient) Calls() []ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ChatRequest(nil), m.calls...)
}

// Reset clears call history and resets the response index.
func (m *MockClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callIndex = 0
	m.calls = nil
}
