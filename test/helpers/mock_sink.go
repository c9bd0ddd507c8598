package helpers

import (
	"context"
	"sync"

	"github.com/andrescamacho/carfactory-go/internal/application/factory"
)

// MockSink is an in-memory event sink for testing
type MockSink struct {
	mu     sync.Mutex
	events []factory.Event
	Err    error
}

// NewMockSink creates an empty mock sink
func NewMockSink() *MockSink {
	return &MockSink{}
}

func (m *MockSink) Name() string { return "mock" }

// Record stores the event, or returns Err when set
func (m *MockSink) Record(ctx context.Context, event factory.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.events = append(m.events, event)
	return nil
}

// Completions returns the recorded completion events
func (m *MockSink) Completions() []factory.CompletionEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []factory.CompletionEvent
	for _, e := range m.events {
		if c, ok := e.(factory.CompletionEvent); ok {
			out = append(out, c)
		}
	}
	return out
}

// Restocks returns the recorded restock events
func (m *MockSink) Restocks() []factory.RestockEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []factory.RestockEvent
	for _, e := range m.events {
		if r, ok := e.(factory.RestockEvent); ok {
			out = append(out, r)
		}
	}
	return out
}
