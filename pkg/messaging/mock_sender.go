package messaging

import (
	"context"
	"sync"
)

// MockPublisher records published events for tests
type MockPublisher struct {
	mu     sync.Mutex
	events []*Event
	// Err, when set, is returned by Publish after recording the event
	Err error
}

// NewMockPublisher creates a new MockPublisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

// Publish records the event
func (m *MockPublisher) Publish(_ context.Context, event *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return m.Err
}

// Events returns a copy of the recorded events
func (m *MockPublisher) Events() []*Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Event(nil), m.events...)
}

// Types returns the types of the recorded events in publish order
func (m *MockPublisher) Types() []EventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]EventType, 0, len(m.events))
	for _, e := range m.events {
		types = append(types, e.Type)
	}
	return types
}

// Reset forgets the recorded events
func (m *MockPublisher) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
}

// Close does nothing.
func (m *MockPublisher) Close() error {
	return nil
}

// Ensure MockPublisher implements EventPublisher
var _ EventPublisher = (*MockPublisher)(nil)
