package testutils

import (
	"context"
	"fmt"
	"sync"

	"github.com/loambase/loam/pkg/eventstream"
)

// MockPublisher records published mutation events for assertions.
type MockPublisher struct {
	mu     sync.Mutex
	events []*eventstream.MutationEvent

	// Fail causes PublishMutation to return an error.
	Fail bool
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) PublishMutation(_ context.Context, event *eventstream.MutationEvent) error {
	if event == nil {
		return eventstream.ErrNilMutationEvent
	}
	if m.Fail {
		return fmt.Errorf("mock publish failure")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

// Events returns a snapshot of everything published so far.
func (m *MockPublisher) Events() []*eventstream.MutationEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*eventstream.MutationEvent(nil), m.events...)
}

// EventsOfType returns the published events with the given type.
func (m *MockPublisher) EventsOfType(eventType string) []*eventstream.MutationEvent {
	var matched []*eventstream.MutationEvent
	for _, e := range m.Events() {
		if e.EventType == eventType {
			matched = append(matched, e)
		}
	}
	return matched
}

func (m *MockPublisher) Close() error {
	return nil
}

var _ eventstream.Publisher = (*MockPublisher)(nil)
