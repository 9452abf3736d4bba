package testutils

import (
	"context"
	"fmt"

	"github.com/loambase/loam/pkg/llm"
)

// MockCollaborator is a scripted LLM collaborator: each Generate call pops
// the next queued response. Prompts are recorded for assertions.
type MockCollaborator struct {
	// Responses is consumed one per Generate call. When exhausted, the
	// last response repeats.
	Responses []string

	// Prompts accumulates every prompt passed to Generate.
	Prompts []string

	// Fail causes Generate to return an error.
	Fail bool

	calls int
}

func NewMockCollaborator(responses ...string) *MockCollaborator {
	return &MockCollaborator{Responses: responses}
}

func (m *MockCollaborator) Generate(_ context.Context, prompt string) (string, error) {
	m.Prompts = append(m.Prompts, prompt)
	if m.Fail {
		return "", fmt.Errorf("mock generation failure")
	}
	if len(m.Responses) == 0 {
		return "", nil
	}

	idx := m.calls
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	}
	m.calls++
	return m.Responses[idx], nil
}

func (m *MockCollaborator) Close() error {
	return nil
}

var _ llm.Collaborator = (*MockCollaborator)(nil)
