// Package llm defines the text-generation interface consolidation uses to
// extract structured knowledge from episodes, with an Ollama-backed client
// as the default implementation.
package llm

import (
	"context"
	"errors"
)

// ErrGeneration wraps failures from the generation backend.
var ErrGeneration = errors.New("llm generation error")

// Collaborator produces a completion for a prompt. Implementations are safe
// for concurrent use.
type Collaborator interface {
	// Generate returns the model's completion for the prompt.
	Generate(ctx context.Context, prompt string) (string, error)

	// Close releases resources held by the collaborator.
	Close() error
}
