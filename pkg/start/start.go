// Package start wires configuration into a running loam system: the
// Postgres store, embedder, event publisher, and optional LLM collaborator.
// CLI commands bring the system up, use the pieces they need, and tear it
// down again.
package start

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/loambase/loam/pkg/config"
	"github.com/loambase/loam/pkg/embeddings"
	embedollama "github.com/loambase/loam/pkg/embeddings/ollama"
	"github.com/loambase/loam/pkg/eventstream"
	eskafka "github.com/loambase/loam/pkg/eventstream/kafka"
	"github.com/loambase/loam/pkg/eventstream/nop"
	"github.com/loambase/loam/pkg/llm"
	llmollama "github.com/loambase/loam/pkg/llm/ollama"
	"github.com/loambase/loam/pkg/logger"
	"github.com/loambase/loam/pkg/memory"
	"github.com/loambase/loam/pkg/memory/postgres"
)

// System holds a wired loam instance.
type System struct {
	Config    *config.Config
	Logger    *zap.Logger
	Store     memory.Store
	Embedder  embeddings.Embedder
	Publisher eventstream.Publisher

	// Collaborator is nil when no LLM provider is configured;
	// consolidation then runs dry.
	Collaborator llm.Collaborator
}

// Up loads configuration from the given directory (or the default .loam/
// resolution when empty) and connects every component.
func Up(ctx context.Context, configDir string, debug bool) (*System, error) {
	v, err := config.InitViper(configDir)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return nil, err
	}

	sys := &System{
		Config: cfg,
		Logger: logger.NewLogger(debug),
	}

	construct, err := embedderConstructor(cfg)
	if err != nil {
		return nil, err
	}
	// The provider defers connecting to the embedding model until the
	// first embedding call; commands that never embed never pay for it.
	sys.Embedder = embeddings.NewProvider(construct)

	sys.Publisher, err = newPublisher(cfg)
	if err != nil {
		return nil, err
	}

	sys.Collaborator, err = newCollaborator(cfg)
	if err != nil {
		return nil, err
	}

	sys.Store, err = postgres.NewStore(ctx, postgres.Config{
		ConnString: cfg.Database.URL,
		Embedder:   sys.Embedder,
		Publisher:  sys.Publisher,
		Logger:     sys.Logger,
	})
	if err != nil {
		sys.Close()
		return nil, fmt.Errorf("connecting store: %w", err)
	}

	return sys, nil
}

// embedderConstructor validates the configured provider up front but leaves
// construction to the embeddings.Provider singleton.
func embedderConstructor(cfg *config.Config) (func() (embeddings.Embedder, error), error) {
	switch cfg.Embedding.Provider {
	case "ollama":
		return func() (embeddings.Embedder, error) {
			return embedollama.NewEmbedder(embedollama.EmbedderConfig{
				BaseURL: cfg.Embedding.Target,
				Model:   cfg.Embedding.Model,
			})
		}, nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Embedding.Provider)
	}
}

func newPublisher(cfg *config.Config) (eventstream.Publisher, error) {
	switch cfg.Events.Provider {
	case "", "nop":
		return nop.NewPublisher(), nil
	case "kafka":
		return eskafka.NewPublisher(eskafka.Config{
			Brokers: cfg.Events.Brokers,
			Topic:   cfg.Events.Topic,
		})
	default:
		return nil, fmt.Errorf("unknown events provider %q", cfg.Events.Provider)
	}
}

func newCollaborator(cfg *config.Config) (llm.Collaborator, error) {
	switch cfg.LLM.Provider {
	case "":
		return nil, nil
	case "ollama":
		return llmollama.NewCollaborator(llmollama.Config{
			BaseURL: cfg.LLM.Target,
			Model:   cfg.LLM.Model,
		})
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
}

// Close tears down every component that was brought up, tolerating a
// partially-constructed system.
func (s *System) Close() error {
	var firstErr error
	if s.Store != nil {
		if err := s.Store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.Collaborator != nil {
		if err := s.Collaborator.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.Publisher != nil {
		if err := s.Publisher.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.Embedder != nil {
		if err := s.Embedder.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.Logger != nil {
		_ = s.Logger.Sync()
	}
	return firstErr
}
