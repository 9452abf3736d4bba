package embeddings

import (
	"context"
	"sync"
)

// Provider shares a single lazily-constructed Embedder across callers.
// Construction happens at most once, on the first embedding call; the
// handle is read-only afterward and safe for concurrent use.
type Provider struct {
	construct func() (Embedder, error)

	once     sync.Once
	embedder Embedder
	err      error
}

var _ Embedder = (*Provider)(nil)

// NewProvider wraps an embedder constructor without invoking it.
func NewProvider(construct func() (Embedder, error)) *Provider {
	return &Provider{construct: construct}
}

// Get returns the shared embedder, constructing it on first call.
// A construction error is sticky and returned to every caller.
func (p *Provider) Get() (Embedder, error) {
	p.once.Do(func() {
		p.embedder, p.err = p.construct()
	})
	return p.embedder, p.err
}

// Embed delegates to the shared embedder, constructing it on first use.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	e, err := p.Get()
	if err != nil {
		return nil, err
	}
	return e.Embed(ctx, text)
}

// EmbedBatch delegates to the shared embedder, constructing it on first use.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e, err := p.Get()
	if err != nil {
		return nil, err
	}
	return e.EmbedBatch(ctx, texts)
}

// Close releases the embedder if it was ever constructed.
func (p *Provider) Close() error {
	if p.embedder != nil {
		return p.embedder.Close()
	}
	return nil
}
