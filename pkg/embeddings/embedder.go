// Package embeddings
package embeddings

import "context"

// DefaultDimensions is the expected embedding width for the default model.
const DefaultDimensions = 384

// Embedder provides text embedding capabilities. Implementations must be
// deterministic per model version so stored vectors are reproducible.
type Embedder interface {
	// Embed converts text into a vector embedding. Empty or whitespace-only
	// input is normalized to a single space, never an error.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch converts a batch of texts into vectors, one per input,
	// in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Close releases any resources held by the embedder.
	Close() error
}

// NormalizeInput maps empty input to a single space so providers never see
// a zero-length request.
func NormalizeInput(text string) string {
	if text == "" {
		return " "
	}
	return text
}
