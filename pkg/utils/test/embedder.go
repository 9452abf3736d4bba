package testutils

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"

	"github.com/loambase/loam/pkg/embeddings"
)

// MockEmbedder is a test embedder that returns deterministic embeddings:
// a normalized bag-of-words hash vector, so texts sharing tokens land close
// in cosine space. Exact outputs can be pinned per input via Embeddings.
type MockEmbedder struct {
	// Embeddings overrides the derived vector for exact input texts.
	Embeddings map[string][]float32

	// Dimensions is the derived vector width. Defaults to 16.
	Dimensions int

	// FailOn causes Embed to return an error when the input text matches.
	FailOn string
}

func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{
		Embeddings: make(map[string][]float32),
		Dimensions: 16,
	}
}

func (m *MockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if m.FailOn != "" && text == m.FailOn {
		return nil, fmt.Errorf("mock embedding failure for: %s", text)
	}

	if emb, ok := m.Embeddings[text]; ok {
		return emb, nil
	}

	return m.derive(text), nil
}

func (m *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := m.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		vecs[i] = vec
	}
	return vecs, nil
}

func (m *MockEmbedder) derive(text string) []float32 {
	dims := m.Dimensions
	if dims <= 0 {
		dims = 16
	}

	vec := make([]float32, dims)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(tok))
		vec[h.Sum32()%uint32(dims)]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

func (m *MockEmbedder) Close() error {
	return nil
}

var _ embeddings.Embedder = (*MockEmbedder)(nil)
