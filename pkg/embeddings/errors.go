package embeddings

import "errors"

// ErrEmbedding indicates a failure generating an embedding.
var ErrEmbedding = errors.New("embedding error")
