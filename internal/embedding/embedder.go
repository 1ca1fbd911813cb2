// Package embedding provides the text embedding contract, a deterministic feature-hashing
// embedder, and an LRU cache in front of any embedder.
package embedding

import "context"

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}
