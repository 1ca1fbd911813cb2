package embedding

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedEmbedder memoizes embeddings by text.
type CachedEmbedder struct {
	inner Embedder
	cache *lru.Cache[string, []float32]
}

// NewCachedEmbedder wraps inner with an LRU cache holding up to size entries.
func NewCachedEmbedder(inner Embedder, size int) (*CachedEmbedder, error) {
	if inner == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &CachedEmbedder{inner: inner, cache: cache}, nil
}

// Embed returns the cached embedding for text, computing it on a miss.
// The returned slice is shared; callers must not modify it.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		return v, nil
	}
	v, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(text, v)
	return v, nil
}

// Dimensions returns the wrapped embedder's dimension.
func (c *CachedEmbedder) Dimensions() int {
	return c.inner.Dimensions()
}

// Len returns the number of cached embeddings.
func (c *CachedEmbedder) Len() int {
	return c.cache.Len()
}
