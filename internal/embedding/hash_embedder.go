package embedding

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/hyperjump/bunmyaku/pkg/utils"
)

// HashEmbedder maps words into a fixed number of buckets (feature hashing) and
// L2-normalizes the counts. Texts sharing words get similar vectors, which is enough
// for tests and local runs without a model.
type HashEmbedder struct {
	dimensions int
}

// NewHashEmbedder returns an embedder producing vectors of the given dimensions.
func NewHashEmbedder(dimensions int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &HashEmbedder{dimensions: dimensions}
}

// Embed returns the hashed bag-of-words vector for text. Text without any words, or
// whose buckets all cancel out, yields a single fixed bucket so the vector is never zero.
func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	emb := make([]float32, e.dimensions)
	words := SplitWords(text)
	if len(words) == 0 {
		emb[0] = 1
		return emb, nil
	}
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		sum := h.Sum32()
		// top bit picks the sign so collisions partly cancel
		sign := float32(1)
		if sum&0x80000000 != 0 {
			sign = -1
		}
		emb[int(sum%uint32(e.dimensions))] += sign
	}
	if utils.NormalizeL2(emb) == 0 {
		// every bucket cancelled out
		emb[0] = 1
	}
	return emb, nil
}

// Dimensions returns the embedding dimension.
func (e *HashEmbedder) Dimensions() int {
	return e.dimensions
}

// SplitWords lowercases text and splits it on anything that is not a letter or digit.
func SplitWords(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
