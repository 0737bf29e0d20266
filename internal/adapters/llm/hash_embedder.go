package llm

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

const DefaultHashDimensions = 256

// HashEmbedder is a deterministic bag-of-words embedder for local runs and
// tests. Texts sharing words get a positive cosine similarity.
type HashEmbedder struct {
	dims int
}

func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = DefaultHashDimensions
	}
	return &HashEmbedder{dims: dims}
}

func (e *HashEmbedder) Dimensions() int {
	return e.dims
}

func (e *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dims)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, w := range words {
		h := fnv.New64a()
		_, _ = h.Write([]byte(w))
		sum := h.Sum64()
		sign := float32(1)
		if sum&(1<<63) != 0 {
			sign = -1
		}
		vec[sum%uint64(e.dims)] += sign
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		// chromem rejects zero vectors under cosine similarity
		vec[0] = 1
		return vec, nil
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec, nil
}
