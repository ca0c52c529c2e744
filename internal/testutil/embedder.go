package testutil

import (
	"context"
	"hash/fnv"
	"math"

	"github.com/geoffsee/open-gsio/internal/retrieval"
)

// StaticEmbedder produces deterministic embeddings without network access.
// Identical texts map to identical vectors, and texts sharing words land
// closer together than unrelated ones, which is enough for exercising
// similarity search ordering in tests.
type StaticEmbedder struct{}

// Embed hashes each word into a bucket of the output vector and normalizes
// the result to unit length so cosine similarity behaves.
func (StaticEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, retrieval.VectorDimension)

	start := 0
	for i := 0; i <= len(text); i++ {
		if i == len(text) || text[i] == ' ' || text[i] == '\n' {
			if i > start {
				h := fnv.New32a()
				_, _ = h.Write([]byte(text[start:i]))
				vec[h.Sum32()%uint32(len(vec))] += 1
			}
			start = i + 1
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		vec[0] = 1
		return vec, nil
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec, nil
}
