package dedup

import (
	"errors"
	"fmt"
	"math"
)

// ErrDimensionMismatch indicates two embeddings of different lengths were
// compared. This is an embedding-provider contract breach, distinct from
// "no match found", and callers must not treat it as a low similarity.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Cosine computes the cosine similarity of two embedding vectors.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}
	if len(a) == 0 {
		return 0, fmt.Errorf("%w: empty vectors", ErrDimensionMismatch)
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}
