package vectormath

import (
	"fmt"
	"math"

	appErr "github.com/xxxsen/bizdir/internal/pkg/errors"
)

// CosineSimilarity returns the cosine of the angle between a and b in
// [-1, 1]. Vectors of unequal length are a structural error, never a score
// of 0: comparing across dimensions would silently corrupt every ranking.
// A zero vector has no direction and scores 0.
func CosineSimilarity(a, b []float32) (float32, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", appErr.ErrDimensionMismatch, len(a), len(b))
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
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB))), nil
}

// CosineDistance is 1 - CosineSimilarity, in [0, 2].
func CosineDistance(a, b []float32) (float32, error) {
	sim, err := CosineSimilarity(a, b)
	if err != nil {
		return 0, err
	}
	return 1 - sim, nil
}

// Normalize scales v to unit length. A zero vector stays zero.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		return out
	}
	mag := math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) / mag)
	}
	return out
}
