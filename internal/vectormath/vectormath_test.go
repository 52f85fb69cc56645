package vectormath

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	appErr "github.com/xxxsen/bizdir/internal/pkg/errors"
)

func TestCosineSimilaritySymmetry(t *testing.T) {
	a := []float32{0.3, -1.2, 0.5, 2.0}
	b := []float32{1.1, 0.4, -0.7, 0.2}
	ab, err := CosineSimilarity(a, b)
	require.NoError(t, err)
	ba, err := CosineSimilarity(b, a)
	require.NoError(t, err)
	require.InDelta(t, float64(ab), float64(ba), 1e-6)
}

func TestCosineSimilaritySelf(t *testing.T) {
	a := []float32{0.25, 0.5, -0.75, 1.0}
	got, err := CosineSimilarity(a, a)
	require.NoError(t, err)
	require.InDelta(t, 1.0, float64(got), 1e-6)
}

func TestCosineSimilarityLengthMismatch(t *testing.T) {
	_, err := CosineSimilarity([]float32{1, 2, 3}, []float32{1, 2})
	require.ErrorIs(t, err, appErr.ErrDimensionMismatch)
}

func TestCosineSimilarityZeroVector(t *testing.T) {
	zero := []float32{0, 0, 0}
	got, err := CosineSimilarity(zero, []float32{1, 2, 3})
	require.NoError(t, err)
	require.Equal(t, float32(0), got)
	require.False(t, math.IsNaN(float64(got)))
}

func TestCosineDistance(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}
	got, err := CosineDistance(a, b)
	require.NoError(t, err)
	require.InDelta(t, 1.0, float64(got), 1e-6)
}

func TestNormalize(t *testing.T) {
	v := Normalize([]float32{3, 4})
	require.InDelta(t, 0.6, float64(v[0]), 1e-6)
	require.InDelta(t, 0.8, float64(v[1]), 1e-6)

	zero := Normalize([]float32{0, 0})
	require.Equal(t, []float32{0, 0}, zero)
}
