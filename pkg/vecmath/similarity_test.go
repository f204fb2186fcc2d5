package vecmath_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanlab/personamem/pkg/vecmath"
)

func TestCosineSimilarityIdentical(t *testing.T) {
	v := []float32{1, 2, 3, 4}
	sim, err := vecmath.CosineSimilarity(v, v)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, sim, 1e-6)
}

func TestCosineSimilarityOrthogonal(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}
	sim, err := vecmath.CosineSimilarity(a, b)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, sim, 1e-6)
}

func TestCosineSimilarityZeroMagnitude(t *testing.T) {
	a := []float32{0, 0, 0}
	b := []float32{1, 2, 3}
	sim, err := vecmath.CosineSimilarity(a, b)
	require.NoError(t, err)
	assert.Equal(t, float32(0), sim)
}

func TestCosineDimensionMismatch(t *testing.T) {
	a := []float32{1, 2}
	b := []float32{1, 2, 3}
	_, err := vecmath.CosineSimilarity(a, b)
	assert.ErrorIs(t, err, vecmath.ErrDimensionMismatch)
}

func TestEuclideanSimilarityBounds(t *testing.T) {
	a := []float32{0, 0}
	b := []float32{3, 4}
	sim, err := vecmath.EuclideanSimilarity(a, b)
	require.NoError(t, err)
	// distance is 5, so similarity = 1/6
	assert.InDelta(t, 1.0/6.0, sim, 1e-6)
}

func TestDotProduct(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{4, 5, 6}
	d, err := vecmath.DotProduct(a, b)
	require.NoError(t, err)
	assert.Equal(t, float32(32), d)
}

func TestValidateRejectsNonFinite(t *testing.T) {
	assert.NoError(t, vecmath.Validate([]float32{1, 2, 3}))
	assert.ErrorIs(t, vecmath.Validate([]float32{1, float32(nan())}), vecmath.ErrInvalidVector)
}

func nan() float64 {
	var zero float64
	return zero / zero
}

func TestMagnitudeCacheEvictsOldestHalf(t *testing.T) {
	cache := vecmath.NewMagnitudeCache(4)
	cache.Set("a", 1)
	cache.Set("b", 2)
	cache.Set("c", 3)
	cache.Set("d", 4)
	// Triggers eviction of the oldest half (a, b).
	cache.Set("e", 5)

	_, aPresent := cache.Get("a")
	_, bPresent := cache.Get("b")
	_, ePresent := cache.Get("e")

	assert.False(t, aPresent)
	assert.False(t, bPresent)
	assert.True(t, ePresent)
}

func TestMagnitudeCacheInvalidate(t *testing.T) {
	cache := vecmath.NewMagnitudeCache(0)
	cache.Set("x", 10)
	cache.Invalidate("x")
	_, ok := cache.Get("x")
	assert.False(t, ok)
}

func TestMagnitudeCacheGetOrCompute(t *testing.T) {
	cache := vecmath.NewMagnitudeCache(0)
	m := cache.GetOrCompute("v1", []float32{3, 4})
	assert.InDelta(t, 5.0, m, 1e-6)
	// Second call should hit the cache, not recompute from a different vector.
	m2 := cache.GetOrCompute("v1", []float32{0, 0})
	assert.InDelta(t, 5.0, m2, 1e-6)
}
