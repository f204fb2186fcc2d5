package arena_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanlab/personamem/pkg/arena"
)

func TestInsertAndGet(t *testing.T) {
	a := arena.New(4, 1<<20)
	vec := []float32{1, 0, 0, 0}
	_, err := a.Insert("v1", vec, &arena.Metadata{PersonaID: "p1"})
	require.NoError(t, err)

	got, meta, err := a.GetWithMeta("v1")
	require.NoError(t, err)
	assert.Equal(t, vec, got)
	assert.Equal(t, "p1", meta.PersonaID)
	assert.Equal(t, 4, meta.Dimensions)
}

func TestInsertDuplicateID(t *testing.T) {
	a := arena.New(2, 1<<20)
	_, err := a.Insert("v1", []float32{1, 2}, &arena.Metadata{})
	require.NoError(t, err)
	_, err = a.Insert("v1", []float32{3, 4}, &arena.Metadata{})
	assert.ErrorIs(t, err, arena.ErrDuplicateID)
}

func TestInsertDimensionMismatch(t *testing.T) {
	a := arena.New(3, 1<<20)
	_, err := a.Insert("v1", []float32{1, 2}, &arena.Metadata{})
	assert.ErrorIs(t, err, arena.ErrDimensionMismatch)
}

func TestInsertCapacityExceeded(t *testing.T) {
	// Budget for exactly one vector of dimension 4 (4*4=16 bytes).
	a := arena.New(4, 16)
	_, err := a.Insert("v1", []float32{1, 2, 3, 4}, &arena.Metadata{})
	require.NoError(t, err)
	_, err = a.Insert("v2", []float32{5, 6, 7, 8}, &arena.Metadata{})
	assert.ErrorIs(t, err, arena.ErrCapacityExceeded)
}

func TestDeleteFreesSlotForReuse(t *testing.T) {
	a := arena.New(2, 16) // capacity for exactly 2 vectors
	_, err := a.Insert("v1", []float32{1, 2}, &arena.Metadata{})
	require.NoError(t, err)
	_, err = a.Insert("v2", []float32{3, 4}, &arena.Metadata{})
	require.NoError(t, err)

	require.NoError(t, a.Delete("v1"))
	assert.False(t, a.Has("v1"))

	_, err = a.Insert("v3", []float32{5, 6}, &arena.Metadata{})
	require.NoError(t, err, "deleted slot should be reusable")
}

func TestUpdateInvalidatesMagnitude(t *testing.T) {
	a := arena.New(2, 1<<20)
	_, err := a.Insert("v1", []float32{3, 4}, &arena.Metadata{})
	require.NoError(t, err)
	_, err = a.SearchLinear([]float32{3, 4}, arena.SearchOptions{})
	require.NoError(t, err)

	require.NoError(t, a.Update("v1", []float32{1, 0}, &arena.Metadata{}))
	got, err := a.Get("v1")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, got)
	assert.InDelta(t, 1.0, a.MagnitudeOf("v1", got), 1e-6)
}

func TestSearchLinearRanksByScoreDescending(t *testing.T) {
	a := arena.New(2, 1<<20)
	require.NoError(t, mustInsert(a, "a", []float32{1, 0}))
	require.NoError(t, mustInsert(a, "b", []float32{0.9, 0.1}))
	require.NoError(t, mustInsert(a, "c", []float32{0, 1}))

	results, err := a.SearchLinear([]float32{1, 0}, arena.SearchOptions{Limit: 2})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "b", results[1].ID)
}

func TestSearchLinearAppliesFilter(t *testing.T) {
	a := arena.New(2, 1<<20)
	_, err := a.Insert("a", []float32{1, 0}, &arena.Metadata{PersonaID: "p1"})
	require.NoError(t, err)
	_, err = a.Insert("b", []float32{1, 0}, &arena.Metadata{PersonaID: "p2"})
	require.NoError(t, err)

	results, err := a.SearchLinear([]float32{1, 0}, arena.SearchOptions{
		Filter: &arena.Filter{Eq: map[string]interface{}{"persona_id": "p1"}},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
}

func mustInsert(a *arena.Arena, id string, vec []float32) error {
	_, err := a.Insert(id, vec, &arena.Metadata{})
	return err
}
