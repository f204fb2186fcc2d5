package index_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanlab/personamem/pkg/arena"
	"github.com/oceanlab/personamem/pkg/index"
)

func newTestStore(t *testing.T, dim int) *index.Store {
	t.Helper()
	a := arena.New(dim, 1<<24)
	return index.NewStore(a, index.DefaultParams())
}

type nopSource struct{}

func (nopSource) Get(id string) ([]float32, error) { return nil, arena.ErrVectorNotFound }

func TestSearchOnEmptyGraphReturnsEmpty(t *testing.T) {
	h := index.New(index.DefaultParams(), nopSource{}, nil)
	results, err := h.Search([]float32{1, 2}, 5, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestInsertDuplicateFails(t *testing.T) {
	s := newTestStore(t, 2)
	require.NoError(t, s.Insert("a", []float32{1, 0}, &arena.Metadata{}))
	err := s.HNSW.Insert("a", []float32{1, 0})
	assert.ErrorIs(t, err, index.ErrDuplicateID)
}

func TestHNSWInsertAndSearchFindsNearest(t *testing.T) {
	s := newTestStore(t, 2)
	vectors := map[string][]float32{
		"close": {1, 0.05},
		"mid":   {0.7, 0.7},
		"far":   {0, 1},
	}
	for id, v := range vectors {
		require.NoError(t, s.Insert(id, v, &arena.Metadata{}))
	}

	results, err := s.HNSW.Search([]float32{1, 0}, 1, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "close", results[0].ID)
}

func TestRemoveEntryPointReselects(t *testing.T) {
	s := newTestStore(t, 2)
	require.NoError(t, s.Insert("a", []float32{1, 0}, &arena.Metadata{}))
	require.NoError(t, s.Insert("b", []float32{0, 1}, &arena.Metadata{}))

	require.NoError(t, s.HNSW.Remove("a"))
	// b must remain searchable.
	results, err := s.HNSW.Search([]float32{0, 1}, 1, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].ID)
}

func TestRemoveUnknownIDFails(t *testing.T) {
	s := newTestStore(t, 2)
	require.NoError(t, s.Insert("a", []float32{1, 0}, &arena.Metadata{}))
	err := s.HNSW.Remove("ghost")
	assert.ErrorIs(t, err, index.ErrNotFound)
}

func TestRebuildIndexReinsertsEverything(t *testing.T) {
	s := newTestStore(t, 2)
	for i := 0; i < 5; i++ {
		id := string(rune('a' + i))
		require.NoError(t, s.Insert(id, []float32{float32(i), 1}, &arena.Metadata{}))
	}
	result := s.RebuildIndex()
	assert.Equal(t, 5, result.Total)
	assert.Equal(t, 5, result.Indexed)
}

func TestStoreSearchFallsBackToLinearBelowThreshold(t *testing.T) {
	s := newTestStore(t, 2)
	require.NoError(t, s.Insert("a", []float32{1, 0}, &arena.Metadata{}))
	require.NoError(t, s.Insert("b", []float32{0, 1}, &arena.Metadata{}))

	results, err := s.Search([]float32{1, 0}, index.SearchOptions{Limit: 2})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, int64(0), s.Stats().HNSWHits)
}
