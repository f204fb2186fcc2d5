package core_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanlab/personamem/pkg/core"
)

// hashEmbedder turns a string into a deterministic low-dimensional vector
// by hashing trigrams into buckets, giving similar text similar vectors
// without pulling in a real model for tests.
type hashEmbedder struct {
	dims int
}

func (h *hashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, h.dims)
	if text == "" {
		return nil, errors.New("empty text")
	}
	for i := 0; i+2 < len(text); i++ {
		tri := text[i : i+3]
		var hash uint32
		for _, c := range tri {
			hash = hash*31 + uint32(c)
		}
		v[int(hash)%h.dims] += 1
	}
	var mag float32
	for _, c := range v {
		mag += c * c
	}
	mag = float32(math.Sqrt(float64(mag)))
	if mag > 0 {
		for i := range v {
			v[i] /= mag
		}
	}
	return v, nil
}

func (h *hashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := h.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (h *hashEmbedder) Dimensions() int { return h.dims }
func (h *hashEmbedder) Close() error    { return nil }

func newTestEngine(t *testing.T) *core.Engine {
	t.Helper()
	cfg := &core.Config{
		Arena:    core.ArenaConfig{MemoryBudgetMB: 1, Dimensions: 32},
		HNSW:     core.HNSWConfig{M: 16, EfConstruction: 200, EfSearch: 50},
		Distance: core.DistanceConfig{Metric: "cosine"},
		Graph:    core.GraphConfig{Enabled: true, DefaultDepth: 2, DefaultWeight: 0.3, MaxDepth: 5},
		Entity:   core.EntityConfig{ConfidenceThreshold: 0.5, MaxEntitiesPerMemory: 20},
		Embedder: core.EmbedderConfig{Provider: "openai", Dimensions: 32},
		Storage:  core.StorageConfig{Provider: "sqlite"},
		Features: core.FeaturesConfig{HybridSearch: true, EntityExtraction: true, GraphExpansion: true, GraphEnabled: true},
	}
	eng, err := core.NewEngine(cfg, &hashEmbedder{dims: 32}, nil)
	require.NoError(t, err)
	return eng
}

func TestAddMemoryThenSearchFindsItInSmallCorpus(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	rec, err := eng.AddMemory(ctx, "persona-1", "Alice works at Acme Corp as an engineer")
	require.NoError(t, err)
	require.NotEmpty(t, rec.ID)

	_, err = eng.AddMemory(ctx, "persona-1", "the weather today is sunny and warm")
	require.NoError(t, err)
	eng.Wait()

	result, err := eng.SearchMemories(ctx, "persona-1", "Alice works at Acme Corp as an engineer", core.WithSearchLimit(5), core.WithSearchMinScore(0))
	require.NoError(t, err)

	ids := make([]string, 0, len(result.Memories))
	for _, m := range result.Memories {
		ids = append(ids, m.ID)
	}
	assert.Contains(t, ids, rec.ID)
}

func TestSearchMemoriesIsolatesPersonas(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.AddMemory(ctx, "persona-1", "Alice likes Python")
	require.NoError(t, err)

	result, err := eng.SearchMemories(ctx, "persona-2", "Alice likes Python", core.WithSearchMinScore(0))
	require.NoError(t, err)
	assert.Empty(t, result.Memories)
}

func TestAddMemoryRejectsUnknownContentType(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.AddMemory(ctx, "persona-1", "hello", core.WithContentType("not_a_real_type"))
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestHybridSearchRespectsLimitAndUniqueIDs(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.AddMemory(ctx, "persona-1", "Alice works at Acme Corp in Seattle")
	require.NoError(t, err)
	_, err = eng.AddMemory(ctx, "persona-1", "Bob works at Acme Corp in Seattle too")
	require.NoError(t, err)
	_, err = eng.AddMemory(ctx, "persona-1", "the cafeteria serves lunch at noon")
	require.NoError(t, err)
	eng.Wait()

	result, err := eng.HybridSearch(ctx, "persona-1", "Acme Corp Seattle", core.WithSearchLimit(2), core.WithSearchMinScore(0))
	require.NoError(t, err)

	assert.LessOrEqual(t, len(result.Memories), 2)
	seen := make(map[string]bool)
	for _, m := range result.Memories {
		assert.False(t, seen[m.ID], "duplicate id in hybrid search results: %s", m.ID)
		seen[m.ID] = true
		assert.GreaterOrEqual(t, m.Score, 0.0)
	}
	assert.GreaterOrEqual(t, result.ExpansionRate, 0.0)
	assert.LessOrEqual(t, result.ExpansionRate, 1.0)
}

func TestHybridSearchWithoutExpansionIsSubsetOfWithExpansion(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.AddMemory(ctx, "persona-1", "Alice works at Acme Corp in Seattle")
	require.NoError(t, err)
	_, err = eng.AddMemory(ctx, "persona-1", "Bob works at Acme Corp in Seattle too")
	require.NoError(t, err)
	eng.Wait()

	linear, err := eng.HybridSearch(ctx, "persona-1", "Acme Corp Seattle", core.WithSearchLimit(10), core.WithSearchMinScore(0), core.WithLinearSearch(true))
	require.NoError(t, err)
	assert.Zero(t, linear.GraphExpandedResults)

	expanded, err := eng.HybridSearch(ctx, "persona-1", "Acme Corp Seattle", core.WithSearchLimit(10), core.WithSearchMinScore(0))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(expanded.Memories), 0)
	expandedIDs := make([]string, 0, len(expanded.Memories))
	for _, m := range expanded.Memories {
		expandedIDs = append(expandedIDs, m.ID)
	}
	for _, m := range linear.Memories {
		assert.Contains(t, expandedIDs, m.ID)
	}
}

func TestEmergencyRollbackDisablesGraphExpansion(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.AddMemory(ctx, "persona-1", "Alice works at Acme Corp")
	require.NoError(t, err)
	eng.Wait()

	eng.Flags().EmergencyRollback()
	assert.False(t, eng.Flags().IsEnabled(core.FlagGraphExpansion))
	assert.False(t, eng.Flags().IsEnabled(core.FlagEntityExtraction))

	result, err := eng.HybridSearch(ctx, "persona-1", "Acme Corp", core.WithSearchMinScore(0))
	require.NoError(t, err)
	assert.Zero(t, result.GraphExpandedResults)
}

func TestExploreEntitiesThenGetGraphContextFindsRelationship(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.AddMemory(ctx, "persona-1", "Alice works at Acme Corp on machine learning", core.WithContentType("fact"))
	require.NoError(t, err)
	eng.Wait()

	entities, err := eng.ExploreEntities("persona-1", "Alice")
	require.NoError(t, err)
	require.NotEmpty(t, entities)

	var aliceID string
	for _, e := range entities {
		if e.Name == "Alice" {
			aliceID = e.ID
		}
	}
	require.NotEmpty(t, aliceID, "expected an entity named Alice")

	gctx, err := eng.GetGraphContext("persona-1", []string{aliceID}, core.WithIncludeRelationships(true))
	require.NoError(t, err)
	assert.NotEmpty(t, gctx.Entities)
	assert.NotEmpty(t, gctx.Relationships)
}

func TestGetGraphContextRejectsTooManyIDs(t *testing.T) {
	eng := newTestEngine(t)
	ids := make([]string, 51)
	for i := range ids {
		ids[i] = "x"
	}
	_, err := eng.GetGraphContext("persona-1", ids)
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestFeatureFlagOverrideTakesPrecedenceOverDefault(t *testing.T) {
	eng := newTestEngine(t)

	assert.True(t, eng.Flags().IsEnabled(core.FlagGraphExpansion))

	eng.Flags().SetOverride(core.FlagGraphExpansion, false)
	assert.False(t, eng.Flags().IsEnabled(core.FlagGraphExpansion))

	eng.Flags().ClearOverride(core.FlagGraphExpansion)
	assert.True(t, eng.Flags().IsEnabled(core.FlagGraphExpansion))
}

func TestHybridSearchHonorsDisabledFlag(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.AddMemory(ctx, "persona-1", "Alice works at Acme Corp")
	require.NoError(t, err)
	eng.Wait()

	eng.Flags().SetOverride(core.FlagHybridSearch, false)

	result, err := eng.HybridSearch(ctx, "persona-1", "Alice works at Acme Corp", core.WithSearchMinScore(0))
	require.NoError(t, err)
	assert.NotEmpty(t, result.Memories)
	assert.Zero(t, result.GraphExpandedResults)
	assert.False(t, result.GraphTimedOut)
}

func TestHybridSearchFallsBackToVectorResultsOnGraphTimeout(t *testing.T) {
	eng := newTestEngine(t)

	_, err := eng.AddMemory(context.Background(), "persona-1", "Alice works at Acme Corp")
	require.NoError(t, err)
	eng.Wait()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := eng.HybridSearch(ctx, "persona-1", "Acme Corp", core.WithSearchMinScore(0))
	require.NoError(t, err)
	assert.NotEmpty(t, result.Memories)
	assert.Zero(t, result.GraphExpandedResults)
	assert.True(t, result.GraphTimedOut)
}

func TestDeleteMemoryRemovesItFromSearch(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	rec, err := eng.AddMemory(ctx, "persona-1", "a memory to delete")
	require.NoError(t, err)

	require.NoError(t, eng.DeleteMemory(ctx, "persona-1", rec.ID))

	result, err := eng.SearchMemories(ctx, "persona-1", "a memory to delete", core.WithSearchMinScore(0))
	require.NoError(t, err)
	for _, m := range result.Memories {
		assert.NotEqual(t, rec.ID, m.ID)
	}
}
