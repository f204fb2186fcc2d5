package persona_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanlab/personamem/pkg/core"
	"github.com/oceanlab/personamem/pkg/persona"
)

type stubEmbedder struct{ dims int }

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, s.dims)
	for i, c := range text {
		v[i%s.dims] += float32(c % 7)
	}
	return v, nil
}

func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, _ := s.Embed(ctx, t)
		out[i] = v
	}
	return out, nil
}

func (s *stubEmbedder) Dimensions() int { return s.dims }
func (s *stubEmbedder) Close() error    { return nil }

func newTestManager(t *testing.T) *persona.Manager {
	t.Helper()
	cfg := &core.Config{
		Arena:    core.ArenaConfig{MemoryBudgetMB: 1, Dimensions: 16},
		HNSW:     core.HNSWConfig{M: 16, EfConstruction: 200, EfSearch: 50},
		Distance: core.DistanceConfig{Metric: "cosine"},
		Graph:    core.GraphConfig{Enabled: true, DefaultDepth: 2, DefaultWeight: 0.3, MaxDepth: 5},
		Embedder: core.EmbedderConfig{Provider: "openai", Dimensions: 16},
		Storage:  core.StorageConfig{Provider: "sqlite"},
		Features: core.FeaturesConfig{HybridSearch: true, EntityExtraction: false, GraphExpansion: true, GraphEnabled: true},
	}
	engine, err := core.NewEngine(cfg, &stubEmbedder{dims: 16}, nil)
	require.NoError(t, err)
	return persona.NewManager(engine, nil)
}

func TestAddMemoryRequiresRegisteredPersona(t *testing.T) {
	m := newTestManager(t)
	_, err := m.AddMemory(context.Background(), "unknown", "hello")
	assert.ErrorIs(t, err, core.ErrPersonaNotFound)
}

func TestAddMemoryEnforcesCapacity(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, m.RegisterPersona(ctx, persona.Config{ID: "p1", MaxMemorySize: 2}))

	_, err := m.AddMemory(ctx, "p1", "first memory")
	require.NoError(t, err)
	_, err = m.AddMemory(ctx, "p1", "second memory")
	require.NoError(t, err)

	_, err = m.AddMemory(ctx, "p1", "third memory should fail")
	assert.ErrorIs(t, err, core.ErrCapacityExceeded)
}

func TestAddConversationLinksTurnsAndHistoryIsChronological(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, m.RegisterPersona(ctx, persona.Config{ID: "p1"}))

	result, err := m.AddConversation(ctx, "p1", "hello there", "hi, how can I help?", "")
	require.NoError(t, err)
	require.NotEmpty(t, result.ConversationID)

	turns, err := m.GetConversationHistory(ctx, "p1", result.ConversationID, 10)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "user", turns[0].Role)
	assert.Equal(t, "hello there", turns[0].Content)
	assert.Equal(t, "assistant", turns[1].Role)
	assert.Equal(t, "hi, how can I help?", turns[1].Content)
}

func TestCleanupMemoriesRejectsOlderThanBelowOneHour(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, m.RegisterPersona(ctx, persona.Config{ID: "p1"}))

	_, err := m.CleanupMemories(ctx, "p1", core.WithOlderThan(3_599_999), core.WithDryRun(true))
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestCleanupMemoriesDryRunDoesNotDelete(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, m.RegisterPersona(ctx, persona.Config{ID: "p1"}))

	_, err := m.AddMemory(ctx, "p1", "an old memory")
	require.NoError(t, err)

	result, err := m.CleanupMemories(ctx, "p1", core.WithOlderThan(int64(time.Hour.Milliseconds())), core.WithDryRun(true))
	require.NoError(t, err)
	assert.Empty(t, result.Removed)
	assert.Empty(t, result.Breakdown)
	assert.True(t, result.DryRun)

	search, err := m.SearchMemories(ctx, "p1", "an old memory", core.WithSearchMinScore(0))
	require.NoError(t, err)
	assert.NotEmpty(t, search.Memories)
}
