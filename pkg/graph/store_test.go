package graph_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanlab/personamem/pkg/graph"
)

func TestCreateEntityIsDeterministic(t *testing.T) {
	s := graph.NewStore()
	id1, err := s.CreateEntity(graph.EntityInput{PersonaID: "p1", Name: "Alice", Type: "PERSON", Confidence: 0.6})
	require.NoError(t, err)
	id2, err := s.CreateEntity(graph.EntityInput{PersonaID: "p1", Name: "Alice", Type: "PERSON", Confidence: 0.3})
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	direct := graph.EntityID("p1", "Alice", "PERSON")
	assert.Equal(t, direct, id1)
}

func TestCreateEntityHigherConfidenceMerges(t *testing.T) {
	s := graph.NewStore()
	id, err := s.CreateEntity(graph.EntityInput{PersonaID: "p1", Name: "Acme", Type: "PLACE", Confidence: 0.4, Properties: map[string]interface{}{"a": 1}})
	require.NoError(t, err)

	_, err = s.CreateEntity(graph.EntityInput{PersonaID: "p1", Name: "Acme", Type: "PLACE", Confidence: 0.9, Properties: map[string]interface{}{"b": 2}})
	require.NoError(t, err)

	e, err := s.GetEntity(id)
	require.NoError(t, err)
	assert.Equal(t, 0.9, e.Confidence)
	assert.Equal(t, 1, e.Properties["a"])
	assert.Equal(t, 2, e.Properties["b"])
}

func TestCreateRelationshipRejectsMissingEndpoints(t *testing.T) {
	s := graph.NewStore()
	id, err := s.CreateEntity(graph.EntityInput{PersonaID: "p1", Name: "Alice", Type: "PERSON", Confidence: 0.6})
	require.NoError(t, err)

	_, err = s.CreateRelationship(graph.RelationshipInput{
		PersonaID: "p1", SourceEntityID: id, TargetEntityID: "ghost", RelationshipType: "KNOWS", Strength: 0.5,
	})
	assert.ErrorIs(t, err, graph.ErrEntityNotFound)
}

func TestCreateRelationshipMergesStrengthOnRepeat(t *testing.T) {
	s := graph.NewStore()
	a, _ := s.CreateEntity(graph.EntityInput{PersonaID: "p1", Name: "Alice", Type: "PERSON", Confidence: 0.6})
	b, _ := s.CreateEntity(graph.EntityInput{PersonaID: "p1", Name: "Acme", Type: "PLACE", Confidence: 0.6})

	id1, err := s.CreateRelationship(graph.RelationshipInput{PersonaID: "p1", SourceEntityID: a, TargetEntityID: b, RelationshipType: "LOCATED_AT", Strength: 0.4})
	require.NoError(t, err)
	id2, err := s.CreateRelationship(graph.RelationshipInput{PersonaID: "p1", SourceEntityID: a, TargetEntityID: b, RelationshipType: "LOCATED_AT", Strength: 1.0})
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
}

func TestFindRelatedBFSRespectsDepthAndStrength(t *testing.T) {
	s := graph.NewStore()
	a, _ := s.CreateEntity(graph.EntityInput{PersonaID: "p1", Name: "Alice", Type: "PERSON", Confidence: 0.9})
	b, _ := s.CreateEntity(graph.EntityInput{PersonaID: "p1", Name: "Bob", Type: "PERSON", Confidence: 0.9})
	c, _ := s.CreateEntity(graph.EntityInput{PersonaID: "p1", Name: "Carol", Type: "PERSON", Confidence: 0.9})

	_, err := s.CreateRelationship(graph.RelationshipInput{PersonaID: "p1", SourceEntityID: a, TargetEntityID: b, RelationshipType: "KNOWS", Strength: 0.6})
	require.NoError(t, err)
	_, err = s.CreateRelationship(graph.RelationshipInput{PersonaID: "p1", SourceEntityID: b, TargetEntityID: c, RelationshipType: "KNOWS", Strength: 0.6})
	require.NoError(t, err)
	d, _ := s.CreateEntity(graph.EntityInput{PersonaID: "p1", Name: "Dave", Type: "PERSON", Confidence: 0.9})
	_, err = s.CreateRelationship(graph.RelationshipInput{PersonaID: "p1", SourceEntityID: a, TargetEntityID: d, RelationshipType: "KNOWS", Strength: 0.1})
	require.NoError(t, err)

	related, err := s.FindRelated(a, graph.FindRelatedOptions{MaxDepth: 1, Limit: 10, MinStrength: 0.3})
	require.NoError(t, err)
	require.Len(t, related, 1)
	assert.Equal(t, b, related[0].Entity.ID)

	related, err = s.FindRelated(a, graph.FindRelatedOptions{MaxDepth: 5, Limit: 10, MinStrength: 0.3})
	require.NoError(t, err)
	assert.Len(t, related, 2)
}

func TestProcessBatchSkipsRelationshipOnFailedEndpoint(t *testing.T) {
	s := graph.NewStore()
	result := s.ProcessBatch(
		[]graph.EntityInput{
			{OriginalID: "e1", PersonaID: "p1", Name: "Alice", Type: "PERSON", Confidence: 0.8},
		},
		[]graph.RelationshipInput{
			{PersonaID: "p1", SourceEntityID: "e1", TargetEntityID: "missing", RelationshipType: "KNOWS", Strength: 0.5},
		},
	)
	assert.Equal(t, 1, result.EntitiesProcessed)
	assert.Equal(t, 0, result.RelationshipsProcessed)
	assert.Equal(t, 1, result.RelationshipsFailed)
}

func TestStatisticsComplexityBuckets(t *testing.T) {
	s := graph.NewStore()
	for i := 0; i < 12; i++ {
		_, err := s.CreateEntity(graph.EntityInput{PersonaID: "p1", Name: string(rune('a' + i)), Type: "CONCEPT", Confidence: 0.7})
		require.NoError(t, err)
	}
	stats := s.Statistics("p1")
	assert.Equal(t, 12, stats.TotalEntities)
	assert.Equal(t, "medium", stats.Complexity)
}

func TestCleanupOrphansRemovesOldLowConfidenceIsolated(t *testing.T) {
	s := graph.NewStore()
	id, err := s.CreateEntity(graph.EntityInput{PersonaID: "p1", Name: "Stale", Type: "CONCEPT", Confidence: 0.2})
	require.NoError(t, err)

	removed := s.CleanupOrphans("p1", -time.Hour) // maxAge negative => cutoff is in the future, entity qualifies
	assert.Equal(t, 1, removed)
	_, err = s.GetEntity(id)
	assert.ErrorIs(t, err, graph.ErrEntityNotFound)
}

func TestConcurrentCreateEntitySameIdentityConverges(t *testing.T) {
	s := graph.NewStore()
	var wg sync.WaitGroup
	ids := make([]string, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			id, err := s.CreateEntity(graph.EntityInput{PersonaID: "p1", Name: "Alice", Type: "PERSON", Confidence: 0.5})
			require.NoError(t, err)
			ids[idx] = id
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Equal(t, 1, s.Statistics("p1").TotalEntities)
}
