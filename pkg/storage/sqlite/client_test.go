package sqlite_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanlab/personamem/pkg/storage"
	"github.com/oceanlab/personamem/pkg/storage/sqlite"
)

func newTestClient(t *testing.T) *sqlite.Client {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "personamem_test.db")
	client, err := sqlite.NewClient(&sqlite.Config{DBPath: dbPath})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.Close()
		_ = os.Remove(dbPath)
	})
	return client
}

func TestVectorMetadataSaveGetDelete(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	rec := &storage.VectorMetadataRecord{
		ID:              "vec-1",
		PersonaID:       "persona-1",
		ContentType:     "fact",
		Source:          "manual",
		Tags:            []string{"work", "coffee"},
		Custom:          map[string]interface{}{"k": "v"},
		OriginalContent: "User likes coffee",
		CreatedAt:       time.Now(),
	}
	require.NoError(t, c.SaveVectorMetadata(ctx, rec))

	got, err := c.GetVectorMetadata(ctx, "vec-1")
	require.NoError(t, err)
	assert.Equal(t, rec.PersonaID, got.PersonaID)
	assert.Equal(t, rec.OriginalContent, got.OriginalContent)
	assert.ElementsMatch(t, rec.Tags, got.Tags)

	require.NoError(t, c.DeleteVectorMetadata(ctx, "vec-1"))
	_, err = c.GetVectorMetadata(ctx, "vec-1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestVectorMetadataSaveUpserts(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	rec := &storage.VectorMetadataRecord{ID: "vec-1", PersonaID: "persona-1", OriginalContent: "first"}
	require.NoError(t, c.SaveVectorMetadata(ctx, rec))

	rec.OriginalContent = "second"
	require.NoError(t, c.SaveVectorMetadata(ctx, rec))

	got, err := c.GetVectorMetadata(ctx, "vec-1")
	require.NoError(t, err)
	assert.Equal(t, "second", got.OriginalContent)
}

func TestListVectorMetadataScopesByPersona(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.SaveVectorMetadata(ctx, &storage.VectorMetadataRecord{ID: "a", PersonaID: "p1"}))
	require.NoError(t, c.SaveVectorMetadata(ctx, &storage.VectorMetadataRecord{ID: "b", PersonaID: "p1"}))
	require.NoError(t, c.SaveVectorMetadata(ctx, &storage.VectorMetadataRecord{ID: "c", PersonaID: "p2"}))

	recs, err := c.ListVectorMetadata(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestEntityAndRelationshipRoundTrip(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	ent := &storage.EntityRecord{
		ID:         "ent-1",
		PersonaID:  "p1",
		VectorID:   "vec-1",
		Type:       "person",
		Name:       "Alice",
		Confidence: 0.9,
	}
	require.NoError(t, c.SaveEntity(ctx, ent))

	rel := &storage.RelationshipRecord{
		ID:               "rel-1",
		PersonaID:        "p1",
		SourceEntityID:   "ent-1",
		TargetEntityID:   "ent-1",
		RelationshipType: "works_at",
		Strength:         0.8,
	}
	require.NoError(t, c.SaveRelationship(ctx, rel))

	ents, err := c.ListEntities(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, ents, 1)
	assert.Equal(t, "Alice", ents[0].Name)

	rels, err := c.ListRelationships(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, "works_at", rels[0].RelationshipType)
}

func TestPersonaSaveGetList(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	rec := &storage.PersonaRecord{
		ID:                "persona-1",
		Name:              "Demo",
		MaxMemorySize:     500,
		MemoryDecayTimeMs: 3_600_000,
		IsActive:          true,
	}
	require.NoError(t, c.SavePersona(ctx, rec))

	got, err := c.GetPersona(ctx, "persona-1")
	require.NoError(t, err)
	assert.Equal(t, "Demo", got.Name)
	assert.Equal(t, 500, got.MaxMemorySize)

	all, err := c.ListPersonas(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestGetVectorMetadataNotFound(t *testing.T) {
	c := newTestClient(t)
	_, err := c.GetVectorMetadata(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
