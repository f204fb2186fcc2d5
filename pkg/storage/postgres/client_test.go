package postgres_test

import (
	"context"
	"os"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanlab/personamem/pkg/storage"
	"github.com/oceanlab/personamem/pkg/storage/postgres"
)

// setupTestClient connects to a real PostgreSQL instance configured via
// environment variables. Tests skip when no server is reachable, matching
// the rest of the suite's stance that integration backends are opt-in.
func setupTestClient(t *testing.T) *postgres.Client {
	t.Helper()

	password := os.Getenv("POSTGRES_PASSWORD")
	if password == "" {
		t.Skip("skipping: POSTGRES_PASSWORD not set")
	}

	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		host = "127.0.0.1"
	}
	port := 5432
	if p := os.Getenv("POSTGRES_PORT"); p != "" {
		v, err := strconv.Atoi(p)
		if err != nil {
			t.Skipf("skipping: invalid POSTGRES_PORT: %s", p)
		}
		port = v
	}
	user := os.Getenv("POSTGRES_USER")
	if user == "" {
		user = "postgres"
	}
	dbName := os.Getenv("POSTGRES_DATABASE")
	if dbName == "" {
		dbName = "personamem_test"
	}

	client, err := postgres.NewClient(&postgres.Config{
		Host: host, Port: port, User: user, Password: password, DBName: dbName,
	})
	if err != nil {
		t.Skipf("skipping: could not connect to postgres: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestPostgresVectorMetadataRoundTrip(t *testing.T) {
	c := setupTestClient(t)
	ctx := context.Background()

	rec := &storage.VectorMetadataRecord{
		ID: "pg-vec-1", PersonaID: "p1", ContentType: "fact", OriginalContent: "hello postgres",
	}
	require.NoError(t, c.SaveVectorMetadata(ctx, rec))
	defer c.DeleteVectorMetadata(ctx, rec.ID)

	got, err := c.GetVectorMetadata(ctx, "pg-vec-1")
	require.NoError(t, err)
	assert.Equal(t, "hello postgres", got.OriginalContent)
}

func TestPostgresPersonaRoundTrip(t *testing.T) {
	c := setupTestClient(t)
	ctx := context.Background()

	rec := &storage.PersonaRecord{ID: "pg-persona-1", Name: "PG Demo", MaxMemorySize: 100}
	require.NoError(t, c.SavePersona(ctx, rec))

	got, err := c.GetPersona(ctx, "pg-persona-1")
	require.NoError(t, err)
	assert.Equal(t, "PG Demo", got.Name)
}
