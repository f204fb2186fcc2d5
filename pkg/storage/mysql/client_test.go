package mysql_test

import (
	"context"
	"os"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanlab/personamem/pkg/storage"
	"github.com/oceanlab/personamem/pkg/storage/mysql"
)

// setupTestClient connects to a real MySQL-compatible instance configured
// via environment variables. Tests skip when no server is reachable.
func setupTestClient(t *testing.T) *mysql.Client {
	t.Helper()

	password := os.Getenv("MYSQL_PASSWORD")
	if password == "" {
		t.Skip("skipping: MYSQL_PASSWORD not set")
	}

	host := os.Getenv("MYSQL_HOST")
	if host == "" {
		host = "127.0.0.1"
	}
	port := 3306
	if p := os.Getenv("MYSQL_PORT"); p != "" {
		v, err := strconv.Atoi(p)
		if err != nil {
			t.Skipf("skipping: invalid MYSQL_PORT: %s", p)
		}
		port = v
	}
	user := os.Getenv("MYSQL_USER")
	if user == "" {
		user = "root"
	}
	dbName := os.Getenv("MYSQL_DATABASE")
	if dbName == "" {
		dbName = "personamem_test"
	}

	client, err := mysql.NewClient(&mysql.Config{
		Host: host, Port: port, User: user, Password: password, DBName: dbName,
	})
	if err != nil {
		t.Skipf("skipping: could not connect to mysql: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestMySQLVectorMetadataRoundTrip(t *testing.T) {
	c := setupTestClient(t)
	ctx := context.Background()

	rec := &storage.VectorMetadataRecord{
		ID: "my-vec-1", PersonaID: "p1", ContentType: "fact", OriginalContent: "hello mysql",
	}
	require.NoError(t, c.SaveVectorMetadata(ctx, rec))
	defer c.DeleteVectorMetadata(ctx, rec.ID)

	got, err := c.GetVectorMetadata(ctx, "my-vec-1")
	require.NoError(t, err)
	assert.Equal(t, "hello mysql", got.OriginalContent)
}

func TestMySQLEntityRoundTrip(t *testing.T) {
	c := setupTestClient(t)
	ctx := context.Background()

	ent := &storage.EntityRecord{
		ID: "my-ent-1", PersonaID: "p1", VectorID: "my-vec-1", Type: "org", Name: "Acme Corp", Confidence: 0.95,
	}
	require.NoError(t, c.SaveEntity(ctx, ent))

	ents, err := c.ListEntities(ctx, "p1")
	require.NoError(t, err)
	require.NotEmpty(t, ents)
}
