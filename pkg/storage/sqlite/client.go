// Package sqlite persists vector metadata, entities, relationships, and
// persona configuration as JSON-in-TEXT rows, the same storage idiom the
// teacher repo used for memory vectors.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/oceanlab/personamem/pkg/storage"
)

// Client implements storage.Store using SQLite.
type Client struct {
	db *sql.DB
}

// Config configures a SQLite-backed Store.
type Config struct {
	// DBPath is the path to the SQLite database file.
	DBPath string
}

// NewClient opens (creating if needed) the SQLite database at cfg.DBPath
// and ensures its schema exists.
func NewClient(cfg *Config) (*Client, error) {
	dbDir := filepath.Dir(cfg.DBPath)
	if dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return nil, fmt.Errorf("sqlite: create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_foreign_keys=1&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}

	c := &Client{db: db}
	if err := c.initTables(context.Background()); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) initTables(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS vector_metadata (
			id TEXT PRIMARY KEY,
			persona_id TEXT NOT NULL,
			content_type TEXT,
			source TEXT,
			tags TEXT,
			custom TEXT,
			original_content TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_vector_metadata_persona ON vector_metadata(persona_id)`,
		`CREATE TABLE IF NOT EXISTS entities (
			id TEXT PRIMARY KEY,
			persona_id TEXT NOT NULL,
			vector_id TEXT,
			type TEXT NOT NULL,
			name TEXT NOT NULL,
			normalized_name TEXT NOT NULL,
			properties TEXT,
			confidence REAL,
			content_hash TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entities_persona_type ON entities(persona_id, type)`,
		`CREATE INDEX IF NOT EXISTS idx_entities_normalized_name ON entities(normalized_name)`,
		`CREATE INDEX IF NOT EXISTS idx_entities_vector_id ON entities(vector_id)`,
		`CREATE INDEX IF NOT EXISTS idx_entities_content_hash ON entities(content_hash)`,
		`CREATE TABLE IF NOT EXISTS relationships (
			id TEXT PRIMARY KEY,
			persona_id TEXT NOT NULL,
			source_entity_id TEXT NOT NULL,
			target_entity_id TEXT NOT NULL,
			relationship_type TEXT NOT NULL,
			strength REAL,
			context TEXT,
			properties TEXT,
			content_hash TEXT,
			update_count INTEGER DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(persona_id, source_entity_id, target_entity_id, relationship_type),
			FOREIGN KEY(source_entity_id) REFERENCES entities(id) ON DELETE CASCADE,
			FOREIGN KEY(target_entity_id) REFERENCES entities(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS personas (
			id TEXT PRIMARY KEY,
			user_id TEXT,
			name TEXT,
			description TEXT,
			system_prompt TEXT,
			config TEXT,
			max_memory_size INTEGER DEFAULT 1000,
			memory_decay_time_ms INTEGER DEFAULT 604800000,
			is_active BOOLEAN DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, stmt := range statements {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: init schema: %w", err)
		}
	}
	return nil
}

func marshalJSON(v interface{}) (string, error) {
	if v == nil {
		return "", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// SaveVectorMetadata upserts rec.
func (c *Client) SaveVectorMetadata(ctx context.Context, rec *storage.VectorMetadataRecord) error {
	tags, err := marshalJSON(rec.Tags)
	if err != nil {
		return err
	}
	custom, err := marshalJSON(rec.Custom)
	if err != nil {
		return err
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO vector_metadata (id, persona_id, content_type, source, tags, custom, original_content, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			persona_id=excluded.persona_id, content_type=excluded.content_type, source=excluded.source,
			tags=excluded.tags, custom=excluded.custom, original_content=excluded.original_content,
			updated_at=excluded.updated_at
	`, rec.ID, rec.PersonaID, rec.ContentType, rec.Source, tags, custom, rec.OriginalContent, rec.CreatedAt, time.Now())
	return err
}

// GetVectorMetadata returns the record for id.
func (c *Client) GetVectorMetadata(ctx context.Context, id string) (*storage.VectorMetadataRecord, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, persona_id, content_type, source, tags, custom, original_content, created_at, updated_at
		FROM vector_metadata WHERE id = ?
	`, id)
	return scanVectorMetadata(row)
}

// ListVectorMetadata returns every vector metadata record for personaID.
func (c *Client) ListVectorMetadata(ctx context.Context, personaID string) ([]*storage.VectorMetadataRecord, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, persona_id, content_type, source, tags, custom, original_content, created_at, updated_at
		FROM vector_metadata WHERE persona_id = ? ORDER BY created_at ASC
	`, personaID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*storage.VectorMetadataRecord
	for rows.Next() {
		rec, err := scanVectorMetadata(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeleteVectorMetadata removes the record for id.
func (c *Client) DeleteVectorMetadata(ctx context.Context, id string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM vector_metadata WHERE id = ?`, id)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanVectorMetadata(s rowScanner) (*storage.VectorMetadataRecord, error) {
	var rec storage.VectorMetadataRecord
	var tags, custom sql.NullString
	var updatedAt sql.NullTime

	if err := s.Scan(&rec.ID, &rec.PersonaID, &rec.ContentType, &rec.Source, &tags, &custom, &rec.OriginalContent, &rec.CreatedAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	if tags.Valid && tags.String != "" {
		_ = json.Unmarshal([]byte(tags.String), &rec.Tags)
	}
	if custom.Valid && custom.String != "" {
		_ = json.Unmarshal([]byte(custom.String), &rec.Custom)
	}
	if updatedAt.Valid {
		t := updatedAt.Time
		rec.UpdatedAt = &t
	}
	return &rec, nil
}

// SaveEntity upserts rec.
func (c *Client) SaveEntity(ctx context.Context, rec *storage.EntityRecord) error {
	props, err := marshalJSON(rec.Properties)
	if err != nil {
		return err
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO entities (id, persona_id, vector_id, type, name, normalized_name, properties, confidence, content_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			vector_id=excluded.vector_id, properties=excluded.properties, confidence=excluded.confidence,
			content_hash=excluded.content_hash, updated_at=excluded.updated_at
	`, rec.ID, rec.PersonaID, rec.VectorID, rec.Type, rec.Name, rec.NormalizedName, props, rec.Confidence, rec.ContentHash, rec.CreatedAt, rec.UpdatedAt)
	return err
}

// ListEntities returns every entity for personaID.
func (c *Client) ListEntities(ctx context.Context, personaID string) ([]*storage.EntityRecord, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, persona_id, vector_id, type, name, normalized_name, properties, confidence, content_hash, created_at, updated_at
		FROM entities WHERE persona_id = ?
	`, personaID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*storage.EntityRecord
	for rows.Next() {
		var rec storage.EntityRecord
		var vectorID, props sql.NullString
		if err := rows.Scan(&rec.ID, &rec.PersonaID, &vectorID, &rec.Type, &rec.Name, &rec.NormalizedName, &props, &rec.Confidence, &rec.ContentHash, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		rec.VectorID = vectorID.String
		if props.Valid && props.String != "" {
			_ = json.Unmarshal([]byte(props.String), &rec.Properties)
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// SaveRelationship upserts rec.
func (c *Client) SaveRelationship(ctx context.Context, rec *storage.RelationshipRecord) error {
	props, err := marshalJSON(rec.Properties)
	if err != nil {
		return err
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO relationships (id, persona_id, source_entity_id, target_entity_id, relationship_type, strength, context, properties, content_hash, update_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			strength=excluded.strength, properties=excluded.properties, content_hash=excluded.content_hash,
			update_count=excluded.update_count, updated_at=excluded.updated_at
	`, rec.ID, rec.PersonaID, rec.SourceEntityID, rec.TargetEntityID, rec.RelationshipType, rec.Strength, rec.Context, props, rec.ContentHash, rec.UpdateCount, rec.CreatedAt, rec.UpdatedAt)
	return err
}

// ListRelationships returns every relationship for personaID.
func (c *Client) ListRelationships(ctx context.Context, personaID string) ([]*storage.RelationshipRecord, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, persona_id, source_entity_id, target_entity_id, relationship_type, strength, context, properties, content_hash, update_count, created_at, updated_at
		FROM relationships WHERE persona_id = ?
	`, personaID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*storage.RelationshipRecord
	for rows.Next() {
		var rec storage.RelationshipRecord
		var context, props sql.NullString
		if err := rows.Scan(&rec.ID, &rec.PersonaID, &rec.SourceEntityID, &rec.TargetEntityID, &rec.RelationshipType, &rec.Strength, &context, &props, &rec.ContentHash, &rec.UpdateCount, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		rec.Context = context.String
		if props.Valid && props.String != "" {
			_ = json.Unmarshal([]byte(props.String), &rec.Properties)
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// SavePersona upserts rec.
func (c *Client) SavePersona(ctx context.Context, rec *storage.PersonaRecord) error {
	config, err := marshalJSON(rec.Config)
	if err != nil {
		return err
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO personas (id, user_id, name, description, system_prompt, config, max_memory_size, memory_decay_time_ms, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name, description=excluded.description, system_prompt=excluded.system_prompt,
			config=excluded.config, max_memory_size=excluded.max_memory_size,
			memory_decay_time_ms=excluded.memory_decay_time_ms, is_active=excluded.is_active, updated_at=excluded.updated_at
	`, rec.ID, rec.UserID, rec.Name, rec.Description, rec.SystemPrompt, config, rec.MaxMemorySize, rec.MemoryDecayTimeMs, rec.IsActive, rec.CreatedAt, rec.UpdatedAt)
	return err
}

// GetPersona returns the record for id.
func (c *Client) GetPersona(ctx context.Context, id string) (*storage.PersonaRecord, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, description, system_prompt, config, max_memory_size, memory_decay_time_ms, is_active, created_at, updated_at
		FROM personas WHERE id = ?
	`, id)
	return scanPersona(row)
}

// ListPersonas returns every persisted persona.
func (c *Client) ListPersonas(ctx context.Context) ([]*storage.PersonaRecord, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, user_id, name, description, system_prompt, config, max_memory_size, memory_decay_time_ms, is_active, created_at, updated_at
		FROM personas
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*storage.PersonaRecord
	for rows.Next() {
		rec, err := scanPersona(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanPersona(s rowScanner) (*storage.PersonaRecord, error) {
	var rec storage.PersonaRecord
	var config sql.NullString
	if err := s.Scan(&rec.ID, &rec.UserID, &rec.Name, &rec.Description, &rec.SystemPrompt, &config, &rec.MaxMemorySize, &rec.MemoryDecayTimeMs, &rec.IsActive, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	if config.Valid && config.String != "" {
		_ = json.Unmarshal([]byte(config.String), &rec.Config)
	}
	return &rec, nil
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}
