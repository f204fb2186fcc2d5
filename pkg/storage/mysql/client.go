// Package mysql persists vector metadata, entities, relationships, and
// persona configuration in MySQL-wire-protocol databases, using JSON
// columns for the unstructured fields.
package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/go-sql-driver/mysql"

	"github.com/oceanlab/personamem/pkg/storage"
)

// Client implements storage.Store over a MySQL-wire-protocol database.
type Client struct {
	db *sql.DB
}

// Config configures a MySQL-backed Store.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
}

// NewClient opens a connection and ensures its schema exists.
func NewClient(cfg *Config) (*Client, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true", cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("mysql: ping: %w", err)
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
			id VARCHAR(64) PRIMARY KEY,
			persona_id VARCHAR(64) NOT NULL,
			content_type VARCHAR(64),
			source VARCHAR(255),
			tags JSON,
			custom JSON,
			original_content LONGTEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NULL,
			INDEX idx_vector_metadata_persona (persona_id)
		)`,
		`CREATE TABLE IF NOT EXISTS entities (
			id VARCHAR(64) PRIMARY KEY,
			persona_id VARCHAR(64) NOT NULL,
			vector_id VARCHAR(64),
			type VARCHAR(32) NOT NULL,
			name VARCHAR(255) NOT NULL,
			normalized_name VARCHAR(255) NOT NULL,
			properties JSON,
			confidence DOUBLE,
			content_hash VARCHAR(64),
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_entities_persona_type (persona_id, type),
			INDEX idx_entities_normalized_name (normalized_name),
			INDEX idx_entities_vector_id (vector_id),
			INDEX idx_entities_content_hash (content_hash)
		)`,
		`CREATE TABLE IF NOT EXISTS relationships (
			id VARCHAR(64) PRIMARY KEY,
			persona_id VARCHAR(64) NOT NULL,
			source_entity_id VARCHAR(64) NOT NULL,
			target_entity_id VARCHAR(64) NOT NULL,
			relationship_type VARCHAR(64) NOT NULL,
			strength DOUBLE,
			context TEXT,
			properties JSON,
			content_hash VARCHAR(64),
			update_count INT DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE KEY uniq_relationship (persona_id, source_entity_id, target_entity_id, relationship_type),
			FOREIGN KEY (source_entity_id) REFERENCES entities(id) ON DELETE CASCADE,
			FOREIGN KEY (target_entity_id) REFERENCES entities(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS personas (
			id VARCHAR(64) PRIMARY KEY,
			user_id VARCHAR(64),
			name VARCHAR(255),
			description TEXT,
			system_prompt TEXT,
			config JSON,
			max_memory_size INT DEFAULT 1000,
			memory_decay_time_ms BIGINT DEFAULT 604800000,
			is_active BOOLEAN DEFAULT TRUE,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, stmt := range statements {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("mysql: init schema: %w", err)
		}
	}
	return nil
}

func marshalJSON(v interface{}) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
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
		ON DUPLICATE KEY UPDATE
			persona_id=VALUES(persona_id), content_type=VALUES(content_type), source=VALUES(source),
			tags=VALUES(tags), custom=VALUES(custom), original_content=VALUES(original_content),
			updated_at=VALUES(updated_at)
	`, rec.ID, rec.PersonaID, rec.ContentType, rec.Source, tags, custom, rec.OriginalContent, rec.CreatedAt, rec.UpdatedAt)
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
	var tags, custom []byte
	var updatedAt sql.NullTime

	if err := s.Scan(&rec.ID, &rec.PersonaID, &rec.ContentType, &rec.Source, &tags, &custom, &rec.OriginalContent, &rec.CreatedAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	if len(tags) > 0 {
		_ = json.Unmarshal(tags, &rec.Tags)
	}
	if len(custom) > 0 {
		_ = json.Unmarshal(custom, &rec.Custom)
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
		ON DUPLICATE KEY UPDATE
			vector_id=VALUES(vector_id), properties=VALUES(properties), confidence=VALUES(confidence),
			content_hash=VALUES(content_hash), updated_at=VALUES(updated_at)
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
		var vectorID sql.NullString
		var props []byte
		if err := rows.Scan(&rec.ID, &rec.PersonaID, &vectorID, &rec.Type, &rec.Name, &rec.NormalizedName, &props, &rec.Confidence, &rec.ContentHash, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		rec.VectorID = vectorID.String
		if len(props) > 0 {
			_ = json.Unmarshal(props, &rec.Properties)
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
		ON DUPLICATE KEY UPDATE
			strength=VALUES(strength), properties=VALUES(properties), content_hash=VALUES(content_hash),
			update_count=VALUES(update_count), updated_at=VALUES(updated_at)
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
		var relContext sql.NullString
		var props []byte
		if err := rows.Scan(&rec.ID, &rec.PersonaID, &rec.SourceEntityID, &rec.TargetEntityID, &rec.RelationshipType, &rec.Strength, &relContext, &props, &rec.ContentHash, &rec.UpdateCount, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		rec.Context = relContext.String
		if len(props) > 0 {
			_ = json.Unmarshal(props, &rec.Properties)
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
		ON DUPLICATE KEY UPDATE
			name=VALUES(name), description=VALUES(description), system_prompt=VALUES(system_prompt),
			config=VALUES(config), max_memory_size=VALUES(max_memory_size),
			memory_decay_time_ms=VALUES(memory_decay_time_ms), is_active=VALUES(is_active), updated_at=VALUES(updated_at)
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
	var config []byte
	if err := s.Scan(&rec.ID, &rec.UserID, &rec.Name, &rec.Description, &rec.SystemPrompt, &config, &rec.MaxMemorySize, &rec.MemoryDecayTimeMs, &rec.IsActive, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	if len(config) > 0 {
		_ = json.Unmarshal(config, &rec.Config)
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
