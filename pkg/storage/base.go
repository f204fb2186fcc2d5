// Package storage provides the persistence interfaces consumed by the
// engine (spec.md §6 "Persistence (consumed)") and its sqlite/postgres/
// mysql implementations. Persistence durably records vector metadata,
// entities, relationships, and persona configuration so the vector arena
// (which is never itself persisted, per spec.md §1) can be rehydrated by
// replaying stored metadata through the embedder on restart.
package storage

import (
	"context"
	"time"
)

// VectorMetadataRecord is the durable counterpart of arena.Metadata, with
// the original memory content retained so reload_from_persistence can
// re-embed it (spec.md §4.8).
type VectorMetadataRecord struct {
	ID               string
	PersonaID        string
	ContentType      string
	Source           string
	Tags             []string
	Custom           map[string]interface{}
	OriginalContent  string
	CreatedAt        time.Time
	UpdatedAt        *time.Time
}

// EntityRecord is the durable counterpart of graph.Entity (spec.md §6
// "entities(...)").
type EntityRecord struct {
	ID             string
	PersonaID      string
	VectorID       string
	Type           string
	Name           string
	NormalizedName string
	Properties     map[string]interface{}
	Confidence     float64
	ContentHash    string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// RelationshipRecord is the durable counterpart of graph.Relationship
// (spec.md §6 "relationships(...)").
type RelationshipRecord struct {
	ID               string
	PersonaID        string
	SourceEntityID   string
	TargetEntityID   string
	RelationshipType string
	Strength         float64
	Context          string
	Properties       map[string]interface{}
	ContentHash      string
	UpdateCount      int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// PersonaRecord is the durable counterpart of a persona's configuration
// (spec.md §6 "personas(...)").
type PersonaRecord struct {
	ID                string
	UserID            string
	Name              string
	Description       string
	SystemPrompt      string
	Config            map[string]interface{}
	MaxMemorySize     int
	MemoryDecayTimeMs int64
	IsActive          bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Store is implemented by every persistence backend (sqlite, postgres,
// mysql). All methods are safe for concurrent use.
type Store interface {
	// SaveVectorMetadata upserts rec.
	SaveVectorMetadata(ctx context.Context, rec *VectorMetadataRecord) error

	// GetVectorMetadata returns the record for id.
	GetVectorMetadata(ctx context.Context, id string) (*VectorMetadataRecord, error)

	// DeleteVectorMetadata removes the record for id.
	DeleteVectorMetadata(ctx context.Context, id string) error

	// ListVectorMetadata returns every record for personaID, used by
	// reload_from_persistence to rehydrate the arena on startup.
	ListVectorMetadata(ctx context.Context, personaID string) ([]*VectorMetadataRecord, error)

	// SaveEntity upserts rec.
	SaveEntity(ctx context.Context, rec *EntityRecord) error

	// ListEntities returns every entity for personaID.
	ListEntities(ctx context.Context, personaID string) ([]*EntityRecord, error)

	// SaveRelationship upserts rec.
	SaveRelationship(ctx context.Context, rec *RelationshipRecord) error

	// ListRelationships returns every relationship for personaID.
	ListRelationships(ctx context.Context, personaID string) ([]*RelationshipRecord, error)

	// SavePersona upserts rec.
	SavePersona(ctx context.Context, rec *PersonaRecord) error

	// GetPersona returns the record for id.
	GetPersona(ctx context.Context, id string) (*PersonaRecord, error)

	// ListPersonas returns every persisted persona.
	ListPersonas(ctx context.Context) ([]*PersonaRecord, error)

	// Close releases the backend's underlying connection.
	Close() error
}

// ErrNotFound is returned by Get* lookups that find nothing. List* methods
// return an empty result instead.
var ErrNotFound = notFoundError{}

type notFoundError struct{}

func (notFoundError) Error() string { return "storage: record not found" }
