// Package graph implements the per-persona knowledge graph: deterministic
// entity/relationship identity, UNIQUE-constraint reconciliation, BFS
// traversal, token-based entity search, and graph statistics.
package graph

import "time"

// Entity is a typed, named node derived from memory content (spec.md
// glossary). Its id is deterministic — see EntityID.
type Entity struct {
	ID             string                 `json:"id"`
	PersonaID      string                 `json:"persona_id"`
	VectorID       string                 `json:"vector_id,omitempty"`
	Type           string                 `json:"type"`
	Name           string                 `json:"name"`
	NormalizedName string                 `json:"normalized_name"`
	Properties     map[string]interface{} `json:"properties,omitempty"`
	Confidence     float64                `json:"confidence"`
	ContentHash    string                 `json:"content_hash"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

// Relationship is a typed, weighted directed edge between two entities of
// the same persona.
type Relationship struct {
	ID               string                 `json:"id"`
	PersonaID        string                 `json:"persona_id"`
	SourceEntityID   string                 `json:"source_entity_id"`
	TargetEntityID   string                 `json:"target_entity_id"`
	RelationshipType string                 `json:"relationship_type"`
	Strength         float64                `json:"strength"`
	Context          string                 `json:"context,omitempty"`
	Properties       map[string]interface{} `json:"properties,omitempty"`
	ContentHash      string                 `json:"content_hash"`
	UpdateCount      int                    `json:"update_count"`
	CreatedAt        time.Time              `json:"created_at"`
	LastUpdated      time.Time              `json:"last_updated"`
}

// EntityInput is the caller-supplied shape for createEntity (spec.md
// §4.5). OriginalID, if set, is used by process_entities_and_relationships
// to build its original_id -> canonical_id map.
type EntityInput struct {
	OriginalID string
	PersonaID  string
	VectorID   string
	Type       string
	Name       string
	Properties map[string]interface{}
	Confidence float64
}

// RelationshipInput is the caller-supplied shape for createRelationship.
// Source/Target may be original (pre-reconciliation) entity ids; the
// batch pipeline rewrites them through the id map before calling the
// single-item path directly.
type RelationshipInput struct {
	PersonaID        string
	SourceEntityID   string
	TargetEntityID   string
	RelationshipType string
	Strength         float64
	Context          string
	Properties       map[string]interface{}
}

// BatchResult summarizes process_entities_and_relationships (spec.md
// §4.5 "Batch processing").
type BatchResult struct {
	EntitiesProcessed       int
	EntitiesFailed          int
	RelationshipsProcessed  int
	RelationshipsFailed     int
	IDMappings              map[string]string // original_id -> canonical_id
}

// RelatedEntity is one hop reported by FindRelated: the entity, its BFS
// depth from the seed, and all of its incident relationships that pass the
// MinStrength and RelationshipTypes filters.
type RelatedEntity struct {
	Entity        Entity
	Depth         int
	Relationships []Relationship
}

// FindRelatedOptions bounds a traversal (spec.md §4.5 "Traversal").
type FindRelatedOptions struct {
	MaxDepth           int // <= 5
	Limit              int // <= 1000
	MinStrength        float64
	EntityTypes        []string
	RelationshipTypes  []string
}

// GraphContext is the deduplicated result of get_graph_context.
type GraphContext struct {
	Entities      []Entity
	Relationships []Relationship
	Connections   int
}

// GraphContextOptions configures get_graph_context.
type GraphContextOptions struct {
	IncludeRelationships bool
	MaxRelationships     int // <= 100
	Depth                int // <= 3
}

// SearchOptions configures entity search (spec.md §4.5 "Entity search").
type SearchOptions struct {
	Limit         int
	MinConfidence float64
	EntityType    string // empty = any type
}

// Stats is the §4.5 statistics surface.
type Stats struct {
	TotalEntities             int
	TotalRelationships        int
	EntitiesByType            map[string]TypeStat
	GraphDensity              float64
	AvgRelationshipsPerEntity float64
	Complexity                string // low | medium | high | very_high
}

// TypeStat is a per-entity-type breakdown within Stats.
type TypeStat struct {
	Count         int
	Percentage    float64
	AvgConfidence float64
}
