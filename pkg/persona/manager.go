// Package persona implements the thin per-persona policy layer over the
// hybrid engine (spec.md §4.8): capacity limits, decay windows, a
// content-type whitelist, conversation bookkeeping, and cleanup. It owns no
// vectors or graph state itself — every memory operation delegates to a
// shared core.Engine, with persona_id as the scoping key.
package persona

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/oceanlab/personamem/pkg/arena"
	"github.com/oceanlab/personamem/pkg/core"
	"github.com/oceanlab/personamem/pkg/graph"
	"github.com/oceanlab/personamem/pkg/storage"
)

const (
	// DefaultMaxMemorySize is the default per-persona capacity (spec.md
	// §4.8).
	DefaultMaxMemorySize = 1000

	// DefaultMemoryDecayTimeMs is the default cleanup age: 7 days.
	DefaultMemoryDecayTimeMs int64 = 7 * 24 * 60 * 60 * 1000

	// MinMemoryDecayTimeMs is the floor spec.md §4.8 requires: 1 hour.
	MinMemoryDecayTimeMs int64 = 60 * 60 * 1000
)

// state is a registered persona's runtime policy plus a live memory count,
// kept in lockstep with the engine to enforce MaxMemorySize without
// scanning the arena on every add_memory.
type state struct {
	config      Config
	memoryCount int
}

// Config is a persona's policy configuration.
type Config struct {
	ID                string
	UserID            string
	Name              string
	Description       string
	SystemPrompt      string
	MaxMemorySize     int
	MemoryDecayTimeMs int64
}

func (c *Config) applyDefaults() {
	if c.MaxMemorySize <= 0 {
		c.MaxMemorySize = DefaultMaxMemorySize
	}
	if c.MemoryDecayTimeMs <= 0 {
		c.MemoryDecayTimeMs = DefaultMemoryDecayTimeMs
	}
}

// Manager is the persona-scoped façade applications use: it wraps one
// shared core.Engine with per-persona capacity/decay/whitelist policy.
type Manager struct {
	mu       sync.RWMutex
	engine   *core.Engine
	store    storage.Store
	personas map[string]*state
}

// NewManager builds a Manager over an already-constructed engine and its
// persistence backend (store may be nil to run without durability).
func NewManager(engine *core.Engine, store storage.Store) *Manager {
	return &Manager{
		engine:   engine,
		store:    store,
		personas: make(map[string]*state),
	}
}

// RegisterPersona adds a persona with the given policy, persisting its
// configuration if a store is attached. Re-registering an existing
// persona id overwrites its policy.
func (m *Manager) RegisterPersona(ctx context.Context, cfg Config) error {
	if cfg.ID == "" {
		return core.ErrInvalidInput
	}
	cfg.applyDefaults()
	if cfg.MemoryDecayTimeMs < MinMemoryDecayTimeMs {
		return core.ErrInvalidInput
	}

	m.mu.Lock()
	m.personas[cfg.ID] = &state{config: cfg}
	m.mu.Unlock()

	if m.store == nil {
		return nil
	}
	now := time.Now()
	return m.store.SavePersona(ctx, &storage.PersonaRecord{
		ID:                cfg.ID,
		UserID:            cfg.UserID,
		Name:              cfg.Name,
		Description:       cfg.Description,
		SystemPrompt:      cfg.SystemPrompt,
		MaxMemorySize:     cfg.MaxMemorySize,
		MemoryDecayTimeMs: cfg.MemoryDecayTimeMs,
		IsActive:          true,
		CreatedAt:         now,
		UpdatedAt:         now,
	})
}

func (m *Manager) lookup(personaID string) (*state, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.personas[personaID]
	return s, ok
}

// AddMemory enforces the persona's content-type whitelist (delegated to
// the engine) and capacity limit before inserting through the shared
// engine.
func (m *Manager) AddMemory(ctx context.Context, personaID, content string, opts ...core.AddOption) (*core.MemoryRecord, error) {
	s, ok := m.lookup(personaID)
	if !ok {
		return nil, core.ErrPersonaNotFound
	}

	m.mu.Lock()
	if s.memoryCount >= s.config.MaxMemorySize {
		m.mu.Unlock()
		return nil, core.ErrCapacityExceeded
	}
	m.mu.Unlock()

	rec, err := m.engine.AddMemory(ctx, personaID, content, opts...)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	s.memoryCount++
	m.mu.Unlock()

	return rec, nil
}

// SearchMemories delegates to the engine after confirming the persona is
// registered.
func (m *Manager) SearchMemories(ctx context.Context, personaID, query string, opts ...core.SearchOption) (*core.SearchResult, error) {
	if _, ok := m.lookup(personaID); !ok {
		return nil, core.ErrPersonaNotFound
	}
	return m.engine.SearchMemories(ctx, personaID, query, opts...)
}

// HybridSearch delegates to the engine after confirming the persona is
// registered.
func (m *Manager) HybridSearch(ctx context.Context, personaID, query string, opts ...core.SearchOption) (*core.HybridSearchResult, error) {
	if _, ok := m.lookup(personaID); !ok {
		return nil, core.ErrPersonaNotFound
	}
	return m.engine.HybridSearch(ctx, personaID, query, opts...)
}

// ExploreEntities delegates to the engine after confirming the persona is
// registered (spec.md §6 "explore_entities").
func (m *Manager) ExploreEntities(ctx context.Context, personaID, query string, opts ...core.EntitySearchOption) ([]graph.Entity, error) {
	if _, ok := m.lookup(personaID); !ok {
		return nil, core.ErrPersonaNotFound
	}
	return m.engine.ExploreEntities(personaID, query, opts...)
}

// GetGraphContext delegates to the engine after confirming the persona is
// registered (spec.md §6 "get_graph_context").
func (m *Manager) GetGraphContext(ctx context.Context, personaID string, entityIDs []string, opts ...core.GraphContextOption) (graph.GraphContext, error) {
	if _, ok := m.lookup(personaID); !ok {
		return graph.GraphContext{}, core.ErrPersonaNotFound
	}
	return m.engine.GetGraphContext(personaID, entityIDs, opts...)
}

// ConversationResult is the outcome of AddConversation: the shared
// conversation id plus the ids of the two memories it created.
type ConversationResult struct {
	ConversationID    string
	UserMemoryID      string
	AssistantMemoryID string
}

// AddConversation inserts a linked pair of memories — the user's message
// and the assistant's reply — sharing a conversation_id, per spec.md §4.8.
func (m *Manager) AddConversation(ctx context.Context, personaID, userMessage, assistantResponse, conversationID string) (*ConversationResult, error) {
	if _, ok := m.lookup(personaID); !ok {
		return nil, core.ErrPersonaNotFound
	}
	if conversationID == "" {
		conversationID = m.engine.NewID()
	}

	userRec, err := m.AddMemory(ctx, personaID, userMessage,
		core.WithContentType("conversation"),
		core.WithCustom(map[string]interface{}{"conversation_id": conversationID, "role": "user"}),
	)
	if err != nil {
		return nil, err
	}

	assistantRec, err := m.AddMemory(ctx, personaID, assistantResponse,
		core.WithContentType("conversation"),
		core.WithCustom(map[string]interface{}{"conversation_id": conversationID, "role": "assistant"}),
	)
	if err != nil {
		return nil, err
	}

	return &ConversationResult{
		ConversationID:    conversationID,
		UserMemoryID:      userRec.ID,
		AssistantMemoryID: assistantRec.ID,
	}, nil
}

// GetConversationHistory returns a conversation's turns in chronological
// order, truncated to limit.
func (m *Manager) GetConversationHistory(ctx context.Context, personaID, conversationID string, limit int) ([]*core.ConversationTurn, error) {
	if _, ok := m.lookup(personaID); !ok {
		return nil, core.ErrPersonaNotFound
	}
	if limit <= 0 || limit > 1000 {
		return nil, core.ErrInvalidInput
	}

	memories := m.engine.ListMemories(personaID, &arena.Filter{
		Eq: map[string]interface{}{"content_type": "conversation", "conversation_id": conversationID},
	})

	sort.Slice(memories, func(i, j int) bool {
		return memories[i].CreatedAt.Before(memories[j].CreatedAt)
	})
	if len(memories) > limit {
		memories = memories[:limit]
	}

	turns := make([]*core.ConversationTurn, 0, len(memories))
	for _, mem := range memories {
		role, _ := mem.Custom["role"].(string)
		turns = append(turns, &core.ConversationTurn{
			ConversationID: conversationID,
			Role:           role,
			Content:        mem.Content,
		})
	}
	return turns, nil
}

// CleanupMemories removes memories older than the configured age
// (optionally restricted to content types), or reports what it would
// remove if WithDryRun(true) is set. The configured age must be at least
// MinMemoryDecayTimeMs (spec.md §4.8).
func (m *Manager) CleanupMemories(ctx context.Context, personaID string, opts ...core.CleanupOption) (*core.CleanupResult, error) {
	if _, ok := m.lookup(personaID); !ok {
		return nil, core.ErrPersonaNotFound
	}

	start := time.Now()

	o := core.ApplyCleanupOptions(opts...)
	if o.OlderThanMs < MinMemoryDecayTimeMs {
		return nil, core.ErrInvalidInput
	}

	cutoff := time.Now().Add(-time.Duration(o.OlderThanMs) * time.Millisecond)
	typeSet := make(map[string]bool, len(o.Types))
	for _, t := range o.Types {
		typeSet[t] = true
	}

	candidates := m.engine.ListMemories(personaID, &arena.Filter{TimestampLT: cutoff})

	removed := make([]string, 0, len(candidates))
	breakdown := make(map[string]int)
	for _, mem := range candidates {
		if len(typeSet) > 0 && !typeSet[mem.ContentType] {
			continue
		}
		removed = append(removed, mem.ID)
		breakdown[mem.ContentType]++
	}

	if !o.DryRun {
		for _, id := range removed {
			if err := m.engine.DeleteMemory(ctx, personaID, id); err != nil {
				return nil, fmt.Errorf("cleanup: failed to delete %s: %w", id, err)
			}
			m.mu.Lock()
			if s, ok := m.personas[personaID]; ok && s.memoryCount > 0 {
				s.memoryCount--
			}
			m.mu.Unlock()
		}
	}

	return &core.CleanupResult{
		Removed:          removed,
		Breakdown:        breakdown,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
		DryRun:           o.DryRun,
	}, nil
}

// ReloadFromPersistence replays every registered persona's persisted
// memories through the engine, logging and counting (not aborting on)
// per-memory failures (spec.md §4.8).
func (m *Manager) ReloadFromPersistence(ctx context.Context) (map[string]*core.ReloadResult, error) {
	m.mu.RLock()
	ids := make([]string, 0, len(m.personas))
	for id := range m.personas {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	results := make(map[string]*core.ReloadResult, len(ids))
	for _, id := range ids {
		result, err := m.engine.ReloadFromPersistence(ctx, id)
		if err != nil {
			return nil, err
		}
		results[id] = result

		m.mu.Lock()
		if s, ok := m.personas[id]; ok {
			s.memoryCount += result.Reloaded
		}
		m.mu.Unlock()
	}
	return results, nil
}
