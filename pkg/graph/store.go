package graph

import (
	"log"
	"sort"
	"strings"
	"sync"
	"time"
)

// entityKey is the (persona, type, normalized_name) uniqueness tuple
// spec.md §8 requires to hold across entities.
type entityKey struct {
	personaID      string
	entityType     string
	normalizedName string
}

// relationshipKey is the (persona, source, target, type) uniqueness tuple.
type relationshipKey struct {
	personaID string
	source    string
	target    string
	relType   string
}

// Store is the per-engine knowledge graph: entities and relationships for
// every persona, with deterministic ids and UNIQUE-constraint
// reconciliation. All mutation happens under a single writer lock, which
// is what actually guarantees the at-most-one-canonical-record property
// spec.md §8 scenario 5 exercises — the lookup-and-return fallback paths
// below exist for documentation fidelity with the source's two-writer
// race protocol even though this lock already serializes them.
type Store struct {
	mu sync.RWMutex

	entities      map[string]*Entity          // id -> entity
	entitiesByKey map[entityKey]string        // (persona,type,name) -> id
	byVectorID    map[string]map[string]struct{} // vector_id -> set of entity ids

	relationships map[string]*Relationship
	relsByKey     map[relationshipKey]string
	// outgoing[persona][entityID] -> relationship ids where entityID is the source
	outgoing map[string]map[string][]string
	// incoming[persona][entityID] -> relationship ids where entityID is the target
	incoming map[string]map[string][]string
}

// NewStore creates an empty in-memory graph store.
func NewStore() *Store {
	return &Store{
		entities:      make(map[string]*Entity),
		entitiesByKey: make(map[entityKey]string),
		byVectorID:    make(map[string]map[string]struct{}),
		relationships: make(map[string]*Relationship),
		relsByKey:     make(map[relationshipKey]string),
		outgoing:      make(map[string]map[string][]string),
		incoming:      make(map[string]map[string][]string),
	}
}

// CreateEntity implements spec.md §4.5 createEntity. If an entity with the
// computed id already exists, higher-confidence input merges properties
// and bumps the content hash; otherwise the existing id is returned
// unchanged. A UNIQUE-constraint collision on insert is resolved by
// looking the entity back up by (persona, type, normalized_name).
func (s *Store) CreateEntity(in EntityInput) (string, error) {
	if in.PersonaID == "" || in.Name == "" || in.Type == "" {
		return "", ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	normalized := Normalize(in.Name)
	id := EntityID(in.PersonaID, in.Name, in.Type)
	key := entityKey{personaID: in.PersonaID, entityType: in.Type, normalizedName: normalized}

	if existing, ok := s.entities[id]; ok {
		if in.Confidence > existing.Confidence {
			s.mergeEntity(existing, in)
		}
		return existing.ID, nil
	}

	// Simulated UNIQUE-constraint collision path: another writer may have
	// already registered this (persona, type, name) under the same
	// deterministic id before we got here (impossible under this single
	// lock, but the lookup mirrors the source's race-reconciliation
	// protocol for a multi-writer persistence backend).
	if existingID, ok := s.entitiesByKey[key]; ok {
		log.Printf("graph: reconciled entity create race for persona=%s type=%s name=%s -> %s", in.PersonaID, in.Type, normalized, existingID)
		return existingID, nil
	}

	now := time.Now()
	e := &Entity{
		ID:             id,
		PersonaID:      in.PersonaID,
		VectorID:       in.VectorID,
		Type:           in.Type,
		Name:           in.Name,
		NormalizedName: normalized,
		Properties:     cloneProps(in.Properties),
		Confidence:     in.Confidence,
		ContentHash:    ContentHash(in.Properties),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.entities[id] = e
	s.entitiesByKey[key] = id
	if in.VectorID != "" {
		s.indexVector(in.VectorID, id)
	}
	return id, nil
}

func (s *Store) mergeEntity(existing *Entity, in EntityInput) {
	for k, v := range in.Properties {
		if existing.Properties == nil {
			existing.Properties = make(map[string]interface{})
		}
		existing.Properties[k] = v
	}
	existing.Confidence = in.Confidence
	if in.VectorID != "" && in.VectorID != existing.VectorID {
		if existing.VectorID != "" {
			s.unindexVector(existing.VectorID, existing.ID)
		}
		existing.VectorID = in.VectorID
		s.indexVector(in.VectorID, existing.ID)
	}
	existing.ContentHash = ContentHash(existing.Properties)
	existing.UpdatedAt = time.Now()
}

func (s *Store) indexVector(vectorID, entityID string) {
	set, ok := s.byVectorID[vectorID]
	if !ok {
		set = make(map[string]struct{})
		s.byVectorID[vectorID] = set
	}
	set[entityID] = struct{}{}
}

func (s *Store) unindexVector(vectorID, entityID string) {
	if set, ok := s.byVectorID[vectorID]; ok {
		delete(set, entityID)
		if len(set) == 0 {
			delete(s.byVectorID, vectorID)
		}
	}
}

// EntitiesForVector returns every live entity id referencing vectorID (the
// secondary index spec.md §9 "Cyclic ownership" calls for).
func (s *Store) EntitiesForVector(vectorID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.byVectorID[vectorID]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// CreateRelationship implements spec.md §4.5 createRelationship.
func (s *Store) CreateRelationship(in RelationshipInput) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if src, ok := s.entities[in.SourceEntityID]; !ok || src.PersonaID != in.PersonaID {
		return "", ErrEntityNotFound
	}
	if tgt, ok := s.entities[in.TargetEntityID]; !ok || tgt.PersonaID != in.PersonaID {
		return "", ErrEntityNotFound
	}

	key := relationshipKey{
		personaID: in.PersonaID,
		source:    in.SourceEntityID,
		target:    in.TargetEntityID,
		relType:   in.RelationshipType,
	}

	if id, ok := s.relsByKey[key]; ok {
		r := s.relationships[id]
		r.Strength = minF(1, (r.Strength+in.Strength)/2)
		for k, v := range in.Properties {
			if r.Properties == nil {
				r.Properties = make(map[string]interface{})
			}
			r.Properties[k] = v
		}
		r.UpdateCount++
		r.LastUpdated = time.Now()
		r.ContentHash = ContentHash(r.Properties)
		return r.ID, nil
	}

	id := RelationshipID(in.PersonaID, in.SourceEntityID, in.TargetEntityID, in.RelationshipType)
	if _, exists := s.relationships[id]; exists {
		// Reconciliation path for a concurrent duplicate insert.
		log.Printf("graph: reconciled relationship create race for %s", id)
		return id, nil
	}

	now := time.Now()
	r := &Relationship{
		ID:               id,
		PersonaID:        in.PersonaID,
		SourceEntityID:   in.SourceEntityID,
		TargetEntityID:   in.TargetEntityID,
		RelationshipType: in.RelationshipType,
		Strength:         in.Strength,
		Context:          in.Context,
		Properties:       cloneProps(in.Properties),
		ContentHash:      ContentHash(in.Properties),
		UpdateCount:      1,
		CreatedAt:        now,
		LastUpdated:      now,
	}
	s.relationships[id] = r
	s.relsByKey[key] = id
	s.addEdgeIndex(in.PersonaID, in.SourceEntityID, in.TargetEntityID, id)
	return id, nil
}

func (s *Store) addEdgeIndex(personaID, source, target, relID string) {
	if s.outgoing[personaID] == nil {
		s.outgoing[personaID] = make(map[string][]string)
	}
	if s.incoming[personaID] == nil {
		s.incoming[personaID] = make(map[string][]string)
	}
	s.outgoing[personaID][source] = append(s.outgoing[personaID][source], relID)
	s.incoming[personaID][target] = append(s.incoming[personaID][target], relID)
}

// ProcessBatch implements process_entities_and_relationships (spec.md
// §4.5 "Batch processing"): entities first, building an original-id ->
// canonical-id map, then relationships with endpoints rewritten through
// that map; a relationship is skipped if either endpoint failed.
func (s *Store) ProcessBatch(entities []EntityInput, relationships []RelationshipInput) BatchResult {
	result := BatchResult{IDMappings: make(map[string]string)}

	for _, e := range entities {
		id, err := s.CreateEntity(e)
		if err != nil {
			result.EntitiesFailed++
			continue
		}
		result.EntitiesProcessed++
		if e.OriginalID != "" {
			result.IDMappings[e.OriginalID] = id
		}
	}

	for _, r := range relationships {
		src := resolveID(r.SourceEntityID, result.IDMappings)
		tgt := resolveID(r.TargetEntityID, result.IDMappings)
		if !s.entityExists(src) || !s.entityExists(tgt) {
			result.RelationshipsFailed++
			continue
		}
		rewritten := r
		rewritten.SourceEntityID = src
		rewritten.TargetEntityID = tgt
		if _, err := s.CreateRelationship(rewritten); err != nil {
			result.RelationshipsFailed++
			continue
		}
		result.RelationshipsProcessed++
	}

	return result
}

func resolveID(id string, mapping map[string]string) string {
	if canonical, ok := mapping[id]; ok {
		return canonical
	}
	return id
}

func (s *Store) entityExists(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entities[id]
	return ok
}

// GetEntity returns a copy of the entity with id.
func (s *Store) GetEntity(id string) (Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[id]
	if !ok {
		return Entity{}, ErrEntityNotFound
	}
	return *e, nil
}

// FindRelated implements the §4.5 BFS traversal.
func (s *Store) FindRelated(entityID string, opts FindRelatedOptions) ([]RelatedEntity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	root, ok := s.entities[entityID]
	if !ok {
		return nil, ErrEntityNotFound
	}

	maxDepth := opts.MaxDepth
	if maxDepth <= 0 || maxDepth > 5 {
		maxDepth = 5
	}
	limit := opts.Limit
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}

	type queued struct {
		id    string
		depth int
	}
	visited := map[string]bool{entityID: true}
	queue := []queued{{id: entityID, depth: 0}}
	var out []RelatedEntity

	for len(queue) > 0 && len(out) < limit {
		cur := queue[0]
		queue = queue[1:]

		if cur.depth > 0 {
			ent := s.entities[cur.id]
			if entityTypeMatches(ent.Type, opts.EntityTypes) {
				out = append(out, RelatedEntity{
					Entity:        *ent,
					Depth:         cur.depth,
					Relationships: s.incidentRelationships(root.PersonaID, cur.id, opts),
				})
			}
		}

		if cur.depth >= maxDepth {
			continue
		}
		for _, relID := range s.outgoing[root.PersonaID][cur.id] {
			r := s.relationships[relID]
			if r.Strength < opts.MinStrength {
				continue
			}
			if !relationshipTypeMatches(r.RelationshipType, opts.RelationshipTypes) {
				continue
			}
			if !visited[r.TargetEntityID] {
				visited[r.TargetEntityID] = true
				queue = append(queue, queued{id: r.TargetEntityID, depth: cur.depth + 1})
			}
		}
		for _, relID := range s.incoming[root.PersonaID][cur.id] {
			r := s.relationships[relID]
			if r.Strength < opts.MinStrength {
				continue
			}
			if !relationshipTypeMatches(r.RelationshipType, opts.RelationshipTypes) {
				continue
			}
			if !visited[r.SourceEntityID] {
				visited[r.SourceEntityID] = true
				queue = append(queue, queued{id: r.SourceEntityID, depth: cur.depth + 1})
			}
		}
	}

	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) incidentRelationships(personaID, entityID string, opts FindRelatedOptions) []Relationship {
	var out []Relationship
	for _, relID := range s.outgoing[personaID][entityID] {
		r := s.relationships[relID]
		if r.Strength >= opts.MinStrength && relationshipTypeMatches(r.RelationshipType, opts.RelationshipTypes) {
			out = append(out, *r)
		}
	}
	for _, relID := range s.incoming[personaID][entityID] {
		r := s.relationships[relID]
		if r.Strength >= opts.MinStrength && relationshipTypeMatches(r.RelationshipType, opts.RelationshipTypes) {
			out = append(out, *r)
		}
	}
	return out
}

func entityTypeMatches(t string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == t {
			return true
		}
	}
	return false
}

func relationshipTypeMatches(t string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == t {
			return true
		}
	}
	return false
}

// GetGraphContext implements get_graph_context: the union of the given
// entities plus (optionally) their directly incident relationships,
// deduplicated by (source, target, type). opts.Depth is not consulted;
// relationships are never followed beyond the given entities.
func (s *Store) GetGraphContext(ids []string, opts GraphContextOptions) (GraphContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := GraphContext{}
	seenEntities := make(map[string]bool)
	for _, id := range ids {
		e, ok := s.entities[id]
		if !ok {
			continue
		}
		if !seenEntities[id] {
			seenEntities[id] = true
			ctx.Entities = append(ctx.Entities, *e)
		}
	}

	if !opts.IncludeRelationships {
		return ctx, nil
	}

	maxRels := opts.MaxRelationships
	if maxRels <= 0 || maxRels > 100 {
		maxRels = 100
	}

	seenRels := make(map[relationshipKey]bool)
	for _, id := range ids {
		e, ok := s.entities[id]
		if !ok {
			continue
		}
		for _, relID := range s.outgoing[e.PersonaID][id] {
			s.addContextRel(&ctx, seenRels, relID, maxRels)
		}
		for _, relID := range s.incoming[e.PersonaID][id] {
			s.addContextRel(&ctx, seenRels, relID, maxRels)
		}
	}
	ctx.Connections = len(ctx.Relationships)
	return ctx, nil
}

func (s *Store) addContextRel(ctx *GraphContext, seen map[relationshipKey]bool, relID string, maxRels int) {
	if len(ctx.Relationships) >= maxRels {
		return
	}
	r := s.relationships[relID]
	key := relationshipKey{personaID: r.PersonaID, source: r.SourceEntityID, target: r.TargetEntityID, relType: r.RelationshipType}
	if seen[key] {
		return
	}
	seen[key] = true
	ctx.Relationships = append(ctx.Relationships, *r)
}

// SearchEntities implements spec.md §4.5 "Entity search": token-based
// scoring over name, filtered by persona, min confidence, and type.
func (s *Store) SearchEntities(personaID, query string, opts SearchOptions) []Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	terms := strings.Fields(strings.ToLower(query))
	nTerms := len(terms)
	if nTerms == 0 {
		return nil
	}

	type scored struct {
		e     Entity
		score float64
	}
	var candidates []scored

	for _, e := range s.entities {
		if e.PersonaID != personaID {
			continue
		}
		if opts.EntityType != "" && e.Type != opts.EntityType {
			continue
		}
		score := scoreEntityName(e.Name, query, terms, nTerms) * e.Confidence
		if score <= 0 {
			continue
		}
		if score < opts.MinConfidence {
			continue
		}
		candidates = append(candidates, scored{e: *e, score: score})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].e.ID < candidates[j].e.ID
	})

	limit := opts.Limit
	if limit <= 0 {
		limit = len(candidates)
	}
	if limit > len(candidates) {
		limit = len(candidates)
	}

	out := make([]Entity, limit)
	for i := 0; i < limit; i++ {
		out[i] = candidates[i].e
	}
	return out
}

func scoreEntityName(name, query string, terms []string, nTerms int) float64 {
	lowerName := strings.ToLower(name)
	lowerQuery := strings.ToLower(query)

	if lowerName == lowerQuery {
		return 1.0
	}

	var score float64
	for _, term := range terms {
		if strings.Contains(lowerName, term) {
			score += 0.5 / float64(nTerms)
		}
		if wordBoundaryMatch(lowerName, term) {
			score += 0.3 / float64(nTerms)
		}
	}
	return score
}

func wordBoundaryMatch(text, term string) bool {
	for _, word := range strings.FieldsFunc(text, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_')
	}) {
		if word == term {
			return true
		}
	}
	return false
}

// Statistics implements spec.md §4.5 "Statistics" for one persona.
func (s *Store) Statistics(personaID string) Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byType := make(map[string][]float64) // type -> confidences
	n := 0
	for _, e := range s.entities {
		if e.PersonaID != personaID {
			continue
		}
		n++
		byType[e.Type] = append(byType[e.Type], e.Confidence)
	}

	relCount := 0
	for _, r := range s.relationships {
		if r.PersonaID == personaID {
			relCount++
		}
	}

	stats := Stats{
		TotalEntities:      n,
		TotalRelationships: relCount,
		EntitiesByType:     make(map[string]TypeStat),
	}

	for t, confidences := range byType {
		sum := 0.0
		for _, c := range confidences {
			sum += c
		}
		stats.EntitiesByType[t] = TypeStat{
			Count:         len(confidences),
			Percentage:    100 * float64(len(confidences)) / float64(n),
			AvgConfidence: sum / float64(len(confidences)),
		}
	}

	if n > 1 {
		stats.GraphDensity = 2 * float64(relCount) / float64(n*(n-1))
	}
	if n > 0 {
		stats.AvgRelationshipsPerEntity = float64(relCount) / float64(n)
	}
	stats.Complexity = complexityBucket(n)

	return stats
}

func complexityBucket(n int) string {
	switch {
	case n < 10:
		return "low"
	case n < 50:
		return "medium"
	case n < 200:
		return "high"
	default:
		return "very_high"
	}
}

// CleanupOrphans implements spec.md §4.5 "Cleanup (orphan)": deletes
// entities older than maxAge with confidence below 0.5 and no incident
// relationships, returning the count removed.
func (s *Store) CleanupOrphans(personaID string, maxAge time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	var toDelete []string
	for id, e := range s.entities {
		if e.PersonaID != personaID {
			continue
		}
		if e.Confidence >= 0.5 {
			continue
		}
		if !e.CreatedAt.Before(cutoff) {
			continue
		}
		if len(s.outgoing[personaID][id]) > 0 || len(s.incoming[personaID][id]) > 0 {
			continue
		}
		toDelete = append(toDelete, id)
	}

	for _, id := range toDelete {
		e := s.entities[id]
		if e.VectorID != "" {
			s.unindexVector(e.VectorID, id)
		}
		delete(s.entities, id)
		delete(s.entitiesByKey, entityKey{personaID: e.PersonaID, entityType: e.Type, normalizedName: e.NormalizedName})
	}
	return len(toDelete)
}

func cloneProps(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
