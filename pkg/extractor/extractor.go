// Package extractor implements deterministic, pattern-based entity and
// relationship extraction from free text (spec.md §4.6). No learned
// (LLM-based) extraction is performed; every decision is a fixed regex
// match plus a scored cleanup/validation pipeline.
package extractor

import (
	"sort"
	"strings"
	"unicode"
)

// maxEntitiesPerExtraction caps how many entities a single call returns
// (spec.md §4.6 step 6, and §6 "entity.max_entities_per_memory <= 20").
const maxEntitiesPerExtraction = 20

const contextWindowRadius = 100

// Entity is one extracted candidate, carrying its confidence and a
// context window around the matched span.
type Entity struct {
	Type       EntityType
	Name       string
	Confidence float64
	Context    string
	offset     int // byte offset of the match, used for relationship inference
}

// Relationship is one inferred co-occurrence relationship between two
// extracted entities.
type Relationship struct {
	SourceName       string
	SourceType       EntityType
	TargetName       string
	TargetType       EntityType
	RelationshipType string
	Strength         float64
}

// Extract runs the full pipeline over text: pattern matching, cleanup,
// validation, confidence scoring, deduplication, and truncation. The
// result is order-stable (sorted by confidence, ties by name) so repeat
// calls on identical text are idempotent, per spec.md §8.
func Extract(text string) []Entity {
	type candidate struct {
		Entity
		key string
	}

	best := make(map[string]candidate)

	for entityType, patterns := range patternTable {
		for _, p := range patterns {
			for _, loc := range p.re.FindAllStringSubmatchIndex(text, -1) {
				group := p.group
				var start, end int
				if group == 0 || 2*group+1 >= len(loc) {
					start, end = loc[0], loc[1]
				} else {
					start, end = loc[2*group], loc[2*group+1]
				}
				if start < 0 || end < 0 {
					continue
				}
				raw := text[start:end]
				name := clean(entityType, raw)
				if !validate(entityType, name) {
					continue
				}
				confidence := score(entityType, text, name, start)
				key := string(entityType) + "\x00" + strings.ToLower(name)
				if existing, ok := best[key]; !ok || confidence > existing.Confidence {
					best[key] = candidate{
						Entity: Entity{
							Type:       entityType,
							Name:       name,
							Confidence: confidence,
							Context:    contextWindow(text, start, end),
							offset:     start,
						},
						key: key,
					}
				}
			}
		}
	}

	out := make([]Entity, 0, len(best))
	for _, c := range best {
		out = append(out, c.Entity)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Type < out[j].Type
	})

	if len(out) > maxEntitiesPerExtraction {
		out = out[:maxEntitiesPerExtraction]
	}
	return out
}

// clean applies type-specific cleanup rules (spec.md §4.6 step 2).
func clean(t EntityType, raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.Trim(s, ".,;:!?'\"")
	switch t {
	case TypePerson, TypeConcept, TypePlace:
		return titleCase(s)
	case TypeEvent:
		return strings.ToLower(s)
	case TypeObject:
		return s
	default:
		return s
	}
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		if len(r) == 0 {
			continue
		}
		r[0] = unicode.ToUpper(r[0])
		for j := 1; j < len(r); j++ {
			r[j] = unicode.ToLower(r[j])
		}
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

// validate applies spec.md §4.6 step 3's length/stopword/case rules.
func validate(t EntityType, name string) bool {
	if len(name) < 2 || len(name) > 100 {
		return false
	}
	if _, ok := stopwords[strings.ToLower(name)]; ok {
		return false
	}
	if isDigitsOnly(name) {
		return false
	}
	switch t {
	case TypePerson, TypePlace:
		r := []rune(name)
		if !unicode.IsUpper(r[0]) {
			return false
		}
	case TypeConcept:
		if len(name) < 3 {
			return false
		}
	case TypeEvent:
		if len(name) < 5 {
			return false
		}
	}
	return true
}

func isDigitsOnly(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// score computes confidence per spec.md §4.6 step 4: base 0.5 with
// additive boosts, clamped to [0.1, 1.0].
func score(t EntityType, text, name string, offset int) float64 {
	c := 0.5

	if len(strings.Fields(name)) > 1 {
		c += 0.1
	}

	lowerName := strings.ToLower(name)
	switch t {
	case TypeConcept:
		for _, cue := range []string{"algorithm", "database", "machine learning", "neural", "architecture", "framework"} {
			if strings.Contains(lowerName, cue) {
				c += 0.2
				break
			}
		}
	case TypeObject:
		if hasFileExtension(name) {
			c += 0.3
		}
	case TypeEvent:
		if hasDateToken(name) || hasDateToken(text) {
			c += 0.2
		}
	case TypePlace:
		for _, suffix := range []string{"inc", "llc", "corp", "ltd", "co", "university"} {
			if strings.HasSuffix(strings.ToLower(strings.TrimSuffix(name, ".")), suffix) {
				c += 0.3
				break
			}
		}
	}

	for _, cue := range []string{"specifically", "notably", "importantly"} {
		if strings.Contains(strings.ToLower(text), cue) {
			c += 0.05
			break
		}
	}

	if c < 0.1 {
		c = 0.1
	}
	if c > 1.0 {
		c = 1.0
	}
	return c
}

var fileExtensions = []string{".go", ".py", ".js", ".ts", ".java", ".rb", ".rs", ".cpp", ".c", ".json", ".yaml", ".yml", ".sql", ".md"}

func hasFileExtension(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range fileExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

func hasDateToken(s string) bool {
	lower := strings.ToLower(s)
	for _, token := range []string{"yesterday", "today", "tomorrow", "last week", "next week", "january", "february", "march", "april", "may", "june", "july", "august", "september", "october", "november", "december"} {
		if strings.Contains(lower, token) {
			return true
		}
	}
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

func contextWindow(text string, start, end int) string {
	lo := start - contextWindowRadius
	if lo < 0 {
		lo = 0
	}
	hi := end + contextWindowRadius
	if hi > len(text) {
		hi = len(text)
	}
	return text[lo:hi]
}
