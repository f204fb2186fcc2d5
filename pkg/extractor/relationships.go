package extractor

import "strings"

const maxCoOccurrenceDistance = 200

// typePairRelationship maps an ordered (source type, target type) pair to
// its default relationship type and base strength (spec.md §4.6
// "Relationship inference"). Unlisted pairs fall back to MENTIONS/0.3.
var typePairRelationship = map[[2]EntityType]struct {
	relType  string
	strength float64
}{
	{TypePerson, TypePerson}:  {"KNOWS", 0.6},
	{TypePerson, TypeConcept}: {"WORKS_WITH", 0.7},
	{TypePerson, TypePlace}:   {"LOCATED_AT", 0.5},
	{TypeConcept, TypeObject}: {"IMPLEMENTED_IN", 0.8},
	{TypeEvent, TypePerson}:   {"INVOLVES", 0.7},
}

// InferRelationships emits one relationship per unordered pair of entities
// whose closest co-occurrence offsets in text fall within 200 characters,
// per spec.md §4.6.
func InferRelationships(text string, entities []Entity) []Relationship {
	var out []Relationship

	for i := 0; i < len(entities); i++ {
		for j := i + 1; j < len(entities); j++ {
			a, b := entities[i], entities[j]
			distance := abs(a.offset - b.offset)
			if distance > maxCoOccurrenceDistance {
				continue
			}

			relType, strength := "MENTIONS", 0.3
			if spec, ok := typePairRelationship[[2]EntityType{a.Type, b.Type}]; ok {
				relType, strength = spec.relType, spec.strength
			} else if spec, ok := typePairRelationship[[2]EntityType{b.Type, a.Type}]; ok {
				relType, strength = spec.relType, spec.strength
			}

			between := textBetween(text, a.offset, b.offset)
			lowerBetween := strings.ToLower(between)
			switch {
			case strings.Contains(lowerBetween, " using ") || strings.Contains(lowerBetween, " use "):
				relType = "USES"
				strength += 0.2
			case strings.Contains(lowerBetween, " works ") || strings.Contains(lowerBetween, " working "):
				relType = "WORKS_WITH"
				strength += 0.1
			case strings.Contains(lowerBetween, " and ") || strings.Contains(lowerBetween, " with "):
				strength += 0.1
			}

			if distance < 50 {
				strength += 0.1
			}
			if distance < 20 {
				strength += 0.1
			}

			strength = clamp(strength, 0.1, 1.0)

			out = append(out, Relationship{
				SourceName:       a.Name,
				SourceType:       a.Type,
				TargetName:       b.Name,
				TargetType:       b.Type,
				RelationshipType: relType,
				Strength:         strength,
			})
		}
	}
	return out
}

func textBetween(text string, a, b int) string {
	lo, hi := a, b
	if lo > hi {
		lo, hi = hi, lo
	}
	if lo < 0 {
		lo = 0
	}
	if hi > len(text) {
		hi = len(text)
	}
	if lo > hi {
		return ""
	}
	return text[lo:hi]
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
