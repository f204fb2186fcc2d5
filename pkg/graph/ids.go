package graph

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"regexp"
	"sort"
	"strings"
)

var nonWordChar = regexp.MustCompile(`[^a-z0-9_]`)
var whitespaceRun = regexp.MustCompile(`\s+`)

// Normalize lowercases name, trims it, collapses internal whitespace runs
// to a single underscore, and strips any character outside [a-z0-9_], per
// spec.md §4.5.
func Normalize(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	n = whitespaceRun.ReplaceAllString(n, "_")
	n = nonWordChar.ReplaceAllString(n, "")
	return n
}

// EntityID deterministically derives an entity id from its identity
// tuple, per spec.md §3: a 128-bit truncation of
// SHA-256(persona_id || normalized_name || type). Calling this twice with
// the same (personaID, name, entityType) always returns the same id,
// regardless of any other property difference.
func EntityID(personaID, name, entityType string) string {
	h := sha256.Sum256([]byte(personaID + "\x00" + Normalize(name) + "\x00" + entityType))
	return hex.EncodeToString(h[:16])
}

// RelationshipID deterministically derives a relationship id from its
// identity tuple (persona, source entity, target entity, type).
func RelationshipID(personaID, sourceEntityID, targetEntityID, relType string) string {
	h := sha256.Sum256([]byte(personaID + "\x00" + sourceEntityID + "\x00" + targetEntityID + "\x00" + relType))
	return hex.EncodeToString(h[:16])
}

// ContentHash computes the MD5 of a canonicalized (sorted-key) JSON
// encoding of props, used as a cheap fingerprint to detect property
// changes on reconciliation. Collisions are not security-relevant
// (spec.md §4.5).
func ContentHash(props map[string]interface{}) string {
	canon := canonicalize(props)
	h := md5.Sum([]byte(canon))
	return hex.EncodeToString(h[:])
}

// canonicalize renders a JSON-like value with map keys sorted, so the
// same logical content always hashes the same way regardless of
// marshaling order.
func canonicalize(v interface{}) string {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var b strings.Builder
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			kb, _ := json.Marshal(k)
			b.Write(kb)
			b.WriteByte(':')
			b.WriteString(canonicalize(val[k]))
		}
		b.WriteByte('}')
		return b.String()
	case []interface{}:
		var b strings.Builder
		b.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(canonicalize(item))
		}
		b.WriteByte(']')
		return b.String()
	default:
		out, _ := json.Marshal(val)
		return string(out)
	}
}
