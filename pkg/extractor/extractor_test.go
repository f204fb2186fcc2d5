package extractor_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/oceanlab/personamem/pkg/extractor"
)

func TestExtractFindsPersonAndPlace(t *testing.T) {
	entities := extractor.Extract("Alice Johnson works at Acme Corp on machine learning.")

	var hasPerson, hasPlace bool
	for _, e := range entities {
		if e.Type == extractor.TypePerson && e.Name == "Alice Johnson" {
			hasPerson = true
		}
		if e.Type == extractor.TypePlace {
			hasPlace = true
		}
	}
	assert.True(t, hasPerson, "expected a PERSON entity for Alice Johnson, got %+v", entities)
	assert.True(t, hasPlace, "expected a PLACE entity for Acme Corp, got %+v", entities)
}

func TestExtractIsIdempotent(t *testing.T) {
	text := "Dr. Smith discussed the theory of relativity at Stanford University yesterday."
	first := extractor.Extract(text)
	second := extractor.Extract(text)
	assert.Equal(t, first, second)
}

func TestExtractRespectsEntityCap(t *testing.T) {
	text := ""
	for i := 0; i < 40; i++ {
		text += "\"Term" + string(rune('A'+i%26)) + "\" is relevant. "
	}
	entities := extractor.Extract(text)
	assert.LessOrEqual(t, len(entities), 20)
}

func TestExtractRejectsDigitsOnlyAndShortNames(t *testing.T) {
	entities := extractor.Extract("12345 and X are not valid entities.")
	for _, e := range entities {
		assert.NotEqual(t, "12345", e.Name)
		assert.NotEqual(t, "X", e.Name)
	}
}

func TestInferRelationshipsWithinProximity(t *testing.T) {
	text := "Alice Johnson works with the database system."
	entities := extractor.Extract(text)
	rels := extractor.InferRelationships(text, entities)
	assert.NotEmpty(t, rels)
	for _, r := range rels {
		assert.GreaterOrEqual(t, r.Strength, 0.1)
		assert.LessOrEqual(t, r.Strength, 1.0)
	}
}
