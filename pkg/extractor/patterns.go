package extractor

import "regexp"

// EntityType enumerates the five extractable entity categories (spec.md
// §4.6 / §6 "Extractor pattern set").
type EntityType string

const (
	TypePerson  EntityType = "PERSON"
	TypeConcept EntityType = "CONCEPT"
	TypeEvent   EntityType = "EVENT"
	TypeObject  EntityType = "OBJECT"
	TypePlace   EntityType = "PLACE"
)

// pattern pairs a compiled regex with the capture group index holding the
// candidate entity name (0 means the whole match).
type pattern struct {
	re    *regexp.Regexp
	group int
}

// personPatterns recognizes titled names, explicit naming phrases, two-word
// and single-word title-case names, email local parts, and @mentions.
var personPatterns = []pattern{
	{regexp.MustCompile(`\b(?:Mr|Mrs|Ms|Dr|Prof)\.?\s+([A-Z][a-zA-Z]+(?:\s+[A-Z][a-zA-Z]+)*)`), 1},
	{regexp.MustCompile(`\b(?:named|called|user named)\s+([A-Z][a-zA-Z]+(?:\s+[A-Z][a-zA-Z]+)?)`), 1},
	{regexp.MustCompile(`\b([A-Z][a-z]+\s+[A-Z][a-z]+)\b`), 1},
	{regexp.MustCompile(`([a-zA-Z0-9._%+-]+)@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`), 1},
	{regexp.MustCompile(`@([a-zA-Z0-9_]+)`), 1},
	{regexp.MustCompile(`\b([A-Z][a-z]+)\b`), 1},
}

// conceptPatterns recognizes quoted terms, "concept of X" phrases, and a
// fixed technology vocabulary.
var conceptPatterns = []pattern{
	{regexp.MustCompile(`"([^"]{3,60})"`), 1},
	{regexp.MustCompile(`\b(?:concept of|theory of)\s+([a-zA-Z][a-zA-Z\s]{2,40})`), 1},
	{regexp.MustCompile(`\b(database|algorithm|machine learning|artificial intelligence|neural network|data structure|framework|architecture|microservice|pipeline|api|protocol)\b`), 1},
}

// eventPatterns recognizes meeting/conference/workshop phrasing, absolute
// and relative dates, and action verbs.
var eventPatterns = []pattern{
	{regexp.MustCompile(`\b(meeting|conference|workshop|webinar|standup|retrospective)\s+(?:about|on|for)\s+([a-zA-Z][a-zA-Z\s]{2,50})`), 2},
	{regexp.MustCompile(`\b(January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2},?\s+\d{4}\b`), 0},
	{regexp.MustCompile(`\b(yesterday|today|tomorrow|last week|next week|last month|next month)\b`), 0},
	{regexp.MustCompile(`\b(happened|occurred|scheduled|took place|is planned)\b`), 0},
}

// objectPatterns recognizes file extensions, "using/with X" phrasing,
// product-noun compounds, and quoted tool names.
var objectPatterns = []pattern{
	{regexp.MustCompile(`\b([a-zA-Z0-9_-]+\.(?:go|py|js|ts|java|rb|rs|cpp|c|json|yaml|yml|sql|md))\b`), 1},
	{regexp.MustCompile(`\b(?:using|with)\s+([A-Z][a-zA-Z0-9_+#.-]{1,30})`), 1},
	{regexp.MustCompile(`\b([A-Z][a-zA-Z0-9]+)\s+(?:application|app|tool|library|service|platform)\b`), 1},
	{regexp.MustCompile(`'([^']{2,40})'`), 1},
}

// placePatterns recognizes prepositional location phrasing, company
// suffixes, university patterns, and URL domains.
var placePatterns = []pattern{
	{regexp.MustCompile(`\b(?:in|at|from)\s+([A-Z][a-zA-Z]+(?:\s[A-Z][a-zA-Z]+)?),\s*([A-Z][a-zA-Z]+)`), 1},
	{regexp.MustCompile(`\b([A-Z][a-zA-Z]+(?:\s[A-Z][a-zA-Z]+)*\s(?:Inc|LLC|Corp|Ltd|Co)\.?)\b`), 1},
	{regexp.MustCompile(`\b([A-Z][a-zA-Z]+(?:\s[A-Z][a-zA-Z]+)*\sUniversity)\b`), 1},
	{regexp.MustCompile(`https?://([a-zA-Z0-9.-]+)`), 1},
}

// patternTable maps each type to its ordered pattern set, consulted by
// Extract. It is built once and shared read-only across extractions
// (spec.md §9 "Global state").
var patternTable = map[EntityType][]pattern{
	TypePerson:  personPatterns,
	TypeConcept: conceptPatterns,
	TypeEvent:   eventPatterns,
	TypeObject:  objectPatterns,
	TypePlace:   placePatterns,
}

// stopwords excludes common words that would otherwise pass the PERSON
// title-case heuristic as false positives.
var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "but": {}, "for": {}, "with": {}, "this": {}, "that": {},
	"have": {}, "has": {}, "was": {}, "were": {}, "will": {}, "from": {}, "into": {},
}
