package catalog

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/dukex/flowguard/pkg/models"
)

// SearchMode controls how query tokens combine.
type SearchMode string

const (
	SearchModeOR    SearchMode = "OR"    // Any token matches
	SearchModeAND   SearchMode = "AND"   // Every token matches
	SearchModeFuzzy SearchMode = "FUZZY" // Any token matches, tolerating one typo on tokens of 4+ chars
)

const fuzzyMinTokenLength = 4

// Match quality, best first.
const (
	rankExact = iota
	rankPrefix
	rankSubstring
	rankLoose // description-only or typo-tolerant hit
)

// ParseSearchMode parses a mode name case-insensitively. Empty means OR.
func ParseSearchMode(s string) (SearchMode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", string(SearchModeOR):
		return SearchModeOR, nil
	case string(SearchModeAND):
		return SearchModeAND, nil
	case string(SearchModeFuzzy):
		return SearchModeFuzzy, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidSearchMode, s)
	}
}

// NodeSearchOptions configures SearchNodes.
type NodeSearchOptions struct {
	Limit           int
	Mode            SearchMode
	IncludeExamples bool
}

// NodeMatch is a search hit.
type NodeMatch struct {
	Node     *models.NodeDefinition `json:"node"`
	Examples []map[string]any       `json:"examples,omitempty"`
}

// SearchNodes ranks node definitions against the query. An empty query returns the most popular nodes.
func (idx *Index) SearchNodes(query string, opts NodeSearchOptions) ([]NodeMatch, error) {
	mode, err := ParseSearchMode(string(opts.Mode))
	if err != nil {
		return nil, err
	}

	limit := clampLimit(opts.Limit)
	q := normalize(query)

	var hits []*models.NodeDefinition

	if q == "" {
		hits = idx.byPopularity()
	} else {
		scored := make([]scoredHit[*models.NodeDefinition], 0)

		for _, def := range idx.nodes {
			doc := nodeDocument(def)
			if rank, ok := doc.rank(q, mode); ok {
				scored = append(scored, scoredHit[*models.NodeDefinition]{
					item: def, rank: rank, popularity: def.Popularity, id: def.TypeID,
				})
			}
		}

		hits = sortHits(scored)
	}

	if len(hits) > limit {
		hits = hits[:limit]
	}

	out := make([]NodeMatch, 0, len(hits))
	for _, def := range hits {
		match := NodeMatch{Node: def}

		if opts.IncludeExamples && len(def.Examples) > 0 {
			n := min(len(def.Examples), MaxExamples)
			match.Examples = make([]map[string]any, 0, n)

			for _, example := range def.Examples[:n] {
				match.Examples = append(match.Examples, models.CloneMap(example))
			}
		}

		out = append(out, match)
	}

	return out, nil
}

type scoredHit[T any] struct {
	item       T
	rank       int
	popularity int
	id         string
}

func sortHits[T any](hits []scoredHit[T]) []T {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].rank != hits[j].rank {
			return hits[i].rank < hits[j].rank
		}

		if hits[i].popularity != hits[j].popularity {
			return hits[i].popularity > hits[j].popularity
		}

		return hits[i].id < hits[j].id
	})

	out := make([]T, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.item)
	}

	return out
}

// document is the searchable projection of a catalog entry.
type document struct {
	names []string // Lower-cased name forms, matched for exact/prefix/substring
	text  string   // Lower-cased secondary text (description, services...)
	words []string // Words of names and text, for typo tolerance
}

func nodeDocument(def *models.NodeDefinition) document {
	names := []string{
		strings.ToLower(def.DisplayName),
		strings.ToLower(def.TypeID),
		strings.ToLower(shortName(def.TypeID)),
	}
	text := strings.ToLower(strings.Join([]string{def.Description, string(def.Category), def.Package}, " "))

	return newDocument(names, text)
}

func newDocument(names []string, text string) document {
	doc := document{names: names, text: text}
	doc.words = tokenize(strings.Join(append(append([]string{}, names...), text), " "))

	return doc
}

// rank returns the match quality of q against the document.
func (d document) rank(q string, mode SearchMode) (int, bool) {
	for _, name := range d.names {
		if name == q {
			return rankExact, true
		}
	}

	for _, name := range d.names {
		if strings.HasPrefix(name, q) {
			return rankPrefix, true
		}
	}

	tokens := tokenize(q)
	if len(tokens) == 0 {
		return 0, false
	}

	inNames := func(token string) bool {
		for _, name := range d.names {
			if strings.Contains(name, token) {
				return true
			}
		}

		return false
	}

	if combine(tokens, mode, inNames) {
		return rankSubstring, true
	}

	loose := func(token string) bool {
		if inNames(token) || strings.Contains(d.text, token) {
			return true
		}

		if mode != SearchModeFuzzy || len([]rune(token)) < fuzzyMinTokenLength {
			return false
		}

		for _, word := range d.words {
			if withinOneEdit(token, word) {
				return true
			}
		}

		return false
	}

	if combine(tokens, mode, loose) {
		return rankLoose, true
	}

	return 0, false
}

func combine(tokens []string, mode SearchMode, match func(string) bool) bool {
	if mode == SearchModeAND {
		for _, token := range tokens {
			if !match(token) {
				return false
			}
		}

		return true
	}

	for _, token := range tokens {
		if match(token) {
			return true
		}
	}

	return false
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// tokenize splits on anything that is not a letter or digit.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// withinOneEdit reports whether a and b differ by at most one insertion, deletion or substitution.
func withinOneEdit(a, b string) bool {
	ra, rb := []rune(a), []rune(b)
	if len(ra) > len(rb) {
		ra, rb = rb, ra
	}

	if len(rb)-len(ra) > 1 {
		return false
	}

	i, j, edits := 0, 0, 0
	for i < len(ra) && j < len(rb) {
		if ra[i] == rb[j] {
			i++
			j++

			continue
		}

		edits++
		if edits > 1 {
			return false
		}

		if len(ra) == len(rb) {
			i++
		}

		j++
	}

	return edits+(len(rb)-j)+(len(ra)-i) <= 1
}
