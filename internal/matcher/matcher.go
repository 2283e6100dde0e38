package matcher

import (
	"math"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

const (
	// Threshold is the lowest similarity reported as a likely duplicate.
	Threshold = 0.7
	// MaxResults caps the number of ranked matches returned.
	MaxResults = 5
)

// Item is a catalog entry that typed names are compared against.
type Item struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Unit     string `json:"unit"`
	Category string `json:"category"`
}

// RankedMatch is a catalog item that resembles the searched text.
type RankedMatch struct {
	Item            Item    `json:"item"`
	Similarity      float64 `json:"similarity"`
	MatchPercentage int     `json:"match_percentage"`
}

// Matcher scores free text against catalog item names.
type Matcher struct {
	items      []Item
	normalized []string
	itemTokens [][]string
}

// New creates a new Matcher with pre-normalized item names.
func New(items []Item) *Matcher {
	m := &Matcher{
		items:      items,
		normalized: make([]string, len(items)),
		itemTokens: make([][]string, len(items)),
	}
	for i, item := range items {
		n := normalize(item.Name)
		m.normalized[i] = n
		m.itemTokens[i] = tokenize(n)
	}
	return m
}

// Search returns up to MaxResults items whose similarity to text is at
// least Threshold, best first. Blank text yields no matches.
func (m *Matcher) Search(text string) []RankedMatch {
	return m.search(text, func(Item) bool { return true })
}

// SearchCategory is Search restricted to the items of one category.
func (m *Matcher) SearchCategory(text, category string) []RankedMatch {
	return m.search(text, func(it Item) bool { return it.Category == category })
}

type scored struct {
	idx   int
	sim   float64
	whole float64
}

func (m *Matcher) search(text string, keep func(Item) bool) []RankedMatch {
	query := normalize(text)
	if query == "" {
		return []RankedMatch{}
	}
	queryTokens := tokenize(query)

	var candidates []scored
	for i, item := range m.items {
		if !keep(item) {
			continue
		}
		whole := similarity(query, m.normalized[i])
		sim := math.Max(whole, tokenSimilarity(queryTokens, m.itemTokens[i]))
		if sim < Threshold {
			continue
		}
		candidates = append(candidates, scored{idx: i, sim: sim, whole: whole})
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		ca, cb := candidates[a], candidates[b]
		if ca.sim != cb.sim {
			return ca.sim > cb.sim
		}
		if ca.whole != cb.whole {
			return ca.whole > cb.whole
		}
		na, nb := m.normalized[ca.idx], m.normalized[cb.idx]
		if len(na) != len(nb) {
			return len(na) < len(nb)
		}
		return na < nb
	})

	if len(candidates) > MaxResults {
		candidates = candidates[:MaxResults]
	}

	out := make([]RankedMatch, len(candidates))
	for i, c := range candidates {
		out[i] = RankedMatch{
			Item:            m.items[c.idx],
			Similarity:      c.sim,
			MatchPercentage: int(math.Round(c.sim * 100)),
		}
	}
	return out
}

// similarity is 1 minus the edit distance relative to the longer string.
func similarity(a, b string) float64 {
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 1
	}
	d := fuzzy.LevenshteinDistance(a, b)
	return 1 - float64(d)/float64(longest)
}

// tokenSimilarity averages, over the query tokens, the best similarity
// each one reaches against any token of the candidate.
func tokenSimilarity(query, candidate []string) float64 {
	if len(query) == 0 || len(candidate) == 0 {
		return 0
	}
	var total float64
	for _, q := range query {
		best := 0.0
		for _, c := range candidate {
			if s := similarity(q, c); s > best {
				best = s
			}
		}
		total += best
	}
	return total / float64(len(query))
}

// normalize converts a string to lowercase and replaces non-alphanumeric chars with spaces
func normalize(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))

	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(unicode.ToLower(r))
		} else {
			sb.WriteRune(' ')
		}
	}

	return strings.Join(strings.Fields(sb.String()), " ")
}

// tokenize splits a string on whitespace
func tokenize(s string) []string {
	return strings.Fields(s)
}
