package matcher

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "mixed case",
			input:    "Copper Wire FR",
			expected: "copper wire fr",
		},
		{
			name:     "multiple spaces",
			input:    "PVC   Pipe",
			expected: "pvc pipe",
		},
		{
			name:     "punctuation separators",
			input:    "pipe,elbow-90°",
			expected: "pipe elbow 90",
		},
		{
			name:     "only symbols",
			input:    "  -- ! ",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, normalize(tt.input))
		})
	}
}

func TestSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, similarity("cement", "cement"), 1e-9)
	assert.InDelta(t, 1.0, similarity("", ""), 1e-9)
	assert.InDelta(t, 0.0, similarity("abc", ""), 1e-9)
	// one substitution over six runes
	assert.InDelta(t, 5.0/6.0, similarity("cement", "cemant"), 1e-9)
}

func catalogItems() []Item {
	return []Item{
		{ID: "ITEM-1", Name: "Copper Wire 2.5 sqmm", Unit: "COIL", Category: "Wiring"},
		{ID: "ITEM-2", Name: "Copper Wire 4 sqmm", Unit: "COIL", Category: "Wiring"},
		{ID: "ITEM-3", Name: "LED Panel Light", Unit: "NOS", Category: "Lighting"},
		{ID: "ITEM-4", Name: "PVC Conduit Pipe", Unit: "LENGTH", Category: "Wiring"},
		{ID: "ITEM-5", Name: "Cement OPC 53 Grade", Unit: "BAGS", Category: "Civil"},
	}
}

func TestSearch_ExactNameRanksFirst(t *testing.T) {
	m := New(catalogItems())

	res := m.Search("LED Panel Light")
	require.NotEmpty(t, res)
	assert.Equal(t, "ITEM-3", res[0].Item.ID)
	assert.Equal(t, 100, res[0].MatchPercentage)
}

func TestSearch_CaseAndPunctuationInsensitive(t *testing.T) {
	m := New(catalogItems())

	res := m.Search("copper-wire 2.5 SQMM")
	require.NotEmpty(t, res)
	assert.Equal(t, "ITEM-1", res[0].Item.ID)
	assert.Equal(t, 100, res[0].MatchPercentage)
}

func TestSearch_Typo(t *testing.T) {
	m := New(catalogItems())

	res := m.Search("cemant")
	require.Len(t, res, 1)
	assert.Equal(t, "ITEM-5", res[0].Item.ID)
	assert.Equal(t, 83, res[0].MatchPercentage)
}

func TestSearch_BlankReturnsEmpty(t *testing.T) {
	m := New(catalogItems())

	for _, q := range []string{"", "   ", "\t\n"} {
		res := m.Search(q)
		assert.NotNil(t, res)
		assert.Empty(t, res, "query %q", q)
	}
}

func TestSearch_NoMatch(t *testing.T) {
	m := New(catalogItems())
	assert.Empty(t, m.Search("xylophone"))
}

func TestSearch_SortedAndCapped(t *testing.T) {
	var items []Item
	for i := 0; i < 8; i++ {
		items = append(items, Item{ID: fmt.Sprintf("ITEM-%d", i), Name: fmt.Sprintf("Anchor Bolt M%d", 10+i)})
	}
	items = append(items, Item{ID: "EXACT", Name: "Anchor Bolt"})
	m := New(items)

	res := m.Search("anchor bolt")
	require.Len(t, res, MaxResults)
	assert.Equal(t, "EXACT", res[0].Item.ID)
	for i := 1; i < len(res); i++ {
		assert.GreaterOrEqual(t, res[i-1].Similarity, res[i].Similarity)
	}
	for _, r := range res {
		assert.GreaterOrEqual(t, r.Similarity, Threshold)
	}
}

func TestSearchCategory(t *testing.T) {
	m := New(catalogItems())

	res := m.SearchCategory("copper wire", "Lighting")
	assert.Empty(t, res)

	res = m.SearchCategory("copper wire", "Wiring")
	require.Len(t, res, 2)
	assert.Equal(t, "ITEM-2", res[0].Item.ID)
}
