package orderlist

import "github.com/procura/api/internal/enum"

// RecomputeCategories folds the order list into its distinct
// (category, status) pairs, in the order they are first seen.
func RecomputeCategories(items []LineItem) []CategoryEntry {
	out := []CategoryEntry{}
	seen := make(map[CategoryEntry]bool)
	for _, it := range items {
		e := CategoryEntry{Name: it.Category, Status: it.Status()}
		if seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	return out
}

// CategoryGroup is one display section: the items of a category that
// share a status. Requested items form their own section.
type CategoryGroup struct {
	Category  string     `json:"category"`
	Status    string     `json:"status"`
	Requested bool       `json:"requested"`
	Items     []LineItem `json:"items"`
}

// Group arranges items into sections following RecomputeCategories order.
func Group(items []LineItem) []CategoryGroup {
	entries := RecomputeCategories(items)
	groups := make([]CategoryGroup, len(entries))
	pos := make(map[CategoryEntry]int, len(entries))
	for i, e := range entries {
		groups[i] = CategoryGroup{
			Category:  e.Name,
			Status:    e.Status,
			Requested: e.Status == enum.ItemStatusRequest,
			Items:     []LineItem{},
		}
		pos[e] = i
	}
	for _, it := range items {
		i := pos[CategoryEntry{Name: it.Category, Status: it.Status()}]
		groups[i].Items = append(groups[i].Items, it)
	}
	return groups
}
