// Package catalog projects the reference work packages, categories and items
// into the option lists offered while building an order.
package catalog

import "github.com/shopspring/decimal"

// WorkPackage is a top-level grouping of categories (e.g. "Electrical").
type WorkPackage struct {
	ID   string
	Name string
}

// Category classifies items within a work package and carries a tax rate.
type Category struct {
	ID          string
	Name        string
	WorkPackage string
	TaxRate     decimal.Decimal
}

// Item is a catalog item. Category holds the owning category ID.
type Item struct {
	ID       string
	Name     string
	Unit     string
	Category string
}

// CategoryOption is a selectable category.
type CategoryOption struct {
	ID      string          `json:"id"`
	Label   string          `json:"label"`
	TaxRate decimal.Decimal `json:"tax_rate"`
}

// ItemOption is a selectable catalog item.
type ItemOption struct {
	ID       string          `json:"id"`
	Label    string          `json:"label"`
	Unit     string          `json:"unit"`
	Category string          `json:"category"`
	TaxRate  decimal.Decimal `json:"tax_rate"`
}

// Index holds read-only reference collections fetched once per session.
type Index struct {
	packages   []WorkPackage
	categories []Category
	items      []Item
	byID       map[string]Category
}

// NewIndex creates an Index over the given reference collections.
func NewIndex(packages []WorkPackage, categories []Category, items []Item) *Index {
	byID := make(map[string]Category, len(categories))
	for _, c := range categories {
		byID[c.ID] = c
	}
	return &Index{
		packages:   packages,
		categories: categories,
		items:      items,
		byID:       byID,
	}
}

// WorkPackages returns every known work package.
func (x *Index) WorkPackages() []WorkPackage {
	out := make([]WorkPackage, len(x.packages))
	copy(out, x.packages)
	return out
}

// Items returns every catalog item.
func (x *Index) Items() []Item {
	out := make([]Item, len(x.items))
	copy(out, x.items)
	return out
}

// Category looks up a category by ID.
func (x *Index) Category(id string) (Category, bool) {
	c, ok := x.byID[id]
	return c, ok
}

// TaxRate returns the tax rate of a category.
func (x *Index) TaxRate(category string) (decimal.Decimal, bool) {
	c, ok := x.byID[category]
	if !ok {
		return decimal.Zero, false
	}
	return c.TaxRate, true
}

// CategoriesForWorkPackage returns the categories belonging to wp.
func (x *Index) CategoriesForWorkPackage(wp string) []CategoryOption {
	out := []CategoryOption{}
	for _, c := range x.categories {
		if c.WorkPackage != wp {
			continue
		}
		out = append(out, CategoryOption{ID: c.ID, Label: c.Name, TaxRate: c.TaxRate})
	}
	return out
}

// ItemsForCategory returns the items of a single category.
func (x *Index) ItemsForCategory(category string) []ItemOption {
	out := []ItemOption{}
	for _, it := range x.items {
		if it.Category != category {
			continue
		}
		out = append(out, x.option(it))
	}
	return out
}

// ItemsForWorkPackage returns the items of every category in wp.
func (x *Index) ItemsForWorkPackage(wp string) []ItemOption {
	out := []ItemOption{}
	for _, it := range x.items {
		c, ok := x.byID[it.Category]
		if !ok || c.WorkPackage != wp {
			continue
		}
		out = append(out, x.option(it))
	}
	return out
}

func (x *Index) option(it Item) ItemOption {
	rate, _ := x.TaxRate(it.Category)
	return ItemOption{
		ID:       it.ID,
		Label:    it.Name,
		Unit:     it.Unit,
		Category: it.Category,
		TaxRate:  rate,
	}
}
