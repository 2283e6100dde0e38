// Package reference loads the reference collections a session works
// against: work packages, categories, items and users.
package reference

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/procura/api/internal/catalog"
	"github.com/procura/api/internal/document"
	"github.com/procura/api/internal/enum"
	"github.com/procura/api/internal/matcher"
	"github.com/shopspring/decimal"
)

// Data is the reference data fetched when a session is opened.
type Data struct {
	Index *catalog.Index
	// Users maps user ID to full name.
	Users map[string]string
}

// UserName returns the full name of a user, falling back to the ID.
func (d *Data) UserName(id string) string {
	if name, ok := d.Users[id]; ok && name != "" {
		return name
	}
	return id
}

// MatcherItems returns the catalog items in the shape the matcher expects.
func (d *Data) MatcherItems() []matcher.Item {
	items := d.Index.Items()
	out := make([]matcher.Item, 0, len(items))
	for _, it := range items {
		out = append(out, matcher.Item{ID: it.ID, Name: it.Name, Unit: it.Unit, Category: it.Category})
	}
	return out
}

type workPackageDoc struct {
	Name            string `json:"name"`
	WorkPackageName string `json:"work_package_name"`
}

type categoryDoc struct {
	Name         string          `json:"name"`
	CategoryName string          `json:"category_name"`
	WorkPackage  string          `json:"work_package"`
	Tax          decimal.Decimal `json:"tax"`
}

type itemDoc struct {
	Name     string `json:"name"`
	ItemName string `json:"item_name"`
	UnitName string `json:"unit_name"`
	Category string `json:"category"`
}

type userDoc struct {
	Name     string `json:"name"`
	FullName string `json:"full_name"`
}

// Load fetches the reference collections from src.
func Load(ctx context.Context, src document.Lister) (*Data, error) {
	packages, err := listAs[workPackageDoc](ctx, src, enum.DocTypeWorkPackages)
	if err != nil {
		return nil, err
	}
	categories, err := listAs[categoryDoc](ctx, src, enum.DocTypeCategory)
	if err != nil {
		return nil, err
	}
	items, err := listAs[itemDoc](ctx, src, enum.DocTypeItems)
	if err != nil {
		return nil, err
	}
	users, err := listAs[userDoc](ctx, src, enum.DocTypeUsers)
	if err != nil {
		return nil, err
	}

	wps := make([]catalog.WorkPackage, 0, len(packages))
	for _, p := range packages {
		wps = append(wps, catalog.WorkPackage{ID: p.Name, Name: orDefault(p.WorkPackageName, p.Name)})
	}
	cats := make([]catalog.Category, 0, len(categories))
	for _, c := range categories {
		cats = append(cats, catalog.Category{
			ID:          c.Name,
			Name:        orDefault(c.CategoryName, c.Name),
			WorkPackage: c.WorkPackage,
			TaxRate:     c.Tax,
		})
	}
	its := make([]catalog.Item, 0, len(items))
	for _, it := range items {
		its = append(its, catalog.Item{
			ID:       it.Name,
			Name:     orDefault(it.ItemName, it.Name),
			Unit:     it.UnitName,
			Category: it.Category,
		})
	}
	directory := make(map[string]string, len(users))
	for _, u := range users {
		directory[u.Name] = u.FullName
	}

	return &Data{
		Index: catalog.NewIndex(wps, cats, its),
		Users: directory,
	}, nil
}

func listAs[T any](ctx context.Context, src document.Lister, doctype string) ([]T, error) {
	raw, err := src.List(ctx, doctype)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", doctype, err)
	}
	out := make([]T, 0, len(raw))
	for i, r := range raw {
		var v T
		if err := json.Unmarshal(r, &v); err != nil {
			return nil, fmt.Errorf("decode %s[%d]: %w", doctype, i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
