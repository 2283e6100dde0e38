package orderlist

import (
	"encoding/json"
	"fmt"

	"github.com/procura/api/internal/enum"
	"github.com/shopspring/decimal"
)

// Source records where a line item's identity comes from.
// It is either a CatalogItem or an AdHocItem.
type Source interface {
	ItemID() string
	Status() string
	isSource()
}

// CatalogItem is an item that already exists in the catalog.
type CatalogItem struct {
	ID string
}

func (c CatalogItem) ItemID() string { return c.ID }
func (c CatalogItem) Status() string { return enum.ItemStatusPending }
func (CatalogItem) isSource()        {}

// AdHocItem is an item typed by the user and requested for the catalog.
// GeneratedID is a fresh UUID assigned when the item was added.
type AdHocItem struct {
	GeneratedID string
}

func (a AdHocItem) ItemID() string { return a.GeneratedID }
func (a AdHocItem) Status() string { return enum.ItemStatusRequest }
func (AdHocItem) isSource()        {}

// LineItem is one requested item within an order list.
type LineItem struct {
	Source   Source
	Label    string
	Unit     string
	Quantity decimal.Decimal
	Category string
	TaxRate  decimal.Decimal
	Comment  string
}

// ID returns the catalog ID or the generated ID of the item.
func (li LineItem) ID() string {
	if li.Source == nil {
		return ""
	}
	return li.Source.ItemID()
}

// Status is enum.ItemStatusPending for catalog items and
// enum.ItemStatusRequest for ad-hoc items.
func (li LineItem) Status() string {
	if li.Source == nil {
		return enum.ItemStatusPending
	}
	return li.Source.Status()
}

// lineItemJSON is the stored shape inside procurement_list.list.
type lineItemJSON struct {
	Name     string      `json:"name"`
	Item     string      `json:"item"`
	Unit     string      `json:"unit"`
	Quantity json.Number `json:"quantity"`
	Category string      `json:"category"`
	Tax      json.Number `json:"tax"`
	Comment  string      `json:"comment,omitempty"`
	Status   string      `json:"status"`
}

func (li LineItem) MarshalJSON() ([]byte, error) {
	return json.Marshal(lineItemJSON{
		Name:     li.ID(),
		Item:     li.Label,
		Unit:     li.Unit,
		Quantity: json.Number(li.Quantity.String()),
		Category: li.Category,
		Tax:      json.Number(li.TaxRate.String()),
		Comment:  li.Comment,
		Status:   li.Status(),
	})
}

func (li *LineItem) UnmarshalJSON(data []byte) error {
	var raw lineItemJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	qty, err := parseNumber(raw.Quantity)
	if err != nil {
		return fmt.Errorf("line item %q: quantity: %w", raw.Name, err)
	}
	tax, err := parseNumber(raw.Tax)
	if err != nil {
		return fmt.Errorf("line item %q: tax: %w", raw.Name, err)
	}

	var src Source = CatalogItem{ID: raw.Name}
	if raw.Status == enum.ItemStatusRequest {
		src = AdHocItem{GeneratedID: raw.Name}
	}
	*li = LineItem{
		Source:   src,
		Label:    raw.Item,
		Unit:     raw.Unit,
		Quantity: qty,
		Category: raw.Category,
		TaxRate:  tax,
		Comment:  raw.Comment,
	}
	return nil
}

func parseNumber(n json.Number) (decimal.Decimal, error) {
	if n == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(string(n))
}

// CategoryEntry is a distinct (category, status) pair of the order list.
type CategoryEntry struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}
