// Package orderlist owns the editable procurement order: its line items,
// the undo stack of deleted items and the derived category entries.
package orderlist

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TaxRates resolves the tax rate of a category.
// Satisfied by *catalog.Index.
type TaxRates interface {
	TaxRate(category string) (decimal.Decimal, bool)
}

// PendingItem is the selection being configured before it is added.
// An empty CatalogID means the user typed a new item name.
type PendingItem struct {
	Category  string
	CatalogID string
	Name      string
	Unit      string
	Quantity  decimal.Decimal
	Comment   string
}

// Patch holds field overrides for EditItem. Nil fields are left alone.
type Patch struct {
	Comment  *string
	Quantity *decimal.Decimal
	Unit     *string
	Label    *string
	Category *string
}

// Editor is the state machine of one editing session. It is not safe for
// concurrent use; callers serialize access.
type Editor struct {
	rates      TaxRates
	newID      func() string
	items      []LineItem
	undo       []LineItem
	categories []CategoryEntry
	pending    *PendingItem
	editing    *LineItem
}

// Option configures an Editor.
type Option func(*Editor)

// WithIDGenerator overrides how ad-hoc item IDs are generated.
func WithIDGenerator(fn func() string) Option {
	return func(e *Editor) { e.newID = fn }
}

// NewEditor creates an empty Editor.
func NewEditor(rates TaxRates, opts ...Option) *Editor {
	e := &Editor{
		rates:      rates,
		newID:      uuid.NewString,
		categories: []CategoryEntry{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Restore replaces the order list with items loaded from a stored request.
// The undo stack is cleared. Items repeating an earlier id are dropped and
// returned.
func (e *Editor) Restore(items []LineItem) []LineItem {
	var dropped []LineItem
	e.items = make([]LineItem, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		if _, dup := seen[it.ID()]; dup {
			dropped = append(dropped, it)
			continue
		}
		seen[it.ID()] = struct{}{}
		e.items = append(e.items, it)
	}
	e.undo = nil
	e.pending = nil
	e.editing = nil
	e.recompute()
	return dropped
}

// Items returns a copy of the order list.
func (e *Editor) Items() []LineItem {
	return append([]LineItem{}, e.items...)
}

// UndoStack returns a copy of the undo stack, most recent last.
func (e *Editor) UndoStack() []LineItem {
	return append([]LineItem{}, e.undo...)
}

// Categories returns the category entries derived from the order list.
func (e *Editor) Categories() []CategoryEntry {
	return append([]CategoryEntry{}, e.categories...)
}

// Len returns the number of line items.
func (e *Editor) Len() int { return len(e.items) }

// Stage sets the pending item.
func (e *Editor) Stage(p PendingItem) {
	e.pending = &p
}

// Pending returns the staged item, if any.
func (e *Editor) Pending() (PendingItem, bool) {
	if e.pending == nil {
		return PendingItem{}, false
	}
	return *e.pending, true
}

// AddPending adds the staged item. The staged item is cleared whatever
// the outcome, duplicates included.
func (e *Editor) AddPending() (LineItem, error) {
	if e.pending == nil {
		return LineItem{}, incomplete("item")
	}
	p := *e.pending
	e.pending = nil
	return e.AddItem(p)
}

// AddItem appends a line item built from p.
// A duplicate ID leaves the list untouched and returns *DuplicateItemError.
func (e *Editor) AddItem(p PendingItem) (LineItem, error) {
	if err := validatePending(p); err != nil {
		return LineItem{}, err
	}

	var src Source
	if p.CatalogID != "" {
		src = CatalogItem{ID: p.CatalogID}
	} else {
		src = AdHocItem{GeneratedID: e.newID()}
	}

	item := LineItem{
		Source:   src,
		Label:    strings.TrimSpace(p.Name),
		Unit:     p.Unit,
		Quantity: p.Quantity,
		Category: p.Category,
		TaxRate:  e.taxRate(p.Category),
		Comment:  p.Comment,
	}

	if e.indexOf(item.ID()) >= 0 {
		return LineItem{}, &DuplicateItemError{ID: item.ID(), Label: item.Label}
	}

	e.items = append(e.items, item)
	// A re-add supersedes a pending undo of the same item.
	if i := indexIn(e.undo, item.ID()); i >= 0 {
		e.undo = append(e.undo[:i], e.undo[i+1:]...)
	}
	e.recompute()
	return item, nil
}

// BeginEdit stores a copy of the item as the editing item.
func (e *Editor) BeginEdit(id string) (LineItem, bool) {
	i := e.indexOf(id)
	if i < 0 {
		return LineItem{}, false
	}
	cp := e.items[i]
	e.editing = &cp
	return cp, true
}

// Editing returns the item under edit, if any.
func (e *Editor) Editing() (LineItem, bool) {
	if e.editing == nil {
		return LineItem{}, false
	}
	return *e.editing, true
}

// CancelEdit drops the editing copy.
func (e *Editor) CancelEdit() {
	e.editing = nil
}

// EditItem applies p to the item with the given ID. It reports whether
// anything changed; a patch equal to the current values is a no-op.
func (e *Editor) EditItem(id string, p Patch) (LineItem, bool, error) {
	i := e.indexOf(id)
	if i < 0 {
		return LineItem{}, false, ErrItemNotFound
	}
	if err := validatePatch(p); err != nil {
		return LineItem{}, false, err
	}

	cur := e.items[i]
	next := cur
	if p.Comment != nil {
		next.Comment = *p.Comment
	}
	if p.Quantity != nil {
		next.Quantity = *p.Quantity
	}
	if p.Unit != nil {
		next.Unit = *p.Unit
	}
	if p.Label != nil {
		next.Label = strings.TrimSpace(*p.Label)
	}
	if p.Category != nil {
		next.Category = *p.Category
	}

	if sameFields(cur, next) {
		return cur, false, nil
	}
	if next.Category != cur.Category {
		next.TaxRate = e.taxRate(next.Category)
	}

	e.items[i] = next
	if e.editing != nil && e.editing.ID() == id {
		e.editing = nil
	}
	e.recompute()
	return next, true, nil
}

// DeleteItem removes the item and pushes a copy onto the undo stack.
// Unknown IDs are ignored.
func (e *Editor) DeleteItem(id string) (LineItem, bool) {
	i := e.indexOf(id)
	if i < 0 {
		return LineItem{}, false
	}
	item := e.items[i]
	e.items = append(e.items[:i], e.items[i+1:]...)
	e.undo = append(e.undo, item)
	if e.editing != nil && e.editing.ID() == id {
		e.editing = nil
	}
	e.recompute()
	return item, true
}

// Undo restores the most recently deleted item at the end of the list.
// It does nothing when the undo stack is empty.
func (e *Editor) Undo() (LineItem, bool) {
	if len(e.undo) == 0 {
		return LineItem{}, false
	}
	last := len(e.undo) - 1
	item := e.undo[last]
	e.undo = e.undo[:last]
	e.items = append(e.items, item)
	e.recompute()
	return item, true
}

// Groups returns the display sections of the current order list.
func (e *Editor) Groups() []CategoryGroup {
	return Group(e.items)
}

func (e *Editor) recompute() {
	e.categories = RecomputeCategories(e.items)
}

func (e *Editor) taxRate(category string) decimal.Decimal {
	if e.rates == nil {
		return decimal.Zero
	}
	rate, ok := e.rates.TaxRate(category)
	if !ok {
		return decimal.Zero
	}
	return rate
}

func (e *Editor) indexOf(id string) int {
	return indexIn(e.items, id)
}

func indexIn(items []LineItem, id string) int {
	for i, it := range items {
		if it.ID() == id {
			return i
		}
	}
	return -1
}

func validatePending(p PendingItem) error {
	switch {
	case !p.Quantity.IsPositive():
		return incomplete("quantity")
	case p.Unit == "":
		return incomplete("unit")
	case p.Category == "":
		return incomplete("category")
	case strings.TrimSpace(p.Name) == "":
		return incomplete("item")
	}
	return nil
}

func validatePatch(p Patch) error {
	switch {
	case p.Quantity != nil && !p.Quantity.IsPositive():
		return incomplete("quantity")
	case p.Unit != nil && *p.Unit == "":
		return incomplete("unit")
	case p.Category != nil && *p.Category == "":
		return incomplete("category")
	case p.Label != nil && strings.TrimSpace(*p.Label) == "":
		return incomplete("item")
	}
	return nil
}

func sameFields(a, b LineItem) bool {
	return a.Comment == b.Comment &&
		a.Quantity.Equal(b.Quantity) &&
		a.Unit == b.Unit &&
		a.Label == b.Label &&
		a.Category == b.Category
}
