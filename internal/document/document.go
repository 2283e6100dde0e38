// Package document talks to the external document store that persists
// procurement requests and serves the reference collections.
package document

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("document not found")

// Store creates, updates and reads documents. Payloads are marshalled to
// JSON; the store treats them as opaque.
type Store interface {
	Create(ctx context.Context, doctype string, payload any) (string, error)
	Update(ctx context.Context, doctype, name string, payload any) (string, error)
	Get(ctx context.Context, doctype, name string, out any) error
	Lister
}

// Lister lists every document of a type.
type Lister interface {
	List(ctx context.Context, doctype string) ([]json.RawMessage, error)
}
