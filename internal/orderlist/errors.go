package orderlist

import (
	"errors"
	"fmt"
)

// Errors returned by the editor.
var (
	ErrDuplicateItem        = errors.New("duplicate item")
	ErrValidationIncomplete = errors.New("incomplete line item")
	ErrItemNotFound         = errors.New("item not found in order list")
)

// DuplicateItemError reports an add whose ID is already in the list.
type DuplicateItemError struct {
	ID    string
	Label string
}

func (e *DuplicateItemError) Error() string {
	return fmt.Sprintf("item %q is already in the order list", e.Label)
}

func (e *DuplicateItemError) Is(target error) bool {
	return target == ErrDuplicateItem
}

func incomplete(field string) error {
	return fmt.Errorf("%w: %s is required", ErrValidationIncomplete, field)
}
