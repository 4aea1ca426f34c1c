package listing

import (
	"errors"
	"fmt"
)

var (
	ErrClosed          = errors.New("list controller is closed")
	ErrInvalidPageSize = errors.New("invalid page size")
	ErrInvalidSortKey  = errors.New("invalid sort key")
	ErrEmptyPatch      = errors.New("patch has no fields")
)

// MutationError is returned when the backend rejected a delete or an update.
// Message is ready to be shown to the user.
type MutationError struct {
	Op      string
	ID      string
	Message string
	Err     error
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Op, e.ID, e.Message)
}

func (e *MutationError) Unwrap() error {
	return e.Err
}
