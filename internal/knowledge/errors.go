package knowledge

import (
	"errors"
	"fmt"
)

// ErrEntryNotFound is returned when no entry exists for the given ID
var ErrEntryNotFound = errors.New("knowledge entry not found")

// StoreError wraps a vector store failure. It is surfaced to callers
// rather than masked, so a store outage is never mistaken for "no local
// match".
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsStoreError reports whether err originated in the vector store
func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}
