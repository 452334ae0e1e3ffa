package orders

import (
	"errors"
	"fmt"
)

// ErrMissingIdentity is returned when identity is mandatory and the event carries none.
var ErrMissingIdentity = errors.New("order id is required")

// DecodeError reports a payload that cannot become a well-formed Order.
// Index is the payload position inside its batch, -1 when unknown.
type DecodeError struct {
	Index int
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("decode order: %v", e.Err)
	}
	return fmt.Sprintf("decode order at index %d: %v", e.Index, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ErrNotFound is returned by projection readers for an unknown order id.
var ErrNotFound = errors.New("order not found")
