package lodgo

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned when an operation is invoked on a closed
	// provider.
	ErrClosed = errors.New("lodgo: provider is closed")
)

// ErrDetailOutOfRange indicates a requested section detail outside the
// provider's tracked range.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrDetailOutOfRange struct {
	Detail uint8
	Min    uint8
	Max    uint8
	cause  error
}

func (e *ErrDetailOutOfRange) Error() string {
	return fmt.Sprintf("detail %d outside tracked range [%d, %d]", e.Detail, e.Min, e.Max)
}

func (e *ErrDetailOutOfRange) Unwrap() error { return e.cause }
