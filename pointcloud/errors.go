package pointcloud

import (
	"errors"
	"fmt"
)

// ErrInvalidPoint is returned when a point has a non-finite position or a
// normal that is not unit length.
var ErrInvalidPoint = errors.New("invalid point")

// InvalidPointError describes which point was rejected and why.
type InvalidPointError struct {
	Index  int
	Reason string
}

func (e *InvalidPointError) Error() string {
	return fmt.Sprintf("invalid point %d: %s", e.Index, e.Reason)
}

// Unwrap returns ErrInvalidPoint so callers can use errors.Is.
func (e *InvalidPointError) Unwrap() error { return ErrInvalidPoint }
