package octree

import (
	"errors"
	"fmt"
)

var (
	ErrNonCubicBounds       = errors.New("octree: node bounds must be a cube")
	ErrEmptyBounds          = errors.New("octree: node bounds must have a finite, positive size")
	ErrInsufficientCapacity = errors.New("octree: insufficient buffer capacity")
	ErrMalformedBuffer      = errors.New("octree: malformed buffer")
)

// CapacityError is returned by Flatten when the destination buffer cannot
// hold the serialized tree. It unwraps to ErrInsufficientCapacity.
type CapacityError struct {
	Required  int
	Available int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("%s: need %d slots; got %d", ErrInsufficientCapacity, e.Required, e.Available)
}

func (e *CapacityError) Unwrap() error { return ErrInsufficientCapacity }

// MalformedError is returned by Reconstruct when the buffer contents do not
// describe a valid tree. It unwraps to ErrMalformedBuffer.
type MalformedError struct {
	// Slot offset of the node block being decoded.
	Offset int
	Reason string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("%s: node at slot %d: %s", ErrMalformedBuffer, e.Offset, e.Reason)
}

func (e *MalformedError) Unwrap() error { return ErrMalformedBuffer }

func malformed(offset int, format string, args ...interface{}) error {
	return &MalformedError{Offset: offset, Reason: fmt.Sprintf(format, args...)}
}
