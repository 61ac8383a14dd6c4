package box

import (
	"errors"
	"fmt"
)

var (
	// ErrTruncatedHeader is returned when fewer bytes remain than a box header needs
	ErrTruncatedHeader = errors.New("truncated box header")
	// ErrMalformedBox is returned when a declared size disagrees with the header or the buffer
	ErrMalformedBox = errors.New("malformed box")
)

// WalkError records where the walker stopped reading one nesting level.
type WalkError struct {
	Depth      int
	Offset     int64
	FileOffset int64
	// Parent is the type of the container being walked, zero at the top level.
	Parent BoxType
	Err    error
}

func (e *WalkError) Error() string {
	if e.Depth == 0 {
		return fmt.Sprintf("box walk stopped at offset %d: %v", e.FileOffset, e.Err)
	}
	return fmt.Sprintf("box walk inside %q (depth %d) stopped at offset %d: %v",
		e.Parent.String(), e.Depth, e.FileOffset, e.Err)
}

func (e *WalkError) Unwrap() error {
	return e.Err
}
