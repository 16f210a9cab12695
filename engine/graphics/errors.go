package graphics

import (
	"errors"
	"fmt"
)

var (
	// ErrDescriptorInvalid reports malformed input rejected before any allocation.
	ErrDescriptorInvalid = errors.New("graphics: invalid descriptor")

	// ErrAllocation reports a valid request the backend could not satisfy.
	ErrAllocation = errors.New("graphics: allocation failed")

	// ErrDecode reports raw image bytes that match no supported encoding.
	ErrDecode = errors.New("graphics: unrecognized image data")
)

// invalidf wraps ErrDescriptorInvalid with a formatted reason.
func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDescriptorInvalid, fmt.Sprintf(format, args...))
}

// allocationf wraps ErrAllocation with a formatted reason and the backend's error.
func allocationf(err error, format string, args ...any) error {
	if err == nil {
		return fmt.Errorf("%w: %s", ErrAllocation, fmt.Sprintf(format, args...))
	}
	return fmt.Errorf("%w: %s: %v", ErrAllocation, fmt.Sprintf(format, args...), err)
}

// decodef wraps ErrDecode with a formatted reason.
func decodef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDecode, fmt.Sprintf(format, args...))
}

// precondition panics with a graphics-prefixed message when cond is false.
// Precondition failures are programmer errors and are never recovered.
func precondition(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf("graphics: "+format, args...))
	}
}
