package common

import "math/bits"

// DivideByMultiple returns value divided by alignment, rounded up.
// It is the number of alignment-sized tiles needed to cover value.
//
// Parameters:
//   - value: the extent to cover, must be >= 0
//   - alignment: the tile size, must be > 0
//
// Returns:
//   - int: ceil(value / alignment)
func DivideByMultiple(value, alignment int) int {
	return (value + alignment - 1) / alignment
}

// AlignUp rounds value up to the next multiple of alignment.
//
// Parameters:
//   - value: the value to align
//   - alignment: the required alignment, must be > 0
//
// Returns:
//   - int: value rounded up to a multiple of alignment
func AlignUp(value, alignment int) int {
	return DivideByMultiple(value, alignment) * alignment
}

// MaxMipLevels returns the length of a full mip chain for a width x height image,
// level 0 included.
func MaxMipLevels(width, height int) int {
	m := max(width, height)
	if m <= 0 {
		return 0
	}
	return bits.Len(uint(m))
}

// MipExtent returns the size of one axis at the given mip level, never below 1.
func MipExtent(size, level int) int {
	return max(1, size>>level)
}
