package math

import "golang.org/x/exp/constraints"

// Clamp returns the value `f` clamped to the range [low, high].
// It works for any numeric type (integers and floats).
func Clamp[T constraints.Ordered](f, low, high T) T {
	if f < low {
		return low
	}
	if f > high {
		return high
	}
	return f
}

// IsPowerOfTwo reports whether v is a non-zero power of two.
func IsPowerOfTwo[T constraints.Unsigned](v T) bool {
	return v != 0 && v&(v-1) == 0
}

// AlignDown rounds v down to a multiple of alignment. An alignment of 0 or 1
// leaves v unchanged.
func AlignDown[T constraints.Unsigned](v, alignment T) T {
	if alignment <= 1 {
		return v
	}
	return v - v%alignment
}

// AlignUp rounds v up to a multiple of alignment, saturating at the largest
// multiple representable in T.
func AlignUp[T constraints.Unsigned](v, alignment T) T {
	if alignment <= 1 {
		return v
	}
	rem := v % alignment
	if rem == 0 {
		return v
	}
	up := v + (alignment - rem)
	if up < v {
		return AlignDown(v, alignment)
	}
	return up
}
