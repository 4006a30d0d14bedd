package mathhelp

import "golang.org/x/exp/constraints"

func Pow2[T constraints.Integer](n T) T {
	return 1 << n
}

// CeilDiv divides rounding up, for non-negative a and positive b.
func CeilDiv[T constraints.Integer](a, b T) T {
	return (a + b - 1) / b
}

func Clamp[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
