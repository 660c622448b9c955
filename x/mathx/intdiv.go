package mathx

import (
	"math/bits"

	"golang.org/x/exp/constraints"
)

// MulDiv returns floor(a*b/d) with a 64-bit intermediate.
// d == 0 yields 0. The product of two 32-bit operands never overflows.
func MulDiv[T ~uint8 | ~uint16 | ~uint32](a, b, d T) uint64 {
	if d == 0 {
		return 0
	}
	return uint64(a) * uint64(b) / uint64(d)
}

// MulOverflows reports whether a*b does not fit in T.
func MulOverflows[T constraints.Unsigned](a, b T) bool {
	if a == 0 || b == 0 {
		return false
	}
	p := a * b
	return p/b != a
}

// MulU64 returns a*b, saturating at MaxUint64.
func MulU64(a, b uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return ^uint64(0)
	}
	return lo
}
