// Package utils implements small generic helpers for the exact integer arithmetic
// performed by the encrypted value schemes.
package utils

import (
	"math"

	"golang.org/x/exp/constraints"
)

// DivRoundHalfUp returns a/b rounded to the nearest integer, ties rounded up.
// b must be non-zero and 2a+b must not overflow T.
func DivRoundHalfUp[T constraints.Unsigned](a, b T) T {
	return (2*a + b) / (2 * b)
}

// Compare returns -1 if a < b, 0 if a == b and 1 if a > b.
func Compare[T constraints.Ordered](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Sign returns the sign of x as -1, 0 or 1.
func Sign[T constraints.Signed](x T) int {
	var zero T
	return Compare(x, zero)
}

// WrapUint32 reduces x modulo 2^32 into the uint32 domain.
// Negative values wrap as in two's complement, e.g. -1 maps to 2^32-1.
func WrapUint32[T constraints.Integer](x T) uint32 {
	return uint32(int64(x))
}

// QuantizeUint32 rounds x to the nearest integer (ties away from zero)
// and wraps the result modulo 2^32. NaN maps to 0 and infinities saturate
// before wrapping.
func QuantizeUint32(x float64) uint32 {
	switch {
	case math.IsNaN(x):
		return 0
	case x >= math.MaxInt64:
		return math.MaxUint32
	case x <= math.MinInt64:
		return 0
	}
	return WrapUint32(int64(math.Round(x)))
}

// Sum returns the sum of the values widened to uint64.
func Sum[T constraints.Unsigned](values []T) (s uint64) {
	for _, v := range values {
		s += uint64(v)
	}
	return
}

// Bits returns the n least significant bits of x, least significant first.
func Bits(x uint64, n int) (b []uint64) {
	b = make([]uint64, n)
	for i := range b {
		b[i] = (x >> i) & 1
	}
	return
}

// Recompose returns sum(coeffs[i] * 2^i). Coefficients may be negative.
func Recompose[T constraints.Signed](coeffs []T) (x int64) {
	for i := len(coeffs) - 1; i >= 0; i-- {
		x = 2*x + int64(coeffs[i])
	}
	return
}
