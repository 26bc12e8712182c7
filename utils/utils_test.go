package utils

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDivRoundHalfUp(t *testing.T) {
	require.Equal(t, uint64(15), DivRoundHalfUp[uint64](30, 2))
	require.Equal(t, uint64(2), DivRoundHalfUp[uint64](6, 3))
	require.Equal(t, uint64(3), DivRoundHalfUp[uint64](5, 2), "ties round up")
	require.Equal(t, uint64(1), DivRoundHalfUp[uint64](4, 3))
	require.Equal(t, uint64(2), DivRoundHalfUp[uint64](5, 3))
	require.Equal(t, uint64(88), DivRoundHalfUp[uint64](72+118+95+68, 4))
	require.Equal(t, uint64(0), DivRoundHalfUp[uint64](0, 7))
}

func TestCompare(t *testing.T) {
	require.Equal(t, -1, Compare(5, 10))
	require.Equal(t, 1, Compare(10, 5))
	require.Equal(t, 0, Compare(7, 7))
	require.Equal(t, -1, Sign(int64(-3)))
	require.Equal(t, 0, Sign(0))
	require.Equal(t, 1, Sign(int8(4)))
}

func TestWrapUint32(t *testing.T) {
	require.Equal(t, uint32(math.MaxUint32), WrapUint32(-1))
	require.Equal(t, uint32(0), WrapUint32(int64(1)<<32))
	require.Equal(t, uint32(5), WrapUint32(uint64(1)<<32+5))
	require.Equal(t, uint32(72), QuantizeUint32(72.4))
	require.Equal(t, uint32(73), QuantizeUint32(72.5))
	require.Equal(t, uint32(math.MaxUint32), QuantizeUint32(-1))
	require.Equal(t, uint32(0), QuantizeUint32(math.NaN()))
}

func TestBitsRecompose(t *testing.T) {
	x := uint64(0xDEADBEEF)
	b := Bits(x, 32)
	require.Len(t, b, 32)

	signed := make([]int64, len(b))
	for i := range b {
		signed[i] = int64(b[i])
	}
	require.Equal(t, int64(x), Recompose(signed))

	require.Equal(t, int64(-3), Recompose([]int64{-1, -1, 0}))
	require.Equal(t, uint64(6), Sum([]uint32{1, 2, 3}))
}
