package lattice

import (
	"github.com/tuneinsight/lattigo/v5/he/heint"
)

// Bits is the number of plaintext slots used per reading, one per bit of the
// uint32 domain.
const Bits = 32

// DefaultParametersLiteral is a depth-zero BGV parameter set: additions and
// subtractions only. The plaintext modulus 65537 = 2^16+1 bounds the number
// of operands of an average to 65536.
var DefaultParametersLiteral = heint.ParametersLiteral{
	LogN:             12,
	LogQ:             []int{56},
	LogP:             []int{55},
	PlaintextModulus: 0x10001,
}

// MaxOperands returns the largest number of operands an average may have
// under params: every bit slot of the sum must stay below the plaintext modulus.
func MaxOperands(params heint.Parameters) int {
	return int(params.PlaintextModulus() - 1)
}
