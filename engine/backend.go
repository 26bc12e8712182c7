package engine

import "context"

// MinOperands is the smallest number of encoded values accepted by Average.
const MinOperands = 2

// Backend is a cryptographic scheme that can be set up once per engine.
// Setup performs key generation or any other expensive preparation and
// returns the immutable Scheme used by all subsequent operations.
type Backend interface {
	Name() string
	Setup(ctx context.Context) (Scheme, error)
}

// Scheme is the capability set of a ready backend. Implementations must be safe
// for concurrent use and must satisfy, for every x in the uint32 domain:
//
//	Decrypt(Encrypt(x)) == x
//	Decrypt(Average([Encrypt(x_0), ..., Encrypt(x_n-1)])) == (2*sum(x_i) + n) / (2n)
//	Compare(Encrypt(a), Encrypt(b)) == sign(a - b)
//
// Ciphertexts that cannot be parsed are reported with an error wrapping
// ErrMalformedInput. Average receives at least MinOperands ciphertexts.
type Scheme interface {
	Encrypt(x uint32) ([]byte, error)
	Decrypt(ct []byte) (uint32, error)
	Average(cts [][]byte) ([]byte, error)
	Compare(a, b []byte) (int, error)
}
