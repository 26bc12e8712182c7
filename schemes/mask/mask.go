// Package mask implements the reference stand-in backend: every reading is
// XORed with a fixed 32-bit mask and stored little-endian at the head of a
// 32-byte buffer. The layout is byte-compatible with the web client,
// whose default mask is DefaultMask.
//
// This backend offers no confidentiality against anyone who knows the layout.
// Average and Compare decrypt their operands, compute on plaintext and
// re-encrypt; the decrypted values never leave the package.
package mask

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/tuneinsight/healthvault/engine"
	"github.com/tuneinsight/healthvault/utils"
	"github.com/tuneinsight/healthvault/utils/sampling"
)

const (
	// Name identifies the backend in configuration and logs.
	Name = "mask"

	// CiphertextSize is the size in bytes of a ciphertext.
	CiphertextSize = 32

	// DefaultMask is the mask used when neither a mask nor a seed is configured.
	DefaultMask uint32 = 0xDEADBEEF
)

// Backend is an engine.Backend for the XOR mask scheme.
type Backend struct {
	mask uint32
	seed []byte
}

// NewBackend returns a backend using the given mask.
func NewBackend(mask uint32) *Backend {
	return &Backend{mask: mask}
}

// NewBackendFromSeed returns a backend whose mask is the first four bytes of
// the keyed blake2b stream of seed. The seed must be at most 64 bytes.
func NewBackendFromSeed(seed []byte) *Backend {
	return &Backend{seed: append([]byte(nil), seed...)}
}

// Name implements engine.Backend.
func (b *Backend) Name() string {
	return Name
}

// Setup implements engine.Backend. It derives the mask when the backend was
// built from a seed.
func (b *Backend) Setup(ctx context.Context) (engine.Scheme, error) {
	if b.seed == nil {
		return &Scheme{mask: b.mask}, nil
	}

	prng, err := sampling.NewKeyedPRNG(b.seed)
	if err != nil {
		return nil, fmt.Errorf("mask: derive mask: %w", err)
	}

	mask, err := sampling.Uint32(prng)
	if err != nil {
		return nil, fmt.Errorf("mask: derive mask: %w", err)
	}

	return &Scheme{mask: mask}, nil
}

// Scheme is the ready XOR mask scheme. It is immutable and safe for
// concurrent use.
type Scheme struct {
	mask uint32
}

// Encrypt implements engine.Scheme.
func (s *Scheme) Encrypt(x uint32) ([]byte, error) {
	ct := make([]byte, CiphertextSize)
	binary.LittleEndian.PutUint32(ct, x^s.mask)
	return ct, nil
}

// Decrypt implements engine.Scheme.
func (s *Scheme) Decrypt(ct []byte) (uint32, error) {
	if len(ct) != CiphertextSize {
		return 0, engine.Malformed("ciphertext size %d, expected %d", len(ct), CiphertextSize)
	}
	for _, b := range ct[4:] {
		if b != 0 {
			return 0, engine.Malformed("non-zero padding")
		}
	}
	return binary.LittleEndian.Uint32(ct) ^ s.mask, nil
}

// Average implements engine.Scheme.
func (s *Scheme) Average(cts [][]byte) ([]byte, error) {
	if len(cts) < engine.MinOperands {
		return nil, engine.ErrInsufficientOperands
	}

	xs := make([]uint32, len(cts))
	for i := range cts {
		x, err := s.Decrypt(cts[i])
		if err != nil {
			return nil, fmt.Errorf("operand %d: %w", i, err)
		}
		xs[i] = x
	}

	return s.Encrypt(uint32(utils.DivRoundHalfUp(utils.Sum(xs), uint64(len(cts)))))
}

// Compare implements engine.Scheme.
func (s *Scheme) Compare(a, b []byte) (int, error) {
	x, err := s.Decrypt(a)
	if err != nil {
		return 0, err
	}
	y, err := s.Decrypt(b)
	if err != nil {
		return 0, err
	}
	return utils.Compare(x, y), nil
}
