// Package lattice implements an engine backend on the BGV scheme of lattigo.
//
// A reading x is bit-sliced: bit i of x is encoded in plaintext slot i and the
// slot vector is encrypted under a public key generated at setup. Averages are
// computed with homomorphic additions only; the public operand count is stored
// next to the ciphertext and the division, rounded half up, is applied after
// decryption. Comparisons homomorphically subtract the operands and reveal
// only the sign of the decrypted difference.
//
// Derived values (averages) are refreshed, that is decrypted and re-encrypted
// by the key holder, before being used as operands of another average or of a
// comparison.
//
// Keys live in memory for the lifetime of the Scheme: encoded values are not
// decryptable by another process.
package lattice

import (
	"context"
	"fmt"

	"github.com/tuneinsight/lattigo/v5/core/rlwe"
	"github.com/tuneinsight/lattigo/v5/he/heint"
	"github.com/tuneinsight/lattigo/v5/utils/buffer"

	"github.com/tuneinsight/healthvault/engine"
	"github.com/tuneinsight/healthvault/utils"
)

const (
	// Name identifies the backend in configuration and logs.
	Name = "lattice"

	version    uint8 = 1
	headerSize       = 5
)

// Backend is an engine.Backend generating a fresh BGV key pair at setup.
type Backend struct {
	literal heint.ParametersLiteral
}

// NewBackend returns a backend for the given parameters.
func NewBackend(literal heint.ParametersLiteral) *Backend {
	return &Backend{literal: literal}
}

// Name implements engine.Backend.
func (b *Backend) Name() string {
	return Name
}

// Setup implements engine.Backend.
func (b *Backend) Setup(ctx context.Context) (engine.Scheme, error) {

	params, err := heint.NewParametersFromLiteral(b.literal)
	if err != nil {
		return nil, fmt.Errorf("lattice: invalid parameters: %w", err)
	}

	if params.MaxSlots() < Bits {
		return nil, fmt.Errorf("lattice: invalid parameters: %d slots, need at least %d", params.MaxSlots(), Bits)
	}

	if params.PlaintextModulus() < 3 {
		return nil, fmt.Errorf("lattice: invalid parameters: plaintext modulus %d too small", params.PlaintextModulus())
	}

	kgen := heint.NewKeyGenerator(params)
	sk, pk := kgen.GenKeyPairNew()

	return &Scheme{
		params: params,
		ctSize: rlwe.NewCiphertext(params, 1, params.MaxLevel()).BinarySize(),
		ecd:    heint.NewEncoder(params),
		enc:    heint.NewEncryptor(params, pk),
		dec:    heint.NewDecryptor(params, sk),
		eval:   heint.NewEvaluator(params, nil),
	}, nil
}

// Scheme is a ready BGV scheme. The encoder, encryptor, decryptor and
// evaluator are never used directly: each operation works on shallow copies,
// which makes the Scheme safe for concurrent use.
type Scheme struct {
	params heint.Parameters
	ctSize int
	ecd    *heint.Encoder
	enc    *rlwe.Encryptor
	dec    *rlwe.Decryptor
	eval   *heint.Evaluator
}

// Parameters returns the BGV parameters of the scheme.
func (s *Scheme) Parameters() heint.Parameters {
	return s.params
}

// value is a parsed ciphertext: the slots of ct, once decrypted and
// recomposed, sum to divisor times the reading.
type value struct {
	divisor uint32
	ct      *rlwe.Ciphertext
}

// Encrypt implements engine.Scheme.
func (s *Scheme) Encrypt(x uint32) ([]byte, error) {
	ct, err := s.encrypt(x)
	if err != nil {
		return nil, err
	}
	return s.marshal(value{divisor: 1, ct: ct})
}

// Decrypt implements engine.Scheme.
func (s *Scheme) Decrypt(data []byte) (uint32, error) {
	v, err := s.unmarshal(data)
	if err != nil {
		return 0, err
	}
	return s.decrypt(v)
}

// Average implements engine.Scheme.
func (s *Scheme) Average(data [][]byte) ([]byte, error) {

	if len(data) < engine.MinOperands {
		return nil, engine.ErrInsufficientOperands
	}

	if limit := MaxOperands(s.params); len(data) > limit {
		return nil, fmt.Errorf("%w: %d operands, at most %d", engine.ErrOperandLimit, len(data), limit)
	}

	eval := s.eval.ShallowCopy()

	var acc *rlwe.Ciphertext
	for i := range data {

		ct, err := s.fresh(data[i])
		if err != nil {
			return nil, fmt.Errorf("operand %d: %w", i, err)
		}

		if acc == nil {
			acc = ct
			continue
		}

		if err = eval.Add(acc, ct, acc); err != nil {
			return nil, fmt.Errorf("lattice: add: %w", err)
		}
	}

	return s.marshal(value{divisor: uint32(len(data)), ct: acc})
}

// Compare implements engine.Scheme.
func (s *Scheme) Compare(a, b []byte) (int, error) {

	ctA, err := s.fresh(a)
	if err != nil {
		return 0, err
	}

	ctB, err := s.fresh(b)
	if err != nil {
		return 0, err
	}

	diff, err := s.eval.ShallowCopy().SubNew(ctA, ctB)
	if err != nil {
		return 0, fmt.Errorf("lattice: sub: %w", err)
	}

	slots, err := s.decode(diff)
	if err != nil {
		return 0, err
	}

	t := s.params.PlaintextModulus()
	coeffs := make([]int64, Bits)
	for i := range coeffs {
		if c := slots[i]; c > t>>1 {
			coeffs[i] = int64(c) - int64(t)
		} else {
			coeffs[i] = int64(c)
		}
	}

	return utils.Sign(utils.Recompose(coeffs)), nil
}

// fresh parses data and returns a ciphertext of divisor one, refreshing
// derived values.
func (s *Scheme) fresh(data []byte) (*rlwe.Ciphertext, error) {
	v, err := s.unmarshal(data)
	if err != nil {
		return nil, err
	}

	if v.divisor == 1 {
		return v.ct, nil
	}

	x, err := s.decrypt(v)
	if err != nil {
		return nil, err
	}

	return s.encrypt(x)
}

func (s *Scheme) encrypt(x uint32) (*rlwe.Ciphertext, error) {

	slots := make([]uint64, s.params.MaxSlots())
	copy(slots, utils.Bits(uint64(x), Bits))

	pt := heint.NewPlaintext(s.params, s.params.MaxLevel())
	if err := s.ecd.ShallowCopy().Encode(slots, pt); err != nil {
		return nil, fmt.Errorf("lattice: encode: %w", err)
	}

	ct, err := s.enc.ShallowCopy().EncryptNew(pt)
	if err != nil {
		return nil, fmt.Errorf("lattice: encrypt: %w", err)
	}

	return ct, nil
}

func (s *Scheme) decode(ct *rlwe.Ciphertext) ([]uint64, error) {
	slots := make([]uint64, s.params.MaxSlots())
	pt := s.dec.ShallowCopy().DecryptNew(ct)
	if err := s.ecd.ShallowCopy().Decode(pt, slots); err != nil {
		return nil, fmt.Errorf("lattice: decode: %w", err)
	}
	return slots[:Bits], nil
}

func (s *Scheme) decrypt(v value) (uint32, error) {

	slots, err := s.decode(v.ct)
	if err != nil {
		return 0, err
	}

	var sum uint64
	for i := Bits - 1; i >= 0; i-- {
		sum = 2*sum + slots[i]
	}

	return uint32(utils.DivRoundHalfUp(sum, uint64(v.divisor))), nil
}

func (s *Scheme) marshal(v value) ([]byte, error) {

	body, err := v.ct.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("lattice: marshal: %w", err)
	}

	buf := buffer.NewBufferSize(headerSize + len(body))

	if _, err = buffer.WriteUint8(buf, version); err != nil {
		return nil, fmt.Errorf("lattice: marshal: %w", err)
	}

	if _, err = buffer.WriteUint32(buf, v.divisor); err != nil {
		return nil, fmt.Errorf("lattice: marshal: %w", err)
	}

	if _, err = buf.Write(body); err != nil {
		return nil, fmt.Errorf("lattice: marshal: %w", err)
	}

	return buf.Bytes(), nil
}

func (s *Scheme) unmarshal(data []byte) (v value, err error) {

	if len(data) <= headerSize {
		return v, engine.Malformed("ciphertext size %d", len(data))
	}

	buf := buffer.NewBuffer(data)

	var ver uint8
	if _, err = buffer.ReadUint8(buf, &ver); err != nil || ver != version {
		return v, engine.Malformed("unknown version")
	}

	if _, err = buffer.ReadUint32(buf, &v.divisor); err != nil || v.divisor == 0 {
		return v, engine.Malformed("invalid divisor")
	}

	// The lattigo decoder does not bound its reads on truncated input.
	if size := len(data) - headerSize; size != s.ctSize {
		return v, engine.Malformed("ciphertext size %d", size)
	}

	if v.ct, err = s.unmarshalCiphertext(data[headerSize:]); err != nil {
		return v, err
	}

	return v, nil
}

// unmarshalCiphertext parses and structurally checks a ciphertext against the
// scheme parameters. Corrupted inputs can make the lattigo decoder panic on
// inconsistent sizes; those panics are reported as malformed input.
func (s *Scheme) unmarshalCiphertext(data []byte) (ct *rlwe.Ciphertext, err error) {

	defer func() {
		if r := recover(); r != nil {
			ct, err = nil, engine.Malformed("corrupted ciphertext")
		}
	}()

	ct = new(rlwe.Ciphertext)
	if err = ct.UnmarshalBinary(data); err != nil {
		return nil, engine.Malformed("corrupted ciphertext")
	}

	if ct.Degree() != 1 || ct.Level() != s.params.MaxLevel() || !ct.IsBatched {
		return nil, engine.Malformed("unexpected ciphertext shape")
	}

	for i := range ct.Value {
		if ct.Value[i].N() != s.params.N() {
			return nil, engine.Malformed("unexpected ring degree")
		}
	}

	return ct, nil
}
