package vault

import (
	"crypto/subtle"
	"encoding/binary"
	"fmt"

	"github.com/zeebo/blake3"

	"github.com/tuneinsight/healthvault/engine"
)

// AttestationKeySize is the size in bytes of an attestation key.
const AttestationKeySize = 32

// Attester binds a plaintext reading to its encoded value with a keyed
// blake3 MAC. The tag reveals nothing about the reading without the key.
type Attester struct {
	key []byte
}

// NewAttester returns an Attester keyed with key, which must be
// AttestationKeySize bytes long.
func NewAttester(key []byte) (*Attester, error) {
	if len(key) != AttestationKeySize {
		return nil, fmt.Errorf("vault: attestation key must be %d bytes, got %d", AttestationKeySize, len(key))
	}
	return &Attester{key: append([]byte(nil), key...)}, nil
}

// Attest returns the tag of (metric, value, encoded).
func (a *Attester) Attest(metric MetricID, value uint32, encoded engine.EncodedValue) []byte {
	hasher, err := blake3.NewKeyed(a.key)
	if err != nil {
		// The key size is checked by NewAttester.
		panic(err)
	}

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(len(metric)))
	hasher.Write(buf[:])
	hasher.Write([]byte(metric))

	binary.LittleEndian.PutUint32(buf[:4], value)
	hasher.Write(buf[:4])

	hasher.Write([]byte(encoded))

	return hasher.Sum(nil)
}

// Verify reports whether tag is the attestation of (metric, value, encoded).
func (a *Attester) Verify(metric MetricID, value uint32, encoded engine.EncodedValue, tag []byte) bool {
	return subtle.ConstantTimeCompare(a.Attest(metric, value, encoded), tag) == 1
}
