package mask

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tuneinsight/healthvault/engine"
	"github.com/tuneinsight/healthvault/engine/enginetest"
)

func TestConformance(t *testing.T) {
	t.Run("DefaultMask", func(t *testing.T) {
		enginetest.Run(t, func() engine.Backend { return NewBackend(DefaultMask) }, enginetest.Options{})
	})
	t.Run("Seeded", func(t *testing.T) {
		enginetest.Run(t, func() engine.Backend { return NewBackendFromSeed([]byte("healthvault-test-seed")) }, enginetest.Options{})
	})
}

func newScheme(t *testing.T, b *Backend) *Scheme {
	s, err := b.Setup(context.Background())
	require.NoError(t, err)
	return s.(*Scheme)
}

func TestLayout(t *testing.T) {
	s := newScheme(t, NewBackend(DefaultMask))

	ct, err := s.Encrypt(72)
	require.NoError(t, err)
	require.Len(t, ct, CiphertextSize)

	// 72 ^ 0xDEADBEEF = 0xDEADBEA7, little-endian.
	require.Equal(t, []byte{0xA7, 0xBE, 0xAD, 0xDE}, ct[:4])
	require.Equal(t, make([]byte, CiphertextSize-4), ct[4:])

	// Encoding produced by the web client for weight=72.
	legacy := base64.StdEncoding.EncodeToString(ct)
	require.Equal(t, "p76t3gAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA=", legacy)
}

func TestStableAcrossInstances(t *testing.T) {
	seed := []byte("shared deployment seed")

	a := newScheme(t, NewBackendFromSeed(seed))
	b := newScheme(t, NewBackendFromSeed(seed))
	require.Equal(t, a.mask, b.mask)

	ct, err := a.Encrypt(118)
	require.NoError(t, err)
	x, err := b.Decrypt(ct)
	require.NoError(t, err)
	require.Equal(t, uint32(118), x)

	c := newScheme(t, NewBackendFromSeed([]byte("other seed")))
	require.NotEqual(t, a.mask, c.mask)
}

func TestMalformed(t *testing.T) {
	s := newScheme(t, NewBackend(DefaultMask))

	ct, err := s.Encrypt(95)
	require.NoError(t, err)

	corrupted := append([]byte(nil), ct...)
	corrupted[CiphertextSize-1] = 1
	_, err = s.Decrypt(corrupted)
	require.ErrorIs(t, err, engine.ErrMalformedInput)

	_, err = s.Decrypt(append(ct, 0))
	require.ErrorIs(t, err, engine.ErrMalformedInput)

	_, err = s.Decrypt(ct[:4])
	require.ErrorIs(t, err, engine.ErrMalformedInput)

	_, err = s.Average([][]byte{ct})
	require.ErrorIs(t, err, engine.ErrInsufficientOperands)
}

func TestSeedTooLong(t *testing.T) {
	_, err := NewBackendFromSeed(make([]byte, 65)).Setup(context.Background())
	require.Error(t, err)

	e := engine.New(NewBackendFromSeed(make([]byte, 65)))
	err = e.Initialize(context.Background())
	require.ErrorIs(t, err, engine.ErrInitializationFailed)
	require.Equal(t, engine.StateFailed, e.State())
}
