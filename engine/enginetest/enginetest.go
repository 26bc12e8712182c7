// Package enginetest provides a conformance suite that every engine.Backend
// must pass. Backends run it from their own tests:
//
//	func TestConformance(t *testing.T) {
//		enginetest.Run(t, func() engine.Backend { return mask.NewBackend(mask.DefaultMask) }, enginetest.Options{})
//	}
package enginetest

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"

	"github.com/tuneinsight/healthvault/engine"
	"github.com/tuneinsight/healthvault/utils/logging"
)

// Options tunes the suite for slower backends.
type Options struct {
	// PropertyTests is the number of successful samples required by each
	// property. Defaults to 100.
	PropertyTests int
}

func (o Options) propertyTests() int {
	if o.PropertyTests <= 0 {
		return 100
	}
	return o.PropertyTests
}

// Run executes the conformance suite against engines built on fresh
// backends returned by newBackend.
func Run(t *testing.T, newBackend func() engine.Backend, opts Options) {

	ctx := context.Background()

	newEngine := func(t *testing.T) *engine.Engine {
		return engine.New(newBackend(), engine.WithLogger(logging.Discard()))
	}

	ready := func(t *testing.T) *engine.Engine {
		e := newEngine(t)
		require.NoError(t, e.Initialize(ctx))
		require.Equal(t, engine.StateReady, e.State())
		return e
	}

	t.Run("NotInitialized", func(t *testing.T) {
		e := newEngine(t)
		require.Equal(t, engine.StateUninitialized, e.State())

		v, err := e.Encrypt(ctx, 5)
		require.ErrorIs(t, err, engine.ErrNotInitialized)
		require.Empty(t, v)

		// An encoding produced by another ready engine is still rejected.
		other := ready(t)
		enc, err := other.Encrypt(ctx, 5)
		require.NoError(t, err)

		_, err = e.Decrypt(ctx, enc)
		require.ErrorIs(t, err, engine.ErrNotInitialized)

		avg, err := e.Average(ctx, []engine.EncodedValue{enc, enc})
		require.ErrorIs(t, err, engine.ErrNotInitialized)
		require.Empty(t, avg)

		_, err = e.Compare(ctx, enc, enc)
		require.ErrorIs(t, err, engine.ErrNotInitialized)
	})

	t.Run("Initialize/Idempotent", func(t *testing.T) {
		e := newEngine(t)

		var wg sync.WaitGroup
		errs := make([]error, 8)
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs[i] = e.Initialize(ctx)
			}(i)
		}
		wg.Wait()

		for _, err := range errs {
			require.NoError(t, err)
		}
		require.NoError(t, e.Initialize(ctx))
		require.Equal(t, engine.StateReady, e.State())
	})

	e := ready(t)

	encrypt := func(t *testing.T, x uint32) engine.EncodedValue {
		v, err := e.Encrypt(ctx, x)
		require.NoError(t, err)
		return v
	}

	decrypt := func(t *testing.T, v engine.EncodedValue) uint32 {
		x, err := e.Decrypt(ctx, v)
		require.NoError(t, err)
		return x
	}

	t.Run("RoundTrip", func(t *testing.T) {
		for _, x := range []uint32{0, 1, 72, 0xDEADBEEF, math.MaxUint32 - 1, math.MaxUint32} {
			require.Equal(t, x, decrypt(t, encrypt(t, x)))
		}

		parameters := gopter.DefaultTestParameters()
		parameters.MinSuccessfulTests = opts.propertyTests()
		properties := gopter.NewProperties(parameters)

		properties.Property("decrypt(encrypt(x)) == x", prop.ForAll(
			func(x uint32) bool {
				v, err := e.Encrypt(ctx, x)
				if err != nil {
					return false
				}
				y, err := e.Decrypt(ctx, v)
				return err == nil && x == y
			},
			gen.UInt32(),
		))

		properties.TestingRun(t)
	})

	t.Run("Opacity", func(t *testing.T) {
		for _, x := range []uint32{0, 7, 72, 118, math.MaxUint32} {
			ct, err := encrypt(t, x).Bytes()
			require.NoError(t, err)

			var le [4]byte
			binary.LittleEndian.PutUint32(le[:], x)
			require.NotEqual(t, le[:], ct[:min(4, len(ct))])
		}

		seen := map[engine.EncodedValue]uint32{}
		for x := uint32(60); x < 124; x++ {
			v := encrypt(t, x)
			_, dup := seen[v]
			require.False(t, dup, "two readings share an encoding")
			seen[v] = x
		}
	})

	t.Run("Average", func(t *testing.T) {

		average := func(t *testing.T, xs ...uint32) uint32 {
			vs := make([]engine.EncodedValue, len(xs))
			for i := range xs {
				vs[i] = encrypt(t, xs[i])
			}
			avg, err := e.Average(ctx, vs)
			require.NoError(t, err)
			return decrypt(t, avg)
		}

		require.Equal(t, uint32(15), average(t, 10, 20))
		require.Equal(t, uint32(2), average(t, 1, 2, 3))
		require.Equal(t, uint32(3), average(t, 2, 3), "ties round up")
		require.Equal(t, uint32(1), average(t, 1, 1, 2))
		require.Equal(t, uint32(2), average(t, 1, 2, 2))
		require.Equal(t, uint32(0), average(t, 0, 0))
		require.Equal(t, uint32(math.MaxUint32), average(t, math.MaxUint32, math.MaxUint32))
		require.Equal(t, uint32(math.MaxUint32), average(t, math.MaxUint32, math.MaxUint32-1))
		require.Equal(t, uint32(1<<31), average(t, 0, math.MaxUint32))
	})

	t.Run("Average/DerivedOperand", func(t *testing.T) {
		avg, err := e.Average(ctx, []engine.EncodedValue{encrypt(t, 10), encrypt(t, 20)})
		require.NoError(t, err)

		again, err := e.Average(ctx, []engine.EncodedValue{avg, encrypt(t, 16)})
		require.NoError(t, err)
		require.Equal(t, uint32(16), decrypt(t, again))
	})

	t.Run("Average/InsufficientOperands", func(t *testing.T) {
		v, err := e.Average(ctx, []engine.EncodedValue{encrypt(t, 5)})
		require.ErrorIs(t, err, engine.ErrInsufficientOperands)
		require.Empty(t, v)

		_, err = e.Average(ctx, nil)
		require.ErrorIs(t, err, engine.ErrInsufficientOperands)
	})

	t.Run("Compare", func(t *testing.T) {

		compare := func(t *testing.T, a, b engine.EncodedValue) int {
			c, err := e.Compare(ctx, a, b)
			require.NoError(t, err)
			return c
		}

		require.Equal(t, -1, compare(t, encrypt(t, 5), encrypt(t, 10)))
		require.Equal(t, 1, compare(t, encrypt(t, 10), encrypt(t, 5)))
		require.Equal(t, 0, compare(t, encrypt(t, 7), encrypt(t, 7)))
		require.Equal(t, -1, compare(t, encrypt(t, 0), encrypt(t, math.MaxUint32)))
		require.Equal(t, 1, compare(t, encrypt(t, math.MaxUint32), encrypt(t, 0)))

		avg, err := e.Average(ctx, []engine.EncodedValue{encrypt(t, 10), encrypt(t, 20)})
		require.NoError(t, err)
		require.Equal(t, 0, compare(t, avg, encrypt(t, 15)))
		require.Equal(t, -1, compare(t, avg, encrypt(t, 16)))
		require.Equal(t, 1, compare(t, encrypt(t, 16), avg))

		parameters := gopter.DefaultTestParameters()
		parameters.MinSuccessfulTests = opts.propertyTests()
		properties := gopter.NewProperties(parameters)

		properties.Property("compare is an antisymmetric three-way comparator", prop.ForAll(
			func(x, y uint32) bool {
				a, errA := e.Encrypt(ctx, x)
				b, errB := e.Encrypt(ctx, y)
				if errA != nil || errB != nil {
					return false
				}
				ab, errAB := e.Compare(ctx, a, b)
				ba, errBA := e.Compare(ctx, b, a)
				if errAB != nil || errBA != nil {
					return false
				}

				want := 0
				switch {
				case x < y:
					want = -1
				case x > y:
					want = 1
				}
				return ab == want && ba == -ab
			},
			gen.UInt32(),
			gen.UInt32(),
		))

		properties.TestingRun(t)
	})

	t.Run("MalformedInput", func(t *testing.T) {
		v := encrypt(t, 42)
		s := string(v)

		malformed := map[string]engine.EncodedValue{
			"Empty":         "",
			"NotBase64":     "not base64!",
			"InvalidChar":   engine.EncodedValue(s[:len(s)/2] + "*" + s[len(s)/2+1:]),
			"Truncated":     engine.EncodedValue(s[:len(s)-8]),
			"Short":         engine.NewEncodedValue([]byte{1, 2, 3}),
			"TruncatedHalf": engine.NewEncodedValue(mustBytes(t, v)[:len(mustBytes(t, v))/2]),
			"MissingByte":   engine.NewEncodedValue(mustBytes(t, v)[:len(mustBytes(t, v))-1]),
			"ExtraByte":     engine.NewEncodedValue(append(mustBytes(t, v), 0)),
		}

		for name, m := range malformed {
			t.Run(name, func(t *testing.T) {
				_, err := e.Decrypt(ctx, m)
				require.ErrorIs(t, err, engine.ErrMalformedInput)

				_, err = e.Compare(ctx, m, v)
				require.ErrorIs(t, err, engine.ErrMalformedInput)

				_, err = e.Average(ctx, []engine.EncodedValue{v, m})
				require.ErrorIs(t, err, engine.ErrMalformedInput)
			})
		}
	})

	t.Run("Concurrent", func(t *testing.T) {
		var wg sync.WaitGroup
		errs := make(chan error, 16)
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func(x uint32) {
				defer wg.Done()
				v, err := e.Encrypt(ctx, x)
				if err != nil {
					errs <- err
					return
				}
				y, err := e.Decrypt(ctx, v)
				if err != nil {
					errs <- err
					return
				}
				if y != x {
					errs <- errMismatch
				}
			}(uint32(i * 1000))
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}
	})

	t.Run("EndToEnd", func(t *testing.T) {
		readings := []uint32{72, 118, 95, 68}

		vs := make([]engine.EncodedValue, len(readings))
		for i, x := range readings {
			vs[i] = encrypt(t, x)
		}

		for i, x := range readings {
			require.Equal(t, x, decrypt(t, vs[i]))
		}

		avg, err := e.Average(ctx, vs)
		require.NoError(t, err)
		require.Equal(t, uint32(88), decrypt(t, avg))
	})
}

var errMismatch = errors.New("round trip mismatch")

func mustBytes(t *testing.T, v engine.EncodedValue) []byte {
	b, err := v.Bytes()
	require.NoError(t, err)
	return b
}
