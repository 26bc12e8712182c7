package vault

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tuneinsight/healthvault/engine"
	"github.com/tuneinsight/healthvault/schemes/lattice"
	"github.com/tuneinsight/healthvault/schemes/mask"
	"github.com/tuneinsight/healthvault/utils/logging"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

func backends() map[string]func() engine.Backend {
	return map[string]func() engine.Backend{
		mask.Name:    func() engine.Backend { return mask.NewBackend(mask.DefaultMask) },
		lattice.Name: func() engine.Backend { return lattice.NewBackend(lattice.DefaultParametersLiteral) },
	}
}

func newVault(t *testing.T, b engine.Backend, opts ...Option) (*Vault, *engine.Engine) {
	e := engine.New(b, engine.WithLogger(logging.Discard()))
	require.NoError(t, e.Initialize(context.Background()))

	v, err := New(e, testKey, append([]Option{WithLogger(logging.Discard())}, opts...)...)
	require.NoError(t, err)
	return v, e
}

func TestVault(t *testing.T) {
	for name, newBackend := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			clock := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
			v, _ := newVault(t, newBackend(), WithClock(func() time.Time { return clock }))

			scenario := map[MetricID]float64{
				Weight:           72,
				BloodPressureSys: 118,
				Glucose:          95.4,
				HeartRate:        68,
			}

			for metric, value := range scenario {
				r, err := v.Store(ctx, metric, value)
				require.NoError(t, err)
				require.Equal(t, metric, r.Metric)
				require.Equal(t, clock, r.Timestamp)
				require.NotEmpty(t, r.Attestation)
			}
			require.Equal(t, 4, v.Encrypted())

			for metric, value := range scenario {
				x, err := v.Reveal(ctx, metric)
				require.NoError(t, err)
				require.Equal(t, uint32(math.Round(value)), x)
			}

			rs := v.Readings()
			require.Len(t, rs, 4)
			require.Equal(t, []MetricID{Weight, BloodPressureSys, Glucose, HeartRate},
				[]MetricID{rs[0].Metric, rs[1].Metric, rs[2].Metric, rs[3].Metric})

			avg, err := v.AverageValue(ctx)
			require.NoError(t, err)
			require.Equal(t, uint32(88), avg)

			for metric := range scenario {
				status, err := v.Classify(ctx, metric)
				require.NoError(t, err)
				require.Equal(t, Normal, status, string(metric))
			}

			s, err := v.Summary(ctx)
			require.NoError(t, err)
			require.Equal(t, 4, s.Encrypted)
			require.True(t, s.AverageCalculated)
			require.Equal(t, clock, s.LastUpdate)
			require.InDelta(t, 88.25, s.Mean, 1e-9)
			require.InDelta(t, 83.5, s.Median, 1e-9)
			require.InDelta(t, math.Sqrt(401.1875), s.StdDev, 1e-9)
		})
	}
}

func TestClassify(t *testing.T) {
	ctx := context.Background()
	v, _ := newVault(t, mask.NewBackend(mask.DefaultMask))

	for value, want := range map[float64]Status{
		49:  Low,
		50:  Normal,
		90:  Normal,
		91:  High,
		-3:  High, // wraps to the top of the domain
		200: High,
	} {
		_, err := v.Store(ctx, Weight, value)
		require.NoError(t, err)

		got, err := v.Classify(ctx, Weight)
		require.NoError(t, err)
		require.Equal(t, want, got, "weight=%v", value)
	}

	_, err := v.Classify(ctx, HeartRate)
	require.ErrorIs(t, err, ErrNoReading)

	_, err = v.Classify(ctx, "cholesterol")
	require.ErrorIs(t, err, ErrUnknownMetric)
}

func TestAverageNeedsTwoReadings(t *testing.T) {
	ctx := context.Background()

	metrics := engine.NewMetrics(nil)
	e := engine.New(mask.NewBackend(mask.DefaultMask), engine.WithLogger(logging.Discard()), engine.WithMetrics(metrics))
	require.NoError(t, e.Initialize(ctx))

	v, err := New(e, nil, WithLogger(logging.Discard()))
	require.NoError(t, err)

	_, err = v.Average(ctx)
	require.ErrorIs(t, err, engine.ErrInsufficientOperands)

	_, err = v.Store(ctx, Glucose, 95)
	require.NoError(t, err)

	_, err = v.Average(ctx)
	require.ErrorIs(t, err, engine.ErrInsufficientOperands)

	// Rejected before the engine is reached.
	require.Equal(t, 0, operationCount(t, metrics, "Average"))

	s, err := v.Summary(ctx)
	require.NoError(t, err)
	require.False(t, s.AverageCalculated)
	require.Equal(t, 95.0, s.Mean)
}

func TestAttestation(t *testing.T) {
	ctx := context.Background()
	v, _ := newVault(t, mask.NewBackend(mask.DefaultMask))

	weight, err := v.Store(ctx, Weight, 72)
	require.NoError(t, err)
	glucose, err := v.Store(ctx, Glucose, 95)
	require.NoError(t, err)

	// A ciphertext moved to another metric no longer verifies.
	v.mu.Lock()
	v.readings[Glucose] = Reading{ID: glucose.ID, Metric: Glucose, Value: weight.Value, Attestation: glucose.Attestation}
	v.mu.Unlock()

	_, err = v.Reveal(ctx, Glucose)
	require.ErrorIs(t, err, ErrAttestation)

	_, err = v.Summary(ctx)
	require.ErrorIs(t, err, ErrAttestation)

	a, err := NewAttester(testKey)
	require.NoError(t, err)
	require.True(t, a.Verify(Weight, 72, weight.Value, weight.Attestation))
	require.False(t, a.Verify(Weight, 73, weight.Value, weight.Attestation))
	require.False(t, a.Verify(Glucose, 72, weight.Value, weight.Attestation))

	other, err := NewAttester([]byte("fedcba9876543210fedcba9876543210"))
	require.NoError(t, err)
	require.False(t, other.Verify(Weight, 72, weight.Value, weight.Attestation))

	_, err = NewAttester([]byte("short"))
	require.Error(t, err)
}

func TestStoreErrors(t *testing.T) {
	ctx := context.Background()

	_, err := (&Vault{}).Store(ctx, "bmi", 22)
	require.ErrorIs(t, err, ErrUnknownMetric)

	e := engine.New(mask.NewBackend(mask.DefaultMask), engine.WithLogger(logging.Discard()))
	v, err := New(e, testKey, WithLogger(logging.Discard()))
	require.NoError(t, err)

	_, err = v.Store(ctx, Weight, 72)
	require.ErrorIs(t, err, engine.ErrNotInitialized)
	require.Equal(t, 0, v.Encrypted())

	_, err = v.Reveal(ctx, Weight)
	require.ErrorIs(t, err, ErrNoReading)
}

func TestCatalog(t *testing.T) {
	m, err := Lookup(BloodPressureSys)
	require.NoError(t, err)
	require.Equal(t, "mmHg", m.Unit)
	require.Equal(t, Range{Min: 90, Max: 120}, m.NormalRange)
	require.True(t, m.NormalRange.Contains(118))
	require.False(t, m.NormalRange.Contains(121))

	require.Equal(t, "low", Low.String())
	require.Equal(t, "normal", Normal.String())
	require.Equal(t, "high", High.String())
}
