// Package vault keeps the latest encrypted reading of each health metric and
// computes on them through an engine.Engine. Readings are quantized to the
// engine's uint32 domain before encryption; plaintext is only materialized by
// an explicit Reveal or Summary.
package vault

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/montanaflynn/stats"

	"github.com/tuneinsight/healthvault/engine"
	"github.com/tuneinsight/healthvault/utils"
	"github.com/tuneinsight/healthvault/utils/logging"
	"github.com/tuneinsight/healthvault/utils/sampling"
)

var (
	// ErrUnknownMetric is returned for metric ids absent from the Catalog.
	ErrUnknownMetric = errors.New("vault: unknown metric")

	// ErrNoReading is returned when a metric has no stored reading.
	ErrNoReading = errors.New("vault: no reading")

	// ErrAttestation is returned when a revealed reading does not match its attestation.
	ErrAttestation = errors.New("vault: attestation mismatch")
)

// Reading is an encrypted reading of a metric.
type Reading struct {
	ID          uuid.UUID
	Metric      MetricID
	Value       engine.EncodedValue
	Attestation []byte
	Timestamp   time.Time
}

// Summary aggregates the state of a vault. Statistics are computed over the
// revealed readings and are zero when nothing is stored.
type Summary struct {
	Encrypted         int
	AverageCalculated bool
	LastUpdate        time.Time
	Mean              float64
	Median            float64
	StdDev            float64
}

// Option configures a Vault.
type Option func(*Vault)

// WithLogger sets the vault logger.
func WithLogger(logger logging.Logger) Option {
	return func(v *Vault) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithClock sets the time source used to stamp readings.
func WithClock(now func() time.Time) Option {
	return func(v *Vault) {
		v.now = now
	}
}

// Vault stores one encrypted reading per metric. It is safe for concurrent use.
type Vault struct {
	engine   *engine.Engine
	attester *Attester
	logger   logging.Logger
	now      func() time.Time

	mu                sync.RWMutex
	readings          map[MetricID]Reading
	bounds            map[MetricID][2]engine.EncodedValue
	averageCalculated bool
	lastUpdate        time.Time
}

// New returns an empty vault computing through e. A nil key selects a random
// attestation key, in which case attestations do not outlive the vault.
func New(e *engine.Engine, key []byte, opts ...Option) (*Vault, error) {

	if key == nil {
		var err error
		if key, err = sampling.Bytes(sampling.NewPRNG(), AttestationKeySize); err != nil {
			return nil, fmt.Errorf("vault: generate attestation key: %w", err)
		}
	}

	attester, err := NewAttester(key)
	if err != nil {
		return nil, err
	}

	v := &Vault{
		engine:   e,
		attester: attester,
		logger:   logging.New(nil),
		now:      time.Now,
		readings: map[MetricID]Reading{},
		bounds:   map[MetricID][2]engine.EncodedValue{},
	}
	for _, opt := range opts {
		opt(v)
	}
	v.lastUpdate = v.now()
	return v, nil
}

// Store quantizes value, encrypts it and replaces the reading of metric.
func (v *Vault) Store(ctx context.Context, metric MetricID, value float64) (Reading, error) {

	if _, err := Lookup(metric); err != nil {
		return Reading{}, err
	}

	x := utils.QuantizeUint32(value)

	encoded, err := v.engine.Encrypt(ctx, x)
	if err != nil {
		return Reading{}, err
	}

	r := Reading{
		ID:          uuid.New(),
		Metric:      metric,
		Value:       encoded,
		Attestation: v.attester.Attest(metric, x, encoded),
		Timestamp:   v.now(),
	}

	v.mu.Lock()
	v.readings[metric] = r
	v.lastUpdate = r.Timestamp
	v.mu.Unlock()

	v.logger.Info(ctx, "reading stored", "metric", metric, "id", r.ID, logging.Redacted("value"))
	return r, nil
}

// Reading returns the stored reading of metric.
func (v *Vault) Reading(metric MetricID) (Reading, error) {
	if _, err := Lookup(metric); err != nil {
		return Reading{}, err
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	r, ok := v.readings[metric]
	if !ok {
		return Reading{}, fmt.Errorf("%w for %q", ErrNoReading, metric)
	}
	return r, nil
}

// Readings returns the stored readings in catalog order.
func (v *Vault) Readings() []Reading {
	v.mu.RLock()
	defer v.mu.RUnlock()

	rs := make([]Reading, 0, len(v.readings))
	for _, m := range Catalog {
		if r, ok := v.readings[m.ID]; ok {
			rs = append(rs, r)
		}
	}
	return rs
}

// Encrypted returns the number of metrics holding an encrypted reading.
func (v *Vault) Encrypted() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.readings)
}

// Reveal decrypts the reading of metric and checks its attestation.
func (v *Vault) Reveal(ctx context.Context, metric MetricID) (uint32, error) {

	r, err := v.Reading(metric)
	if err != nil {
		return 0, err
	}

	x, err := v.engine.Decrypt(ctx, r.Value)
	if err != nil {
		return 0, err
	}

	if !v.attester.Verify(metric, x, r.Value, r.Attestation) {
		v.logger.Warn(ctx, "attestation mismatch", "metric", metric, "id", r.ID)
		return 0, fmt.Errorf("%w for %q", ErrAttestation, metric)
	}

	return x, nil
}

// Average returns the encrypted average of all stored readings. Fewer than
// engine.MinOperands readings fail with engine.ErrInsufficientOperands
// without reaching the engine.
func (v *Vault) Average(ctx context.Context) (engine.EncodedValue, error) {

	rs := v.Readings()
	if len(rs) < engine.MinOperands {
		return "", fmt.Errorf("vault: %w: %d encrypted readings, need at least %d", engine.ErrInsufficientOperands, len(rs), engine.MinOperands)
	}

	values := make([]engine.EncodedValue, len(rs))
	for i := range rs {
		values[i] = rs[i].Value
	}

	avg, err := v.engine.Average(ctx, values)
	if err != nil {
		return "", err
	}

	v.mu.Lock()
	v.averageCalculated = true
	v.lastUpdate = v.now()
	v.mu.Unlock()

	return avg, nil
}

// AverageValue computes the encrypted average and decrypts it.
func (v *Vault) AverageValue(ctx context.Context) (uint32, error) {
	avg, err := v.Average(ctx)
	if err != nil {
		return 0, err
	}
	return v.engine.Decrypt(ctx, avg)
}

// Classify positions the reading of metric against its normal range using
// only encrypted comparisons.
func (v *Vault) Classify(ctx context.Context, metric MetricID) (Status, error) {

	m, err := Lookup(metric)
	if err != nil {
		return Normal, err
	}

	r, err := v.Reading(metric)
	if err != nil {
		return Normal, err
	}

	bounds, err := v.encryptedBounds(ctx, m)
	if err != nil {
		return Normal, err
	}

	c, err := v.engine.Compare(ctx, r.Value, bounds[0])
	if err != nil {
		return Normal, err
	}
	if c < 0 {
		return Low, nil
	}

	if c, err = v.engine.Compare(ctx, r.Value, bounds[1]); err != nil {
		return Normal, err
	}
	if c > 0 {
		return High, nil
	}

	return Normal, nil
}

func (v *Vault) encryptedBounds(ctx context.Context, m Metric) ([2]engine.EncodedValue, error) {

	v.mu.RLock()
	b, ok := v.bounds[m.ID]
	v.mu.RUnlock()
	if ok {
		return b, nil
	}

	var err error
	if b[0], err = v.engine.Encrypt(ctx, m.NormalRange.Min); err != nil {
		return b, err
	}
	if b[1], err = v.engine.Encrypt(ctx, m.NormalRange.Max); err != nil {
		return b, err
	}

	v.mu.Lock()
	v.bounds[m.ID] = b
	v.mu.Unlock()
	return b, nil
}

// Summary reveals every stored reading and returns aggregate statistics.
func (v *Vault) Summary(ctx context.Context) (Summary, error) {

	rs := v.Readings()

	data := make(stats.Float64Data, 0, len(rs))
	for _, r := range rs {
		x, err := v.Reveal(ctx, r.Metric)
		if err != nil {
			return Summary{}, err
		}
		data = append(data, float64(x))
	}

	v.mu.RLock()
	s := Summary{
		Encrypted:         len(rs),
		AverageCalculated: v.averageCalculated,
		LastUpdate:        v.lastUpdate,
	}
	v.mu.RUnlock()

	if len(data) == 0 {
		return s, nil
	}

	var err error
	if s.Mean, err = data.Mean(); err != nil {
		return Summary{}, err
	}
	if s.Median, err = data.Median(); err != nil {
		return Summary{}, err
	}
	if s.StdDev, err = data.StandardDeviation(); err != nil {
		return Summary{}, err
	}

	return s, nil
}
