// Package engine implements the encrypted value computation layer: a handle
// that turns uint32 readings into opaque encoded values, recovers them, and
// averages or compares encoded values without returning intermediate
// plaintext to the caller.
//
// The cryptography is delegated to a [Backend]. The engine owns the lifecycle
// (a single, coalesced initialization), argument validation, typed errors,
// logging and metrics, so that backends are interchangeable without any
// change at the call site.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tuneinsight/healthvault/utils/logging"
)

// State is the lifecycle state of an Engine.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

const (
	opInitialize = "Initialize"
	opEncrypt    = "Encrypt"
	opDecrypt    = "Decrypt"
	opAverage    = "Average"
	opCompare    = "Compare"
)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for lifecycle events and failures.
func WithLogger(logger logging.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics sets the collectors updated by the engine.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// Engine is a handle on one backend configuration. It is created once by the
// application and shared by reference; all methods are safe for concurrent use.
//
// A failed Engine stays failed: retrying means creating a new Engine.
type Engine struct {
	backend Backend
	logger  logging.Logger
	metrics *Metrics

	mu      sync.RWMutex
	state   State
	scheme  Scheme
	initErr error
	done    chan struct{}
}

// New returns an uninitialized Engine backed by backend.
func New(backend Backend, opts ...Option) *Engine {
	e := &Engine{
		backend: backend,
		logger:  logging.New(nil),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("backend", backend.Name())
	return e
}

// Backend returns the name of the backend.
func (e *Engine) Backend() string {
	return e.backend.Name()
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Initialize sets up the backend. The first call starts the setup; every
// call, concurrent or later, waits for that single attempt and returns its
// outcome. A nil error means the engine is ready. A setup failure is
// returned as an error matching ErrInitializationFailed.
//
// Cancelling ctx only stops the wait: the setup itself runs to completion
// and its outcome is kept for subsequent calls.
func (e *Engine) Initialize(ctx context.Context) error {
	e.mu.Lock()
	if e.state == StateUninitialized {
		e.state = StateInitializing
		e.logger.Debug(ctx, "initializing")
		go e.setup(context.WithoutCancel(ctx))
	}
	e.mu.Unlock()

	select {
	case <-e.done:
	case <-ctx.Done():
		return &Error{Op: opInitialize, Err: ctx.Err()}
	}

	// initErr is written before done is closed.
	return e.initErr
}

func (e *Engine) setup(ctx context.Context) {
	start := time.Now()
	scheme, err := e.runSetup(ctx)

	e.mu.Lock()
	if err != nil {
		e.state = StateFailed
		e.initErr = &Error{Op: opInitialize, Err: fmt.Errorf("%w: %w", ErrInitializationFailed, err)}
	} else {
		e.state = StateReady
		e.scheme = scheme
	}
	e.mu.Unlock()
	close(e.done)

	e.metrics.recordInitialization(e.backend.Name(), e.initErr)
	if err != nil {
		e.logger.Error(ctx, "initialization failed", "error", err)
		return
	}
	e.logger.Info(ctx, "engine ready", "elapsed", time.Since(start))
}

func (e *Engine) runSetup(ctx context.Context) (scheme Scheme, err error) {
	defer func() {
		if r := recover(); r != nil {
			scheme, err = nil, fmt.Errorf("backend setup panicked: %v", r)
		}
	}()
	return e.backend.Setup(ctx)
}

func (e *Engine) ready(op string) (Scheme, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.state != StateReady {
		return nil, &Error{Op: op, Err: fmt.Errorf("%w (state %s)", ErrNotInitialized, e.state)}
	}
	return e.scheme, nil
}

func (e *Engine) observe(ctx context.Context, op string, start time.Time, err error, args ...any) {
	e.metrics.recordOperation(op, err, time.Since(start))
	if err != nil {
		e.logger.Warn(ctx, "operation failed", append([]any{"op", op, "kind", Kind(err)}, args...)...)
	}
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*Error); ok {
		return err
	}
	return &Error{Op: op, Err: err}
}

// Encrypt returns the encoded encryption of x.
func (e *Engine) Encrypt(ctx context.Context, x uint32) (v EncodedValue, err error) {
	defer func(start time.Time) { e.observe(ctx, opEncrypt, start, err) }(time.Now())

	scheme, err := e.ready(opEncrypt)
	if err != nil {
		return "", err
	}

	ct, err := scheme.Encrypt(x)
	if err != nil {
		return "", wrap(opEncrypt, err)
	}
	return NewEncodedValue(ct), nil
}

// Decrypt returns the reading encoded by v. Values that are not valid
// encodings for the backend yield an error matching ErrMalformedInput.
func (e *Engine) Decrypt(ctx context.Context, v EncodedValue) (x uint32, err error) {
	defer func(start time.Time) { e.observe(ctx, opDecrypt, start, err) }(time.Now())

	scheme, err := e.ready(opDecrypt)
	if err != nil {
		return 0, err
	}

	ct, err := v.Bytes()
	if err != nil {
		return 0, wrap(opDecrypt, err)
	}

	x, err = scheme.Decrypt(ct)
	return x, wrap(opDecrypt, err)
}

// Average returns an encoded value that decrypts to the mean of the readings
// encoded by values, rounded half up. At least MinOperands values are required.
func (e *Engine) Average(ctx context.Context, values []EncodedValue) (v EncodedValue, err error) {
	defer func(start time.Time) { e.observe(ctx, opAverage, start, err, "operands", len(values)) }(time.Now())

	scheme, err := e.ready(opAverage)
	if err != nil {
		return "", err
	}

	if len(values) < MinOperands {
		return "", &Error{Op: opAverage, Err: fmt.Errorf("%w: got %d, need at least %d", ErrInsufficientOperands, len(values), MinOperands)}
	}

	cts := make([][]byte, len(values))
	for i := range values {
		if cts[i], err = values[i].Bytes(); err != nil {
			return "", &Error{Op: opAverage, Err: fmt.Errorf("operand %d: %w", i, err)}
		}
	}

	ct, err := scheme.Average(cts)
	if err != nil {
		return "", wrap(opAverage, err)
	}
	return NewEncodedValue(ct), nil
}

// Compare returns -1, 0 or 1 depending on whether the reading encoded by a is
// less than, equal to or greater than the reading encoded by b.
func (e *Engine) Compare(ctx context.Context, a, b EncodedValue) (c int, err error) {
	defer func(start time.Time) { e.observe(ctx, opCompare, start, err) }(time.Now())

	scheme, err := e.ready(opCompare)
	if err != nil {
		return 0, err
	}

	ctA, err := a.Bytes()
	if err != nil {
		return 0, wrap(opCompare, err)
	}
	ctB, err := b.Bytes()
	if err != nil {
		return 0, wrap(opCompare, err)
	}

	c, err = scheme.Compare(ctA, ctB)
	return c, wrap(opCompare, err)
}
