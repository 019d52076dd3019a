// Package batch groups bulk SilState operations into micro-batches and runs
// them on a compute backend.
//
// Callers submit requests over a bounded channel. A single accumulator
// goroutine collects them and flushes the batch when the queued states reach
// Config.MaxBatchStates or when Config.MaxWait has passed since the first
// queued request, whichever comes first. Every accepted request receives
// exactly one Result.
package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	gometrics "github.com/rcrowley/go-metrics"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/akhildatla/vsp/internal/log"
	"github.com/akhildatla/vsp/internal/metrics"
	"github.com/akhildatla/vsp/pkg/sil"
)

// Config controls batching.
type Config struct {
	MaxBatchStates    int           // flush once this many states are queued
	MaxWait           time.Duration // flush this long after the first queued request
	ChannelSize       int           // request channel capacity
	ParallelThreshold int           // ParallelBackend fan-out threshold
}

// DefaultConfig returns the default batching parameters.
func DefaultConfig() Config {
	return Config{
		MaxBatchStates:    1024,
		MaxWait:           5 * time.Millisecond,
		ChannelSize:       128,
		ParallelThreshold: 100,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxBatchStates <= 0 {
		c.MaxBatchStates = d.MaxBatchStates
	}
	if c.MaxWait <= 0 {
		c.MaxWait = d.MaxWait
	}
	if c.ChannelSize <= 0 {
		c.ChannelSize = d.ChannelSize
	}
	if c.ParallelThreshold <= 0 {
		c.ParallelThreshold = d.ParallelThreshold
	}
	return c
}

// Op is a bulk operation. It is one of GradientOp, InterpolateOp or GateOp.
type Op interface {
	// Len is the number of states (or qubits) the operation touches.
	Len() int
}

// GradientOp computes the gradient of each state.
type GradientOp struct {
	States []sil.State
}

func (o GradientOp) Len() int { return len(o.States) }

// InterpolateOp interpolates A[i] toward B[i] by T.
type InterpolateOp struct {
	A, B      []sil.State
	T         float32
	Spherical bool
}

func (o InterpolateOp) Len() int { return len(o.A) }

// GateOp applies a gate to each qubit. Matrix is used when Gate is
// GateCustom; Theta is the angle for rotation and phase gates.
type GateOp struct {
	Qubits []Amplitudes
	Gate   Gate
	Theta  float32
	Matrix Matrix
}

func (o GateOp) Len() int { return len(o.Qubits) }

// Result is the outcome of one request. Exactly one of the slices is set
// when Err is nil.
type Result struct {
	ID        uuid.UUID
	Gradients []Gradient
	States    []sil.State
	Qubits    []Amplitudes
	Err       error
}

// Request is an accepted operation awaiting its result.
type Request struct {
	ID   uuid.UUID
	Op   Op
	done chan Result
}

// Done returns a channel that receives the result exactly once.
func (r *Request) Done() <-chan Result { return r.done }

// Wait blocks until the result arrives or ctx is done. A result that
// arrives after ctx is done is discarded.
func (r *Request) Wait(ctx context.Context) (Result, error) {
	select {
	case res := <-r.done:
		return res, res.Err
	case <-ctx.Done():
		return Result{ID: r.ID}, ctx.Err()
	}
}

// Stats are cumulative scheduler counters.
type Stats struct {
	Submitted uint64
	Completed uint64
	Failed    uint64
	Flushes   uint64
	Fallbacks uint64
}

// Scheduler is the micro-batch accumulator.
type Scheduler struct {
	cfg      Config
	backend  Backend
	fallback CPUBackend
	log      *zap.Logger

	reqs   chan *Request
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	submitted *atomic.Uint64
	completed *atomic.Uint64
	failed    *atomic.Uint64
	flushes   *atomic.Uint64
	fallbacks *atomic.Uint64

	flushTimer gometrics.Timer
	flushSize  gometrics.Histogram
	fallbackM  gometrics.Counter
}

// New creates a scheduler and starts its accumulator. A nil backend selects
// a ParallelBackend; a nil logger discards logs.
func New(cfg Config, backend Backend, logger *zap.Logger) *Scheduler {
	cfg = cfg.withDefaults()
	if backend == nil {
		backend = NewParallelBackend(cfg.ParallelThreshold)
	}
	s := &Scheduler{
		cfg:        cfg,
		backend:    backend,
		log:        log.OrNop(logger).Named("batch"),
		reqs:       make(chan *Request, cfg.ChannelSize),
		submitted:  atomic.NewUint64(0),
		completed:  atomic.NewUint64(0),
		failed:     atomic.NewUint64(0),
		flushes:    atomic.NewUint64(0),
		fallbacks:  atomic.NewUint64(0),
		flushTimer: metrics.NewTimer("batch/flush"),
		flushSize:  metrics.NewHistogram("batch/flush/states"),
		fallbackM:  metrics.NewCounter("batch/fallback"),
	}
	s.wg.Add(1)
	go s.loop()
	return s
}

// Config returns the effective configuration.
func (s *Scheduler) Config() Config { return s.cfg }

// Backend returns the primary backend.
func (s *Scheduler) Backend() Backend { return s.backend }

func (s *Scheduler) newRequest(op Op) *Request {
	return &Request{ID: uuid.New(), Op: op, done: make(chan Result, 1)}
}

// Submit queues op, blocking while the channel is full. It fails with
// ErrClosed after Close, or with ctx's error if ctx ends first.
func (s *Scheduler) Submit(ctx context.Context, op Op) (*Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	req := s.newRequest(op)
	select {
	case s.reqs <- req:
		s.submitted.Inc()
		return req, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TrySubmit queues op without blocking, failing with ErrQueueFull when the
// channel is at capacity.
func (s *Scheduler) TrySubmit(op Op) (*Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	req := s.newRequest(op)
	select {
	case s.reqs <- req:
		s.submitted.Inc()
		return req, nil
	default:
		return nil, ErrQueueFull
	}
}

// Gradients submits a GradientOp and waits for it.
func (s *Scheduler) Gradients(ctx context.Context, states []sil.State) ([]Gradient, error) {
	req, err := s.Submit(ctx, GradientOp{States: states})
	if err != nil {
		return nil, err
	}
	res, err := req.Wait(ctx)
	return res.Gradients, err
}

// Interpolate submits an InterpolateOp and waits for it.
func (s *Scheduler) Interpolate(ctx context.Context, a, b []sil.State, t float32, spherical bool) ([]sil.State, error) {
	req, err := s.Submit(ctx, InterpolateOp{A: a, B: b, T: t, Spherical: spherical})
	if err != nil {
		return nil, err
	}
	res, err := req.Wait(ctx)
	return res.States, err
}

// ApplyGate submits a GateOp and waits for it.
func (s *Scheduler) ApplyGate(ctx context.Context, qubits []Amplitudes, g Gate, theta float32) ([]Amplitudes, error) {
	req, err := s.Submit(ctx, GateOp{Qubits: qubits, Gate: g, Theta: theta})
	if err != nil {
		return nil, err
	}
	res, err := req.Wait(ctx)
	return res.Qubits, err
}

// Close stops accepting requests, flushes everything already accepted and
// waits for the accumulator to exit. It is safe to call more than once.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.reqs)
	}
	s.mu.Unlock()
	s.wg.Wait()
	return nil
}

// Stats returns a snapshot of the counters.
func (s *Scheduler) Stats() Stats {
	return Stats{
		Submitted: s.submitted.Load(),
		Completed: s.completed.Load(),
		Failed:    s.failed.Load(),
		Flushes:   s.flushes.Load(),
		Fallbacks: s.fallbacks.Load(),
	}
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	var pending []*Request
	queued := 0
	timer := time.NewTimer(s.cfg.MaxWait)
	timer.Stop()
	armed := false

	flush := func() {
		if armed {
			timer.Stop()
			armed = false
		}
		if len(pending) > 0 {
			s.flush(pending, queued)
		}
		pending, queued = nil, 0
	}

	for {
		select {
		case req, ok := <-s.reqs:
			if !ok {
				flush()
				return
			}
			pending = append(pending, req)
			queued += req.Op.Len()
			if queued >= s.cfg.MaxBatchStates {
				flush()
			} else if !armed {
				timer.Reset(s.cfg.MaxWait)
				armed = true
			}
		case <-timer.C:
			armed = false
			flush()
		}
	}
}

func (s *Scheduler) flush(batch []*Request, states int) {
	start := time.Now()
	s.flushes.Inc()
	var errs error
	for _, req := range batch {
		res := s.execute(req)
		if res.Err != nil {
			s.failed.Inc()
			errs = multierr.Append(errs, fmt.Errorf("request %s: %w", req.ID, res.Err))
		}
		s.completed.Inc()
		req.done <- res
	}
	s.flushTimer.UpdateSince(start)
	s.flushSize.Update(int64(states))

	if errs != nil {
		s.log.Debug("batch flushed with failures",
			zap.Int("requests", len(batch)),
			zap.Int("failed", len(multierr.Errors(errs))),
			zap.Error(errs))
	} else {
		s.log.Debug("batch flushed", zap.Int("requests", len(batch)), zap.Int("states", states))
	}
}

// execute runs one request on the primary backend, retrying on the CPU
// backend if the primary one fails. Input validation errors are reported
// without retry.
func (s *Scheduler) execute(req *Request) (res Result) {
	res.ID = req.ID
	defer func() {
		if r := recover(); r != nil {
			res = Result{ID: req.ID, Err: fmt.Errorf("batch: panic in %s backend: %v", s.backend.Name(), r)}
		}
	}()

	if err := validate(req.Op); err != nil {
		res.Err = err
		return res
	}
	ctx := context.Background()
	out, err := run(ctx, s.backend, req.Op)
	if err != nil {
		s.fallbacks.Inc()
		s.fallbackM.Inc(1)
		s.log.Warn("backend failed, using cpu fallback",
			zap.String("backend", s.backend.Name()),
			zap.Stringer("request", req.ID),
			zap.Error(err))
		out, err = run(ctx, s.fallback, req.Op)
	}
	out.ID = req.ID
	out.Err = err
	return out
}

func validate(op Op) error {
	switch o := op.(type) {
	case GradientOp:
		return nil
	case InterpolateOp:
		if len(o.A) != len(o.B) {
			return lengthMismatch(len(o.A), len(o.B))
		}
		return nil
	case GateOp:
		if o.Gate == GateCustom {
			return nil
		}
		_, err := MatrixFor(o.Gate, o.Theta)
		return err
	default:
		return fmt.Errorf("%w: %T", ErrUnknownOp, op)
	}
}

func run(ctx context.Context, b Backend, op Op) (Result, error) {
	switch o := op.(type) {
	case GradientOp:
		g, err := b.Gradients(ctx, o.States)
		return Result{Gradients: g}, err
	case InterpolateOp:
		st, err := b.Interpolate(ctx, o.A, o.B, o.T, o.Spherical)
		return Result{States: st}, err
	case GateOp:
		m := o.Matrix
		if o.Gate != GateCustom {
			var err error
			if m, err = MatrixFor(o.Gate, o.Theta); err != nil {
				return Result{}, err
			}
		}
		q, err := b.ApplyGate(ctx, o.Qubits, m)
		return Result{Qubits: q}, err
	default:
		return Result{}, fmt.Errorf("%w: %T", ErrUnknownOp, op)
	}
}
