package batch

import (
	"context"
	"runtime"

	"github.com/akhildatla/vsp/pkg/sil"
	"golang.org/x/sync/errgroup"
)

// Backend executes bulk kernels. Every backend must produce results
// identical to CPUBackend.
type Backend interface {
	Name() string
	Gradients(ctx context.Context, states []sil.State) ([]Gradient, error)
	Interpolate(ctx context.Context, a, b []sil.State, t float32, spherical bool) ([]sil.State, error)
	ApplyGate(ctx context.Context, qubits []Amplitudes, m Matrix) ([]Amplitudes, error)
}

// CPUBackend is the scalar reference backend. It is also the fallback
// used when another backend fails.
type CPUBackend struct{}

func (CPUBackend) Name() string { return "cpu" }

func (CPUBackend) Gradients(_ context.Context, states []sil.State) ([]Gradient, error) {
	out := make([]Gradient, len(states))
	for i, s := range states {
		out[i] = ComputeGradient(s)
	}
	return out, nil
}

func (CPUBackend) Interpolate(_ context.Context, a, b []sil.State, t float32, spherical bool) ([]sil.State, error) {
	if len(a) != len(b) {
		return nil, lengthMismatch(len(a), len(b))
	}
	out := make([]sil.State, len(a))
	interpolateRange(out, a, b, t, spherical, 0, len(a))
	return out, nil
}

func (CPUBackend) ApplyGate(_ context.Context, qubits []Amplitudes, m Matrix) ([]Amplitudes, error) {
	out := make([]Amplitudes, len(qubits))
	for i, q := range qubits {
		out[i] = m.Apply(q)
	}
	return out, nil
}

func interpolateRange(out, a, b []sil.State, t float32, spherical bool, lo, hi int) {
	for i := lo; i < hi; i++ {
		if spherical {
			out[i] = SlerpStates(a[i], b[i], t)
		} else {
			out[i] = LerpStates(a[i], b[i], t)
		}
	}
}

// ParallelBackend splits large inputs into chunks evaluated on separate
// goroutines. Inputs shorter than Threshold run on the calling goroutine.
type ParallelBackend struct {
	Threshold int
	Workers   int
}

// NewParallelBackend returns a backend with one worker per CPU.
func NewParallelBackend(threshold int) *ParallelBackend {
	return &ParallelBackend{Threshold: threshold, Workers: runtime.GOMAXPROCS(0)}
}

func (p *ParallelBackend) Name() string { return "parallel" }

// chunks runs fn over [0, n) split into at most Workers ranges.
func (p *ParallelBackend) chunks(ctx context.Context, n int, fn func(lo, hi int)) error {
	workers := p.Workers
	if workers < 1 {
		workers = 1
	}
	if n < p.Threshold || workers == 1 {
		fn(0, n)
		return nil
	}
	size := (n + workers - 1) / workers
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for lo := 0; lo < n; lo += size {
		lo, hi := lo, min(lo+size, n)
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			fn(lo, hi)
			return nil
		})
	}
	return g.Wait()
}

func (p *ParallelBackend) Gradients(ctx context.Context, states []sil.State) ([]Gradient, error) {
	out := make([]Gradient, len(states))
	err := p.chunks(ctx, len(states), func(lo, hi int) {
		for i := lo; i < hi; i++ {
			out[i] = ComputeGradient(states[i])
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (p *ParallelBackend) Interpolate(ctx context.Context, a, b []sil.State, t float32, spherical bool) ([]sil.State, error) {
	if len(a) != len(b) {
		return nil, lengthMismatch(len(a), len(b))
	}
	out := make([]sil.State, len(a))
	err := p.chunks(ctx, len(a), func(lo, hi int) {
		interpolateRange(out, a, b, t, spherical, lo, hi)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (p *ParallelBackend) ApplyGate(ctx context.Context, qubits []Amplitudes, m Matrix) ([]Amplitudes, error) {
	out := make([]Amplitudes, len(qubits))
	err := p.chunks(ctx, len(qubits), func(lo, hi int) {
		for i := lo; i < hi; i++ {
			out[i] = m.Apply(qubits[i])
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
