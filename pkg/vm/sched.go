package vm

import (
	"context"

	"github.com/akhildatla/vsp/pkg/batch"
	"github.com/akhildatla/vsp/pkg/sil"
)

// Backend is a compute backend preference set by hint opcodes.
type Backend uint8

const (
	BackendAny Backend = iota
	BackendCPU
	BackendGPU
	BackendNPU
	BackendFPGA
)

func (b Backend) String() string {
	switch b {
	case BackendCPU:
		return "cpu"
	case BackendGPU:
		return "gpu"
	case BackendNPU:
		return "npu"
	case BackendFPGA:
		return "fpga"
	default:
		return "any"
	}
}

// SchedContext is the scheduling advice accumulated by hint opcodes. It is
// owned by a single VM and handed to the Offloader with each request; hints
// never change architectural results.
type SchedContext struct {
	Backend    Backend
	InBatch    bool
	BatchCount uint32
	Fences     uint64
}

// Offloaded reports whether work should go to the offloader rather than the
// inline CPU kernel.
func (c SchedContext) Offloaded() bool {
	return c.InBatch && c.Backend != BackendCPU
}

// Offloader executes bulk state operations on behalf of the VM.
type Offloader interface {
	Gradient(ctx context.Context, sc SchedContext, s sil.State) ([sil.NumLayers]float32, error)
}

// BatchOffloader routes offloaded work through a batch.Scheduler.
type BatchOffloader struct {
	Scheduler *batch.Scheduler
}

func (o BatchOffloader) Gradient(ctx context.Context, sc SchedContext, s sil.State) ([sil.NumLayers]float32, error) {
	if o.Scheduler == nil {
		return [sil.NumLayers]float32{}, ErrBackendUnavailable
	}
	g, err := o.Scheduler.Gradients(ctx, []sil.State{s})
	if err != nil {
		return [sil.NumLayers]float32{}, err
	}
	return g[0].Rho(), nil
}
