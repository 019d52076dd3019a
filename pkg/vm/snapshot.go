package vm

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/akhildatla/vsp/pkg/sil"
)

// cborEncMode uses canonical encoding so equal snapshots produce equal bytes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("vm: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Snapshot is a point-in-time copy of the architectural state of a VM, used
// for tracing and post-mortem debugging.
type Snapshot struct {
	Registers [NumRegs]byte   `cbor:"1,keyasint"`
	PC        uint32          `cbor:"2,keyasint"`
	SP        uint32          `cbor:"3,keyasint"`
	FP        uint32          `cbor:"4,keyasint"`
	Status    uint8           `cbor:"5,keyasint"`
	Mode      uint8           `cbor:"6,keyasint"`
	Cycles    uint64          `cbor:"7,keyasint"`
	Heap      [][NumRegs]byte `cbor:"8,keyasint,omitempty"`
	Output    []byte          `cbor:"9,keyasint,omitempty"`
	Backend   uint8           `cbor:"10,keyasint"`
	InBatch   bool            `cbor:"11,keyasint,omitempty"`
	Fault     string          `cbor:"12,keyasint,omitempty"`
}

// Snapshot captures the current state.
func (vm *VM) Snapshot() *Snapshot {
	s := &Snapshot{
		Registers: vm.state.SilState().Bytes(),
		PC:        vm.state.PC,
		SP:        vm.state.SP,
		FP:        vm.state.FP,
		Status:    uint8(vm.state.SR),
		Mode:      uint8(vm.state.Mode),
		Cycles:    vm.cycles,
		Backend:   uint8(vm.sched.Backend),
		InBatch:   vm.sched.InBatch,
	}
	for _, st := range vm.mem.Heap() {
		s.Heap = append(s.Heap, st.Bytes())
	}
	for _, v := range vm.mem.Output() {
		s.Output = append(s.Output, v.Byte())
	}
	if vm.fault != nil {
		s.Fault = vm.fault.Error()
	}
	return s
}

// Restore loads registers, heap and scheduling context from s. Code, data,
// stacks and the fault are left as they are.
func (vm *VM) Restore(s *Snapshot) error {
	mode := Mode(s.Mode)
	if mode > Sil128 {
		return fmt.Errorf("%w: %d", ErrInvalidMode, s.Mode)
	}
	heap := make([]sil.State, len(s.Heap))
	for i, b := range s.Heap {
		heap[i] = sil.StateFromBytes(b)
	}
	if err := vm.mem.setHeap(heap); err != nil {
		return err
	}
	vm.state.SetSilState(sil.StateFromBytes(s.Registers))
	vm.state.PC = s.PC
	vm.state.SP = s.SP
	vm.state.FP = s.FP
	vm.state.SR = Status(s.Status)
	vm.state.Mode = mode
	vm.cycles = s.Cycles
	vm.sched.Backend = Backend(s.Backend)
	vm.sched.InBatch = s.InBatch
	return nil
}

// MarshalSnapshot serializes a snapshot to CBOR bytes.
func MarshalSnapshot(s *Snapshot) ([]byte, error) {
	return cborEncMode.Marshal(s)
}

// UnmarshalSnapshot deserializes a snapshot from CBOR bytes.
func UnmarshalSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("vm: unmarshal snapshot: %w", err)
	}
	return &s, nil
}
