package vm

import (
	"fmt"

	"github.com/akhildatla/vsp/pkg/sil"
)

// Segment identifies a region of the 32-bit address space.
type Segment uint8

const (
	SegCode Segment = iota
	SegStateHeap
	SegCallStack
	SegTransformTable
	SegIOMapped
)

// Segment bases.
const (
	CodeBase           uint32 = 0x0000_0000
	StateHeapBase      uint32 = 0x1000_0000
	CallStackBase      uint32 = 0x2000_0000
	TransformTableBase uint32 = 0x3000_0000
	IOMappedBase       uint32 = 0xF000_0000
)

// Defaults and fixed sizes.
const (
	DefaultHeapStates  = 65536
	DefaultStackFrames = 1024
	NumIOPorts         = 256
	NumSensors         = 16
	NumActuators       = 16
)

// SegmentOf maps any address to its segment. The mapping is total.
func SegmentOf(addr uint32) Segment {
	switch {
	case addr < StateHeapBase:
		return SegCode
	case addr < CallStackBase:
		return SegStateHeap
	case addr < TransformTableBase:
		return SegCallStack
	case addr < IOMappedBase:
		return SegTransformTable
	default:
		return SegIOMapped
	}
}

// Base returns the first address of the segment.
func (s Segment) Base() uint32 {
	switch s {
	case SegStateHeap:
		return StateHeapBase
	case SegCallStack:
		return CallStackBase
	case SegTransformTable:
		return TransformTableBase
	case SegIOMapped:
		return IOMappedBase
	default:
		return CodeBase
	}
}

func (s Segment) String() string {
	switch s {
	case SegCode:
		return "code"
	case SegStateHeap:
		return "heap"
	case SegCallStack:
		return "stack"
	case SegTransformTable:
		return "transform"
	case SegIOMapped:
		return "io"
	default:
		return fmt.Sprintf("segment(%d)", uint8(s))
	}
}

// Frame is a call-stack entry.
type Frame struct {
	ReturnAddr uint32
	PrevFP     uint32
}

// MemoryStats summarizes memory usage.
type MemoryStats struct {
	CodeSize     int
	HeapUsed     int
	HeapCapacity int
	StackUsed    int
	CallDepth    int
}

// Memory is the segmented store of a VM instance. Nothing in it is shared
// between instances.
type Memory struct {
	code   []byte
	data   []byte
	heap   []sil.State
	values []sil.ByteSil
	frames []Frame

	io        [NumIOPorts]sil.ByteSil
	sensors   [NumSensors]sil.ByteSil
	actuators [NumActuators]sil.ByteSil
	output    []sil.ByteSil

	input    []byte
	inputPos int

	heapCap  int
	stackCap int
}

// NewMemory creates memory with the given heap capacity (in states) and call
// stack capacity (in frames). The value stack holds 16 entries per frame.
func NewMemory(heapStates, stackFrames int) *Memory {
	if heapStates <= 0 {
		heapStates = DefaultHeapStates
	}
	if stackFrames <= 0 {
		stackFrames = DefaultStackFrames
	}
	m := &Memory{heapCap: heapStates, stackCap: stackFrames}
	m.resetIO()
	return m
}

func (m *Memory) resetIO() {
	for i := range m.io {
		m.io[i] = sil.Null
	}
	for i := range m.sensors {
		m.sensors[i] = sil.Null
	}
	for i := range m.actuators {
		m.actuators[i] = sil.Null
	}
}

// LoadCode replaces the code segment.
func (m *Memory) LoadCode(code []byte) {
	m.code = append(m.code[:0], code...)
}

// LoadData installs the data section and chunks it into 16-byte states on
// the heap. A trailing partial chunk is padded with Null layers.
func (m *Memory) LoadData(data []byte) error {
	m.data = append(m.data[:0], data...)
	m.heap = m.heap[:0]
	return m.chunkData()
}

func (m *Memory) chunkData() error {
	for off := 0; off < len(m.data); off += sil.NumLayers {
		end := min(off+sil.NumLayers, len(m.data))
		if len(m.heap) >= m.heapCap {
			return addrErr("store", StateHeapBase+uint32(off), ErrHeapOverflow)
		}
		m.heap = append(m.heap, sil.StateFromSlice(m.data[off:end]))
	}
	return nil
}

// Code returns the code segment.
func (m *Memory) Code() []byte { return m.code }

// Data returns the raw data section.
func (m *Memory) Data() []byte { return m.data }

// Fetch returns up to four bytes starting at pc.
func (m *Memory) Fetch(pc uint32) ([]byte, error) {
	if uint64(pc) >= uint64(len(m.code)) {
		return nil, addrErr("fetch", pc, ErrAddressOutOfBounds)
	}
	end := int(pc) + 4
	if end > len(m.code) {
		end = len(m.code)
	}
	return m.code[pc:end], nil
}

// LoadByteSil reads one ByteSil. Code-segment reads return data constants.
func (m *Memory) LoadByteSil(addr uint32) (sil.ByteSil, error) {
	seg := SegmentOf(addr)
	off := addr - seg.Base()
	switch seg {
	case SegCode:
		if uint64(off) < uint64(len(m.data)) {
			return sil.FromByte(m.data[off]), nil
		}
		return sil.Null, addrErr("load", addr, ErrAddressOutOfBounds)
	case SegStateHeap:
		idx, layer := int(off/sil.NumLayers), int(off%sil.NumLayers)
		if idx < len(m.heap) {
			return m.heap[idx][layer], nil
		}
		return sil.Null, addrErr("load", addr, ErrAddressOutOfBounds)
	case SegIOMapped:
		if off < NumIOPorts {
			return m.io[off], nil
		}
		return sil.Null, addrErr("load", addr, ErrAddressOutOfBounds)
	default:
		return sil.Null, addrErr("load", addr, ErrInvalidSegment)
	}
}

// growHeap extends the heap with neutral states until idx is addressable.
func (m *Memory) growHeap(addr uint32, idx int) error {
	if idx >= m.heapCap {
		return addrErr("store", addr, ErrHeapOverflow)
	}
	for len(m.heap) <= idx {
		m.heap = append(m.heap, sil.Neutral())
	}
	return nil
}

// StoreByteSil writes one ByteSil. The code segment is read-only.
func (m *Memory) StoreByteSil(addr uint32, v sil.ByteSil) error {
	seg := SegmentOf(addr)
	off := addr - seg.Base()
	switch seg {
	case SegCode:
		return addrErr("store", addr, ErrWriteToReadOnly)
	case SegStateHeap:
		idx, layer := int(off/sil.NumLayers), int(off%sil.NumLayers)
		if err := m.growHeap(addr, idx); err != nil {
			return err
		}
		m.heap[idx][layer] = v
		return nil
	case SegIOMapped:
		if off < NumIOPorts {
			m.io[off] = v
			return nil
		}
		return addrErr("store", addr, ErrAddressOutOfBounds)
	default:
		return addrErr("store", addr, ErrInvalidSegment)
	}
}

// LoadState reads a full 16-layer state.
func (m *Memory) LoadState(addr uint32) (sil.State, error) {
	if SegmentOf(addr) == SegStateHeap {
		idx := int((addr - StateHeapBase) / sil.NumLayers)
		if idx < len(m.heap) {
			return m.heap[idx], nil
		}
		return sil.Vacuum(), addrErr("load", addr, ErrAddressOutOfBounds)
	}
	var s sil.State
	for i := range s {
		v, err := m.LoadByteSil(addr + uint32(i))
		if err != nil {
			return sil.Vacuum(), err
		}
		s[i] = v
	}
	return s, nil
}

// StoreState writes a full 16-layer state.
func (m *Memory) StoreState(addr uint32, s sil.State) error {
	if SegmentOf(addr) == SegStateHeap {
		idx := int((addr - StateHeapBase) / sil.NumLayers)
		if err := m.growHeap(addr, idx); err != nil {
			return err
		}
		m.heap[idx] = s
		return nil
	}
	for i, l := range s {
		if err := m.StoreByteSil(addr+uint32(i), l); err != nil {
			return err
		}
	}
	return nil
}

// LoadU8 reads a raw byte. Code-segment reads come from the data section.
func (m *Memory) LoadU8(addr uint32) (uint8, error) {
	if SegmentOf(addr) == SegCode {
		if uint64(addr) < uint64(len(m.data)) {
			return m.data[addr], nil
		}
		return 0, addrErr("load", addr, ErrAddressOutOfBounds)
	}
	v, err := m.LoadByteSil(addr)
	if err != nil {
		return 0, err
	}
	return v.Byte(), nil
}

// LoadU32 reads a little-endian uint32.
func (m *Memory) LoadU32(addr uint32) (uint32, error) {
	var v uint32
	for i := uint32(0); i < 4; i++ {
		b, err := m.LoadU8(addr + i)
		if err != nil {
			return 0, err
		}
		v |= uint32(b) << (8 * i)
	}
	return v, nil
}

// LoadPipeline reads a count-prefixed list of uint32 transform ids.
func (m *Memory) LoadPipeline(addr uint32) ([]uint32, error) {
	n, err := m.LoadU32(addr)
	if err != nil {
		return nil, err
	}
	ids := make([]uint32, 0, min(int(n), 256))
	for i := uint32(0); i < n; i++ {
		id, err := m.LoadU32(addr + 4 + 4*i)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// PushValue pushes onto the value stack.
func (m *Memory) PushValue(v sil.ByteSil) error {
	if len(m.values) >= m.stackCap*sil.NumLayers {
		return ErrStackOverflow
	}
	m.values = append(m.values, v)
	return nil
}

// PopValue pops from the value stack.
func (m *Memory) PopValue() (sil.ByteSil, error) {
	if len(m.values) == 0 {
		return sil.Null, ErrStackUnderflow
	}
	v := m.values[len(m.values)-1]
	m.values = m.values[:len(m.values)-1]
	return v, nil
}

// PushFrame pushes a call frame.
func (m *Memory) PushFrame(f Frame) error {
	if len(m.frames) >= m.stackCap {
		return ErrStackOverflow
	}
	m.frames = append(m.frames, f)
	return nil
}

// PopFrame pops a call frame.
func (m *Memory) PopFrame() (Frame, error) {
	if len(m.frames) == 0 {
		return Frame{}, ErrStackUnderflow
	}
	f := m.frames[len(m.frames)-1]
	m.frames = m.frames[:len(m.frames)-1]
	return f, nil
}

// IORead reads a memory-mapped port.
func (m *Memory) IORead(port uint32) (sil.ByteSil, error) {
	if port >= NumIOPorts {
		return sil.Null, fmt.Errorf("%w: %d", ErrInvalidPort, port)
	}
	return m.io[port], nil
}

// IOWrite writes a memory-mapped port.
func (m *Memory) IOWrite(port uint32, v sil.ByteSil) error {
	if port >= NumIOPorts {
		return fmt.Errorf("%w: %d", ErrInvalidPort, port)
	}
	m.io[port] = v
	return nil
}

// SetInput installs a replay buffer consumed by Sense before sensors.
func (m *Memory) SetInput(data []byte) {
	m.input = append(m.input[:0], data...)
	m.inputPos = 0
}

// Sense reads the next replay byte if any remain. Once a non-empty replay
// buffer is exhausted it returns (Null, true). Without replay input it
// reads sensor id.
func (m *Memory) Sense(id int) (sil.ByteSil, bool, error) {
	if m.inputPos < len(m.input) {
		v := sil.FromByte(m.input[m.inputPos])
		m.inputPos++
		return v, false, nil
	}
	if len(m.input) > 0 {
		return sil.Null, true, nil
	}
	if id < 0 || id >= NumSensors {
		return sil.Null, false, fmt.Errorf("%w: %d", ErrInvalidSensor, id)
	}
	return m.sensors[id], false, nil
}

// Actuate writes an actuator and appends the value to the output log.
func (m *Memory) Actuate(id int, v sil.ByteSil) error {
	if id < 0 || id >= NumActuators {
		return fmt.Errorf("%w: %d", ErrInvalidActuator, id)
	}
	m.actuators[id] = v
	m.output = append(m.output, v)
	return nil
}

// SetSensor sets a simulated sensor value.
func (m *Memory) SetSensor(id int, v sil.ByteSil) error {
	if id < 0 || id >= NumSensors {
		return fmt.Errorf("%w: %d", ErrInvalidSensor, id)
	}
	m.sensors[id] = v
	return nil
}

// Actuator returns the last value written to actuator id.
func (m *Memory) Actuator(id int) (sil.ByteSil, error) {
	if id < 0 || id >= NumActuators {
		return sil.Null, fmt.Errorf("%w: %d", ErrInvalidActuator, id)
	}
	return m.actuators[id], nil
}

// Output returns the actuator log.
func (m *Memory) Output() []sil.ByteSil { return m.output }

// ClearOutput empties the actuator log.
func (m *Memory) ClearOutput() { m.output = m.output[:0] }

// Broadcast is reserved, currently unimplemented.
func (m *Memory) Broadcast(addr uint32, s sil.State) error { return nil }

// Receive is reserved, currently unimplemented. It never yields a state.
func (m *Memory) Receive(addr uint32) (sil.State, bool, error) { return sil.State{}, false, nil }

// Entangle is reserved, currently unimplemented.
func (m *Memory) Entangle(reg uint8, node uint32, v sil.ByteSil) error { return nil }

// Prefetch is a hint and has no effect.
func (m *Memory) Prefetch(addr uint32) error { return nil }

// Heap returns the live heap states.
func (m *Memory) Heap() []sil.State { return m.heap }

func (m *Memory) setHeap(states []sil.State) error {
	if len(states) > m.heapCap {
		return fmt.Errorf("%w: %d states, capacity %d", ErrHeapOverflow, len(states), m.heapCap)
	}
	m.heap = append(m.heap[:0], states...)
	return nil
}

// StackDepth returns the number of values on the value stack.
func (m *Memory) StackDepth() int { return len(m.values) }

// Reset clears stacks, ports and the output log and rebuilds the heap from
// the data section. Code, data and replay input are kept; the replay cursor
// is rewound.
func (m *Memory) Reset() {
	m.heap = m.heap[:0]
	_ = m.chunkData()
	m.values = m.values[:0]
	m.frames = m.frames[:0]
	m.output = m.output[:0]
	m.inputPos = 0
	m.resetIO()
}

// Stats reports memory usage.
func (m *Memory) Stats() MemoryStats {
	return MemoryStats{
		CodeSize:     len(m.code),
		HeapUsed:     len(m.heap),
		HeapCapacity: m.heapCap,
		StackUsed:    len(m.values),
		CallDepth:    len(m.frames),
	}
}
