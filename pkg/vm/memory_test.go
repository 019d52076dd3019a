package vm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akhildatla/vsp/pkg/sil"
)

func TestSegmentOf(t *testing.T) {
	tests := []struct {
		addr uint32
		want Segment
	}{
		{0x0000_0000, SegCode},
		{0x0FFF_FFFF, SegCode},
		{0x1000_0000, SegStateHeap},
		{0x2000_0010, SegCallStack},
		{0x3000_0000, SegTransformTable},
		{0xEFFF_FFFF, SegTransformTable},
		{0xF000_0000, SegIOMapped},
		{0xFFFF_FFFF, SegIOMapped},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SegmentOf(tt.addr), "0x%08X", tt.addr)
	}
}

func TestMemory_CodeIsReadOnly(t *testing.T) {
	m := NewMemory(4, 4)
	m.LoadCode([]byte{0x01})

	err := m.StoreByteSil(CodeBase, sil.One)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrWriteToReadOnly))

	var ae *AddressError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, CodeBase, ae.Addr)
	assert.Equal(t, "store", ae.Op)
}

func TestMemory_CodeReadsData(t *testing.T) {
	m := NewMemory(4, 4)
	require.NoError(t, m.LoadData([]byte{sil.I.Byte(), 0x7F}))

	v, err := m.LoadByteSil(CodeBase)
	require.NoError(t, err)
	assert.Equal(t, sil.I, v)

	_, err = m.LoadByteSil(CodeBase + 2)
	assert.True(t, errors.Is(err, ErrAddressOutOfBounds))
}

func TestMemory_HeapCapacity(t *testing.T) {
	m := NewMemory(2, 4)

	last := StateHeapBase + 2*sil.NumLayers - 1
	require.NoError(t, m.StoreByteSil(last, sil.Max))
	assert.Len(t, m.Heap(), 2)

	// Growth fills with neutral states.
	v, err := m.LoadByteSil(StateHeapBase)
	require.NoError(t, err)
	assert.Equal(t, sil.One, v)

	err = m.StoreByteSil(last+1, sil.Max)
	assert.True(t, errors.Is(err, ErrHeapOverflow))
	assert.Len(t, m.Heap(), 2)
}

func TestMemory_DataChunking(t *testing.T) {
	m := NewMemory(4, 4)
	data := make([]byte, 20)
	for i := range data {
		data[i] = sil.One.Byte()
	}
	require.NoError(t, m.LoadData(data))
	require.Len(t, m.Heap(), 2)

	// The partial second chunk is padded with Null.
	st, err := m.LoadState(StateHeapBase + sil.NumLayers)
	require.NoError(t, err)
	assert.Equal(t, sil.One, st[3])
	assert.Equal(t, sil.Null, st[4])

	small := NewMemory(1, 4)
	assert.True(t, errors.Is(small.LoadData(data), ErrHeapOverflow))
}

func TestMemory_Segments(t *testing.T) {
	m := NewMemory(4, 4)

	require.NoError(t, m.StoreByteSil(IOMappedBase+3, sil.NegI))
	v, err := m.IORead(3)
	require.NoError(t, err)
	assert.Equal(t, sil.NegI, v)

	_, err = m.LoadByteSil(IOMappedBase + NumIOPorts)
	assert.True(t, errors.Is(err, ErrAddressOutOfBounds))

	_, err = m.LoadByteSil(CallStackBase)
	assert.True(t, errors.Is(err, ErrInvalidSegment))
	assert.True(t, errors.Is(m.StoreByteSil(TransformTableBase, sil.One), ErrInvalidSegment))

	_, err = m.IORead(NumIOPorts)
	assert.True(t, errors.Is(err, ErrInvalidPort))
}

func TestMemory_Stacks(t *testing.T) {
	m := NewMemory(4, 1)

	_, err := m.PopValue()
	assert.True(t, errors.Is(err, ErrStackUnderflow))

	for i := 0; i < sil.NumLayers; i++ {
		require.NoError(t, m.PushValue(sil.One))
	}
	assert.True(t, errors.Is(m.PushValue(sil.One), ErrStackOverflow))
	assert.Equal(t, sil.NumLayers, m.StackDepth())

	require.NoError(t, m.PushFrame(Frame{ReturnAddr: 7}))
	assert.True(t, errors.Is(m.PushFrame(Frame{}), ErrStackOverflow))
	f, err := m.PopFrame()
	require.NoError(t, err)
	assert.Equal(t, uint32(7), f.ReturnAddr)
	_, err = m.PopFrame()
	assert.True(t, errors.Is(err, ErrStackUnderflow))
}

func TestMemory_SenseReplay(t *testing.T) {
	m := NewMemory(4, 4)
	m.SetInput([]byte{sil.One.Byte(), sil.I.Byte(), sil.Max.Byte()})

	for _, want := range []sil.ByteSil{sil.One, sil.I, sil.Max} {
		v, eof, err := m.Sense(0)
		require.NoError(t, err)
		assert.False(t, eof)
		assert.Equal(t, want, v)
	}
	v, eof, err := m.Sense(0)
	require.NoError(t, err)
	assert.True(t, eof)
	assert.Equal(t, sil.Null, v)

	m.Reset()
	v, eof, _ = m.Sense(0)
	assert.False(t, eof)
	assert.Equal(t, sil.One, v)
}

func TestMemory_SensorsActuators(t *testing.T) {
	m := NewMemory(4, 4)

	require.NoError(t, m.SetSensor(2, sil.I))
	v, eof, err := m.Sense(2)
	require.NoError(t, err)
	assert.False(t, eof)
	assert.Equal(t, sil.I, v)

	_, _, err = m.Sense(NumSensors)
	assert.True(t, errors.Is(err, ErrInvalidSensor))

	require.NoError(t, m.Actuate(1, sil.Max))
	got, err := m.Actuator(1)
	require.NoError(t, err)
	assert.Equal(t, sil.Max, got)
	assert.Equal(t, []sil.ByteSil{sil.Max}, m.Output())
	assert.True(t, errors.Is(m.Actuate(-1, sil.Max), ErrInvalidActuator))

	m.ClearOutput()
	assert.Empty(t, m.Output())
}

func TestMemory_LoadU32(t *testing.T) {
	m := NewMemory(4, 4)
	require.NoError(t, m.LoadData([]byte{0x02, 0, 0, 0, 0x10, 0, 0, 0, 0x20, 0, 0, 0}))

	n, err := m.LoadU32(CodeBase)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), n)

	ids, err := m.LoadPipeline(CodeBase)
	require.NoError(t, err)
	assert.Equal(t, []uint32{0x10, 0x20}, ids)

	_, err = m.LoadU32(CodeBase + 10)
	assert.True(t, errors.Is(err, ErrAddressOutOfBounds))
}

func TestMemory_Fetch(t *testing.T) {
	m := NewMemory(4, 4)
	m.LoadCode([]byte{0x21, 0x00, 0x02, 0x01})

	b, err := m.Fetch(3)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01}, b)

	_, err = m.Fetch(4)
	assert.True(t, errors.Is(err, ErrAddressOutOfBounds))

	st := m.Stats()
	assert.Equal(t, 4, st.CodeSize)
	assert.Equal(t, 4, st.HeapCapacity)
}
