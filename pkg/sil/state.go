package sil

import (
	"encoding/hex"
	"strings"
)

// NumLayers is the number of ByteSil layers in a State.
const NumLayers = 16

// State is a 16-layer vector of ByteSil values. It is a value type: copies
// never alias, so every operation returns a fresh State.
//
// Layers are grouped into semantic bands that the VM treats as opaque:
//
//	L0-L4  perception
//	L5-L7  processing
//	L8-LA  interaction
//	LB-LC  emergence
//	LD-LF  meta
type State [NumLayers]ByteSil

// CollapseStrategy selects how Collapse reduces a State to one ByteSil.
type CollapseStrategy uint8

const (
	CollapseXor CollapseStrategy = iota
	CollapseSum
	CollapseFirst
	CollapseLast
)

// Vacuum returns a State with every layer Null.
func Vacuum() State {
	return fill(Null)
}

// Neutral returns a State with every layer One.
func Neutral() State {
	return fill(One)
}

// Maximum returns a State with every layer Max.
func Maximum() State {
	return fill(Max)
}

func fill(v ByteSil) State {
	var s State
	for i := range s {
		s[i] = v
	}
	return s
}

// StateFromBytes unpacks 16 packed bytes, one per layer.
func StateFromBytes(b [NumLayers]byte) State {
	var s State
	for i, v := range b {
		s[i] = FromByte(v)
	}
	return s
}

// StateFromSlice unpacks up to 16 bytes; missing layers are Null.
func StateFromSlice(b []byte) State {
	s := Vacuum()
	for i := 0; i < len(b) && i < NumLayers; i++ {
		s[i] = FromByte(b[i])
	}
	return s
}

// Bytes packs the State into 16 bytes.
func (s State) Bytes() [NumLayers]byte {
	var b [NumLayers]byte
	for i, l := range s {
		b[i] = l.Byte()
	}
	return b
}

// Layer returns layer i (masked to 0-15).
func (s State) Layer(i int) ByteSil {
	return s[i&0x0F]
}

// WithLayer returns a copy of s with layer i replaced.
func (s State) WithLayer(i int, v ByteSil) State {
	s[i&0x0F] = v
	return s
}

func (s State) Perception() [5]ByteSil  { return [5]ByteSil{s[0], s[1], s[2], s[3], s[4]} }
func (s State) Processing() [3]ByteSil  { return [3]ByteSil{s[5], s[6], s[7]} }
func (s State) Interaction() [3]ByteSil { return [3]ByteSil{s[8], s[9], s[10]} }
func (s State) Emergence() [2]ByteSil   { return [2]ByteSil{s[11], s[12]} }
func (s State) Meta() [3]ByteSil        { return [3]ByteSil{s[13], s[14], s[15]} }

// Tensor multiplies layer by layer.
func (s State) Tensor(o State) State {
	for i := range s {
		s[i] = s[i].Mul(o[i])
	}
	return s
}

// Xor combines layer by layer.
func (s State) Xor(o State) State {
	for i := range s {
		s[i] = s[i].Xor(o[i])
	}
	return s
}

// Project keeps the layers whose bit is set in mask and nulls the rest.
func (s State) Project(mask uint16) State {
	for i := range s {
		if mask&(1<<i) == 0 {
			s[i] = Null
		}
	}
	return s
}

// Collapse reduces the State to a single ByteSil.
func (s State) Collapse(strategy CollapseStrategy) ByteSil {
	switch strategy {
	case CollapseSum:
		var z complex128
		for _, l := range s {
			z += l.Complex()
		}
		return FromComplex(z)
	case CollapseFirst:
		return s[0]
	case CollapseLast:
		return s[NumLayers-1]
	default:
		acc := Null
		for _, l := range s {
			acc = acc.Xor(l)
		}
		return acc
	}
}

// Hash returns a 128-bit fingerprint: layer i occupies byte i.
func (s State) Hash() [NumLayers]byte {
	return s.Bytes()
}

// Equal reports whether two states are layer-for-layer identical.
func (s State) Equal(o State) bool {
	return s == o
}

func (s State) String() string {
	b := s.Bytes()
	var sb strings.Builder
	sb.WriteString("SilState[")
	sb.WriteString(hex.EncodeToString(b[:]))
	sb.WriteString("]")
	return sb.String()
}
