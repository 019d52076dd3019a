package sil

import (
	"encoding/binary"

	"golang.org/x/sys/cpu"
)

// Layer-wide reductions. Two implementations exist: a scalar loop and a
// SWAR path that packs eight ρ lanes and eight θ lanes into uint64 words and
// folds them pairwise. Both produce bit-identical results; the SWAR path is
// only selected on CPUs with wide vector registers.

var swarEnabled = cpu.X86.HasSSE2 || cpu.ARM64.HasASIMD

// XorLayers folds all layers with XOR starting from (0, 0).
func (s State) XorLayers() ByteSil {
	if swarEnabled {
		return xorLayersSWAR(&s)
	}
	return xorLayersScalar(&s)
}

// AndLayers folds all layers with AND starting from layer 0.
func (s State) AndLayers() ByteSil {
	if swarEnabled {
		return andLayersSWAR(&s)
	}
	return andLayersScalar(&s)
}

// OrLayers folds all layers with OR starting from layer 0.
func (s State) OrLayers() ByteSil {
	if swarEnabled {
		return orLayersSWAR(&s)
	}
	return orLayersScalar(&s)
}

func xorLayersScalar(s *State) ByteSil {
	var rho int8
	var theta uint8
	for _, l := range s {
		rho ^= l.Rho
		theta ^= l.Theta
	}
	return ByteSil{Rho: rho, Theta: theta}
}

func andLayersScalar(s *State) ByteSil {
	rho, theta := s[0].Rho, s[0].Theta
	for _, l := range s[1:] {
		rho &= l.Rho
		theta &= l.Theta
	}
	return ByteSil{Rho: rho, Theta: theta}
}

func orLayersScalar(s *State) ByteSil {
	rho, theta := s[0].Rho, s[0].Theta
	for _, l := range s[1:] {
		rho |= l.Rho
		theta |= l.Theta
	}
	return ByteSil{Rho: rho, Theta: theta}
}

// lanes packs layers 0-7 and 8-15 into little-endian words, one byte per
// layer, for ρ and θ separately.
func lanes(s *State) (rhoLo, rhoHi, thLo, thHi uint64) {
	var rb, tb [NumLayers]byte
	for i, l := range s {
		rb[i] = byte(l.Rho)
		tb[i] = l.Theta
	}
	return binary.LittleEndian.Uint64(rb[:8]), binary.LittleEndian.Uint64(rb[8:]),
		binary.LittleEndian.Uint64(tb[:8]), binary.LittleEndian.Uint64(tb[8:])
}

func foldXor(x uint64) byte {
	x ^= x >> 32
	x ^= x >> 16
	x ^= x >> 8
	return byte(x)
}

func foldAnd(x uint64) byte {
	x &= x >> 32
	x &= x >> 16
	x &= x >> 8
	return byte(x)
}

func foldOr(x uint64) byte {
	x |= x >> 32
	x |= x >> 16
	x |= x >> 8
	return byte(x)
}

func xorLayersSWAR(s *State) ByteSil {
	rl, rh, tl, th := lanes(s)
	return ByteSil{Rho: int8(foldXor(rl ^ rh)), Theta: foldXor(tl ^ th)}
}

func andLayersSWAR(s *State) ByteSil {
	rl, rh, tl, th := lanes(s)
	return ByteSil{Rho: int8(foldAnd(rl & rh)), Theta: foldAnd(tl & th)}
}

func orLayersSWAR(s *State) ByteSil {
	rl, rh, tl, th := lanes(s)
	return ByteSil{Rho: int8(foldOr(rl | rh)), Theta: foldOr(tl | th)}
}
