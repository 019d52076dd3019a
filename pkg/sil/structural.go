package sil

// FoldOp selects how Fold combines layer i with layer i+8.
type FoldOp uint8

const (
	FoldXor FoldOp = iota
	FoldAdd        // Cartesian addition
	FoldMul        // log-polar multiplication
)

// RotateLayers shifts layers circularly: layer i moves to (i+n) mod 16.
func (s State) RotateLayers(n int) State {
	n = ((n % NumLayers) + NumLayers) % NumLayers
	var out State
	for i, l := range s {
		out[(i+n)%NumLayers] = l
	}
	return out
}

// Fold combines the lower and upper halves pairwise.
func (s State) Fold(op FoldOp) [NumLayers / 2]ByteSil {
	var out [NumLayers / 2]ByteSil
	for i := range out {
		lo, hi := s[i], s[i+NumLayers/2]
		switch op {
		case FoldAdd:
			out[i] = lo.Add(hi)
		case FoldMul:
			out[i] = lo.Mul(hi)
		default:
			out[i] = lo.Xor(hi)
		}
	}
	return out
}

// Unfold rebuilds a State from a folded half and the original upper half.
// XOR reconstructs exactly. MUL reconstructs exactly when no ρ sum
// saturated during Fold. ADD is approximate because of re-quantization.
func Unfold(folded [NumLayers / 2]ByteSil, upper [NumLayers / 2]ByteSil, op FoldOp) State {
	var s State
	for i := range folded {
		hi := upper[i]
		switch op {
		case FoldAdd:
			s[i] = folded[i].Sub(hi)
		case FoldMul:
			s[i] = folded[i].Div(hi)
		default:
			s[i] = folded[i].Xor(hi)
		}
		s[i+NumLayers/2] = hi
	}
	return s
}

// Upper returns layers 8-15.
func (s State) Upper() [NumLayers / 2]ByteSil {
	var out [NumLayers / 2]ByteSil
	copy(out[:], s[NumLayers/2:])
	return out
}

func groupBounds(start, n int) (int, int) {
	if start < 0 {
		start = 0
	}
	end := start + n
	if end > NumLayers {
		end = NumLayers
	}
	return start, end
}

// Spread writes v into layers [start, start+n), clipped to the State.
func (s State) Spread(v ByteSil, start, n int) State {
	start, end := groupBounds(start, n)
	for i := start; i < end; i++ {
		s[i] = v
	}
	return s
}

// Gather multiplies layers [start, start+n) together, starting from One.
func (s State) Gather(start, n int) ByteSil {
	start, end := groupBounds(start, n)
	acc := One
	for i := start; i < end; i++ {
		acc = acc.Mul(s[i])
	}
	return acc
}
