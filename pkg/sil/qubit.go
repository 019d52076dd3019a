package sil

import "math"

// Qubit reads a ByteSil as a single-qubit amplitude pair. The phase index
// sets α = cos(θπ/16) and β = sin(θπ/16); magnitude and phase are carried
// through gates unchanged unless the gate says otherwise.
type Qubit struct {
	Magnitude int8
	Phase     uint8
	Alpha     float32
	Beta      float32
}

const invSqrt2 = float32(0.707107)

// QubitFrom derives the amplitude view of b.
func QubitFrom(b ByteSil) Qubit {
	half := float64(b.Theta) * math.Pi / 16
	return Qubit{
		Magnitude: b.Rho,
		Phase:     b.Theta & 0x0F,
		Alpha:     float32(math.Cos(half)),
		Beta:      float32(math.Sin(half)),
	}
}

// ByteSil drops the amplitudes and returns (magnitude, phase).
func (q Qubit) ByteSil() ByteSil {
	return New(q.Magnitude, q.Phase)
}

// Hadamard applies H.
func (q Qubit) Hadamard() Qubit {
	q.Alpha, q.Beta = invSqrt2*(q.Alpha+q.Beta), invSqrt2*(q.Alpha-q.Beta)
	return q
}

// PauliX swaps the amplitudes.
func (q Qubit) PauliX() Qubit {
	q.Alpha, q.Beta = q.Beta, q.Alpha
	return q
}

// PauliY maps α,β to -β,α and advances the phase by π/2.
func (q Qubit) PauliY() Qubit {
	q.Alpha, q.Beta = -q.Beta, q.Alpha
	q.Phase = (q.Phase + 4) & 0x0F
	return q
}

// PauliZ negates β.
func (q Qubit) PauliZ() Qubit {
	q.Beta = -q.Beta
	return q
}

// Rotate advances the phase by n steps (euclidean modulo 16).
func (q Qubit) Rotate(n int) Qubit {
	q.Phase = wrapTheta(int(q.Phase) + n)
	return q
}

// Collapse measures against r in [0, 1). It returns true for |1⟩.
func (q Qubit) Collapse(r float32) (bool, Qubit) {
	one := r >= q.Alpha*q.Alpha
	if one {
		q.Alpha, q.Beta = 0, 1
	} else {
		q.Alpha, q.Beta = 1, 0
	}
	return one, q
}

// Normalize rescales so that α² + β² = 1. A zero vector becomes |0⟩ at One.
func (q Qubit) Normalize() Qubit {
	n := float32(math.Sqrt(float64(q.Alpha*q.Alpha + q.Beta*q.Beta)))
	if n < 1.1920929e-07 {
		return Qubit{Alpha: 1}
	}
	q.Alpha /= n
	q.Beta /= n
	return q
}

// ProbZero is α².
func (q Qubit) ProbZero() float32 { return q.Alpha * q.Alpha }

// ProbOne is β².
func (q Qubit) ProbOne() float32 { return q.Beta * q.Beta }
