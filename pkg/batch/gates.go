package batch

import (
	"fmt"
	"math"
	"math/cmplx"
)

// Amplitudes is a two-state amplitude pair α|0⟩ + β|1⟩.
type Amplitudes struct {
	Alpha complex64
	Beta  complex64
}

var invSqrt2 = float32(1 / math.Sqrt2)

// Basis and superposition states.
var (
	QubitZero  = Amplitudes{Alpha: 1}
	QubitOne   = Amplitudes{Beta: 1}
	QubitPlus  = Amplitudes{Alpha: complex(invSqrt2, 0), Beta: complex(invSqrt2, 0)}
	QubitMinus = Amplitudes{Alpha: complex(invSqrt2, 0), Beta: complex(-invSqrt2, 0)}
)

func abs2(c complex64) float32 {
	return real(c)*real(c) + imag(c)*imag(c)
}

// ProbZero returns |α|².
func (a Amplitudes) ProbZero() float32 { return abs2(a.Alpha) }

// ProbOne returns |β|².
func (a Amplitudes) ProbOne() float32 { return abs2(a.Beta) }

// IsNormalized reports whether |α|²+|β|² is within eps of one.
func (a Amplitudes) IsNormalized(eps float32) bool {
	return math.Abs(float64(a.ProbZero()+a.ProbOne()-1)) < float64(eps)
}

// Gate identifies a single-qubit gate.
type Gate uint8

const (
	GateH Gate = iota
	GateX
	GateY
	GateZ
	GateRX
	GateRY
	GateRZ
	GatePhase
	GateS
	GateT
	GateCustom Gate = 255
)

var gateNames = map[Gate]string{
	GateH:      "H",
	GateX:      "X",
	GateY:      "Y",
	GateZ:      "Z",
	GateRX:     "RX",
	GateRY:     "RY",
	GateRZ:     "RZ",
	GatePhase:  "PHASE",
	GateS:      "S",
	GateT:      "T",
	GateCustom: "CUSTOM",
}

func (g Gate) String() string {
	if n, ok := gateNames[g]; ok {
		return n
	}
	return fmt.Sprintf("Gate(%d)", uint8(g))
}

// Matrix is a 2×2 complex gate matrix in row-major order.
type Matrix [2][2]complex64

// Identity is the identity gate.
var Identity = Matrix{{1, 0}, {0, 1}}

// Apply multiplies the matrix into a.
func (m Matrix) Apply(a Amplitudes) Amplitudes {
	return Amplitudes{
		Alpha: m[0][0]*a.Alpha + m[0][1]*a.Beta,
		Beta:  m[1][0]*a.Alpha + m[1][1]*a.Beta,
	}
}

func expi(phi float64) complex64 {
	return complex64(cmplx.Exp(complex(0, phi)))
}

// MatrixFor builds the matrix of a named gate. Rotation gates and PHASE
// take their angle in radians from theta.
func MatrixFor(g Gate, theta float32) (Matrix, error) {
	h := complex(invSqrt2, 0)
	half := float64(theta) / 2
	c, s := float32(math.Cos(half)), float32(math.Sin(half))
	switch g {
	case GateH:
		return Matrix{{h, h}, {h, -h}}, nil
	case GateX:
		return Matrix{{0, 1}, {1, 0}}, nil
	case GateY:
		return Matrix{{0, -1i}, {1i, 0}}, nil
	case GateZ:
		return Matrix{{1, 0}, {0, -1}}, nil
	case GateRX:
		return Matrix{{complex(c, 0), complex(0, -s)}, {complex(0, -s), complex(c, 0)}}, nil
	case GateRY:
		return Matrix{{complex(c, 0), complex(-s, 0)}, {complex(s, 0), complex(c, 0)}}, nil
	case GateRZ:
		return Matrix{{expi(-half), 0}, {0, expi(half)}}, nil
	case GatePhase:
		return Matrix{{1, 0}, {0, expi(float64(theta))}}, nil
	case GateS:
		return Matrix{{1, 0}, {0, 1i}}, nil
	case GateT:
		return Matrix{{1, 0}, {0, expi(math.Pi / 4)}}, nil
	default:
		return Identity, fmt.Errorf("%w: %s", ErrUnknownGate, g)
	}
}
