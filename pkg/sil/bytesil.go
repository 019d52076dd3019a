// Package sil implements the Sil data model: ByteSil, a log-polar complex
// scalar packed into one byte, and State, an ordered set of 16 ByteSil layers.
//
// A ByteSil stores a log-magnitude ρ in [-8, 7] and a phase index θ in
// [0, 15], where each phase step is π/8. Multiplication and division are
// integer additions in this representation:
//
//	a := sil.New(2, 3)
//	b := sil.New(1, 1)
//	c := a.Mul(b) // (3, 4)
//
// All operations are pure and never panic.
package sil

import (
	"fmt"
	"math"
	"math/cmplx"
)

const (
	RhoMin     int8  = -8 // log-magnitude of Null
	RhoMax     int8  = 7
	ThetaSteps uint8 = 16 // phase resolution, π/8 per step

	// MagnitudeMin is e^-8, the smallest representable magnitude.
	MagnitudeMin = 0.00033546262790251185
	// MagnitudeMax is e^7.
	MagnitudeMax = 1096.6331584284585
)

// ByteSil is a complex number in log-polar form: e^Rho · e^(i·Theta·π/8).
type ByteSil struct {
	Rho   int8
	Theta uint8
}

// Canonical values.
var (
	Null   = ByteSil{Rho: -8, Theta: 0}
	One    = ByteSil{Rho: 0, Theta: 0}
	I      = ByteSil{Rho: 0, Theta: 4}
	NegOne = ByteSil{Rho: 0, Theta: 8}
	NegI   = ByteSil{Rho: 0, Theta: 12}
	Max    = ByteSil{Rho: 7, Theta: 0}
)

// New returns a ByteSil with ρ clamped to [-8, 7] and θ reduced to 4 bits.
func New(rho int8, theta uint8) ByteSil {
	return ByteSil{Rho: clampRho(int(rho)), Theta: theta & 0x0F}
}

func clampRho(v int) int8 {
	if v < int(RhoMin) {
		return RhoMin
	}
	if v > int(RhoMax) {
		return RhoMax
	}
	return int8(v)
}

func wrapTheta(v int) uint8 {
	return uint8(((v % 16) + 16) % 16)
}

// FromByte unpacks the single-byte encoding produced by Byte.
func FromByte(b byte) ByteSil {
	return ByteSil{Rho: int8(b>>4) + RhoMin, Theta: b & 0x0F}
}

// Byte packs the value as ((ρ+8)<<4)|θ.
func (b ByteSil) Byte() byte {
	return byte(b.Rho-RhoMin)<<4 | b.Theta&0x0F
}

// IsNull reports whether b is the zero element (ρ = -8).
func (b ByteSil) IsNull() bool {
	return b.Rho == RhoMin
}

// Complex converts b to a Cartesian complex number.
func (b ByteSil) Complex() complex128 {
	return cmplx.Rect(math.Exp(float64(b.Rho)), float64(b.Theta)*math.Pi/8)
}

// FromComplex quantizes z. Magnitudes below e^-8 map to Null.
func FromComplex(z complex128) ByteSil {
	r := cmplx.Abs(z)
	if r < MagnitudeMin || math.IsNaN(r) {
		return Null
	}
	rho := math.Max(float64(RhoMin), math.Min(float64(RhoMax), math.Round(math.Log(r))))
	arg := math.Mod(cmplx.Phase(z), 2*math.Pi)
	if arg < 0 {
		arg += 2 * math.Pi
	}
	theta := uint8(math.Round(arg/math.Pi*8)) % 16
	return ByteSil{Rho: int8(rho), Theta: theta}
}

// Polar returns ρ and the phase in degrees (θ · 22.5, truncated).
func (b ByteSil) Polar() (int8, uint16) {
	return b.Rho, uint16(b.Theta) * 225 / 10
}

// Mul multiplies: ρ saturating add, θ add mod 16.
func (b ByteSil) Mul(o ByteSil) ByteSil {
	return ByteSil{
		Rho:   clampRho(int(b.Rho) + int(o.Rho)),
		Theta: (b.Theta + o.Theta) % 16,
	}
}

// Div divides: ρ saturating subtract, θ subtract mod 16.
func (b ByteSil) Div(o ByteSil) ByteSil {
	return ByteSil{
		Rho:   clampRho(int(b.Rho) - int(o.Rho)),
		Theta: wrapTheta(int(b.Theta) - int(o.Theta)),
	}
}

// Pow raises b to the integer power n.
func (b ByteSil) Pow(n int) ByteSil {
	return ByteSil{
		Rho:   clampRho(int(b.Rho) * n),
		Theta: wrapTheta(int(b.Theta) * n),
	}
}

// Root takes the n-th root using truncating division. Root(0) is One.
func (b ByteSil) Root(n int) ByteSil {
	if n == 0 {
		return One
	}
	return ByteSil{
		Rho:   clampRho(int(b.Rho) / n),
		Theta: wrapTheta(int(b.Theta) / n),
	}
}

// Inv returns the multiplicative inverse. Inv(Null) saturates to ρ = 7.
func (b ByteSil) Inv() ByteSil {
	return ByteSil{Rho: clampRho(-int(b.Rho)), Theta: wrapTheta(16 - int(b.Theta))}
}

// Conj negates the phase.
func (b ByteSil) Conj() ByteSil {
	return ByteSil{Rho: b.Rho, Theta: wrapTheta(16 - int(b.Theta))}
}

// Xor combines components bitwise. The result stays in range because ρ
// values in [-8, 7] share their upper five bits.
func (b ByteSil) Xor(o ByteSil) ByteSil {
	return ByteSil{Rho: b.Rho ^ o.Rho, Theta: (b.Theta ^ o.Theta) & 0x0F}
}

// Add adds in the Cartesian domain and re-quantizes.
func (b ByteSil) Add(o ByteSil) ByteSil {
	return FromComplex(b.Complex() + o.Complex())
}

// Sub subtracts in the Cartesian domain and re-quantizes.
func (b ByteSil) Sub(o ByteSil) ByteSil {
	return FromComplex(b.Complex() - o.Complex())
}

// Mag keeps the magnitude and drops the phase.
func (b ByteSil) Mag() ByteSil {
	return ByteSil{Rho: b.Rho}
}

// PhaseOnly keeps the phase on the unit circle.
func (b ByteSil) PhaseOnly() ByteSil {
	return ByteSil{Theta: b.Theta}
}

// Scale adds delta to ρ with saturation.
func (b ByteSil) Scale(delta int8) ByteSil {
	return ByteSil{Rho: clampRho(int(b.Rho) + int(delta)), Theta: b.Theta}
}

// Rotate adds delta steps to θ with wrap-around.
func (b ByteSil) Rotate(delta uint8) ByteSil {
	return ByteSil{Rho: b.Rho, Theta: (b.Theta + delta) % 16}
}

// Norm returns the magnitude index ρ+8 in [0, 15].
func (b ByteSil) Norm() uint8 {
	return uint8(b.Rho - RhoMin)
}

// Phase returns θ.
func (b ByteSil) Phase() uint8 {
	return b.Theta
}

// Mix averages both components.
func (b ByteSil) Mix(o ByteSil) ByteSil {
	return ByteSil{
		Rho:   int8((int(b.Rho) + int(o.Rho)) / 2),
		Theta: uint8((int(b.Theta) + int(o.Theta)) / 2),
	}
}

func (b ByteSil) String() string {
	return fmt.Sprintf("(ρ=%d, θ=%d)", b.Rho, b.Theta)
}
