package batch

import (
	"math"

	"github.com/akhildatla/vsp/pkg/sil"
)

// Epsilon is the central-difference step used by ComputeGradient.
const Epsilon float32 = 0.01

const (
	rhoMin = float64(sil.RhoMin)
	rhoMax = float64(sil.RhoMax)
	steps  = float64(sil.ThetaSteps)
)

// LayerGradient is the partial derivative of one layer's magnitude with
// respect to ρ and θ.
type LayerGradient struct {
	DRho   float32
	DTheta float32
}

// Magnitude returns the Euclidean norm of the gradient.
func (g LayerGradient) Magnitude() float32 {
	return float32(math.Sqrt(float64(g.DRho*g.DRho + g.DTheta*g.DTheta)))
}

// Gradient holds one LayerGradient per layer.
type Gradient [sil.NumLayers]LayerGradient

// Rho returns the ρ components, the form the VM keeps in its gradient
// register.
func (g Gradient) Rho() [sil.NumLayers]float32 {
	var out [sil.NumLayers]float32
	for i := range g {
		out[i] = g[i].DRho
	}
	return out
}

// magnitude is the layer magnitude model 2^(ρ/4), zero at or below the
// Null exponent. The model is phase-independent, so DTheta is always zero.
func magnitude(rho, _ float32) float32 {
	if rho <= float32(rhoMin) {
		return 0
	}
	return float32(math.Pow(2, float64(rho/4)))
}

// ComputeGradient differentiates every layer of s by central differences.
func ComputeGradient(s sil.State) Gradient {
	var g Gradient
	for i, l := range s {
		rho, theta := float32(l.Rho), float32(l.Theta)

		dRho := (magnitude(rho+Epsilon, theta) - magnitude(rho-Epsilon, theta)) / (2 * Epsilon)

		thetaPlus := float32(math.Mod(float64(theta+Epsilon), steps))
		thetaMinus := theta - Epsilon
		if theta < Epsilon {
			thetaMinus += float32(steps)
		}
		dTheta := (magnitude(rho, thetaPlus) - magnitude(rho, thetaMinus)) / (2 * Epsilon)

		g[i] = LayerGradient{DRho: dRho, DTheta: dTheta}
	}
	return g
}

// ApplyTo takes one descent step of size lr against s.
func (g Gradient) ApplyTo(s sil.State, lr float32) sil.State {
	out := s
	for i := range s {
		rho := float64(float32(s[i].Rho) - lr*g[i].DRho)
		theta := float64(float32(s[i].Theta) - lr*g[i].DTheta)

		rho = math.Round(clamp(rho, rhoMin, rhoMax))
		theta = math.Mod(math.Mod(theta, steps)+steps, steps)
		out[i] = sil.New(int8(rho), uint8(math.Round(theta))%sil.ThetaSteps)
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func clampT(t float32) float32 {
	return float32(clamp(float64(t), 0, 1))
}

func wrapTheta(theta float64) uint8 {
	n := int(math.Round(theta)) % int(sil.ThetaSteps)
	if n < 0 {
		n += int(sil.ThetaSteps)
	}
	return uint8(n)
}

// LerpStates interpolates ρ and θ of every layer linearly. t is clamped to
// [0, 1].
func LerpStates(a, b sil.State, t float32) sil.State {
	t = clampT(t)
	var out sil.State
	for i := range out {
		rho := float64(float32(a[i].Rho)*(1-t) + float32(b[i].Rho)*t)
		theta := float64(float32(a[i].Theta)*(1-t) + float32(b[i].Theta)*t)
		out[i] = sil.New(int8(clamp(math.Round(rho), rhoMin, rhoMax)), wrapTheta(theta))
	}
	return out
}

// SlerpStates interpolates ρ linearly and θ along the shorter arc of the
// phase circle.
func SlerpStates(a, b sil.State, t float32) sil.State {
	t = clampT(t)
	var out sil.State
	for i := range out {
		rho := float64(float32(a[i].Rho)*(1-t) + float32(b[i].Rho)*t)
		theta := slerpAngle(float32(a[i].Theta), float32(b[i].Theta), t)
		out[i] = sil.New(int8(clamp(math.Round(rho), rhoMin, rhoMax)), wrapTheta(float64(theta)))
	}
	return out
}

func slerpAngle(a, b, t float32) float32 {
	delta := b - a
	const full, half = float32(steps), float32(steps / 2)
	if delta > half {
		delta -= full
	} else if delta < -half {
		delta += full
	}
	r := a + delta*t
	if r < 0 {
		r += full
	} else if r >= full {
		r -= full
	}
	return r
}
