package haptics

import (
	"fmt"
	"math"
	"time"

	"github.com/danielpatrickdp/adaptive-input/internal/phenotype"
)

// #region budget
// Actuator describes the physical limits of a feedback motor.
type Actuator struct {
	MaxForce   float64 // rated peak force, N
	SafeLimit  float64 // never exceed, N
	Efficiency float64 // fraction of MaxForce reaching the hand, (0, 1]
}

// DefaultActuator returns a small handheld rumble motor.
func DefaultActuator() Actuator {
	return Actuator{MaxForce: 5, SafeLimit: 3, Efficiency: 0.8}
}

// Validate checks the actuator limits.
func (a Actuator) Validate() error {
	if !(a.MaxForce > 0) || !(a.SafeLimit > 0) {
		return fmt.Errorf("actuator limits must be > 0, got max=%v safe=%v", a.MaxForce, a.SafeLimit)
	}
	if !(a.Efficiency > 0 && a.Efficiency <= 1) {
		return fmt.Errorf("actuator efficiency must be in (0, 1], got %v", a.Efficiency)
	}
	return nil
}

// Budget returns the force actually delivered for a desired magnitude:
// the smallest of the request, the safety limit and what the actuator can
// push through its losses. Non-finite or negative requests deliver 0.
func (a Actuator) Budget(desired float64) float64 {
	if math.IsNaN(desired) || desired <= 0 {
		return 0
	}
	return min(desired, a.SafeLimit, a.Efficiency*a.MaxForce)
}

// #endregion budget

// #region curve
// Curve is the haptic response curve carried by a phenotype.
type Curve struct {
	Gain      float64
	Linearity float64 // exponent, 1 is linear
	Deadzone  float64
	Damping   float64 // 0 passes the target through, 1 holds the previous output
}

// CurveOf reads the haptic coefficients of p.
func CurveOf(p *phenotype.Phenotype) Curve {
	return Curve{
		Gain:      p.Haptic[phenotype.HapticGain],
		Linearity: p.Haptic[phenotype.HapticLinearity],
		Deadzone:  p.Haptic[phenotype.HapticDeadzone],
		Damping:   p.Haptic[phenotype.HapticDamping],
	}
}

// Response maps a control deflection in [-1, 1] to a signed feedback
// level in [-Gain, Gain]. Deflections inside the deadzone produce 0; the
// remaining travel is rescaled to [0, 1] before the exponent.
func (c Curve) Response(x float64) float64 {
	if math.IsNaN(x) {
		return 0
	}
	mag := math.Min(math.Abs(x), 1)
	if mag <= c.Deadzone || c.Deadzone >= 1 {
		return 0
	}
	u := (mag - c.Deadzone) / (1 - c.Deadzone)
	return math.Copysign(c.Gain*math.Pow(u, c.Linearity), x)
}

// #endregion curve

// #region renderer
// Renderer turns per-frame deflections into damped, budgeted forces. It is
// single-goroutine and allocation free.
type Renderer struct {
	act  Actuator
	prev float64
	at   time.Duration
	init bool
}

// NewRenderer returns a renderer for a.
func NewRenderer(a Actuator) *Renderer {
	return &Renderer{act: a}
}

// Reset clears the damping state.
func (r *Renderer) Reset() {
	r.prev, r.at, r.init = 0, 0, false
}

// Render returns the signed force for deflection x at time at under the
// curve of p. Damping is applied per millisecond of elapsed time so the
// feel does not depend on the sampling rate.
func (r *Renderer) Render(p *phenotype.Phenotype, x float64, at time.Duration) float64 {
	c := CurveOf(p)
	target := c.Response(x) * r.act.MaxForce
	out := target
	if r.init && at > r.at {
		ms := float64(at-r.at) / float64(time.Millisecond)
		keep := math.Pow(clamp(c.Damping, 0, 1), ms)
		out = r.prev*keep + target*(1-keep)
	}
	out = math.Copysign(r.act.Budget(math.Abs(out)), out)
	r.prev, r.at, r.init = out, at, true
	return out
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// #endregion renderer
