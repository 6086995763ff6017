package sim

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/danielpatrickdp/adaptive-input/internal/input"
)

// #region profile
// Profile parameterises a synthetic driver on a looping track: sinusoidal
// steering, a corner cue every CornerPeriod, and a brake application
// BrakeLag after each cue (negative lag brakes before the cue).
type Profile struct {
	Name string

	SteerAmplitude float64 // [0, 1]
	SteerFrequency float64 // Hz
	SteerNoise     float64 // per-frame gaussian noise on steering

	CornerPeriod time.Duration
	CornerOffset time.Duration // first cue
	BrakeLag     time.Duration
	BrakeLevel   float64
	BrakeRamp    time.Duration
	BrakeHold    time.Duration
	BrakeRelease time.Duration

	Throttle float64 // cruising throttle, cut while braking

	Grip        float64 // mean grip pressure; 0 leaves pressure sensors absent
	Conductance float64 // 0 leaves the conductance channel absent
	Latency     time.Duration
	Jitter      time.Duration // uniform timestamp jitter
}

// Aggressive is fast, sweeping steering with late braking and a firm grip.
func Aggressive() Profile {
	return Profile{
		Name:           "aggressive",
		SteerAmplitude: 0.9,
		SteerFrequency: 1.2,
		CornerPeriod:   2 * time.Second,
		CornerOffset:   time.Second,
		BrakeLag:       250 * time.Millisecond,
		BrakeLevel:     0.9,
		BrakeRamp:      20 * time.Millisecond,
		BrakeHold:      400 * time.Millisecond,
		BrakeRelease:   100 * time.Millisecond,
		Throttle:       0.95,
		Grip:           0.8,
		Conductance:    7,
	}
}

// Smooth is slow, low-variance steering with early, progressive braking.
func Smooth() Profile {
	return Profile{
		Name:           "smooth",
		SteerAmplitude: 0.3,
		SteerFrequency: 0.2,
		CornerPeriod:   2 * time.Second,
		CornerOffset:   time.Second,
		BrakeLag:       -300 * time.Millisecond,
		BrakeLevel:     0.5,
		BrakeRamp:      200 * time.Millisecond,
		BrakeHold:      300 * time.Millisecond,
		BrakeRelease:   300 * time.Millisecond,
		Throttle:       0.6,
		Grip:           0.4,
		Conductance:    4,
	}
}

// Idle holds the controller still: every statistic stays below the
// classification thresholds.
func Idle() Profile {
	return Profile{Name: "idle"}
}

// ByName returns a built-in profile.
func ByName(name string) (Profile, error) {
	switch name {
	case "aggressive":
		return Aggressive(), nil
	case "smooth":
		return Smooth(), nil
	case "idle":
		return Idle(), nil
	}
	return Profile{}, fmt.Errorf("unknown profile %q", name)
}

// #endregion profile

// #region generator
// Generator emits frames for a profile at a fixed rate. Output is
// deterministic for a given seed.
type Generator struct {
	profile Profile
	period  time.Duration
	rng     *rand.Rand
	n       int64
}

// NewGenerator creates a generator sampling at rateHz.
func NewGenerator(p Profile, rateHz float64, seed int64) *Generator {
	if rateHz <= 0 {
		rateHz = 1000
	}
	return &Generator{
		profile: p,
		period:  time.Duration(float64(time.Second) / rateHz),
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// Next returns the next frame.
func (g *Generator) Next() input.Frame {
	p := g.profile
	nominal := time.Duration(g.n) * g.period
	g.n++
	at := nominal
	if p.Jitter > 0 {
		at += time.Duration(g.rng.Int63n(int64(p.Jitter)))
	}
	t := nominal.Seconds()

	f := input.Frame{
		At:        at,
		Latency:   p.Latency,
		Frequency: 1 / g.period.Seconds(),
	}
	f.Steering = p.SteerAmplitude * math.Sin(2*math.Pi*p.SteerFrequency*t)
	if p.SteerNoise > 0 {
		f.Steering += p.SteerNoise * g.rng.NormFloat64()
	}

	f.Brake, f.CornerEntry = g.braking(nominal)
	if f.Brake == 0 {
		f.Throttle = p.Throttle
	}

	if p.Grip > 0 {
		squeeze := f.Brake * 0.1
		for i := range f.Pressure {
			f.Pressure[i] = input.Some(p.Grip + squeeze)
		}
	}
	if p.Conductance > 0 {
		f.Conductance = input.Some(p.Conductance)
	}
	f.Orientation[input.Yaw] = input.Some(0.3 * f.Steering)
	f.Proximity[input.ProximityLeft] = input.Some(1 - 0.5*f.Steering)
	f.Proximity[input.ProximityRight] = input.Some(1 + 0.5*f.Steering)
	return f.Normalize()
}

// Take returns the next n frames.
func (g *Generator) Take(n int) []input.Frame {
	out := make([]input.Frame, n)
	for i := range out {
		out[i] = g.Next()
	}
	return out
}

// braking returns the brake level at t and whether t is a corner cue.
func (g *Generator) braking(t time.Duration) (float64, bool) {
	p := g.profile
	if p.CornerPeriod <= 0 || p.BrakeLevel <= 0 {
		return 0, false
	}
	cue := false
	if t >= p.CornerOffset {
		cue = (t-p.CornerOffset)%p.CornerPeriod < g.period
	}

	// position relative to the brake onset of the nearest corner
	rel := t - p.CornerOffset - p.BrakeLag
	rel = ((rel % p.CornerPeriod) + p.CornerPeriod) % p.CornerPeriod
	if t < p.CornerOffset+p.BrakeLag {
		return 0, cue
	}
	switch {
	case rel < p.BrakeRamp:
		return p.BrakeLevel * float64(rel+g.period) / float64(p.BrakeRamp+g.period), cue
	case rel < p.BrakeRamp+p.BrakeHold:
		return p.BrakeLevel, cue
	case rel < p.BrakeRamp+p.BrakeHold+p.BrakeRelease:
		left := p.BrakeRamp + p.BrakeHold + p.BrakeRelease - rel
		return p.BrakeLevel * float64(left) / float64(p.BrakeRelease), cue
	}
	return 0, cue
}

// #endregion generator
