package promote

import (
	"log/slog"
	"math"
	"time"

	"github.com/danielpatrickdp/adaptive-input/internal/input"
)

// #region types
// Mode is the per-axis promotion state.
type Mode uint8

const (
	Scalar Mode = iota
	Promoted
)

func (m Mode) String() string {
	if m == Promoted {
		return "promoted"
	}
	return "scalar"
}

// AxisState is the dimensional view of one axis. Rate, Accel and Jerk are
// backward finite differences in units per second, per second², per second³.
type AxisState struct {
	Axis  input.Axis
	Mode  Mode
	Value float64
	Rate  float64
	Accel float64
	Jerk  float64

	At             time.Duration // timestamp of the last accepted sample
	Samples        int
	LastTransition time.Duration
	Transitions    int
}

// Promoted reports whether the axis currently carries its full tuple.
func (s AxisState) Promoted() bool { return s.Mode == Promoted }

// Set is the ActiveDimensionSet: one state per axis.
type Set [input.NumAxes]AxisState

// #endregion types

// #region config
// Config holds per-axis thresholds. Hysteresis must be strictly below
// Promote for every axis.
type Config struct {
	Promote    [input.NumAxes]float64 // |rate| above this promotes
	Hysteresis [input.NumAxes]float64 // |rate| below this for Dwell demotes
	Dwell      time.Duration
	MinDeltaT  time.Duration // smaller steps are treated as no update
}

// DefaultConfig returns thresholds tuned for a 1 kHz primary loop.
func DefaultConfig() Config {
	c := Config{
		Promote: [input.NumAxes]float64{
			input.AxisSteering:   0.8,
			input.AxisThrottle:   1.0,
			input.AxisBraking:    1.0,
			input.AxisDrift:      0.5,
			input.AxisLineChoice: 0.6,
			input.AxisReaction:   0.8,
		},
		Dwell:     150 * time.Millisecond,
		MinDeltaT: 10 * time.Microsecond,
	}
	for i, v := range c.Promote {
		c.Hysteresis[i] = v * 0.5
	}
	return c
}

// #endregion config

// #region promoter
type tracker struct {
	state      AxisState
	below      bool
	belowSince time.Duration
}

// Promoter runs the Scalar <-> Promoted state machine for every axis.
// Each update is constant time and allocation free.
type Promoter struct {
	config Config
	axes   [input.NumAxes]tracker
	logger *slog.Logger
}

// New creates a promoter with every axis in Scalar mode.
func New(config Config, logger *slog.Logger) *Promoter {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Promoter{config: config, logger: logger}
	p.Reset()
	return p
}

// Reset returns every axis to its initial Scalar state.
func (p *Promoter) Reset() {
	for i := range p.axes {
		p.axes[i] = tracker{state: AxisState{Axis: input.Axis(i)}}
	}
}

// States returns the current ActiveDimensionSet.
func (p *Promoter) States() Set {
	var s Set
	for i := range p.axes {
		s[i] = p.axes[i].state
	}
	return s
}

// Observe updates every axis whose channels are available in f.
func (p *Promoter) Observe(f input.Frame) Set {
	for _, a := range input.Axes() {
		if v, ok := f.Axis(a); ok {
			p.Update(a, v, f.At)
		}
	}
	return p.States()
}

// Update folds one timestamped sample into the axis. A non-finite value or
// a step shorter than MinDeltaT (including a clock regression) leaves the
// state untouched.
func (p *Promoter) Update(axis input.Axis, value float64, at time.Duration) AxisState {
	t := &p.axes[axis]
	s := &t.state

	if math.IsNaN(value) || math.IsInf(value, 0) {
		return *s
	}
	if s.Samples == 0 {
		s.Value = value
		s.At = at
		s.Samples = 1
		return *s
	}

	dt := at - s.At
	if dt < p.config.MinDeltaT || dt <= 0 {
		return *s
	}
	sec := dt.Seconds()

	rate := (value - s.Value) / sec
	var accel, jerk float64
	if s.Samples >= 2 {
		accel = (rate - s.Rate) / sec
	}
	if s.Samples >= 3 {
		jerk = (accel - s.Accel) / sec
	}
	s.Value, s.Rate, s.Accel, s.Jerk = value, rate, accel, jerk
	s.At = at
	if s.Samples < math.MaxInt32 {
		s.Samples++
	}

	speed := math.Abs(rate)
	switch s.Mode {
	case Scalar:
		if speed > p.config.Promote[axis] {
			p.transition(t, Promoted, at)
		}
	case Promoted:
		if speed >= p.config.Hysteresis[axis] {
			t.below = false
			break
		}
		if !t.below {
			t.below = true
			t.belowSince = at
		}
		if at-t.belowSince >= p.config.Dwell {
			p.transition(t, Scalar, at)
		}
	}
	return *s
}

func (p *Promoter) transition(t *tracker, to Mode, at time.Duration) {
	t.state.Mode = to
	t.state.LastTransition = at
	t.state.Transitions++
	t.below = false
	p.logger.Debug("axis transition",
		"axis", t.state.Axis.String(),
		"mode", to.String(),
		"rate", t.state.Rate,
		"at", at,
	)
}

// #endregion promoter
