package predict

import (
	"math"
	"time"

	"github.com/danielpatrickdp/adaptive-input/internal/input"
	"github.com/danielpatrickdp/adaptive-input/internal/pattern"
	"github.com/danielpatrickdp/adaptive-input/internal/phenotype"
	"github.com/danielpatrickdp/adaptive-input/internal/promote"
)

// #region types
const (
	// MaxSteps bounds the forecast horizon so a Forecast is a fixed-size value.
	MaxSteps = 16
	// ResidualWindow is the number of one-step residuals remembered.
	ResidualWindow = 32
)

// PredictedFrame is the forecast for one future sample.
type PredictedFrame struct {
	Offset     time.Duration // ahead of the current frame
	Values     [input.NumAxes]float64
	Output     [input.NumAxes]float64 // Values shaped by the phenotype sensitivity
	Confidence float64                // [0, 1]
	Coherence  float64                // [0, 1]
}

// Forecast is the set of predicted frames for one control cycle.
type Forecast struct {
	At    time.Duration
	Steps [MaxSteps]PredictedFrame
	N     int
}

// Next returns the nearest predicted frame.
func (f Forecast) Next() PredictedFrame { return f.Steps[0] }

// Frames returns the used steps.
func (f *Forecast) Frames() []PredictedFrame { return f.Steps[:f.N] }

// Config holds forecasting constants.
type Config struct {
	Horizon             int           // steps forecast when no latency is reported
	Step                time.Duration // spacing between steps, one sample period
	Gain                float64       // scale applied to the rate/accel extrapolation
	ResidualSensitivity float64       // confidence = 1/(1 + k*rms residual)
	StepDecay           float64       // per-step confidence multiplier
	CoherenceWindow     time.Duration // transitions younger than this reduce coherence
}

// DefaultConfig returns constants for a 1 kHz loop.
func DefaultConfig() Config {
	return Config{
		Horizon:             4,
		Step:                time.Millisecond,
		Gain:                1.0,
		ResidualSensitivity: 20,
		StepDecay:           0.9,
		CoherenceWindow:     250 * time.Millisecond,
	}
}

// #endregion types

// #region predictor
// Predictor produces confidence-scored forecasts and tracks how well its
// previous one-step forecasts matched what was later observed.
type Predictor struct {
	config Config

	residuals [ResidualWindow]float64 // squared normalised residuals
	head      int
	count     int
	sumSq     float64

	samples int
	prevAt  time.Duration
	prevSet promote.Set
	prevOK  [input.NumAxes]bool
}

// New creates a predictor.
func New(config Config) *Predictor {
	if config.Horizon < 1 {
		config.Horizon = 1
	}
	if config.Horizon > MaxSteps {
		config.Horizon = MaxSteps
	}
	if config.Step <= 0 {
		config.Step = time.Millisecond
	}
	return &Predictor{config: config}
}

// Reset forgets every residual and sample.
func (p *Predictor) Reset() {
	*p = Predictor{config: p.config}
}

// Samples returns the number of frames observed.
func (p *Predictor) Samples() int { return p.samples }

// Residual returns the RMS of the remembered normalised residuals.
func (p *Predictor) Residual() float64 {
	if p.count == 0 {
		return 0
	}
	return math.Sqrt(math.Max(p.sumSq, 0) / float64(p.count))
}

// Forecast scores the previous forecast against frame, then extrapolates
// every axis: promoted axes use their rate and acceleration, scalar axes
// hold their last value. With fewer than two prior samples every step holds
// the current value with confidence 0.
func (p *Predictor) Forecast(frame input.Frame, summary pattern.Summary, pheno *phenotype.Phenotype, axes promote.Set) Forecast {
	var cur [input.NumAxes]float64
	var ok [input.NumAxes]bool
	for _, a := range input.Axes() {
		if v, valid := frame.Axis(a); valid {
			cur[a], ok[a] = v, true
		} else if axes[a].Samples > 0 {
			cur[a] = axes[a].Value
		}
	}

	advanced := p.samples == 0 || frame.At > p.prevAt
	if advanced && p.samples > 0 {
		p.score(frame.At-p.prevAt, cur, ok)
	}
	if advanced {
		p.samples++
		p.prevAt = frame.At
		p.prevSet = axes
		p.prevOK = ok
		for a := range cur {
			p.prevSet[a].Value = cur[a]
		}
	}

	out := Forecast{At: frame.At, N: p.steps(frame)}
	coherence := p.coherence(frame.At, axes)
	base := 0.0
	if p.warm() {
		base = p.residualTerm() * clamp01(summary.Consistency) * coherence
	}

	conf := clamp01(base)
	for k := 0; k < out.N; k++ {
		h := time.Duration(k+1) * p.config.Step
		step := PredictedFrame{Offset: h, Confidence: conf, Coherence: coherence}
		for _, a := range input.Axes() {
			v := cur[a]
			if p.warm() && axes[a].Mode == promote.Promoted {
				v = p.extrapolate(a, cur[a], axes[a], h)
			}
			step.Values[a] = v
			if pheno != nil {
				step.Output[a] = pheno.Shape(a, v)
			} else {
				step.Output[a] = v
			}
		}
		out.Steps[k] = step
		conf *= p.config.StepDecay
	}
	return out
}

// #endregion predictor

// #region scoring
// score compares the one-step extrapolation made at the previous frame,
// evaluated at the actual elapsed time, against the observed values.
func (p *Predictor) score(elapsed time.Duration, cur [input.NumAxes]float64, ok [input.NumAxes]bool) {
	var sum float64
	var n int
	for _, a := range input.Axes() {
		if !ok[a] || !p.prevOK[a] {
			continue
		}
		prev := p.prevSet[a]
		pred := prev.Value
		if p.warm() && prev.Mode == promote.Promoted {
			pred = p.extrapolate(a, prev.Value, prev, elapsed)
		}
		span := input.AxisRange(a).Span()
		if span <= 0 {
			continue
		}
		sum += math.Abs(cur[a]-pred) / span
		n++
	}
	if n == 0 {
		return
	}
	r := sum / float64(n)
	r *= r

	if p.count == ResidualWindow {
		p.sumSq -= p.residuals[p.head]
		p.residuals[p.head] = r
		p.head = (p.head + 1) % ResidualWindow
	} else {
		p.residuals[(p.head+p.count)%ResidualWindow] = r
		p.count++
	}
	p.sumSq += r
}

// warm reports whether at least two samples precede the latest one.
func (p *Predictor) warm() bool { return p.samples > 2 }

func (p *Predictor) residualTerm() float64 {
	return 1 / (1 + p.config.ResidualSensitivity*p.Residual())
}

// coherence is 1 when no axis changed mode within CoherenceWindow and
// falls linearly to 0 for a transition at the current instant.
func (p *Predictor) coherence(at time.Duration, axes promote.Set) float64 {
	window := p.config.CoherenceWindow
	if window <= 0 {
		return 1
	}
	c := 1.0
	for _, s := range axes {
		if s.Transitions == 0 {
			continue
		}
		age := at - s.LastTransition
		if age < 0 {
			age = 0
		}
		if age < window {
			c = math.Min(c, float64(age)/float64(window))
		}
	}
	return c
}

// #endregion scoring

// #region helpers
func (p *Predictor) extrapolate(a input.Axis, x float64, s promote.AxisState, h time.Duration) float64 {
	t := h.Seconds()
	v := x + p.config.Gain*(s.Rate*t+0.5*s.Accel*t*t)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return x
	}
	return input.AxisRange(a).Clamp(v)
}

// steps sizes the forecast to cover the reported transport latency.
func (p *Predictor) steps(frame input.Frame) int {
	if frame.Latency <= 0 {
		return p.config.Horizon
	}
	n := int((frame.Latency + p.config.Step - 1) / p.config.Step)
	if n < 1 {
		n = 1
	}
	if n > MaxSteps {
		n = MaxSteps
	}
	return n
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// #endregion helpers
