package predict

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/danielpatrickdp/adaptive-input/internal/input"
	"github.com/danielpatrickdp/adaptive-input/internal/pattern"
	"github.com/danielpatrickdp/adaptive-input/internal/phenotype"
	"github.com/danielpatrickdp/adaptive-input/internal/promote"
)

const ms = time.Millisecond

var steady = pattern.Summary{Consistency: 1}

func TestHoldWithZeroConfidenceBeforeTwoSamples(t *testing.T) {
	p := New(DefaultConfig())
	pheno := phenotype.Default()
	f := input.Frame{At: ms, Steering: 0.3, Throttle: 0.7}

	var axes promote.Set
	axes[input.AxisSteering] = promote.AxisState{Mode: promote.Promoted, Value: 0.3, Rate: 5}
	fc := p.Forecast(f, steady, &pheno, axes)

	if fc.N != DefaultConfig().Horizon {
		t.Fatalf("expected %d steps, got %d", DefaultConfig().Horizon, fc.N)
	}
	for _, s := range fc.Frames() {
		if s.Confidence != 0 {
			t.Fatalf("confidence %f with a single sample", s.Confidence)
		}
		if s.Values[input.AxisSteering] != 0.3 || s.Values[input.AxisThrottle] != 0.7 {
			t.Fatalf("expected last-value hold, got %v", s.Values)
		}
	}

	// second frame: one prior sample is still not enough
	f.At = 2 * ms
	fc = p.Forecast(f, steady, &pheno, axes)
	for _, s := range fc.Frames() {
		if s.Confidence != 0 {
			t.Fatalf("confidence %f with one prior sample", s.Confidence)
		}
		if s.Values[input.AxisSteering] != 0.3 {
			t.Fatalf("expected hold with one prior sample, got %v", s.Values[input.AxisSteering])
		}
	}

	f.At = 3 * ms
	if got := p.Forecast(f, steady, &pheno, axes).Next().Confidence; got <= 0 {
		t.Fatalf("confidence %f with two prior samples, want > 0", got)
	}
}

func TestPerfectHoldIsFullyConfident(t *testing.T) {
	p := New(DefaultConfig())
	for i := 1; i <= 4; i++ {
		fc := p.Forecast(input.Frame{At: time.Duration(i) * ms, Steering: 0.1}, steady, nil, promote.Set{})
		want := 0.0
		if i >= 3 {
			want = 1
		}
		if got := fc.Next().Confidence; math.Abs(got-want) > 1e-12 {
			t.Fatalf("frame %d: confidence %f, want %f", i, got, want)
		}
	}
	if p.Samples() != 4 || p.Residual() != 0 {
		t.Fatalf("samples=%d residual=%f", p.Samples(), p.Residual())
	}
}

func TestConfidenceNonIncreasingWithNoise(t *testing.T) {
	sigmas := []float64{0, 0.005, 0.01, 0.02, 0.05, 0.1, 0.2}
	prev := math.Inf(1)
	for _, sigma := range sigmas {
		p := New(DefaultConfig())
		var conf float64
		for i := 0; i < 200; i++ {
			noise := sigma
			if i%2 == 1 {
				noise = -sigma
			}
			f := input.Frame{At: time.Duration(i+1) * ms, Steering: 0.2 + noise, Throttle: 0.5}
			conf = p.Forecast(f, steady, nil, promote.Set{}).Next().Confidence
		}
		if conf > prev {
			t.Fatalf("sigma %.3f: confidence %f rose above %f", sigma, conf, prev)
		}
		if conf < 0 || conf > 1 {
			t.Fatalf("sigma %.3f: confidence %f out of range", sigma, conf)
		}
		prev = conf
	}
	if prev >= 1 {
		t.Fatal("noisy input should lower confidence")
	}
}

func TestConsistencyScalesConfidence(t *testing.T) {
	run := func(consistency float64) float64 {
		p := New(DefaultConfig())
		var c float64
		for i := 1; i <= 5; i++ {
			c = p.Forecast(input.Frame{At: time.Duration(i) * ms}, pattern.Summary{Consistency: consistency}, nil, promote.Set{}).Next().Confidence
		}
		return c
	}
	if hi, lo := run(1), run(0.5); lo >= hi {
		t.Fatalf("less consistent play should be less confident: %f vs %f", lo, hi)
	}
}

func TestPromotedAxisExtrapolates(t *testing.T) {
	p := New(DefaultConfig())
	var axes promote.Set
	axes[input.AxisSteering] = promote.AxisState{Axis: input.AxisSteering, Mode: promote.Promoted, Rate: 2, Accel: 100, Samples: 3}

	p.Forecast(input.Frame{At: ms, Steering: 0.2}, steady, nil, axes)
	p.Forecast(input.Frame{At: 2 * ms, Steering: 0.2}, steady, nil, axes)
	fc := p.Forecast(input.Frame{At: 3 * ms, Steering: 0.2}, steady, nil, axes)

	for k, s := range fc.Frames() {
		h := float64(k+1) * 1e-3
		want := 0.2 + 2*h + 0.5*100*h*h
		if math.Abs(s.Values[input.AxisSteering]-want) > 1e-12 {
			t.Fatalf("step %d: steering %f, want %f", k, s.Values[input.AxisSteering], want)
		}
		if s.Values[input.AxisThrottle] != 0 {
			t.Fatalf("scalar throttle should hold, got %f", s.Values[input.AxisThrottle])
		}
	}
	if fc.Steps[1].Confidence > fc.Steps[0].Confidence {
		t.Fatal("confidence should not grow with the horizon")
	}
}

func TestExtrapolationClampedToAxisRange(t *testing.T) {
	p := New(DefaultConfig())
	var axes promote.Set
	axes[input.AxisThrottle] = promote.AxisState{Mode: promote.Promoted, Rate: 500}
	p.Forecast(input.Frame{At: ms, Throttle: 0.99}, steady, nil, axes)
	p.Forecast(input.Frame{At: 2 * ms, Throttle: 0.99}, steady, nil, axes)
	fc := p.Forecast(input.Frame{At: 3 * ms, Throttle: 0.99}, steady, nil, axes)
	for _, s := range fc.Frames() {
		if s.Values[input.AxisThrottle] > 1 {
			t.Fatalf("throttle forecast %f escaped its range", s.Values[input.AxisThrottle])
		}
	}
}

func TestRecentTransitionLowersCoherence(t *testing.T) {
	p := New(DefaultConfig())
	var axes promote.Set
	p.Forecast(input.Frame{At: 999 * ms}, steady, nil, axes)

	axes[input.AxisBraking] = promote.AxisState{Mode: promote.Promoted, Transitions: 1, LastTransition: 950 * ms}
	fc := p.Forecast(input.Frame{At: 1000 * ms}, steady, nil, axes)
	if got := fc.Next().Coherence; math.Abs(got-0.2) > 1e-9 {
		t.Fatalf("coherence %f, want 0.2", got)
	}
	if fc.Next().Confidence > fc.Next().Coherence+1e-12 {
		t.Fatal("confidence should be bounded by coherence")
	}

	axes[input.AxisBraking].LastTransition = 0
	if got := p.Forecast(input.Frame{At: 1001 * ms}, steady, nil, axes).Next().Coherence; got != 1 {
		t.Fatalf("old transition should not matter, got %f", got)
	}
}

func TestLatencySizesHorizon(t *testing.T) {
	p := New(DefaultConfig())
	fc := p.Forecast(input.Frame{At: ms, Latency: 5500 * time.Microsecond}, steady, nil, promote.Set{})
	if fc.N != 6 {
		t.Fatalf("expected 6 steps, got %d", fc.N)
	}
	fc = p.Forecast(input.Frame{At: 2 * ms, Latency: time.Second}, steady, nil, promote.Set{})
	if fc.N != MaxSteps {
		t.Fatalf("expected %d steps, got %d", MaxSteps, fc.N)
	}
}

func TestOutputShapedBySensitivity(t *testing.T) {
	p := New(DefaultConfig())
	pheno := phenotype.Default().With(phenotype.SensitivityField(input.AxisSteering), 2)
	fc := p.Forecast(input.Frame{At: ms, Steering: 0.3}, steady, &pheno, promote.Set{})
	if got := fc.Next().Output[input.AxisSteering]; math.Abs(got-0.6) > 1e-12 {
		t.Fatalf("shaped steering %f, want 0.6", got)
	}
}

func TestConfidenceAlwaysInUnitRange(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	p := New(DefaultConfig())
	var axes promote.Set
	at := time.Duration(0)
	for i := 0; i < 2000; i++ {
		at += time.Duration(r.Intn(3)) * ms // includes repeated timestamps
		f := input.Frame{At: at, Steering: r.Float64()*4 - 2, Throttle: r.Float64(), Brake: r.Float64()}
		if i%50 == 0 {
			axes[input.AxisSteering].Mode ^= 1
			axes[input.AxisSteering].Transitions++
			axes[input.AxisSteering].LastTransition = at
			axes[input.AxisSteering].Rate = r.NormFloat64() * 10
		}
		fc := p.Forecast(f, pattern.Summary{Consistency: r.Float64()}, nil, axes)
		for _, s := range fc.Frames() {
			if s.Confidence < 0 || s.Confidence > 1 || s.Coherence < 0 || s.Coherence > 1 {
				t.Fatalf("frame %d: confidence %f coherence %f", i, s.Confidence, s.Coherence)
			}
			for _, v := range s.Values {
				if math.IsNaN(v) {
					t.Fatalf("frame %d: NaN forecast", i)
				}
			}
		}
	}
}
