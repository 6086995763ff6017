package eval

import (
	"fmt"
	"math"

	"github.com/danielpatrickdp/adaptive-input/internal/haptics"
	"github.com/danielpatrickdp/adaptive-input/internal/input"
	"github.com/danielpatrickdp/adaptive-input/internal/phenotype"
)

// #region eval-harness
// Harness runs lightweight post-commit validation on a phenotype. The gate
// already bounds each step; the harness watches where the steps have led.
type Harness struct {
	config   Config
	actuator haptics.Actuator
}

// NewHarness creates a harness for phenotypes rendered on actuator.
func NewHarness(config Config, actuator haptics.Actuator) *Harness {
	return &Harness{config: config, actuator: actuator}
}

// Run validates p. Force headroom is reported but never fails the result.
func (h *Harness) Run(p phenotype.Phenotype) Result {
	var metrics []Metric
	var failReasons []string
	check := func(name string, value, limit float64) {
		pass := value <= limit
		metrics = append(metrics, Metric{Name: name, Value: value, Pass: pass})
		if !pass {
			failReasons = append(failReasons, fmt.Sprintf("%s %.4f exceeds %.4f", name, value, limit))
		}
	}

	// 1. Whole-phenotype distance from default
	check("drift_norm", distance(p, 0, phenotype.NumFields), h.config.MaxDriftNorm)

	// 2. Group distances
	check("sensitivity_norm", distance(p, 0, input.NumAxes), h.config.MaxSensitivityNorm)
	check("haptic_norm", distance(p, input.NumAxes, phenotype.NumFields), h.config.MaxHapticNorm)

	// 3. Sensitivity spread across axes
	check("sensitivity_spread", spread(p), h.config.MaxSpread)

	// 4. Force headroom at full deflection
	peak := haptics.CurveOf(&p).Response(1)
	headroom := h.actuator.Budget(math.Inf(1)) - peak
	metrics = append(metrics, Metric{
		Name:          "force_headroom",
		Value:         headroom,
		Pass:          headroom >= 0,
		Informational: true,
	})

	reason := "all checks passed"
	if len(failReasons) == 1 {
		reason = "eval failed: " + failReasons[0]
	} else if len(failReasons) > 1 {
		reason = fmt.Sprintf("eval failed: %d checks: %s", len(failReasons), failReasons[0])
	}
	return Result{
		Passed:  len(failReasons) == 0,
		Metrics: metrics,
		Reason:  reason,
	}
}

// #endregion eval-harness

// #region helpers
// distance is the L2 norm over fields [from, to) of each field's offset
// from its default, normalized by the bounds width.
func distance(p phenotype.Phenotype, from, to int) float64 {
	var sum float64
	for f := phenotype.Field(from); f < phenotype.Field(to); f++ {
		b := phenotype.FieldBounds(f)
		d := (p.Get(f) - b.Default) / (b.Max - b.Min)
		sum += d * d
	}
	return math.Sqrt(sum)
}

func spread(p phenotype.Phenotype) float64 {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range p.Sensitivity {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if lo <= 0 {
		return math.Inf(1)
	}
	return hi / lo
}

// #endregion helpers
