package gate

import (
	"math"
	"testing"

	"github.com/danielpatrickdp/adaptive-input/internal/input"
	"github.com/danielpatrickdp/adaptive-input/internal/phenotype"
)

var steering = phenotype.SensitivityField(input.AxisSteering)

func deltaOf(vals map[phenotype.Field]float64) phenotype.Delta {
	var d phenotype.Delta
	for f, v := range vals {
		d.Fields[f] = v
	}
	return d
}

func TestGateCommitSmallDelta(t *testing.T) {
	g := NewGate(DefaultGateConfig())
	old := phenotype.Default()

	decision := g.Evaluate(old, deltaOf(map[phenotype.Field]float64{steering: 0.05}))

	if decision.Action != "commit" {
		t.Fatalf("expected commit, got %s: %s", decision.Action, decision.Reason)
	}
	if decision.Vetoed {
		t.Fatal("should not be vetoed")
	}
	if got := decision.Proposed.Get(steering); math.Abs(got-1.05) > 1e-12 {
		t.Fatalf("expected 1.05, got %f", got)
	}
	if len(decision.Adjustments) != 0 {
		t.Fatalf("expected no adjustments, got %+v", decision.Adjustments)
	}
	if decision.SoftScore != 1 {
		t.Fatalf("expected soft score 1, got %f", decision.SoftScore)
	}
}

func TestGateUnclampedDeltasScoreExactlyOne(t *testing.T) {
	g := NewGate(DefaultGateConfig())
	old := phenotype.Default()
	old.Sensitivity[1] = 1.37

	for _, d := range []float64{0.05, -0.03, 0.0999, 0.1234 * 0.3} {
		decision := g.Evaluate(old, deltaOf(map[phenotype.Field]float64{steering: d, phenotype.Field(1): d}))
		if decision.Action != "commit" || len(decision.Adjustments) != 0 {
			t.Fatalf("delta %v: %s %+v", d, decision.Action, decision.Adjustments)
		}
		if decision.SoftScore != 1 {
			t.Fatalf("delta %v: soft score %v, want exactly 1", d, decision.SoftScore)
		}
	}
}

func TestGateClampsToGradualFraction(t *testing.T) {
	g := NewGate(DefaultGateConfig())
	old := phenotype.Default()

	decision := g.Evaluate(old, deltaOf(map[phenotype.Field]float64{steering: 0.3}))

	if decision.Action != "commit" {
		t.Fatalf("expected commit, got %s", decision.Action)
	}
	if got := decision.Proposed.Get(steering); math.Abs(got-1.1) > 1e-12 {
		t.Fatalf("expected clamp to 1.1, got %f", got)
	}
	if len(decision.Adjustments) != 1 || decision.Adjustments[0].Cause != "gradual" {
		t.Fatalf("expected one gradual adjustment, got %+v", decision.Adjustments)
	}
	if decision.SoftScore >= 1 {
		t.Fatalf("expected soft score below 1, got %f", decision.SoftScore)
	}
}

func TestGateClampsToBounds(t *testing.T) {
	g := NewGate(DefaultGateConfig())
	old := phenotype.Default().With(steering, 4.9)

	decision := g.Evaluate(old, deltaOf(map[phenotype.Field]float64{steering: 0.4}))

	if decision.Action != "commit" {
		t.Fatalf("expected commit, got %s", decision.Action)
	}
	if got := decision.Proposed.Get(steering); got != 5.0 {
		t.Fatalf("expected upper bound 5.0, got %f", got)
	}
}

func TestGateRejectsSevereDelta(t *testing.T) {
	g := NewGate(DefaultGateConfig())
	old := phenotype.Default()

	decision := g.Evaluate(old, deltaOf(map[phenotype.Field]float64{steering: 3.0}))

	if decision.Action != "reject" {
		t.Fatalf("expected reject, got %s", decision.Action)
	}
	if decision.VetoSignals[0].Type != VetoSevereStep {
		t.Fatalf("expected VetoSevereStep, got %s", decision.VetoSignals[0].Type)
	}
}

func TestGateRejectsNonFinite(t *testing.T) {
	g := NewGate(DefaultGateConfig())
	decision := g.Evaluate(phenotype.Default(), deltaOf(map[phenotype.Field]float64{steering: math.NaN()}))

	if decision.Action != "reject" {
		t.Fatalf("expected reject, got %s", decision.Action)
	}
	if decision.VetoSignals[0].Type != VetoNonFinite {
		t.Fatalf("expected VetoNonFinite, got %s", decision.VetoSignals[0].Type)
	}
}

func TestGateProtectedFields(t *testing.T) {
	g := NewGate(DefaultGateConfig())
	linearity := phenotype.HapticField(phenotype.HapticLinearity)
	old := phenotype.Default()

	d := deltaOf(map[phenotype.Field]float64{linearity: 0.05})
	decision := g.Evaluate(old, d)
	if decision.Proposed.Get(linearity) != old.Get(linearity) {
		t.Fatal("protected field changed without approval")
	}
	if len(decision.Adjustments) != 1 || decision.Adjustments[0].Cause != "protected" {
		t.Fatalf("expected protected adjustment, got %+v", decision.Adjustments)
	}

	d.UserApproved = true
	decision = g.Evaluate(old, d)
	if got := decision.Proposed.Get(linearity); math.Abs(got-1.05) > 1e-12 {
		t.Fatalf("expected approved change to 1.05, got %f", got)
	}
}

func TestGateTraitSteps(t *testing.T) {
	g := NewGate(DefaultGateConfig())
	old := phenotype.Default()

	var d phenotype.Delta
	d.TraitSteps[phenotype.TraitSteering] = 2
	decision := g.Evaluate(old, d)
	if decision.Action != "commit" {
		t.Fatalf("expected commit, got %s", decision.Action)
	}
	if got := decision.Proposed.Traits[phenotype.TraitSteering]; got != phenotype.StyleSharp {
		t.Fatalf("expected one-step move to sharp, got %d", got)
	}

	d.TraitSteps[phenotype.TraitSteering] = 4
	decision = g.Evaluate(old, d)
	if decision.Action != "reject" || decision.VetoSignals[0].Type != VetoTraitJump {
		t.Fatalf("expected trait jump veto, got %s", decision.Action)
	}
}

func TestGateTwoStepWhenConfigured(t *testing.T) {
	config := DefaultGateConfig()
	config.MaxTraitStep = 2
	g := NewGate(config)

	var d phenotype.Delta
	d.TraitSteps[phenotype.TraitSteering] = 2
	decision := g.Evaluate(phenotype.Default(), d)
	if got := decision.Proposed.Traits[phenotype.TraitSteering]; got != phenotype.StyleErratic {
		t.Fatalf("expected two-step move to erratic, got %d", got)
	}
}

func TestGateMultipleVetoes(t *testing.T) {
	g := NewGate(DefaultGateConfig())
	d := deltaOf(map[phenotype.Field]float64{
		steering: math.Inf(1),
		phenotype.SensitivityField(input.AxisBraking): 4,
	})

	decision := g.Evaluate(phenotype.Default(), d)

	if decision.Action != "reject" {
		t.Fatalf("expected reject, got %s", decision.Action)
	}
	if len(decision.VetoSignals) < 2 {
		t.Fatalf("expected at least 2 veto signals, got %d", len(decision.VetoSignals))
	}
}
