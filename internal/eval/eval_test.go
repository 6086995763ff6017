package eval

import (
	"strings"
	"testing"

	"github.com/danielpatrickdp/adaptive-input/internal/haptics"
	"github.com/danielpatrickdp/adaptive-input/internal/input"
	"github.com/danielpatrickdp/adaptive-input/internal/phenotype"
)

func newHarness() *Harness {
	return NewHarness(DefaultConfig(), haptics.DefaultActuator())
}

func TestEvalPassesOnDefault(t *testing.T) {
	result := newHarness().Run(phenotype.Default())

	if !result.Passed {
		t.Fatalf("expected pass on default phenotype, got fail: %s", result.Reason)
	}
	m, ok := result.Metric("drift_norm")
	if !ok || m.Value != 0 {
		t.Fatalf("drift_norm = %+v, want 0", m)
	}
	if m, _ := result.Metric("sensitivity_spread"); m.Value != 1 {
		t.Fatalf("sensitivity_spread = %v, want 1", m.Value)
	}
}

func TestEvalFailsOnSensitivityDrift(t *testing.T) {
	p := phenotype.Default()
	for i := range p.Sensitivity {
		p.Sensitivity[i] = 5.0
	}

	result := newHarness().Run(p)

	if result.Passed {
		t.Fatal("expected fail when every axis sits at the top of its range")
	}
	for _, name := range []string{"drift_norm", "sensitivity_norm"} {
		if m, _ := result.Metric(name); m.Pass {
			t.Errorf("%s passed with value %v", name, m.Value)
		}
	}
	if m, _ := result.Metric("haptic_norm"); !m.Pass {
		t.Errorf("haptic_norm failed with untouched haptics: %v", m.Value)
	}
	if !strings.Contains(result.Reason, "2 checks") {
		t.Errorf("reason = %q, want two failed checks", result.Reason)
	}
}

func TestEvalFailsOnSpread(t *testing.T) {
	p := phenotype.Default()
	p.Sensitivity[input.AxisReaction] = 0.1

	result := newHarness().Run(p)

	if result.Passed {
		t.Fatal("expected fail on a 10x sensitivity spread")
	}
	if !strings.Contains(result.Reason, "sensitivity_spread") {
		t.Errorf("reason = %q, want sensitivity_spread", result.Reason)
	}
	if m, _ := result.Metric("sensitivity_norm"); !m.Pass {
		t.Errorf("single-axis move should stay inside the group norm: %v", m.Value)
	}
}

func TestEvalForceHeadroomInformationalOnly(t *testing.T) {
	p := phenotype.Default()
	p.Haptic[phenotype.HapticGain] = 3.0
	weak := haptics.Actuator{MaxForce: 5, SafeLimit: 2, Efficiency: 0.8}

	result := NewHarness(DefaultConfig(), weak).Run(p)

	m, ok := result.Metric("force_headroom")
	if !ok {
		t.Fatal("missing force_headroom metric")
	}
	if m.Pass || !m.Informational {
		t.Fatalf("force_headroom = %+v, want informational failure", m)
	}
	if m.Value != -1 {
		t.Fatalf("force_headroom = %v, want -1", m.Value)
	}
	if !result.Passed {
		t.Fatalf("informational metric should not fail the result: %s", result.Reason)
	}
}

func TestEvalMetricCount(t *testing.T) {
	result := newHarness().Run(phenotype.Default())

	if len(result.Metrics) != 5 {
		t.Fatalf("expected 5 metrics, got %d", len(result.Metrics))
	}
}
