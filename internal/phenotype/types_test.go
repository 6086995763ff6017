package phenotype

import (
	"math"
	"testing"

	"github.com/danielpatrickdp/adaptive-input/internal/input"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default phenotype invalid: %v", err)
	}
}

func TestValidateRejectsNaN(t *testing.T) {
	p := Default().With(HapticField(HapticGain), math.NaN())
	if err := p.Validate(); err == nil {
		t.Fatal("expected NaN to fail validation")
	}
}

func TestFieldNames(t *testing.T) {
	if got := SensitivityField(input.AxisBraking).String(); got != "sensitivity.braking" {
		t.Fatalf("unexpected name %q", got)
	}
	f, ok := ParseField("haptic.linearity")
	if !ok || f != HapticField(HapticLinearity) {
		t.Fatalf("ParseField failed: %v %v", f, ok)
	}
	if _, ok := ParseField("haptic.colour"); ok {
		t.Fatal("expected unknown field")
	}
}

func TestDiffAndIsZero(t *testing.T) {
	p := Default()
	if !Diff(p, p).IsZero() {
		t.Fatal("expected zero diff for identical phenotypes")
	}
	q := p.With(SensitivityField(input.AxisSteering), 1.1)
	q.Traits[TraitSteering] = StyleSharp
	d := Diff(p, q)
	if d.IsZero() {
		t.Fatal("expected non-zero diff")
	}
	if math.Abs(d.Fields[SensitivityField(input.AxisSteering)]-0.1) > 1e-12 {
		t.Fatalf("unexpected steering delta %f", d.Fields[0])
	}
	if d.TraitSteps[TraitSteering] != 1 {
		t.Fatalf("expected one trait step, got %d", d.TraitSteps[TraitSteering])
	}
	if math.Abs(d.L1()-0.1) > 1e-12 {
		t.Fatalf("unexpected L1 %f", d.L1())
	}
}

func TestShapeClampsToAxisRange(t *testing.T) {
	p := Default().With(SensitivityField(input.AxisSteering), 3)
	if got := p.Shape(input.AxisSteering, 0.5); got != 1 {
		t.Fatalf("expected clamp to 1, got %f", got)
	}
	if got := p.Shape(input.AxisSteering, -0.1); math.Abs(got+0.3) > 1e-12 {
		t.Fatalf("expected -0.3, got %f", got)
	}
}
