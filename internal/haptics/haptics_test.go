package haptics

import (
	"math"
	"testing"
	"time"

	"github.com/danielpatrickdp/adaptive-input/internal/phenotype"
)

func TestBudget(t *testing.T) {
	a := DefaultActuator()
	tests := []struct {
		desired, want float64
	}{
		{1.0, 1.0},
		{3.5, 3.0}, // safety limit
		{-1, 0},
		{math.NaN(), 0},
	}
	for _, tt := range tests {
		if got := a.Budget(tt.desired); got != tt.want {
			t.Errorf("Budget(%v) = %v, want %v", tt.desired, got, tt.want)
		}
	}

	weak := Actuator{MaxForce: 2, SafeLimit: 3, Efficiency: 0.8}
	if got := weak.Budget(2.5); math.Abs(got-1.6) > 1e-12 {
		t.Errorf("efficiency bound = %v, want 1.6", got)
	}
}

func TestActuatorValidate(t *testing.T) {
	if err := DefaultActuator().Validate(); err != nil {
		t.Fatalf("default actuator invalid: %v", err)
	}
	for _, a := range []Actuator{
		{MaxForce: 0, SafeLimit: 1, Efficiency: 0.5},
		{MaxForce: 1, SafeLimit: 1, Efficiency: 0},
		{MaxForce: 1, SafeLimit: 1, Efficiency: 1.5},
	} {
		if a.Validate() == nil {
			t.Errorf("expected %+v to be invalid", a)
		}
	}
}

func TestCurveResponse(t *testing.T) {
	c := Curve{Gain: 2, Linearity: 2, Deadzone: 0.2}
	if got := c.Response(0.1); got != 0 {
		t.Errorf("inside deadzone = %v, want 0", got)
	}
	if got := c.Response(1); got != 2 {
		t.Errorf("full deflection = %v, want gain", got)
	}
	// u = (0.6-0.2)/0.8 = 0.5, 2*0.5^2 = 0.5
	if got := c.Response(-0.6); math.Abs(got+0.5) > 1e-12 {
		t.Errorf("Response(-0.6) = %v, want -0.5", got)
	}
	if got := c.Response(4); got != 2 {
		t.Errorf("over-range deflection = %v, want clamp to gain", got)
	}
}

func TestCurveOfDefault(t *testing.T) {
	p := phenotype.Default()
	c := CurveOf(&p)
	if c.Gain != 1 || c.Linearity != 1 || c.Deadzone != 0.05 || c.Damping != 0.3 {
		t.Fatalf("unexpected default curve %+v", c)
	}
}

func TestRendererDampsAndBudgets(t *testing.T) {
	p := phenotype.Default()
	r := NewRenderer(DefaultActuator())

	first := r.Render(&p, 0.5, 0)
	// linear curve, target = (0.5-0.05)/0.95 * 5 ~ 2.37, under the 3N limit
	want := (0.45 / 0.95) * 5
	if math.Abs(first-want) > 1e-9 {
		t.Fatalf("first render = %v, want %v", first, want)
	}

	// Full deflection wants 5N; the actuator delivers at most 3N and the
	// damped output moves only part of the way in 1ms.
	second := r.Render(&p, 1, time.Millisecond)
	if second <= first || second > 3 {
		t.Fatalf("second render = %v, want in (%v, 3]", second, first)
	}
	for i := 2; i < 50; i++ {
		second = r.Render(&p, 1, time.Duration(i)*time.Millisecond)
	}
	if second != 3 {
		t.Fatalf("settled force = %v, want safety limit 3", second)
	}

	r.Reset()
	if got := r.Render(&p, -1, time.Second); got != -3 {
		t.Fatalf("after reset = %v, want -3", got)
	}
}
