package phenotype

import (
	"fmt"
	"math"
	"time"

	"github.com/danielpatrickdp/adaptive-input/internal/input"
)

// #region traits
// TraitKind identifies one of the discrete, base-4 encoded traits.
type TraitKind int

const (
	TraitGrip TraitKind = iota
	TraitReaction
	TraitSteering
	TraitThrottle
)

// NumTraits is the number of discrete traits.
const NumTraits = 4

// MaxTraitLevels is the widest trait range (two base-4 digits).
const MaxTraitLevels = 16

var traitLevels = [NumTraits]uint8{4, 4, 4, 16}

var traitNames = [NumTraits]string{"grip_pressure", "reaction_speed", "steering_style", "throttle_pattern"}

// Levels returns how many values the trait can take.
func (k TraitKind) Levels() uint8 { return traitLevels[k] }

func (k TraitKind) String() string {
	if k < 0 || int(k) >= NumTraits {
		return "unknown"
	}
	return traitNames[k]
}

// Steering style levels, ordered from calm to erratic.
const (
	StyleSmooth uint8 = iota
	StyleNeutral
	StyleSharp
	StyleErratic
)

// Traits holds one value per TraitKind.
type Traits [NumTraits]uint8

// #endregion traits

// #region fields
// Haptic coefficient indices.
const (
	HapticGain = iota
	HapticLinearity
	HapticDeadzone
	HapticDamping
)

// NumHaptic is the number of haptic response-curve coefficients.
const NumHaptic = 4

var hapticNames = [NumHaptic]string{"gain", "linearity", "deadzone", "damping"}

// Field addresses one continuous value of a phenotype. Sensitivities come
// first (one per axis), then haptic coefficients.
type Field int

// NumFields is the number of continuous fields.
const NumFields = input.NumAxes + NumHaptic

// SensitivityField returns the field holding an axis sensitivity.
func SensitivityField(a input.Axis) Field { return Field(a) }

// HapticField returns the field holding a haptic coefficient.
func HapticField(i int) Field { return Field(input.NumAxes + i) }

func (f Field) String() string {
	switch {
	case f >= 0 && int(f) < input.NumAxes:
		return "sensitivity." + input.Axis(f).String()
	case int(f) >= input.NumAxes && int(f) < NumFields:
		return "haptic." + hapticNames[int(f)-input.NumAxes]
	}
	return "unknown"
}

// ParseField maps a field name such as "haptic.linearity" to its Field.
func ParseField(name string) (Field, bool) {
	for f := Field(0); f < NumFields; f++ {
		if f.String() == name {
			return f, true
		}
	}
	return 0, false
}

// Bounds is the closed range and neutral value of a continuous field.
type Bounds struct {
	Min     float64
	Max     float64
	Default float64
}

// Clamp restricts v to [Min, Max].
func (b Bounds) Clamp(v float64) float64 {
	if v < b.Min {
		return b.Min
	}
	if v > b.Max {
		return b.Max
	}
	return v
}

// Contains reports whether v is finite and within [Min, Max].
func (b Bounds) Contains(v float64) bool {
	return !math.IsNaN(v) && v >= b.Min && v <= b.Max
}

var sensitivityBounds = Bounds{Min: 0.1, Max: 5.0, Default: 1.0}

var hapticBounds = [NumHaptic]Bounds{
	HapticGain:      {Min: 0.1, Max: 3.0, Default: 1.0},
	HapticLinearity: {Min: 0.5, Max: 3.0, Default: 1.0},
	HapticDeadzone:  {Min: 0.01, Max: 0.3, Default: 0.05},
	HapticDamping:   {Min: 0.05, Max: 1.0, Default: 0.3},
}

// FieldBounds returns the bounds of a field.
func FieldBounds(f Field) Bounds {
	if int(f) < input.NumAxes {
		return sensitivityBounds
	}
	return hapticBounds[int(f)-input.NumAxes]
}

// #endregion fields

// #region phenotype
// Phenotype is the evolved per-player adaptive state. Values are immutable
// snapshots: every change produces a new Phenotype through a commit.
type Phenotype struct {
	Traits      Traits
	Sensitivity [input.NumAxes]float64
	Haptic      [NumHaptic]float64

	Epoch       uint64
	VersionID   string
	ParentID    string
	CommittedAt time.Time
}

// Default returns the neutral phenotype used at first session start.
func Default() Phenotype {
	var p Phenotype
	p.Traits = Traits{1, 1, StyleNeutral, 5}
	for f := Field(0); f < NumFields; f++ {
		p = p.With(f, FieldBounds(f).Default)
	}
	return p
}

// Get returns the value of a continuous field.
func (p Phenotype) Get(f Field) float64 {
	if int(f) < input.NumAxes {
		return p.Sensitivity[f]
	}
	return p.Haptic[int(f)-input.NumAxes]
}

// With returns a copy of p with field f set to v.
func (p Phenotype) With(f Field, v float64) Phenotype {
	if int(f) < input.NumAxes {
		p.Sensitivity[f] = v
	} else {
		p.Haptic[int(f)-input.NumAxes] = v
	}
	return p
}

// Trait returns the value of a discrete trait.
func (p Phenotype) Trait(k TraitKind) uint8 { return p.Traits[k] }

// Validate checks every field against its bounds and every trait against
// its level count.
func (p Phenotype) Validate() error {
	for f := Field(0); f < NumFields; f++ {
		v := p.Get(f)
		if b := FieldBounds(f); !b.Contains(v) {
			return fmt.Errorf("%s=%v outside [%v, %v]", f, v, b.Min, b.Max)
		}
	}
	for k := TraitKind(0); k < NumTraits; k++ {
		if p.Traits[k] >= k.Levels() {
			return fmt.Errorf("%s=%d outside %d levels", k, p.Traits[k], k.Levels())
		}
	}
	return nil
}

// Shape applies the axis sensitivity to a raw axis value and clamps the
// result to the axis range.
func (p Phenotype) Shape(a input.Axis, v float64) float64 {
	return input.AxisRange(a).Clamp(v * p.Sensitivity[a])
}

// #endregion phenotype

// #region delta
// Delta is a proposed change to a phenotype: additive continuous
// adjustments and signed trait steps.
type Delta struct {
	Fields     [NumFields]float64
	TraitSteps [NumTraits]int8

	// UserApproved allows the delta to touch protected fields.
	UserApproved bool
	Reason       string
}

// IsZero reports whether the delta changes nothing.
func (d Delta) IsZero() bool {
	for _, v := range d.Fields {
		if v != 0 {
			return false
		}
	}
	for _, s := range d.TraitSteps {
		if s != 0 {
			return false
		}
	}
	return true
}

// L1 returns the sum of absolute continuous adjustments.
func (d Delta) L1() float64 {
	var sum float64
	for _, v := range d.Fields {
		sum += math.Abs(v)
	}
	return sum
}

// Diff returns the delta that takes p to q (traits as signed steps).
func Diff(p, q Phenotype) Delta {
	var d Delta
	for f := Field(0); f < NumFields; f++ {
		d.Fields[f] = q.Get(f) - p.Get(f)
	}
	for k := range d.TraitSteps {
		d.TraitSteps[k] = int8(int(q.Traits[k]) - int(p.Traits[k]))
	}
	return d
}

// #endregion delta
