package gate

import (
	"fmt"
	"math"

	"github.com/danielpatrickdp/adaptive-input/internal/phenotype"
)

// #region gate
// Gate evaluates whether a proposed phenotype delta may be committed, and
// clamps the fields that exceed the gradual-adaptation constraint.
type Gate struct {
	config    GateConfig
	protected [phenotype.NumFields]bool
}

// NewGate creates a gate with the given configuration.
func NewGate(config GateConfig) *Gate {
	g := &Gate{config: config}
	for _, f := range config.Protected {
		if f >= 0 && f < phenotype.NumFields {
			g.protected[f] = true
		}
	}
	return g
}

// Config returns the active configuration.
func (g *Gate) Config() GateConfig { return g.config }

// Protected reports whether f is excluded from automatic mutation.
func (g *Gate) Protected(f phenotype.Field) bool { return g.protected[f] }

// Evaluate checks hard vetoes first, then clamps the remaining fields.
// The prior phenotype is never modified.
func (g *Gate) Evaluate(old phenotype.Phenotype, delta phenotype.Delta) GateDecision {
	var vetoes []VetoSignal
	var adjustments []Adjustment
	next := old

	// --- Continuous fields ---
	var requestedRel, appliedRel float64
	for f := phenotype.Field(0); f < phenotype.NumFields; f++ {
		d := delta.Fields[f]
		if d == 0 {
			continue
		}
		name := f.String()

		if math.IsNaN(d) || math.IsInf(d, 0) {
			vetoes = append(vetoes, VetoSignal{
				Type:   VetoNonFinite,
				Field:  name,
				Reason: fmt.Sprintf("%s delta is %v", name, d),
			})
			continue
		}

		if g.protected[f] && !delta.UserApproved {
			adjustments = append(adjustments, Adjustment{Field: name, Requested: d, Applied: 0, Cause: "protected"})
			continue
		}

		prev := old.Get(f)
		b := phenotype.FieldBounds(f)
		limit := g.stepLimit(prev, b)
		requestedRel += math.Abs(d) / limit

		if math.Abs(d) > g.config.SevereFactor*limit {
			vetoes = append(vetoes, VetoSignal{
				Type:   VetoSevereStep,
				Field:  name,
				Reason: fmt.Sprintf("%s delta %.4f exceeds %.1fx step limit %.4f", name, d, g.config.SevereFactor, limit),
			})
			continue
		}

		applied := d
		if math.Abs(applied) > limit {
			applied = math.Copysign(limit, applied)
			adjustments = append(adjustments, Adjustment{Field: name, Requested: d, Applied: applied, Cause: "gradual"})
		}
		v := prev + applied
		if cv := b.Clamp(v); cv != v {
			applied = cv - prev
			adjustments = append(adjustments, Adjustment{Field: name, Requested: d, Applied: applied, Cause: "bounds"})
			v = cv
		}
		appliedRel += math.Abs(applied) / limit
		next = next.With(f, v)
	}

	// --- Discrete traits ---
	for k := phenotype.TraitKind(0); k < phenotype.NumTraits; k++ {
		step := int(delta.TraitSteps[k])
		if step == 0 {
			continue
		}
		levels := int(k.Levels())
		if step >= levels || -step >= levels {
			vetoes = append(vetoes, VetoSignal{
				Type:   VetoTraitJump,
				Field:  k.String(),
				Reason: fmt.Sprintf("%s step %d spans the whole %d-level range", k, step, levels),
			})
			continue
		}
		applied := step
		if applied > g.config.MaxTraitStep {
			applied = g.config.MaxTraitStep
		} else if applied < -g.config.MaxTraitStep {
			applied = -g.config.MaxTraitStep
		}
		v := int(old.Traits[k]) + applied
		if v < 0 {
			v = 0
		}
		if v > levels-1 {
			v = levels - 1
		}
		if v-int(old.Traits[k]) != step {
			adjustments = append(adjustments, Adjustment{
				Field:     k.String(),
				Requested: float64(step),
				Applied:   float64(v - int(old.Traits[k])),
				Cause:     "trait_step",
			})
		}
		next.Traits[k] = uint8(v)
	}

	// If any hard vetoes, reject immediately
	if len(vetoes) > 0 {
		return GateDecision{
			Action:      "reject",
			Reason:      fmt.Sprintf("hard veto: %s", vetoes[0].Reason),
			Vetoed:      true,
			VetoSignals: vetoes,
			Adjustments: adjustments,
		}
	}

	if err := next.Validate(); err != nil {
		return GateDecision{
			Action:      "reject",
			Reason:      fmt.Sprintf("hard veto: %v", err),
			Vetoed:      true,
			VetoSignals: []VetoSignal{{Type: VetoNonFinite, Reason: err.Error()}},
			Adjustments: adjustments,
		}
	}

	score := 1.0
	if requestedRel > 0 {
		score = appliedRel / requestedRel
	}
	return GateDecision{
		Action:      "commit",
		Reason:      fmt.Sprintf("passed gate: %d adjustments, soft_score=%.4f", len(adjustments), score),
		Adjustments: adjustments,
		Proposed:    next,
		SoftScore:   score,
	}
}

// #endregion gate

// #region helpers
// stepLimit is the largest change allowed for a field in one commit.
func (g *Gate) stepLimit(prev float64, b phenotype.Bounds) float64 {
	base := math.Abs(prev)
	if base < b.Min {
		base = b.Min
	}
	return g.config.MaxFraction * base
}

// #endregion helpers
