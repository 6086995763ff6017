package gate

import "github.com/danielpatrickdp/adaptive-input/internal/phenotype"

// #region veto-type
// VetoType enumerates hard veto categories.
type VetoType string

const (
	VetoNonFinite  VetoType = "non_finite"
	VetoSevereStep VetoType = "severe_step"
	VetoTraitJump  VetoType = "trait_jump"
)

// #endregion veto-type

// #region veto-signal
// VetoSignal represents a detected hard veto condition.
type VetoSignal struct {
	Type   VetoType
	Field  string
	Reason string
}

// #endregion veto-signal

// #region adjustment
// Adjustment records a field the gate clamped instead of rejecting.
type Adjustment struct {
	Field     string
	Requested float64
	Applied   float64
	Cause     string // "gradual" | "bounds" | "protected" | "trait_step"
}

// #endregion adjustment

// #region gate-config
// GateConfig holds the commit constraints.
type GateConfig struct {
	MaxFraction  float64 // per-field change cap relative to the prior value
	SevereFactor float64 // change beyond SevereFactor*cap signals a corrupted delta
	MaxTraitStep int     // max trait levels moved per commit
	Protected    []phenotype.Field
}

// DefaultGateConfig returns the default gradual-adaptation constraints.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		MaxFraction:  0.10,
		SevereFactor: 5.0,
		MaxTraitStep: 1,
		Protected:    []phenotype.Field{phenotype.HapticField(phenotype.HapticLinearity)},
	}
}

// #endregion gate-config

// #region gate-decision
// GateDecision is the output of the gate evaluation.
type GateDecision struct {
	Action      string // "commit" | "reject"
	Reason      string
	Vetoed      bool
	VetoSignals []VetoSignal
	Adjustments []Adjustment
	Proposed    phenotype.Phenotype // valid only when Action == "commit"
	SoftScore   float64             // 0-1, 1 = no clamping needed (for logging)
}

// #endregion gate-decision
