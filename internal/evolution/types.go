package evolution

import (
	"time"

	"github.com/danielpatrickdp/adaptive-input/internal/pattern"
	"github.com/danielpatrickdp/adaptive-input/internal/phenotype"
)

// #region style
// Style is the dominant driving style inferred for one epoch.
type Style string

const (
	StyleNeutral    Style = "neutral"
	StyleAggressive Style = "aggressive"
	StyleSmooth     Style = "smooth"
)

// Votes counts the threshold tests that fired for each style.
type Votes struct {
	Aggressive int
	Smooth     int
}

// #endregion style

// #region config
// Config holds classification thresholds and learning constants. The
// weights are tuning parameters, not fixed law.
type Config struct {
	MinFrames int // fewer frames in the window means no decision

	// Aggressive votes.
	AggressiveRate     float64 // mean |steering rate| above this
	AggressiveVariance float64 // |steering rate| variance above this
	LateBrake          float64 // brake offset (s) above this

	// Smooth votes.
	ActiveRate     float64 // steering must move at least this much to judge smoothness
	SmoothVariance float64 // |steering rate| variance below this while active
	EarlyBrake     float64 // brake offset (s) below -EarlyBrake

	VotesRequired int

	LearningRate    float64 // fraction of the distance to target moved per epoch
	GradualFraction float64 // per-field cap relative to the current value
	Gain            float64 // target = default * (1 + Gain*deviation)
	StyleFloor      float64 // minimum steering/brake deviation in the classified direction

	ReferenceRate    [pattern.NumPrimary]float64 // |rate| that maps to zero deviation
	BrakeTimingScale float64                     // offset (s) that maps to deviation 1
	ReferenceGrip    float64
	ReferenceStress  float64 // conductance that maps to zero deviation

	MinTraitShare float64 // dominant trait level must hold this share of observations

	Protected []phenotype.Field
	Approved  []phenotype.Field // protected fields the user has unlocked
}

// DefaultConfig returns the default evolution constants.
func DefaultConfig() Config {
	return Config{
		MinFrames:          500,
		AggressiveRate:     1.5,
		AggressiveVariance: 1.0,
		LateBrake:          0.1,
		ActiveRate:         0.2,
		SmoothVariance:     0.25,
		EarlyBrake:         0.05,
		VotesRequired:      2,
		LearningRate:       0.25,
		GradualFraction:    0.10,
		Gain:               0.5,
		StyleFloor:         0.2,
		ReferenceRate:      [pattern.NumPrimary]float64{1.0, 1.0, 1.0},
		BrakeTimingScale:   0.25,
		ReferenceGrip:      0.5,
		ReferenceStress:    5.0,
		MinTraitShare:      0.5,
		Protected:          []phenotype.Field{phenotype.HapticField(phenotype.HapticLinearity)},
	}
}

// #endregion config

// #region decision
// Decision records what an epoch decided.
type Decision struct {
	Action string // "commit" | "reject" | "no_op" | "cancelled"
	Reason string
}

// #endregion decision

// #region proposal
// Proposal is the output of Propose: the delta plus the classification
// that produced it.
type Proposal struct {
	Style     Style
	Votes     Votes
	Confident bool
	Delta     phenotype.Delta
}

// #endregion proposal

// #region result
// Metrics captures telemetry from one epoch.
type Metrics struct {
	DeltaL1    float64
	FieldsHit  []string
	TraitsHit  []string
	Frames     int
	EvolveTime time.Duration
}

// Result bundles everything returned by Evolve.
type Result struct {
	Proposal Proposal
	Decision Decision
	Before   phenotype.Phenotype
	After    phenotype.Phenotype // equals Before unless Decision.Action == "commit"
	Metrics  Metrics
}

// #endregion result
