package logging

import (
	"time"

	"github.com/danielpatrickdp/adaptive-input/internal/eval"
)

// #region provenance-entry
// ProvenanceEntry is a single row in the provenance_log table.
type ProvenanceEntry struct {
	VersionID   string // committed version, or the version in force for no_op/reject
	PlayerID    string
	SessionID   string
	TriggerType string // "epoch" | "session_end" | "rollback" | "replay"
	Style       string
	RecordJSON  string
	Decision    string // "commit" | "reject" | "no_op" | "cancelled"
	Reason      string
	CreatedAt   time.Time
}

// #endregion provenance-entry

// #region epoch-record
// EpochRecord captures the complete evolution inputs for one epoch.
// Serialized as JSON into provenance_log.record_json for offline replay.
type EpochRecord struct {
	Frames int `json:"frames"`

	// Pattern statistics as evaluated at the epoch boundary
	SteeringRateMean     float64 `json:"steering_rate_mean"`
	SteeringRateVariance float64 `json:"steering_rate_variance"`
	BrakeOffsetMean      float64 `json:"brake_offset_mean"`
	BrakeEvents          int     `json:"brake_events"`
	Consistency          float64 `json:"consistency"`
	TimingAnomalies      uint64  `json:"timing_anomalies"`

	// Classification
	Style           string `json:"style"`
	AggressiveVotes int    `json:"aggressive_votes"`
	SmoothVotes     int    `json:"smooth_votes"`

	// Delta
	DeltaL1   float64            `json:"delta_l1"`
	Fields    map[string]float64 `json:"fields,omitempty"`
	TraitsHit []string           `json:"traits_hit,omitempty"`

	// Thresholds active at decision time
	Thresholds EpochThresholds `json:"thresholds"`

	Decision string `json:"decision"`
	Reason   string `json:"reason"`

	// Post-commit validation of the committed phenotype, commits only
	Eval *eval.Result `json:"eval,omitempty"`
}

// EpochThresholds captures the evolution config active at decision time.
type EpochThresholds struct {
	AggressiveRate     float64 `json:"aggressive_rate"`
	AggressiveVariance float64 `json:"aggressive_variance"`
	LateBrake          float64 `json:"late_brake"`
	EarlyBrake         float64 `json:"early_brake"`
	LearningRate       float64 `json:"learning_rate"`
	GradualFraction    float64 `json:"gradual_fraction"`
}

// #endregion epoch-record
