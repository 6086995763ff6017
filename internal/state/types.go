package state

import (
	"errors"
	"fmt"
	"time"

	"github.com/danielpatrickdp/adaptive-input/internal/gate"
	"github.com/danielpatrickdp/adaptive-input/internal/phenotype"
)

// #region errors
// ErrRejectedDelta is returned when a delta violates hard bounds even after clamping.
var ErrRejectedDelta = errors.New("rejected delta")

// RejectedDeltaError carries the gate decision that refused a delta.
type RejectedDeltaError struct {
	Decision gate.GateDecision
}

func (e *RejectedDeltaError) Error() string {
	return fmt.Sprintf("%s: %s", ErrRejectedDelta, e.Decision.Reason)
}

func (e *RejectedDeltaError) Is(target error) bool { return target == ErrRejectedDelta }

// #endregion errors

// #region commit-record
// CommitRecord is one audit entry: a committed or rejected delta.
type CommitRecord struct {
	VersionID   string // empty for rejections
	ParentID    string
	Epoch       uint64
	Decision    string // "commit" | "reject"
	Reason      string
	Adjustments []gate.Adjustment
	Delta       phenotype.Delta
	At          time.Time
}

// #endregion commit-record

// HistoryLimit bounds the in-memory audit trail.
const HistoryLimit = 64
