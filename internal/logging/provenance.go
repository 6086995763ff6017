package logging

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/danielpatrickdp/adaptive-input/internal/evolution"
	"github.com/danielpatrickdp/adaptive-input/internal/pattern"
	"github.com/danielpatrickdp/adaptive-input/internal/phenotype"
)

// #region log-decision
// LogDecision writes a provenance entry to the provenance_log table.
func LogDecision(db *sql.DB, entry ProvenanceEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.Exec(
		`INSERT INTO provenance_log (version_id, player_id, session_id, trigger_type, style, record_json, decision, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.VersionID,
		nullIfEmpty(entry.PlayerID),
		nullIfEmpty(entry.SessionID),
		entry.TriggerType,
		nullIfEmpty(entry.Style),
		nullIfEmpty(entry.RecordJSON),
		entry.Decision,
		nullIfEmpty(entry.Reason),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log decision: %w", err)
	}
	return nil
}

// #endregion log-decision

// #region epoch-record
// NewEpochRecord flattens an epoch result and the summary it was computed
// from into a replayable record.
func NewEpochRecord(res evolution.Result, s pattern.Summary, cfg evolution.Config) EpochRecord {
	rec := EpochRecord{
		Frames:               s.Frames,
		SteeringRateMean:     s.SteeringRateMean(),
		SteeringRateVariance: s.SteeringRateVariance(),
		BrakeOffsetMean:      s.BrakeOffsetMean,
		BrakeEvents:          s.BrakeEvents,
		Consistency:          s.Consistency,
		TimingAnomalies:      s.TimingAnomalies,
		Style:                string(res.Proposal.Style),
		AggressiveVotes:      res.Proposal.Votes.Aggressive,
		SmoothVotes:          res.Proposal.Votes.Smooth,
		DeltaL1:              res.Metrics.DeltaL1,
		TraitsHit:            res.Metrics.TraitsHit,
		Thresholds: EpochThresholds{
			AggressiveRate:     cfg.AggressiveRate,
			AggressiveVariance: cfg.AggressiveVariance,
			LateBrake:          cfg.LateBrake,
			EarlyBrake:         cfg.EarlyBrake,
			LearningRate:       cfg.LearningRate,
			GradualFraction:    cfg.GradualFraction,
		},
		Decision: res.Decision.Action,
		Reason:   res.Decision.Reason,
	}
	for i, d := range res.Proposal.Delta.Fields {
		if d == 0 {
			continue
		}
		if rec.Fields == nil {
			rec.Fields = make(map[string]float64)
		}
		rec.Fields[phenotype.Field(i).String()] = d
	}
	return rec
}

// EntryFromResult builds the provenance row for one epoch.
func EntryFromResult(playerID, sessionID, trigger string, res evolution.Result, s pattern.Summary, cfg evolution.Config) (ProvenanceEntry, error) {
	return EntryFromRecord(playerID, sessionID, trigger, res, NewEpochRecord(res, s, cfg))
}

// EntryFromRecord builds the provenance row for an already flattened
// record, for callers that annotate it first.
func EntryFromRecord(playerID, sessionID, trigger string, res evolution.Result, rec EpochRecord) (ProvenanceEntry, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return ProvenanceEntry{}, fmt.Errorf("marshal epoch record: %w", err)
	}
	return ProvenanceEntry{
		VersionID:   res.After.VersionID,
		PlayerID:    playerID,
		SessionID:   sessionID,
		TriggerType: trigger,
		Style:       string(res.Proposal.Style),
		RecordJSON:  string(raw),
		Decision:    res.Decision.Action,
		Reason:      res.Decision.Reason,
	}, nil
}

// #endregion epoch-record

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
