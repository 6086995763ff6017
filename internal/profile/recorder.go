package profile

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/danielpatrickdp/adaptive-input/internal/engine"
	"github.com/danielpatrickdp/adaptive-input/internal/eval"
	"github.com/danielpatrickdp/adaptive-input/internal/evolution"
	"github.com/danielpatrickdp/adaptive-input/internal/logging"
)

// Recorder persists the epochs of one player. Committed phenotypes become
// stored versions and every decision is written to provenance_log.
// Record has the engine.Options.OnEpoch signature.
type Recorder struct {
	store    *Store
	playerID string
	cfg      evolution.Config
	eval     *eval.Harness
	logger   *slog.Logger
	failures atomic.Uint64
	evalFail atomic.Uint64
}

// Recorder returns a recorder for playerID. The session's evolution config
// is captured into each provenance record as the thresholds in force, and
// commits are validated against its actuator.
func (s *Store) Recorder(playerID string, opts engine.Options) *Recorder {
	return &Recorder{
		store:    s,
		playerID: playerID,
		cfg:      opts.Evolution,
		eval:     eval.NewHarness(eval.DefaultConfig(), opts.Actuator),
		logger:   s.logger.With("player_id", playerID),
	}
}

// Record persists one epoch report. Failures are logged and counted; the
// session keeps running on its in-memory state.
func (r *Recorder) Record(rep engine.EpochReport) {
	if err := r.record(rep); err != nil {
		r.failures.Add(1)
		r.logger.Error("record epoch", "session_id", rep.SessionID, "trigger", rep.Trigger, "error", err)
	}
}

// Failures returns the number of reports that could not be persisted.
func (r *Recorder) Failures() uint64 { return r.failures.Load() }

// EvalFailures returns the number of commits that failed post-commit
// validation. They are stored regardless.
func (r *Recorder) EvalFailures() uint64 { return r.evalFail.Load() }

func (r *Recorder) record(rep engine.EpochReport) error {
	res := rep.Result
	rec := logging.NewEpochRecord(res, rep.Summary, r.cfg)
	if res.Decision.Action == "commit" {
		saved, err := r.store.Save(r.playerID, res.After)
		if err != nil {
			return fmt.Errorf("save committed phenotype: %w", err)
		}
		res.After = saved

		ev := r.eval.Run(saved)
		rec.Eval = &ev
		if !ev.Passed {
			r.evalFail.Add(1)
			r.logger.Warn("committed phenotype failed eval", "version_id", saved.VersionID, "reason", ev.Reason)
		}
	}

	entry, err := logging.EntryFromRecord(r.playerID, rep.SessionID, rep.Trigger, res, rec)
	if err != nil {
		return err
	}
	if entry.VersionID == "" {
		entry.VersionID = res.Before.VersionID
	}
	if err := logging.LogDecision(r.store.db, entry); err != nil {
		return err
	}
	return nil
}
