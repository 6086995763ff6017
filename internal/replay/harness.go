package replay

import (
	"context"
	"errors"
	"fmt"

	"github.com/danielpatrickdp/adaptive-input/internal/engine"
	"github.com/danielpatrickdp/adaptive-input/internal/input"
	"github.com/danielpatrickdp/adaptive-input/internal/phenotype"
)

// #region types
// EpochOutcome is the result of one epoch during a replay.
type EpochOutcome struct {
	Trigger   string
	Frames    int // pattern window size at the epoch
	Style     string
	Action    string // "commit" | "reject" | "no_op" | "cancelled"
	Reason    string
	VersionID string // version in force after the epoch
}

// Summary provides aggregate stats from a replay run.
type Summary struct {
	Frames         int
	Dropped        int
	Promotions     int
	Epochs         []EpochOutcome
	Commits        int
	Rejects        int
	NoOps          int
	MeanConfidence float64 // mean next-step forecast confidence over accepted frames
	Final          phenotype.Phenotype
}

// #endregion types

// #region replay
// Replay runs frames through a full session with epochs evaluated inline,
// so the same input always yields the same decisions. The session is
// ended after the last frame, which adds a session_end epoch. opts.OnEpoch,
// if set, still receives every report.
func Replay(ctx context.Context, start phenotype.Phenotype, frames []input.Frame, opts engine.Options) (Summary, error) {
	var sum Summary
	opts.InlineEpochs = true
	next := opts.OnEpoch
	opts.OnEpoch = func(rep engine.EpochReport) {
		res := rep.Result
		sum.Epochs = append(sum.Epochs, EpochOutcome{
			Trigger:   rep.Trigger,
			Frames:    rep.Summary.Frames,
			Style:     string(res.Proposal.Style),
			Action:    res.Decision.Action,
			Reason:    res.Decision.Reason,
			VersionID: res.After.VersionID,
		})
		switch res.Decision.Action {
		case "commit":
			sum.Commits++
		case "reject":
			sum.Rejects++
		case "no_op":
			sum.NoOps++
		}
		if next != nil {
			next(rep)
		}
	}

	sess, err := engine.NewSession(start, opts)
	if err != nil {
		return sum, fmt.Errorf("replay: %w", err)
	}

	var confidence float64
	for i, f := range frames {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return sum, err
			}
		}
		out := sess.Process(f)
		if !out.Dropped {
			confidence += out.Forecast.Next().Confidence
		}
	}

	_, endErr := sess.End(ctx)
	if errors.Is(endErr, context.Canceled) || errors.Is(endErr, context.DeadlineExceeded) {
		return sum, endErr
	}

	st := sess.Stats()
	sum.Frames = int(st.Frames)
	sum.Dropped = int(st.Dropped)
	sum.Promotions = int(st.Promotions)
	if st.Frames > 0 {
		sum.MeanConfidence = confidence / float64(st.Frames)
	}
	sum.Final = sess.Store().Current()
	return sum, nil
}

// ReplayFixture replays a loaded fixture over base options.
func ReplayFixture(ctx context.Context, f *Fixture, base engine.Options) (Summary, error) {
	start, err := f.StartPhenotype()
	if err != nil {
		return Summary{}, err
	}
	frames, err := f.InputFrames()
	if err != nil {
		return Summary{}, err
	}
	return Replay(ctx, start, frames, f.Options(base))
}

// #endregion replay

// #region verify
// Verify compares a replay summary against the fixture expectations and
// returns every mismatch.
func (e FixtureExpect) Verify(s Summary) error {
	var errs []error
	if e.Decisions != nil {
		got := make([]string, len(s.Epochs))
		for i, ep := range s.Epochs {
			got[i] = ep.Action
		}
		if fmt.Sprint(got) != fmt.Sprint(e.Decisions) {
			errs = append(errs, fmt.Errorf("decisions %v, want %v", got, e.Decisions))
		}
	}
	if e.Commits != nil && s.Commits != *e.Commits {
		errs = append(errs, fmt.Errorf("commits %d, want %d", s.Commits, *e.Commits))
	}
	if e.Rejects != nil && s.Rejects != *e.Rejects {
		errs = append(errs, fmt.Errorf("rejects %d, want %d", s.Rejects, *e.Rejects))
	}
	if e.MinPromotions != nil && s.Promotions < *e.MinPromotions {
		errs = append(errs, fmt.Errorf("promotions %d, want at least %d", s.Promotions, *e.MinPromotions))
	}
	if e.Style != "" && (len(s.Epochs) == 0 || s.Epochs[0].Style != e.Style) {
		got := ""
		if len(s.Epochs) > 0 {
			got = s.Epochs[0].Style
		}
		errs = append(errs, fmt.Errorf("first epoch style %q, want %q", got, e.Style))
	}
	if e.SteeringStyle != nil {
		if got := s.Final.Trait(phenotype.TraitSteering); got != *e.SteeringStyle {
			errs = append(errs, fmt.Errorf("steering_style %d, want %d", got, *e.SteeringStyle))
		}
	}
	return errors.Join(errs...)
}

// #endregion verify
