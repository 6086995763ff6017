package evolution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/danielpatrickdp/adaptive-input/internal/input"
	"github.com/danielpatrickdp/adaptive-input/internal/pattern"
	"github.com/danielpatrickdp/adaptive-input/internal/phenotype"
	"github.com/danielpatrickdp/adaptive-input/internal/state"
)

// Committer is the subset of the phenotype store an epoch needs.
type Committer interface {
	Current() phenotype.Phenotype
	Commit(phenotype.Delta) (phenotype.Phenotype, error)
}

// #region engine
// Engine turns pattern summaries into bounded phenotype deltas.
type Engine struct {
	config    Config
	protected [phenotype.NumFields]bool
	approved  [phenotype.NumFields]bool
	logger    *slog.Logger
}

// New creates an evolution engine.
func New(config Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{config: config, logger: logger}
	for _, f := range config.Protected {
		e.protected[f] = true
	}
	for _, f := range config.Approved {
		e.approved[f] = true
	}
	return e
}

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.config }

// #endregion engine

// #region classify
// Classify votes on the dominant style. The result is confident only when
// one style collects at least VotesRequired votes and the other none.
func (e *Engine) Classify(s pattern.Summary) (Style, Votes, bool) {
	var v Votes
	c := e.config
	if s.Frames < c.MinFrames || !finiteSummary(s) {
		return StyleNeutral, v, false
	}

	rate := s.SteeringRateMean()
	variance := s.SteeringRateVariance()

	if rate > c.AggressiveRate {
		v.Aggressive++
	}
	if variance > c.AggressiveVariance {
		v.Aggressive++
	}
	if s.BrakeEvents > 0 && s.BrakeOffsetMean > c.LateBrake {
		v.Aggressive++
	}

	if rate > c.ActiveRate && variance < c.SmoothVariance {
		v.Smooth++
	}
	if s.BrakeEvents > 0 && s.BrakeOffsetMean < -c.EarlyBrake {
		v.Smooth++
	}

	switch {
	case v.Aggressive >= c.VotesRequired && v.Smooth == 0:
		return StyleAggressive, v, true
	case v.Smooth >= c.VotesRequired && v.Aggressive == 0:
		return StyleSmooth, v, true
	}
	return StyleNeutral, v, false
}

// #endregion classify

// #region propose
// Propose computes the delta for one epoch. An unconfident classification
// yields a zero delta.
func (e *Engine) Propose(s pattern.Summary, current phenotype.Phenotype) Proposal {
	style, votes, ok := e.Classify(s)
	p := Proposal{Style: style, Votes: votes, Confident: ok}
	if !ok {
		return p
	}

	c := e.config
	dev := e.deviations(s, style)
	for f := phenotype.Field(0); f < phenotype.NumFields; f++ {
		if e.protected[f] && !e.approved[f] {
			continue
		}
		b := phenotype.FieldBounds(f)
		cur := current.Get(f)
		target := b.Clamp(b.Default * (1 + c.Gain*dev[f]))

		adj := c.LearningRate * (target - cur)
		limit := c.GradualFraction * math.Max(math.Abs(cur), b.Min)
		if math.Abs(adj) > limit {
			adj = math.Copysign(limit, adj)
		}
		if math.Abs(adj) < 1e-9 {
			continue
		}
		p.Delta.Fields[f] = adj
		if e.protected[f] {
			p.Delta.UserApproved = true
		}
	}

	for k := phenotype.TraitKind(0); k < phenotype.NumTraits; k++ {
		p.Delta.TraitSteps[k] = e.traitStep(s, current, k, style)
	}

	p.Delta.Reason = fmt.Sprintf("style=%s votes=%d/%d frames=%d", style, votes.Aggressive, votes.Smooth, s.Frames)
	return p
}

// deviations maps the summary to a signed deviation in [-1, 1] per field.
// Fields with no evidence keep deviation 0 and relax toward their default.
func (e *Engine) deviations(s pattern.Summary, style Style) [phenotype.NumFields]float64 {
	c := e.config
	var d [phenotype.NumFields]float64

	steer := e.rateDeviation(s, input.AxisSteering)
	d[phenotype.SensitivityField(input.AxisThrottle)] = e.rateDeviation(s, input.AxisThrottle)

	brake := e.rateDeviation(s, input.AxisBraking)
	if s.BrakeEvents > 0 && c.BrakeTimingScale > 0 {
		brake = 0.5*brake + s.BrakeOffsetMean/c.BrakeTimingScale
	}

	// Steering and brake response always move in the classified direction,
	// whichever votes carried the classification.
	switch style {
	case StyleAggressive:
		if c.AggressiveVariance > 0 {
			steer = math.Max(steer, s.SteeringRateVariance()/c.AggressiveVariance-1)
		}
		steer = math.Max(steer, c.StyleFloor)
		brake = math.Max(brake, c.StyleFloor)
	case StyleSmooth:
		if c.SmoothVariance > 0 {
			steer = math.Min(steer, s.SteeringRateVariance()/c.SmoothVariance-1)
		}
		steer = math.Min(steer, -c.StyleFloor)
		brake = math.Min(brake, -c.StyleFloor)
	}
	d[phenotype.SensitivityField(input.AxisSteering)] = clampUnit(steer)
	d[phenotype.SensitivityField(input.AxisBraking)] = clampUnit(brake)

	if s.GripSamples > 0 && c.ReferenceGrip > 0 {
		// a firm grip needs less feedback
		d[phenotype.HapticField(phenotype.HapticGain)] = -clampUnit((s.GripMean - c.ReferenceGrip) / c.ReferenceGrip)
	}
	switch style {
	case StyleAggressive:
		d[phenotype.HapticField(phenotype.HapticLinearity)] = 0.5
	case StyleSmooth:
		d[phenotype.HapticField(phenotype.HapticLinearity)] = -0.5
	}
	if c.AggressiveVariance > 0 {
		d[phenotype.HapticField(phenotype.HapticDeadzone)] = clampUnit(s.SteeringRateVariance()/c.AggressiveVariance - 1)
	}
	if s.ConductanceSamples > 0 && c.ReferenceStress > 0 {
		d[phenotype.HapticField(phenotype.HapticDamping)] = clampUnit((s.ConductanceMean - c.ReferenceStress) / c.ReferenceStress)
	}
	return d
}

func (e *Engine) rateDeviation(s pattern.Summary, a input.Axis) float64 {
	ref := e.config.ReferenceRate[a]
	if ref <= 0 {
		return 0
	}
	return clampUnit((s.RateMean[a] - ref) / ref)
}

// traitStep moves a trait one level toward its dominant observed level.
// Steering style only moves in the direction the epoch's style allows.
func (e *Engine) traitStep(s pattern.Summary, current phenotype.Phenotype, k phenotype.TraitKind, style Style) int8 {
	level, share := s.Dominant(k)
	if share < e.config.MinTraitShare || share == 0 {
		return 0
	}
	cur := current.Trait(k)
	var step int8
	switch {
	case level > cur:
		step = 1
	case level < cur:
		step = -1
	default:
		return 0
	}
	if k == phenotype.TraitSteering {
		if (style == StyleAggressive && step < 0) || (style == StyleSmooth && step > 0) {
			return 0
		}
	}
	return step
}

// #endregion propose

// #region evolve
// Evolve runs one epoch against store. Cancellation is checked before the
// commit so a cancelled epoch never commits; an already committed phenotype
// is never rolled back.
func (e *Engine) Evolve(ctx context.Context, store Committer, s pattern.Summary) (Result, error) {
	start := time.Now()
	before := store.Current()
	res := Result{Before: before, After: before}
	res.Metrics.Frames = s.Frames

	if err := ctx.Err(); err != nil {
		res.Decision = Decision{Action: "cancelled", Reason: err.Error()}
		return res, err
	}

	res.Proposal = e.Propose(s, before)
	delta := res.Proposal.Delta

	if delta.IsZero() {
		reason := "no confident style"
		if res.Proposal.Confident {
			reason = "already at target"
		}
		res.Decision = Decision{Action: "no_op", Reason: reason}
		res.Metrics.EvolveTime = time.Since(start)
		e.logger.Info("epoch no-op", "style", string(res.Proposal.Style), "reason", reason, "frames", s.Frames)
		return res, nil
	}
	res.Metrics.DeltaL1 = delta.L1()
	for f := phenotype.Field(0); f < phenotype.NumFields; f++ {
		if delta.Fields[f] != 0 {
			res.Metrics.FieldsHit = append(res.Metrics.FieldsHit, f.String())
		}
	}
	for k := phenotype.TraitKind(0); k < phenotype.NumTraits; k++ {
		if delta.TraitSteps[k] != 0 {
			res.Metrics.TraitsHit = append(res.Metrics.TraitsHit, k.String())
		}
	}

	if err := ctx.Err(); err != nil {
		res.Decision = Decision{Action: "cancelled", Reason: err.Error()}
		res.Metrics.EvolveTime = time.Since(start)
		return res, err
	}

	next, err := store.Commit(delta)
	res.Metrics.EvolveTime = time.Since(start)
	if err != nil {
		var rejected *state.RejectedDeltaError
		reason := err.Error()
		if errors.As(err, &rejected) {
			reason = rejected.Decision.Reason
		}
		res.Decision = Decision{Action: "reject", Reason: reason}
		e.logger.Warn("epoch rejected", "style", string(res.Proposal.Style), "reason", reason)
		return res, fmt.Errorf("commit epoch: %w", err)
	}

	res.After = next
	res.Decision = Decision{
		Action: "commit",
		Reason: fmt.Sprintf("fields hit: %v, traits hit: %v, delta L1: %.6f", res.Metrics.FieldsHit, res.Metrics.TraitsHit, res.Metrics.DeltaL1),
	}
	e.logger.Info("epoch committed",
		"style", string(res.Proposal.Style),
		"epoch", next.Epoch,
		"version_id", next.VersionID,
		"delta_l1", res.Metrics.DeltaL1,
	)
	return res, nil
}

// #endregion evolve

// #region helpers
func clampUnit(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(-1, math.Min(1, v))
}

func finiteSummary(s pattern.Summary) bool {
	vals := []float64{s.BrakeOffsetMean, s.GripMean, s.ConductanceMean, s.ThrottleMean}
	vals = append(vals, s.RateMean[:]...)
	vals = append(vals, s.RateVariance[:]...)
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// #endregion helpers
