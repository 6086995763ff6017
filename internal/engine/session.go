package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/danielpatrickdp/adaptive-input/internal/evolution"
	"github.com/danielpatrickdp/adaptive-input/internal/gate"
	"github.com/danielpatrickdp/adaptive-input/internal/haptics"
	"github.com/danielpatrickdp/adaptive-input/internal/input"
	"github.com/danielpatrickdp/adaptive-input/internal/logging"
	"github.com/danielpatrickdp/adaptive-input/internal/pattern"
	"github.com/danielpatrickdp/adaptive-input/internal/phenotype"
	"github.com/danielpatrickdp/adaptive-input/internal/predict"
	"github.com/danielpatrickdp/adaptive-input/internal/promote"
	"github.com/danielpatrickdp/adaptive-input/internal/state"
)

// ErrSessionEnded is returned by End when the session already ended.
var ErrSessionEnded = errors.New("session ended")

// #region session
// Session runs the adaptive pipeline for one player. Process is the
// real-time path and must be called from a single goroutine; epochs run
// on a separate cadence and reach the real-time path only through the
// store's atomic snapshot.
type Session struct {
	id     string
	opts   Options
	logger *slog.Logger

	store     *state.Store
	committer evolution.Committer // epochs commit through this; the store outside tests
	extractor *pattern.Extractor
	promoter  *promote.Promoter
	predictor *predict.Predictor
	evolver   *evolution.Engine
	renderer  *haptics.Renderer

	// owned by the Process goroutine
	accepted  uint64
	anomalies uint64
	modes     [input.NumAxes]promote.Mode
	last      Output

	summary atomic.Pointer[pattern.Summary] // latest window, published per accepted frame

	epochs    chan pattern.Summary
	evoMu     sync.Mutex // serialises epochs
	evoCtx    context.Context
	evoCancel context.CancelFunc
	ended     atomic.Bool

	frames, dropped, epochsRun, skipped atomic.Uint64
	commits, rejects, promotions        atomic.Uint64
}

// NewSession creates a session whose store starts at initial.
func NewSession(initial phenotype.Phenotype, opts Options) (*Session, error) {
	store, err := state.NewStore(initial, gate.NewGate(opts.Gate))
	if err != nil {
		return nil, fmt.Errorf("new session: %w", err)
	}
	return NewWithStore(store, opts), nil
}

// NewWithStore creates a session around an existing store.
func NewWithStore(store *state.Store, opts Options) *Session {
	id := uuid.New().String()
	logger := opts.Logger
	if logger == nil {
		logger = logging.New("engine")
	}
	logger = logger.With("session_id", id)

	evoCtx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:        id,
		opts:      opts,
		logger:    logger,
		store:     store,
		committer: store,
		extractor: pattern.NewExtractor(opts.Pattern),
		promoter:  promote.New(opts.Promote, logger.With("stage", "promote")),
		predictor: predict.New(opts.Predict),
		evolver:   evolution.New(opts.Evolution, logger.With("stage", "evolution")),
		renderer:  haptics.NewRenderer(opts.Actuator),
		epochs:    make(chan pattern.Summary),
		evoCtx:    evoCtx,
		evoCancel: cancel,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Store returns the phenotype store.
func (s *Session) Store() *state.Store { return s.store }

// Summary returns the most recent pattern summary.
func (s *Session) Summary() pattern.Summary {
	if sum := s.summary.Load(); sum != nil {
		return *sum
	}
	return pattern.Summary{}
}

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() Stats {
	return Stats{
		Frames:        s.frames.Load(),
		Dropped:       s.dropped.Load(),
		EpochsRun:     s.epochsRun.Load(),
		EpochsSkipped: s.skipped.Load(),
		Commits:       s.commits.Load(),
		Rejects:       s.rejects.Load(),
		Promotions:    s.promotions.Load(),
	}
}

// #endregion session

// #region realtime
// Process runs one frame through extraction, promotion and forecasting.
// It never blocks on evolution: a frame that completes an epoch hands the
// summary to the worker only if the worker is idle. A frame whose
// timestamp does not advance is dropped and the previous output returned
// with Dropped set.
func (s *Session) Process(f input.Frame) Output {
	sum := s.extractor.Ingest(f)
	if sum.TimingAnomalies != s.anomalies {
		s.anomalies = sum.TimingAnomalies
		s.dropped.Add(1)
		out := s.last
		out.Dropped = true
		return out
	}

	f = f.Normalize()
	axes := s.promoter.Observe(f)
	for i := range axes {
		if axes[i].Mode == promote.Promoted && s.modes[i] != promote.Promoted {
			s.promotions.Add(1)
		}
		s.modes[i] = axes[i].Mode
	}

	out := Output{Frame: f, Axes: axes, Phenotype: s.store.Snapshot()}
	out.Forecast = s.predictor.Forecast(f, sum, out.Phenotype, axes)
	if v, ok := f.Axis(input.AxisSteering); ok {
		out.Feedback = s.renderer.Render(out.Phenotype, out.Phenotype.Shape(input.AxisSteering, v), f.At)
	}
	s.last = out
	s.frames.Add(1)

	published := sum
	s.summary.Store(&published)

	s.accepted++
	if n := s.opts.EpochFrames; n > 0 && s.accepted%uint64(n) == 0 && !s.ended.Load() {
		s.triggerEpoch(sum)
	}
	if s.opts.Sink != nil {
		s.opts.Sink.Publish(out)
	}
	return out
}

func (s *Session) triggerEpoch(sum pattern.Summary) {
	if s.opts.InlineEpochs {
		s.runEpoch(s.evoCtx, sum, TriggerEpoch)
		return
	}
	select {
	case s.epochs <- sum:
	default:
		s.skipped.Add(1)
		s.logger.Warn("epoch skipped, evolution busy", "frames", sum.Frames)
	}
}

// #endregion realtime

// #region epochs
func (s *Session) runEpoch(ctx context.Context, sum pattern.Summary, trigger string) (evolution.Result, error) {
	s.evoMu.Lock()
	defer s.evoMu.Unlock()

	res, err := s.evolver.Evolve(ctx, s.committer, sum)
	s.epochsRun.Add(1)
	switch res.Decision.Action {
	case "commit":
		s.commits.Add(1)
	case "reject":
		s.rejects.Add(1)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("epoch failed", "error", err)
	}
	if s.opts.OnEpoch != nil {
		s.opts.OnEpoch(EpochReport{SessionID: s.id, Trigger: trigger, Summary: sum, Result: res, Err: err})
	}
	return res, err
}

func (s *Session) evolveLoop(ctx context.Context, done <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-done:
			return nil
		case <-s.evoCtx.Done():
			return nil
		case sum := <-s.epochs:
			s.runEpoch(s.evoCtx, sum, TriggerEpoch)
		}
	}
}

// Epoch runs one epoch synchronously on the current summary.
func (s *Session) Epoch(ctx context.Context) (evolution.Result, error) {
	if s.ended.Load() {
		return evolution.Result{}, ErrSessionEnded
	}
	return s.runEpoch(ctx, s.Summary(), TriggerManual)
}

// End closes the session: any in-flight epoch is cancelled and discarded,
// then the final session-end epoch runs synchronously under ctx. State
// already committed is kept.
func (s *Session) End(ctx context.Context) (evolution.Result, error) {
	if !s.ended.CompareAndSwap(false, true) {
		return evolution.Result{}, ErrSessionEnded
	}
	s.evoCancel()

	res, err := s.runEpoch(ctx, s.Summary(), TriggerSessionEnd)
	st := s.Stats()
	s.logger.Info("session ended",
		"frames", st.Frames,
		"dropped", st.Dropped,
		"epochs", st.EpochsRun,
		"skipped", st.EpochsSkipped,
		"commits", st.Commits,
		"final", res.Decision.Action,
	)
	return res, err
}

// #endregion epochs

// #region run
// Run drives both cadences until frames is closed or ctx is cancelled, then
// ends the session. The frame loop and the evolution worker run in one
// errgroup.
func (s *Session) Run(ctx context.Context, frames <-chan input.Frame) error {
	g, gctx := errgroup.WithContext(ctx)
	done := make(chan struct{})

	g.Go(func() error {
		return s.evolveLoop(gctx, done)
	})
	g.Go(func() error {
		defer close(done)
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case f, ok := <-frames:
				if !ok {
					return nil
				}
				s.Process(f)
			}
		}
	})

	runErr := g.Wait()
	_, endErr := s.End(ctx)
	if runErr != nil {
		return runErr
	}
	if endErr != nil && !errors.Is(endErr, ErrSessionEnded) {
		return fmt.Errorf("end session: %w", endErr)
	}
	return nil
}

// #endregion run
