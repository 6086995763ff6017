package engine

import (
	"log/slog"

	"github.com/danielpatrickdp/adaptive-input/internal/evolution"
	"github.com/danielpatrickdp/adaptive-input/internal/gate"
	"github.com/danielpatrickdp/adaptive-input/internal/haptics"
	"github.com/danielpatrickdp/adaptive-input/internal/input"
	"github.com/danielpatrickdp/adaptive-input/internal/pattern"
	"github.com/danielpatrickdp/adaptive-input/internal/phenotype"
	"github.com/danielpatrickdp/adaptive-input/internal/predict"
	"github.com/danielpatrickdp/adaptive-input/internal/promote"
)

// #region output
// Output is what the real-time path exposes for one frame.
type Output struct {
	Frame     input.Frame
	Axes      promote.Set
	Forecast  predict.Forecast
	Phenotype *phenotype.Phenotype // snapshot in force for this frame; read-only
	Feedback  float64              // signed steering feedback force, N
	Dropped   bool                 // frame rejected as a timing anomaly
}

// Sink receives per-frame output. Publish is called on the real-time path
// and must not block.
type Sink interface {
	Publish(Output)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Output)

func (f SinkFunc) Publish(o Output) { f(o) }

// #endregion output

// #region options
// Options configures a Session.
type Options struct {
	Promote   promote.Config
	Pattern   pattern.Config
	Predict   predict.Config
	Evolution evolution.Config
	Gate      gate.GateConfig
	Actuator  haptics.Actuator

	// EpochFrames triggers an epoch every N accepted frames; 0 means only
	// at session end.
	EpochFrames int
	// InlineEpochs runs epochs synchronously inside Process. Used for
	// deterministic replay; the live loop hands epochs to a worker instead.
	InlineEpochs bool

	Sink    Sink
	OnEpoch func(EpochReport)
	Logger  *slog.Logger
}

// DefaultOptions returns a 1 kHz session with a one-minute epoch.
func DefaultOptions() Options {
	return Options{
		Promote:     promote.DefaultConfig(),
		Pattern:     pattern.DefaultConfig(),
		Predict:     predict.DefaultConfig(),
		Evolution:   evolution.DefaultConfig(),
		Gate:        gate.DefaultGateConfig(),
		Actuator:    haptics.DefaultActuator(),
		EpochFrames: 60_000,
	}
}

// #endregion options

// #region epoch-report
// Epoch triggers.
const (
	TriggerEpoch      = "epoch"
	TriggerManual     = "manual"
	TriggerSessionEnd = "session_end"
)

// EpochReport describes one evolution run. It is delivered to
// Options.OnEpoch on the evolution goroutine, never on the real-time path
// unless InlineEpochs is set.
type EpochReport struct {
	SessionID string
	Trigger   string
	Summary   pattern.Summary
	Result    evolution.Result
	Err       error
}

// #endregion epoch-report

// #region stats
// Stats are session counters.
type Stats struct {
	Frames        uint64
	Dropped       uint64
	EpochsRun     uint64
	EpochsSkipped uint64
	Commits       uint64
	Rejects       uint64
	Promotions    uint64
}

// #endregion stats
