package main

import (
	"fmt"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/danielpatrickdp/adaptive-input/internal/engine"
	"github.com/danielpatrickdp/adaptive-input/internal/input"
	"github.com/danielpatrickdp/adaptive-input/internal/replay"
)

var simulateFlags struct {
	profile  string
	seconds  float64
	seed     int64
	player   string
	record   string
	realtime bool
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Drive a session with a synthetic driver profile",
	Long: `Runs a live session (frame loop and evolution worker on separate
goroutines) fed by a synthetic driver. With --player the profile is loaded
from and committed back to the profile database.`,
	RunE: runSimulate,
}

func init() {
	f := simulateCmd.Flags()
	f.StringVar(&simulateFlags.profile, "profile", "aggressive", "driver profile: aggressive, smooth or idle")
	f.Float64Var(&simulateFlags.seconds, "seconds", 120, "simulated seconds")
	f.Int64Var(&simulateFlags.seed, "seed", 1, "generator seed")
	f.StringVar(&simulateFlags.player, "player", "", "persist to this player's profile")
	f.StringVar(&simulateFlags.record, "record", "", "write the generated frames as a replay fixture")
	f.BoolVar(&simulateFlags.realtime, "realtime", false, "pace frames to wall-clock time")
}

func runSimulate(cmd *cobra.Command, _ []string) error {
	g, err := generator(simulateFlags.profile, simulateFlags.seed)
	if err != nil {
		return err
	}
	n := int(simulateFlags.seconds * cfg.SamplingRateHz)

	opts := cfg.Options()
	var (
		mu      sync.Mutex
		reports []engine.EpochReport
		fixture *replay.Fixture
	)
	opts.OnEpoch = func(rep engine.EpochReport) {
		mu.Lock()
		reports = append(reports, rep)
		mu.Unlock()
	}
	if simulateFlags.record != "" {
		fixture = &replay.Fixture{
			Description: fmt.Sprintf("%s driver, seed %d", simulateFlags.profile, simulateFlags.seed),
			Config: replay.FixtureConfig{
				SamplingRateHz: cfg.SamplingRateHz,
				WindowSeconds:  cfg.WindowSeconds,
				EpochFrames:    opts.EpochFrames,
			},
		}
		opts.Sink = engine.SinkFunc(func(o engine.Output) {
			if !o.Dropped {
				fixture.Frames = append(fixture.Frames, replay.FromFrame(o.Frame))
			}
		})
	}

	sess, err := newPlayerSession(simulateFlags.player, opts)
	if err != nil {
		return err
	}
	defer sess.Close()

	frames := make(chan input.Frame, 256)
	eg, ctx := errgroup.WithContext(cmd.Context())
	eg.Go(func() error { return feed(ctx, g, n, simulateFlags.realtime, frames) })
	eg.Go(func() error { return sess.Run(ctx, frames) })
	if err := eg.Wait(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	st := sess.Stats()
	cur := sess.Store().Current()
	fmt.Fprintf(out, "Session:    %s\n", sess.ID())
	fmt.Fprintf(out, "Frames:     %d (dropped %d)\n", st.Frames, st.Dropped)
	fmt.Fprintf(out, "Promotions: %d\n", st.Promotions)
	fmt.Fprintf(out, "Epochs:     %d run, %d skipped, %d commits, %d rejects\n", st.EpochsRun, st.EpochsSkipped, st.Commits, st.Rejects)
	for i, rep := range reports {
		fmt.Fprintf(out, "  %2d %-11s %-10s %-9s %s\n", i+1, rep.Trigger, rep.Result.Proposal.Style, rep.Result.Decision.Action, rep.Result.Decision.Reason)
	}
	printPhenotype(out, cur)

	if sess.recorder != nil && sess.recorder.Failures() > 0 {
		return fmt.Errorf("%d epochs could not be persisted", sess.recorder.Failures())
	}
	if fixture != nil {
		if err := replay.WriteFixture(simulateFlags.record, fixture); err != nil {
			return err
		}
		fmt.Fprintf(out, "Recorded %d frames to %s\n", len(fixture.Frames), simulateFlags.record)
	}
	return nil
}
