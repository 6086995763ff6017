package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/adaptive-input/internal/egress"
	"github.com/danielpatrickdp/adaptive-input/internal/input"
)

var watchFlags struct {
	count int
	stats bool
}

var errWatchDone = errors.New("watch count reached")

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print controls streamed by a running serve",
	RunE:  runWatch,
}

func init() {
	f := watchCmd.Flags()
	f.IntVar(&watchFlags.count, "count", 0, "stop after N controls (0 streams until interrupted)")
	f.BoolVar(&watchFlags.stats, "stats", false, "print the phenotype and session counters first")
}

func runWatch(cmd *cobra.Command, _ []string) error {
	client, err := egress.Dial(cfg.Egress.Addr)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	out := cmd.OutOrStdout()

	if watchFlags.stats {
		p, err := client.Phenotype(ctx)
		if err != nil {
			return err
		}
		st, err := client.Stats(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Frames:     %d (dropped %d), %d promotions\n", st.Frames, st.Dropped, st.Promotions)
		fmt.Fprintf(out, "Epochs:     %d run, %d commits, %d rejects\n", st.EpochsRun, st.Commits, st.Rejects)
		printPhenotype(out, p)
	}

	n := 0
	err = client.Stream(ctx, func(c egress.Control) error {
		steer := c.Axes[input.AxisSteering]
		fmt.Fprintf(out, "%8d %10s steer %+.3f (next %+.3f) throttle %.3f brake %.3f conf %.2f coh %.2f fb %.3f epoch %d\n",
			c.Seq, c.At, steer.Output, steer.Predicted,
			c.Axes[input.AxisThrottle].Output, c.Axes[input.AxisBraking].Output,
			c.Confidence, c.Coherence, c.Feedback, c.Epoch)
		n++
		if watchFlags.count > 0 && n >= watchFlags.count {
			return errWatchDone
		}
		return nil
	})
	if errors.Is(err, errWatchDone) || ctx.Err() != nil {
		return nil
	}
	return err
}
