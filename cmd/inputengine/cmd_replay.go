package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/adaptive-input/internal/replay"
)

var replayFlags struct {
	verify  bool
	jsonOut bool
}

var replayCmd = &cobra.Command{
	Use:   "replay <fixture.yaml|fixture.json>...",
	Short: "Replay recorded sessions deterministically",
	Long: `Replays each fixture through a full session with epochs evaluated
inline, so the same fixture always produces the same decisions. With
--verify the fixture's expectations must hold.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runReplay,
}

func init() {
	f := replayCmd.Flags()
	f.BoolVar(&replayFlags.verify, "verify", false, "fail when a fixture's expectations do not hold")
	f.BoolVar(&replayFlags.jsonOut, "json", false, "output as JSON")
}

type replayRow struct {
	Fixture        string                `json:"fixture"`
	Frames         int                   `json:"frames"`
	Dropped        int                   `json:"dropped"`
	Promotions     int                   `json:"promotions"`
	Commits        int                   `json:"commits"`
	Rejects        int                   `json:"rejects"`
	NoOps          int                   `json:"no_ops"`
	MeanConfidence float64               `json:"mean_confidence"`
	Epochs         []replay.EpochOutcome `json:"epochs"`
	Verify         string                `json:"verify,omitempty"`
}

func runReplay(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	var rows []replayRow
	failed := 0
	for _, path := range args {
		f, err := replay.LoadFixture(path)
		if err != nil {
			return err
		}
		sum, err := replay.ReplayFixture(cmd.Context(), f, cfg.Options())
		if err != nil {
			return fmt.Errorf("replay %s: %w", path, err)
		}
		row := replayRow{
			Fixture:        path,
			Frames:         sum.Frames,
			Dropped:        sum.Dropped,
			Promotions:     sum.Promotions,
			Commits:        sum.Commits,
			Rejects:        sum.Rejects,
			NoOps:          sum.NoOps,
			MeanConfidence: sum.MeanConfidence,
			Epochs:         sum.Epochs,
		}
		if replayFlags.verify {
			row.Verify = "ok"
			if err := f.Expect.Verify(sum); err != nil {
				row.Verify = err.Error()
				failed++
			}
		}
		rows = append(rows, row)
	}

	if replayFlags.jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rows); err != nil {
			return err
		}
	} else {
		for _, r := range rows {
			fmt.Fprintf(out, "%s: %d frames, %d dropped, %d promotions, %d commits, %d rejects, %d no-ops, confidence %.3f\n",
				r.Fixture, r.Frames, r.Dropped, r.Promotions, r.Commits, r.Rejects, r.NoOps, r.MeanConfidence)
			for _, e := range r.Epochs {
				fmt.Fprintf(out, "  %-11s %-10s %-9s %s\n", e.Trigger, e.Style, e.Action, e.Reason)
			}
			if r.Verify != "" {
				fmt.Fprintf(out, "  verify: %s\n", r.Verify)
			}
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d fixtures failed verification", failed, len(rows))
	}
	return nil
}
