package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/adaptive-input/internal/eval"
	"github.com/danielpatrickdp/adaptive-input/internal/input"
	"github.com/danielpatrickdp/adaptive-input/internal/phenotype"
	"github.com/danielpatrickdp/adaptive-input/internal/profile"
)

var inspectFlags struct {
	player  string
	last    int
	version string
	jsonOut bool
}

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Show stored player profiles and their version history",
	RunE:  runInspect,
}

func init() {
	f := inspectCmd.Flags()
	f.StringVar(&inspectFlags.player, "player", "", "player to inspect (lists players when empty)")
	f.IntVar(&inspectFlags.last, "last", 20, "show N most recent versions")
	f.StringVar(&inspectFlags.version, "version", "", "show a single version in detail")
	f.BoolVar(&inspectFlags.jsonOut, "json", false, "output as JSON instead of a table")
}

type versionRow struct {
	VersionID string             `json:"version_id"`
	ParentID  string             `json:"parent_id,omitempty"`
	Epoch     uint64             `json:"epoch"`
	CreatedAt string             `json:"created_at"`
	Fields    map[string]float64 `json:"fields"`
	Traits    map[string]uint8   `json:"traits"`
	Eval      *eval.Result       `json:"eval,omitempty"`
	Error     string             `json:"error,omitempty"`
}

func toRow(v profile.Version) versionRow {
	r := versionRow{
		VersionID: v.VersionID,
		ParentID:  v.ParentID,
		Epoch:     v.Epoch,
		CreatedAt: v.CreatedAt.Format(time.RFC3339),
		Fields:    make(map[string]float64, phenotype.NumFields),
		Traits:    make(map[string]uint8, phenotype.NumTraits),
	}
	for f := phenotype.Field(0); f < phenotype.NumFields; f++ {
		r.Fields[f.String()] = v.Phenotype.Get(f)
	}
	for k := phenotype.TraitKind(0); k < phenotype.NumTraits; k++ {
		r.Traits[k.String()] = v.Phenotype.Traits[k]
	}
	if v.Err != nil {
		r.Error = v.Err.Error()
	}
	return r
}

func runInspect(cmd *cobra.Command, _ []string) error {
	store, err := openProfiles()
	if err != nil {
		return err
	}
	defer store.Close()
	out := cmd.OutOrStdout()

	if inspectFlags.version != "" {
		v, err := store.Version(inspectFlags.version)
		if err != nil {
			return err
		}
		ev := eval.NewHarness(eval.DefaultConfig(), cfg.Options().Actuator).Run(v.Phenotype)
		if inspectFlags.jsonOut {
			row := toRow(v)
			row.Eval = &ev
			return writeJSON(out, row)
		}
		fmt.Fprintf(out, "Version: %s (player %s, parent %s, epoch %d, %s)\n",
			v.VersionID, v.PlayerID, v.ParentID, v.Epoch, v.CreatedAt.Format(time.RFC3339))
		if v.Err != nil {
			fmt.Fprintf(out, "Warning: %v\n", v.Err)
		}
		printPhenotype(out, v.Phenotype)
		fmt.Fprintf(out, "Eval:       %s\n", ev.Reason)
		for _, m := range ev.Metrics {
			status := "pass"
			if !m.Pass {
				status = "FAIL"
			}
			if m.Informational {
				status += " (info)"
			}
			fmt.Fprintf(out, "  %-22s %8.4f  %s\n", m.Name, m.Value, status)
		}
		return nil
	}

	if inspectFlags.player == "" {
		players, err := store.Players()
		if err != nil {
			return err
		}
		if inspectFlags.jsonOut {
			return writeJSON(out, players)
		}
		if len(players) == 0 {
			fmt.Fprintln(out, "no players stored")
		}
		for _, p := range players {
			fmt.Fprintln(out, p)
		}
		return nil
	}

	versions, err := store.ListVersions(inspectFlags.player, inspectFlags.last)
	if err != nil {
		return err
	}
	if inspectFlags.jsonOut {
		rows := make([]versionRow, len(versions))
		for i, v := range versions {
			rows[i] = toRow(v)
		}
		return writeJSON(out, rows)
	}
	if len(versions) == 0 {
		fmt.Fprintf(out, "no versions for player %s\n", inspectFlags.player)
		return nil
	}
	fmt.Fprintf(out, "%-36s  %5s  %-20s  %8s  %8s  %6s\n", "VERSION", "EPOCH", "CREATED", "STEERING", "BRAKING", "STYLE")
	for _, v := range versions {
		mark := ""
		if v.Err != nil {
			mark = "  (corrupt)"
		}
		fmt.Fprintf(out, "%-36s  %5d  %-20s  %8.4f  %8.4f  %6d%s\n",
			v.VersionID, v.Epoch, v.CreatedAt.Format(time.RFC3339),
			v.Phenotype.Get(phenotype.SensitivityField(input.AxisSteering)),
			v.Phenotype.Get(phenotype.SensitivityField(input.AxisBraking)),
			v.Phenotype.Trait(phenotype.TraitSteering), mark)
	}
	return nil
}

func printPhenotype(out io.Writer, p phenotype.Phenotype) {
	fmt.Fprintf(out, "Phenotype:  epoch %d, version %s\n", p.Epoch, p.VersionID)
	for f := phenotype.Field(0); f < phenotype.NumFields; f++ {
		fmt.Fprintf(out, "  %-22s %.4f\n", f, p.Get(f))
	}
	for k := phenotype.TraitKind(0); k < phenotype.NumTraits; k++ {
		fmt.Fprintf(out, "  %-22s %d\n", k, p.Traits[k])
	}
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
