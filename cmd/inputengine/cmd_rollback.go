package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rollbackFlags struct {
	player  string
	version string
}

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Point a player's active profile at an earlier version",
	RunE:  runRollback,
}

func init() {
	f := rollbackCmd.Flags()
	f.StringVar(&rollbackFlags.player, "player", "", "player whose profile is rolled back")
	f.StringVar(&rollbackFlags.version, "version", "", "version to make active")
	_ = rollbackCmd.MarkFlagRequired("player")
	_ = rollbackCmd.MarkFlagRequired("version")
}

func runRollback(cmd *cobra.Command, _ []string) error {
	store, err := openProfiles()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Rollback(rollbackFlags.player, rollbackFlags.version); err != nil {
		return fmt.Errorf("rollback %s: %w", rollbackFlags.player, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s now at %s\n", rollbackFlags.player, rollbackFlags.version)
	return nil
}
