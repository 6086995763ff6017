package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/adaptive-input/internal/config"
	"github.com/danielpatrickdp/adaptive-input/internal/logging"
	"github.com/danielpatrickdp/adaptive-input/internal/profile"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	configPath string
	logLevel   string
	logFormat  string
	dbPath     string
	addr       string
}

// cfg is the resolved configuration, loaded before any subcommand runs.
var cfg config.Config

var rootCmd = &cobra.Command{
	Use:   "inputengine",
	Short: "Adaptive controller-input engine",
	Long: "inputengine runs the adaptive input pipeline: dimensional promotion,\n" +
		"pattern extraction, prediction, and per-player phenotype evolution.",
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	PersistentPreRunE: loadConfig,
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&rootFlags.configPath, "config", "", "YAML config file (defaults apply when empty)")
	f.StringVar(&rootFlags.logLevel, "log-level", "", "debug, info, warn or error")
	f.StringVar(&rootFlags.logFormat, "log-format", "", "text, json or tint")
	f.StringVar(&rootFlags.dbPath, "db", "", "profile database path (env "+config.EnvDB+")")
	f.StringVar(&rootFlags.addr, "addr", "", "egress listen/dial address (env "+config.EnvAddr+")")

	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(rollbackCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.Version = version
}

// loadConfig resolves defaults, file, environment and flags in that order.
func loadConfig(cmd *cobra.Command, _ []string) error {
	var err error
	if rootFlags.configPath != "" {
		cfg, err = config.Load(rootFlags.configPath)
		if err != nil {
			return err
		}
	} else {
		cfg = config.Default()
	}
	cfg.ApplyEnv()

	if rootFlags.logLevel != "" {
		cfg.Log.Level = rootFlags.logLevel
	}
	if rootFlags.logFormat != "" {
		cfg.Log.Format = rootFlags.logFormat
	}
	if rootFlags.dbPath != "" {
		cfg.Store.Path = rootFlags.dbPath
	}
	if rootFlags.addr != "" {
		cfg.Egress.Addr = rootFlags.addr
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	level, _ := logging.ParseLevel(cfg.Log.Level)
	logging.Init(level, cfg.Log.Format, cmd.ErrOrStderr())
	return nil
}

func openProfiles() (*profile.Store, error) {
	store, err := profile.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open profiles %s: %w", cfg.Store.Path, err)
	}
	return store, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
