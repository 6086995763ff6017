package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/adaptive-input/internal/engine"
	"github.com/danielpatrickdp/adaptive-input/internal/input"
	"github.com/danielpatrickdp/adaptive-input/internal/logging"
	"github.com/danielpatrickdp/adaptive-input/internal/pattern"
	"github.com/danielpatrickdp/adaptive-input/internal/phenotype"
	"github.com/danielpatrickdp/adaptive-input/internal/promote"
)

// Environment overrides.
const (
	EnvDB   = "INPUTENGINE_DB"
	EnvAddr = "INPUTENGINE_ADDR"
)

// #region types
// Config is the engine configuration file.
type Config struct {
	SamplingRateHz            float64            `yaml:"sampling_rate_hz"`
	WindowSeconds             float64            `yaml:"window_seconds"`
	EpochLength               time.Duration      `yaml:"epoch_length"`
	GradualAdaptationFraction float64            `yaml:"gradual_adaptation_fraction"`
	AxisPromotionThresholds   map[string]float64 `yaml:"axis_promotion_thresholds,omitempty"`
	AxisHysteresisThresholds  map[string]float64 `yaml:"axis_hysteresis_thresholds,omitempty"`
	DwellTimeMs               float64            `yaml:"dwell_time_ms"`
	ProtectedFields           []string           `yaml:"protected_fields"`
	ApprovedFields            []string           `yaml:"approved_fields,omitempty"`

	LearningRate      float64 `yaml:"learning_rate"`
	PredictionHorizon int     `yaml:"prediction_horizon"`
	CoherenceWindowMs float64 `yaml:"coherence_window_ms"`

	Log    LogConfig    `yaml:"log"`
	Store  StoreConfig  `yaml:"store"`
	Egress EgressConfig `yaml:"egress"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text | json | tint
}

// StoreConfig locates the profile database.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// EgressConfig configures the control-egress gRPC listener.
type EgressConfig struct {
	Addr string `yaml:"addr"`
}

// #endregion types

// #region defaults
// Default returns the built-in configuration: 1 kHz sampling, an 8 s
// window, one-minute epochs and a 10% gradual-adaptation cap.
func Default() Config {
	return Config{
		SamplingRateHz:            1000,
		WindowSeconds:             8,
		EpochLength:               time.Minute,
		GradualAdaptationFraction: 0.10,
		DwellTimeMs:               150,
		ProtectedFields:           []string{"haptic.linearity"},
		LearningRate:              0.25,
		PredictionHorizon:         4,
		CoherenceWindowMs:         250,
		Log:                       LogConfig{Level: "info", Format: "text"},
		Store:                     StoreConfig{Path: "inputengine.db"},
		Egress:                    EgressConfig{Addr: "127.0.0.1:7457"},
	}
}

// Load reads a YAML file over the defaults. Unknown keys are an error.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// ApplyEnv overrides the store path and egress address from the
// environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvDB); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv(EnvAddr); v != "" {
		c.Egress.Addr = v
	}
}

// #endregion defaults

// #region validate
// Validate checks ranges and names.
func (c Config) Validate() error {
	var errs []error
	if c.SamplingRateHz <= 0 {
		errs = append(errs, fmt.Errorf("sampling_rate_hz must be > 0, got %v", c.SamplingRateHz))
	}
	if c.WindowSeconds <= 0 {
		errs = append(errs, fmt.Errorf("window_seconds must be > 0, got %v", c.WindowSeconds))
	}
	if c.EpochLength < 0 {
		errs = append(errs, fmt.Errorf("epoch_length must be >= 0, got %v", c.EpochLength))
	}
	if c.GradualAdaptationFraction <= 0 || c.GradualAdaptationFraction > 1 {
		errs = append(errs, fmt.Errorf("gradual_adaptation_fraction must be in (0, 1], got %v", c.GradualAdaptationFraction))
	}
	if c.LearningRate <= 0 || c.LearningRate > 1 {
		errs = append(errs, fmt.Errorf("learning_rate must be in (0, 1], got %v", c.LearningRate))
	}
	if c.DwellTimeMs < 0 {
		errs = append(errs, fmt.Errorf("dwell_time_ms must be >= 0, got %v", c.DwellTimeMs))
	}
	if c.PredictionHorizon < 1 {
		errs = append(errs, fmt.Errorf("prediction_horizon must be >= 1, got %d", c.PredictionHorizon))
	}
	for name, v := range c.AxisPromotionThresholds {
		if _, ok := input.ParseAxis(name); !ok {
			errs = append(errs, fmt.Errorf("axis_promotion_thresholds: unknown axis %q", name))
		} else if v <= 0 {
			errs = append(errs, fmt.Errorf("axis_promotion_thresholds.%s must be > 0", name))
		}
	}
	for name := range c.AxisHysteresisThresholds {
		if _, ok := input.ParseAxis(name); !ok {
			errs = append(errs, fmt.Errorf("axis_hysteresis_thresholds: unknown axis %q", name))
		}
	}
	if len(errs) == 0 {
		p := c.promoteThresholds()
		for _, a := range input.Axes() {
			if p.Hysteresis[a] < 0 || p.Hysteresis[a] >= p.Promote[a] {
				errs = append(errs, fmt.Errorf("hysteresis for %s (%v) must be in [0, %v)", a, p.Hysteresis[a], p.Promote[a]))
			}
		}
	}
	for _, list := range [][]string{c.ProtectedFields, c.ApprovedFields} {
		for _, name := range list {
			if _, ok := phenotype.ParseField(name); !ok {
				errs = append(errs, fmt.Errorf("unknown phenotype field %q", name))
			}
		}
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "text", "json", "tint":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text, json or tint, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// #endregion validate

// #region options
// Options maps the file onto engine options. The config must be valid.
func (c Config) Options() engine.Options {
	opts := engine.DefaultOptions()

	opts.Pattern = pattern.ConfigFor(c.SamplingRateHz, c.WindowSeconds)
	opts.Promote = c.promoteThresholds()

	period := time.Duration(float64(time.Second) / c.SamplingRateHz)
	opts.Predict.Step = period
	opts.Predict.Horizon = c.PredictionHorizon
	opts.Predict.CoherenceWindow = time.Duration(c.CoherenceWindowMs * float64(time.Millisecond))

	protected := parseFields(c.ProtectedFields)
	opts.Gate.MaxFraction = c.GradualAdaptationFraction
	opts.Gate.Protected = protected
	opts.Evolution.GradualFraction = c.GradualAdaptationFraction
	opts.Evolution.LearningRate = c.LearningRate
	opts.Evolution.Protected = protected
	opts.Evolution.Approved = parseFields(c.ApprovedFields)

	opts.EpochFrames = int(c.EpochLength.Seconds() * c.SamplingRateHz)
	return opts
}

func (c Config) promoteThresholds() promote.Config {
	p := promote.DefaultConfig()
	p.Dwell = time.Duration(c.DwellTimeMs * float64(time.Millisecond))
	for name, v := range c.AxisPromotionThresholds {
		if a, ok := input.ParseAxis(name); ok {
			p.Promote[a] = v
			p.Hysteresis[a] = v * 0.5
		}
	}
	for name, v := range c.AxisHysteresisThresholds {
		if a, ok := input.ParseAxis(name); ok {
			p.Hysteresis[a] = v
		}
	}
	return p
}

func parseFields(names []string) []phenotype.Field {
	out := make([]phenotype.Field, 0, len(names))
	for _, n := range names {
		if f, ok := phenotype.ParseField(n); ok {
			out = append(out, f)
		}
	}
	return out
}

// #endregion options
