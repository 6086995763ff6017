package replay

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/adaptive-input/internal/engine"
	"github.com/danielpatrickdp/adaptive-input/internal/input"
	"github.com/danielpatrickdp/adaptive-input/internal/pattern"
	"github.com/danielpatrickdp/adaptive-input/internal/phenotype"
	"github.com/danielpatrickdp/adaptive-input/internal/sim"
)

// #region fixture-types

// Fixture is a recorded or scripted session. Frames may be listed
// explicitly, generated from synthetic driver segments, or both (explicit
// frames first).
type Fixture struct {
	Description string            `yaml:"description" json:"description"`
	Start       *FixturePhenotype `yaml:"start,omitempty" json:"start,omitempty"`
	Config      FixtureConfig     `yaml:"config" json:"config"`
	Frames      []FixtureFrame    `yaml:"frames,omitempty" json:"frames,omitempty"`
	Generate    []FixtureSegment  `yaml:"generate,omitempty" json:"generate,omitempty"`
	Expect      FixtureExpect     `yaml:"expect" json:"expect"`
}

// FixturePhenotype overrides fields of the neutral phenotype by name.
type FixturePhenotype struct {
	Fields map[string]float64 `yaml:"fields,omitempty" json:"fields,omitempty"`
	Traits map[string]uint8   `yaml:"traits,omitempty" json:"traits,omitempty"`
}

// FixtureConfig overrides the session options used for the run.
type FixtureConfig struct {
	SamplingRateHz float64 `yaml:"sampling_rate_hz,omitempty" json:"sampling_rate_hz,omitempty"`
	WindowSeconds  float64 `yaml:"window_seconds,omitempty" json:"window_seconds,omitempty"`
	EpochFrames    int     `yaml:"epoch_frames,omitempty" json:"epoch_frames,omitempty"`
}

// FixtureFrame is one sensor frame. Auxiliary channels left out are
// treated as unavailable.
type FixtureFrame struct {
	AtMs        float64    `yaml:"at_ms" json:"at_ms"`
	Steering    float64    `yaml:"steering" json:"steering"`
	Throttle    float64    `yaml:"throttle" json:"throttle"`
	Brake       float64    `yaml:"brake" json:"brake"`
	Pressure    []*float64 `yaml:"pressure,omitempty" json:"pressure,omitempty"`
	Yaw         *float64   `yaml:"yaw,omitempty" json:"yaw,omitempty"`
	Proximity   []*float64 `yaml:"proximity,omitempty" json:"proximity,omitempty"`
	Conductance *float64   `yaml:"conductance,omitempty" json:"conductance,omitempty"`
	LatencyMs   float64    `yaml:"latency_ms,omitempty" json:"latency_ms,omitempty"`
	CornerEntry bool       `yaml:"corner_entry,omitempty" json:"corner_entry,omitempty"`
}

// FixtureSegment generates frames from a synthetic driver profile.
type FixtureSegment struct {
	Profile string  `yaml:"profile" json:"profile"`
	Seconds float64 `yaml:"seconds" json:"seconds"`
	Seed    int64   `yaml:"seed,omitempty" json:"seed,omitempty"`
}

// FixtureExpect lists the outcomes a replay must reproduce. Unset fields
// are not checked.
type FixtureExpect struct {
	Decisions     []string `yaml:"decisions,omitempty" json:"decisions,omitempty"`
	Commits       *int     `yaml:"commits,omitempty" json:"commits,omitempty"`
	Rejects       *int     `yaml:"rejects,omitempty" json:"rejects,omitempty"`
	MinPromotions *int     `yaml:"min_promotions,omitempty" json:"min_promotions,omitempty"`
	Style         string   `yaml:"style,omitempty" json:"style,omitempty"`
	SteeringStyle *uint8   `yaml:"steering_style,omitempty" json:"steering_style,omitempty"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads a fixture file. Files ending in .json are parsed as
// JSON, anything else as YAML.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &f)
	} else {
		err = yaml.Unmarshal(data, &f)
	}
	if err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// WriteFixture writes f as YAML, or JSON when path ends in .json.
func WriteFixture(path string, f *Fixture) error {
	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".json") {
		data, err = json.MarshalIndent(f, "", "  ")
	} else {
		data, err = yaml.Marshal(f)
	}
	if err != nil {
		return fmt.Errorf("encode fixture: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write fixture %s: %w", path, err)
	}
	return nil
}

// StartPhenotype returns the neutral phenotype with the fixture overrides
// applied.
func (f *Fixture) StartPhenotype() (phenotype.Phenotype, error) {
	p := phenotype.Default()
	if f.Start == nil {
		return p, nil
	}
	for name, v := range f.Start.Fields {
		field, ok := phenotype.ParseField(name)
		if !ok {
			return p, fmt.Errorf("start: unknown field %q", name)
		}
		p = p.With(field, v)
	}
	for name, v := range f.Start.Traits {
		k, ok := parseTrait(name)
		if !ok {
			return p, fmt.Errorf("start: unknown trait %q", name)
		}
		p.Traits[k] = v
	}
	if err := p.Validate(); err != nil {
		return p, fmt.Errorf("start: %w", err)
	}
	return p, nil
}

// Options applies the fixture config over base.
func (f *Fixture) Options(base engine.Options) engine.Options {
	opts := base
	c := f.Config
	if c.SamplingRateHz > 0 || c.WindowSeconds > 0 {
		rate, window := c.SamplingRateHz, c.WindowSeconds
		if rate <= 0 {
			rate = 1000
		}
		if window <= 0 {
			window = 8
		}
		opts.Pattern = pattern.ConfigFor(rate, window)
		opts.Predict.Step = time.Duration(float64(time.Second) / rate)
	}
	if c.EpochFrames > 0 {
		opts.EpochFrames = c.EpochFrames
	}
	return opts
}

// InputFrames returns the explicit frames followed by the generated
// segments, with segment timestamps continuing after the previous frame.
func (f *Fixture) InputFrames() ([]input.Frame, error) {
	out := make([]input.Frame, 0, len(f.Frames))
	for _, ff := range f.Frames {
		out = append(out, ff.Frame())
	}

	rate := f.Config.SamplingRateHz
	if rate <= 0 {
		rate = 1000
	}
	period := time.Duration(float64(time.Second) / rate)
	for i, seg := range f.Generate {
		p, err := sim.ByName(seg.Profile)
		if err != nil {
			return nil, fmt.Errorf("segment %d: %w", i, err)
		}
		var offset time.Duration
		if len(out) > 0 {
			offset = out[len(out)-1].At + period
		}
		g := sim.NewGenerator(p, rate, seg.Seed)
		n := int(seg.Seconds * rate)
		for j := 0; j < n; j++ {
			fr := g.Next()
			fr.At += offset
			out = append(out, fr)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("fixture has no frames")
	}
	return out, nil
}

// Frame converts a fixture frame to an input frame.
func (ff FixtureFrame) Frame() input.Frame {
	fr := input.Frame{
		At:          time.Duration(ff.AtMs * float64(time.Millisecond)),
		Steering:    ff.Steering,
		Throttle:    ff.Throttle,
		Brake:       ff.Brake,
		Latency:     time.Duration(ff.LatencyMs * float64(time.Millisecond)),
		CornerEntry: ff.CornerEntry,
	}
	for i, v := range ff.Pressure {
		if i < input.NumPressureSensors && v != nil {
			fr.Pressure[i] = input.Some(*v)
		}
	}
	for i, v := range ff.Proximity {
		if i < input.NumProximity && v != nil {
			fr.Proximity[i] = input.Some(*v)
		}
	}
	if ff.Yaw != nil {
		fr.Orientation[input.Yaw] = input.Some(*ff.Yaw)
	}
	if ff.Conductance != nil {
		fr.Conductance = input.Some(*ff.Conductance)
	}
	return fr
}

// FromFrame records an input frame as a fixture frame.
func FromFrame(fr input.Frame) FixtureFrame {
	ff := FixtureFrame{
		AtMs:        float64(fr.At) / float64(time.Millisecond),
		Steering:    fr.Steering,
		Throttle:    fr.Throttle,
		Brake:       fr.Brake,
		LatencyMs:   float64(fr.Latency) / float64(time.Millisecond),
		CornerEntry: fr.CornerEntry,
	}
	reading := func(r input.Reading) *float64 {
		if !r.Valid {
			return nil
		}
		v := r.Value
		return &v
	}
	for _, r := range fr.Pressure {
		ff.Pressure = append(ff.Pressure, reading(r))
	}
	for _, r := range fr.Proximity {
		ff.Proximity = append(ff.Proximity, reading(r))
	}
	ff.Yaw = reading(fr.Orientation[input.Yaw])
	ff.Conductance = reading(fr.Conductance)
	return ff
}

func parseTrait(name string) (phenotype.TraitKind, bool) {
	for k := phenotype.TraitKind(0); k < phenotype.NumTraits; k++ {
		if k.String() == name {
			return k, true
		}
	}
	return 0, false
}

// #endregion fixture-loader
