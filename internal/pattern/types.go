package pattern

import (
	"time"

	"github.com/danielpatrickdp/adaptive-input/internal/phenotype"
)

// #region config
// NumPrimary is the number of primary scalar channels (steering, throttle,
// brake), which share their indices with the matching input.Axis values.
const NumPrimary = 3

// Config holds window sizing and discretisation edges.
type Config struct {
	Capacity int // ring capacity in frames

	BrakeOnset float64       // brake level whose upward crossing counts as an onset
	PairWindow time.Duration // max distance between a corner cue and a brake onset
	MaxEvents  int           // brake-timing events retained

	// Bin edges (ascending, 3 edges -> 4 levels).
	SteeringRateBins [3]float64 // |steering rate| per second
	GripBins         [3]float64 // mean grip pressure
	ReactionBins     [3]float64 // |brake rate| per second
	ThrottleBins     [3]float64 // throttle position
	ThrottleRateBins [3]float64 // |throttle rate| per second
}

// DefaultConfig returns a window of 8 seconds at 1 kHz.
func DefaultConfig() Config {
	return ConfigFor(1000, 8)
}

// ConfigFor sizes the window for a sampling rate and window length.
func ConfigFor(samplingRateHz, windowSeconds float64) Config {
	capacity := int(samplingRateHz * windowSeconds)
	if capacity < 2 {
		capacity = 2
	}
	return Config{
		Capacity:         capacity,
		BrakeOnset:       0.1,
		PairWindow:       1500 * time.Millisecond,
		MaxEvents:        32,
		SteeringRateBins: [3]float64{0.5, 1.5, 3.0},
		GripBins:         [3]float64{0.25, 0.5, 0.75},
		ReactionBins:     [3]float64{0.5, 2.0, 5.0},
		ThrottleBins:     [3]float64{0.25, 0.5, 0.75},
		ThrottleRateBins: [3]float64{0.5, 1.5, 3.0},
	}
}

// #endregion config

// #region summary
// Summary is a snapshot of the rolling statistics over the window.
type Summary struct {
	Frames int
	Span   time.Duration

	// Mean and population variance of |rate| per primary channel, per second.
	RateMean     [NumPrimary]float64
	RateVariance [NumPrimary]float64
	ThrottleMean float64

	// BrakeOffsetMean is the mean brake-onset time relative to the corner
	// cue in seconds: positive is late, negative is early.
	BrakeOffsetMean float64
	BrakeEvents     int

	GripMean           float64
	GripSamples        int
	ConductanceMean    float64
	ConductanceSamples int

	// Consistency is 1/(1+cv) of the inter-frame interval, in [0, 1].
	Consistency  float64
	MeanInterval time.Duration

	// Traits counts discretised trait observations per level.
	Traits [phenotype.NumTraits][phenotype.MaxTraitLevels]int

	Ingested          uint64
	TimingAnomalies   uint64
	SensorUnavailable uint64
}

// SteeringRateMean is the mean |steering rate| over the window.
func (s Summary) SteeringRateMean() float64 { return s.RateMean[0] }

// SteeringRateVariance is the variance of |steering rate| over the window.
func (s Summary) SteeringRateVariance() float64 { return s.RateVariance[0] }

// Dominant returns the most observed level of a trait and its share of
// observations. Share is 0 when nothing was observed.
func (s Summary) Dominant(k phenotype.TraitKind) (uint8, float64) {
	var total, best int
	var level uint8
	for l := 0; l < int(k.Levels()); l++ {
		c := s.Traits[k][l]
		total += c
		if c > best {
			best = c
			level = uint8(l)
		}
	}
	if total == 0 {
		return 0, 0
	}
	return level, float64(best) / float64(total)
}

// #endregion summary
