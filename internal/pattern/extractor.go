package pattern

import (
	"math"
	"time"

	"github.com/danielpatrickdp/adaptive-input/internal/input"
	"github.com/danielpatrickdp/adaptive-input/internal/phenotype"
)

// #region slot
// slot is one ring entry: the frame plus the derived values folded into
// the running statistics, kept so eviction can subtract them exactly.
type slot struct {
	frame input.Frame

	hasDt bool
	dt    float64
	rates [NumPrimary]float64

	hasGrip bool
	grip    float64

	bins [phenotype.NumTraits]int8 // -1 when not observed
}

type brakeEvent struct {
	at     time.Duration
	offset float64
}

// #endregion slot

// #region extractor
// Extractor keeps a fixed-capacity ring of recent frames and maintains
// running statistics incrementally. All storage is allocated up front.
type Extractor struct {
	config Config

	ring  []slot
	head  int // index of the oldest slot
	count int

	last    input.Frame
	hasLast bool

	rates       [NumPrimary]welford
	throttle    welford
	interval    welford
	grip        welford
	conductance welford
	traits      [phenotype.NumTraits][phenotype.MaxTraitLevels]int

	events     []brakeEvent // FIFO ring
	eventHead  int
	eventCount int
	offsets    welford
	pendingCue time.Duration
	hasCue     bool
	pendingOn  time.Duration
	hasOnset   bool
	lastBrake  float64

	ingested    uint64
	anomalies   uint64
	unavailable uint64
}

// NewExtractor allocates the ring for config.Capacity frames.
func NewExtractor(config Config) *Extractor {
	if config.Capacity < 2 {
		config.Capacity = 2
	}
	if config.MaxEvents < 1 {
		config.MaxEvents = 1
	}
	return &Extractor{
		config: config,
		ring:   make([]slot, config.Capacity),
		events: make([]brakeEvent, config.MaxEvents),
	}
}

// Capacity returns the ring size in frames.
func (e *Extractor) Capacity() int { return len(e.ring) }

// Len returns the number of frames in the window.
func (e *Extractor) Len() int { return e.count }

// Last returns the most recently accepted frame.
func (e *Extractor) Last() (input.Frame, bool) { return e.last, e.hasLast }

// Frame returns the i-th frame of the window, 0 being the oldest.
func (e *Extractor) Frame(i int) (input.Frame, bool) {
	if i < 0 || i >= e.count {
		return input.Frame{}, false
	}
	return e.ring[(e.head+i)%len(e.ring)].frame, true
}

// Reset empties the window and clears every statistic and counter.
func (e *Extractor) Reset() {
	*e = Extractor{
		config: e.config,
		ring:   e.ring,
		events: e.events,
	}
}

// Ingest folds one frame into the window and returns the new summary.
// A frame whose timestamp does not advance is dropped and counted as a
// timing anomaly; the window is left untouched.
func (e *Extractor) Ingest(f input.Frame) Summary {
	if e.hasLast && f.At <= e.last.At {
		e.anomalies++
		return e.Summary()
	}
	f = f.Normalize()
	e.ingested++
	e.unavailable += uint64(f.MissingChannels())

	s := slot{frame: f}
	for i := range s.bins {
		s.bins[i] = -1
	}

	var throttleRate, brakeRate float64
	if e.hasLast {
		s.hasDt = true
		s.dt = (f.At - e.last.At).Seconds()
		s.rates[input.AxisSteering] = math.Abs(f.Steering-e.last.Steering) / s.dt
		throttleRate = math.Abs(f.Throttle-e.last.Throttle) / s.dt
		brakeRate = math.Abs(f.Brake-e.last.Brake) / s.dt
		s.rates[input.AxisThrottle] = throttleRate
		s.rates[input.AxisBraking] = brakeRate

		s.bins[phenotype.TraitSteering] = bin(s.rates[input.AxisSteering], e.config.SteeringRateBins)
		s.bins[phenotype.TraitReaction] = bin(brakeRate, e.config.ReactionBins)
		s.bins[phenotype.TraitThrottle] = bin(f.Throttle, e.config.ThrottleBins)*4 + bin(throttleRate, e.config.ThrottleRateBins)
	}
	if g, ok := f.GripPressure(); ok {
		s.hasGrip = true
		s.grip = g
		s.bins[phenotype.TraitGrip] = bin(g, e.config.GripBins)
	}

	if e.count == len(e.ring) {
		e.evict()
	}
	idx := (e.head + e.count) % len(e.ring)
	e.ring[idx] = s
	e.count++
	e.fold(&s)

	e.trackBraking(f)
	e.last = f
	e.hasLast = true
	return e.Summary()
}

// Summary returns a snapshot of the current statistics.
func (e *Extractor) Summary() Summary {
	out := Summary{
		Frames:             e.count,
		ThrottleMean:       e.throttle.mean,
		BrakeOffsetMean:    e.offsets.mean,
		BrakeEvents:        e.offsets.n,
		GripMean:           e.grip.mean,
		GripSamples:        e.grip.n,
		ConductanceMean:    e.conductance.mean,
		ConductanceSamples: e.conductance.n,
		Traits:             e.traits,
		Ingested:           e.ingested,
		TimingAnomalies:    e.anomalies,
		SensorUnavailable:  e.unavailable,
	}
	for i := range e.rates {
		out.RateMean[i] = e.rates[i].mean
		out.RateVariance[i] = e.rates[i].variance()
	}
	if e.count > 1 {
		oldest := e.ring[e.head].frame.At
		out.Span = e.last.At - oldest
	}
	if e.interval.n >= 2 && e.interval.mean > 0 {
		cv := e.interval.stddev() / e.interval.mean
		out.Consistency = 1 / (1 + cv)
		out.MeanInterval = time.Duration(e.interval.mean * float64(time.Second))
	}
	return out
}

// #endregion extractor

// #region folding
func (e *Extractor) fold(s *slot) {
	e.throttle.add(s.frame.Throttle)
	if s.hasDt {
		e.interval.add(s.dt)
		for i := range e.rates {
			e.rates[i].add(s.rates[i])
		}
	}
	if s.hasGrip {
		e.grip.add(s.grip)
	}
	if c := s.frame.Conductance; c.Valid {
		e.conductance.add(c.Value)
	}
	for k, b := range s.bins {
		if b >= 0 {
			e.traits[k][b]++
		}
	}
}

func (e *Extractor) evict() {
	s := &e.ring[e.head]
	e.throttle.remove(s.frame.Throttle)
	if s.hasDt {
		e.interval.remove(s.dt)
		for i := range e.rates {
			e.rates[i].remove(s.rates[i])
		}
	}
	if s.hasGrip {
		e.grip.remove(s.grip)
	}
	if c := s.frame.Conductance; c.Valid {
		e.conductance.remove(c.Value)
	}
	for k, b := range s.bins {
		if b >= 0 {
			e.traits[k][b]--
		}
	}
	e.head = (e.head + 1) % len(e.ring)
	e.count--

	// brake events older than the window leave with their frames
	oldest := e.ring[e.head].frame.At
	if e.count == 0 {
		oldest = s.frame.At + 1
	}
	for e.eventCount > 0 && e.events[e.eventHead].at < oldest {
		e.offsets.remove(e.events[e.eventHead].offset)
		e.eventHead = (e.eventHead + 1) % len(e.events)
		e.eventCount--
	}
}

// #endregion folding

// #region braking
// trackBraking pairs brake onsets with corner-entry cues. An onset after
// the cue yields a positive (late) offset, before the cue a negative one.
func (e *Extractor) trackBraking(f input.Frame) {
	window := e.config.PairWindow
	if f.CornerEntry {
		if e.hasOnset && f.At-e.pendingOn <= window {
			e.recordBrake(f.At, (e.pendingOn - f.At).Seconds())
			e.hasOnset = false
		} else {
			e.pendingCue = f.At
			e.hasCue = true
		}
	}
	if e.lastBrake < e.config.BrakeOnset && f.Brake >= e.config.BrakeOnset {
		if e.hasCue && f.At-e.pendingCue <= window {
			e.recordBrake(f.At, (f.At - e.pendingCue).Seconds())
			e.hasCue = false
		} else {
			e.pendingOn = f.At
			e.hasOnset = true
		}
	}
	e.lastBrake = f.Brake
}

func (e *Extractor) recordBrake(at time.Duration, offset float64) {
	if e.eventCount == len(e.events) {
		e.offsets.remove(e.events[e.eventHead].offset)
		e.eventHead = (e.eventHead + 1) % len(e.events)
		e.eventCount--
	}
	idx := (e.eventHead + e.eventCount) % len(e.events)
	e.events[idx] = brakeEvent{at: at, offset: offset}
	e.eventCount++
	e.offsets.add(offset)
}

// #endregion braking

// #region helpers
// bin maps v onto 4 levels using 3 ascending edges.
func bin(v float64, edges [3]float64) int8 {
	switch {
	case v < edges[0]:
		return 0
	case v < edges[1]:
		return 1
	case v < edges[2]:
		return 2
	}
	return 3
}

// #endregion helpers
