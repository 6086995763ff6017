package input

import (
	"errors"
	"math"
	"time"
)

// #region errors
var (
	// ErrSensorUnavailable marks a channel that was absent for a frame.
	ErrSensorUnavailable = errors.New("sensor unavailable")
	// ErrTimingAnomaly marks a frame whose timestamp did not advance.
	ErrTimingAnomaly = errors.New("timing anomaly")
)

// #endregion errors

// #region axis
// Axis identifies one of the six logical control axes.
type Axis int

const (
	AxisSteering Axis = iota
	AxisThrottle
	AxisBraking
	AxisDrift
	AxisLineChoice
	AxisReaction
)

// NumAxes is the number of logical axes.
const NumAxes = 6

var axisNames = [NumAxes]string{"steering", "throttle", "braking", "drift", "line_choice", "reaction"}

// String returns the configuration name of the axis.
func (a Axis) String() string {
	if a < 0 || int(a) >= NumAxes {
		return "unknown"
	}
	return axisNames[a]
}

// ParseAxis maps a configuration name back to its Axis.
func ParseAxis(name string) (Axis, bool) {
	for i, n := range axisNames {
		if n == name {
			return Axis(i), true
		}
	}
	return 0, false
}

// Axes lists every axis in index order.
func Axes() [NumAxes]Axis {
	var out [NumAxes]Axis
	for i := range out {
		out[i] = Axis(i)
	}
	return out
}

// Range is the documented closed value range for an axis.
type Range struct {
	Min float64
	Max float64
}

// Span returns Max - Min.
func (r Range) Span() float64 { return r.Max - r.Min }

// Clamp restricts v to the range.
func (r Range) Clamp(v float64) float64 {
	if v < r.Min {
		return r.Min
	}
	if v > r.Max {
		return r.Max
	}
	return v
}

var axisRanges = [NumAxes]Range{
	AxisSteering:   {-1, 1},
	AxisThrottle:   {0, 1},
	AxisBraking:    {0, 1},
	AxisDrift:      {-math.Pi, math.Pi},
	AxisLineChoice: {-1, 1},
	AxisReaction:   {0, 1},
}

// AxisRange returns the value range of an axis.
func AxisRange(a Axis) Range {
	return axisRanges[a]
}

// #endregion axis

// #region frame
const (
	NumPressureSensors = 4
	NumProximity       = 2
)

// Orientation channel indices.
const (
	Roll = iota
	Pitch
	Yaw
)

// Proximity channel indices.
const (
	ProximityLeft = iota
	ProximityRight
)

// Reading is a nullable auxiliary channel value. Valid=false means the
// sensor was absent for this frame, which is not the same as a zero reading.
type Reading struct {
	Value float64
	Valid bool
}

// Some returns a valid reading.
func Some(v float64) Reading { return Reading{Value: v, Valid: true} }

// Frame is one sampled instant from the sensor layer. Frames are values
// and are never mutated after capture.
type Frame struct {
	At time.Duration // monotonic offset from session start

	Steering float64 // [-1, 1]
	Throttle float64 // [0, 1]
	Brake    float64 // [0, 1]

	Pressure    [NumPressureSensors]Reading
	Orientation [3]Reading // roll, pitch, yaw (radians)
	Proximity   [NumProximity]Reading
	Conductance Reading

	Latency   time.Duration // inter-frame latency measured at capture
	Frequency float64       // instantaneous sampling frequency (Hz)

	// CornerEntry is an optional external cue marking the ideal braking point.
	CornerEntry bool
}

// Normalize clamps primary channels into their documented ranges and
// invalidates non-finite auxiliary readings.
func (f Frame) Normalize() Frame {
	f.Steering = axisRanges[AxisSteering].Clamp(finiteOr(f.Steering, 0))
	f.Throttle = axisRanges[AxisThrottle].Clamp(finiteOr(f.Throttle, 0))
	f.Brake = axisRanges[AxisBraking].Clamp(finiteOr(f.Brake, 0))
	for i := range f.Pressure {
		f.Pressure[i] = sanitize(f.Pressure[i])
	}
	for i := range f.Orientation {
		f.Orientation[i] = sanitize(f.Orientation[i])
	}
	for i := range f.Proximity {
		f.Proximity[i] = sanitize(f.Proximity[i])
	}
	f.Conductance = sanitize(f.Conductance)
	return f
}

// Axis extracts the scalar value of a logical axis. The second return is
// false when the channels backing the axis are unavailable.
func (f Frame) Axis(a Axis) (float64, bool) {
	switch a {
	case AxisSteering:
		return f.Steering, true
	case AxisThrottle:
		return f.Throttle, true
	case AxisBraking:
		return f.Brake, true
	case AxisDrift:
		yaw := f.Orientation[Yaw]
		return yaw.Value, yaw.Valid
	case AxisLineChoice:
		l, r := f.Proximity[ProximityLeft], f.Proximity[ProximityRight]
		if !l.Valid || !r.Valid {
			return 0, false
		}
		sum := l.Value + r.Value
		if sum <= 0 {
			return 0, false
		}
		return (r.Value - l.Value) / sum, true
	case AxisReaction:
		return f.GripPressure()
	}
	return 0, false
}

// GripPressure returns the mean of the valid pressure readings.
func (f Frame) GripPressure() (float64, bool) {
	var sum float64
	var n int
	for _, p := range f.Pressure {
		if p.Valid {
			sum += p.Value
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// MissingChannels counts auxiliary channels that were unavailable.
func (f Frame) MissingChannels() int {
	var n int
	for _, p := range f.Pressure {
		if !p.Valid {
			n++
		}
	}
	for _, o := range f.Orientation {
		if !o.Valid {
			n++
		}
	}
	for _, p := range f.Proximity {
		if !p.Valid {
			n++
		}
	}
	if !f.Conductance.Valid {
		n++
	}
	return n
}

// #endregion frame

// #region helpers
func sanitize(r Reading) Reading {
	if !r.Valid || math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
		return Reading{}
	}
	return r
}

func finiteOr(v, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	return v
}

// #endregion helpers
