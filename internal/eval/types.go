package eval

// #region eval-config
// Config holds thresholds for post-commit validation. Distances are
// measured in units of each field's bounds width, so 1.0 on a single
// field means it travelled from one end of its range to the other.
type Config struct {
	MaxDriftNorm       float64 // fail if the whole-phenotype distance from default exceeds this
	MaxSensitivityNorm float64 // fail if the sensitivity group distance exceeds this
	MaxHapticNorm      float64 // fail if the haptic group distance exceeds this
	MaxSpread          float64 // fail if max/min sensitivity exceeds this
}

// DefaultConfig returns the thresholds used by the profile recorder.
func DefaultConfig() Config {
	return Config{
		MaxDriftNorm:       1.0,
		MaxSensitivityNorm: 0.8,
		MaxHapticNorm:      0.8,
		MaxSpread:          8.0,
	}
}

// #endregion eval-config

// #region eval-metric
// Metric captures a single validation check result. Informational metrics
// never fail a result.
type Metric struct {
	Name          string  `json:"name"`
	Value         float64 `json:"value"`
	Pass          bool    `json:"pass"`
	Informational bool    `json:"informational,omitempty"`
}

// #endregion eval-metric

// #region eval-result
// Result is the output of post-commit validation.
type Result struct {
	Passed  bool     `json:"passed"`
	Metrics []Metric `json:"metrics"`
	Reason  string   `json:"reason"`
}

// Metric returns the named metric.
func (r Result) Metric(name string) (Metric, bool) {
	for _, m := range r.Metrics {
		if m.Name == name {
			return m, true
		}
	}
	return Metric{}, false
}

// #endregion eval-result
