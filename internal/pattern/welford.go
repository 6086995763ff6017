package pattern

import "math"

// welford is an online mean/variance accumulator that supports removal,
// so a sliding window can be maintained without rescanning it.
type welford struct {
	n    int
	mean float64
	m2   float64
}

func (w *welford) add(x float64) {
	w.n++
	d := x - w.mean
	w.mean += d / float64(w.n)
	w.m2 += d * (x - w.mean)
}

func (w *welford) remove(x float64) {
	if w.n <= 1 {
		*w = welford{}
		return
	}
	d := x - w.mean
	w.n--
	w.mean -= d / float64(w.n)
	w.m2 -= d * (x - w.mean)
	if w.m2 < 0 {
		w.m2 = 0
	}
}

// variance is the population variance; 0 with fewer than two samples.
func (w *welford) variance() float64 {
	if w.n < 2 {
		return 0
	}
	return w.m2 / float64(w.n)
}

func (w *welford) stddev() float64 { return math.Sqrt(w.variance()) }
