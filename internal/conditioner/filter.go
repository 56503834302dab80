package conditioner

import "math"

// HighPassFilter is a single-pole RC high-pass filter:
//
//	y[i] = alpha * (y[i-1] + x[i] - x[i-1])
//	alpha = rc / (rc + dt), rc = 1/(2π·cutoff), dt = 1/sampleRate
//
// alpha is fixed at construction. Samples must be fed in stream order; the
// previous input and output carry over between calls to Apply.
type HighPassFilter struct {
	alpha   float64
	prevIn  float64
	prevOut float64
}

// NewHighPassFilter returns a filter with zeroed state.
func NewHighPassFilter(cutoffHz, sampleRate float64) *HighPassFilter {
	rc := 1.0 / (2 * math.Pi * cutoffHz)
	dt := 1.0 / sampleRate
	return &HighPassFilter{alpha: rc / (rc + dt)}
}

// Alpha returns the decay coefficient.
func (f *HighPassFilter) Alpha() float64 { return f.alpha }

// Apply filters in into out. out must be at least as long as in; in and out
// may alias.
func (f *HighPassFilter) Apply(in, out []int16) {
	for i, s := range in {
		x := float64(s)
		y := f.alpha * (f.prevOut + x - f.prevIn)
		f.prevIn = x
		f.prevOut = y
		out[i] = clamp16(y)
	}
}

// Reset zeroes the previous input and output.
func (f *HighPassFilter) Reset() {
	f.prevIn = 0
	f.prevOut = 0
}

func clamp16(v float64) int16 {
	v = math.Round(v)
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// RMS returns the root-mean-square of samples, or 0 for an empty slice.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}
