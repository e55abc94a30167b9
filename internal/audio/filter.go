package audio

import "math"

// Biquad is a second-order lowpass section (RBJ cookbook, transposed direct
// form II).
type Biquad struct {
	b0, b1, b2, a1, a2 float64
	z1, z2             float64
}

// NewLowpass creates a lowpass at cutoff Hz with resonance q.
func NewLowpass(cutoff, q float64, sampleRate int) *Biquad {
	w0 := 2 * math.Pi * cutoff / float64(sampleRate)
	cos, sin := math.Cos(w0), math.Sin(w0)
	alpha := sin / (2 * q)
	a0 := 1 + alpha
	return &Biquad{
		b0: (1 - cos) / 2 / a0,
		b1: (1 - cos) / a0,
		b2: (1 - cos) / 2 / a0,
		a1: -2 * cos / a0,
		a2: (1 - alpha) / a0,
	}
}

// Filter runs one sample through the filter.
func (f *Biquad) Filter(x float64) float64 {
	y := f.b0*x + f.z1
	f.z1 = f.b1*x - f.a1*y + f.z2
	f.z2 = f.b2*x - f.a2*y
	return y
}
