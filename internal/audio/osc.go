package audio

import "fmt"

// Waveform selects an oscillator shape.
type Waveform int

const (
	Sawtooth Waveform = iota
	Square
)

func (w Waveform) String() string {
	switch w {
	case Sawtooth:
		return "sawtooth"
	case Square:
		return "square"
	}
	return fmt.Sprintf("Waveform(%d)", int(w))
}

// Oscillator is a fixed-frequency PolyBLEP oscillator.
type Oscillator struct {
	Type  Waveform
	freq  float64
	phase float64
	inc   float64
}

// NewOscillator creates an oscillator at freq for the given sample rate.
func NewOscillator(w Waveform, freq float64, sampleRate int) *Oscillator {
	return &Oscillator{Type: w, freq: freq, inc: freq / float64(sampleRate)}
}

// Frequency returns the oscillator frequency in Hz.
func (o *Oscillator) Frequency() float64 { return o.freq }

// Next returns the next sample in [-1,1] and advances the phase.
func (o *Oscillator) Next() float64 {
	var x float64
	switch o.Type {
	case Square:
		if o.phase < 0.5 {
			x = 1
		} else {
			x = -1
		}
		x += polyBLEP(o.phase, o.inc)
		half := o.phase + 0.5
		if half >= 1 {
			half--
		}
		x -= polyBLEP(half, o.inc)
	default:
		// Starts at zero and rises, in phase with the square.
		t := o.phase + 0.5
		if t >= 1 {
			t--
		}
		x = 2*t - 1 - polyBLEP(t, o.inc)
	}
	o.phase += o.inc
	if o.phase >= 1 {
		o.phase -= 1
	}
	return x
}

// polyBLEP smooths the discontinuity at phase 0 over one sample on each side.
func polyBLEP(t, dt float64) float64 {
	switch {
	case t < dt:
		t /= dt
		return t + t - t*t - 1
	case t > 1-dt:
		t = (t - 1) / dt
		return t*t + t + t + 1
	}
	return 0
}
