package audio

import (
	"math"
	"sync"
)

// Voice is one running synthesis graph: two sawtooth and one square
// oscillator summed at MixLevel, lowpassed, and scaled by a per-note gain.
type Voice struct {
	freq   float64
	oscs   [3]*Oscillator
	filter *Biquad
	gain   *Param

	mu      sync.Mutex
	started bool
	startAt float64
	stopAt  float64
}

func newVoice(freq float64, sampleRate int, clock func() float64) *Voice {
	return &Voice{
		freq: freq,
		oscs: [3]*Oscillator{
			NewOscillator(Sawtooth, freq, sampleRate),
			NewOscillator(Sawtooth, freq, sampleRate),
			NewOscillator(Square, freq, sampleRate),
		},
		filter: NewLowpass(FilterCutoff, FilterQ, sampleRate),
		gain:   NewParam(1, clock),
		stopAt: math.Inf(1),
	}
}

// Frequency returns the voice pitch in Hz.
func (v *Voice) Frequency() float64 { return v.freq }

// Gain returns the note envelope param.
func (v *Voice) Gain() *Param { return v.gain }

// Start begins oscillation at time t.
func (v *Voice) Start(t float64) {
	v.mu.Lock()
	v.started = true
	v.startAt = t
	v.mu.Unlock()
}

// Stop ends oscillation at time t. The earliest requested stop wins.
func (v *Voice) Stop(t float64) {
	v.mu.Lock()
	if t < v.stopAt {
		v.stopAt = t
	}
	v.mu.Unlock()
}

// StopTime returns the scheduled stop, or +Inf.
func (v *Voice) StopTime() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stopAt
}

// endedBy reports whether the voice is silent for good at time t.
func (v *Voice) endedBy(t float64) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stopAt <= t
}

// render adds the voice output into out. gain is scratch of len(out).
func (v *Voice) render(out, gain []float64, t0, dt float64) {
	v.mu.Lock()
	started, startAt, stopAt := v.started, v.startAt, v.stopAt
	v.mu.Unlock()
	if !started {
		return
	}
	v.gain.fill(gain, t0, dt)
	for i := range out {
		t := t0 + float64(i)*dt
		if t < startAt || t >= stopAt {
			continue
		}
		x := (v.oscs[0].Next() + v.oscs[1].Next() + v.oscs[2].Next()) * MixLevel
		out[i] += v.filter.Filter(x) * gain[i]
	}
}
