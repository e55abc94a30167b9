// Package theory holds the fixed reference tables: tonics, scale degrees and
// ragas, and the equal-tempered transposition used to turn them into pitch.
package theory

import "math"

// Frequency transposes base by semitones in 12-tone equal temperament.
func Frequency(base float64, semitones int) float64 {
	return base * math.Pow(2, float64(semitones)/12)
}

// Sruthi is a tonic: the pitch of Sa.
type Sruthi struct {
	Kattai    string  `json:"kattai"`
	Note      string  `json:"note"`
	Frequency float64 `json:"frequency"`
}

// Sruthis spans C3..B3 from A4 = 440 Hz.
var Sruthis = []Sruthi{
	{Kattai: "1", Note: "C", Frequency: 130.81},
	{Kattai: "1.5", Note: "C#", Frequency: 138.59},
	{Kattai: "2", Note: "D", Frequency: 146.83},
	{Kattai: "2.5", Note: "D#", Frequency: 155.56},
	{Kattai: "3", Note: "E", Frequency: 164.81},
	{Kattai: "4", Note: "F", Frequency: 174.61},
	{Kattai: "4.5", Note: "F#", Frequency: 185.00},
	{Kattai: "5", Note: "G", Frequency: 196.00},
	{Kattai: "5.5", Note: "G#", Frequency: 207.65},
	{Kattai: "6", Note: "A", Frequency: 220.00},
	{Kattai: "6.5", Note: "A#", Frequency: 233.08},
	{Kattai: "7", Note: "B", Frequency: 246.94},
}

// DefaultSruthi is kattai 1 (C).
var DefaultSruthi = Sruthis[0]

// LookupSruthi finds a tonic by kattai label.
func LookupSruthi(kattai string) (Sruthi, bool) {
	for _, s := range Sruthis {
		if s.Kattai == kattai {
			return s, true
		}
	}
	return Sruthi{}, false
}

// PulseOptions are the selectable pulse durations in seconds. 0 is a
// continuous tone.
var PulseOptions = []int{3, 5, 7, 0}

// ValidPulse reports whether seconds is one of PulseOptions.
func ValidPulse(seconds int) bool {
	for _, p := range PulseOptions {
		if p == seconds {
			return true
		}
	}
	return false
}
