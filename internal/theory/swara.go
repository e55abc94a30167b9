package theory

import "fmt"

// SwaraID is one of the eight fixed scale degree identifiers.
type SwaraID int

const (
	Sa SwaraID = iota
	Ri
	Ga
	Ma
	Pa
	Da
	Ni
	HighSa
)

// NumSwaras is the number of scale degrees on the keyboard.
const NumSwaras = 8

var swaraNames = [NumSwaras]struct{ id, label string }{
	{"sa", "Sa"},
	{"ri", "Ri"},
	{"ga", "Ga"},
	{"ma", "Ma"},
	{"pa", "Pa"},
	{"da", "Da"},
	{"ni", "Ni"},
	{"sa-high", "Sȧ"},
}

// Valid reports whether id is in 0..7.
func (id SwaraID) Valid() bool { return id >= 0 && id < NumSwaras }

// Key returns the stable string identifier, e.g. "ga".
func (id SwaraID) Key() string {
	if !id.Valid() {
		return fmt.Sprintf("SwaraID(%d)", int(id))
	}
	return swaraNames[id].id
}

// Label returns the display label, e.g. "Ga".
func (id SwaraID) Label() string {
	if !id.Valid() {
		return id.Key()
	}
	return swaraNames[id].label
}

func (id SwaraID) String() string { return id.Label() }

// Swara is a scale degree resolved against a raga. It is a plain value:
// copying it freezes the semitone offset of the raga it came from.
type Swara struct {
	ID         SwaraID `json:"id"`
	Key        string  `json:"key"`
	Label      string  `json:"label"`
	ShortLabel string  `json:"short_label"`
	Semitones  int     `json:"semitones"`
}

// Frequency returns the pitch of s over tonic.
func (s Swara) Frequency(tonic Sruthi) float64 {
	return Frequency(tonic.Frequency, s.Semitones)
}

// ParseSwara maps a key such as "ga" back to its identifier.
func ParseSwara(key string) (SwaraID, bool) {
	for i, n := range swaraNames {
		if n.id == key {
			return SwaraID(i), true
		}
	}
	return 0, false
}
