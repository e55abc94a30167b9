package session

import (
	"fmt"

	"github.com/satindergrewal/sruthi/internal/theory"
)

// Mode selects what a swara tap does.
type Mode int

const (
	Trainer Mode = iota
	Looper
)

func (m Mode) String() string {
	switch m {
	case Trainer:
		return "trainer"
	case Looper:
		return "looper"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

func (m Mode) MarshalText() ([]byte, error) {
	if m != Trainer && m != Looper {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMode, int(m))
	}
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(b []byte) error {
	p, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = p
	return nil
}

// ParseMode accepts "trainer" or "looper".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "trainer":
		return Trainer, nil
	case "looper":
		return Looper, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// RagaInfo names the selected raga.
type RagaInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Snapshot is a point-in-time copy of the controller state for display.
type Snapshot struct {
	Mode      Mode           `json:"mode"`
	Tonic     theory.Sruthi  `json:"tonic"`
	Raga      RagaInfo       `json:"raga"`
	Scale     []theory.Swara `json:"scale"`
	Pulse     int            `json:"pulse"`
	Volume    float64        `json:"volume"`
	Active    *theory.Swara  `json:"active"`
	Sequence  []theory.Swara `json:"sequence"`
	Cursor    *int           `json:"cursor"`
	Looping   bool           `json:"looping"`
	Frequency *float64       `json:"frequency"`
	AudioErr  string         `json:"audio_error,omitempty"`
}

// Snapshot returns the current state. Active is the sounding trainer note
// as it was last accepted by the engine; Frequency is the live pitch of the
// trainer note or the loop entry last played.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		Mode:     c.mode,
		Tonic:    c.tonic,
		Raga:     RagaInfo{ID: c.raga.ID, Name: c.raga.Name},
		Scale:    c.raga.Scale(),
		Pulse:    c.pulse,
		Volume:   c.volume,
		Sequence: append([]theory.Swara{}, c.sequence...),
		Looping:  c.loop != nil,
	}
	if c.mode == Trainer && c.sounding {
		a := c.active
		s.Active = &a
	}
	if c.cursor >= 0 {
		cur := c.cursor
		s.Cursor = &cur
	}
	if c.liveFreq > 0 {
		f := c.liveFreq
		s.Frequency = &f
	}
	if c.audioErr != nil {
		s.AudioErr = c.audioErr.Error()
	}
	return s
}
