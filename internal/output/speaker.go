// Package output plays the rendered stream on the local sound card.
package output

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/satindergrewal/sruthi/internal/stream"
)

// ErrNoDevice is returned when the binary was built without an output
// backend.
var ErrNoDevice = errors.New("no audio output device")

// player is the part of an output stream the speaker drives.
type player interface {
	Play()
	Close() error
}

// openFunc starts a device reading PCM from r.
type openFunc func(sampleRate, channels int, r io.Reader) (player, error)

// Speaker is an audio.Device backed by the default system output. The
// device is opened on the first Start; it then reads frames from the
// broadcaster for as long as the process runs.
type Speaker struct {
	b          *stream.Broadcaster
	sampleRate int
	channels   int
	open       openFunc

	mu       sync.Mutex
	player   player
	listener *stream.Listener
}

// NewSpeaker creates a speaker fed by b.
func NewSpeaker(b *stream.Broadcaster, sampleRate, channels int) *Speaker {
	return &Speaker{
		b:          b,
		sampleRate: sampleRate,
		channels:   channels,
		open:       openDevice,
	}
}

// Start opens the device if needed and starts playback. It is safe to call
// on every resume.
func (s *Speaker) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.player != nil {
		s.player.Play()
		return nil
	}

	l := s.b.Subscribe()
	p, err := s.open(s.sampleRate, s.channels, stream.NewReader(l))
	if err != nil {
		s.b.Unsubscribe(l)
		return fmt.Errorf("open speaker: %w", err)
	}
	p.Play()
	s.player, s.listener = p, l
	log.Printf("Speaker playing (%d Hz, %d ch)", s.sampleRate, s.channels)
	return nil
}

// Close stops playback and releases the device.
func (s *Speaker) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.player == nil {
		return nil
	}
	s.b.Unsubscribe(s.listener)
	err := s.player.Close()
	s.player, s.listener = nil, nil
	return err
}
