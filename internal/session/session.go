// Package session is the trainer's controller. It turns tonic, raga and
// swara selections into frequencies, drives the tone engine, and runs the
// tapped-sequence looper.
package session

import (
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/satindergrewal/sruthi/internal/engine"
	"github.com/satindergrewal/sruthi/internal/theory"
	"github.com/satindergrewal/sruthi/internal/timer"
)

var (
	ErrUnknownTonic  = errors.New("unknown tonic")
	ErrUnknownRaga   = errors.New("unknown raga")
	ErrUnknownSwara  = errors.New("unknown swara")
	ErrInvalidPulse  = errors.New("invalid pulse duration")
	ErrInvalidVolume = errors.New("volume outside [0,1]")
	ErrUnknownMode   = errors.New("unknown mode")
	ErrNotLooper     = errors.New("loop playback needs looper mode")
	// ErrAudio wraps every failure reported by the tone engine. A rejected
	// note leaves the trainer state as it was, except when the backend is
	// unavailable for good: the selection is then kept without sound.
	ErrAudio = errors.New("audio unavailable")
)

// Looper timing.
const (
	PreviewDuration  = 0.5 // seconds, tap preview in looper mode
	LoopNoteDuration = 1.0 // seconds, each loop entry
	LoopInterval     = time.Second
)

// DefaultVolume matches the engine's starting level.
const DefaultVolume = 0.5

// Tone is the slice of the tone engine the controller drives.
type Tone interface {
	SetVolume(level float64) error
	PlayTone(freq, pulse float64) error
	PlayOneShot(freq, duration float64) error
	StopTone(immediate bool)
}

// Controller holds all selection state. Methods are safe for concurrent use.
type Controller struct {
	tone  Tone
	sched timer.Scheduler

	mu       sync.Mutex
	mode     Mode
	tonic    theory.Sruthi
	raga     theory.Raga
	pulse    int
	volume   float64
	active   theory.Swara
	sounding bool
	silent   bool // sounding without a backend
	liveFreq float64

	sequence []theory.Swara
	cursor   int
	loop     *timer.Repeater
	loopGen  int

	audioErr error
}

// New creates a controller in trainer mode with the default tonic, raga and
// a 3 second pulse.
func New(tone Tone, sched timer.Scheduler) *Controller {
	return &Controller{
		tone:   tone,
		sched:  sched,
		mode:   Trainer,
		tonic:  theory.DefaultSruthi,
		raga:   theory.DefaultRaga,
		pulse:  theory.PulseOptions[0],
		volume: DefaultVolume,
		cursor: -1,
	}
}

// SelectTonic switches the tonic by kattai label. A sounding trainer note
// restarts at the new pitch; a running loop picks it up on the next tick.
func (c *Controller) SelectTonic(kattai string) error {
	s, ok := theory.LookupSruthi(kattai)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTonic, kattai)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.tonic = s
	return c.restartLocked()
}

// SelectRaga switches the raga. A sounding trainer note is re-resolved by
// its swara identifier. Sequence entries keep the offsets they were tapped
// with.
func (c *Controller) SelectRaga(id string) error {
	r, ok := theory.LookupRaga(id)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownRaga, id)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.raga = r
	return c.restartLocked()
}

// SelectPulse sets the pulse duration in seconds; 0 is continuous.
func (c *Controller) SelectPulse(seconds int) error {
	if !theory.ValidPulse(seconds) {
		return fmt.Errorf("%w: %d", ErrInvalidPulse, seconds)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.pulse = seconds
	return c.restartLocked()
}

// SetVolume sets the master level.
func (c *Controller) SetVolume(level float64) error {
	if math.IsNaN(level) || level < 0 || level > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidVolume, level)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.volume = level
	return c.audioLocked(c.tone.SetVolume(level))
}

// Tap handles a swara key. In trainer mode it toggles the sustained note;
// in looper mode it records the swara and plays a short preview.
func (c *Controller) Tap(id theory.SwaraID) error {
	if !id.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownSwara, int(id))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode == Looper {
		s, _ := c.raga.Resolve(id)
		c.sequence = append(c.sequence, s)
		return c.audioLocked(c.tone.PlayOneShot(s.Frequency(c.tonic), PreviewDuration))
	}

	if c.sounding && c.active.ID == id {
		c.stopTrainerLocked(false)
		return nil
	}
	return c.playLocked(id)
}

// Stop silences the trainer note.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopTrainerLocked(false)
}

// SetMode switches modes. Any trainer note and any loop are stopped first.
func (c *Controller) SetMode(m Mode) error {
	if m != Trainer && m != Looper {
		return fmt.Errorf("%w: %d", ErrUnknownMode, int(m))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.setModeLocked(m)
	return nil
}

// ToggleMode flips between trainer and looper and returns the new mode.
func (c *Controller) ToggleMode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := Looper
	if c.mode == Looper {
		next = Trainer
	}
	c.setModeLocked(next)
	return next
}

// Close stops the loop and any sustained note. The mode and selections are
// kept.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLoopLocked()
	c.stopTrainerLocked(true)
}

func (c *Controller) setModeLocked(m Mode) {
	c.stopTrainerLocked(true)
	c.stopLoopLocked()
	c.mode = m
}

// Backspace drops the last tapped entry. Emptying the sequence stops a
// running loop.
func (c *Controller) Backspace() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sequence) == 0 {
		return
	}
	c.sequence = c.sequence[:len(c.sequence)-1]
	switch {
	case len(c.sequence) == 0:
		c.stopLoopLocked()
	case c.cursor >= len(c.sequence):
		c.cursor = len(c.sequence) - 1
	}
}

// Clear empties the sequence and stops loop playback.
func (c *Controller) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sequence = nil
	c.stopLoopLocked()
}

// ToggleLoop starts or stops loop playback. Starting an empty sequence is a
// no-op. It reports whether the loop is running afterwards.
func (c *Controller) ToggleLoop() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loop != nil {
		c.stopLoopLocked()
		return false, nil
	}
	if c.mode != Looper {
		return false, ErrNotLooper
	}
	if len(c.sequence) == 0 {
		return false, nil
	}

	c.loopGen++
	gen := c.loopGen
	c.cursor = 0
	c.loop = timer.Repeat(c.sched, LoopInterval, func() { c.tick(gen) })
	log.Printf("Loop started (%d notes)", len(c.sequence))
	return true, c.playEntryLocked()
}

func (c *Controller) tick(gen int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loop == nil || c.loopGen != gen || len(c.sequence) == 0 {
		return
	}
	c.cursor = (c.cursor + 1) % len(c.sequence)
	if err := c.playEntryLocked(); err != nil {
		log.Printf("Loop note %d: %v", c.cursor, err)
	}
}

// playEntryLocked sounds the entry under the cursor against the tonic in
// effect now.
func (c *Controller) playEntryLocked() error {
	freq := c.sequence[c.cursor].Frequency(c.tonic)
	c.liveFreq = freq
	return c.audioLocked(c.tone.PlayOneShot(freq, LoopNoteDuration))
}

func (c *Controller) stopLoopLocked() {
	if c.loop == nil {
		c.cursor = -1
		return
	}
	c.loop.Stop()
	c.loop = nil
	c.cursor = -1
	c.stopTrainerLocked(true)
	log.Println("Loop stopped")
}

// restartLocked replays the sounding trainer note with current selections.
// A silent selection is re-resolved without asking the engine again.
func (c *Controller) restartLocked() error {
	if c.mode != Trainer || !c.sounding {
		return nil
	}
	if c.silent {
		c.active, _ = c.raga.Resolve(c.active.ID)
		c.liveFreq = c.active.Frequency(c.tonic)
		return nil
	}
	return c.playLocked(c.active.ID)
}

// playLocked starts a sustained note. State changes only when the engine
// accepts it, so a rejected note leaves the previous one in place.
func (c *Controller) playLocked(id theory.SwaraID) error {
	s, _ := c.raga.Resolve(id)
	freq := s.Frequency(c.tonic)
	err := c.tone.PlayTone(freq, float64(c.pulse))
	unavailable := errors.Is(err, engine.ErrUnavailable)
	if err == nil || unavailable {
		c.active = s
		c.sounding = true
		c.silent = unavailable
		c.liveFreq = freq
	}
	if err := c.audioLocked(err); err != nil {
		return fmt.Errorf("play %s: %w", s.Label, err)
	}
	return nil
}

func (c *Controller) stopTrainerLocked(immediate bool) {
	c.tone.StopTone(immediate)
	c.sounding = false
	c.silent = false
	if c.loop == nil {
		c.liveFreq = 0
	}
}

// audioLocked records the outcome of an engine call.
func (c *Controller) audioLocked(err error) error {
	c.audioErr = err
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrAudio, err)
}
