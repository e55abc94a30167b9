// Package engine is the tone engine: it owns the audio backend, the master
// volume, the single sustained voice and its pulse scheduler, and fires
// independent one-shot notes.
package engine

import (
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/satindergrewal/sruthi/internal/audio"
	"github.com/satindergrewal/sruthi/internal/timer"
)

var (
	// ErrInvalidArgument marks a caller contract violation.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrUnavailable means the audio backend could not be created.
	ErrUnavailable = errors.New("audio unavailable")
	// ErrResume means the backend refused to leave the suspended state.
	ErrResume = errors.New("audio resume rejected")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("engine closed")
)

// Envelope shape, in seconds on the audio clock.
const (
	FadeIn        = 0.1  // continuous tone attack
	FadeImmediate = 0.05 // stop when switching tones
	FadeRelease   = 0.2  // user stop
	AttackTime    = 0.1  // pulse attack
	AttackLevel   = 0.3  // pulse attack target
	OneShotRamp   = 0.05 // one-shot attack and release
	OneShotTail   = 0.1  // oscillators keep running past the envelope
	OneShotSlack  = 0.1  // host release after the oscillators stop

	VolumeTimeConstant = 0.1
)

// MinWake is the shortest host timer the pulse loop arms.
const MinWake = 10 * time.Millisecond

// releaseSlack delays node release past the end of a stop fade.
const releaseSlack = 50 * time.Millisecond

// Backend is the audio graph the engine drives. *audio.Context implements it.
type Backend interface {
	CurrentTime() float64
	Resume() error
	Master() *audio.Param
	NewVoice(freq float64) *audio.Voice
	Connect(v *audio.Voice) error
	Disconnect(v *audio.Voice)
	Close() error
}

// Opener creates the backend on first use.
type Opener func() (Backend, error)

// Config holds engine tunables.
type Config struct {
	Volume     float64       // initial master level, 0..1
	PulseGap   float64       // seconds of silence between pulses
	WakeMargin time.Duration // how far ahead of a cycle its envelope is queued
}

// DefaultConfig returns the stock tunables.
func DefaultConfig() Config {
	return Config{
		Volume:     0.5,
		PulseGap:   0.5,
		WakeMargin: 100 * time.Millisecond,
	}
}

// Validate checks the tunables. The wake margin must stay inside the gap so
// a cycle is always queued after the previous one has been programmed and
// before the next one is due.
func (c Config) Validate() error {
	if c.Volume < 0 || c.Volume > 1 || math.IsNaN(c.Volume) {
		return fmt.Errorf("volume %v outside [0,1]: %w", c.Volume, ErrInvalidArgument)
	}
	if !(c.PulseGap > 0) {
		return fmt.Errorf("pulse gap %v: %w", c.PulseGap, ErrInvalidArgument)
	}
	if c.WakeMargin < 0 {
		return fmt.Errorf("wake margin %v: %w", c.WakeMargin, ErrInvalidArgument)
	}
	if c.WakeMargin.Seconds() >= c.PulseGap {
		return fmt.Errorf("wake margin %v not below pulse gap %vs: %w", c.WakeMargin, c.PulseGap, ErrInvalidArgument)
	}
	return nil
}

// Engine is the tone engine. All methods are safe for concurrent use; calls
// are serialized, which also serializes them against pulse callbacks.
type Engine struct {
	open  Opener
	sched timer.Scheduler
	cfg   Config

	mu      sync.Mutex
	backend Backend
	openErr error
	closed  bool
	volume  float64
	current *audio.Voice
	pulse   *pulseLoop
}

// New creates an engine. The backend is opened lazily by the first call
// that needs sound.
func New(open Opener, sched timer.Scheduler, cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		open:   open,
		sched:  sched,
		cfg:    cfg,
		volume: cfg.Volume,
	}, nil
}

// SetVolume glides the master gain toward level.
func (e *Engine) SetVolume(level float64) error {
	if math.IsNaN(level) || level < 0 || level > 1 {
		return fmt.Errorf("volume %v outside [0,1]: %w", level, ErrInvalidArgument)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	e.volume = level
	if e.backend == nil {
		return nil
	}
	now := e.backend.CurrentTime()
	master := e.backend.Master()
	master.CancelScheduledValues(now)
	return master.SetTargetAtTime(level, now, VolumeTimeConstant)
}

// PlayTone replaces the current voice with a new one at freq. A pulse of 0
// sustains a flat tone; a positive pulse swells and decays every
// pulse+PulseGap seconds until StopTone.
func (e *Engine) PlayTone(freq, pulse float64) error {
	if err := checkFrequency(freq); err != nil {
		return err
	}
	if math.IsNaN(pulse) || math.IsInf(pulse, 0) || pulse < 0 {
		return fmt.Errorf("pulse duration %v: %w", pulse, ErrInvalidArgument)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	b, err := e.readyLocked()
	if err != nil {
		return err
	}

	e.stopLocked(true)

	now := b.CurrentTime()
	v := b.NewVoice(freq)
	g := v.Gain()
	var p *pulseLoop
	if pulse == 0 {
		err = errors.Join(
			g.SetValueAtTime(0, now),
			g.LinearRampToValueAtTime(1, now+FadeIn),
		)
	} else {
		p = &pulseLoop{voice: v, active: pulse, next: now}
		err = e.cycleLocked(p)
	}
	if err == nil {
		v.Start(now)
		err = b.Connect(v)
	}
	if err != nil {
		if p != nil {
			p.cancel()
		}
		return fmt.Errorf("start tone at %.2f Hz: %w", freq, err)
	}

	e.current = v
	e.pulse = p
	return nil
}

// PlayOneShot fires an independent note of the given length. It never
// touches the current voice and cannot be cancelled.
func (e *Engine) PlayOneShot(freq, duration float64) error {
	if err := checkFrequency(freq); err != nil {
		return err
	}
	if math.IsNaN(duration) || math.IsInf(duration, 0) || duration <= 0 {
		return fmt.Errorf("one-shot duration %v: %w", duration, ErrInvalidArgument)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	b, err := e.readyLocked()
	if err != nil {
		return err
	}

	now := b.CurrentTime()
	v := b.NewVoice(freq)
	g := v.Gain()
	ramp := math.Min(OneShotRamp, duration/2)
	err = errors.Join(
		g.SetValueAtTime(0, now),
		g.LinearRampToValueAtTime(1, now+ramp),
		g.LinearRampToValueAtTime(1, now+duration-ramp),
		g.LinearRampToValueAtTime(0, now+duration),
	)
	if err != nil {
		return fmt.Errorf("one-shot envelope: %w", err)
	}
	v.Start(now)
	v.Stop(now + duration + OneShotTail)
	if err := b.Connect(v); err != nil {
		return fmt.Errorf("start one-shot at %.2f Hz: %w", freq, err)
	}

	e.sched.AfterFunc(seconds(duration+OneShotTail+OneShotSlack), func() {
		b.Disconnect(v)
	})
	return nil
}

// StopTone fades out the current voice, over FadeImmediate when immediate
// or FadeRelease otherwise. It is a no-op when nothing sustains.
func (e *Engine) StopTone(immediate bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked(immediate)
}

// Sounding reports whether a sustained voice is current.
func (e *Engine) Sounding() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current != nil
}

// NextPulseAt returns the audio-clock start of the next queued pulse cycle.
func (e *Engine) NextPulseAt() (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pulse == nil || e.pulse.state != pulsing {
		return 0, false
	}
	return e.pulse.next, true
}

// Close stops everything and releases the backend. Later calls that need
// sound return ErrClosed.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.stopLocked(true)
	e.closed = true
	if e.backend == nil {
		return nil
	}
	return e.backend.Close()
}

// readyLocked opens the backend once and resumes it on every call.
func (e *Engine) readyLocked() (Backend, error) {
	if e.closed {
		return nil, ErrClosed
	}
	if e.openErr != nil {
		return nil, e.openErr
	}
	if e.backend == nil {
		b, err := e.open()
		if err != nil {
			e.openErr = fmt.Errorf("%w: %v", ErrUnavailable, err)
			log.Printf("Audio backend unavailable: %v", err)
			return nil, e.openErr
		}
		if err := b.Master().SetValueAtTime(e.volume, b.CurrentTime()); err != nil {
			return nil, err
		}
		e.backend = b
		log.Printf("Audio backend opened (volume %.2f)", e.volume)
	}
	if err := e.backend.Resume(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResume, err)
	}
	return e.backend, nil
}

func (e *Engine) stopLocked(immediate bool) {
	if e.pulse != nil {
		e.pulse.cancel()
		e.pulse = nil
	}
	v := e.current
	if v == nil {
		return
	}
	e.current = nil

	fade := FadeRelease
	if immediate {
		fade = FadeImmediate
	}
	b := e.backend
	now := b.CurrentTime()
	g := v.Gain()
	g.CancelAndHoldAtTime(now)
	g.LinearRampToValueAtTime(0, now+fade)
	v.Stop(now + fade)

	e.sched.AfterFunc(seconds(fade)+releaseSlack, func() {
		b.Disconnect(v)
	})
}

func checkFrequency(freq float64) error {
	if math.IsNaN(freq) || math.IsInf(freq, 0) || freq <= 0 {
		return fmt.Errorf("frequency %v: %w", freq, ErrInvalidArgument)
	}
	return nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
