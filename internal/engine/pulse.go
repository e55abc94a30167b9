package engine

import (
	"errors"
	"fmt"
	"log"
	"math"

	"github.com/satindergrewal/sruthi/internal/audio"
	"github.com/satindergrewal/sruthi/internal/timer"
)

type pulseState int

const (
	pulseIdle pulseState = iota
	pulsing
	pulseStopped
)

func (s pulseState) String() string {
	switch s {
	case pulseIdle:
		return "idle"
	case pulsing:
		return "pulsing"
	case pulseStopped:
		return "stopped"
	}
	return fmt.Sprintf("pulseState(%d)", int(s))
}

// pulseLoop is one PlayTone's breathing envelope. It moves
// idle -> pulsing -> stopped and never leaves stopped; a new tone gets a new
// loop, so a callback holding an old loop can never drive a new voice.
type pulseLoop struct {
	state  pulseState
	voice  *audio.Voice
	active float64 // seconds of sound per cycle
	next   float64 // audio-clock start of the next cycle
	cycles int
	task   timer.Task
}

func (p *pulseLoop) cancel() {
	if p.task != nil {
		p.task.Stop()
		p.task = nil
	}
	p.state = pulseStopped
}

// cycleLocked programs one attack-swell-decay cycle onto the voice gain and
// arms the callback that queues the following one.
func (e *Engine) cycleLocked(p *pulseLoop) error {
	if p.state == pulseStopped {
		return nil
	}
	now := e.backend.CurrentTime()
	start := math.Max(p.next, now)
	mid := start + p.active/2
	end := start + p.active
	attack := start + math.Min(AttackTime, p.active/2)

	g := p.voice.Gain()
	err := errors.Join(
		g.SetValueAtTime(0, start),
		g.LinearRampToValueAtTime(AttackLevel, attack),
		g.LinearRampToValueAtTime(1, mid),
		g.LinearRampToValueAtTime(0, end),
	)
	if err != nil {
		return fmt.Errorf("pulse envelope at %.3fs: %w", start, err)
	}

	p.next = end + e.cfg.PulseGap
	p.cycles++
	p.state = pulsing

	wake := seconds(p.next-now) - e.cfg.WakeMargin
	if wake < MinWake {
		wake = MinWake
	}
	p.task = e.sched.AfterFunc(wake, func() { e.onPulse(p) })
	return nil
}

// onPulse is the host timer callback. A loop that is no longer the engine's
// current one, or whose voice was replaced, does nothing.
func (e *Engine) onPulse(p *pulseLoop) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pulse != p || p.state != pulsing || e.current != p.voice {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Pulse loop panic, stopping tone: %v", r)
			e.stopLocked(true)
		}
	}()
	if err := e.cycleLocked(p); err != nil {
		log.Printf("Pulse reschedule failed, stopping tone: %v", err)
		e.stopLocked(true)
	}
}
