package audio

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
)

// ErrInvalidAutomation is returned for automation events with a negative or
// non-finite time, value, or time constant.
var ErrInvalidAutomation = errors.New("invalid automation event")

// EventKind identifies an automation event type.
type EventKind int

const (
	SetValue EventKind = iota
	LinearRamp
	SetTarget
)

func (k EventKind) String() string {
	switch k {
	case SetValue:
		return "set"
	case LinearRamp:
		return "ramp"
	case SetTarget:
		return "target"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event is one scheduled change on a Param timeline.
type Event struct {
	Kind         EventKind
	Time         float64 // seconds on the context clock
	Value        float64
	TimeConstant float64 // SetTarget only
}

// Param is a sample-accurate automation timeline. Once events are submitted
// they are evaluated by the render loop independent of any host callback
// timing.
type Param struct {
	mu     sync.Mutex
	base   float64
	events []Event
	clock  func() float64
}

// NewParam creates a param with an intrinsic value, read against clock.
func NewParam(value float64, clock func() float64) *Param {
	return &Param{base: value, clock: clock}
}

// Value returns the automated value at the current clock time.
func (p *Param) Value() float64 {
	return p.ValueAt(p.clock())
}

// ValueAt returns the automated value at time t.
func (p *Param) ValueAt(t float64) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.valueAt(t)
}

// Events returns a copy of the pending timeline.
func (p *Param) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event(nil), p.events...)
}

// SetValueAtTime jumps to value at time t.
func (p *Param) SetValueAtTime(value, t float64) error {
	return p.insert(Event{Kind: SetValue, Time: t, Value: value})
}

// LinearRampToValueAtTime ramps linearly from the previous event to value,
// arriving at time t.
func (p *Param) LinearRampToValueAtTime(value, t float64) error {
	return p.insert(Event{Kind: LinearRamp, Time: t, Value: value})
}

// SetTargetAtTime starts an exponential approach toward target at time t.
func (p *Param) SetTargetAtTime(target, t, timeConstant float64) error {
	if !(timeConstant > 0) || math.IsInf(timeConstant, 0) {
		return fmt.Errorf("time constant %v: %w", timeConstant, ErrInvalidAutomation)
	}
	return p.insert(Event{Kind: SetTarget, Time: t, Value: target, TimeConstant: timeConstant})
}

// CancelScheduledValues drops every event at or after t.
func (p *Param) CancelScheduledValues(t float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancel(t)
}

// CancelAndHoldAtTime drops every event at or after t and pins the value the
// timeline had at t, so a following ramp starts from where the sound is.
func (p *Param) CancelAndHoldAtTime(t float64) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	v := p.valueAt(t)
	p.cancel(t)
	p.events = append(p.events, Event{Kind: SetValue, Time: t, Value: v})
	return v
}

func (p *Param) insert(e Event) error {
	if !finite(e.Time) || e.Time < 0 || !finite(e.Value) {
		return fmt.Errorf("%s at %v to %v: %w", e.Kind, e.Time, e.Value, ErrInvalidAutomation)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	i := sort.Search(len(p.events), func(i int) bool { return p.events[i].Time > e.Time })
	p.events = append(p.events, Event{})
	copy(p.events[i+1:], p.events[i:])
	p.events[i] = e
	return nil
}

func (p *Param) cancel(t float64) {
	i := sort.Search(len(p.events), func(i int) bool { return p.events[i].Time >= t })
	p.events = p.events[:i]
}

// valueAt walks the timeline keeping an anchor (value v at time vt) and the
// exponential target in effect, if any. Must be called with mu held.
func (p *Param) valueAt(t float64) float64 {
	v, vt := p.base, 0.0
	var tgt *Event
	held := func(x float64) float64 {
		if tgt == nil {
			return v
		}
		return tgt.Value + (v-tgt.Value)*math.Exp(-(x-vt)/tgt.TimeConstant)
	}
	for i := range p.events {
		e := &p.events[i]
		switch e.Kind {
		case LinearRamp:
			if t < e.Time {
				start := held(vt)
				if e.Time <= vt {
					return e.Value
				}
				frac := (t - vt) / (e.Time - vt)
				if frac < 0 {
					frac = 0
				}
				return start + (e.Value-start)*frac
			}
			v, vt, tgt = e.Value, e.Time, nil
		case SetValue:
			if t < e.Time {
				return held(t)
			}
			v, vt, tgt = e.Value, e.Time, nil
		case SetTarget:
			if t < e.Time {
				return held(t)
			}
			v, vt = held(e.Time), e.Time
			tgt = e
		}
	}
	return held(t)
}

// fill writes per-sample values starting at t0 and collapses events that
// can no longer influence times at or after the block end.
func (p *Param) fill(buf []float64, t0, dt float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range buf {
		buf[i] = p.valueAt(t0 + float64(i)*dt)
	}
	p.prune(t0 + float64(len(buf))*dt)
}

// prune folds every event strictly before the last event at or before now
// into the intrinsic value. Must be called with mu held.
func (p *Param) prune(now float64) {
	last := -1
	for i, e := range p.events {
		if e.Time > now {
			break
		}
		last = i
	}
	if last < 0 {
		return
	}
	anchor := p.valueAt(p.events[last].Time)
	if last == len(p.events)-1 && p.events[last].Kind != SetTarget {
		p.base = anchor
		p.events = nil
		return
	}
	if last == 0 {
		return
	}
	p.base = anchor
	p.events = append([]Event(nil), p.events[last:]...)
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
