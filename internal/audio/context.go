package audio

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// ErrClosed is returned by operations on a closed context.
var ErrClosed = errors.New("audio context closed")

// State is the lifecycle state of a Context.
type State int

const (
	StateSuspended State = iota
	StateRunning
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateSuspended:
		return "suspended"
	case StateRunning:
		return "running"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Device is an output that must be started before sound is produced.
type Device interface {
	Start() error
}

// Option configures a Context.
type Option func(*Context)

// WithSampleRate overrides SampleRate.
func WithSampleRate(rate int) Option {
	return func(c *Context) { c.sampleRate = rate }
}

// WithDevice attaches an output device started on Resume.
func WithDevice(d Device) Option {
	return func(c *Context) { c.device = d }
}

// Context is the render graph and its hardware clock. The clock only moves
// while the context is running: it counts rendered frames.
type Context struct {
	sampleRate int
	device     Device
	master     *Param
	frameCh    chan []int16
	frames     atomic.Int64

	mu        sync.Mutex
	state     State
	voices    map[*Voice]struct{}
	mixBuf    []float64
	gainBuf   []float64
	masterBuf []float64
}

// NewContext creates a suspended context with master gain at 1.
func NewContext(opts ...Option) *Context {
	c := &Context{
		sampleRate: SampleRate,
		frameCh:    make(chan []int16, 100),
		voices:     make(map[*Voice]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.master = NewParam(1, c.CurrentTime)
	return c
}

// SampleRate returns the render rate in Hz.
func (c *Context) SampleRate() int { return c.sampleRate }

// CurrentTime returns the clock in seconds.
func (c *Context) CurrentTime() float64 {
	return float64(c.frames.Load()) / float64(c.sampleRate)
}

// Master returns the master gain param.
func (c *Context) Master() *Param { return c.master }

// State returns the lifecycle state.
func (c *Context) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Resume starts the output device, if any, and lets the clock run.
// A device failure leaves the context suspended.
func (c *Context) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateClosed:
		return ErrClosed
	case StateRunning:
		return nil
	}
	if c.device != nil {
		if err := c.device.Start(); err != nil {
			return fmt.Errorf("start output device: %w", err)
		}
	}
	c.state = StateRunning
	return nil
}

// Suspend freezes the clock. Rendering yields silence until Resume.
func (c *Context) Suspend() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return ErrClosed
	}
	c.state = StateSuspended
	return nil
}

// Close releases every voice. The context cannot be resumed afterwards.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return nil
	}
	c.state = StateClosed
	clear(c.voices)
	return nil
}

// NewVoice allocates an unconnected voice at freq.
func (c *Context) NewVoice(freq float64) *Voice {
	return newVoice(freq, c.sampleRate, c.CurrentTime)
}

// Connect routes v into the master gain.
func (c *Context) Connect(v *Voice) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return ErrClosed
	}
	c.voices[v] = struct{}{}
	return nil
}

// Disconnect removes v from the graph. Safe to call more than once.
func (c *Context) Disconnect(v *Voice) {
	c.mu.Lock()
	delete(c.voices, v)
	c.mu.Unlock()
}

// Voices returns the number of connected voices.
func (c *Context) Voices() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.voices)
}

// Render produces n frames of interleaved PCM and advances the clock by n.
// A context that is not running yields silence and keeps its clock.
func (c *Context) Render(n int) []int16 {
	out := make([]int16, n*Channels)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateRunning {
		return out
	}

	c.mixBuf = grow(c.mixBuf, n)
	c.gainBuf = grow(c.gainBuf, n)
	c.masterBuf = grow(c.masterBuf, n)
	clear(c.mixBuf)

	dt := 1 / float64(c.sampleRate)
	t0 := c.CurrentTime()
	end := t0 + float64(n)*dt
	for v := range c.voices {
		v.render(c.mixBuf, c.gainBuf, t0, dt)
		if v.endedBy(end) {
			delete(c.voices, v)
		}
	}
	c.master.fill(c.masterBuf, t0, dt)

	for i, x := range c.mixBuf {
		s := toInt16(x * c.masterBuf[i])
		for ch := 0; ch < Channels; ch++ {
			out[i*Channels+ch] = s
		}
	}
	c.frames.Add(int64(n))
	return out
}

// Frames returns the channel of outgoing PCM frames (20ms each).
func (c *Context) Frames() <-chan []int16 {
	return c.frameCh
}

// Run renders a frame every FrameDuration. Blocks until ctx is cancelled.
func (c *Context) Run(ctx context.Context) {
	defer close(c.frameCh)

	ticker := time.NewTicker(FrameDuration)
	defer ticker.Stop()

	perFrame := c.sampleRate * int(FrameDuration/time.Millisecond) / 1000
	log.Printf("Audio context rendering at %d Hz (%d frames per tick)", c.sampleRate, perFrame)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		frame := c.Render(perFrame)
		select {
		case c.frameCh <- frame:
		case <-ctx.Done():
			return
		}
	}
}

func grow(buf []float64, n int) []float64 {
	if cap(buf) < n {
		return make([]float64, n)
	}
	return buf[:n]
}
