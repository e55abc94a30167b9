package stream

import (
	"context"
	"sync"
	"sync/atomic"
)

// DefaultBuffer is the per-listener queue in frames (200ms). Pitch feedback
// needs to stay close to the tap, so this is kept short.
const DefaultBuffer = 10

// Broadcaster fans rendered PCM frames out to every sink: the local speaker,
// WebRTC peers and HTTP listeners.
type Broadcaster struct {
	buffer int

	mu        sync.RWMutex
	listeners map[*Listener]struct{}
	closed    bool
}

// Listener receives frames from a Broadcaster.
type Listener struct {
	C       chan []int16 // 20ms interleaved stereo frames
	done    chan struct{}
	once    sync.Once
	dropped atomic.Int64
}

// Done is closed when the listener is unsubscribed or the broadcaster stops.
func (l *Listener) Done() <-chan struct{} { return l.done }

// Dropped returns how many frames were skipped because the listener fell
// behind.
func (l *Listener) Dropped() int64 { return l.dropped.Load() }

func (l *Listener) close() { l.once.Do(func() { close(l.done) }) }

// NewBroadcaster creates a broadcaster whose listeners queue up to buffer
// frames. A non-positive buffer selects DefaultBuffer.
func NewBroadcaster(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Broadcaster{
		buffer:    buffer,
		listeners: make(map[*Listener]struct{}),
	}
}

// Subscribe registers a listener. Subscribing to a stopped broadcaster
// returns a listener that is already done.
func (b *Broadcaster) Subscribe() *Listener {
	l := &Listener{
		C:    make(chan []int16, b.buffer),
		done: make(chan struct{}),
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		l.close()
		return l
	}
	b.listeners[l] = struct{}{}
	return l
}

// Unsubscribe removes l and closes its done channel. It is safe to call more
// than once.
func (b *Broadcaster) Unsubscribe(l *Listener) {
	b.mu.Lock()
	delete(b.listeners, l)
	b.mu.Unlock()
	l.close()
}

// ListenerCount returns the number of subscribed listeners.
func (b *Broadcaster) ListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// Run copies frames from source to every listener until ctx is done or
// source closes, then releases all listeners. A full listener queue drops
// the frame for that listener only.
func (b *Broadcaster) Run(ctx context.Context, source <-chan []int16) {
	defer b.stop()
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-source:
			if !ok {
				return
			}
			b.mu.RLock()
			for l := range b.listeners {
				select {
				case l.C <- frame:
				default:
					l.dropped.Add(1)
				}
			}
			b.mu.RUnlock()
		}
	}
}

func (b *Broadcaster) stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for l := range b.listeners {
		delete(b.listeners, l)
		l.close()
	}
}
