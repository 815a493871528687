package stream

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// listenerBuffer is about three seconds of 20ms frames.
const listenerBuffer = 150

// Broadcaster fans out the engine's PCM frames to network listeners.
// Slow listeners lose frames; they never hold up the mix clock.
type Broadcaster struct {
	log zerolog.Logger

	mu        sync.RWMutex
	listeners map[uuid.UUID]*Listener
}

// Listener receives PCM frames from the broadcaster.
type Listener struct {
	ID    uuid.UUID
	Kind  string // "wav" or "webrtc"
	Since time.Time
	C     chan []int16 // buffered channel of 20ms PCM frames

	dropped atomic.Uint64
	done    chan struct{}
	once    sync.Once
}

// Done is closed once the listener is unsubscribed.
func (l *Listener) Done() <-chan struct{} { return l.done }

// Dropped counts frames the listener was too slow to take.
func (l *Listener) Dropped() uint64 { return l.dropped.Load() }

// ListenerInfo is a snapshot of one connected listener.
type ListenerInfo struct {
	ID      string    `json:"id"`
	Kind    string    `json:"kind"`
	Since   time.Time `json:"since"`
	Dropped uint64    `json:"dropped"`
}

// NewBroadcaster creates a broadcaster with no listeners.
func NewBroadcaster(log zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		log:       log.With().Str("component", "broadcaster").Logger(),
		listeners: make(map[uuid.UUID]*Listener),
	}
}

// Subscribe registers a new listener of the given kind.
func (b *Broadcaster) Subscribe(kind string) *Listener {
	l := &Listener{
		ID:    uuid.New(),
		Kind:  kind,
		Since: time.Now(),
		C:     make(chan []int16, listenerBuffer),
		done:  make(chan struct{}),
	}
	b.mu.Lock()
	b.listeners[l.ID] = l
	n := len(b.listeners)
	b.mu.Unlock()
	b.log.Info().Str("listener", l.ID.String()).Str("kind", kind).Int("total", n).Msg("listener connected")
	return l
}

// Unsubscribe removes a listener and signals it to stop. Safe to call twice.
func (b *Broadcaster) Unsubscribe(l *Listener) {
	l.once.Do(func() {
		b.mu.Lock()
		delete(b.listeners, l.ID)
		n := len(b.listeners)
		b.mu.Unlock()
		close(l.done)
		b.log.Info().Str("listener", l.ID.String()).Uint64("dropped", l.Dropped()).Int("total", n).
			Msg("listener disconnected")
	})
}

// ListenerCount returns the number of active listeners.
func (b *Broadcaster) ListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// Listeners returns a snapshot of the connected listeners.
func (b *Broadcaster) Listeners() []ListenerInfo {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]ListenerInfo, 0, len(b.listeners))
	for _, l := range b.listeners {
		out = append(out, ListenerInfo{
			ID:      l.ID.String(),
			Kind:    l.Kind,
			Since:   l.Since,
			Dropped: l.Dropped(),
		})
	}
	return out
}

// Run reads frames from source and fans out to all listeners until ctx is
// done or source is closed.
func (b *Broadcaster) Run(ctx context.Context, source <-chan []int16) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-source:
			if !ok {
				return
			}
			b.mu.RLock()
			for _, l := range b.listeners {
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
