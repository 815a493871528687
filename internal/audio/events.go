package audio

import "sync/atomic"

type eventKind uint8

const (
	evSettled eventKind = iota + 1 // a fade reached its target
	evStopped                      // a voice became terminal
	evDecodeError
)

func (k eventKind) String() string {
	switch k {
	case evSettled:
		return "settled"
	case evStopped:
		return "stopped"
	case evDecodeError:
		return "decode-error"
	default:
		return "unknown"
	}
}

type event struct {
	voice uint64
	seq   uint64
	kind  eventKind
}

// eventRing is a bounded single-producer single-consumer queue. The mixer
// pushes, the drain pass pops; neither side blocks. A full ring drops the
// event and counts it so the consumer can resynchronize from voice state.
type eventRing struct {
	buf     []event
	mask    uint64
	head    atomic.Uint64 // next slot to read
	tail    atomic.Uint64 // next slot to write
	dropped atomic.Uint64
}

func newEventRing(size int) *eventRing {
	n := 1
	for n < size {
		n <<= 1
	}
	return &eventRing{buf: make([]event, n), mask: uint64(n - 1)}
}

func (r *eventRing) push(e event) bool {
	t := r.tail.Load()
	if t-r.head.Load() >= uint64(len(r.buf)) {
		r.dropped.Add(1)
		return false
	}
	r.buf[t&r.mask] = e
	r.tail.Store(t + 1)
	return true
}

func (r *eventRing) pop() (event, bool) {
	h := r.head.Load()
	if h == r.tail.Load() {
		return event{}, false
	}
	e := r.buf[h&r.mask]
	r.head.Store(h + 1)
	return e, true
}
