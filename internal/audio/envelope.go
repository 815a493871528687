package audio

import (
	"math"
	"sync/atomic"
	"time"
)

// ramp is one retarget request. It is immutable once published.
type ramp struct {
	seq      uint64
	target   float64
	duration time.Duration
	curve    Curve
}

// Envelope is a time-driven volume coefficient in [0,1].
//
// Retarget may be called from any goroutine. Advance must only be called
// from the one goroutine that owns the envelope's clock (the mixer). The
// handoff is a single atomic pointer swap, so Advance never blocks.
type Envelope struct {
	pending atomic.Pointer[ramp]
	seq     atomic.Uint64
	current atomic.Uint64 // math.Float64bits of value

	// owned by the advancing goroutine
	value   float64
	start   float64
	active  ramp
	elapsed time.Duration
	settled bool

	onSettle func(seq uint64)
}

// NewEnvelope creates an envelope resting at initial. onSettle, if set, runs
// on the advancing goroutine each time a ramp reaches its target.
func NewEnvelope(initial float64, onSettle func(seq uint64)) *Envelope {
	e := &Envelope{onSettle: onSettle}
	e.Reset(initial)
	return e
}

// Reset pins the envelope to v and drops any pending ramp. It must not be
// called while another goroutine is advancing the envelope.
func (e *Envelope) Reset(v float64) {
	v = clamp01(v)
	e.pending.Store(nil)
	e.value = v
	e.start = v
	e.active = ramp{target: v}
	e.elapsed = 0
	e.settled = true
	e.current.Store(math.Float64bits(v))
}

// Retarget starts a linear ramp from the current coefficient to target over
// d. d <= 0 jumps on the next Advance. It returns the ramp's sequence number.
func (e *Envelope) Retarget(target float64, d time.Duration) uint64 {
	return e.RetargetCurve(target, d, CurveLinear)
}

// RetargetCurve is Retarget with an explicit curve.
func (e *Envelope) RetargetCurve(target float64, d time.Duration, c Curve) uint64 {
	seq := e.reserve()
	e.publish(seq, target, d, c)
	return seq
}

// reserve hands out the next sequence number without publishing a ramp, so
// a caller can record the number before the ramp can possibly settle.
func (e *Envelope) reserve() uint64 { return e.seq.Add(1) }

func (e *Envelope) publish(seq uint64, target float64, d time.Duration, c Curve) {
	if d < 0 {
		d = 0
	}
	e.pending.Store(&ramp{seq: seq, target: clamp01(target), duration: d, curve: c})
}

// Current returns the coefficient without advancing. Safe from any goroutine.
func (e *Envelope) Current() float64 {
	return math.Float64frombits(e.current.Load())
}

// Advance moves the envelope dt forward and returns the new coefficient.
func (e *Envelope) Advance(dt time.Duration) float64 {
	if r := e.pending.Swap(nil); r != nil {
		e.active = *r
		e.start = e.value
		e.elapsed = 0
		e.settled = false
	}
	if e.settled {
		return e.value
	}

	e.elapsed += dt
	if e.elapsed >= e.active.duration {
		e.value = e.active.target
		e.settled = true
	} else {
		w := e.active.curve.at(float64(e.elapsed) / float64(e.active.duration))
		e.value = clampBetween(e.start+(e.active.target-e.start)*w, e.start, e.active.target)
	}
	e.current.Store(math.Float64bits(e.value))

	if e.settled && e.onSettle != nil {
		e.onSettle(e.active.seq)
	}
	return e.value
}

// Target returns the target of the ramp being run. Advancing goroutine only.
func (e *Envelope) Target() float64 { return e.active.target }

// Settled reports whether the last ramp reached its target. Advancing
// goroutine only.
func (e *Envelope) Settled() bool { return e.settled && e.pending.Load() == nil }

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampBetween(v, a, b float64) float64 {
	lo, hi := a, b
	if lo > hi {
		lo, hi = hi, lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
