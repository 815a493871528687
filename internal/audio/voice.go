package audio

import (
	"sync/atomic"
	"time"

	"github.com/gopxl/beep/v2"
)

// resampleQuality is the beep resampler quality used when a track's rate
// differs from the output rate.
const resampleQuality = 4

// resampleLookahead is how far beep's Resampler reads ahead of its output:
// one 512-frame source block plus the interpolation window.
const resampleLookahead = 512 + 2*resampleQuality + 1

type waiter struct {
	seq uint64
	fn  func()
}

// Voice is one playing instance of a track: a stitcher feeding an envelope,
// scaled by the shared controls and the track's base volume.
//
// MixNextFrame and Stream belong to the mixing goroutine. Start, Stop and
// FadeTo may be called from elsewhere; they only publish envelope ramps.
type Voice struct {
	id       uint64
	track    *TrackDefinition
	stitcher *LoopStitcher
	source   beep.Streamer
	env      *Envelope
	controls *Controls
	events   *eventRing
	curve    Curve
	step     time.Duration

	// mixing goroutine only
	buf    [][2]float64
	pos    int
	filled int
	ending bool
	tail   int // source frames of silence needed before the output is silent too

	startSeq   uint64
	stopSeq    atomic.Uint64 // 0 until Stop
	settledSeq atomic.Uint64
	terminal   atomic.Bool
	failed     atomic.Uint32 // bit per Segment

	// owned by the transport, under its mutex
	waiters     []waiter
	stopWaiters []func()
	reported    uint32
}

func newVoice(id uint64, track *TrackDefinition, st *LoopStitcher, rate beep.SampleRate,
	controls *Controls, events *eventRing, curve Curve) *Voice {
	v := &Voice{
		id:       id,
		track:    track,
		stitcher: st,
		source:   st,
		controls: controls,
		events:   events,
		curve:    curve,
		step:     frameDuration(rate),
		buf:      make([][2]float64, mixBlock),
	}
	if r := st.SampleRate(); r != rate {
		v.source = beep.Resample(resampleQuality, r, rate, st)
		v.tail = resampleLookahead
	}
	v.env = NewEnvelope(0, v.settle)
	st.OnError = v.decodeFailed
	return v
}

// ID is unique per transport.
func (v *Voice) ID() uint64 { return v.id }

// Track is the definition the voice plays.
func (v *Voice) Track() *TrackDefinition { return v.track }

// Start arms the voice before it is first mixed. A non-positive fadeIn
// starts at full level and returns 0; otherwise it returns the sequence
// number of the fade-in ramp.
func (v *Voice) Start(fadeIn time.Duration) uint64 {
	if fadeIn <= 0 {
		v.env.Reset(1)
		return 0
	}
	v.env.Reset(0)
	v.startSeq = v.env.RetargetCurve(1, fadeIn, v.curve)
	return v.startSeq
}

// Stop fades the voice to zero over fadeOut. When the fade settles the voice
// becomes terminal and is silent from then on.
func (v *Voice) Stop(fadeOut time.Duration) uint64 {
	if s := v.stopSeq.Load(); s != 0 {
		return s
	}
	seq := v.env.reserve()
	v.stopSeq.Store(seq)
	v.env.publish(seq, 0, fadeOut, v.curve)
	return seq
}

// Kill makes the voice terminal immediately without a fade.
func (v *Voice) Kill() {
	if v.stopSeq.Load() == 0 {
		v.stopSeq.Store(v.env.reserve())
	}
	v.terminal.Store(true)
}

// FadeTo retargets the voice's envelope without stopping it.
func (v *Voice) FadeTo(level float64, d time.Duration) uint64 {
	return v.env.RetargetCurve(level, d, v.curve)
}

// Stopping reports whether Stop or Kill has been called.
func (v *Voice) Stopping() bool { return v.stopSeq.Load() != 0 }

// Terminal reports whether the voice has finished and only emits silence.
func (v *Voice) Terminal() bool { return v.terminal.Load() }

// Level returns the envelope coefficient as of the last mixed frame.
func (v *Voice) Level() float64 { return v.env.Current() }

// MixNextFrame returns the next frame with envelope, controls and base
// volume applied, then advances the envelope by one frame.
func (v *Voice) MixNextFrame() [2]float64 {
	if v.terminal.Load() {
		return [2]float64{}
	}
	if v.pos == v.filled {
		if v.ending {
			v.finish()
			return [2]float64{}
		}
		n, _ := v.source.Stream(v.buf)
		v.pos, v.filled = 0, n
		v.ending = v.stitcher.Phase() == PhaseDone && v.stitcher.Padded() >= v.tail
		if n == 0 {
			v.finish()
			return [2]float64{}
		}
	}
	f := v.buf[v.pos]
	v.pos++

	g := v.env.Current() * v.controls.Load().Gain() * v.track.baseVolume
	v.env.Advance(v.step)
	return [2]float64{f[0] * g, f[1] * g}
}

// Stream implements beep.Streamer over MixNextFrame.
func (v *Voice) Stream(samples [][2]float64) (int, bool) {
	for i := range samples {
		samples[i] = v.MixNextFrame()
	}
	return len(samples), true
}

func (v *Voice) Err() error { return nil }

// settle runs on the mixing goroutine when an envelope ramp completes.
func (v *Voice) settle(seq uint64) {
	v.settledSeq.Store(seq)
	if s := v.stopSeq.Load(); s != 0 && seq >= s {
		v.terminal.Store(true)
		v.events.push(event{voice: v.id, seq: seq, kind: evStopped})
		return
	}
	v.events.push(event{voice: v.id, seq: seq, kind: evSettled})
}

// finish ends a voice whose track ran out.
func (v *Voice) finish() {
	if v.terminal.Swap(true) {
		return
	}
	v.events.push(event{voice: v.id, kind: evStopped})
}

func (v *Voice) decodeFailed(seg Segment) {
	v.failed.Or(1 << uint(seg))
	v.events.push(event{voice: v.id, kind: evDecodeError})
}

func (v *Voice) close() error {
	return v.stitcher.Close()
}
