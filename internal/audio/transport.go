package audio

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/rs/zerolog"

	"github.com/hunterbridges/bgmkit/internal/assets"
)

// State is the transport's playback state.
type State int32

const (
	StateIdle State = iota
	StatePlaying
	StateTransitioning // a crossfade or stop fade is running
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	case StateTransitioning:
		return "transitioning"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

const (
	eventRingSize = 256
	drainInterval = 10 * time.Millisecond
)

// Options configures a Transport. Start from DefaultOptions; zero values
// are taken literally.
type Options struct {
	Store      assets.Store
	Codec      Codec           // nil selects by track format
	SampleRate beep.SampleRate // rate Stream produces

	FadeInDuration    time.Duration
	FadeOutDuration   time.Duration
	CrossfadeDuration time.Duration
	Curve             Curve
	FadeInNewTracks   bool

	DuckingLevel float64
	MasterVolume float64

	// OnError receives decode failures that happen during playback. It runs
	// on the goroutine calling Drain.
	OnError func(*VoiceError)
	Logger  zerolog.Logger
}

// DefaultOptions returns the stock fade timings and volumes.
func DefaultOptions(store assets.Store) Options {
	return Options{
		Store:             store,
		SampleRate:        SampleRate,
		FadeInDuration:    time.Second,
		FadeOutDuration:   time.Second,
		CrossfadeDuration: 500 * time.Millisecond,
		DuckingLevel:      0.3,
		MasterVolume:      1.0,
		Logger:            zerolog.Nop(),
	}
}

// mixSet is the immutable list of voices the mixer reads.
type mixSet struct {
	voices []*Voice
}

// grave is a released voice whose resources are freed once no mix pass
// that could still see it is running.
type grave struct {
	v    *Voice
	mark uint64
}

// Transport is the BGM engine: it owns at most one current voice plus any
// voices still fading out, and mixes them into one stereo stream.
//
// Stream is called by exactly one output goroutine and never blocks on the
// transport mutex. Everything else may be called from any goroutine.
// Completion callbacks run on the goroutine that calls the operation or
// Drain, never while the transport is locked.
type Transport struct {
	opts     Options
	log      zerolog.Logger
	controls *Controls
	events   *eventRing

	fadeInNew atomic.Bool
	paused    atomic.Bool
	mixing    atomic.Uint64 // odd while a Stream call is running
	mix       atomic.Pointer[mixSet]
	scratch   [][2]float64 // mixing goroutine only

	mu          sync.Mutex
	closed      bool
	nextID      uint64
	current     *Voice
	voices      map[uint64]*Voice
	graves      []grave
	state       State
	droppedSeen uint64
}

// NewTransport creates an idle transport.
func NewTransport(opts Options) (*Transport, error) {
	if opts.Store == nil {
		return nil, errors.New("transport: no asset store")
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = SampleRate
	}
	t := &Transport{
		opts:     opts,
		log:      opts.Logger.With().Str("component", "transport").Logger(),
		controls: NewControls(opts.DuckingLevel, opts.MasterVolume),
		events:   newEventRing(eventRingSize),
		scratch:  make([][2]float64, mixBlock),
		voices:   make(map[uint64]*Voice),
	}
	t.fadeInNew.Store(opts.FadeInNewTracks)
	t.mix.Store(&mixSet{})
	return t, nil
}

// Controls exposes mute, duck, ducking level and master volume.
func (t *Transport) Controls() *Controls { return t.controls }

// SampleRate is the rate of the frames Stream produces.
func (t *Transport) SampleRate() beep.SampleRate { return t.opts.SampleRate }

func (t *Transport) SetFadeInNewTracks(on bool) { t.fadeInNew.Store(on) }
func (t *Transport) FadeInNewTracks() bool      { return t.fadeInNew.Load() }

// Play makes track the current track. Both resources are opened and
// decoded before anything changes, so a bad track leaves playback alone.
// If another track is current it is crossfaded out. Playing the track that
// is already current is a no-op. onComplete runs once the new voice has
// reached full level.
func (t *Transport) Play(track *TrackDefinition, onComplete func()) error {
	if track == nil {
		return fmt.Errorf("%w: nil track", ErrInvalidTrack)
	}
	if err := track.validate(); err != nil {
		return err
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	same := t.isCurrent(track)
	t.mu.Unlock()
	if same {
		call(onComplete)
		return nil
	}

	st, err := t.openStitcher(track)
	if err != nil {
		t.log.Warn().Err(err).Str("track", track.String()).Msg("play failed")
		return err
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		st.Close()
		return ErrClosed
	}
	if t.isCurrent(track) {
		t.mu.Unlock()
		st.Close()
		call(onComplete)
		return nil
	}

	t.nextID++
	v := newVoice(t.nextID, track, st, t.opts.SampleRate, t.controls, t.events, t.opts.Curve)

	var fade time.Duration
	var fns []func()
	old := t.current
	if old != nil && old.Terminal() {
		// ran out before Drain got to it; nothing left to fade
		t.stopVoice(old, 0, &fns)
		old = nil
	}
	if old != nil {
		fade = t.opts.CrossfadeDuration
		t.stopVoice(old, fade, &fns)
	} else if t.fadeInNew.Load() {
		fade = t.opts.FadeInDuration
	}
	if seq := v.Start(fade); seq == 0 {
		if onComplete != nil {
			fns = append(fns, onComplete)
		}
	} else if onComplete != nil {
		v.waiters = append(v.waiters, waiter{seq: seq, fn: onComplete})
	}

	t.current = v
	t.voices[v.id] = v
	t.publish()
	t.updateState()
	t.mu.Unlock()

	ev := t.log.Info().Str("track", track.String()).Dur("fade", fade)
	if old != nil {
		ev = ev.Str("from", old.track.String())
	}
	ev.Msg("play")
	runAll(fns)
	return nil
}

// Stop fades the current track out and releases it. onComplete runs once
// the voice is gone, or immediately when nothing is playing. Calling Stop
// again during the fade joins the running fade.
func (t *Transport) Stop(onComplete func()) {
	var fns []func()
	t.mu.Lock()
	cur := t.current
	if cur == nil {
		t.mu.Unlock()
		call(onComplete)
		return
	}
	if onComplete != nil {
		cur.stopWaiters = append(cur.stopWaiters, onComplete)
	}
	t.stopVoice(cur, t.opts.FadeOutDuration, &fns)
	t.updateState()
	t.mu.Unlock()

	t.log.Info().Str("track", cur.track.String()).Dur("fade", t.opts.FadeOutDuration).Msg("stop")
	runAll(fns)
}

// StopNow silences and releases every voice without fading.
func (t *Transport) StopNow() {
	var fns []func()
	t.mu.Lock()
	for _, v := range t.voices {
		v.Kill()
		t.release(v, &fns)
	}
	t.updateState()
	t.mu.Unlock()
	runAll(fns)
}

// FadeTo ramps the current track's level to level over d without stopping
// it. onComplete runs when the ramp settles or the voice is released.
func (t *Transport) FadeTo(level float64, d time.Duration, onComplete func()) {
	t.mu.Lock()
	cur := t.current
	if cur == nil || cur.Stopping() {
		t.mu.Unlock()
		call(onComplete)
		return
	}
	seq := cur.FadeTo(level, d)
	if onComplete != nil {
		cur.waiters = append(cur.waiters, waiter{seq: seq, fn: onComplete})
	}
	t.mu.Unlock()
}

// Pause freezes playback: Stream emits silence and no fade advances.
func (t *Transport) Pause() { t.paused.Store(true) }

// Resume continues from where Pause left off.
func (t *Transport) Resume() { t.paused.Store(false) }

func (t *Transport) Paused() bool { return t.paused.Load() }

// CurrentTrack returns the current track or nil.
func (t *Transport) CurrentTrack() *TrackDefinition {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return nil
	}
	return t.current.track
}

// IsPlaying reports whether a current voice exists and has not finished
// fading out.
func (t *Transport) IsPlaying() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current != nil && !t.current.Terminal()
}

func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Voices returns the number of voices not yet released.
func (t *Transport) Voices() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.voices)
}

// Stream implements beep.Streamer. It sums all live voices into samples
// and never runs dry.
func (t *Transport) Stream(samples [][2]float64) (int, bool) {
	t.mixing.Add(1)
	clear(samples)
	if set := t.mix.Load(); len(set.voices) > 0 && !t.paused.Load() {
		for off := 0; off < len(samples); off += len(t.scratch) {
			chunk := samples[off:min(off+len(t.scratch), len(samples))]
			buf := t.scratch[:len(chunk)]
			for _, v := range set.voices {
				if v.Terminal() {
					continue
				}
				v.Stream(buf)
				for i := range chunk {
					chunk[i][0] += buf[i][0]
					chunk[i][1] += buf[i][1]
				}
			}
		}
	}
	t.mixing.Add(1)
	return len(samples), true
}

func (t *Transport) Err() error { return nil }

// Drain handles what the mixer reported since the last call: it runs due
// completions, reports decode errors and releases finished voices.
func (t *Transport) Drain() {
	var fns []func()
	var errs []*VoiceError

	t.mu.Lock()
	for {
		ev, ok := t.events.pop()
		if !ok {
			break
		}
		t.log.Trace().Uint64("voice", ev.voice).Uint64("seq", ev.seq).Stringer("kind", ev.kind).Msg("event")
		if v := t.voices[ev.voice]; v != nil {
			t.reconcile(v, &fns, &errs)
		}
	}
	if d := t.events.dropped.Load(); d != t.droppedSeen {
		t.log.Warn().Uint64("dropped", d-t.droppedSeen).Msg("event ring overflow, resyncing voices")
		t.droppedSeen = d
		for _, v := range t.voices {
			t.reconcile(v, &fns, &errs)
		}
	}
	t.bury(false)
	t.updateState()
	t.mu.Unlock()

	for _, ve := range errs {
		t.log.Error().Err(ve.Err).Str("track", ve.Track).Str("segment", ve.Segment.String()).
			Msg("decode failed, segment silenced")
		if t.opts.OnError != nil {
			t.opts.OnError(ve)
		}
	}
	runAll(fns)
}

// Run drains events on a ticker until ctx is done.
func (t *Transport) Run(ctx context.Context) {
	ticker := time.NewTicker(drainInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Drain()
		}
	}
}

// Close releases every voice and refuses further Play calls. The output
// should be stopped first; Close waits for an in-flight Stream call.
func (t *Transport) Close() error {
	var fns []func()
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	for _, v := range t.voices {
		v.Kill()
		t.release(v, &fns)
	}
	t.bury(true)
	t.updateState()
	t.mu.Unlock()
	runAll(fns)
	return nil
}

func (t *Transport) isCurrent(track *TrackDefinition) bool {
	cur := t.current
	return cur != nil && !cur.Stopping() && !cur.Terminal() && cur.track.Equal(track)
}

// stopVoice starts v's fade out. Paused transports and zero fades stop
// the voice on the spot since no mix pass would finish the fade.
func (t *Transport) stopVoice(v *Voice, fade time.Duration, fns *[]func()) {
	if v.Stopping() {
		return
	}
	if fade <= 0 || t.paused.Load() {
		v.Kill()
		t.release(v, fns)
		return
	}
	v.Stop(fade)
}

// reconcile brings v's bookkeeping in line with what the mixer published.
func (t *Transport) reconcile(v *Voice, fns *[]func(), errs *[]*VoiceError) {
	settled := v.settledSeq.Load()
	kept := v.waiters[:0]
	for _, w := range v.waiters {
		if w.seq <= settled {
			*fns = append(*fns, w.fn)
		} else {
			kept = append(kept, w)
		}
	}
	v.waiters = kept

	if mask := v.failed.Load() &^ v.reported; mask != 0 {
		v.reported |= mask
		for _, seg := range []Segment{SegmentIntro, SegmentBody} {
			if mask&(1<<uint(seg)) != 0 {
				*errs = append(*errs, &VoiceError{
					Track:   v.track.LoopName(),
					Segment: seg,
					Err:     v.stitcher.SegmentErr(seg),
				})
			}
		}
	}

	if v.Terminal() {
		t.release(v, fns)
	}
}

// release drops v from the mix and queues its resources for closing.
func (t *Transport) release(v *Voice, fns *[]func()) {
	if _, ok := t.voices[v.id]; !ok {
		return
	}
	delete(t.voices, v.id)
	if t.current == v {
		t.current = nil
	}
	t.publish()
	t.graves = append(t.graves, grave{v: v, mark: t.mixing.Load()})

	for _, w := range v.waiters {
		*fns = append(*fns, w.fn)
	}
	v.waiters = nil
	*fns = append(*fns, v.stopWaiters...)
	v.stopWaiters = nil

	t.log.Debug().Uint64("voice", v.id).Str("track", v.track.String()).Msg("voice released")
}

// publish swaps in a fresh mix set. Voice order follows creation.
func (t *Transport) publish() {
	set := &mixSet{voices: make([]*Voice, 0, len(t.voices))}
	for _, v := range t.voices {
		set.voices = append(set.voices, v)
	}
	slices.SortFunc(set.voices, func(a, b *Voice) int { return cmp.Compare(a.id, b.id) })
	t.mix.Store(set)
}

// bury closes released voices once the mixer can no longer reach them.
// A voice released while a Stream call was running (odd mark) waits until
// that call has returned.
func (t *Transport) bury(wait bool) {
	kept := t.graves[:0]
	for _, g := range t.graves {
		for wait && g.mark%2 == 1 && t.mixing.Load() == g.mark {
			time.Sleep(time.Millisecond)
		}
		if g.mark%2 == 1 && t.mixing.Load() == g.mark {
			kept = append(kept, g)
			continue
		}
		if err := g.v.close(); err != nil {
			t.log.Warn().Err(err).Uint64("voice", g.v.id).Msg("close voice")
		}
	}
	clear(t.graves[len(kept):])
	t.graves = kept
}

func (t *Transport) updateState() {
	switch {
	case t.current == nil:
		t.state = StateIdle
	case t.current.Stopping() || len(t.voices) > 1:
		t.state = StateTransitioning
	default:
		t.state = StatePlaying
	}
}

func (t *Transport) openStitcher(track *TrackDefinition) (*LoopStitcher, error) {
	codec := t.opts.Codec
	if codec == nil {
		var err error
		if codec, err = CodecFor(track.Format()); err != nil {
			return nil, err
		}
	}

	var intro *StreamDecoder
	if track.HasIntro() {
		d, err := t.openDecoder(track.IntroName(), codec)
		if err != nil {
			return nil, err
		}
		intro = d
	}
	body, err := t.openDecoder(track.LoopName(), codec)
	if err != nil {
		if intro != nil {
			intro.Close()
		}
		return nil, err
	}
	if intro != nil && intro.Format().SampleRate != body.Format().SampleRate {
		intro.Close()
		body.Close()
		return nil, fmt.Errorf("%w: intro %d Hz, loop %d Hz", ErrFormatMismatch,
			intro.Format().SampleRate, body.Format().SampleRate)
	}
	return NewLoopStitcher(intro, body, track.ShouldLoop()), nil
}

func (t *Transport) openDecoder(id string, codec Codec) (*StreamDecoder, error) {
	rc, err := t.opts.Store.Open(id)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", id, err)
	}
	return OpenDecoder(id, rc, codec)
}

func call(fn func()) {
	if fn != nil {
		fn()
	}
}

func runAll(fns []func()) {
	for _, fn := range fns {
		fn()
	}
}
