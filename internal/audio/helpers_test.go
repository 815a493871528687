package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"testing"
	"time"

	"github.com/gopxl/beep/v2"

	"github.com/hunterbridges/bgmkit/internal/assets"
)

// Test resources use a trivial raw format instead of Ogg Vorbis:
//
//	"TPCM" | rate uint32 | failAt int32 | n float64 samples (mono)
//
// failAt >= 0 makes the stream fail once that many frames have been read.

const testRate = 1000 // one frame per millisecond

var errBoom = errors.New("boom")

func pcm(rate int, failAt int, vals ...float64) []byte {
	var buf bytes.Buffer
	buf.WriteString("TPCM")
	binary.Write(&buf, binary.LittleEndian, uint32(rate))
	binary.Write(&buf, binary.LittleEndian, int32(failAt))
	for _, v := range vals {
		binary.Write(&buf, binary.LittleEndian, v)
	}
	return buf.Bytes()
}

// constant returns n frames of value v.
func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

type fakeStream struct {
	frames []float64
	pos    int
	failAt int
	err    error
	closed bool
}

func (s *fakeStream) Stream(samples [][2]float64) (int, bool) {
	if s.err != nil {
		return 0, false
	}
	if s.failAt >= 0 && s.pos >= s.failAt {
		s.err = errBoom
		return 0, false
	}
	end := len(s.frames)
	if s.failAt >= 0 && s.failAt < end {
		end = s.failAt
	}
	n := 0
	for n < len(samples) && s.pos < end {
		samples[n] = [2]float64{s.frames[s.pos], s.frames[s.pos]}
		n++
		s.pos++
	}
	if n == 0 && s.failAt < 0 {
		return 0, false
	}
	return n, true
}

func (s *fakeStream) Err() error    { return s.err }
func (s *fakeStream) Len() int      { return len(s.frames) }
func (s *fakeStream) Position() int { return s.pos }
func (s *fakeStream) Close() error  { s.closed = true; return nil }

func (s *fakeStream) Seek(p int) error {
	if p < 0 || p > len(s.frames) {
		return fmt.Errorf("seek %d out of range", p)
	}
	s.pos = p
	return nil
}

func testCodec(rc io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error) {
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, beep.Format{}, err
	}
	if len(data) < 12 || string(data[:4]) != "TPCM" {
		return nil, beep.Format{}, errors.New("not a TPCM stream")
	}
	rate := binary.LittleEndian.Uint32(data[4:8])
	failAt := int32(binary.LittleEndian.Uint32(data[8:12]))
	body := data[12:]
	frames := make([]float64, len(body)/8)
	for i := range frames {
		frames[i] = math.Float64frombits(binary.LittleEndian.Uint64(body[i*8:]))
	}
	f := beep.Format{SampleRate: beep.SampleRate(rate), NumChannels: 2, Precision: 2}
	return &fakeStream{frames: frames, failAt: int(failAt)}, f, nil
}

func testDecoder(t *testing.T, name string, data []byte) *StreamDecoder {
	t.Helper()
	d, err := OpenDecoder(name, assets.NewReader(data), testCodec)
	if err != nil {
		t.Fatalf("OpenDecoder(%s): %v", name, err)
	}
	return d
}

func testOptions(store assets.Store) Options {
	opts := DefaultOptions(store)
	opts.Codec = testCodec
	opts.SampleRate = testRate
	opts.FadeInDuration = 10 * time.Millisecond
	opts.FadeOutDuration = 10 * time.Millisecond
	opts.CrossfadeDuration = 10 * time.Millisecond
	return opts
}

func newTestTransport(t *testing.T, store assets.Store, mutate func(*Options)) *Transport {
	t.Helper()
	opts := testOptions(store)
	if mutate != nil {
		mutate(&opts)
	}
	tr, err := NewTransport(opts)
	if err != nil {
		t.Fatalf("NewTransport: %v", err)
	}
	t.Cleanup(func() { tr.Close() })
	return tr
}

func mustTrack(t *testing.T, intro, loop string, opts ...TrackOption) *TrackDefinition {
	t.Helper()
	tr, err := NewTrack(intro, loop, opts...)
	if err != nil {
		t.Fatalf("NewTrack(%q, %q): %v", intro, loop, err)
	}
	return tr
}

// render pulls n frames from s and returns the left channel.
func render(s beep.Streamer, n int) []float64 {
	buf := make([][2]float64, n)
	s.Stream(buf)
	out := make([]float64, n)
	for i := range buf {
		out[i] = buf[i][0]
	}
	return out
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

// counter counts completion callbacks.
type counter struct{ n int }

func (c *counter) fn() func() { return func() { c.n++ } }
