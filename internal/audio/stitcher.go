package audio

import (
	"fmt"

	"github.com/gopxl/beep/v2"
)

// Phase is the stitcher's position in the track.
type Phase int32

const (
	PhaseIntro Phase = iota
	PhaseBody
	PhaseDone // non-looping body finished, body failed or body empty
)

func (p Phase) String() string {
	switch p {
	case PhaseIntro:
		return "intro"
	case PhaseBody:
		return "body"
	case PhaseDone:
		return "done"
	default:
		return fmt.Sprintf("Phase(%d)", int32(p))
	}
}

// LoopStitcher joins an optional intro and a loop body into one gapless
// frame sequence. Once the intro ends it is never played again.
type LoopStitcher struct {
	intro *StreamDecoder
	body  *StreamDecoder
	loop  bool
	phase Phase

	// frames read from the body since the last rewind; zero at a body EOF
	// means the body is empty and must not be rewound again.
	sinceRewind int

	// silent frames emitted since the track ended
	padded int

	// OnError runs on the pulling goroutine when a decoder fails. The
	// error itself is available from SegmentErr.
	OnError func(seg Segment)
}

// NewLoopStitcher takes ownership of both decoders. intro may be nil.
func NewLoopStitcher(intro, body *StreamDecoder, loop bool) *LoopStitcher {
	s := &LoopStitcher{intro: intro, body: body, loop: loop, phase: PhaseIntro}
	if intro == nil {
		s.phase = PhaseBody
	}
	return s
}

// Phase reports the current phase. Only the pulling goroutine may call it.
func (s *LoopStitcher) Phase() Phase { return s.phase }

// Padded reports how many silent frames Pull has emitted since the track
// ended. Only the pulling goroutine may call it.
func (s *LoopStitcher) Padded() int { return s.padded }

// Pull fills dst completely, padding with silence once the track is over.
func (s *LoopStitcher) Pull(dst [][2]float64) {
	filled := 0
	for filled < len(dst) {
		switch s.phase {
		case PhaseIntro:
			n, end := s.intro.ReadFrames(dst[filled:])
			filled += n
			if s.intro.Failed() {
				s.fail(SegmentIntro)
				s.phase = PhaseBody
				continue
			}
			if end {
				s.phase = PhaseBody
			}

		case PhaseBody:
			n, end := s.body.ReadFrames(dst[filled:])
			filled += n
			s.sinceRewind += n
			if s.body.Failed() {
				s.fail(SegmentBody)
				s.phase = PhaseDone
				continue
			}
			if !end {
				continue
			}
			if !s.loop || s.sinceRewind == 0 {
				s.phase = PhaseDone
				continue
			}
			s.body.Rewind()
			s.sinceRewind = 0

		default:
			clear(dst[filled:])
			s.padded += len(dst) - filled
			filled = len(dst)
		}
	}
}

// Stream implements beep.Streamer. It never runs dry.
func (s *LoopStitcher) Stream(samples [][2]float64) (int, bool) {
	s.Pull(samples)
	return len(samples), true
}

func (s *LoopStitcher) Err() error { return nil }

// SampleRate is the rate both segments decode at.
func (s *LoopStitcher) SampleRate() beep.SampleRate { return s.body.Format().SampleRate }

// SegmentErr returns the error recorded by one segment's decoder. It is
// safe to call once OnError for that segment has been observed.
func (s *LoopStitcher) SegmentErr(seg Segment) error {
	if seg == SegmentIntro {
		if s.intro == nil {
			return nil
		}
		return s.intro.Err()
	}
	return s.body.Err()
}

// Close releases both decoders.
func (s *LoopStitcher) Close() error {
	var first error
	if s.intro != nil {
		first = s.intro.Close()
	}
	if err := s.body.Close(); err != nil && first == nil {
		first = err
	}
	return first
}

func (s *LoopStitcher) fail(seg Segment) {
	if s.OnError != nil {
		s.OnError(seg)
	}
}
