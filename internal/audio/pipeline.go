package audio

import (
	"context"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/rs/zerolog"
)

// Pipeline pulls a streamer at real-time rate and emits 20ms int16 frames.
// It is the output clock when no sound device is attached: the frames feed
// network listeners instead of a speaker.
type Pipeline struct {
	source  beep.Streamer
	frameCh chan []int16
	buf     [][2]float64
	log     zerolog.Logger

	mu       sync.RWMutex
	frames   uint64
	underrun uint64
}

// NewPipeline creates a pipeline over src, which must produce SampleRate
// stereo frames.
func NewPipeline(src beep.Streamer, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		source:  src,
		frameCh: make(chan []int16, 100),
		buf:     make([][2]float64, FrameSize),
		log:     log.With().Str("component", "pipeline").Logger(),
	}
}

// Frames returns the channel of outgoing PCM frames (20ms each).
func (p *Pipeline) Frames() <-chan []int16 {
	return p.frameCh
}

// Status returns how much audio has been emitted and how often the
// consumer fell behind.
func (p *Pipeline) Status() (position time.Duration, late uint64) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return time.Duration(p.frames) * FrameDuration, p.underrun
}

// Pull renders one frame without waiting for the clock.
func (p *Pipeline) Pull() []int16 {
	n, ok := p.source.Stream(p.buf)
	if !ok {
		n = 0
	}
	clear(p.buf[n:])
	frame := make([]int16, FrameSamples)
	FramesToInt16(frame, p.buf)
	return frame
}

// Run starts the clock. Blocks until ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context) {
	defer close(p.frameCh)

	ticker := time.NewTicker(FrameDuration)
	defer ticker.Stop()

	p.log.Info().Dur("frame", FrameDuration).Msg("pipeline started")

	for {
		if !p.sendFrame(ctx, ticker, p.Pull()) {
			p.log.Info().Msg("pipeline stopped")
			return
		}
	}
}

// sendFrame waits for the ticker then sends a frame. Returns false on cancel.
func (p *Pipeline) sendFrame(ctx context.Context, ticker *time.Ticker, frame []int16) bool {
	select {
	case <-ctx.Done():
		return false
	case <-ticker.C:
	}

	select {
	case p.frameCh <- frame:
	default:
		p.mu.Lock()
		p.underrun++
		p.mu.Unlock()
		select {
		case p.frameCh <- frame:
		case <-ctx.Done():
			return false
		}
	}

	p.mu.Lock()
	p.frames++
	p.mu.Unlock()
	return true
}
