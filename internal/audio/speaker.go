package audio

import (
	"fmt"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
)

// Speaker drives a streamer from the default sound device. beep's speaker
// is process-global, so only one Speaker may be open at a time.
type Speaker struct {
	rate beep.SampleRate
}

// OpenSpeaker initializes the sound device at rate with the given buffer
// latency.
func OpenSpeaker(rate beep.SampleRate, buffer time.Duration) (*Speaker, error) {
	if buffer <= 0 {
		buffer = 100 * time.Millisecond
	}
	if err := speaker.Init(rate, rate.N(buffer)); err != nil {
		return nil, fmt.Errorf("speaker init: %w", err)
	}
	return &Speaker{rate: rate}, nil
}

// Play hands src to the device. The device calls src.Stream from its own
// goroutine until Close.
func (s *Speaker) Play(src beep.Streamer) {
	speaker.Play(src)
}

func (s *Speaker) SampleRate() beep.SampleRate { return s.rate }

// Close stops the device and waits for its last Stream call to return.
func (s *Speaker) Close() {
	speaker.Clear()
	speaker.Close()
}
