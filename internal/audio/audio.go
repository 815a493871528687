package audio

import (
	"time"

	"github.com/gopxl/beep/v2"
)

// Output format of the headless pipeline and the network streams.
const (
	SampleRate    = 48000
	Channels      = 2
	BitDepth      = 16
	FrameDuration = 20 * time.Millisecond
	FrameSize     = 960                  // samples per channel per 20ms frame
	FrameSamples  = FrameSize * Channels // total interleaved samples per frame
	FrameBytes    = FrameSamples * 2     // bytes per frame (int16 = 2 bytes)
)

// mixBlock is the number of frames a voice decodes ahead of the mixer.
const mixBlock = 1024

// frameDuration is the envelope time step for one frame at rate.
func frameDuration(rate beep.SampleRate) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Second / time.Duration(rate)
}
