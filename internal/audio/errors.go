package audio

import (
	"errors"
	"fmt"

	"github.com/hunterbridges/bgmkit/internal/assets"
)

var (
	// ErrResourceNotFound means a resource id has no backing stream.
	ErrResourceNotFound = assets.ErrNotFound
	// ErrDecode means a stream is malformed or uses an unsupported encoding.
	ErrDecode = errors.New("decode error")
	// ErrInvalidTrack means a track definition cannot be played.
	ErrInvalidTrack = errors.New("invalid track definition")
	// ErrFormatMismatch means intro and loop body use different sample rates.
	ErrFormatMismatch = errors.New("intro and loop formats differ")
	// ErrClosed is returned by a transport after Close.
	ErrClosed = errors.New("transport closed")
)

// Segment names the part of a track a decoder belongs to.
type Segment int

const (
	SegmentIntro Segment = iota
	SegmentBody
)

func (s Segment) String() string {
	switch s {
	case SegmentIntro:
		return "intro"
	case SegmentBody:
		return "body"
	default:
		return fmt.Sprintf("Segment(%d)", int(s))
	}
}

// VoiceError reports a decode failure that happened while a voice was
// being mixed. The voice kept running and emitted silence instead.
type VoiceError struct {
	Track   string // loop resource name of the affected track
	Segment Segment
	Err     error
}

func (e *VoiceError) Error() string {
	return fmt.Sprintf("track %s: %s: %v", e.Track, e.Segment, e.Err)
}

func (e *VoiceError) Unwrap() error { return e.Err }
