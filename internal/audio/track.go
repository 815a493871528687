package audio

import (
	"fmt"
	"math"
	"strings"
)

// TrackFormat identifies the codec of a track's resources.
type TrackFormat int

const (
	FormatUnknown TrackFormat = iota
	FormatOggVorbis
)

func (f TrackFormat) String() string {
	switch f {
	case FormatOggVorbis:
		return "ogg/vorbis"
	default:
		return "unknown"
	}
}

// ParseTrackFormat maps a catalog name to a TrackFormat.
func ParseTrackFormat(s string) TrackFormat {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ogg", "vorbis", "ogg/vorbis", "oggvorbis":
		return FormatOggVorbis
	default:
		return FormatUnknown
	}
}

// TrackDefinition describes a looping or one-shot BGM track: an optional
// intro played once, then a loop body. It is immutable.
type TrackDefinition struct {
	format     TrackFormat
	baseVolume float64
	shouldLoop bool
	introName  string
	loopName   string
}

// TrackOption customizes a TrackDefinition at construction.
type TrackOption func(*TrackDefinition)

// WithBaseVolume sets the track's volume multiplier (default 1.0).
func WithBaseVolume(v float64) TrackOption {
	return func(t *TrackDefinition) { t.baseVolume = v }
}

// WithLoop sets whether the body repeats (default true).
func WithLoop(loop bool) TrackOption {
	return func(t *TrackDefinition) { t.shouldLoop = loop }
}

// WithFormat overrides the codec (default FormatOggVorbis).
func WithFormat(f TrackFormat) TrackOption {
	return func(t *TrackDefinition) { t.format = f }
}

// NewTrack creates a track with an intro and a loop body.
func NewTrack(intro, loop string, opts ...TrackOption) (*TrackDefinition, error) {
	t := &TrackDefinition{
		format:     FormatOggVorbis,
		baseVolume: 1.0,
		shouldLoop: true,
		introName:  strings.TrimSpace(intro),
		loopName:   strings.TrimSpace(loop),
	}
	for _, opt := range opts {
		opt(t)
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// NewLoopTrack creates a track with a loop body only.
func NewLoopTrack(loop string, opts ...TrackOption) (*TrackDefinition, error) {
	return NewTrack("", loop, opts...)
}

func (t *TrackDefinition) validate() error {
	if t.loopName == "" {
		return fmt.Errorf("%w: loop resource is required", ErrInvalidTrack)
	}
	if math.IsNaN(t.baseVolume) || math.IsInf(t.baseVolume, 0) || t.baseVolume < 0 {
		return fmt.Errorf("%w: base volume %v", ErrInvalidTrack, t.baseVolume)
	}
	if t.format != FormatOggVorbis {
		return fmt.Errorf("%w: unsupported format %s", ErrInvalidTrack, t.format)
	}
	return nil
}

func (t *TrackDefinition) Format() TrackFormat { return t.format }
func (t *TrackDefinition) BaseVolume() float64 { return t.baseVolume }
func (t *TrackDefinition) ShouldLoop() bool    { return t.shouldLoop }
func (t *TrackDefinition) IntroName() string   { return t.introName }
func (t *TrackDefinition) LoopName() string    { return t.loopName }
func (t *TrackDefinition) HasIntro() bool      { return t.introName != "" }

// Equal reports whether two definitions describe the same track.
func (t *TrackDefinition) Equal(o *TrackDefinition) bool {
	if t == nil || o == nil {
		return t == o
	}
	return *t == *o
}

func (t *TrackDefinition) String() string {
	if t == nil {
		return "<none>"
	}
	if t.introName != "" {
		return t.introName + "+" + t.loopName
	}
	return t.loopName
}
