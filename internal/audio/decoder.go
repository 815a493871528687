package audio

import (
	"fmt"
	"io"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/vorbis"
)

// Codec turns a compressed byte stream into a seekable PCM streamer.
// The streamer takes ownership of rc.
type Codec func(rc io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error)

// VorbisCodec decodes Ogg Vorbis streams. rc must implement io.Seeker for
// the decoder to be rewindable.
func VorbisCodec(rc io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error) {
	return vorbis.Decode(rc)
}

// CodecFor returns the codec that handles f.
func CodecFor(f TrackFormat) (Codec, error) {
	switch f {
	case FormatOggVorbis:
		return VorbisCodec, nil
	default:
		return nil, fmt.Errorf("%w: no codec for %s", ErrDecode, f)
	}
}

// StreamDecoder reads PCM frames from one compressed resource.
// It is not safe for concurrent use; the goroutine that pulls frames owns it.
type StreamDecoder struct {
	name   string
	src    beep.StreamSeekCloser
	format beep.Format
	// sticky; written once by the pulling goroutine and wrapped by Err so
	// the pulling goroutine never allocates
	cause  error
	rewind bool
}

// OpenDecoder decodes rc with codec. On failure rc is closed and the error
// wraps ErrDecode.
func OpenDecoder(name string, rc io.ReadCloser, codec Codec) (*StreamDecoder, error) {
	if codec == nil {
		codec = VorbisCodec
	}
	src, format, err := codec(rc)
	if err != nil {
		rc.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrDecode, name, err)
	}
	if format.SampleRate <= 0 {
		src.Close()
		return nil, fmt.Errorf("%w: %s: invalid sample rate %d", ErrDecode, name, format.SampleRate)
	}
	return &StreamDecoder{name: name, src: src, format: format}, nil
}

// ReadFrames fills dst with the next frames. It returns fewer than len(dst)
// frames only at end of stream, in which case end is true. A codec failure
// ends the stream for good: the rest of dst is zeroed and Err reports it.
func (d *StreamDecoder) ReadFrames(dst [][2]float64) (n int, end bool) {
	if d.cause != nil {
		clear(dst)
		return 0, true
	}
	for n < len(dst) {
		got, ok := d.src.Stream(dst[n:])
		n += got
		if !ok || got == 0 {
			if err := d.src.Err(); err != nil {
				d.cause = err
				clear(dst[n:])
			}
			return n, true
		}
	}
	return n, false
}

// Rewind moves the read cursor back to the first frame.
func (d *StreamDecoder) Rewind() {
	if d.cause != nil {
		return
	}
	if err := d.src.Seek(0); err != nil {
		d.cause, d.rewind = err, true
	}
}

// Failed reports whether the stream has ended in an error.
func (d *StreamDecoder) Failed() bool { return d.cause != nil }

// Err returns the failure that ended the stream, if any, wrapping ErrDecode.
func (d *StreamDecoder) Err() error {
	switch {
	case d.cause == nil:
		return nil
	case d.rewind:
		return fmt.Errorf("%w: %s: rewind: %v", ErrDecode, d.name, d.cause)
	default:
		return fmt.Errorf("%w: %s: %v", ErrDecode, d.name, d.cause)
	}
}

func (d *StreamDecoder) Name() string        { return d.name }
func (d *StreamDecoder) Format() beep.Format { return d.format }

// Len is the stream length in frames as reported by the codec.
func (d *StreamDecoder) Len() int { return d.src.Len() }

// Close releases the underlying stream.
func (d *StreamDecoder) Close() error {
	return d.src.Close()
}
