package stream

import (
	"encoding/binary"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/hunterbridges/bgmkit/internal/audio"
)

// HTTPHandler serves the mix as an endless 16-bit PCM WAV stream.
type HTTPHandler struct {
	broadcaster *Broadcaster
	log         zerolog.Logger
}

// NewHTTPHandler creates an HTTP stream handler.
func NewHTTPHandler(b *Broadcaster, log zerolog.Logger) *HTTPHandler {
	return &HTTPHandler{broadcaster: b, log: log.With().Str("component", "http-stream").Logger()}
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.Header().Set("Connection", "close")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("ICY-Name", "bgmkit")

	listener := h.broadcaster.Subscribe("wav")
	defer h.broadcaster.Unsubscribe(listener)

	if _, err := w.Write(WAVHeader(audio.SampleRate, audio.Channels, audio.BitDepth)); err != nil {
		return
	}
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-listener.Done():
			return
		case frame := <-listener.C:
			if _, err := w.Write(audio.SamplesToBytes(frame)); err != nil {
				h.log.Debug().Err(err).Str("listener", listener.ID.String()).Msg("write failed")
				return
			}
			flusher.Flush()
		}
	}
}

// streamingSize marks the RIFF and data chunk sizes as unknown.
const streamingSize = 0xFFFFFFFF

// WAVHeader returns a 44-byte canonical PCM WAV header for a stream of
// unknown length.
func WAVHeader(rate, channels, bits int) []byte {
	blockAlign := channels * bits / 8
	h := make([]byte, 44)
	copy(h[0:], "RIFF")
	binary.LittleEndian.PutUint32(h[4:], streamingSize)
	copy(h[8:], "WAVE")
	copy(h[12:], "fmt ")
	binary.LittleEndian.PutUint32(h[16:], 16)
	binary.LittleEndian.PutUint16(h[20:], 1) // PCM
	binary.LittleEndian.PutUint16(h[22:], uint16(channels))
	binary.LittleEndian.PutUint32(h[24:], uint32(rate))
	binary.LittleEndian.PutUint32(h[28:], uint32(rate*blockAlign))
	binary.LittleEndian.PutUint16(h[32:], uint16(blockAlign))
	binary.LittleEndian.PutUint16(h[34:], uint16(bits))
	copy(h[36:], "data")
	binary.LittleEndian.PutUint32(h[40:], streamingSize)
	return h
}
