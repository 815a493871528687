package stream

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog"
	"gopkg.in/hraban/opus.v2"

	"github.com/hunterbridges/bgmkit/internal/audio"
)

// DefaultOpusBitrate is used when no bitrate is configured.
const DefaultOpusBitrate = 128000

// maxOpusPacket bounds one encoded 20ms frame.
const maxOpusPacket = 4000

// WebRTCOption configures a WebRTCHandler.
type WebRTCOption func(*WebRTCHandler)

// WithBitrate sets the Opus target bitrate in bits per second.
func WithBitrate(bps int) WebRTCOption {
	return func(h *WebRTCHandler) {
		if bps > 0 {
			h.bitrate = bps
		}
	}
}

// WithICEServers sets the STUN/TURN urls offered to peers.
func WithICEServers(urls ...string) WebRTCOption {
	return func(h *WebRTCHandler) {
		if len(urls) > 0 {
			h.config.ICEServers = []webrtc.ICEServer{{URLs: urls}}
		}
	}
}

// sampleWriter is the part of a local track the encoder loop writes to.
type sampleWriter interface {
	WriteSample(media.Sample) error
}

// offerError carries the HTTP status a failed negotiation maps to.
type offerError struct {
	status int
	msg    string
	err    error
}

func (e *offerError) Error() string {
	if e.err == nil {
		return e.msg
	}
	return e.msg + ": " + e.err.Error()
}

func (e *offerError) Unwrap() error { return e.err }

// WebRTCHandler answers SDP offers on /offer and streams the mix to each
// peer as Opus. Every peer holds one broadcaster listener until it hangs up.
type WebRTCHandler struct {
	broadcaster *Broadcaster
	log         zerolog.Logger
	bitrate     int
	config      webrtc.Configuration

	mu    sync.Mutex
	peers map[*webrtc.PeerConnection]*Listener
}

// NewWebRTCHandler creates a WebRTC stream handler.
func NewWebRTCHandler(b *Broadcaster, log zerolog.Logger, opts ...WebRTCOption) *WebRTCHandler {
	h := &WebRTCHandler{
		broadcaster: b,
		log:         log.With().Str("component", "webrtc").Logger(),
		bitrate:     DefaultOpusBitrate,
		peers:       make(map[*webrtc.PeerConnection]*Listener),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// PeerCount returns the number of active WebRTC peers.
func (h *WebRTCHandler) PeerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

func (h *WebRTCHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	switch r.Method {
	case http.MethodOptions:
		w.Header().Set("Access-Control-Allow-Methods", "POST")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.WriteHeader(http.StatusOK)
		return
	case http.MethodPost:
	default:
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}

	var offer webrtc.SessionDescription
	if err := json.NewDecoder(r.Body).Decode(&offer); err != nil || offer.SDP == "" {
		http.Error(w, "invalid SDP offer", http.StatusBadRequest)
		return
	}

	pc, track, err := h.negotiate(offer)
	if err != nil {
		var oe *offerError
		status := http.StatusInternalServerError
		if errors.As(err, &oe) {
			status = oe.status
		}
		h.log.Warn().Err(err).Msg("offer rejected")
		http.Error(w, err.Error(), status)
		return
	}

	l := h.addPeer(pc)
	go h.streamToPeer(l, track)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(pc.LocalDescription())
}

// negotiate builds a send-only peer for offer and waits for ICE gathering
// so the answer carries every candidate.
func (h *WebRTCHandler) negotiate(offer webrtc.SessionDescription) (*webrtc.PeerConnection, *webrtc.TrackLocalStaticSample, error) {
	pc, err := webrtc.NewPeerConnection(h.config)
	if err != nil {
		return nil, nil, &offerError{http.StatusInternalServerError, "create peer connection", err}
	}
	fail := func(status int, msg string, err error) (*webrtc.PeerConnection, *webrtc.TrackLocalStaticSample, error) {
		pc.Close()
		return nil, nil, &offerError{status, msg, err}
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: audio.SampleRate, Channels: audio.Channels},
		"bgm",
		"bgmkit",
	)
	if err != nil {
		return fail(http.StatusInternalServerError, "create audio track", err)
	}
	if _, err := pc.AddTrack(track); err != nil {
		return fail(http.StatusInternalServerError, "add track", err)
	}
	if err := pc.SetRemoteDescription(offer); err != nil {
		return fail(http.StatusBadRequest, "set remote description", err)
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return fail(http.StatusBadRequest, "create answer", err)
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		return fail(http.StatusInternalServerError, "set local description", err)
	}
	<-gathered
	return pc, track, nil
}

// addPeer subscribes pc to the mix and hangs it up once the connection
// drops.
func (h *WebRTCHandler) addPeer(pc *webrtc.PeerConnection) *Listener {
	l := h.broadcaster.Subscribe("webrtc")
	h.mu.Lock()
	h.peers[pc] = l
	h.mu.Unlock()
	h.log.Info().Str("listener", l.ID.String()).Msg("peer joined")

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		switch s {
		case webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateClosed,
			webrtc.PeerConnectionStateDisconnected:
			if h.removePeer(pc) {
				pc.Close()
			}
		}
	})
	return l
}

// removePeer drops pc and its listener. It reports whether pc was known.
func (h *WebRTCHandler) removePeer(pc *webrtc.PeerConnection) bool {
	h.mu.Lock()
	l, ok := h.peers[pc]
	delete(h.peers, pc)
	h.mu.Unlock()
	if !ok {
		return false
	}
	h.broadcaster.Unsubscribe(l)
	h.log.Info().Str("listener", l.ID.String()).Uint64("dropped", l.Dropped()).Msg("peer left")
	return true
}

// streamToPeer encodes the listener's frames until it is unsubscribed or
// the track refuses a write.
func (h *WebRTCHandler) streamToPeer(l *Listener, track sampleWriter) {
	log := h.log.With().Str("listener", l.ID.String()).Logger()

	enc, err := opus.NewEncoder(audio.SampleRate, audio.Channels, opus.AppAudio)
	if err != nil {
		log.Error().Err(err).Msg("opus encoder")
		h.broadcaster.Unsubscribe(l)
		return
	}
	if err := enc.SetBitrate(h.bitrate); err != nil {
		log.Warn().Err(err).Int("bitrate", h.bitrate).Msg("opus bitrate")
	}

	packet := make([]byte, maxOpusPacket)
	for {
		select {
		case <-l.Done():
			return
		case frame := <-l.C:
			n, err := enc.Encode(frame, packet)
			if err != nil {
				log.Warn().Err(err).Msg("opus encode")
				continue
			}
			if err := track.WriteSample(media.Sample{Data: packet[:n], Duration: audio.FrameDuration}); err != nil {
				log.Debug().Err(err).Msg("write sample")
				h.broadcaster.Unsubscribe(l)
				return
			}
		}
	}
}

// Close hangs up every peer.
func (h *WebRTCHandler) Close() {
	h.mu.Lock()
	peers := h.peers
	h.peers = make(map[*webrtc.PeerConnection]*Listener)
	h.mu.Unlock()
	for pc, l := range peers {
		h.broadcaster.Unsubscribe(l)
		pc.Close()
	}
}
