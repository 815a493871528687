package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/hunterbridges/bgmkit/internal/audio"
	"github.com/hunterbridges/bgmkit/internal/catalog"
	"github.com/hunterbridges/bgmkit/internal/stream"
)

// api is the HTTP control surface over one transport.
type api struct {
	tr  *audio.Transport
	log zerolog.Logger
	cat atomic.Pointer[catalog.Catalog]

	// set only for the stream output
	pipeline    *audio.Pipeline
	broadcaster *stream.Broadcaster
	webrtc      *stream.WebRTCHandler
}

func newAPI(tr *audio.Transport, cat *catalog.Catalog, log zerolog.Logger) *api {
	a := &api{tr: tr, log: log.With().Str("component", "api").Logger()}
	a.setCatalog(cat)
	return a
}

func (a *api) setCatalog(c *catalog.Catalog) { a.cat.Store(c) }

func (a *api) register(mux *http.ServeMux) {
	mux.HandleFunc("/api/status", a.status)
	mux.HandleFunc("/api/tracks", a.tracks)
	mux.HandleFunc("/api/play", post(a.play))
	mux.HandleFunc("/api/stop", post(a.stop))
	mux.HandleFunc("/api/mute", post(a.mute))
	mux.HandleFunc("/api/duck", post(a.duck))
	mux.HandleFunc("/api/volume", post(a.volume))
	mux.HandleFunc("/api/fade", post(a.fade))
	mux.HandleFunc("/api/pause", post(a.pause))
	mux.HandleFunc("/api/resume", post(a.resume))
}

func (a *api) status(w http.ResponseWriter, r *http.Request) {
	controls := a.tr.Controls().Load()
	track := a.tr.CurrentTrack()
	name, _ := a.cat.Load().NameOf(track)

	resp := map[string]any{
		"state":           a.tr.State().String(),
		"playing":         a.tr.IsPlaying(),
		"paused":          a.tr.Paused(),
		"track":           name,
		"resources":       track.String(),
		"voices":          a.tr.Voices(),
		"mute":            controls.Mute,
		"duck":            controls.Duck,
		"ducking_level":   controls.DuckingLevel,
		"master_volume":   controls.MasterVolume,
		"fade_in_new":     a.tr.FadeInNewTracks(),
		"catalog_entries": a.cat.Load().Len(),
	}
	if a.pipeline != nil {
		pos, late := a.pipeline.Status()
		resp["position"] = pos.Seconds()
		resp["late_frames"] = late
	}
	if a.broadcaster != nil {
		resp["listeners"] = a.broadcaster.Listeners()
	}
	if a.webrtc != nil {
		resp["webrtc_peers"] = a.webrtc.PeerCount()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *api) tracks(w http.ResponseWriter, r *http.Request) {
	cat := a.cat.Load()
	out := make(map[string]catalog.TrackSpec, cat.Len())
	for _, name := range cat.Names() {
		spec, _ := cat.Spec(name)
		out[name] = spec
	}
	writeJSON(w, http.StatusOK, map[string]any{"tracks": out})
}

func (a *api) play(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Track string `json:"track"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Track == "" {
		http.Error(w, "invalid track", http.StatusBadRequest)
		return
	}
	def, err := a.cat.Load().Track(req.Track)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err := a.tr.Play(def, nil); err != nil {
		http.Error(w, err.Error(), playStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "track": req.Track})
}

func playStatus(err error) int {
	switch {
	case errors.Is(err, audio.ErrResourceNotFound):
		return http.StatusNotFound
	case errors.Is(err, audio.ErrDecode), errors.Is(err, audio.ErrFormatMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, audio.ErrInvalidTrack):
		return http.StatusBadRequest
	case errors.Is(err, audio.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (a *api) stop(w http.ResponseWriter, r *http.Request) {
	a.tr.Stop(nil)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *api) mute(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mute bool `json:"mute"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	a.tr.Controls().SetMute(req.Mute)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "mute": req.Mute})
}

func (a *api) duck(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Duck  bool     `json:"duck"`
		Level *float64 `json:"level"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	c := a.tr.Controls()
	if req.Level != nil {
		if *req.Level < 0 || *req.Level > 1 {
			http.Error(w, "level must be 0-1", http.StatusBadRequest)
			return
		}
		c.SetDuckingLevel(*req.Level)
	}
	c.SetDuck(req.Duck)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "duck": req.Duck, "level": c.DuckingLevel()})
}

func (a *api) volume(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Master *float64 `json:"master"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Master == nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if *req.Master < 0 || *req.Master > 1 {
		http.Error(w, "master must be 0-1", http.StatusBadRequest)
		return
	}
	a.tr.Controls().SetMasterVolume(*req.Master)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "master": *req.Master})
}

func (a *api) fade(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Level *float64 `json:"level"`
		Ms    int      `json:"ms"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Level == nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if *req.Level < 0 || *req.Level > 1 || req.Ms < 0 {
		http.Error(w, "level must be 0-1 and ms non-negative", http.StatusBadRequest)
		return
	}
	a.tr.FadeTo(*req.Level, time.Duration(req.Ms)*time.Millisecond, nil)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *api) pause(w http.ResponseWriter, r *http.Request) {
	a.tr.Pause()
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "paused": true})
}

func (a *api) resume(w http.ResponseWriter, r *http.Request) {
	a.tr.Resume()
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "paused": false})
}

func post(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
