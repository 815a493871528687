package config

import (
	"os"
	"testing"
	"time"
)

var allKeys = []string{
	"BGM_PORT", "BGM_ASSETS_DIR", "BGM_ASSETS_URL", "BGM_ASSETS_KEY", "BGM_ASSETS_EXT",
	"BGM_CATALOG", "BGM_START_TRACK", "BGM_OUTPUT", "BGM_SAMPLE_RATE",
	"BGM_SPEAKER_BUFFER", "BGM_OPUS_BITRATE", "BGM_ICE_SERVERS", "BGM_FADE_IN", "BGM_FADE_OUT", "BGM_CROSSFADE",
	"BGM_FADE_CURVE", "BGM_FADE_IN_NEW_TRACKS", "BGM_DUCKING_LEVEL",
	"BGM_MASTER_VOLUME", "BGM_LOG_LEVEL", "BGM_LOG_FORMAT",
}

func TestLoadDefaults(t *testing.T) {
	for _, k := range allKeys {
		os.Unsetenv(k)
	}

	cfg := Load()

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.AssetsDir != "./assets/music" || cfg.AssetsURL != "" || cfg.AssetsExt != ".ogg" {
		t.Errorf("assets = %q %q %q", cfg.AssetsDir, cfg.AssetsURL, cfg.AssetsExt)
	}
	if cfg.Catalog != "./assets/tracks.yaml" || cfg.StartWith != "" {
		t.Errorf("catalog = %q start = %q", cfg.Catalog, cfg.StartWith)
	}
	if cfg.Output != OutputSpeaker {
		t.Errorf("Output = %q, want %q", cfg.Output, OutputSpeaker)
	}
	if cfg.SampleRate != 48000 {
		t.Errorf("SampleRate = %d, want 48000", cfg.SampleRate)
	}
	if cfg.SpeakerBuffer != 100*time.Millisecond {
		t.Errorf("SpeakerBuffer = %v, want 100ms", cfg.SpeakerBuffer)
	}
	if cfg.OpusBitrate != 128000 || cfg.ICEServers != nil {
		t.Errorf("webrtc = %d %v", cfg.OpusBitrate, cfg.ICEServers)
	}
	if cfg.FadeIn != time.Second || cfg.FadeOut != time.Second {
		t.Errorf("fades = %v / %v, want 1s / 1s", cfg.FadeIn, cfg.FadeOut)
	}
	if cfg.Crossfade != 500*time.Millisecond {
		t.Errorf("Crossfade = %v, want 500ms", cfg.Crossfade)
	}
	if cfg.FadeCurve != "linear" || cfg.FadeInNewTracks {
		t.Errorf("curve = %q fadeInNew = %v", cfg.FadeCurve, cfg.FadeInNewTracks)
	}
	if cfg.DuckingLevel != 0.3 || cfg.MasterVolume != 1.0 {
		t.Errorf("duck = %v master = %v", cfg.DuckingLevel, cfg.MasterVolume)
	}
	if cfg.LogLevel != "info" || cfg.LogFormat != "console" {
		t.Errorf("log = %q %q", cfg.LogLevel, cfg.LogFormat)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("BGM_PORT", "3000")
	t.Setenv("BGM_ASSETS_URL", "http://assets:9000")
	t.Setenv("BGM_ASSETS_KEY", "test-key-123")
	t.Setenv("BGM_START_TRACK", "overworld")
	t.Setenv("BGM_OUTPUT", "STREAM")
	t.Setenv("BGM_SPEAKER_BUFFER", "250")
	t.Setenv("BGM_FADE_IN", "2s")
	t.Setenv("BGM_CROSSFADE", "750ms")
	t.Setenv("BGM_FADE_CURVE", "smoothstep")
	t.Setenv("BGM_FADE_IN_NEW_TRACKS", "true")
	t.Setenv("BGM_DUCKING_LEVEL", "0.5")
	t.Setenv("BGM_MASTER_VOLUME", "0.8")
	t.Setenv("BGM_LOG_FORMAT", "json")
	t.Setenv("BGM_OPUS_BITRATE", "96000")
	t.Setenv("BGM_ICE_SERVERS", "stun:stun.example.org:3478, ,turn:turn.example.org")

	cfg := Load()

	if cfg.Port != 3000 {
		t.Errorf("Port = %d, want 3000", cfg.Port)
	}
	if cfg.AssetsURL != "http://assets:9000" || cfg.AssetsKey != "test-key-123" {
		t.Errorf("assets = %q %q", cfg.AssetsURL, cfg.AssetsKey)
	}
	if cfg.StartWith != "overworld" {
		t.Errorf("StartWith = %q", cfg.StartWith)
	}
	if cfg.Output != OutputStream {
		t.Errorf("Output = %q, want %q", cfg.Output, OutputStream)
	}
	if cfg.SpeakerBuffer != 250*time.Millisecond {
		t.Errorf("SpeakerBuffer = %v, want 250ms from bare milliseconds", cfg.SpeakerBuffer)
	}
	if cfg.FadeIn != 2*time.Second || cfg.Crossfade != 750*time.Millisecond {
		t.Errorf("FadeIn = %v Crossfade = %v", cfg.FadeIn, cfg.Crossfade)
	}
	if cfg.FadeCurve != "smoothstep" || !cfg.FadeInNewTracks {
		t.Errorf("curve = %q fadeInNew = %v", cfg.FadeCurve, cfg.FadeInNewTracks)
	}
	if cfg.DuckingLevel != 0.5 || cfg.MasterVolume != 0.8 {
		t.Errorf("duck = %v master = %v", cfg.DuckingLevel, cfg.MasterVolume)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %q", cfg.LogFormat)
	}
	if cfg.OpusBitrate != 96000 {
		t.Errorf("OpusBitrate = %d", cfg.OpusBitrate)
	}
	if len(cfg.ICEServers) != 2 || cfg.ICEServers[0] != "stun:stun.example.org:3478" || cfg.ICEServers[1] != "turn:turn.example.org" {
		t.Errorf("ICEServers = %q", cfg.ICEServers)
	}
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("BGM_PORT", "not-a-number")
	t.Setenv("BGM_FADE_OUT", "soon")
	t.Setenv("BGM_FADE_IN_NEW_TRACKS", "maybe")
	t.Setenv("BGM_MASTER_VOLUME", "loud")

	cfg := Load()
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.FadeOut != time.Second {
		t.Errorf("FadeOut = %v, want 1s", cfg.FadeOut)
	}
	if cfg.FadeInNewTracks {
		t.Error("FadeInNewTracks = true, want default false")
	}
	if cfg.MasterVolume != 1.0 {
		t.Errorf("MasterVolume = %v, want 1.0", cfg.MasterVolume)
	}
}
