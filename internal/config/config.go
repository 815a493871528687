package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Output selects where the mix goes.
const (
	OutputSpeaker = "speaker" // local sound device
	OutputStream  = "stream"  // headless clock feeding /stream and /offer
)

// Config holds all runtime configuration, loaded from environment variables.
type Config struct {
	// Server
	Port int

	// Assets
	AssetsDir string // local directory of encoded tracks
	AssetsURL string // remote asset server; overrides AssetsDir when set
	AssetsKey string
	AssetsExt string
	Catalog   string // YAML track catalog
	StartWith string // catalog track played at startup

	// Output
	Output        string
	SampleRate    int
	SpeakerBuffer time.Duration
	OpusBitrate   int      // WebRTC stream
	ICEServers    []string // STUN/TURN urls offered to WebRTC peers

	// Transport behavior
	FadeIn          time.Duration
	FadeOut         time.Duration
	Crossfade       time.Duration
	FadeCurve       string
	FadeInNewTracks bool
	DuckingLevel    float64
	MasterVolume    float64

	// Logging
	LogLevel  string
	LogFormat string // console or json
}

// Load reads configuration from environment variables with sane defaults.
func Load() Config {
	return Config{
		Port: envInt("BGM_PORT", 8080),

		AssetsDir: envStr("BGM_ASSETS_DIR", "./assets/music"),
		AssetsURL: envStr("BGM_ASSETS_URL", ""),
		AssetsKey: envStr("BGM_ASSETS_KEY", ""),
		AssetsExt: envStr("BGM_ASSETS_EXT", ".ogg"),
		Catalog:   envStr("BGM_CATALOG", "./assets/tracks.yaml"),
		StartWith: envStr("BGM_START_TRACK", ""),

		Output:        strings.ToLower(envStr("BGM_OUTPUT", OutputSpeaker)),
		SampleRate:    envInt("BGM_SAMPLE_RATE", 48000),
		SpeakerBuffer: envDuration("BGM_SPEAKER_BUFFER", 100*time.Millisecond),
		OpusBitrate:   envInt("BGM_OPUS_BITRATE", 128000),
		ICEServers:    envList("BGM_ICE_SERVERS"),

		FadeIn:          envDuration("BGM_FADE_IN", time.Second),
		FadeOut:         envDuration("BGM_FADE_OUT", time.Second),
		Crossfade:       envDuration("BGM_CROSSFADE", 500*time.Millisecond),
		FadeCurve:       envStr("BGM_FADE_CURVE", "linear"),
		FadeInNewTracks: envBool("BGM_FADE_IN_NEW_TRACKS", false),
		DuckingLevel:    envFloat("BGM_DUCKING_LEVEL", 0.3),
		MasterVolume:    envFloat("BGM_MASTER_VOLUME", 1.0),

		LogLevel:  envStr("BGM_LOG_LEVEL", "info"),
		LogFormat: envStr("BGM_LOG_FORMAT", "console"),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// envList splits a comma-separated value, dropping empty items.
func envList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// envDuration accepts Go durations ("750ms", "2s") or a bare number of
// milliseconds.
func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}
