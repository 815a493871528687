package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/hunterbridges/bgmkit/internal/assets"
	"github.com/hunterbridges/bgmkit/internal/audio"
	"github.com/hunterbridges/bgmkit/internal/catalog"
	"github.com/hunterbridges/bgmkit/internal/config"
	"github.com/hunterbridges/bgmkit/internal/stream"
)

func main() {
	cfg := config.Load()
	log := newLogger(cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("bgmd stopped")
	}
}

func newLogger(cfg config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	var log zerolog.Logger
	if cfg.LogFormat == "json" {
		log = zerolog.New(os.Stderr)
	} else {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	return log.Level(level).With().Timestamp().Logger()
}

func run(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	log.Info().Str("output", cfg.Output).Msg("bgmd starting up")

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}

	cat, err := catalog.Load(cfg.Catalog)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		log.Warn().Str("path", cfg.Catalog).Msg("no catalog, starting empty")
		cat, _ = catalog.Parse(nil)
	}
	log.Info().Int("tracks", cat.Len()).Msg("catalog loaded")

	rate := beep.SampleRate(cfg.SampleRate)
	if cfg.Output == config.OutputStream {
		rate = audio.SampleRate // network encoders expect 48kHz frames
	}

	opts := audio.DefaultOptions(store)
	opts.SampleRate = rate
	opts.FadeInDuration = cfg.FadeIn
	opts.FadeOutDuration = cfg.FadeOut
	opts.CrossfadeDuration = cfg.Crossfade
	opts.Curve = audio.ParseCurve(cfg.FadeCurve)
	opts.FadeInNewTracks = cfg.FadeInNewTracks
	opts.DuckingLevel = cfg.DuckingLevel
	opts.MasterVolume = cfg.MasterVolume
	opts.Logger = log

	tr, err := audio.NewTransport(opts)
	if err != nil {
		return err
	}
	defer tr.Close()

	var sp *audio.Speaker
	switch cfg.Output {
	case config.OutputSpeaker:
		if sp, err = audio.OpenSpeaker(rate, cfg.SpeakerBuffer); err != nil {
			return err
		}
		defer sp.Close()
	case config.OutputStream:
	default:
		return fmt.Errorf("unknown output %q", cfg.Output)
	}

	a := newAPI(tr, cat, log)
	mux := http.NewServeMux()
	a.register(mux)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		tr.Run(ctx)
		return nil
	})

	if dirExists(filepath.Dir(cfg.Catalog)) {
		g.Go(func() error { return catalog.Watch(ctx, cfg.Catalog, log, a.setCatalog) })
	}

	switch cfg.Output {
	case config.OutputSpeaker:
		sp.Play(tr)
		log.Info().Int("rate", int(rate)).Dur("buffer", cfg.SpeakerBuffer).Msg("speaker output")

	case config.OutputStream:
		a.pipeline = audio.NewPipeline(tr, log)
		a.broadcaster = stream.NewBroadcaster(log)
		a.webrtc = stream.NewWebRTCHandler(a.broadcaster, log,
			stream.WithBitrate(cfg.OpusBitrate), stream.WithICEServers(cfg.ICEServers...))
		defer a.webrtc.Close()

		g.Go(func() error {
			a.pipeline.Run(ctx)
			return nil
		})
		g.Go(func() error {
			a.broadcaster.Run(ctx, a.pipeline.Frames())
			return nil
		})
		mux.Handle("/stream", stream.NewHTTPHandler(a.broadcaster, log))
		mux.Handle("/offer", a.webrtc)
	}

	if cfg.StartWith != "" {
		if def, err := cat.Track(cfg.StartWith); err != nil {
			log.Warn().Err(err).Msg("start track")
		} else if err := tr.Play(def, nil); err != nil {
			log.Warn().Err(err).Str("track", cfg.StartWith).Msg("start track")
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: mux}

	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("bgmd live")
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	return g.Wait()
}

func openStore(ctx context.Context, cfg config.Config, log zerolog.Logger) (assets.Store, error) {
	if cfg.AssetsURL == "" {
		log.Info().Str("dir", cfg.AssetsDir).Msg("local asset store")
		return assets.NewDirStore(cfg.AssetsDir, cfg.AssetsExt), nil
	}
	store := assets.NewHTTPStore(cfg.AssetsURL, cfg.AssetsKey, cfg.AssetsExt, log)
	healthCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	if err := store.WaitForHealthy(healthCtx, 2*time.Second); err != nil {
		return nil, fmt.Errorf("asset server not available: %w", err)
	}
	log.Info().Str("url", cfg.AssetsURL).Msg("remote asset store")
	return store, nil
}

func dirExists(dir string) bool {
	fi, err := os.Stat(dir)
	return err == nil && fi.IsDir()
}
