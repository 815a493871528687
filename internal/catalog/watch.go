package catalog

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// debounce collapses the burst of events an editor save produces.
const debounce = 100 * time.Millisecond

// Watch reloads the catalog at path whenever it changes and hands each
// successfully parsed version to onChange. A file that fails to parse is
// logged and skipped so the last good catalog stays in use. Watch blocks
// until ctx is done.
func Watch(ctx context.Context, path string, log zerolog.Logger, onChange func(*Catalog)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("catalog: watch: %w", err)
	}
	defer w.Close()

	// Watch the directory: editors often replace the file rather than
	// write it in place, which drops a watch on the file itself.
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("catalog: watch: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("catalog: watch %s: %w", filepath.Dir(abs), err)
	}
	log = log.With().Str("component", "catalog").Str("path", path).Logger()

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(debounce)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("watch error")

		case <-timer.C:
			c, err := Load(abs)
			if err != nil {
				log.Error().Err(err).Msg("reload failed, keeping previous catalog")
				continue
			}
			log.Info().Int("tracks", c.Len()).Msg("catalog reloaded")
			onChange(c)
		}
	}
}
