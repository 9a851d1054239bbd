package session

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const watchDebounce = 100 * time.Millisecond

// WatchFile calls onChange after the session file at path is written,
// created or replaced, until ctx ends. The parent directory is watched so
// atomic renames onto path are seen. Bursts of events coalesce into a single
// call.
func WatchFile(ctx context.Context, path string, logger zerolog.Logger, onChange func()) error {
	path = filepath.Clean(path)
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(path)); err != nil {
		return err
	}
	logger.Debug().Str("path", path).Msg("watching session file")

	var debounce *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case <-fire:
			fire = nil
			logger.Info().Str("path", path).Msg("session file changed")
			onChange()

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != path {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(watchDebounce)
			} else {
				debounce.Reset(watchDebounce)
			}
			fire = debounce.C

		case werr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn().Err(werr).Str("path", path).Msg("session watcher error")
		}
	}
}
