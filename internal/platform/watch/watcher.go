// Package watch reloads a file-backed resource when the file changes on disk.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDebounce collapses the burst of events an editor save produces.
const DefaultDebounce = 250 * time.Millisecond

// FileWatcher calls OnChange after the watched file is written, created or
// replaced. The parent directory is watched so that atomic rename-over saves
// are seen too.
type FileWatcher struct {
	path     string
	debounce time.Duration
	onChange func(ctx context.Context)
	logger   zerolog.Logger
}

// New creates a watcher for path.
func New(path string, onChange func(ctx context.Context), logger zerolog.Logger) (*FileWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve watch path: %w", err)
	}
	return &FileWatcher{
		path:     abs,
		debounce: DefaultDebounce,
		onChange: onChange,
		logger:   logger,
	}, nil
}

// SetDebounce overrides the debounce interval. Call before Run.
func (w *FileWatcher) SetDebounce(d time.Duration) { w.debounce = d }

// Run watches until ctx is cancelled. It returns nil on cancellation.
func (w *FileWatcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}
	w.logger.Info().Str("path", w.path).Msg("watching file for changes")

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(evt) {
				continue
			}
			timer.Reset(w.debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error().Err(err).Str("path", w.path).Msg("file watcher error")
		case <-timer.C:
			w.logger.Info().Str("path", w.path).Msg("file changed")
			w.onChange(ctx)
		}
	}
}

func (w *FileWatcher) relevant(evt fsnotify.Event) bool {
	if filepath.Clean(evt.Name) != w.path {
		return false
	}
	return evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
}
