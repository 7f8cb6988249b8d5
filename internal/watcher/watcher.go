// Package watcher reports changes to the active document file.
package watcher

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// DefaultDebounce groups the burst of events an editor produces when saving
const DefaultDebounce = 300 * time.Millisecond

// FileWatcher emits the path of a file each time its content settles after a change
type FileWatcher struct {
	watcher  *fsnotify.Watcher
	debounce time.Duration
}

func New(debounce time.Duration) (*FileWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &FileWatcher{watcher: w, debounce: debounce}, nil
}

// Watch monitors path until ctx ends or the watcher is closed. The directory is
// watched rather than the file so that editors replacing the file are seen too.
func (w *FileWatcher) Watch(ctx context.Context, path string) (<-chan string, error) {
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if err := w.watcher.Add(filepath.Dir(path)); err != nil {
		return nil, err
	}

	changes := make(chan string, 1)
	go func() {
		defer close(changes)

		timer := time.NewTimer(w.debounce)
		timer.Stop()
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != path {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				timer.Reset(w.debounce)
			case <-timer.C:
				log.Debug().Str("file", path).Msg("Document changed on disk")
				select {
				case changes <- path:
				case <-ctx.Done():
					return
				}
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				log.Warn().Err(err).Str("file", path).Msg("File watcher error")
			}
		}
	}()
	return changes, nil
}

func (w *FileWatcher) Close() error {
	return w.watcher.Close()
}
