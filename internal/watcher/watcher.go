package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDebounce batches bursts such as an export tool writing many files
const DefaultDebounce = 500 * time.Millisecond

// ChangeFunc receives the paths changed during one debounce window
type ChangeFunc func(paths []string)

// Watcher watches a data tree for CSV changes. fsnotify is not recursive,
// so every directory is added and new directories are added as they appear.
type Watcher struct {
	mu       sync.Mutex
	fs       *fsnotify.Watcher
	root     string
	debounce time.Duration
	onChange ChangeFunc
	pending  map[string]struct{}
	timer    *time.Timer
	logger   zerolog.Logger
}

// New creates a watcher for root. It does not start watching until Run.
func New(root string, debounce time.Duration, onChange ChangeFunc, logger zerolog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		fs:       fw,
		root:     root,
		debounce: debounce,
		onChange: onChange,
		pending:  make(map[string]struct{}),
		logger:   logger.With().Str("component", "watcher").Logger(),
	}, nil
}

// Run adds the tree and processes events until ctx is cancelled
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fs.Close()

	if err := w.addTree(w.root); err != nil {
		return err
	}
	w.logger.Info().Str("root", w.root).Msg("watching data directory")

	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			if w.timer != nil {
				w.timer.Stop()
			}
			w.mu.Unlock()
			w.logger.Info().Msg("watcher stopped")
			return nil

		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.handle(event)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Error().Err(err).Msg("watcher error")
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	if event.Op&fsnotify.Create != 0 {
		// A new month directory: watch it and everything below
		if err := w.addTree(event.Name); err == nil {
			w.logger.Debug().Str("path", event.Name).Msg("watching new directory")
		}
	}

	if !relevant(event.Name) {
		return
	}

	w.logger.Debug().Str("path", event.Name).Str("op", event.Op.String()).Msg("data changed")

	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[event.Name] = struct{}{}
	if w.timer == nil {
		w.timer = time.AfterFunc(w.debounce, w.flush)
	} else {
		w.timer.Reset(w.debounce)
	}
}

func (w *Watcher) flush() {
	w.mu.Lock()
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]struct{})
	w.timer = nil
	w.mu.Unlock()

	if len(paths) > 0 && w.onChange != nil {
		w.onChange(paths)
	}
}

// addTree watches dir and all directories below it
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.fs.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

// relevant reports whether a path can affect a loaded table: a CSV file or
// a directory entry without extension (a month or notes folder).
func relevant(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".csv" || ext == ""
}
