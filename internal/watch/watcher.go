// Package watch re-verifies files after their writes settle.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period used when none is configured.
const DefaultDebounce = 500 * time.Millisecond

// VerifyFunc is called once a changed file has been quiet for the debounce
// period.
type VerifyFunc func(ctx context.Context, path string)

// Watch starts an fsnotify watcher over roots and calls fn for every regular
// file that was created or written, once no further create/write event has
// arrived for debounce. It blocks until ctx is cancelled.
//
// New directories created at runtime are added to the watch list and the
// files already inside them are verified. Attribute-only events are
// ignored: tagging a file changes its attributes, not its content.
func Watch(ctx context.Context, roots []string, debounce time.Duration, logger *slog.Logger, fn VerifyFunc) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	for _, root := range roots {
		if err := addDirsRecursive(w, root); err != nil {
			return err
		}
		logger.Info("watcher: started", slog.String("root", root))
	}

	return loop(ctx, w.Events, w.Errors, func(dir string) error {
		return addDirsRecursive(w, dir)
	}, debounce, logger, fn)
}

// loop runs the debounce state machine until ctx is cancelled or either
// channel closes. Pending timers never outlive it.
func loop(ctx context.Context, events <-chan fsnotify.Event, errs <-chan error,
	addDir func(string) error, debounce time.Duration, logger *slog.Logger, fn VerifyFunc) error {
	ready := make(chan string, 64)
	done := make(chan struct{})
	pending := make(map[string]*time.Timer)
	defer func() {
		for _, t := range pending {
			t.Stop()
		}
		close(done)
	}()

	schedule := func(path string) {
		if t, ok := pending[path]; ok {
			t.Reset(debounce)
			return
		}
		pending[path] = time.AfterFunc(debounce, func() {
			select {
			case ready <- path:
			case <-done:
			}
		})
	}

	cancel := func(path string) {
		if t, ok := pending[path]; ok {
			t.Stop()
			delete(pending, path)
		}
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("watcher: stopped")
			return nil

		case path := <-ready:
			delete(pending, path)
			if !isRegular(path) {
				continue
			}
			logger.Debug("watcher: verifying", slog.String("path", path))
			fn(ctx, path)

		case ev, ok := <-events:
			if !ok {
				logger.Warn("watcher: event stream closed")
				return nil
			}

			switch {
			case ev.Op&fsnotify.Create != 0 && isDir(ev.Name):
				if addErr := addDir(ev.Name); addErr != nil {
					logger.Warn("watcher: add new dir failed",
						slog.String("path", ev.Name),
						slog.String("error", addErr.Error()))
					continue
				}
				logger.Debug("watcher: watching new dir", slog.String("path", ev.Name))
				scheduleDir(ev.Name, schedule)

			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				if isRegular(ev.Name) {
					schedule(ev.Name)
				}

			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				cancel(ev.Name)
			}

		case watchErr, ok := <-errs:
			if !ok {
				logger.Warn("watcher: error stream closed")
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// scheduleDir schedules every regular file already in a new directory.
func scheduleDir(dir string, schedule func(string)) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.Type().IsRegular() {
			return nil
		}
		schedule(path)
		return nil
	})
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}

func isDir(path string) bool {
	info, err := os.Lstat(path)
	return err == nil && info.IsDir()
}

func isRegular(path string) bool {
	info, err := os.Lstat(path)
	return err == nil && info.Mode().IsRegular()
}
