// Package watch re-runs an update cycle when RDF files below a manifest
// directory change.
package watch

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/zeebo/blake3"

	"github.com/schaermu/prezsyncd/internal/rdf"
	"github.com/schaermu/prezsyncd/internal/trigger"
)

const tempPrefix = ".prezsyncd-tmp-"

// Runner performs one update cycle
type Runner interface {
	Run(ctx context.Context) error
}

// Watcher watches a directory tree
type Watcher struct {
	root   string
	delay  time.Duration
	runs   *trigger.SingleFlight
	logger *slog.Logger

	mu     sync.Mutex
	hashes map[string]string // path → content hash
}

// New creates a watcher for root. Changes are debounced by delay.
func New(root string, delay time.Duration, runner Runner, logger *slog.Logger) *Watcher {
	if delay == 0 {
		delay = 2 * time.Second
	}
	return &Watcher{
		root:   root,
		delay:  delay,
		runs:   trigger.NewSingleFlight(runner.Run, logger),
		logger: logger,
		hashes: make(map[string]string),
	}
}

// Run performs an initial cycle and then watches until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() {
		_ = fsw.Close()
	}()

	if err := w.addRecursive(fsw, w.root); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.root, err)
	}

	w.logger.Info("performing initial update before watching", "root", w.root)
	w.runs.Do(ctx)

	debounce := trigger.NewDebouncer(w.delay)
	defer debounce.Stop()

	w.logger.Info("file watcher started", "root", w.root, "debounce", w.delay)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("stopping file watcher")
			return nil

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if w.handle(fsw, ev) {
				debounce.Trigger(func() { w.runs.Do(ctx) })
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

// handle records a filesystem event and reports whether it warrants a run
func (w *Watcher) handle(fsw *fsnotify.Watcher, ev fsnotify.Event) bool {
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(fsw, ev.Name); err != nil {
				w.logger.Warn("failed to watch new directory", "path", ev.Name, "error", err)
			}
			return false
		}
	}
	if !Relevant(ev.Name) || ev.Op == fsnotify.Chmod {
		return false
	}
	if !w.changed(ev.Name) {
		w.logger.Debug("content unchanged", "path", ev.Name)
		return false
	}
	w.logger.Info("file change detected", "path", ev.Name, "op", ev.Op.String())
	return true
}

// changed updates the recorded hash of path and reports whether it moved
func (w *Watcher) changed(path string) bool {
	sum, err := hashFile(path)

	w.mu.Lock()
	defer w.mu.Unlock()
	old, had := w.hashes[path]
	if err != nil {
		// removed or unreadable
		delete(w.hashes, path)
		return had
	}
	w.hashes[path] = sum
	return !had || old != sum
}

func (w *Watcher) addRecursive(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			if Relevant(path) {
				if sum, err := hashFile(path); err == nil {
					w.mu.Lock()
					w.hashes[path] = sum
					w.mu.Unlock()
				}
			}
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := fsw.Add(path); err != nil {
			return err
		}
		w.logger.Debug("watching directory", "path", path)
		return nil
	})
}

// Relevant reports whether path is an RDF file sync cares about. Temp
// files written during atomic replacement are ignored.
func Relevant(path string) bool {
	if strings.HasPrefix(filepath.Base(path), tempPrefix) {
		return false
	}
	_, err := rdf.FormatForPath(path)
	return err == nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = f.Close()
	}()
	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}
