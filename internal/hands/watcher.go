package hands

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher re-runs LoadBundled against a directory whenever a HAND.md file
// (or a directory that might contain one) changes underneath it, debouncing
// bursts of events into a single reload.
type Watcher struct {
	registry *Registry
	dir      string
	debounce time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	w      *fsnotify.Watcher
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatcher creates a Watcher for dir. debounce defaults to 250ms when <= 0.
func NewWatcher(registry *Registry, dir string, debounce time.Duration, logger *slog.Logger) *Watcher {
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{registry: registry, dir: dir, debounce: debounce, logger: logger}
}

// Start begins watching. It is a no-op if already started. The initial
// directory tree is scanned immediately so newly created subdirectories are
// observed without a prior reload.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.w != nil {
		w.mu.Unlock()
		return nil
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.w = fw
	watchCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.mu.Unlock()

	if err := addRecursive(fw, w.dir); err != nil {
		w.logger.Warn("hand watch: initial directory scan failed", "dir", w.dir, "error", err)
	}
	if _, err := w.registry.LoadBundled(w.dir); err != nil {
		w.logger.Warn("hand watch: initial load failed", "dir", w.dir, "error", err)
	}

	w.wg.Add(1)
	go w.loop(watchCtx)
	return nil
}

// Close stops watching and releases the underlying inotify/kqueue handle.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	fw := w.w
	w.w = nil
	w.mu.Unlock()

	if fw != nil {
		_ = fw.Close()
	}
	w.wg.Wait()
	return nil
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()
	w.mu.Lock()
	fw := w.w
	w.mu.Unlock()
	if fw == nil {
		return
	}

	var timerMu sync.Mutex
	var timer *time.Timer
	reload := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(w.debounce, func() {
			if _, err := w.registry.LoadBundled(w.dir); err != nil {
				w.logger.Warn("hand watch: reload failed", "dir", w.dir, "error", err)
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					_ = fw.Add(ev.Name)
				}
			}
			reload()
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("hand watch: watcher error", "error", err)
		}
	}
}

// addRecursive registers every directory under root with the watcher.
// fsnotify is not recursive by default, so each directory level must be
// added explicitly.
func addRecursive(fw *fsnotify.Watcher, root string) error {
	return walkDirs(root, func(path string) error {
		return fw.Add(path)
	})
}

func walkDirs(root string, fn func(path string) error) error {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := fn(root); err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			if err := walkDirs(filepath.Join(root, e.Name()), fn); err != nil {
				return err
			}
		}
	}
	return nil
}
