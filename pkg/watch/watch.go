// Package watch reports changes to the Markdown files of a tree.
package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/harrisonrobin/agmd/pkg/load"
)

const (
	defaultDebounce = 300 * time.Millisecond
	minTick         = time.Millisecond
)

// Handler receives settled changes as slash separated paths relative to the
// root.
type Handler struct {
	OnChange func(rel string)
	OnRemove func(rel string)
}

// Watcher follows a directory tree, including directories created later.
type Watcher struct {
	root     string
	ignore   *load.Ignore
	handler  Handler
	debounce time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	pending map[string]time.Time
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates a watcher for root. ignore may be nil.
func New(root string, ignore *load.Ignore, handler Handler, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		root:     root,
		ignore:   ignore,
		handler:  handler,
		debounce: defaultDebounce,
		logger:   logger,
		pending:  make(map[string]time.Time),
	}
}

// SetDebounce sets how long a file must stay quiet before it is reported.
// It has no effect once started.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running && d > 0 {
		w.debounce = d
	}
}

// Start watches the tree until ctx is done or Stop is called. It does not
// block.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create watcher")
	}
	w.watcher = fw
	if err := w.addTree(w.root, false); err != nil {
		fw.Close()
		return err
	}

	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	go w.run(ctx)
	return nil
}

// Stop ends the watch and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	w.mu.Unlock()

	<-w.doneCh
	if err := w.watcher.Close(); err != nil {
		w.logger.Warn("failed to close watcher", zap.Error(err))
	}
}

// addTree watches dir and its subdirectories. With queue set the Markdown
// files already inside are reported too, since they may have been written
// before the watch was in place.
func (w *Watcher) addTree(dir string, queue bool) error {
	now := time.Now()
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			if rel, ok := w.rel(path); ok && queue && !load.Skip(rel, false, w.ignore) {
				w.pending[rel] = now
			}
			return nil
		}
		if path != w.root {
			if rel, ok := w.rel(path); !ok || load.Skip(rel, true, w.ignore) {
				return filepath.SkipDir
			}
		}
		if err := w.watcher.Add(path); err != nil {
			return errors.Wrapf(err, "failed to watch %s", path)
		}
		w.logger.Debug("watching directory", zap.String("path", path))
		return nil
	})
}

func (w *Watcher) rel(path string) (string, bool) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(max(w.debounce/3, minTick))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", zap.Error(err))
		case now := <-ticker.C:
			w.flush(now)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	rel, ok := w.rel(event.Name)
	if !ok {
		return
	}
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if !load.Skip(rel, true, w.ignore) {
				if err := w.addTree(event.Name, true); err != nil {
					w.logger.Warn("failed to watch new directory", zap.String("path", rel), zap.Error(err))
				}
			}
			return
		}
	}
	if load.Skip(rel, false, w.ignore) {
		return
	}
	if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) ||
		event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		w.logger.Debug("file event", zap.String("path", rel), zap.Stringer("op", event.Op))
		w.pending[rel] = time.Now()
	}
}

// flush reports the files that stayed quiet for the debounce window.
func (w *Watcher) flush(now time.Time) {
	for rel, last := range w.pending {
		if now.Sub(last) < w.debounce {
			continue
		}
		delete(w.pending, rel)
		if _, err := os.Stat(filepath.Join(w.root, filepath.FromSlash(rel))); err != nil {
			if w.handler.OnRemove != nil {
				w.handler.OnRemove(rel)
			}
			continue
		}
		if w.handler.OnChange != nil {
			w.handler.OnChange(rel)
		}
	}
}
