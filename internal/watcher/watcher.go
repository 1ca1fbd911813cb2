// Package watcher watches index snapshot files with fsnotify and reports, debounced,
// which store keys changed on disk.
package watcher

import (
	"context"
	"errors"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/hyperjump/bunmyaku/internal/vector"
	"github.com/hyperjump/bunmyaku/pkg/utils"
)

const defaultDebounce = 400 * time.Millisecond

// Watcher watches a fixed set of store keys below a data directory and invokes
// onChange once per burst of writes to a key. A stopped watcher cannot be restarted.
type Watcher struct {
	root     string
	keys     map[string]struct{}
	onChange func(key string)
	debounce time.Duration
	logger   *zap.Logger

	mu       sync.Mutex
	fsw      *fsnotify.Watcher
	timers   map[string]*time.Timer
	started  bool
	launched bool
	done     chan struct{}
	exited   chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) WatcherOption {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithDebounce sets how long a key must stay quiet before onChange fires.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewWatcher creates a watcher for keys, slash-separated paths relative to root.
func NewWatcher(root string, keys []string, onChange func(key string), opts ...WatcherOption) *Watcher {
	w := &Watcher{
		root:     filepath.Clean(root),
		keys:     make(map[string]struct{}, len(keys)),
		onChange: onChange,
		debounce: defaultDebounce,
		logger:   zap.NewNop(),
		timers:   make(map[string]*time.Timer),
		done:     make(chan struct{}),
		exited:   make(chan struct{}),
	}
	for _, k := range keys {
		w.keys[path.Clean(k)] = struct{}{}
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Keys returns the watched keys.
func (w *Watcher) Keys() []string {
	out := make([]string, 0, len(w.keys))
	for k := range w.keys {
		out = append(out, k)
	}
	return out
}

// Start starts watching. It runs until ctx is cancelled or Stop is called.
// Directories holding the keys are created if missing.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}
	select {
	case <-w.done:
		return errors.New("watcher already stopped")
	default:
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	dirs := make(map[string]struct{})
	for k := range w.keys {
		dirs[filepath.Join(w.root, filepath.FromSlash(path.Dir(k)))] = struct{}{}
	}
	for dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			_ = fsw.Close()
			return err
		}
		if err := fsw.Add(dir); err != nil {
			_ = fsw.Close()
			return err
		}
	}
	w.fsw = fsw
	w.started = true
	w.launched = true
	w.logger.Debug("watcher starting", zap.String("root", w.root), zap.Int("keys", len(w.keys)), zap.Duration("debounce", w.debounce))
	go w.run(ctx, fsw)
	return nil
}

func (w *Watcher) run(ctx context.Context, fsw *fsnotify.Watcher) {
	defer close(w.exited)
	for {
		select {
		case <-ctx.Done():
			w.shutdown()
			return
		case <-w.done:
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			if err != nil {
				w.logger.Debug("watcher error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	key, ok := w.keyFor(ev.Name)
	if !ok {
		return
	}
	if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
		w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("key", key))
		w.debounceChange(key)
	}
}

func (w *Watcher) keyFor(name string) (string, bool) {
	rel, err := filepath.Rel(w.root, filepath.Clean(name))
	if err != nil {
		return "", false
	}
	key := filepath.ToSlash(rel)
	_, ok := w.keys[key]
	return key, ok
}

func (w *Watcher) debounceChange(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return
	}
	if t, ok := w.timers[key]; ok {
		t.Stop()
	}
	w.timers[key] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, key)
		w.mu.Unlock()
		w.logger.Debug("watcher key changed (debounced)", zap.String("key", key))
		if w.onChange != nil {
			w.onChange(key)
		}
	})
}

func (w *Watcher) shutdown() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	for key, t := range w.timers {
		t.Stop()
		delete(w.timers, key)
	}
	_ = w.fsw.Close()
	w.fsw = nil
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}

// Stop stops the watcher, releases resources and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	launched := w.launched
	w.mu.Unlock()
	w.shutdown()
	if launched {
		<-w.exited
	}
}

// ScopeReloader returns an onChange callback that reloads the registry scope backed by
// the changed key. Reload failures are logged; readers keep the previous snapshot.
func ScopeReloader(ctx context.Context, registry *vector.Registry, logger *zap.Logger) func(key string) {
	logger = utils.LoggerOrNop(logger)
	return func(key string) {
		scope, ok := registry.ScopeForKey(key)
		if !ok {
			return
		}
		if err := registry.Reload(ctx, scope); err != nil {
			logger.Warn("scope reload failed", zap.String("scope", scope), zap.Error(err))
			return
		}
		logger.Info("scope reloaded", zap.String("scope", scope), zap.String("key", key))
	}
}
