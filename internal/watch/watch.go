// Package watch re-runs a callback when any of a set of input files changes.
// It watches the parent directories so editors that save by rename are seen.
package watch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is how long a file must stay quiet before the callback runs.
const DefaultDebounce = 500 * time.Millisecond

// OnChange is called with the changed paths once their events have settled.
type OnChange func(ctx context.Context, paths []string)

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the settle window.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounceDur = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// Stats counts watcher activity.
type Stats struct {
	Events   int
	Triggers int
	Errors   int
}

// Watcher watches a fixed set of files.
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	files       map[string]struct{}
	onChange    OnChange
	logger      *zap.Logger
	debounceMap map[string]time.Time
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
	closed      bool
	stats       Stats
}

// New creates a Watcher for files. Nothing is watched until Start.
func New(files []string, onChange OnChange, opts ...Option) (*Watcher, error) {
	if len(files) == 0 {
		return nil, errors.New("watch: no files")
	}
	if onChange == nil {
		return nil, errors.New("watch: nil callback")
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}
	w := &Watcher{
		watcher:     fw,
		files:       make(map[string]struct{}, len(files)),
		onChange:    onChange,
		logger:      zap.NewNop(),
		debounceMap: make(map[string]time.Time),
		debounceDur: DefaultDebounce,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
	for _, o := range opts {
		o(w)
	}
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			fw.Close()
			return nil, fmt.Errorf("watch: %s: %w", f, err)
		}
		w.files[abs] = struct{}{}
	}
	return w, nil
}

// Start adds the watched directories and begins the event loop. It does not
// block.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	if w.closed {
		w.mu.Unlock()
		return errors.New("watch: watcher stopped")
	}
	w.running = true
	w.mu.Unlock()

	dirs := make(map[string]struct{})
	for f := range w.files {
		dirs[filepath.Dir(f)] = struct{}{}
	}
	for dir := range dirs {
		if err := w.watcher.Add(dir); err != nil {
			w.mu.Lock()
			w.running = false
			w.mu.Unlock()
			w.closeWatcher()
			return fmt.Errorf("watch: add %s: %w", dir, err)
		}
		w.logger.Debug("watching directory", zap.String("dir", dir))
	}

	go w.run(ctx)
	return nil
}

// Stop ends the event loop and releases the underlying watcher. It also
// releases a watcher that was never started.
func (w *Watcher) Stop() {
	w.mu.Lock()
	running := w.running
	w.running = false
	w.mu.Unlock()

	if running {
		close(w.stopCh)
		<-w.doneCh
	}
	w.closeWatcher()
}

func (w *Watcher) closeWatcher() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.mu.Unlock()

	if err := w.watcher.Close(); err != nil {
		w.logger.Warn("closing watcher", zap.Error(err))
	}
}

// Stats returns a copy of the activity counters.
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	tick := w.debounceDur / 5
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
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
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()
		case <-ticker.C:
			w.processSettled(ctx)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return
	}
	name, err := filepath.Abs(event.Name)
	if err != nil {
		return
	}
	if _, ok := w.files[name]; !ok {
		return
	}
	w.logger.Debug("file event", zap.String("path", name), zap.Stringer("op", event.Op))

	w.mu.Lock()
	w.stats.Events++
	w.debounceMap[name] = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) processSettled(ctx context.Context) {
	w.mu.Lock()
	now := time.Now()
	var settled []string
	for path, at := range w.debounceMap {
		if now.Sub(at) >= w.debounceDur {
			settled = append(settled, path)
			delete(w.debounceMap, path)
		}
	}
	if len(settled) > 0 {
		w.stats.Triggers++
	}
	w.mu.Unlock()

	if len(settled) == 0 {
		return
	}
	sort.Strings(settled)
	w.onChange(ctx, settled)
}
