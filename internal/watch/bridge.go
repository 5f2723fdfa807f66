// Package watch detects edits to the backing file made by other processes.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	// DefaultQuietWindow is how long after the store's own save a
	// file-change notification is classified as self-caused. It covers the
	// save's I/O latency plus the watcher debounce, with margin.
	DefaultQuietWindow = 2 * time.Second

	debounceDelay = 200 * time.Millisecond
)

// Bridge watches the backing file and fires onExternal for changes that did
// not originate from the store's own save calls. Classification is a
// time-window heuristic: a notification arriving within the quiet window of
// the last save is ignored as self-caused. A save slower than the window
// causes a redundant broadcast; an external write landing inside the window
// goes unnoticed until the next one. Both are accepted trade-offs.
type Bridge struct {
	path       string
	quiet      time.Duration
	lastSave   func() time.Time
	onExternal func()
	logger     *slog.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	timer   *time.Timer
}

// NewBridge creates a bridge for the given backing file. lastSave reports
// the store's most recent save time; onExternal runs on every change
// classified as external.
func NewBridge(path string, quiet time.Duration, lastSave func() time.Time, onExternal func(), logger *slog.Logger) (*Bridge, error) {
	if path == "" {
		return nil, fmt.Errorf("watch: file path is required")
	}
	if lastSave == nil || onExternal == nil {
		return nil, fmt.Errorf("watch: lastSave and onExternal are required")
	}
	if quiet <= 0 {
		quiet = DefaultQuietWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	return &Bridge{
		path:       abs,
		quiet:      quiet,
		lastSave:   lastSave,
		onExternal: onExternal,
		logger:     logger.With("component", "watch"),
	}, nil
}

// Start begins watching. The parent directory is watched rather than the
// file itself: rename-style saves replace the inode, which would silently
// detach a direct file watch.
func (b *Bridge) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(b.path)); err != nil {
		_ = watcher.Close()
		return err
	}
	b.mu.Lock()
	b.watcher = watcher
	b.mu.Unlock()

	go b.watchLoop(ctx, watcher)
	return nil
}

// Close stops watching.
func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	if b.watcher != nil {
		err := b.watcher.Close()
		b.watcher = nil
		return err
	}
	return nil
}

func (b *Bridge) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !b.matches(evt.Name) {
				continue
			}
			if evt.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) != 0 {
				b.schedule()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			b.logger.Warn("watch error", "error", err)
		}
	}
}

func (b *Bridge) matches(name string) bool {
	abs, err := filepath.Abs(name)
	if err != nil {
		return false
	}
	return abs == b.path
}

// schedule coalesces bursts of notifications into one evaluation.
func (b *Bridge) schedule() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(debounceDelay, b.evaluate)
}

func (b *Bridge) evaluate() {
	elapsed := time.Since(b.lastSave())
	if elapsed < b.quiet {
		b.logger.Debug("ignoring self-caused file change", "elapsed", elapsed)
		return
	}
	b.logger.Debug("external file change", "elapsed", elapsed)
	b.onExternal()
}
