package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Aman-CERP/amanmcp/internal/gitignore"
	"github.com/Aman-CERP/amanmcp/internal/ignorerules"
)

// FSWatcher watches one directory tree and emits batches of filtered,
// coalesced FileEvents. It prefers an OS-level fsnotify watch and falls
// back to periodic polling when one cannot be installed.
//
// Filtering happens at receipt: only paths with an eligible extension
// survive, paths matching the engine's fixed ignore rules or the root's
// .gitignore are dropped, and a rename arrives as delete(old) plus
// create(new).
type FSWatcher struct {
	opts      Options
	exts      map[string]struct{}
	rules     *ignorerules.Matcher
	ignore    *gitignore.Matcher
	coalescer *Coalescer

	fsw     *fsnotify.Watcher
	backend string

	root    string
	events  chan []FileEvent
	errs    chan error
	stopCh  chan struct{}
	stopped sync.Once
	mu      sync.RWMutex
}

// NewFSWatcher creates a watcher with the given options. The backend
// (fsnotify or polling) is chosen when Watch is called.
func NewFSWatcher(opts Options) *FSWatcher {
	opts = opts.withDefaults()
	return &FSWatcher{
		opts:      opts,
		exts:      extensionSet(opts.Extensions),
		rules:     ignorerules.New(),
		coalescer: NewCoalescer(opts.CoalesceWindow),
		events:    make(chan []FileEvent, opts.BufferSize),
		errs:      make(chan error, 8),
		stopCh:    make(chan struct{}),
	}
}

// Watch installs the watch over root and returns once it is running;
// events flow on Events() until Close. A failure to install the OS
// watch is not fatal: the polling backend takes over.
func (w *FSWatcher) Watch(ctx context.Context, root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("watcher: resolve root: %w", err)
	}
	if info, err := os.Stat(abs); err != nil || !info.IsDir() {
		return fmt.Errorf("watcher: root %s is not a watchable directory", abs)
	}
	w.root = abs
	w.loadIgnores()

	go w.forward(ctx)

	fsw, err := fsnotify.NewWatcher()
	if err == nil {
		err = w.addRecursive(fsw, abs)
	}
	if err != nil {
		if fsw != nil {
			_ = fsw.Close()
		}
		slog.Warn("watcher_fsnotify_unavailable",
			slog.String("root", abs), slog.String("error", err.Error()))
		w.backend = "polling"
		poller := newPollWatcher(w.opts.PollInterval, w.accept, w.coalescer.Add)
		go poller.run(w.watchContext(ctx), abs)
		return nil
	}

	w.fsw = fsw
	w.backend = "fsnotify"
	go w.runFsnotify(ctx)
	return nil
}

// watchContext derives a context that also ends when Close is called.
func (w *FSWatcher) watchContext(ctx context.Context) context.Context {
	derived, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-w.stopCh:
		case <-derived.Done():
		}
		cancel()
	}()
	return derived
}

func (w *FSWatcher) runFsnotify(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.emitError(err)
		}
	}
}

// handle filters and translates one fsnotify event.
func (w *FSWatcher) handle(ev fsnotify.Event) {
	path := ev.Name
	info, statErr := os.Stat(path)
	isDir := statErr == nil && info.IsDir()

	// A freshly created directory needs its own watch before events
	// under it can arrive; ignore rules still apply.
	if isDir && ev.Op&fsnotify.Create != 0 {
		if w.accept(path, true) {
			if err := w.addRecursive(w.fsw, path); err != nil {
				w.emitError(err)
			}
		}
		return
	}
	if isDir {
		return
	}

	// Root .gitignore edits change what the watcher itself filters.
	if filepath.Base(path) == ".gitignore" {
		w.loadIgnores()
		return
	}

	if !w.accept(path, false) {
		return
	}

	var op Operation
	switch {
	case ev.Op&fsnotify.Create != 0:
		op = OpCreate
	case ev.Op&fsnotify.Write != 0:
		op = OpModify
	case ev.Op&fsnotify.Remove != 0:
		op = OpDelete
	case ev.Op&fsnotify.Rename != 0:
		// Rename fires on the old name; the new name arrives as its own
		// Create, so the pair reads as delete(old) + create(new).
		op = OpDelete
	default:
		return // chmod and friends
	}

	w.coalescer.Add(FileEvent{Path: path, Op: op, At: time.Now()})
}

// accept applies the receipt-time filter: fixed ignore rules, gitignore
// patterns, and (for files) the eligible-extension set.
func (w *FSWatcher) accept(path string, isDir bool) bool {
	if w.rules.IsIgnored(w.root, path) {
		return false
	}

	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == "." {
		return !isDir // the root directory itself is never an event
	}
	w.mu.RLock()
	ignored := w.ignore.Match(filepath.ToSlash(rel), isDir)
	w.mu.RUnlock()
	if ignored {
		return false
	}

	if isDir {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	_, ok := w.exts[ext]
	return ok
}

// loadIgnores rebuilds the gitignore matcher from the configured extra
// patterns plus the root's .gitignore, if present.
func (w *FSWatcher) loadIgnores() {
	m := gitignore.New()
	for _, p := range w.opts.ExtraIgnores {
		m.AddPattern(p)
	}
	m.AddPattern(".git/")
	m.AddPattern(".amanmcp/")

	path := filepath.Join(w.root, ".gitignore")
	if err := m.AddFromFile(path, ""); err != nil && !os.IsNotExist(err) {
		slog.Warn("watcher_gitignore_unreadable",
			slog.String("path", path), slog.String("error", err.Error()))
	}

	w.mu.Lock()
	w.ignore = m
	w.mu.Unlock()
}

// addRecursive watches dir and every non-ignored directory below it.
func (w *FSWatcher) addRecursive(fsw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && !w.accept(path, true) {
			return filepath.SkipDir
		}
		return fsw.Add(path)
	})
}

// forward moves coalesced batches to the public Events channel.
func (w *FSWatcher) forward(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case batch, ok := <-w.coalescer.Output():
			if !ok {
				return
			}
			select {
			case w.events <- batch:
			default:
				slog.Warn("watcher_event_buffer_full", slog.Int("batch_size", len(batch)))
			}
		}
	}
}

func (w *FSWatcher) emitError(err error) {
	select {
	case w.errs <- err:
	default:
	}
}

// Events returns the channel of coalesced event batches.
func (w *FSWatcher) Events() <-chan []FileEvent { return w.events }

// Errors returns the channel of non-fatal watcher errors.
func (w *FSWatcher) Errors() <-chan error { return w.errs }

// Backend reports which backend Watch selected: "fsnotify" or
// "polling". Empty before Watch.
func (w *FSWatcher) Backend() string { return w.backend }

// Root returns the watched root directory. Empty before Watch.
func (w *FSWatcher) Root() string { return w.root }

// Close tears the watch down: timers stopped, the OS watch released,
// channels closed. Safe to call more than once.
func (w *FSWatcher) Close() error {
	var err error
	w.stopped.Do(func() {
		close(w.stopCh)
		w.coalescer.Stop()
		if w.fsw != nil {
			err = w.fsw.Close()
		}
		close(w.events)
		close(w.errs)
	})
	return err
}
