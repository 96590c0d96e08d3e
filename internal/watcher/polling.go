package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// pollState is one file's fingerprint from the previous scan.
type pollState struct {
	modTime time.Time
	size    int64
}

// pollWatcher is the fallback backend for filesystems where an OS-level
// watch cannot be installed: it rescans the root on a fixed interval and
// diffs modification time and size against the previous scan. Filtering
// (extension eligibility, ignore rules) is the caller's job; the poller
// only walks paths the accept callback approves.
type pollWatcher struct {
	interval time.Duration
	accept   func(path string, isDir bool) bool
	emit     func(FileEvent)
	known    map[string]pollState
}

func newPollWatcher(interval time.Duration, accept func(string, bool) bool, emit func(FileEvent)) *pollWatcher {
	return &pollWatcher{
		interval: interval,
		accept:   accept,
		emit:     emit,
		known:    make(map[string]pollState),
	}
}

// run scans root until ctx is canceled. The first scan only records
// state; events are emitted from the second scan onward, so a watcher
// started over an existing tree does not replay every file as created.
func (p *pollWatcher) run(ctx context.Context, root string) {
	p.known = p.scan(root)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.diff(p.scan(root))
		}
	}
}

func (p *pollWatcher) scan(root string) map[string]pollState {
	current := make(map[string]pollState, len(p.known))
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != root && !p.accept(path, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if !p.accept(path, false) {
			return nil
		}
		info, err := os.Stat(path)
		if err != nil {
			return nil
		}
		current[path] = pollState{modTime: info.ModTime(), size: info.Size()}
		return nil
	})
	return current
}

func (p *pollWatcher) diff(current map[string]pollState) {
	now := time.Now()

	for path, state := range current {
		prev, ok := p.known[path]
		switch {
		case !ok:
			p.emit(FileEvent{Path: path, Op: OpCreate, At: now})
		case !state.modTime.Equal(prev.modTime) || state.size != prev.size:
			p.emit(FileEvent{Path: path, Op: OpModify, At: now})
		}
	}
	for path := range p.known {
		if _, ok := current[path]; !ok {
			p.emit(FileEvent{Path: path, Op: OpDelete, At: now})
		}
	}

	p.known = current
}
