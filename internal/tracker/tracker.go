// Package tracker implements content-hash based change detection: given a
// project root, it diffs the current on-disk state against an in-memory
// snapshot (itself backed by a per-project JSON file) to produce the set
// of added, modified, and removed files driving a reindex cycle.
package tracker

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"

	"github.com/Aman-CERP/amanmcp/internal/contenthash"
	"github.com/Aman-CERP/amanmcp/internal/ignorerules"
)

// FileChanges is the triple of disjoint path sets produced by a diff.
type FileChanges struct {
	Added    map[string]struct{}
	Modified map[string]struct{}
	Removed  map[string]struct{}
}

// HasChanges reports whether any of the three sets is non-empty.
func (c FileChanges) HasChanges() bool {
	return len(c.Added) > 0 || len(c.Modified) > 0 || len(c.Removed) > 0
}

func newChanges() FileChanges {
	return FileChanges{
		Added:    make(map[string]struct{}),
		Modified: make(map[string]struct{}),
		Removed:  make(map[string]struct{}),
	}
}

// projectCache holds one project's in-memory snapshot behind its own
// lock, so mutating one project never blocks reads of another.
type projectCache struct {
	mu   sync.RWMutex
	hash map[string]string // path -> content hash
}

// Tracker is the ChangeTracker component (C3). It owns, per project, an
// in-memory FileHashSnapshot loaded lazily from the state directory.
type Tracker struct {
	stateDir    string
	extensions  map[string]struct{}
	ignore      *ignorerules.Matcher
	parallelism int

	topMu    sync.Mutex // guards only insertion of a new project
	projects map[string]*projectCache
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithParallelism overrides the hashing worker-pool size.
func WithParallelism(n int) Option {
	return func(t *Tracker) { t.parallelism = n }
}

// WithExtensions overrides the eligible source-extension set (each entry
// without a leading dot, e.g. "go", "py").
func WithExtensions(exts []string) Option {
	return func(t *Tracker) {
		t.extensions = make(map[string]struct{}, len(exts))
		for _, e := range exts {
			t.extensions[strings.ToLower(e)] = struct{}{}
		}
	}
}

// New creates a Tracker whose persisted snapshots live under stateDir.
func New(stateDir string, opts ...Option) *Tracker {
	t := &Tracker{
		stateDir:    stateDir,
		ignore:      ignorerules.New(),
		parallelism: contenthash.DefaultParallelism,
		projects:    make(map[string]*projectCache),
	}
	WithExtensions([]string{"go", "ts", "tsx", "js", "jsx", "py", "c", "h", "md"})(t)
	for _, o := range opts {
		o(t)
	}
	return t
}

func (t *Tracker) cacheFor(project string) *projectCache {
	t.topMu.Lock()
	defer t.topMu.Unlock()

	pc, ok := t.projects[project]
	if !ok {
		pc = &projectCache{hash: make(map[string]string)}
		t.projects[project] = pc
	}
	return pc
}

// GetChanges computes the FileChanges for root/project. When changedFiles
// is empty, it runs in full mode: the entire tree is enumerated and
// hashed. Otherwise it runs in incremental mode over exactly that subset
// (the watcher's changed-paths list).
func (t *Tracker) GetChanges(root, project string, changedFiles []string) (FileChanges, error) {
	pc := t.cacheFor(project)
	pc.mu.Lock()
	defer pc.mu.Unlock()

	if len(changedFiles) == 0 {
		return t.fullDiff(root, pc)
	}
	return t.incrementalDiff(root, pc, changedFiles)
}

func (t *Tracker) fullDiff(root string, pc *projectCache) (FileChanges, error) {
	paths, err := t.enumerate(root)
	if err != nil {
		return FileChanges{}, err
	}

	current := contenthash.HashAll(context.Background(), paths, t.parallelism)
	changes := diff(pc.hash, current)

	if changes.HasChanges() {
		applyDiff(pc.hash, changes, current)
	} else {
		// Reconcile to tolerate external tampering with the state file even
		// when nothing appears to have changed.
		pc.hash = current
	}

	return changes, nil
}

func (t *Tracker) incrementalDiff(root string, pc *projectCache, changedFiles []string) (FileChanges, error) {
	current := make(map[string]string, len(pc.hash))
	changedSet := make(map[string]struct{}, len(changedFiles))
	for _, p := range changedFiles {
		changedSet[p] = struct{}{}
	}

	for p, h := range pc.hash {
		if _, changed := changedSet[p]; changed {
			continue
		}
		if _, err := os.Stat(p); err != nil {
			continue // file no longer exists
		}
		current[p] = h
	}

	var toHash []string
	for p := range changedSet {
		if _, err := os.Stat(p); err == nil {
			toHash = append(toHash, p)
		}
	}
	hashed := contenthash.HashAll(context.Background(), toHash, t.parallelism)
	for p, h := range hashed {
		current[p] = h
	}

	changes := diff(pc.hash, current)
	if changes.HasChanges() {
		applyDiff(pc.hash, changes, current)
	}
	return changes, nil
}

func diff(prev, current map[string]string) FileChanges {
	changes := newChanges()

	for p := range current {
		if _, ok := prev[p]; !ok {
			changes.Added[p] = struct{}{}
		}
	}
	for p := range prev {
		if _, ok := current[p]; !ok {
			changes.Removed[p] = struct{}{}
		}
	}
	for p, h := range current {
		if prevHash, ok := prev[p]; ok && prevHash != h {
			changes.Modified[p] = struct{}{}
		}
	}
	return changes
}

func applyDiff(cache map[string]string, changes FileChanges, current map[string]string) {
	for p := range changes.Removed {
		delete(cache, p)
	}
	for p := range changes.Added {
		cache[p] = current[p]
	}
	for p := range changes.Modified {
		cache[p] = current[p]
	}
}

// enumerate walks root, applying IgnoreMatcher and the eligible-extension
// filter, returning absolute paths.
func (t *Tracker) enumerate(root string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // ReadFailure: skip, never fatal
		}
		if d.IsDir() {
			if t.ignore.IsIgnored(root, path) {
				return filepath.SkipDir
			}
			return nil
		}
		if t.ignore.IsIgnored(root, path) {
			return nil
		}
		ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
		if _, ok := t.extensions[ext]; !ok {
			return nil
		}
		out = append(out, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("tracker: enumerate %s: %w", root, err)
	}
	return out, nil
}

// SaveState serializes the in-memory snapshot for project to its state
// file.
func (t *Tracker) SaveState(root, project string) error {
	pc := t.cacheFor(project)
	pc.mu.RLock()
	snapshot := make(map[string]string, len(pc.hash))
	for k, v := range pc.hash {
		snapshot[k] = v
	}
	pc.mu.RUnlock()

	if err := os.MkdirAll(t.stateDir, 0o755); err != nil {
		return fmt.Errorf("tracker: create state dir: %w", err)
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("tracker: marshal snapshot: %w", err)
	}

	path := StateFilePath(t.stateDir, root, project)

	// Advisory lock guards the state file against a concurrent writer in
	// another process (e.g. two watcher daemons sharing a directory),
	// the same flock pattern chunkstore uses for its database file.
	lk := flock.New(path + ".lock")
	if err := lk.Lock(); err != nil {
		return fmt.Errorf("tracker: lock state file: %w", err)
	}
	defer func() { _ = lk.Unlock() }()

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("tracker: write state file: %w", err)
	}
	return nil
}

// LoadState reads a previously persisted snapshot for project into the
// in-memory cache. A missing file is not an error: the cache simply
// starts empty.
func (t *Tracker) LoadState(root, project string) error {
	path := StateFilePath(t.stateDir, root, project)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("tracker: read state file: %w", err)
	}

	var snapshot map[string]string
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return fmt.Errorf("tracker: unmarshal state file: %w", err)
	}

	pc := t.cacheFor(project)
	pc.mu.Lock()
	pc.hash = snapshot
	pc.mu.Unlock()
	return nil
}

// ClearState wipes the entire state directory.
func (t *Tracker) ClearState() error {
	if err := os.RemoveAll(t.stateDir); err != nil {
		return fmt.Errorf("tracker: clear state dir: %w", err)
	}
	return nil
}

// ClearCache drops the in-memory snapshot for one project, or for every
// project when project == "".
func (t *Tracker) ClearCache(project string) {
	t.topMu.Lock()
	defer t.topMu.Unlock()

	if project == "" {
		t.projects = make(map[string]*projectCache)
		return
	}
	delete(t.projects, project)
}

// StateFilePath computes the per-project state file path:
// <state-dir>/state[_<project>]_<base64(sha256(lowercase(directory[|project])))>.json
func StateFilePath(stateDir, directory, project string) string {
	key := strings.ToLower(directory)
	if project != "" {
		key = strings.ToLower(directory) + "|" + strings.ToLower(project)
	}
	sum := sha256.Sum256([]byte(key))
	enc := base64.StdEncoding.EncodeToString(sum[:])
	enc = strings.NewReplacer("/", "_", "+", "-", "=", "_").Replace(enc)

	name := "state"
	if project != "" {
		name += "_" + project
	}
	name += "_" + enc + ".json"
	return filepath.Join(stateDir, name)
}
