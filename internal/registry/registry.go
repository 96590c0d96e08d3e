// Package registry is the engine's only process-wide mutable state: a
// per-project singleton map of *indexer.Indexer sessions, created
// lazily on first access and torn down explicitly on shutdown. Per-project mutation still goes through the Indexer's own
// lock; this package's lock guards only the map itself.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/Aman-CERP/amanmcp/internal/indexer"
)

// Factory builds a fresh Indexer session for a project the registry
// hasn't seen yet. Implementations typically open a per-project
// ChunkStore/VectorIndex pair and share one process-wide EmbeddingCache
// and embedclient.Client across all projects.
type Factory func(ctx context.Context, project string) (*indexer.Indexer, error)

// Registry holds at most one live Indexer per project name. A single
// lock guards the map; Get holds it across the factory call for an
// unseen project, so lookups of other projects wait for that call too.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*indexer.Indexer
	factory  Factory
}

// New creates an empty Registry. factory is invoked at most once per
// distinct project name, the first time that project is requested.
func New(factory Factory) *Registry {
	return &Registry{
		sessions: make(map[string]*indexer.Indexer),
		factory:  factory,
	}
}

// Get returns the project's Indexer, creating it via the factory on
// first access. Concurrent Get calls for the same unseen project block
// on the top-level lock until the first caller's factory invocation
// completes; that caller's Indexer is then shared by all.
func (r *Registry) Get(ctx context.Context, project string) (*indexer.Indexer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ix, ok := r.sessions[project]; ok {
		return ix, nil
	}

	ix, err := r.factory(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("registry: create session for %q: %w", project, err)
	}
	r.sessions[project] = ix
	return ix, nil
}

// Close tears down one project's session, closing its Indexer (and
// thereby its ChunkStore) and removing it from the registry. Closing an
// unknown project is a no-op.
func (r *Registry) Close(project string) error {
	r.mu.Lock()
	ix, ok := r.sessions[project]
	delete(r.sessions, project)
	r.mu.Unlock()

	if !ok {
		return nil
	}
	return ix.Close()
}

// CloseAll tears down every registered session, collecting (not
// short-circuiting on) the first error per project.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	projects := make([]string, 0, len(r.sessions))
	for p := range r.sessions {
		projects = append(projects, p)
	}
	r.mu.Unlock()

	var firstErr error
	for _, p := range projects {
		if err := r.Close(p); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
