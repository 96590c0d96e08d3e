package watcher

import (
	"log/slog"
	"sync"
	"time"
)

// Coalescer merges rapid events for the same path so a burst of writes
// becomes one event per file. Merge rules, keyed on the first operation
// seen for a path within the window:
//
//	CREATE then MODIFY -> CREATE (the file is still new)
//	CREATE then DELETE -> dropped (the file never really existed)
//	MODIFY then DELETE -> DELETE
//	DELETE then CREATE -> MODIFY (the file was replaced)
type Coalescer struct {
	mu      sync.Mutex
	window  time.Duration
	pending map[string]*mergedEvent
	out     chan []FileEvent
	timer   *time.Timer
	stopped bool
}

type mergedEvent struct {
	event   FileEvent
	firstOp Operation
}

// NewCoalescer creates a Coalescer that emits a batch once no event has
// arrived for window.
func NewCoalescer(window time.Duration) *Coalescer {
	return &Coalescer{
		window:  window,
		pending: make(map[string]*mergedEvent),
		out:     make(chan []FileEvent, 16),
	}
}

// Add merges event into the pending set and (re)arms the flush timer.
func (c *Coalescer) Add(event FileEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}

	if existing, ok := c.pending[event.Path]; ok {
		if merged, keep := merge(existing.firstOp, event); keep {
			existing.event = merged
		} else {
			delete(c.pending, event.Path)
		}
	} else {
		c.pending[event.Path] = &mergedEvent{event: event, firstOp: event.Op}
	}

	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.window, c.flush)
}

// merge applies the coalescing table. keep=false means the pair
// canceled out.
func merge(first Operation, next FileEvent) (FileEvent, bool) {
	switch {
	case first == OpCreate && next.Op == OpModify:
		next.Op = OpCreate
		return next, true
	case first == OpCreate && next.Op == OpDelete:
		return FileEvent{}, false
	case first == OpDelete && next.Op == OpCreate:
		next.Op = OpModify
		return next, true
	default:
		return next, true
	}
}

func (c *Coalescer) flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped || len(c.pending) == 0 {
		return
	}

	batch := make([]FileEvent, 0, len(c.pending))
	for _, m := range c.pending {
		batch = append(batch, m.event)
	}
	c.pending = make(map[string]*mergedEvent)

	select {
	case c.out <- batch:
	default:
		slog.Warn("watcher_coalescer_batch_dropped", slog.Int("batch_size", len(batch)))
	}
}

// Output returns the channel of merged event batches.
func (c *Coalescer) Output() <-chan []FileEvent {
	return c.out
}

// Stop halts the flush timer and closes Output. Safe to call more than
// once.
func (c *Coalescer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.stopped = true
	if c.timer != nil {
		c.timer.Stop()
	}
	close(c.out)
}
