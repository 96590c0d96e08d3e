package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectBatch(t *testing.T, c *Coalescer) []FileEvent {
	t.Helper()
	select {
	case batch := <-c.Output():
		return batch
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a coalesced batch")
		return nil
	}
}

func TestCoalescer_CreateThenModifyIsCreate(t *testing.T) {
	c := NewCoalescer(20 * time.Millisecond)
	defer c.Stop()

	c.Add(FileEvent{Path: "/p/a.go", Op: OpCreate, At: time.Now()})
	c.Add(FileEvent{Path: "/p/a.go", Op: OpModify, At: time.Now()})

	batch := collectBatch(t, c)
	require.Len(t, batch, 1)
	assert.Equal(t, OpCreate, batch[0].Op)
}

func TestCoalescer_CreateThenDeleteCancelsOut(t *testing.T) {
	c := NewCoalescer(20 * time.Millisecond)
	defer c.Stop()

	c.Add(FileEvent{Path: "/p/a.go", Op: OpCreate, At: time.Now()})
	c.Add(FileEvent{Path: "/p/a.go", Op: OpDelete, At: time.Now()})
	c.Add(FileEvent{Path: "/p/b.go", Op: OpModify, At: time.Now()})

	batch := collectBatch(t, c)
	require.Len(t, batch, 1)
	assert.Equal(t, "/p/b.go", batch[0].Path)
}

func TestCoalescer_ModifyThenDeleteIsDelete(t *testing.T) {
	c := NewCoalescer(20 * time.Millisecond)
	defer c.Stop()

	c.Add(FileEvent{Path: "/p/a.go", Op: OpModify, At: time.Now()})
	c.Add(FileEvent{Path: "/p/a.go", Op: OpDelete, At: time.Now()})

	batch := collectBatch(t, c)
	require.Len(t, batch, 1)
	assert.Equal(t, OpDelete, batch[0].Op)
}

func TestCoalescer_DeleteThenCreateIsModify(t *testing.T) {
	c := NewCoalescer(20 * time.Millisecond)
	defer c.Stop()

	c.Add(FileEvent{Path: "/p/a.go", Op: OpDelete, At: time.Now()})
	c.Add(FileEvent{Path: "/p/a.go", Op: OpCreate, At: time.Now()})

	batch := collectBatch(t, c)
	require.Len(t, batch, 1)
	assert.Equal(t, OpModify, batch[0].Op, "a replaced file reads as modified")
}

func TestCoalescer_DistinctPathsStaySeparate(t *testing.T) {
	c := NewCoalescer(20 * time.Millisecond)
	defer c.Stop()

	c.Add(FileEvent{Path: "/p/a.go", Op: OpModify, At: time.Now()})
	c.Add(FileEvent{Path: "/p/b.go", Op: OpModify, At: time.Now()})

	batch := collectBatch(t, c)
	assert.Len(t, batch, 2)
}

func TestCoalescer_AddAfterStopIsNoOp(t *testing.T) {
	c := NewCoalescer(20 * time.Millisecond)
	c.Stop()
	c.Stop() // idempotent

	c.Add(FileEvent{Path: "/p/a.go", Op: OpModify, At: time.Now()})

	select {
	case _, ok := <-c.Output():
		assert.False(t, ok, "output is closed after Stop")
	case <-time.After(100 * time.Millisecond):
		t.Fatal("closed output should be immediately readable")
	}
}
