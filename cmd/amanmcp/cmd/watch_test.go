package cmd

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchCmd_HasRootAndProjectFlags(t *testing.T) {
	cmd := NewRootCmd()
	watchCmd, _, err := cmd.Find([]string{"watch"})
	require.NoError(t, err)

	assert.NotNil(t, watchCmd.Flags().Lookup("root"))
	assert.NotNil(t, watchCmd.Flags().Lookup("project"))
}

func TestWatchCmd_StopsOnContextCancellation(t *testing.T) {
	root := setupProject(t, map[string]string{
		"foo.go": "package main\n\nfunc Foo() {}\n",
	})

	cmd := NewRootCmd()
	cmd.SetArgs([]string{"watch", "--root", root})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	// Give the watcher a moment to start before the deadline fires.
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch command did not stop after context cancellation")
	}
}
