package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRootCmd_RegistersAllSubcommands(t *testing.T) {
	root := NewRootCmd()

	for _, name := range []string{"index", "search", "watch", "stats", "clear", "cache", "version"} {
		_, _, err := root.Find([]string{name})
		assert.NoError(t, err, "expected subcommand %q to be registered", name)
	}
}

func TestNewRootCmd_ProjectScopedCommandsHaveRootAndProjectFlags(t *testing.T) {
	root := NewRootCmd()

	for _, name := range []string{"index", "search", "watch", "stats", "clear"} {
		sub, _, err := root.Find([]string{name})
		require.NoError(t, err)

		assert.NotNil(t, sub.Flags().Lookup("root"), "%s should have --root", name)
		assert.NotNil(t, sub.Flags().Lookup("project"), "%s should have --project", name)
	}
}
