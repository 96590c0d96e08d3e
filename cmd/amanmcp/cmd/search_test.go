package cmd

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runRootCmd(t *testing.T, args ...string) string {
	t.Helper()
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
	return buf.String()
}

func TestSearchCmd_FindsIndexedChunk(t *testing.T) {
	root := setupProject(t, map[string]string{
		"auth.go":  "package main\n\nfunc AuthenticateUser(token string) bool {\n\treturn token != \"\"\n}\n",
		"other.go": "package main\n\nfunc Unrelated() {}\n",
	})

	runRootCmd(t, "index", "--root", root)

	out := runRootCmd(t, "search", "--root", root, "--json", "--k", "5", "authenticate user")

	var hits []searchHit
	require.NoError(t, json.Unmarshal([]byte(out), &hits))
	require.NotEmpty(t, hits)
	assert.Contains(t, hits[0].Path, "auth.go")
}

func TestSearchCmd_KZeroReturnsEmptyResult(t *testing.T) {
	root := setupProject(t, map[string]string{
		"foo.go": "package main\n\nfunc Foo() {}\n",
	})
	runRootCmd(t, "index", "--root", root)

	out := runRootCmd(t, "search", "--root", root, "--json", "--k", "0", "foo")

	var hits []searchHit
	require.NoError(t, json.Unmarshal([]byte(out), &hits))
	assert.Empty(t, hits)
}

func TestSearchCmd_HasExpandFlag(t *testing.T) {
	cmd := NewRootCmd()
	searchCmd, _, err := cmd.Find([]string{"search"})
	require.NoError(t, err)

	flag := searchCmd.Flags().Lookup("expand")
	require.NotNil(t, flag)
	assert.Equal(t, "false", flag.DefValue)
}
