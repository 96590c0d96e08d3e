package cmd

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const testDimension = 8

// fakeEmbedFloats derives a deterministic unit-ish vector for text: one
// fixed marker word per basis dimension, plus a length-derived noise
// dimension, so semantically similar test fixtures land closer together
// under cosine similarity without needing a real embedding model.
var testMarkerWords = []string{"foo", "bar", "auth", "login", "service", "config", "security"}

func fakeEmbedFloats(text string) []float32 {
	vec := make([]float32, testDimension)
	lower := strings.ToLower(text)
	for i, word := range testMarkerWords {
		if strings.Contains(lower, word) {
			vec[i] += 1
		}
	}
	vec[testDimension-1] = float32(len(text)%97) / 97.0
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm > 0 {
		norm = float32(math.Sqrt(float64(norm)))
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec
}

func encodeFloats(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

type fakeEmbedRequest struct {
	Model                  string   `json:"model"`
	Input                  []string `json:"input"`
	Kind                   string   `json:"kind"`
	QueryInstructionPrefix string   `json:"query_instruction_prefix,omitempty"`
}

type fakeEmbedResponse struct {
	Embeddings [][]byte `json:"embeddings"`
	Dimension  int      `json:"dimension"`
	Precision  string   `json:"precision"`
}

// newFakeEmbedServer stands in for the external embedding capability:
// it accepts the batcher's request shape and returns deterministic
// fixed-dimension vectors.
func newFakeEmbedServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req fakeEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		embeddings := make([][]byte, len(req.Input))
		for i, text := range req.Input {
			embeddings[i] = encodeFloats(fakeEmbedFloats(text))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(fakeEmbedResponse{
			Embeddings: embeddings,
			Dimension:  testDimension,
			Precision:  "single",
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

// setupProject creates an isolated HOME (so the per-project app-data
// dir doesn't collide across tests), a project directory with the given
// files, and a .amanmcp.yaml pointing at the fake embedding server.
// Returns the project root.
func setupProject(t *testing.T, files map[string]string) string {
	t.Helper()

	home := t.TempDir()
	t.Setenv("HOME", home)

	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	srv := newFakeEmbedServer(t)
	yamlContent := "embedding:\n  endpoint: \"" + srv.URL + "\"\n  model: test-model\n  dimension: " +
		strconv.Itoa(testDimension) + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, ".amanmcp.yaml"), []byte(yamlContent), 0o644))

	return root
}
