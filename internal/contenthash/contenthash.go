// Package contenthash streams files through a cryptographic digest to
// produce the content hashes the change-tracking layer diffs against.
package contenthash

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"
)

// DefaultParallelism is the worker-pool size used by HashAll when the
// caller does not specify one.
const DefaultParallelism = 16

// HashBytes digests data directly, for callers hashing in-memory content
// (e.g. a chunk's text for the embedding cache key) rather than a file on
// disk.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return base64.StdEncoding.EncodeToString(sum[:])
}

// Hash streams path through SHA-256 and returns its base64 encoding, with
// no prefix or suffix.
func Hash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("contenthash: open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("contenthash: read %s: %w", path, err)
	}
	return base64.StdEncoding.EncodeToString(h.Sum(nil)), nil
}

// HashAll hashes every path under a bounded worker pool. Transient
// errors reading a single file are logged and that path is omitted from
// the result rather than failing the whole batch. parallelism <= 0
// selects DefaultParallelism.
func HashAll(ctx context.Context, paths []string, parallelism int) map[string]string {
	if parallelism <= 0 {
		parallelism = DefaultParallelism
	}

	results := make(map[string]string, len(paths))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)

	for _, p := range paths {
		path := p
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			sum, err := Hash(path)
			if err != nil {
				slog.Warn("contenthash: skipping unreadable file", slog.String("path", path), slog.String("error", err.Error()))
				return nil
			}
			mu.Lock()
			results[path] = sum
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return results
}
