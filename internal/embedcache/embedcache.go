// Package embedcache implements the engine's EmbeddingCache: a store
// shared across every project, keyed by (content-hash, embedding-kind,
// model, project), surviving across runs and across
// force-reindex cycles. Clearing a project's VectorIndex must never
// touch this cache: Cache.ClearProject only drops that project's rows,
// and nothing here is invoked by a plain index clear.
package embedcache

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "modernc.org/sqlite"
)

// Kind distinguishes a document embedding (stored chunk text) from a
// query embedding (ephemeral, cached mainly to make repeated identical
// searches cheap).
type Kind string

const (
	KindDocument Kind = "document"
	KindQuery    Kind = "query"
)

// Key identifies one cached embedding.
type Key struct {
	ContentHash string
	Kind        Kind
	Model       string
	Project     string // "" means project-agnostic (shared cache entry)
}

func (k Key) cacheKey() string {
	return k.ContentHash + "\x00" + string(k.Kind) + "\x00" + k.Model + "\x00" + k.Project
}

// hotEntry is what the in-process LRU stores: the embedding blob alone.
type hotEntry struct {
	bytes []byte
}

// Cache is the persisted relational EmbeddingCache, fronted by an
// in-process LRU of hot rows (golang-lru) to avoid a SQLite round trip
// for repeated lookups within one process lifetime.
type Cache struct {
	mu     sync.Mutex
	db     *sql.DB
	hot    *lru.Cache[string, hotEntry]
	closed bool
}

// DefaultHotCacheSize bounds the in-process LRU row count.
const DefaultHotCacheSize = 2000

// Open creates or opens the shared embedding_cache.db at path.
func Open(path string) (*Cache, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("embedcache: create dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("embedcache: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("embedcache: pragma %q: %w", p, err)
		}
	}

	hot, _ := lru.New[string, hotEntry](DefaultHotCacheSize)
	c := &Cache{db: db, hot: hot}
	if err := c.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("embedcache: schema init: %w", err)
	}
	return c, nil
}

func (c *Cache) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS embeddings (
		content_hash TEXT NOT NULL,
		kind TEXT NOT NULL,
		model TEXT NOT NULL,
		project TEXT NOT NULL DEFAULT '',
		embedding BLOB NOT NULL,
		last_accessed INTEGER NOT NULL,
		access_count INTEGER NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (content_hash, kind, model, project)
	);
	CREATE INDEX IF NOT EXISTS idx_embeddings_last_accessed ON embeddings(last_accessed);
	`
	_, err := c.db.Exec(schema)
	return err
}

// Get looks up an embedding, bumping last_accessed/access_count on a
// hit. Returns ok=false on a miss.
func (c *Cache) Get(ctx context.Context, key Key) (bytes []byte, ok bool, err error) {
	ck := key.cacheKey()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, false, fmt.Errorf("embedcache: cache is closed")
	}

	if e, hit := c.hot.Get(ck); hit {
		go c.touch(key)
		return e.bytes, true, nil
	}

	var blob []byte
	err = c.db.QueryRowContext(ctx, `
		SELECT embedding FROM embeddings
		WHERE content_hash = ? AND kind = ? AND model = ? AND project = ?`,
		key.ContentHash, string(key.Kind), key.Model, key.Project,
	).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("embedcache: get: %w", err)
	}

	c.hot.Add(ck, hotEntry{bytes: blob})
	c.touchLocked(key)
	return blob, true, nil
}

func (c *Cache) touch(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.touchLocked(key)
}

func (c *Cache) touchLocked(key Key) {
	_, _ = c.db.Exec(`
		UPDATE embeddings SET last_accessed = ?, access_count = access_count + 1
		WHERE content_hash = ? AND kind = ? AND model = ? AND project = ?`,
		time.Now().Unix(), key.ContentHash, string(key.Kind), key.Model, key.Project)
}

// Put upserts an embedding for key.
func (c *Cache) Put(ctx context.Context, key Key, bytes []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("embedcache: cache is closed")
	}

	now := time.Now().Unix()
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO embeddings (content_hash, kind, model, project, embedding, last_accessed, access_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?)
		ON CONFLICT(content_hash, kind, model, project) DO UPDATE SET
			embedding = excluded.embedding, last_accessed = excluded.last_accessed`,
		key.ContentHash, string(key.Kind), key.Model, key.Project, bytes, now, now)
	if err != nil {
		return fmt.Errorf("embedcache: put: %w", err)
	}
	c.hot.Add(key.cacheKey(), hotEntry{bytes: bytes})
	return nil
}

// Size returns the number of cached rows.
func (c *Cache) Size(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, fmt.Errorf("embedcache: cache is closed")
	}
	var n int
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embeddings`).Scan(&n)
	return n, err
}

// SizeBytes returns the total byte length of every cached embedding blob.
func (c *Cache) SizeBytes(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, fmt.Errorf("embedcache: cache is closed")
	}
	var n sql.NullInt64
	err := c.db.QueryRowContext(ctx, `SELECT SUM(LENGTH(embedding)) FROM embeddings`).Scan(&n)
	if err != nil {
		return 0, err
	}
	return n.Int64, nil
}

// EvictOlderThan deletes rows not accessed within the last `days` days,
// returning the number of rows removed.
func (c *Cache) EvictOlderThan(ctx context.Context, days int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, fmt.Errorf("embedcache: cache is closed")
	}
	cutoff := time.Now().AddDate(0, 0, -days).Unix()
	res, err := c.db.ExecContext(ctx, `DELETE FROM embeddings WHERE last_accessed < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("embedcache: evict: %w", err)
	}
	c.hot.Purge()
	n, err := res.RowsAffected()
	return int(n), err
}

// ClearProject drops every cached row for one project. It never touches
// rows belonging to other projects, and it is a distinct operation from
// clearing a project's search index (ChunkStore/VectorIndex).
func (c *Cache) ClearProject(ctx context.Context, project string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("embedcache: cache is closed")
	}
	if _, err := c.db.ExecContext(ctx, `DELETE FROM embeddings WHERE project = ?`, project); err != nil {
		return fmt.Errorf("embedcache: clear project %s: %w", project, err)
	}
	c.hot.Purge()
	return nil
}

// Close closes the underlying database connection.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	_, _ = c.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return c.db.Close()
}
