// Package chunkstore implements the engine's ChunkStore: a
// durable, per-project key-value-like store for chunks and their
// embedding blobs, backed by SQLite in WAL mode. It is the single-writer,
// multi-reader persistence layer; callers that
// need the live in-memory index use LoadAll to stream every row into a
// vectorindex.Index.
package chunkstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"

	"github.com/Aman-CERP/amanmcp/internal/chunktype"
)

// Record is the persisted row shape: chunk fields plus its embedding
// blob and precision tag.
type Record struct {
	Chunk     chunktype.Chunk
	Embedding []byte
	Precision string // "single" or "half"
	IndexedAt time.Time
}

// Store is a per-project ChunkStore. It owns one SQLite connection (single
// writer) and an advisory file lock guarding concurrent
// processes from opening the same database file.
type Store struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	lock   *flock.Flock
	closed bool
}

// Open creates or opens the per-project chunk database at path, applying
// WAL mode (single connection, WAL journal, NORMAL synchronous, busy
// timeout) for safe concurrent access.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("chunkstore: create dir: %w", err)
		}
	}

	lk := flock.New(path + ".lock")
	if path == ":memory:" {
		lk = nil
	} else {
		locked, err := lk.TryLock()
		if err != nil {
			return nil, fmt.Errorf("chunkstore: acquire lock: %w", err)
		}
		if !locked {
			return nil, fmt.Errorf("chunkstore: %s is locked by another process", path)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		if lk != nil {
			_ = lk.Unlock()
		}
		return nil, fmt.Errorf("chunkstore: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			if lk != nil {
				_ = lk.Unlock()
			}
			return nil, fmt.Errorf("chunkstore: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db, path: path, lock: lk}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		if lk != nil {
			_ = lk.Unlock()
		}
		return nil, fmt.Errorf("chunkstore: schema init: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		file_path TEXT NOT NULL,
		start_line INTEGER NOT NULL,
		end_line INTEGER NOT NULL,
		content TEXT NOT NULL,
		chunk_type TEXT NOT NULL,
		embedding BLOB,
		precision INTEGER NOT NULL DEFAULT 0,
		mod_time INTEGER NOT NULL DEFAULT 0,
		indexed_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_file_path ON chunks(file_path);
	CREATE INDEX IF NOT EXISTS idx_chunks_chunk_type ON chunks(chunk_type);

	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// precisionCode maps the string precision tag to the integer stored in
// the database (0 = single, 1 = half), matching the metadata table's
// VectorEntry.precision convention used elsewhere in the engine.
func precisionCode(p string) int {
	if strings.EqualFold(p, "half") {
		return 1
	}
	return 0
}

func precisionString(code int) string {
	if code == 1 {
		return "half"
	}
	return "single"
}

// SaveChunks is a transactional bulk upsert keyed by chunk identifier.
// All-or-nothing: a failure rolls back the whole batch, so a reindex
// cycle never observes a partial commit (a store failure is fatal for
// the cycle, not per-row).
func (s *Store) SaveChunks(ctx context.Context, records []*Record) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("chunkstore: store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("chunkstore: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, file_path, start_line, end_line, content, chunk_type, embedding, precision, mod_time, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			file_path=excluded.file_path, start_line=excluded.start_line, end_line=excluded.end_line,
			content=excluded.content, chunk_type=excluded.chunk_type, embedding=excluded.embedding,
			precision=excluded.precision, mod_time=excluded.mod_time, indexed_at=excluded.indexed_at
	`)
	if err != nil {
		return fmt.Errorf("chunkstore: prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for _, r := range records {
		indexedAt := r.IndexedAt
		if indexedAt.IsZero() {
			indexedAt = now
		}
		if _, err := stmt.ExecContext(ctx,
			r.Chunk.ID, r.Chunk.Path, r.Chunk.StartLine, r.Chunk.EndLine, r.Chunk.Text,
			string(r.Chunk.Kind), r.Embedding, precisionCode(r.Precision),
			r.Chunk.ModTime.Unix(), indexedAt.Unix(),
		); err != nil {
			return fmt.Errorf("chunkstore: upsert %s: %w", r.Chunk.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("chunkstore: commit: %w", err)
	}
	return nil
}

// GetChunksByIDs retrieves records by chunk identifier. Missing IDs are
// silently omitted from the result, matching a key-value-store get-many.
func (s *Store) GetChunksByIDs(ctx context.Context, ids []string) ([]*Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("chunkstore: store is closed")
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	query := fmt.Sprintf(`
		SELECT id, file_path, start_line, end_line, content, chunk_type, embedding, precision, mod_time, indexed_at
		FROM chunks WHERE id IN (%s)`, strings.Join(placeholders, ","))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("chunkstore: query by ids: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// DeleteByPath removes every chunk whose file_path matches path, returning
// the IDs removed (so callers can also evict them from the VectorIndex).
func (s *Store) DeleteByPath(ctx context.Context, path string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("chunkstore: store is closed")
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id FROM chunks WHERE file_path = ?`, path)
	if err != nil {
		return nil, fmt.Errorf("chunkstore: query ids for delete: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("chunkstore: scan id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(ids) == 0 {
		return nil, nil
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE file_path = ?`, path); err != nil {
		return nil, fmt.Errorf("chunkstore: delete by path: %w", err)
	}
	return ids, nil
}

// LoadAll streams every row in the store, invoking visit per record, for
// building a fresh VectorIndex. Rows are visited in
// insertion-independent order (by id) with bounded parallelism left to
// the caller: visit must be safe only if the caller serializes it, since
// SQLite row scanning here is sequential.
func (s *Store) LoadAll(ctx context.Context, visit func(*Record) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("chunkstore: store is closed")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, file_path, start_line, end_line, content, chunk_type, embedding, precision, mod_time, indexed_at
		FROM chunks ORDER BY id`)
	if err != nil {
		return fmt.Errorf("chunkstore: load all: %w", err)
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return err
	}
	for _, r := range records {
		if err := visit(r); err != nil {
			return err
		}
	}
	return nil
}

func scanRecords(rows *sql.Rows) ([]*Record, error) {
	var out []*Record
	for rows.Next() {
		var r Record
		var chunkType string
		var precision int
		var modTime, indexedAt int64
		if err := rows.Scan(&r.Chunk.ID, &r.Chunk.Path, &r.Chunk.StartLine, &r.Chunk.EndLine,
			&r.Chunk.Text, &chunkType, &r.Embedding, &precision, &modTime, &indexedAt); err != nil {
			return nil, fmt.Errorf("chunkstore: scan row: %w", err)
		}
		r.Chunk.Kind = chunktype.Kind(chunkType)
		r.Precision = precisionString(precision)
		r.Chunk.ModTime = time.Unix(modTime, 0).UTC()
		r.IndexedAt = time.Unix(indexedAt, 0).UTC()
		out = append(out, &r)
	}
	return out, rows.Err()
}

// Clear deletes all chunks and metadata, then compacts the database
// file. This is what a force reindex does to the ChunkStore; it must
// NOT touch the separate EmbeddingCache database.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("chunkstore: store is closed")
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks`); err != nil {
		return fmt.Errorf("chunkstore: clear chunks: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM metadata`); err != nil {
		return fmt.Errorf("chunkstore: clear metadata: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `VACUUM`); err != nil {
		slog.Warn("chunkstore_vacuum_failed", slog.String("error", err.Error()))
	}
	return nil
}

// SaveMetadata upserts a single metadata key/value pair (dimension,
// precision, cpu_capabilities, project_directory, and friends).
func (s *Store) SaveMetadata(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("chunkstore: store is closed")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

// GetMetadata reads a metadata value, returning ok=false if absent.
func (s *Store) GetMetadata(ctx context.Context, key string) (value string, ok bool, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", false, fmt.Errorf("chunkstore: store is closed")
	}
	err = s.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// ChunkCount returns the number of chunk rows currently stored.
func (s *Store) ChunkCount(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, fmt.Errorf("chunkstore: store is closed")
	}
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n)
	return n, err
}

// Close closes the database connection and releases the advisory lock.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	err := s.db.Close()
	if s.lock != nil {
		_ = s.lock.Unlock()
	}
	return err
}
