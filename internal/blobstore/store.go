// Package blobstore implements content-addressed blob persistence with GC
// (C8): blobs are written under a sharded path keyed by their commitment
// root, with sqlite tracking metadata and additive pins.
package blobstore

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sort"

	_ "modernc.org/sqlite"

	"github.com/animicaorg/animica/internal/common"
)

const schema = `
CREATE TABLE IF NOT EXISTS blob_meta (
	root        TEXT PRIMARY KEY,
	namespace   INTEGER NOT NULL,
	size        INTEGER NOT NULL,
	storage_key TEXT NOT NULL UNIQUE,
	path        TEXT NOT NULL,
	created_at  INTEGER NOT NULL,
	k           INTEGER NOT NULL,
	n           INTEGER NOT NULL,
	shard_size  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_blob_meta_namespace ON blob_meta(namespace, created_at);
CREATE INDEX IF NOT EXISTS idx_blob_meta_created_at ON blob_meta(created_at);

CREATE TABLE IF NOT EXISTS pins (
	root TEXT NOT NULL,
	tag  TEXT NOT NULL,
	PRIMARY KEY (root, tag),
	FOREIGN KEY (root) REFERENCES blob_meta(root) ON DELETE CASCADE
);
`

// Meta is a blob's tracked metadata row.
type Meta struct {
	Root       string
	Namespace  uint64
	Size       int64
	StorageKey string
	Path       string
	CreatedAt  int64
	K, N       int
	ShardSize  int
}

// Store is the sqlite-backed metadata/pins index plus a sharded on-disk
// object directory.
type Store struct {
	db      *sql.DB
	baseDir string
}

// Open opens (creating if absent) the metadata database at dbPath, applying
// the schema, and ensures baseDir/objects exists for blob bodies.
func Open(dbPath, baseDir string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, common.NewInternalError("blobstore.Open", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		return nil, common.NewInternalError("blobstore.Open", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, common.NewInternalError("blobstore.Open", err)
	}
	if err := os.MkdirAll(filepath.Join(baseDir, "objects"), 0o755); err != nil {
		return nil, common.NewInternalError("blobstore.Open", err)
	}
	return &Store{db: db, baseDir: baseDir}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error { return s.db.Close() }

// shardedPath returns the two-level sharded object path for a root, e.g.
// "objects/ab/cd/<root>", mirroring an ancient-store fan-out layout to keep
// any single directory from growing unbounded.
func shardedPath(root string) string {
	a, b := "00", "00"
	if len(root) >= 4 {
		a, b = root[0:2], root[2:4]
	}
	return filepath.Join("objects", a, b, root)
}

// Put writes data under root's sharded path and upserts its metadata row.
func (s *Store) Put(ctx context.Context, root string, namespace uint64, data []byte, k, n, shardSize int, now int64) error {
	relPath := shardedPath(root)
	fullPath := filepath.Join(s.baseDir, relPath)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return common.NewInternalError("blobstore.Put", err)
	}
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return common.NewInternalError("blobstore.Put", err)
	}

	return common.Retry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO blob_meta (root, namespace, size, storage_key, path, created_at, k, n, shard_size)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (root) DO UPDATE SET
				namespace = excluded.namespace,
				size = excluded.size,
				created_at = excluded.created_at,
				k = excluded.k,
				n = excluded.n,
				shard_size = excluded.shard_size
		`, root, namespace, len(data), root, relPath, now, k, n, shardSize)
		if err != nil {
			return wrapSQLErr("blobstore.Put", err)
		}
		return nil
	})
}

// Get reads root's blob body from disk, returning NotFoundError if absent.
func (s *Store) Get(ctx context.Context, root string) ([]byte, error) {
	var relPath string
	err := s.db.QueryRowContext(ctx, `SELECT path FROM blob_meta WHERE root = ?`, root).Scan(&relPath)
	if err == sql.ErrNoRows {
		return nil, common.NewNotFoundError("blob", root)
	}
	if err != nil {
		return nil, common.NewInternalError("blobstore.Get", err)
	}
	data, err := os.ReadFile(filepath.Join(s.baseDir, relPath))
	if err != nil {
		return nil, common.NewNotFoundError("blob", root)
	}
	return data, nil
}

// MetaOf returns root's tracked metadata.
func (s *Store) MetaOf(ctx context.Context, root string) (Meta, error) {
	var m Meta
	err := s.db.QueryRowContext(ctx, `
		SELECT root, namespace, size, storage_key, path, created_at, k, n, shard_size
		FROM blob_meta WHERE root = ?
	`, root).Scan(&m.Root, &m.Namespace, &m.Size, &m.StorageKey, &m.Path, &m.CreatedAt, &m.K, &m.N, &m.ShardSize)
	if err == sql.ErrNoRows {
		return Meta{}, common.NewNotFoundError("blob", root)
	}
	if err != nil {
		return Meta{}, common.NewInternalError("blobstore.MetaOf", err)
	}
	return m, nil
}

// Pin marks root as protected under tag. Additive: any pin row protects it.
func (s *Store) Pin(ctx context.Context, root, tag string) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO pins (root, tag) VALUES (?, ?)`, root, tag)
	if err != nil {
		return wrapSQLErr("blobstore.Pin", err)
	}
	return nil
}

// Unpin removes one pin tag from root.
func (s *Store) Unpin(ctx context.Context, root, tag string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM pins WHERE root = ? AND tag = ?`, root, tag)
	if err != nil {
		return wrapSQLErr("blobstore.Unpin", err)
	}
	return nil
}

// IsPinned reports whether any pin row protects root.
func (s *Store) IsPinned(ctx context.Context, root string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pins WHERE root = ?`, root).Scan(&n)
	if err != nil {
		return false, common.NewInternalError("blobstore.IsPinned", err)
	}
	return n > 0, nil
}

func wrapSQLErr(op string, err error) error {
	msg := err.Error()
	if containsAny(msg, "SQLITE_BUSY", "SQLITE_LOCKED", "database is locked") {
		return common.NewTransientError(op, err)
	}
	return common.NewInternalError(op, err)
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if indexOf(s, sub) >= 0 {
			return true
		}
	}
	return false
}

func indexOf(s, substr string) int {
	n, m := len(s), len(substr)
	for i := 0; i+m <= n; i++ {
		if s[i:i+m] == substr {
			return i
		}
	}
	return -1
}

// allMeta returns every tracked row, used by retention evaluation.
func (s *Store) allMeta(ctx context.Context) ([]Meta, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT root, namespace, size, storage_key, path, created_at, k, n, shard_size FROM blob_meta
	`)
	if err != nil {
		return nil, common.NewInternalError("blobstore.allMeta", err)
	}
	defer rows.Close()

	var out []Meta
	for rows.Next() {
		var m Meta
		if err := rows.Scan(&m.Root, &m.Namespace, &m.Size, &m.StorageKey, &m.Path, &m.CreatedAt, &m.K, &m.N, &m.ShardSize); err != nil {
			return nil, common.NewInternalError("blobstore.allMeta", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func sortByCreatedAtDesc(metas []Meta) {
	sort.Slice(metas, func(i, j int) bool { return metas[i].CreatedAt > metas[j].CreatedAt })
}
