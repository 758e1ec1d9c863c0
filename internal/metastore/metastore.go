// Package metastore is the durable, single-writer embedded relational
// store backing sources, documents, chunks, and ingestion runs. It
// wraps a SQLite database in WAL mode with a single writer connection,
// mirroring the driver and concurrency discipline used throughout this
// module for local persistence.
package metastore

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/librarian/librarian/internal/librarianerr"
)

// Store is the SQLite-backed MetaStore.
type Store struct {
	db *sql.DB
}

// DefaultDBPath returns the default path for the metadata database,
// resolving to ~/.librarian/metadata.db and creating the directory if
// needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", librarianerr.New(librarianerr.KindIO, fmt.Errorf("metastore: could not determine home directory: %w", err))
	}
	dir := filepath.Join(home, ".librarian")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", librarianerr.New(librarianerr.KindIO, fmt.Errorf("metastore: could not create %s: %w", dir, err))
	}
	return filepath.Join(dir, "metadata.db"), nil
}

// Open opens (or creates) a Store at path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*Store, error) {
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, librarianerr.New(librarianerr.KindDatabase, fmt.Errorf("metastore: open %s: %w", path, err))
	}
	// A single writer connection avoids SQLITE_BUSY under concurrent
	// writes; readers still proceed under WAL.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS sources (
    id          TEXT PRIMARY KEY,
    type        TEXT NOT NULL,
    uri         TEXT NOT NULL UNIQUE,
    name        TEXT,
    created_at  INTEGER NOT NULL,
    updated_at  INTEGER NOT NULL,
    config_json TEXT
);

CREATE TABLE IF NOT EXISTS documents (
    id           TEXT PRIMARY KEY,
    source_id    TEXT NOT NULL REFERENCES sources(id),
    uri          TEXT NOT NULL,
    title        TEXT,
    content_hash TEXT NOT NULL,
    content_type TEXT,
    created_at   INTEGER NOT NULL,
    updated_at   INTEGER NOT NULL,
    UNIQUE(source_id, uri)
);
CREATE INDEX IF NOT EXISTS idx_documents_source ON documents (source_id);

CREATE TABLE IF NOT EXISTS chunks (
    id            TEXT PRIMARY KEY,
    doc_id        TEXT NOT NULL REFERENCES documents(id),
    chunk_index   INTEGER NOT NULL,
    chunk_hash    TEXT NOT NULL,
    chunk_text    TEXT NOT NULL,
    char_start    INTEGER NOT NULL,
    char_end      INTEGER NOT NULL,
    headings_json TEXT,
    point_id      TEXT NOT NULL UNIQUE,
    modality      TEXT NOT NULL DEFAULT 'text',
    media_url     TEXT,
    media_hash    TEXT,
    created_at    INTEGER NOT NULL,
    updated_at    INTEGER NOT NULL,
    UNIQUE(doc_id, chunk_index)
);
CREATE INDEX IF NOT EXISTS idx_chunks_doc ON chunks (doc_id);

CREATE TABLE IF NOT EXISTS ingestion_runs (
    id             TEXT PRIMARY KEY,
    source_id      TEXT NOT NULL REFERENCES sources(id),
    operation      TEXT NOT NULL,
    started_at     INTEGER NOT NULL,
    completed_at   INTEGER,
    status         TEXT NOT NULL,
    docs_processed INTEGER NOT NULL DEFAULT 0,
    chunks_created INTEGER NOT NULL DEFAULT 0,
    chunks_updated INTEGER NOT NULL DEFAULT 0,
    chunks_deleted INTEGER NOT NULL DEFAULT 0,
    errors_json    TEXT
);
CREATE INDEX IF NOT EXISTS idx_runs_source ON ingestion_runs (source_id);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return librarianerr.New(librarianerr.KindDatabase, fmt.Errorf("metastore: migrate: %w", err))
	}
	return nil
}

// Close releases the database connection pool.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return librarianerr.New(librarianerr.KindDatabase, fmt.Errorf("metastore: close: %w", err))
	}
	return nil
}

// Source is a root location a document producer enumerates from.
type Source struct {
	ID         string
	Type       string
	URI        string
	Name       string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	ConfigJSON string
}

// Document is one parsed unit tracked under a Source.
type Document struct {
	ID          string
	SourceID    string
	URI         string
	Title       string
	ContentHash string
	ContentType string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Chunk is a single embedded slice of a Document's text, paired with
// its VectorStore point by PointID.
type Chunk struct {
	ID           string
	DocID        string
	ChunkIndex   int
	ChunkHash    string
	ChunkText    string
	CharStart    int
	CharEnd      int
	Headings     []string
	PointID      string
	Modality     string
	MediaURL     string
	MediaHash    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RunStatus is the lifecycle state of an IngestionRun.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// IngestionRun records one pass of a source's document producer.
type IngestionRun struct {
	ID            string
	SourceID      string
	Operation     string
	StartedAt     time.Time
	CompletedAt   *time.Time
	Status        RunStatus
	DocsProcessed int
	ChunksCreated int
	ChunksUpdated int
	ChunksDeleted int
	ErrorsJSON    string
}

// RunCounters accumulates per-run statistics passed to CompleteIngestionRun.
type RunCounters struct {
	DocsProcessed int
	ChunksCreated int
	ChunksUpdated int
	ChunksDeleted int
}

func unixNow() int64 { return time.Now().Unix() }

func unixTime(sec int64) time.Time { return time.Unix(sec, 0).UTC() }

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func scanString(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}
