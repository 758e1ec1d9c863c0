package metastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/librarian/librarian/internal/ids"
	"github.com/librarian/librarian/internal/librarianerr"
)

// StartIngestionRun records the beginning of one document-producer
// pass over a Source.
func (s *Store) StartIngestionRun(ctx context.Context, sourceID, operation string) (*IngestionRun, error) {
	now := unixNow()
	id := ids.NewOpaqueID()
	const q = `INSERT INTO ingestion_runs (id, source_id, operation, started_at, status)
VALUES (?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, id, sourceID, operation, now, string(RunStatusRunning)); err != nil {
		return nil, librarianerr.New(librarianerr.KindDatabase, fmt.Errorf("metastore: start ingestion run: %w", err))
	}
	return s.GetIngestionRun(ctx, id)
}

// CompleteIngestionRun finalizes a run with its terminal status, the
// pipeline's accumulated counters, and an optional errors payload
// (JSON-encoded by the caller).
func (s *Store) CompleteIngestionRun(ctx context.Context, runID string, status RunStatus, counters RunCounters, errorsJSON string) error {
	now := unixNow()
	const q = `UPDATE ingestion_runs SET
    completed_at = ?, status = ?, docs_processed = ?, chunks_created = ?, chunks_updated = ?, chunks_deleted = ?, errors_json = ?
WHERE id = ?`
	res, err := s.db.ExecContext(ctx, q, now, string(status), counters.DocsProcessed, counters.ChunksCreated,
		counters.ChunksUpdated, counters.ChunksDeleted, nullableString(errorsJSON), runID)
	if err != nil {
		return librarianerr.New(librarianerr.KindDatabase, fmt.Errorf("metastore: complete ingestion run: %w", err))
	}
	return requireOneRowAffected(res, librarianerr.KindOther, "ingestion run", runID)
}

const runColumns = `id, source_id, operation, started_at, completed_at, status, docs_processed, chunks_created, chunks_updated, chunks_deleted, errors_json`

func scanRun(row interface{ Scan(...any) error }) (*IngestionRun, error) {
	var r IngestionRun
	var completedAt sql.NullInt64
	var errorsJSON sql.NullString
	var startedAt int64
	var status string
	if err := row.Scan(&r.ID, &r.SourceID, &r.Operation, &startedAt, &completedAt, &status,
		&r.DocsProcessed, &r.ChunksCreated, &r.ChunksUpdated, &r.ChunksDeleted, &errorsJSON); err != nil {
		return nil, err
	}
	r.StartedAt = unixTime(startedAt)
	r.Status = RunStatus(status)
	r.ErrorsJSON = scanString(errorsJSON)
	if completedAt.Valid {
		t := unixTime(completedAt.Int64)
		r.CompletedAt = &t
	}
	return &r, nil
}

// GetIngestionRun looks up a run by id.
func (s *Store) GetIngestionRun(ctx context.Context, id string) (*IngestionRun, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM ingestion_runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, librarianerr.Newf(librarianerr.KindOther, "metastore: ingestion run %q not found", id)
	}
	if err != nil {
		return nil, librarianerr.New(librarianerr.KindDatabase, fmt.Errorf("metastore: get ingestion run: %w", err))
	}
	return r, nil
}

// ListSourceRuns returns every run for a Source, most recent first.
func (s *Store) ListSourceRuns(ctx context.Context, sourceID string) ([]*IngestionRun, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM ingestion_runs WHERE source_id = ? ORDER BY started_at DESC`, sourceID)
	if err != nil {
		return nil, librarianerr.New(librarianerr.KindDatabase, fmt.Errorf("metastore: list source runs: %w", err))
	}
	defer rows.Close()

	var out []*IngestionRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, librarianerr.New(librarianerr.KindDatabase, fmt.Errorf("metastore: list source runs scan: %w", err))
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
