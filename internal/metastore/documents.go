package metastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/librarian/librarian/internal/ids"
	"github.com/librarian/librarian/internal/librarianerr"
)

const documentColumns = `id, source_id, uri, title, content_hash, content_type, created_at, updated_at`

func scanDocument(row interface{ Scan(...any) error }) (*Document, error) {
	var d Document
	var title, contentType sql.NullString
	var createdAt, updatedAt int64
	if err := row.Scan(&d.ID, &d.SourceID, &d.URI, &title, &d.ContentHash, &contentType, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	d.Title = scanString(title)
	d.ContentType = scanString(contentType)
	d.CreatedAt = unixTime(createdAt)
	d.UpdatedAt = unixTime(updatedAt)
	return &d, nil
}

// UpsertDocument inserts doc, or on a (source_id, uri) conflict
// updates title, content_hash, content_type, and updated_at. The
// returned Document always carries the row's persisted id.
func (s *Store) UpsertDocument(ctx context.Context, doc Document) (*Document, error) {
	now := unixNow()
	if doc.ID == "" {
		doc.ID = ids.NewOpaqueID()
	}
	const q = `
INSERT INTO documents (id, source_id, uri, title, content_hash, content_type, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(source_id, uri) DO UPDATE SET
    title = excluded.title,
    content_hash = excluded.content_hash,
    content_type = excluded.content_type,
    updated_at = excluded.updated_at`
	if _, err := s.db.ExecContext(ctx, q, doc.ID, doc.SourceID, doc.URI,
		nullableString(doc.Title), doc.ContentHash, nullableString(doc.ContentType), now, now); err != nil {
		return nil, librarianerr.New(librarianerr.KindDatabase, fmt.Errorf("metastore: upsert document: %w", err))
	}
	return s.GetDocumentByURI(ctx, doc.SourceID, doc.URI)
}

// GetDocumentByURI looks up a Document by its owning source and uri.
func (s *Store) GetDocumentByURI(ctx context.Context, sourceID, uri string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE source_id = ? AND uri = ?`, sourceID, uri)
	d, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, librarianerr.Newf(librarianerr.KindDocumentNotFound, "metastore: document %q not found in source %q", uri, sourceID)
	}
	if err != nil {
		return nil, librarianerr.New(librarianerr.KindDatabase, fmt.Errorf("metastore: get document by uri: %w", err))
	}
	return d, nil
}

// GetDocumentByID looks up a Document by its opaque id.
func (s *Store) GetDocumentByID(ctx context.Context, id string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	d, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, librarianerr.Newf(librarianerr.KindDocumentNotFound, "metastore: document %q not found", id)
	}
	if err != nil {
		return nil, librarianerr.New(librarianerr.KindDatabase, fmt.Errorf("metastore: get document by id: %w", err))
	}
	return d, nil
}

// ListSourceDocuments returns every Document owned by sourceID.
func (s *Store) ListSourceDocuments(ctx context.Context, sourceID string) ([]*Document, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE source_id = ? ORDER BY uri ASC`, sourceID)
	if err != nil {
		return nil, librarianerr.New(librarianerr.KindDatabase, fmt.Errorf("metastore: list source documents: %w", err))
	}
	defer rows.Close()

	var out []*Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, librarianerr.New(librarianerr.KindDatabase, fmt.Errorf("metastore: list source documents scan: %w", err))
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// DeleteDocument removes a Document and cascades to its chunks,
// returning the point_ids of the deleted chunk rows so the caller can
// mirror the deletion to the VectorStore.
func (s *Store) DeleteDocument(ctx context.Context, id string) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, librarianerr.New(librarianerr.KindDatabase, fmt.Errorf("metastore: delete document begin tx: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	pointIDs, err := queryPointIDs(ctx, tx, `SELECT point_id FROM chunks WHERE doc_id = ?`, id)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE doc_id = ?`, id); err != nil {
		return nil, librarianerr.New(librarianerr.KindDatabase, fmt.Errorf("metastore: delete document chunks: %w", err))
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id); err != nil {
		return nil, librarianerr.New(librarianerr.KindDatabase, fmt.Errorf("metastore: delete document: %w", err))
	}
	if err := tx.Commit(); err != nil {
		return nil, librarianerr.New(librarianerr.KindDatabase, fmt.Errorf("metastore: delete document commit: %w", err))
	}
	return pointIDs, nil
}

// DeleteStaleDocuments deletes every Document owned by sourceID whose
// uri is not in keepURIs, cascading to their chunks, and returns the
// deleted document ids alongside the point_ids of every chunk row
// that was cascaded away, so the caller can mirror the deletion to
// the VectorStore.
func (s *Store) DeleteStaleDocuments(ctx context.Context, sourceID string, keepURIs []string) ([]string, []string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, librarianerr.New(librarianerr.KindDatabase, fmt.Errorf("metastore: delete stale documents begin tx: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	keep := make(map[string]struct{}, len(keepURIs))
	for _, u := range keepURIs {
		keep[u] = struct{}{}
	}

	rows, err := tx.QueryContext(ctx, `SELECT id, uri FROM documents WHERE source_id = ?`, sourceID)
	if err != nil {
		return nil, nil, librarianerr.New(librarianerr.KindDatabase, fmt.Errorf("metastore: delete stale documents query: %w", err))
	}
	var staleIDs []string
	for rows.Next() {
		var id, uri string
		if err := rows.Scan(&id, &uri); err != nil {
			rows.Close()
			return nil, nil, librarianerr.New(librarianerr.KindDatabase, fmt.Errorf("metastore: delete stale documents scan: %w", err))
		}
		if _, ok := keep[uri]; !ok {
			staleIDs = append(staleIDs, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, nil, librarianerr.New(librarianerr.KindDatabase, fmt.Errorf("metastore: delete stale documents rows: %w", err))
	}

	var pointIDs []string
	for _, id := range staleIDs {
		docPointIDs, err := queryPointIDs(ctx, tx, `SELECT point_id FROM chunks WHERE doc_id = ?`, id)
		if err != nil {
			return nil, nil, err
		}
		pointIDs = append(pointIDs, docPointIDs...)
		if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE doc_id = ?`, id); err != nil {
			return nil, nil, librarianerr.New(librarianerr.KindDatabase, fmt.Errorf("metastore: delete stale documents chunks: %w", err))
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id); err != nil {
			return nil, nil, librarianerr.New(librarianerr.KindDatabase, fmt.Errorf("metastore: delete stale documents: %w", err))
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, librarianerr.New(librarianerr.KindDatabase, fmt.Errorf("metastore: delete stale documents commit: %w", err))
	}
	return staleIDs, pointIDs, nil
}

func queryPointIDs(ctx context.Context, tx *sql.Tx, query string, args ...any) ([]string, error) {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, librarianerr.New(librarianerr.KindDatabase, fmt.Errorf("metastore: query point ids: %w", err))
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, librarianerr.New(librarianerr.KindDatabase, fmt.Errorf("metastore: scan point id: %w", err))
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
