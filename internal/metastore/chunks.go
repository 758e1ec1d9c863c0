package metastore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/librarian/librarian/internal/ids"
	"github.com/librarian/librarian/internal/librarianerr"
)

const chunkColumns = `id, doc_id, chunk_index, chunk_hash, chunk_text, char_start, char_end, headings_json, point_id, modality, media_url, media_hash, created_at, updated_at`

func scanChunk(row interface{ Scan(...any) error }) (*Chunk, error) {
	var c Chunk
	var headingsJSON, mediaURL, mediaHash sql.NullString
	var createdAt, updatedAt int64
	if err := row.Scan(&c.ID, &c.DocID, &c.ChunkIndex, &c.ChunkHash, &c.ChunkText, &c.CharStart, &c.CharEnd,
		&headingsJSON, &c.PointID, &c.Modality, &mediaURL, &mediaHash, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if headingsJSON.Valid && headingsJSON.String != "" {
		if err := json.Unmarshal([]byte(headingsJSON.String), &c.Headings); err != nil {
			return nil, fmt.Errorf("metastore: decode headings_json: %w", err)
		}
	}
	c.MediaURL = scanString(mediaURL)
	c.MediaHash = scanString(mediaHash)
	c.CreatedAt = unixTime(createdAt)
	c.UpdatedAt = unixTime(updatedAt)
	return &c, nil
}

// UpsertChunk inserts chunk, or on a (doc_id, chunk_index) conflict
// updates every mutable field (text, hash, bounds, headings, point id,
// modality, media references, updated_at).
func (s *Store) UpsertChunk(ctx context.Context, chunk Chunk) (*Chunk, error) {
	now := unixNow()
	if chunk.ID == "" {
		chunk.ID = ids.NewOpaqueID()
	}
	if chunk.Modality == "" {
		chunk.Modality = "text"
	}
	headingsJSON, err := json.Marshal(chunk.Headings)
	if err != nil {
		return nil, librarianerr.New(librarianerr.KindJSON, fmt.Errorf("metastore: encode headings_json: %w", err))
	}

	const q = `
INSERT INTO chunks (id, doc_id, chunk_index, chunk_hash, chunk_text, char_start, char_end, headings_json, point_id, modality, media_url, media_hash, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(doc_id, chunk_index) DO UPDATE SET
    chunk_hash = excluded.chunk_hash,
    chunk_text = excluded.chunk_text,
    char_start = excluded.char_start,
    char_end = excluded.char_end,
    headings_json = excluded.headings_json,
    point_id = excluded.point_id,
    modality = excluded.modality,
    media_url = excluded.media_url,
    media_hash = excluded.media_hash,
    updated_at = excluded.updated_at`
	if _, err := s.db.ExecContext(ctx, q, chunk.ID, chunk.DocID, chunk.ChunkIndex, chunk.ChunkHash, chunk.ChunkText,
		chunk.CharStart, chunk.CharEnd, string(headingsJSON), chunk.PointID, chunk.Modality,
		nullableString(chunk.MediaURL), nullableString(chunk.MediaHash), now, now); err != nil {
		return nil, librarianerr.New(librarianerr.KindDatabase, fmt.Errorf("metastore: upsert chunk: %w", err))
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+chunkColumns+` FROM chunks WHERE doc_id = ? AND chunk_index = ?`, chunk.DocID, chunk.ChunkIndex)
	return scanChunk(row)
}

// GetChunks returns every Chunk belonging to docID, ordered by index.
func (s *Store) GetChunks(ctx context.Context, docID string) ([]*Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+chunkColumns+` FROM chunks WHERE doc_id = ? ORDER BY chunk_index ASC`, docID)
	if err != nil {
		return nil, librarianerr.New(librarianerr.KindDatabase, fmt.Errorf("metastore: get chunks: %w", err))
	}
	defer rows.Close()

	var out []*Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, librarianerr.New(librarianerr.KindDatabase, fmt.Errorf("metastore: get chunks scan: %w", err))
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetChunkByPointID looks up the Chunk row paired with a VectorStore point.
func (s *Store) GetChunkByPointID(ctx context.Context, pointID string) (*Chunk, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+chunkColumns+` FROM chunks WHERE point_id = ?`, pointID)
	c, err := scanChunk(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, librarianerr.Newf(librarianerr.KindOther, "metastore: no chunk for point %q", pointID)
	}
	if err != nil {
		return nil, librarianerr.New(librarianerr.KindDatabase, fmt.Errorf("metastore: get chunk by point id: %w", err))
	}
	return c, nil
}

// DeleteChunksFromIndex deletes every chunk of docID whose chunk_index
// is >= from, returning the deleted rows' point_ids so the caller can
// mirror the deletion to the VectorStore.
func (s *Store) DeleteChunksFromIndex(ctx context.Context, docID string, from int) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, librarianerr.New(librarianerr.KindDatabase, fmt.Errorf("metastore: delete chunks from index begin tx: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	pointIDs, err := queryPointIDs(ctx, tx, `SELECT point_id FROM chunks WHERE doc_id = ? AND chunk_index >= ?`, docID, from)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE doc_id = ? AND chunk_index >= ?`, docID, from); err != nil {
		return nil, librarianerr.New(librarianerr.KindDatabase, fmt.Errorf("metastore: delete chunks from index: %w", err))
	}
	if err := tx.Commit(); err != nil {
		return nil, librarianerr.New(librarianerr.KindDatabase, fmt.Errorf("metastore: delete chunks from index commit: %w", err))
	}
	return pointIDs, nil
}

// AllPointIDs returns every point_id currently recorded in the chunks
// table, used by the prune reconciliation path.
func (s *Store) AllPointIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT point_id FROM chunks`)
	if err != nil {
		return nil, librarianerr.New(librarianerr.KindDatabase, fmt.Errorf("metastore: all point ids: %w", err))
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, librarianerr.New(librarianerr.KindDatabase, fmt.Errorf("metastore: all point ids scan: %w", err))
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
