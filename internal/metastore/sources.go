package metastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/librarian/librarian/internal/ids"
	"github.com/librarian/librarian/internal/librarianerr"
)

// InsertSource creates a new Source row, assigning it an opaque id.
func (s *Store) InsertSource(ctx context.Context, typ, uri, name, configJSON string) (*Source, error) {
	now := unixNow()
	id := ids.NewOpaqueID()
	const q = `INSERT INTO sources (id, type, uri, name, created_at, updated_at, config_json)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, id, typ, uri, nullableString(name), now, now, nullableString(configJSON)); err != nil {
		return nil, librarianerr.New(librarianerr.KindDatabase, fmt.Errorf("metastore: insert source: %w", err))
	}
	return s.GetSourceByID(ctx, id)
}

const sourceColumns = `id, type, uri, name, created_at, updated_at, config_json`

func scanSource(row interface{ Scan(...any) error }) (*Source, error) {
	var src Source
	var name, configJSON sql.NullString
	var createdAt, updatedAt int64
	if err := row.Scan(&src.ID, &src.Type, &src.URI, &name, &createdAt, &updatedAt, &configJSON); err != nil {
		return nil, err
	}
	src.Name = scanString(name)
	src.ConfigJSON = scanString(configJSON)
	src.CreatedAt = unixTime(createdAt)
	src.UpdatedAt = unixTime(updatedAt)
	return &src, nil
}

// GetSourceByID looks up a Source by its opaque id.
func (s *Store) GetSourceByID(ctx context.Context, id string) (*Source, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sourceColumns+` FROM sources WHERE id = ?`, id)
	src, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, librarianerr.Newf(librarianerr.KindSourceNotFound, "metastore: source %q not found", id)
	}
	if err != nil {
		return nil, librarianerr.New(librarianerr.KindDatabase, fmt.Errorf("metastore: get source by id: %w", err))
	}
	return src, nil
}

// GetSourceByURI looks up a Source by its canonicalized uri.
func (s *Store) GetSourceByURI(ctx context.Context, uri string) (*Source, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sourceColumns+` FROM sources WHERE uri = ?`, uri)
	src, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, librarianerr.Newf(librarianerr.KindSourceNotFound, "metastore: source with uri %q not found", uri)
	}
	if err != nil {
		return nil, librarianerr.New(librarianerr.KindDatabase, fmt.Errorf("metastore: get source by uri: %w", err))
	}
	return src, nil
}

// GetSourceByName looks up a Source by its human-assigned name.
func (s *Store) GetSourceByName(ctx context.Context, name string) (*Source, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sourceColumns+` FROM sources WHERE name = ?`, name)
	src, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, librarianerr.Newf(librarianerr.KindSourceNotFound, "metastore: source with name %q not found", name)
	}
	if err != nil {
		return nil, librarianerr.New(librarianerr.KindDatabase, fmt.Errorf("metastore: get source by name: %w", err))
	}
	return src, nil
}

// ListSources returns every Source, ordered by creation time.
func (s *Store) ListSources(ctx context.Context) ([]*Source, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sourceColumns+` FROM sources ORDER BY created_at ASC`)
	if err != nil {
		return nil, librarianerr.New(librarianerr.KindDatabase, fmt.Errorf("metastore: list sources: %w", err))
	}
	defer rows.Close()

	var out []*Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, librarianerr.New(librarianerr.KindDatabase, fmt.Errorf("metastore: list sources scan: %w", err))
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

// UpdateSourceName renames a Source.
func (s *Store) UpdateSourceName(ctx context.Context, id, name string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sources SET name = ?, updated_at = ? WHERE id = ?`, nullableString(name), unixNow(), id)
	if err != nil {
		return librarianerr.New(librarianerr.KindDatabase, fmt.Errorf("metastore: update source name: %w", err))
	}
	return requireOneRowAffected(res, librarianerr.KindSourceNotFound, "source", id)
}

// DeleteSource removes a Source and manually cascades the deletion
// down to its runs, documents, and chunks (chunks → documents → runs →
// source), since SQLite foreign keys here are declarative, not
// ON DELETE CASCADE.
func (s *Store) DeleteSource(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return librarianerr.New(librarianerr.KindDatabase, fmt.Errorf("metastore: delete source begin tx: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	stmts := []string{
		`DELETE FROM chunks WHERE doc_id IN (SELECT id FROM documents WHERE source_id = ?)`,
		`DELETE FROM documents WHERE source_id = ?`,
		`DELETE FROM ingestion_runs WHERE source_id = ?`,
		`DELETE FROM sources WHERE id = ?`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return librarianerr.New(librarianerr.KindDatabase, fmt.Errorf("metastore: delete source cascade: %w", err))
		}
	}
	if err := tx.Commit(); err != nil {
		return librarianerr.New(librarianerr.KindDatabase, fmt.Errorf("metastore: delete source commit: %w", err))
	}
	return nil
}

func requireOneRowAffected(res sql.Result, kind librarianerr.Kind, noun, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return librarianerr.New(librarianerr.KindDatabase, fmt.Errorf("metastore: rows affected: %w", err))
	}
	if n == 0 {
		return librarianerr.Newf(kind, "metastore: %s %q not found", noun, id)
	}
	return nil
}
