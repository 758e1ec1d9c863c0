package metastore

import (
	"context"
	"fmt"

	"github.com/librarian/librarian/internal/librarianerr"
)

// Stats summarizes the database's content at a point in time.
type Stats struct {
	SourceCount   int
	DocumentCount int
	ChunkCount    int
}

// GetGlobalStats summarizes every source in the database.
func (s *Store) GetGlobalStats(ctx context.Context) (*Stats, error) {
	var st Stats
	row := s.db.QueryRowContext(ctx, `SELECT
    (SELECT COUNT(*) FROM sources),
    (SELECT COUNT(*) FROM documents),
    (SELECT COUNT(*) FROM chunks)`)
	if err := row.Scan(&st.SourceCount, &st.DocumentCount, &st.ChunkCount); err != nil {
		return nil, librarianerr.New(librarianerr.KindDatabase, fmt.Errorf("metastore: get global stats: %w", err))
	}
	return &st, nil
}

// GetSourceStats summarizes a single source.
func (s *Store) GetSourceStats(ctx context.Context, sourceID string) (*Stats, error) {
	var st Stats
	st.SourceCount = 1
	row := s.db.QueryRowContext(ctx, `SELECT
    (SELECT COUNT(*) FROM documents WHERE source_id = ?),
    (SELECT COUNT(*) FROM chunks WHERE doc_id IN (SELECT id FROM documents WHERE source_id = ?))`,
		sourceID, sourceID)
	if err := row.Scan(&st.DocumentCount, &st.ChunkCount); err != nil {
		return nil, librarianerr.New(librarianerr.KindDatabase, fmt.Errorf("metastore: get source stats: %w", err))
	}
	return &st, nil
}
