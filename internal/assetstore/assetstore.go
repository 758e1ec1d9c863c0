// Package assetstore persists raw image bytes pulled during ingestion
// as content-addressed files under a base directory's assets/
// subdirectory, named by BLAKE3 hash so a media_hash recorded in a
// Chunk row or vector payload maps directly to a local file path.
package assetstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/librarian/librarian/internal/hashutil"
	"github.com/librarian/librarian/internal/librarianerr"
)

// Store writes and reads content-addressed asset files under Root.
type Store struct {
	root string
}

// Open ensures root (and its assets/ layout) exists and returns a
// Store rooted there. root is the base directory (e.g. ~/.librarian);
// assets are written to root/assets/.
func Open(root string) (*Store, error) {
	dir := filepath.Join(root, "assets")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, librarianerr.New(librarianerr.KindIO, fmt.Errorf("assetstore: create %s: %w", dir, err))
	}
	return &Store{root: root}, nil
}

func (s *Store) assetsDir() string {
	return filepath.Join(s.root, "assets")
}

// pathFor returns the on-disk path for a content hash, sharding by the
// first two hex characters so a single directory never accumulates an
// unbounded number of entries.
func (s *Store) pathFor(hash string) (string, error) {
	if len(hash) < 2 {
		return "", librarianerr.Newf(librarianerr.KindInvalidPath, "assetstore: hash %q is too short to address", hash)
	}
	return filepath.Join(s.assetsDir(), hash[:2], hash), nil
}

// Put writes data under its content hash and returns that hash. If an
// asset with the same hash already exists, Put skips the write — the
// existing bytes are, by construction, identical.
func (s *Store) Put(_ context.Context, data []byte) (string, error) {
	hash := hashutil.HashBytes(data)
	path, err := s.pathFor(hash)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err == nil {
		return hash, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", librarianerr.New(librarianerr.KindIO, fmt.Errorf("assetstore: create dir for %s: %w", hash, err))
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", librarianerr.New(librarianerr.KindIO, fmt.Errorf("assetstore: write %s: %w", hash, err))
	}
	return hash, nil
}

// Get returns the bytes stored under hash.
func (s *Store) Get(_ context.Context, hash string) ([]byte, error) {
	path, err := s.pathFor(hash)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, librarianerr.Newf(librarianerr.KindIO, "assetstore: no asset for hash %q", hash)
	}
	if err != nil {
		return nil, librarianerr.New(librarianerr.KindIO, fmt.Errorf("assetstore: read %s: %w", hash, err))
	}
	return data, nil
}

// Has reports whether an asset with the given hash is already stored,
// letting a caller skip refetching image bytes it already downloaded
// on a prior ingestion run.
func (s *Store) Has(hash string) bool {
	path, err := s.pathFor(hash)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// Delete removes the asset stored under hash. Deleting a hash that was
// never stored is not an error.
func (s *Store) Delete(hash string) error {
	path, err := s.pathFor(hash)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return librarianerr.New(librarianerr.KindIO, fmt.Errorf("assetstore: delete %s: %w", hash, err))
	}
	return nil
}

// Path returns the on-disk path an asset would be stored at, without
// checking whether it exists. Useful for constructing a file:// media
// URL to return alongside a query result.
func (s *Store) Path(hash string) (string, error) {
	return s.pathFor(hash)
}
