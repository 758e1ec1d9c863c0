package ingestion

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/librarian/librarian/internal/librarianerr"
	"github.com/librarian/librarian/internal/metastore"
)

// SourceKind identifies a document producer shape.
type SourceKind string

const (
	SourceDir     SourceKind = "dir"
	SourceURL     SourceKind = "url"
	SourceSitemap SourceKind = "sitemap"
)

// OverlapRelation classifies how two sources of the same kind relate
// to each other by location.
type OverlapRelation string

const (
	RelationIdentical  OverlapRelation = "identical"
	RelationSubsetOf   OverlapRelation = "subset_of"
	RelationSupersetOf OverlapRelation = "superset_of"
)

// Overlap names an existing source whose location relates to the one
// being ingested. Overlaps never block ingestion; they surface in the
// run result so the caller can avoid silent duplicate indexing.
type Overlap struct {
	SourceID string
	URI      string
	Relation OverlapRelation
}

// ResolveSource implements the non-interactive default of §4.8 step 1:
// reuse an existing Source by URI, or create a new one otherwise. kind
// and name are only used when creating.
func ResolveSource(ctx context.Context, store *metastore.Store, kind SourceKind, uri, name string) (*metastore.Source, error) {
	existing, err := store.GetSourceByURI(ctx, uri)
	if err == nil {
		return existing, nil
	}
	if librarianerr.KindOf(err) != librarianerr.KindSourceNotFound {
		return nil, err
	}
	return store.InsertSource(ctx, string(kind), uri, name, "")
}

// DetectOverlaps compares candidate (not yet persisted, or freshly
// persisted) against every existing Source of the same kind and
// reports path/host-prefix relationships per §4.8 step 2.
func DetectOverlaps(ctx context.Context, store *metastore.Store, kind SourceKind, candidateID, candidateURI string) ([]Overlap, error) {
	all, err := store.ListSources(ctx)
	if err != nil {
		return nil, err
	}

	var out []Overlap
	for _, s := range all {
		if s.ID == candidateID || s.Type != string(kind) {
			continue
		}
		rel, ok := classifyOverlap(kind, candidateURI, s.URI)
		if !ok {
			continue
		}
		out = append(out, Overlap{SourceID: s.ID, URI: s.URI, Relation: rel})
	}
	return out, nil
}

// classifyOverlap decides the path/host relationship between two
// source locations of the same kind.
func classifyOverlap(kind SourceKind, a, b string) (OverlapRelation, bool) {
	switch kind {
	case SourceDir:
		return classifyPathPrefix(a, b)
	case SourceURL, SourceSitemap:
		hostA, pathA, okA := splitHostPath(a)
		hostB, pathB, okB := splitHostPath(b)
		if !okA || !okB || !strings.EqualFold(hostA, hostB) {
			return "", false
		}
		return classifyPathPrefix(pathA, pathB)
	default:
		return "", false
	}
}

func classifyPathPrefix(a, b string) (OverlapRelation, bool) {
	a = strings.TrimSuffix(a, "/")
	b = strings.TrimSuffix(b, "/")
	switch {
	case a == b:
		return RelationIdentical, true
	case strings.HasPrefix(a, b+"/"):
		return RelationSubsetOf, true
	case strings.HasPrefix(b, a+"/"):
		return RelationSupersetOf, true
	default:
		return "", false
	}
}

func splitHostPath(rawURL string) (host, path string, ok bool) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "", "", false
	}
	return u.Host, u.Path, true
}

// ErrNilStore is returned by pipeline constructors when a required
// dependency is missing.
var ErrNilStore = errors.New("ingestion: metastore must not be nil")

func wrapf(kind librarianerr.Kind, format string, args ...any) error {
	return librarianerr.Newf(kind, format, args...)
}
