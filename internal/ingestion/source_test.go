package ingestion

import (
	"context"
	"testing"
)

func TestResolveSourceReusesExistingByURI(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	first, err := ResolveSource(ctx, store, SourceDir, "/docs/project", "project")
	if err != nil {
		t.Fatalf("resolve first: %v", err)
	}
	second, err := ResolveSource(ctx, store, SourceDir, "/docs/project", "project")
	if err != nil {
		t.Fatalf("resolve second: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("expected the same source to be reused, got %s and %s", first.ID, second.ID)
	}
}

func TestResolveSourceCreatesNewForUnknownURI(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	a, err := ResolveSource(ctx, store, SourceDir, "/docs/a", "a")
	if err != nil {
		t.Fatalf("resolve a: %v", err)
	}
	b, err := ResolveSource(ctx, store, SourceDir, "/docs/b", "b")
	if err != nil {
		t.Fatalf("resolve b: %v", err)
	}
	if a.ID == b.ID {
		t.Error("expected distinct sources for distinct uris")
	}
}

func TestDetectOverlapsDirPathPrefix(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	root, err := store.InsertSource(ctx, string(SourceDir), "/docs", "root", "")
	if err != nil {
		t.Fatalf("insert root: %v", err)
	}
	nested, err := store.InsertSource(ctx, string(SourceDir), "/docs/sub", "sub", "")
	if err != nil {
		t.Fatalf("insert nested: %v", err)
	}

	overlaps, err := DetectOverlaps(ctx, store, SourceDir, nested.ID, nested.URI)
	if err != nil {
		t.Fatalf("detect overlaps: %v", err)
	}
	if len(overlaps) != 1 || overlaps[0].SourceID != root.ID || overlaps[0].Relation != RelationSubsetOf {
		t.Fatalf("overlaps = %+v, want a single SubsetOf overlap against %s", overlaps, root.ID)
	}

	reverse, err := DetectOverlaps(ctx, store, SourceDir, root.ID, root.URI)
	if err != nil {
		t.Fatalf("detect reverse overlaps: %v", err)
	}
	if len(reverse) != 1 || reverse[0].Relation != RelationSupersetOf {
		t.Fatalf("reverse overlaps = %+v, want a single SupersetOf overlap", reverse)
	}
}

func TestDetectOverlapsURLRequiresSameHost(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	a, err := store.InsertSource(ctx, string(SourceURL), "https://example.com/docs", "a", "")
	if err != nil {
		t.Fatalf("insert a: %v", err)
	}
	if _, err := store.InsertSource(ctx, string(SourceURL), "https://other.com/docs", "b", ""); err != nil {
		t.Fatalf("insert b: %v", err)
	}
	same, err := store.InsertSource(ctx, string(SourceURL), "https://example.com/docs/guide", "c", "")
	if err != nil {
		t.Fatalf("insert c: %v", err)
	}

	overlaps, err := DetectOverlaps(ctx, store, SourceURL, same.ID, same.URI)
	if err != nil {
		t.Fatalf("detect overlaps: %v", err)
	}
	if len(overlaps) != 1 || overlaps[0].SourceID != a.ID {
		t.Fatalf("overlaps = %+v, want a single overlap against %s (different host must not overlap)", overlaps, a.ID)
	}
}

func TestDetectOverlapsIdentical(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	a, err := store.InsertSource(ctx, string(SourceDir), "/docs", "a", "")
	if err != nil {
		t.Fatalf("insert a: %v", err)
	}
	// Simulate a caller re-checking overlaps for a uri identical to an
	// existing source but under a different candidate id.
	overlaps, err := DetectOverlaps(ctx, store, SourceDir, "not-"+a.ID, a.URI)
	if err != nil {
		t.Fatalf("detect overlaps: %v", err)
	}
	if len(overlaps) != 1 || overlaps[0].Relation != RelationIdentical {
		t.Fatalf("overlaps = %+v, want a single Identical overlap", overlaps)
	}
}
