package ingestion

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestDirProducerWalksAndFiltersFiles(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "README.md"), "# hello")
	writeFile(t, filepath.Join(root, "image.png"), "not text")
	writeFile(t, filepath.Join(root, "sub", "guide.md"), "# guide")
	writeFile(t, filepath.Join(root, ".gitignore"), "ignored/\n*.log\n")
	writeFile(t, filepath.Join(root, "ignored", "skip.md"), "should not appear")
	writeFile(t, filepath.Join(root, "debug.log"), "should not appear either")

	var seen []string
	p := DirProducer{Root: root}
	err := p.Produce(context.Background(), func(doc Document) (bool, error) {
		seen = append(seen, doc.URI)
		return true, nil
	})
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}

	want := map[string]bool{"README.md": true, filepath.ToSlash(filepath.Join("sub", "guide.md")): true}
	if len(seen) != len(want) {
		t.Fatalf("seen = %v, want exactly %v", seen, want)
	}
	for _, uri := range seen {
		if !want[uri] {
			t.Errorf("unexpected document emitted: %s", uri)
		}
	}
}

func TestDirProducerStopsOnEmitFalse(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.md"), "a")
	writeFile(t, filepath.Join(root, "b.md"), "b")

	calls := 0
	p := DirProducer{Root: root}
	err := p.Produce(context.Background(), func(Document) (bool, error) {
		calls++
		return false, nil
	})
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (stop after first emit)", calls)
	}
}
