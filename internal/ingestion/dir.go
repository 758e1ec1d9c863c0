package ingestion

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/librarian/librarian/internal/librarianerr"
)

// skipExtensions lists file extensions that are never worth parsing
// as documentation: images, archives, fonts, and lockfiles.
var skipExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true, ".ico": true, ".webp": true, ".svg": true,
	".zip": true, ".tar": true, ".gz": true, ".bz2": true, ".xz": true, ".7z": true, ".rar": true,
	".woff": true, ".woff2": true, ".ttf": true, ".otf": true, ".eot": true,
	".lock": true, ".sum": true,
	".exe": true, ".dll": true, ".so": true, ".dylib": true, ".bin": true,
	".mp3": true, ".mp4": true, ".mov": true, ".avi": true, ".wav": true, ".pdf": true,
}

var lockfileNames = map[string]bool{
	"go.sum": true, "package-lock.json": true, "yarn.lock": true, "pnpm-lock.yaml": true,
	"Cargo.lock": true, "Gemfile.lock": true, "poetry.lock": true,
}

// DirProducer recursively walks Root, honoring .gitignore and
// .git/info/exclude, and emits every file that is not excluded by
// extension, name, or binary content.
type DirProducer struct {
	Root string
}

// Produce implements Producer for a local directory tree.
func (d DirProducer) Produce(ctx context.Context, emit func(Document) (bool, error)) error {
	root := d.Root
	matcher, err := loadIgnoreMatcher(root)
	if err != nil {
		return err
	}

	return filepath.WalkDir(root, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		relSlash := filepath.ToSlash(rel)

		if entry.IsDir() {
			if strings.HasPrefix(entry.Name(), ".") {
				return filepath.SkipDir
			}
			if matcher != nil && matcher.MatchesPath(relSlash+"/") {
				return filepath.SkipDir
			}
			return nil
		}

		if strings.HasPrefix(entry.Name(), ".") {
			return nil
		}
		if matcher != nil && matcher.MatchesPath(relSlash) {
			return nil
		}
		if shouldSkipFile(entry.Name()) {
			return nil
		}

		raw, err := os.ReadFile(path)
		if err != nil {
			return librarianerr.New(librarianerr.KindIO, fmt.Errorf("ingestion: read %s: %w", path, err))
		}

		keepGoing, emitErr := emit(Document{URI: relSlash, Raw: raw})
		if emitErr != nil {
			return emitErr
		}
		if !keepGoing {
			return filepath.SkipAll
		}
		return nil
	})
}

func shouldSkipFile(name string) bool {
	if lockfileNames[name] {
		return true
	}
	ext := strings.ToLower(filepath.Ext(name))
	return skipExtensions[ext]
}

// loadIgnoreMatcher merges the root .gitignore and .git/info/exclude
// into a single matcher. It does not implement git's full per-
// directory cascading semantics; patterns are matched against paths
// relative to root, which covers the common case of a repository-root
// .gitignore.
func loadIgnoreMatcher(root string) (*ignore.GitIgnore, error) {
	var lines []string
	for _, rel := range []string{".gitignore", filepath.Join(".git", "info", "exclude")} {
		b, err := os.ReadFile(filepath.Join(root, rel))
		if err != nil {
			continue
		}
		lines = append(lines, strings.Split(string(b), "\n")...)
	}
	if len(lines) == 0 {
		return nil, nil
	}
	return ignore.CompileIgnoreLines(lines...), nil
}
