// Package librarianerr defines the error kinds librarian's core
// components raise, so callers (such as the CLI) can
// branch on failure category without parsing error strings.
package librarianerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error into one of librarian's documented failure
// categories (spec §7). It is not a Go type hierarchy — every Kind is
// carried by the single Error struct below.
type Kind string

const (
	KindConfig                 Kind = "config"
	KindDatabase               Kind = "database"
	KindQdrant                 Kind = "qdrant"
	KindEmbedding              Kind = "embedding"
	KindCrawl                  Kind = "crawl"
	KindParse                  Kind = "parse"
	KindIO                     Kind = "io"
	KindHTTP                   Kind = "http"
	KindURLParse               Kind = "url_parse"
	KindJSON                   Kind = "json"
	KindTomlParse              Kind = "toml_parse"
	KindTomlSerialize          Kind = "toml_serialize"
	KindSourceNotFound         Kind = "source_not_found"
	KindDocumentNotFound       Kind = "document_not_found"
	KindNotInitialized         Kind = "not_initialized"
	KindAlreadyInitialized     Kind = "already_initialized"
	KindInvalidPath            Kind = "invalid_path"
	KindRateLimited            Kind = "rate_limited"
	KindRobotsDisallowed       Kind = "robots_disallowed"
	KindMaxDepthExceeded       Kind = "max_depth_exceeded"
	KindMaxPagesExceeded       Kind = "max_pages_exceeded"
	KindUnsupportedContentType Kind = "unsupported_content_type"
	KindMcpProtocol            Kind = "mcp_protocol"
	KindOther                  Kind = "other"
)

// Error wraps an underlying error with a Kind and optional structured
// fields for caller-side branching (errors.Is/errors.As) and
// human-readable rendering.
type Error struct {
	Kind   Kind
	Err    error
	Fields map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

// Unwrap allows errors.Is/errors.As to see through to the underlying error.
func (e *Error) Unwrap() error { return e.Err }

// New constructs an *Error of the given kind wrapping err.
func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Newf constructs an *Error of the given kind from a format string.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// WithField attaches a structured field to the error and returns it,
// for fluent construction: librarianerr.New(...).WithField("url", u).
func (e *Error) WithField(key string, value any) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]any)
	}
	e.Fields[key] = value
	return e
}

// KindOf returns the Kind of err if it (or something it wraps) is an
// *Error, and KindOther otherwise.
func KindOf(err error) Kind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return KindOther
}
