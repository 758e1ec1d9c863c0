// Package embedder converts chunk and query text into dense vectors.
// Implementations are polymorphic over an optional capability set —
// embedding images or image/text pairs — checked at call sites via a
// type assertion rather than through a shared interface method, so a
// caller that only needs text embedding never has to know which
// concrete backend it holds.
package embedder

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/librarian/librarian/internal/librarianerr"
)

// Embedder is the capability every backend must provide: a fixed
// output dimension and length-/order-preserving batch text embedding.
type Embedder interface {
	// Dimension is the fixed length of every vector Embed returns.
	Dimension() int
	// Embed converts texts into vectors, one per input, in the same
	// order. Empty input returns empty output.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// ImageEmbedder is an optional capability for backends that can embed
// raw image bytes into the same vector space as their text embeddings.
type ImageEmbedder interface {
	EmbedImage(ctx context.Context, images [][]byte) ([][]float32, error)
}

// ImageTextEmbedder is an optional capability for backends that embed
// an (image, caption) pair jointly, for multimodal retrieval.
type ImageTextEmbedder interface {
	EmbedImageText(ctx context.Context, images [][]byte, texts []string) ([][]float32, error)
}

// These constants bound the retry-with-backoff policy applied around a
// transient HTTP failure: 2 retries, exponential backoff starting at
// 200ms.
const (
	defaultRetries    = 2
	defaultBaseDelay  = 200 * time.Millisecond
	backoffMultiplier = 2
)

// withRetry calls fn up to retries+1 times, backing off exponentially
// from baseDelay between attempts, stopping early if ctx is canceled.
// It is the single retry policy every HTTP-backed embedder in this
// package shares.
func withRetry(ctx context.Context, retries int, baseDelay time.Duration, fn func() ([][]float32, error)) ([][]float32, error) {
	var lastErr error
	delay := baseDelay
	for attempt := 0; attempt <= retries; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err
		if attempt == retries {
			break
		}
		jitter := time.Duration(rand.Int64N(int64(delay) / 4))
		select {
		case <-ctx.Done():
			return nil, librarianerr.New(librarianerr.KindHTTP, ctx.Err())
		case <-time.After(delay + jitter):
		}
		delay *= backoffMultiplier
	}
	return nil, librarianerr.New(librarianerr.KindEmbedding, lastErr)
}
