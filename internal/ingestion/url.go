package ingestion

import (
	"context"
	"log/slog"

	"github.com/librarian/librarian/internal/crawler"
)

// URLProducer drives a crawler.Crawler from a single seed URL,
// translating each crawled page into a Document as it is fetched.
type URLProducer struct {
	Seed    string
	Crawler *crawler.Crawler
}

// Produce implements Producer by running the crawl and forwarding
// each page to emit as it arrives, honoring emit's early-stop signal
// by stopping the crawl itself.
func (u URLProducer) Produce(ctx context.Context, emit func(Document) (bool, error)) error {
	var emitErr error
	_, err := u.Crawler.Crawl(ctx, u.Seed, func(page crawler.CrawledPage) bool {
		keepGoing, err := emit(Document{URI: page.URL, Raw: page.Content, MIME: page.ContentType})
		if err != nil {
			emitErr = err
			return false
		}
		return keepGoing
	})
	if emitErr != nil {
		return emitErr
	}
	return err
}

// NewURLProducer builds a URLProducer with its own Crawler instance
// from cfg. The caller is responsible for calling Close on the
// returned crawler via the returned closer once the run completes.
func NewURLProducer(seed string, cfg crawler.Config, log *slog.Logger) (*URLProducer, func()) {
	c := crawler.New(cfg, log)
	return &URLProducer{Seed: seed, Crawler: c}, c.Close
}
