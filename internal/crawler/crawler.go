// Package crawler implements the breadth-first URL walker that backs
// the Url ingestion producer: robots-aware, rate-limited, SPA-detecting
// fetch of a document tree rooted at a seed URL.
package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/librarian/librarian/internal/librarianerr"
)

// Config holds the policy knobs for one crawl.
type Config struct {
	MaxDepth          int
	MaxPages          int
	AllowedDomains    []string
	PathPrefix        string
	RateLimitPerHost  float64
	UserAgent         string
	TimeoutSecs       int
	RespectRobotsTxt  bool
	AutoJSRendering   bool
	JSPageLoadTimeout time.Duration
	JSRenderWait      time.Duration
	JSNoSandbox       bool
}

// CrawledPage is one fetched and classified document.
type CrawledPage struct {
	URL         string
	Content     []byte
	ContentType string
	Title       string
	Links       []string
	Depth       int
}

// queueEntry is one pending breadth-first traversal item.
type queueEntry struct {
	url   string
	depth int
}

// Crawler walks a single host tree, sharing robots/rate-limit/visited
// state across the whole traversal. It is not safe for concurrent use
// by multiple goroutines calling Crawl simultaneously — spec §5
// schedules ingestion one document at a time per source.
type Crawler struct {
	cfg      Config
	client   *http.Client
	robots   *robotsCache
	limiters *hostLimiters
	renderer *renderer

	mu             sync.Mutex
	visited        map[string]bool
	hashAware      bool
	hashEnqueued   int
	hashOverflowed bool

	log *slog.Logger
}

// New constructs a Crawler. A headless renderer is created only when
// cfg.AutoJSRendering is set; a page that scores as an SPA while no
// renderer is available keeps its static HTML and a warning is logged.
func New(cfg Config, log *slog.Logger) *Crawler {
	if log == nil {
		log = slog.Default()
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	c := &Crawler{
		cfg: cfg,
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("crawler: stopped after 5 redirects")
				}
				return nil
			},
		},
		robots:   newRobotsCache(),
		limiters: newHostLimiters(cfg.RateLimitPerHost),
		visited:  make(map[string]bool),
		log:      log,
	}
	if cfg.AutoJSRendering {
		c.renderer = newRenderer(cfg.JSPageLoadTimeout, cfg.JSNoSandbox)
	}
	return c
}

// Close releases the headless renderer, if one was created.
func (c *Crawler) Close() {
	if c.renderer != nil {
		c.renderer.close()
	}
}

// PageCallback is invoked once per successfully fetched page. Return
// false to stop the crawl early.
type PageCallback func(page CrawledPage) bool

// Crawl runs the breadth-first traversal from seed, invoking cb for
// every fetched page, honoring the policy knobs in c.cfg, and
// returning when the queue is exhausted, a termination condition is
// reached, or cb returns false. cb may be nil, in which case every
// page is kept and the crawl only stops on its own termination
// conditions.
func (c *Crawler) Crawl(ctx context.Context, seed string, cb PageCallback) ([]CrawledPage, error) {
	if cb == nil {
		cb = func(CrawledPage) bool { return true }
	}
	seedURL, err := url.Parse(seed)
	if err != nil || seedURL.Host == "" {
		return nil, librarianerr.New(librarianerr.KindURLParse, fmt.Errorf("crawler: invalid seed url %q", seed))
	}

	allowed := c.cfg.AllowedDomains
	if len(allowed) == 0 {
		allowed = []string{seedURL.Host}
	}
	pathPrefix := c.cfg.PathPrefix
	if pathPrefix == "" {
		pathPrefix = seedDirectory(seedURL)
	}

	maxPages := c.cfg.MaxPages
	if maxPages <= 0 {
		maxPages = 1000
	}
	attemptCap := 5 * maxPages
	perPageBudget := float64(c.cfg.TimeoutSecs)
	if jsBudget := c.cfg.JSPageLoadTimeout.Seconds(); jsBudget > perPageBudget {
		perPageBudget = jsBudget
	}
	deadline := time.Now().Add(time.Duration(float64(maxPages)*perPageBudget) * time.Second)

	queue := []queueEntry{{url: seed, depth: 0}}
	var pages []CrawledPage
	attempts := 0

	for len(queue) > 0 {
		entry := queue[0]
		queue = queue[1:]

		if entry.depth > c.cfg.MaxDepth || len(pages) >= maxPages {
			continue
		}
		if attempts >= attemptCap {
			c.log.Warn("crawler: attempt cap reached, stopping crawl", slog.Int("attempts", attempts))
			break
		}
		if time.Now().After(deadline) {
			c.log.Warn("crawler: time budget exceeded, stopping crawl")
			break
		}

		normalized := c.normalize(entry.url)
		c.mu.Lock()
		already := c.visited[normalized]
		if !already {
			c.visited[normalized] = true
		}
		c.mu.Unlock()
		if already {
			continue
		}

		attempts++
		page, links, err := c.fetchOne(ctx, entry.url, entry.depth)
		if err != nil {
			c.log.Warn("crawler: fetch failed", slog.String("url", entry.url), slog.Any("error", err))
			continue
		}
		pages = append(pages, *page)
		if !cb(*page) {
			break
		}

		for _, link := range links {
			linkURL, err := url.Parse(link)
			if err != nil || linkURL.Host == "" {
				continue
			}
			if !hostAllowed(linkURL.Host, allowed) {
				continue
			}
			if !strings.HasPrefix(linkURL.Path, pathPrefix) {
				continue
			}
			if !shouldCrawlURL(link) {
				continue
			}
			if isHashRoute(link) {
				c.mu.Lock()
				c.hashAware = true
				if c.hashEnqueued >= maxPages {
					if !c.hashOverflowed {
						c.hashOverflowed = true
						c.log.Warn("crawler: hash-route enqueue cap reached", slog.Int("cap", maxPages))
					}
					c.mu.Unlock()
					continue
				}
				c.hashEnqueued++
				c.mu.Unlock()
			}
			queue = append(queue, queueEntry{url: link, depth: entry.depth + 1})
		}
	}

	return pages, nil
}

func seedDirectory(u *url.URL) string {
	idx := strings.LastIndex(u.Path, "/")
	if idx < 0 {
		return "/"
	}
	return u.Path[:idx+1]
}

func hostAllowed(host string, allowed []string) bool {
	for _, a := range allowed {
		if strings.EqualFold(host, a) {
			return true
		}
	}
	return false
}
