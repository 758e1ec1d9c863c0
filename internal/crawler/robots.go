package crawler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/temoto/robotstxt"
)

// robotsCache holds one parsed robots.txt per host, fetched lazily and
// shared across the crawl under a single-writer/many-reader mutex, per
// spec §5's shared-resource policy.
type robotsCache struct {
	mu    sync.RWMutex
	rules map[string]*robotstxt.RobotsData
}

func newRobotsCache() *robotsCache {
	return &robotsCache{rules: make(map[string]*robotstxt.RobotsData)}
}

// allowed reports whether userAgent may fetch target's path, fetching
// and caching target.Host's robots.txt on first use. A fetch failure
// is treated as allow-all, per spec §4.7 step 2.
func (c *robotsCache) allowed(ctx context.Context, client *http.Client, target *url.URL, userAgent string) (bool, error) {
	rules, err := c.get(ctx, client, target.Host, target.Scheme)
	if err != nil {
		return true, err
	}
	group := rules.FindGroup(userAgent)
	return group.Test(target.Path), nil
}

func (c *robotsCache) get(ctx context.Context, client *http.Client, host, scheme string) (*robotstxt.RobotsData, error) {
	c.mu.RLock()
	rules, ok := c.rules[host]
	c.mu.RUnlock()
	if ok {
		return rules, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if rules, ok := c.rules[host]; ok {
		return rules, nil
	}

	robotsURL := scheme + "://" + host + "/robots.txt"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("crawler: build robots.txt request for %s: %w", host, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		allowAll, _ := robotstxt.FromStatusAndBytes(http.StatusNotFound, nil)
		c.rules[host] = allowAll
		return nil, fmt.Errorf("crawler: fetch robots.txt for %s: %w", host, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("crawler: read robots.txt for %s: %w", host, err)
	}

	parsed, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil, fmt.Errorf("crawler: parse robots.txt for %s: %w", host, err)
	}
	c.rules[host] = parsed
	return parsed, nil
}
