package crawler

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/andybalholm/brotli"
	"golang.org/x/net/html"

	"github.com/librarian/librarian/internal/librarianerr"
)

// FetchPage runs the single-URL fetch pipeline (robots check, rate
// limit, HTTP GET with decoding, SPA-aware rendering) for a URL
// discovered outside the breadth-first traversal, such as a sitemap
// entry. depth is recorded on the returned page but otherwise unused.
func (c *Crawler) FetchPage(ctx context.Context, rawURL string, depth int) (*CrawledPage, error) {
	page, _, err := c.fetchOne(ctx, rawURL, depth)
	return page, err
}

// FetchAsset runs the robots-and-rate-limit-gated GET used for
// FetchPage, but returns the raw response bytes and content type
// without any HTML decoding — the path multimodal ingestion uses to
// pull image bytes referenced by a parsed page's Media list.
func (c *Crawler) FetchAsset(ctx context.Context, rawURL string) ([]byte, string, error) {
	target, err := url.Parse(rawURL)
	if err != nil || target.Host == "" {
		return nil, "", librarianerr.New(librarianerr.KindURLParse, fmt.Errorf("crawler: invalid url %q", rawURL))
	}

	if c.cfg.RespectRobotsTxt {
		allowed, err := c.robots.allowed(ctx, c.client, target, c.cfg.UserAgent)
		if err != nil {
			c.log.Warn("crawler: robots.txt fetch failed, treating as allow-all",
				slog.String("host", target.Host), slog.Any("error", err))
		} else if !allowed {
			return nil, "", librarianerr.Newf(librarianerr.KindRobotsDisallowed, "crawler: %s disallowed by robots.txt", rawURL)
		}
	}

	if err := c.limiters.wait(ctx, target.Host); err != nil {
		return nil, "", librarianerr.New(librarianerr.KindRateLimited, err)
	}

	return c.httpGet(ctx, rawURL)
}

// fetchOne runs the full single-URL fetch pipeline: robots check, rate
// limit wait, HTTP GET with decoding, SPA-aware rendering, and link
// extraction.
func (c *Crawler) fetchOne(ctx context.Context, rawURL string, depth int) (*CrawledPage, []string, error) {
	target, err := url.Parse(rawURL)
	if err != nil || target.Host == "" {
		return nil, nil, librarianerr.New(librarianerr.KindURLParse, fmt.Errorf("crawler: invalid url %q", rawURL))
	}

	if c.cfg.RespectRobotsTxt {
		allowed, err := c.robots.allowed(ctx, c.client, target, c.cfg.UserAgent)
		if err != nil {
			c.log.Warn("crawler: robots.txt fetch failed, treating as allow-all",
				slog.String("host", target.Host), slog.Any("error", err))
		} else if !allowed {
			return nil, nil, librarianerr.Newf(librarianerr.KindRobotsDisallowed, "crawler: %s disallowed by robots.txt", rawURL)
		}
	}

	if err := c.limiters.wait(ctx, target.Host); err != nil {
		return nil, nil, librarianerr.New(librarianerr.KindRateLimited, err)
	}

	body, contentType, err := c.httpGet(ctx, rawURL)
	if err != nil {
		return nil, nil, err
	}

	page := &CrawledPage{URL: rawURL, Content: body, ContentType: contentType, Depth: depth}

	var links []string
	if strings.Contains(contentType, "html") {
		html := body
		if c.cfg.AutoJSRendering {
			score := scoreSPA(html)
			if score.isSPA() && c.renderer != nil {
				rendered, err := c.renderer.render(ctx, rawURL, c.cfg.JSRenderWait)
				if err != nil {
					c.log.Warn("crawler: headless render failed, falling back to static html",
						slog.String("url", rawURL), slog.Any("error", err))
				} else {
					html = rendered
				}
			} else if score.isSPA() {
				c.log.Warn("crawler: page looks like an SPA but no headless renderer is available, using static html",
					slog.String("url", rawURL))
			}
		}
		page.Content = html
		title, extractedLinks, hashLinks := extractLinksAndTitle(html, rawURL)
		page.Title = title
		links = append(extractedLinks, hashLinks...)
	}

	return page, links, nil
}

// httpGet performs a GET with the configured User-Agent and decodes a
// gzip or brotli response body, since Go's http.Transport only
// transparently decodes gzip (and only when the caller didn't set its
// own Accept-Encoding).
func (c *Crawler) httpGet(ctx context.Context, rawURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", librarianerr.New(librarianerr.KindHTTP, fmt.Errorf("crawler: build request: %w", err))
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept-Encoding", "gzip, br")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, "", librarianerr.New(librarianerr.KindHTTP, fmt.Errorf("crawler: request %s: %w", rawURL, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", librarianerr.Newf(librarianerr.KindHTTP, "crawler: %s returned status %d", rawURL, resp.StatusCode)
	}

	reader := io.Reader(resp.Body)
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, "", librarianerr.New(librarianerr.KindHTTP, fmt.Errorf("crawler: gzip decode %s: %w", rawURL, err))
		}
		defer gz.Close()
		reader = gz
	case "br":
		reader = brotli.NewReader(resp.Body)
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, "", librarianerr.New(librarianerr.KindHTTP, fmt.Errorf("crawler: read body %s: %w", rawURL, err))
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// extractLinksAndTitle walks the HTML document for <title> and <a
// href> link targets, resolving them against base, and separately
// returns any hash-route (href="#/...") links synthesized as internal
// links.
func extractLinksAndTitle(body []byte, base string) (title string, links []string, hashLinks []string) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return "", nil, nil
	}
	baseURL, _ := url.Parse(base)

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "title":
				if n.FirstChild != nil && n.FirstChild.Type == html.TextNode && title == "" {
					title = n.FirstChild.Data
				}
			case "a":
				for _, a := range n.Attr {
					if a.Key != "href" {
						continue
					}
					if strings.HasPrefix(a.Val, "#/") {
						if baseURL != nil {
							resolved := *baseURL
							resolved.Fragment = strings.TrimPrefix(a.Val, "#")
							hashLinks = append(hashLinks, resolved.String())
						}
						continue
					}
					if baseURL == nil {
						links = append(links, a.Val)
						continue
					}
					ref, err := url.Parse(a.Val)
					if err != nil {
						continue
					}
					links = append(links, baseURL.ResolveReference(ref).String())
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return title, links, hashLinks
}
