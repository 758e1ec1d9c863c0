package crawler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/librarian/librarian/internal/librarianerr"
)

// renderer wraps a single long-lived headless Chrome instance. All
// renders are serialized behind mu, per spec §5's "headless browser is
// serialized by a single mutex" shared-resource policy — this module
// keeps one allocator alive across the whole crawl rather than
// spinning one up per page.
type renderer struct {
	mu          sync.Mutex
	allocCtx    context.Context
	allocCancel context.CancelFunc
	loadTimeout time.Duration
}

func newRenderer(loadTimeout time.Duration, noSandbox bool) *renderer {
	if loadTimeout == 0 {
		loadTimeout = 30 * time.Second
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.Flag("headless", true))
	if noSandbox {
		opts = append(opts, chromedp.Flag("no-sandbox", true))
	}
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
	return &renderer{allocCtx: allocCtx, allocCancel: cancel, loadTimeout: loadTimeout}
}

// render navigates to rawURL in the shared headless browser, waits for
// the page to settle, sleeps renderWait for client-side hydration, and
// returns the rendered outer HTML.
func (r *renderer) render(ctx context.Context, rawURL string, renderWait time.Duration) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tabCtx, tabCancel := chromedp.NewContext(r.allocCtx)
	defer tabCancel()

	tabCtx, cancel := context.WithTimeout(tabCtx, r.loadTimeout)
	defer cancel()

	stop := context.AfterFunc(ctx, tabCancel)
	defer stop()

	var outerHTML string
	actions := []chromedp.Action{
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body"),
	}
	if renderWait > 0 {
		actions = append(actions, chromedp.Sleep(renderWait))
	}
	actions = append(actions, chromedp.OuterHTML("html", &outerHTML))

	if err := chromedp.Run(tabCtx, actions...); err != nil {
		return nil, librarianerr.New(librarianerr.KindCrawl, fmt.Errorf("crawler: render %s: %w", rawURL, err))
	}
	return []byte(outerHTML), nil
}

func (r *renderer) close() {
	r.allocCancel()
}
