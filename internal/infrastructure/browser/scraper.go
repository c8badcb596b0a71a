package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"HSEWrapped/internal/apperr"
	"HSEWrapped/internal/infrastructure/showcase"
	"HSEWrapped/internal/ports"
)

const viewCountSelector = ".view-count-text"

// ViewScraper reads the rendered view counter from a showcase project page.
type ViewScraper struct {
	pool       *Pool
	navTimeout time.Duration
	viewWait   time.Duration
	settle     time.Duration
}

var _ ports.ViewScraper = (*ViewScraper)(nil)

// NewViewScraper uses the pool's browser config for its timings.
func NewViewScraper(pool *Pool) *ViewScraper {
	return &ViewScraper{
		pool:       pool,
		navTimeout: pool.cfg.NavTimeout,
		viewWait:   pool.cfg.ViewWait,
		settle:     pool.cfg.SettleTime,
	}
}

// ScrapeViews loads pageURL, waits a bounded time for the counter element
// and parses its text. A page without the element is an error.
func (s *ViewScraper) ScrapeViews(ctx context.Context, pageURL string) (int, error) {
	var text string
	err := s.pool.Run(ctx,
		bounded(s.navTimeout, chromedp.Navigate(pageURL)),
		chromedp.Sleep(s.settle),
		bounded(s.viewWait, chromedp.WaitVisible(viewCountSelector, chromedp.ByQuery)),
		chromedp.Text(viewCountSelector, &text, chromedp.ByQuery),
	)
	if err != nil {
		return 0, apperr.E("browser.ScrapeViews", apperr.ViewFetch, fmt.Errorf("scrape %s: %w", pageURL, err))
	}
	return showcase.ParseViewCount(strings.TrimSpace(text)), nil
}

// bounded runs action with its own timeout; zero means no extra bound.
func bounded(timeout time.Duration, action chromedp.Action) chromedp.Action {
	if timeout <= 0 {
		return action
	}
	return chromedp.ActionFunc(func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return action.Do(ctx)
	})
}
