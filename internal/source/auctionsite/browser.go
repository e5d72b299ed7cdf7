package auctionsite

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

type BrowserConfig struct {
	Headless     bool
	UserAgent    string
	Timeout      time.Duration
	WaitSelector string
	ExecPath     string
}

// BrowserFetcher renders pages in a shared headless Chrome so listings built
// by client-side scripts are present in the returned HTML.
type BrowserFetcher struct {
	cfg         BrowserConfig
	allocCtx    context.Context
	cancelAlloc context.CancelFunc
	browserCtx  context.Context
	cancel      context.CancelFunc
}

// NewBrowserFetcher starts the browser. Close releases it.
func NewBrowserFetcher(cfg BrowserConfig) (*BrowserFetcher, error) {
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.WaitSelector == "" {
		cfg.WaitSelector = "body"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(cfg.UserAgent),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...any) {}))

	// tabs opened by Fetch share this browser
	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		cancelAlloc()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	return &BrowserFetcher{
		cfg:         cfg,
		allocCtx:    allocCtx,
		cancelAlloc: cancelAlloc,
		browserCtx:  browserCtx,
		cancel:      cancel,
	}, nil
}

// Fetch opens url in a new tab, waits for the wait selector and returns the
// document's outer HTML.
func (f *BrowserFetcher) Fetch(ctx context.Context, url string) (string, error) {
	tabCtx, cancelTab := chromedp.NewContext(f.browserCtx)
	defer cancelTab()

	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, f.cfg.Timeout)
	defer cancelTimeout()

	stop := context.AfterFunc(ctx, cancelTimeout)
	defer stop()

	var html string
	err := chromedp.Run(tabCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady(f.cfg.WaitSelector, chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("render page: %w", err)
	}
	return html, nil
}

// Close shuts down the browser.
func (f *BrowserFetcher) Close() {
	f.cancel()
	f.cancelAlloc()
}
