package fetch

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// DefaultSettleDelay is how long a page is given to run its scripts after
// the body is ready.
const DefaultSettleDelay = 3 * time.Second

// continueReadingScript clicks the "continue reading" call to action if the
// article is truncated. It reports whether a button was found.
const continueReadingScript = `(() => {
	const btn = document.querySelector('#continue-reading-ie-cta-container button');
	if (!btn) { return false; }
	btn.click();
	return true;
})()`

// chromeCandidates are the binary names looked up on PATH.
var chromeCandidates = []string{
	"chromium",
	"chromium-browser",
	"google-chrome",
	"google-chrome-stable",
	"headless-shell",
}

// BrowserNotFoundError is returned when no Chrome/Chromium binary can be found.
// Nothing can be scraped without one, so callers treat it as fatal.
type BrowserNotFoundError struct {
	Tried []string
}

func (e *BrowserNotFoundError) Error() string {
	return fmt.Sprintf("chrome/chromium not found (tried %s): install Chromium or set INTBUDDY_CHROME_PATH to the browser binary",
		strings.Join(e.Tried, ", "))
}

// CheckBrowser resolves the browser binary. An explicit path must exist;
// otherwise the well-known binary names are looked up on PATH.
func CheckBrowser(path string) (string, error) {
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", &BrowserNotFoundError{Tried: []string{path}}
		}
		return path, nil
	}
	for _, name := range chromeCandidates {
		if resolved, err := exec.LookPath(name); err == nil {
			return resolved, nil
		}
	}
	return "", &BrowserNotFoundError{Tried: chromeCandidates}
}

// BrowserOptions configures headless browser rendering.
type BrowserOptions struct {
	ExecPath    string
	Timeout     time.Duration
	SettleDelay time.Duration
	UserAgent   string
}

// BrowserRenderer renders pages in headless Chrome. Every call starts its own
// browser and releases it before returning; sessions are never shared.
type BrowserRenderer struct {
	opts   BrowserOptions
	logger *zap.Logger
}

// NewBrowserRenderer creates a renderer, filling zero options with defaults.
func NewBrowserRenderer(opts BrowserOptions, logger *zap.Logger) *BrowserRenderer {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.SettleDelay < 0 {
		opts.SettleDelay = 0
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BrowserRenderer{opts: opts, logger: logger}
}

// Render loads the page and returns its rendered HTML.
func (b *BrowserRenderer) Render(ctx context.Context, url string) (string, error) {
	return b.render(ctx, url, false)
}

// RenderDetail loads the page, expands truncated content and returns the HTML.
func (b *BrowserRenderer) RenderDetail(ctx context.Context, url string) (string, error) {
	return b.render(ctx, url, true)
}

func (b *BrowserRenderer) render(ctx context.Context, url string, expand bool) (string, error) {
	b.logger.Debug("starting headless browser", zap.String("url", url))

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(1920, 1080),
		chromedp.UserAgent(b.opts.UserAgent),
	)
	if b.opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(b.opts.ExecPath))
	}

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	browserCtx, cancel = context.WithTimeout(browserCtx, b.opts.Timeout)
	defer cancel()

	var html string
	actions := []chromedp.Action{
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
		chromedp.Sleep(b.opts.SettleDelay),
	}
	if expand {
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			var clicked bool
			// A page without the button is the normal case.
			if err := chromedp.Evaluate(continueReadingScript, &clicked).Do(ctx); err != nil {
				b.logger.Debug("continue reading expansion failed", zap.String("url", url), zap.Error(err))
				return nil
			}
			if clicked {
				return chromedp.Sleep(time.Second).Do(ctx)
			}
			return nil
		}))
	}
	actions = append(actions, chromedp.OuterHTML("html", &html))

	if err := chromedp.Run(browserCtx, actions...); err != nil {
		return "", &Error{URL: url, Message: "browser rendering failed", Cause: err}
	}

	b.logger.Debug("rendered page", zap.String("url", url), zap.Int("bytes", len(html)))
	return html, nil
}
