// Package fetch loads pages from the interview source, either through a
// headless browser or a plain HTTP client, and turns HTML into clean text.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// DefaultTimeout is the default per-page load timeout.
const DefaultTimeout = 30 * time.Second

// DefaultUserAgent is the user agent string for page loads.
const DefaultUserAgent = "Mozilla/5.0 (compatible; IntBuddy/1.0)"

// Renderer loads a URL and returns the rendered HTML document.
type Renderer interface {
	// Render returns the HTML of a listing or generic page.
	Render(ctx context.Context, url string) (string, error)
	// RenderDetail returns the HTML of an article page after revealing any
	// truncated "continue reading" content.
	RenderDetail(ctx context.Context, url string) (string, error)
}

// Result holds the raw content from a URL fetch.
type Result struct {
	URL         string
	HTML        string
	ContentType string
	StatusCode  int
}

// Error represents an error during URL fetching.
type Error struct {
	URL     string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fetch error for %s: %s: %v", e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("fetch error for %s: %s", e.URL, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Options configures the HTTP fetch behavior.
type Options struct {
	Timeout   time.Duration
	UserAgent string
	Headers   map[string]string
}

// DefaultOptions returns sensible defaults for fetching.
func DefaultOptions() *Options {
	return &Options{
		Timeout:   DefaultTimeout,
		UserAgent: DefaultUserAgent,
	}
}

// URL retrieves HTML content from a URL.
func URL(ctx context.Context, urlStr string, opts *Options) (*Result, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	parsedURL, err := url.Parse(urlStr)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, &Error{
			URL:     urlStr,
			Message: "invalid URL",
			Cause:   err,
		}
	}

	client := &http.Client{
		Timeout: opts.Timeout,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, &Error{
			URL:     urlStr,
			Message: "failed to create request",
			Cause:   err,
		}
	}

	req.Header.Set("User-Agent", opts.UserAgent)
	for key, value := range opts.Headers {
		req.Header.Set(key, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &Error{
			URL:     urlStr,
			Message: "HTTP request failed",
			Cause:   err,
		}
	}
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{
			URL:     urlStr,
			Message: "failed to read response body",
			Cause:   err,
		}
	}

	result := &Result{
		URL:         urlStr,
		HTML:        string(bodyBytes),
		ContentType: resp.Header.Get("Content-Type"),
		StatusCode:  resp.StatusCode,
	}

	if resp.StatusCode != http.StatusOK {
		return result, &Error{
			URL:     urlStr,
			Message: fmt.Sprintf("HTTP status %d", resp.StatusCode),
		}
	}

	return result, nil
}

// HTTPRenderer implements Renderer with plain HTTP requests. It suits
// server-rendered mirrors of the source site, where nothing is truncated
// client-side, so RenderDetail is the same as Render.
type HTTPRenderer struct {
	Options *Options
}

// NewHTTPRenderer creates an HTTPRenderer. A nil opts uses DefaultOptions.
func NewHTTPRenderer(opts *Options) *HTTPRenderer {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &HTTPRenderer{Options: opts}
}

// Render fetches the page over HTTP.
func (r *HTTPRenderer) Render(ctx context.Context, urlStr string) (string, error) {
	result, err := URL(ctx, urlStr, r.Options)
	if err != nil {
		return "", err
	}
	return result.HTML, nil
}

// RenderDetail fetches the page over HTTP.
func (r *HTTPRenderer) RenderDetail(ctx context.Context, urlStr string) (string, error) {
	return r.Render(ctx, urlStr)
}

// ParseHTML parses an HTML string into a goquery document.
func ParseHTML(html string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return doc, nil
}

// SelectionText returns the whitespace-normalized text of a selection,
// keeping one line per non-empty line of the rendered text.
func SelectionText(sel *goquery.Selection) string {
	if sel == nil || sel.Length() == 0 {
		return ""
	}
	return CleanWhitespace(sel.Text())
}

// ExtractMainText returns the text of the first selection matching one of
// contentSelectors, or "" when none matches. Scripts, styles, navigation and
// ad containers are removed from doc first, along with noiseSelectors.
func ExtractMainText(doc *goquery.Document, contentSelectors []string, noiseSelectors ...string) string {
	doc.Find("nav, footer, header, script, style, noscript, .ad, .advertisement, .ads, .cookie-banner, .popup").Remove()
	if len(noiseSelectors) > 0 {
		doc.Find(strings.Join(noiseSelectors, ", ")).Remove()
	}

	for _, selector := range contentSelectors {
		if selection := doc.Find(selector); selection.Length() > 0 {
			return SelectionText(selection.First())
		}
	}
	return ""
}

// CleanWhitespace trims every line and drops empty ones.
func CleanWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			cleaned = append(cleaned, line)
		}
	}
	return strings.Join(cleaned, "\n")
}
