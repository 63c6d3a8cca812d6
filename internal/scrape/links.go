package scrape

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/jonathan/intbuddy/internal/fetch"
	"github.com/jonathan/intbuddy/internal/metrics"
	"github.com/jonathan/intbuddy/internal/types"
)

// DefaultListingURL is the interview experience listing page.
const DefaultListingURL = "https://www.naukri.com/code360/interview-experiences"

// Listing page selectors.
const (
	cardSelector   = "codingninjas-interview-experience-card-v2"
	titleSelector  = "a.interview-exp-title"
	pageNavAnchors = "codingninjas-page-nav-v2 a"
)

// CollectStatus describes how link collection ended.
type CollectStatus string

const (
	// CollectComplete means every requested page was read
	CollectComplete CollectStatus = "complete"
	// CollectExhausted means the source ran out of pages before the requested count
	CollectExhausted CollectStatus = "exhausted"
	// CollectPartial means a fault stopped collection; Links holds what was read before it
	CollectPartial CollectStatus = "partial"
)

// CollectResult is the outcome of a link collection. It never carries a hard
// failure: a fault is recorded in Err and the links gathered so far are kept.
type CollectResult struct {
	Links        []types.InterviewLink
	PagesVisited int
	Status       CollectStatus
	Err          error
}

// LinkCollector walks the filtered listing pages and gathers detail links.
type LinkCollector struct {
	renderer   fetch.Renderer
	listingURL string
	logger     *zap.Logger
}

// NewLinkCollector creates a collector. An empty listingURL uses DefaultListingURL.
func NewLinkCollector(renderer fetch.Renderer, listingURL string, logger *zap.Logger) *LinkCollector {
	if listingURL == "" {
		listingURL = DefaultListingURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LinkCollector{
		renderer:   renderer,
		listingURL: listingURL,
		logger:     logger,
	}
}

// Collect reads pages 1..pages of the listing filtered by company and role and
// returns the links found, deduplicated by URL in first-seen order.
func (c *LinkCollector) Collect(ctx context.Context, company, role string, pages int) CollectResult {
	if pages < 1 {
		pages = 1
	}

	result := CollectResult{Status: CollectComplete}
	seen := make(map[string]bool)

	for page := 1; page <= pages; page++ {
		c.logger.Info("collecting links", zap.Int("page", page))

		if err := ctx.Err(); err != nil {
			return c.partial(result, page, "context done", err)
		}

		pageURL, err := c.PageURL(company, role, page)
		if err != nil {
			return c.partial(result, page, "invalid listing URL", err)
		}

		html, err := c.renderer.Render(ctx, pageURL)
		if err != nil {
			return c.partial(result, page, "failed to render listing page", err)
		}

		links, hasNext, err := ParseListing(html, pageURL, page)
		if err != nil {
			return c.partial(result, page, "failed to parse listing page", err)
		}
		result.PagesVisited = page

		for _, link := range links {
			if seen[link.URL] {
				continue
			}
			seen[link.URL] = true
			result.Links = append(result.Links, link)
		}

		if page < pages && !hasNext {
			c.logger.Info("no further listing pages", zap.Int("page", page+1))
			result.Status = CollectExhausted
			break
		}
	}

	metrics.LinksCollectedTotal.Add(float64(len(result.Links)))
	c.logger.Info("link collection finished",
		zap.Int("links", len(result.Links)),
		zap.Int("pages", result.PagesVisited),
		zap.String("status", string(result.Status)))
	return result
}

func (c *LinkCollector) partial(result CollectResult, page int, msg string, cause error) CollectResult {
	result.Status = CollectPartial
	result.Err = &CollectionError{Page: page, Message: msg, Cause: cause}
	metrics.LinksCollectedTotal.Add(float64(len(result.Links)))
	c.logger.Warn("link collection stopped early",
		zap.Error(result.Err),
		zap.Int("links", len(result.Links)))
	return result
}

// PageURL builds the filtered listing URL for one page.
func (c *LinkCollector) PageURL(company, role string, page int) (string, error) {
	u, err := url.Parse(c.listingURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("company", company)
	q.Set("role", role)
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ParseListing extracts the result cards of one listing page and reports
// whether an enabled control for page+1 exists. Cards without a title or
// href are skipped. Relative hrefs are resolved against pageURL.
func ParseListing(html, pageURL string, page int) ([]types.InterviewLink, bool, error) {
	doc, err := fetch.ParseHTML(html)
	if err != nil {
		return nil, false, err
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, false, fmt.Errorf("invalid page URL: %w", err)
	}

	var links []types.InterviewLink
	doc.Find(cardSelector).Each(func(_ int, card *goquery.Selection) {
		anchor := card.Find(titleSelector).First()
		href, ok := anchor.Attr("href")
		title := strings.Join(strings.Fields(anchor.Text()), " ")
		if !ok || strings.TrimSpace(href) == "" || title == "" {
			return
		}
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		links = append(links, types.InterviewLink{
			Title: title,
			URL:   base.ResolveReference(ref).String(),
		})
	})

	next := strconv.Itoa(page + 1)
	hasNext := false
	doc.Find(pageNavAnchors).EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if strings.TrimSpace(a.Text()) == next && !isDisabled(a) {
			hasNext = true
			return false
		}
		return true
	})

	return links, hasNext, nil
}

func isDisabled(a *goquery.Selection) bool {
	if _, ok := a.Attr("disabled"); ok {
		return true
	}
	if v, _ := a.Attr("aria-disabled"); v == "true" {
		return true
	}
	return a.HasClass("disabled") || a.Parent().HasClass("disabled")
}
