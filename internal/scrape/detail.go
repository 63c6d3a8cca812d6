package scrape

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/jonathan/intbuddy/internal/fetch"
)

// Detail page selectors.
const (
	journeySelector  = "#ie-overall-user-experience"
	roundIDFormat    = "#interview-round-v2-%d"
	fallbackSelector = "div.blog-body-content"
)

// Section headings written into descriptions. The normalizer parses them back.
const (
	JourneyHeading = "## Interview Preparation Journey"
	RoundsHeading  = "## Interview Rounds"
	RoundHeading   = "### Round %d"
)

// DetailExtractor turns one interview article into a free-text description.
type DetailExtractor struct {
	renderer fetch.Renderer
	logger   *zap.Logger
}

// NewDetailExtractor creates an extractor backed by renderer.
func NewDetailExtractor(renderer fetch.Renderer, logger *zap.Logger) *DetailExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DetailExtractor{renderer: renderer, logger: logger}
}

// Extract loads url and returns its description. The result is either a
// non-empty description or an error; load and parse faults are wrapped in
// *ExtractionError, and a page without content wraps ErrNoContent.
func (e *DetailExtractor) Extract(ctx context.Context, url string) (string, error) {
	html, err := e.renderer.RenderDetail(ctx, url)
	if err != nil {
		return "", &ExtractionError{URL: url, Message: "failed to load page", Cause: err}
	}

	description, err := ParseDetail(html)
	if err != nil {
		e.logger.Debug("no content extracted", zap.String("url", url), zap.Error(err))
		return "", &ExtractionError{URL: url, Message: "failed to extract description", Cause: err}
	}
	return description, nil
}

// ParseDetail builds the description from a rendered article.
//
// Rounds are probed as round 1, 2, ... and the scan stops at the first
// missing number, so a gap hides every later round.
func ParseDetail(html string) (string, error) {
	doc, err := fetch.ParseHTML(html)
	if err != nil {
		return "", err
	}

	var parts []string

	if journey := fetch.SelectionText(doc.Find(journeySelector).First()); journey != "" {
		parts = append(parts, JourneyHeading+"\n"+journey)
	}

	for n := 1; ; n++ {
		round := doc.Find(fmt.Sprintf(roundIDFormat, n))
		if round.Length() == 0 {
			break
		}
		if n == 1 {
			parts = append(parts, "\n\n"+RoundsHeading)
		}
		parts = append(parts, fmt.Sprintf("\n\n"+RoundHeading+"\n%s", n, fetch.SelectionText(round.First())))
	}

	if len(parts) == 0 {
		fallback := fetch.ExtractMainText(doc, []string{fallbackSelector})
		if fallback == "" {
			return "", ErrNoContent
		}
		parts = append(parts, fallback)
	}

	description := strings.Join(parts, "\n")
	if strings.TrimSpace(description) == "" {
		return "", ErrNoContent
	}
	return description, nil
}
