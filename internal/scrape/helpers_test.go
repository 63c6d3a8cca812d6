package scrape

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"go.uber.org/goleak"
)

// Every worker goroutine must be gone once a scrape returns. Idle keep-alive
// connections of the shared HTTP transport are not workers.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

// fakeRenderer serves canned HTML keyed by URL.
type fakeRenderer struct {
	mu      sync.Mutex
	pages   map[string]string
	fail    map[string]error
	calls   []string
	details []string
}

func newFakeRenderer() *fakeRenderer {
	return &fakeRenderer{pages: map[string]string{}, fail: map[string]error{}}
}

func (f *fakeRenderer) Render(_ context.Context, url string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	if err, ok := f.fail[url]; ok {
		return "", err
	}
	html, ok := f.pages[url]
	if !ok {
		return "", errors.New("not found: " + url)
	}
	return html, nil
}

func (f *fakeRenderer) RenderDetail(ctx context.Context, url string) (string, error) {
	f.mu.Lock()
	f.details = append(f.details, url)
	f.mu.Unlock()
	return f.Render(ctx, url)
}

type card struct {
	title string
	href  string
}

// listingHTML renders a listing page with the given cards and nav numbers.
func listingHTML(cards []card, nav ...string) string {
	var sb strings.Builder
	sb.WriteString("<html><body>")
	for _, c := range cards {
		sb.WriteString("<codingninjas-interview-experience-card-v2>")
		if c.href != "" || c.title != "" {
			fmt.Fprintf(&sb, `<a class="interview-exp-title" href="%s">%s</a>`, c.href, c.title)
		}
		sb.WriteString("</codingninjas-interview-experience-card-v2>")
	}
	sb.WriteString("<codingninjas-page-nav-v2>")
	for _, n := range nav {
		fmt.Fprintf(&sb, `<a href="#">%s</a>`, n)
	}
	sb.WriteString("</codingninjas-page-nav-v2></body></html>")
	return sb.String()
}

// detailHTML renders an article with an optional journey and rounds.
func detailHTML(journey string, rounds ...string) string {
	var sb strings.Builder
	sb.WriteString("<html><body>")
	if journey != "" {
		fmt.Fprintf(&sb, `<div id="ie-overall-user-experience"><p>%s</p></div>`, journey)
	}
	for i, r := range rounds {
		fmt.Fprintf(&sb, `<div id="interview-round-v2-%d"><p>%s</p></div>`, i+1, r)
	}
	sb.WriteString("</body></html>")
	return sb.String()
}
