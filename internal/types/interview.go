// Package types provides type definitions for structured data used throughout the intbuddy system.
//
//nolint:revive // types is a standard Go package name pattern
package types

import (
	"fmt"
	"strings"
)

// InterviewLink is a single result card collected from a listing page.
type InterviewLink struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// InterviewRecord is one scraped interview experience. Records are never
// modified after the orchestrator creates them.
type InterviewRecord struct {
	Company     string `json:"company"`
	Role        string `json:"role"`
	Description string `json:"description"`
}

// ScrapeStatus describes how a scrape run ended.
type ScrapeStatus string

const (
	// StatusComplete means every collected link was extracted
	StatusComplete ScrapeStatus = "complete"
	// StatusPartial means some links failed or link collection was cut short
	StatusPartial ScrapeStatus = "partial"
	// StatusNoLinks means the link collector found nothing
	StatusNoLinks ScrapeStatus = "no_links"
	// StatusNothingScraped means links were found but every extraction failed
	StatusNothingScraped ScrapeStatus = "nothing_scraped"
)

// ResultSet is the tabular output of a scrape run.
type ResultSet struct {
	Records    []InterviewRecord `json:"records"`
	LinksFound int               `json:"links_found"`
	Failed     int               `json:"failed"`
	Status     ScrapeStatus      `json:"status"`
}

// Empty reports whether the run produced no rows.
func (r *ResultSet) Empty() bool {
	return r == nil || len(r.Records) == 0
}

// Query identifies one scrape request. It is also the cache key for a built
// knowledge index, so Role is expected to be normalized before use as a key.
type Query struct {
	Company string `json:"company"`
	Role    string `json:"role"`
	Pages   int    `json:"pages"`
}

// Key returns a stable cache key for the query.
func (q Query) Key() string {
	return fmt.Sprintf("%s|%s|%d", strings.ToLower(strings.TrimSpace(q.Company)), q.Role, q.Pages)
}
