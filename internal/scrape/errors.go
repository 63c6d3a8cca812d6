// Package scrape collects interview-experience links from the source site and
// extracts the article text behind each one.
package scrape

import (
	"errors"
	"fmt"
)

// ErrNoContent is returned when a detail page has no journey, no rounds and
// no usable fallback content.
var ErrNoContent = errors.New("no extractable content")

// CollectionError records the fault that cut link collection short.
type CollectionError struct {
	Page    int
	Message string
	Cause   error
}

func (e *CollectionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("collection error on page %d: %s: %v", e.Page, e.Message, e.Cause)
	}
	return fmt.Sprintf("collection error on page %d: %s", e.Page, e.Message)
}

func (e *CollectionError) Unwrap() error {
	return e.Cause
}

// ExtractionError represents a failed detail page extraction.
type ExtractionError struct {
	URL     string
	Message string
	Cause   error
}

func (e *ExtractionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("extraction error for %s: %s: %v", e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("extraction error for %s: %s", e.URL, e.Message)
}

func (e *ExtractionError) Unwrap() error {
	return e.Cause
}
