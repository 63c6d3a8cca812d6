package scrape

import (
	"regexp"
	"strings"
)

var hyphenSpacing = regexp.MustCompile(`\s*-\s*`)

// NormalizeRole spaces every hyphen and uppercases the role: "sde-2" becomes "SDE - 2".
func NormalizeRole(role string) string {
	return strings.ToUpper(hyphenSpacing.ReplaceAllString(strings.TrimSpace(role), " - "))
}

// ParseTitle derives company and role labels from a card title such as
// "Google | SDE-2". Only a title with exactly one "|" is used; any other shape
// falls back to the given company and role.
func ParseTitle(title, fallbackCompany, fallbackRole string) (company, role string) {
	parts := strings.Split(title, "|")
	if len(parts) != 2 {
		return fallbackCompany, fallbackRole
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
}
