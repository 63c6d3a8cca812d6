// Package observability provides formatted output utilities for verbose CLI mode.
package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/jonathan/intbuddy/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stderr; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, truncate(line, boxWidth-4))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// truncate shortens s to at most limit runes, marking the cut with "...".
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-3]) + "..."
}

// PrintResultSet outputs the outcome of a scrape run.
func (p *Printer) PrintResultSet(q types.Query, rs *types.ResultSet) {
	if rs == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Company:  %s\n", q.Company))
	sb.WriteString(fmt.Sprintf("Role:     %s\n", q.Role))
	sb.WriteString(fmt.Sprintf("Pages:    %d\n", q.Pages))
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Status:   %s\n", rs.Status))
	sb.WriteString(fmt.Sprintf("Links:    %d\n", rs.LinksFound))
	sb.WriteString(fmt.Sprintf("Records:  %d\n", len(rs.Records)))
	sb.WriteString(fmt.Sprintf("Failed:   %d", rs.Failed))

	p.printBox("SCRAPE RESULT", sb.String())
}

// PrintInterviewData outputs the round, topic and tip summary of structured data.
func (p *Printer) PrintInterviewData(data *types.InterviewData) {
	if data == nil || len(data.Experiences) == 0 {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Experiences: %d\n", len(data.Experiences)))

	if len(data.Rounds) > 0 {
		sb.WriteString("\nRounds:\n")
		for _, r := range data.Rounds {
			sb.WriteString(fmt.Sprintf("  • Round %d: %d write-up(s)\n", r.Number, len(r.Entries)))
		}
	}

	if len(data.Topics) > 0 {
		sb.WriteString("\nTop topics:\n")
		count := min(len(data.Topics), maxItemsToShow)
		for i := 0; i < count; i++ {
			t := data.Topics[i]
			sb.WriteString(fmt.Sprintf("  • %s (%d)\n", t.Topic, t.Mentions))
		}
		if len(data.Topics) > maxItemsToShow {
			sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(data.Topics)-maxItemsToShow))
		}
	}

	if len(data.Tips) > 0 {
		sb.WriteString("\nTips:\n")
		count := min(len(data.Tips), 3)
		for i := 0; i < count; i++ {
			sb.WriteString(fmt.Sprintf("  • %s\n", data.Tips[i]))
		}
		if len(data.Tips) > 3 {
			sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(data.Tips)-3))
		}
	}

	p.printBox("INTERVIEW SUMMARY", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintChunks outputs the sections of the chunks fed to the knowledge index.
func (p *Printer) PrintChunks(chunks []types.Chunk) {
	if len(chunks) == 0 {
		return
	}

	counts := make(map[string]int)
	var order []string
	for _, c := range chunks {
		if counts[c.Section] == 0 {
			order = append(order, c.Section)
		}
		counts[c.Section]++
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Indexed %d chunks:\n\n", len(chunks)))
	for _, section := range order {
		sb.WriteString(fmt.Sprintf("  %-20s %d\n", section, counts[section]))
	}

	p.printBox("KNOWLEDGE INDEX", strings.TrimSuffix(sb.String(), "\n"))
}
