// Package export writes scrape results and structured interview data to
// CSV, JSON and Markdown.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jonathan/intbuddy/internal/types"
)

// CSVHeader is the first row of every CSV export.
var CSVHeader = []string{"company", "role", "description"}

// WriteCSV writes one row per record under CSVHeader.
func WriteCSV(w io.Writer, records []types.InterviewRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for i, r := range records {
		if err := cw.Write([]string{r.Company, r.Role, r.Description}); err != nil {
			return fmt.Errorf("failed to write CSV row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV: %w", err)
	}
	return nil
}

// ReadCSV parses a file produced by WriteCSV.
func ReadCSV(r io.Reader) ([]types.InterviewRecord, error) {
	rows, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("CSV is empty")
	}
	if strings.Join(rows[0], ",") != strings.Join(CSVHeader, ",") {
		return nil, fmt.Errorf("unexpected CSV header %q", rows[0])
	}

	records := make([]types.InterviewRecord, 0, len(rows)-1)
	for _, row := range rows[1:] {
		records = append(records, types.InterviewRecord{Company: row[0], Role: row[1], Description: row[2]})
	}
	return records, nil
}

// WriteJSON writes the structured data as indented JSON.
func WriteJSON(w io.Writer, data *types.InterviewData) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		return fmt.Errorf("failed to encode interview data: %w", err)
	}
	return nil
}

// WriteMarkdown renders the structured data as a Markdown document.
func WriteMarkdown(w io.Writer, title string, data *types.InterviewData) error {
	_, err := io.WriteString(w, Markdown(title, data))
	return err
}

// Markdown renders the structured data as a Markdown document.
func Markdown(title string, data *types.InterviewData) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", title)
	if data == nil || len(data.Experiences) == 0 {
		b.WriteString("_No interview experiences were scraped._\n")
		return b.String()
	}

	fmt.Fprintf(&b, "%d interview experiences.\n", len(data.Experiences))

	if len(data.Rounds) > 0 {
		b.WriteString("\n## Rounds\n")
		for _, r := range data.Rounds {
			fmt.Fprintf(&b, "\n### Round %d\n\n", r.Number)
			for _, e := range r.Entries {
				fmt.Fprintf(&b, "- %s\n", oneLine(e))
			}
		}
	}

	if len(data.Topics) > 0 {
		b.WriteString("\n## Topics\n\n| Topic | Experiences |\n|---|---|\n")
		for _, t := range data.Topics {
			fmt.Fprintf(&b, "| %s | %d |\n", t.Topic, t.Mentions)
		}
	}

	if len(data.Tips) > 0 {
		b.WriteString("\n## Tips\n\n")
		for _, tip := range data.Tips {
			fmt.Fprintf(&b, "- %s\n", oneLine(tip))
		}
	}

	b.WriteString("\n## Experiences\n")
	for i, exp := range data.Experiences {
		fmt.Fprintf(&b, "\n### Experience %d\n", i+1)
		if exp.Journey != "" {
			fmt.Fprintf(&b, "\n**Preparation journey.** %s\n", oneLine(exp.Journey))
		}
		for _, r := range exp.Rounds {
			fmt.Fprintf(&b, "\n**Round %d.** %s\n", r.Number, oneLine(r.Text))
		}
		if exp.Body != "" {
			fmt.Fprintf(&b, "\n%s\n", oneLine(exp.Body))
		}
	}

	return b.String()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
