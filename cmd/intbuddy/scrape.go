package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jonathan/intbuddy/internal/export"
	"github.com/jonathan/intbuddy/internal/normalize"
	"github.com/jonathan/intbuddy/internal/observability"
	"github.com/jonathan/intbuddy/internal/types"
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Scrape interview experiences to CSV",
	Long: "Collects interview-experience links for a company and role, extracts every article " +
		"with a pool of headless browsers, and writes the results as CSV (stdout by default).",
	RunE: runScrape,
}

var (
	scrapeQuery       queryFlags
	scrapeOut         string
	scrapeStructured  string
	scrapeMarkdown    string
	scrapeDatabaseURL string
)

func init() {
	scrapeQuery.register(scrapeCmd.Flags())
	scrapeCmd.Flags().StringVarP(&scrapeOut, "out", "o", "", "CSV output file (default: stdout)")
	scrapeCmd.Flags().StringVar(&scrapeStructured, "structured", "", "Write structured interview data as JSON to this file")
	scrapeCmd.Flags().StringVar(&scrapeMarkdown, "markdown", "", "Write a Markdown document to this file")
	scrapeCmd.Flags().StringVar(&scrapeDatabaseURL, "database-url", "", "Archive the run in PostgreSQL (overrides DATABASE_URL)")

	for _, name := range []string{"company", "role"} {
		if err := scrapeCmd.MarkFlagRequired(name); err != nil {
			panic(fmt.Sprintf("failed to mark %s flag as required: %v", name, err))
		}
	}

	rootCmd.AddCommand(scrapeCmd)
}

func runScrape(_ *cobra.Command, _ []string) error {
	rt, err := loadRuntime()
	if err != nil {
		return err
	}
	defer func() { _ = rt.logger.Sync() }()

	q, err := scrapeQuery.query(rt.cfg)
	if err != nil {
		return err
	}

	orch, err := rt.orchestrator()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_, _ = fmt.Fprintf(os.Stderr, "Scraping %s / %s (%d page(s))...\n", q.Company, q.Role, q.Pages)
	rs, err := orch.RunWithProgress(ctx, q, func(done, total int) {
		_, _ = fmt.Fprintf(os.Stderr, "\rScraped %d/%d", done, total)
	})
	if err != nil {
		return fmt.Errorf("scrape failed: %w", err)
	}
	_, _ = fmt.Fprintln(os.Stderr)

	if msg := statusMessage(rs); msg != "" {
		_, _ = fmt.Fprintln(os.Stderr, msg)
	}
	printer := observability.NewPrinter(os.Stderr)
	if verbose {
		printer.PrintResultSet(q, rs)
	}
	if rs.Empty() {
		return nil
	}

	if err := writeTo(scrapeOut, func(w io.Writer) error { return export.WriteCSV(w, rs.Records) }); err != nil {
		return err
	}

	if scrapeStructured != "" || scrapeMarkdown != "" || verbose {
		data := normalize.Structure(normalize.Join(rs.Records))
		if err := normalize.Validate(data); err != nil {
			rt.logger.Warn("structured data failed schema validation", zap.Error(err))
		}
		if verbose {
			printer.PrintInterviewData(data)
			printer.PrintChunks(normalize.Chunks(data, rt.cfg.ChunkSize))
		}
		if scrapeStructured != "" {
			if err := writeTo(scrapeStructured, func(w io.Writer) error { return export.WriteJSON(w, data) }); err != nil {
				return err
			}
		}
		if scrapeMarkdown != "" {
			title := fmt.Sprintf("%s %s interview experiences", q.Company, rs.Records[0].Role)
			if err := writeTo(scrapeMarkdown, func(w io.Writer) error { return export.WriteMarkdown(w, title, data) }); err != nil {
				return err
			}
		}
	}

	databaseURL := scrapeDatabaseURL
	if databaseURL == "" {
		databaseURL = rt.cfg.DatabaseURL
	}
	archive, err := rt.archive(ctx, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	if archive != nil {
		defer archive.Close()
		runID, err := archive.SaveResultSet(ctx, q, rs)
		if err != nil {
			return fmt.Errorf("failed to archive run: %w", err)
		}
		_, _ = fmt.Fprintf(os.Stderr, "Archived run %s\n", runID)
	}

	return nil
}

// statusMessage explains an incomplete run to the user.
func statusMessage(rs *types.ResultSet) string {
	switch rs.Status {
	case types.StatusNoLinks:
		return "No interview links found. Check the company and role spelling."
	case types.StatusNothingScraped:
		return fmt.Sprintf("Found %d links but nothing could be scraped.", rs.LinksFound)
	case types.StatusPartial:
		return fmt.Sprintf("Warning: partial results, %d record(s) scraped, %d failed.", len(rs.Records), rs.Failed)
	default:
		return fmt.Sprintf("Scraped %d record(s).", len(rs.Records))
	}
}

// writeTo writes to path, or stdout when path is empty.
func writeTo(path string, write func(io.Writer) error) error {
	if path == "" {
		return write(os.Stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	_, _ = fmt.Fprintf(os.Stderr, "Wrote %s\n", path)
	return nil
}
