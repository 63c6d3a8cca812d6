package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jonathan/intbuddy/internal/db"
	"github.com/jonathan/intbuddy/internal/export"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect archived scrape runs",
	Long:  "Lists and exports scrape runs archived in PostgreSQL. Requires DATABASE_URL or --database-url.",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived runs, newest first",
	RunE:  runRunsList,
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Export the records of one archived run as CSV",
	Long:  "Writes the run's records as CSV and prints a one-line summary of the run to stderr.",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsShow,
}

var (
	runsDatabaseURL string
	runsCompany     string
	runsLimit       int
	runsOut         string
)

func init() {
	runsCmd.PersistentFlags().StringVar(&runsDatabaseURL, "database-url", "", "PostgreSQL URL (overrides DATABASE_URL)")
	runsListCmd.Flags().StringVar(&runsCompany, "company", "", "Only runs for this company")
	runsListCmd.Flags().IntVar(&runsLimit, "limit", 20, "Maximum runs to list")
	runsShowCmd.Flags().StringVarP(&runsOut, "out", "o", "", "CSV output file (default: stdout)")

	runsCmd.AddCommand(runsListCmd, runsShowCmd)
	rootCmd.AddCommand(runsCmd)
}

func openRuns(ctx context.Context) (*db.DB, error) {
	rt, err := loadRuntime()
	if err != nil {
		return nil, err
	}
	databaseURL := runsDatabaseURL
	if databaseURL == "" {
		databaseURL = rt.cfg.DatabaseURL
	}
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable or --database-url is required")
	}
	return rt.archive(ctx, databaseURL)
}

func runRunsList(_ *cobra.Command, _ []string) error {
	ctx := context.Background()
	database, err := openRuns(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	runs, err := database.ListRuns(ctx, runsCompany, runsLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		_, _ = fmt.Fprintln(os.Stdout, "No archived runs.")
		return nil
	}
	return printRuns(os.Stdout, runs)
}

func printRuns(w io.Writer, runs []db.Run) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tCOMPANY\tROLE\tPAGES\tSTATUS\tRECORDS\tFAILED\tCREATED")
	for _, r := range runs {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%d\t%d\t%s\n",
			r.ID, r.Company, r.Role, r.Pages, r.Status, r.Records, r.Failed,
			r.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}

func runRunsShow(_ *cobra.Command, args []string) error {
	runID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid run id %q: %w", args[0], err)
	}

	ctx := context.Background()
	database, err := openRuns(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	run, err := database.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	chunks, err := database.CountChunks(ctx, runID)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(os.Stderr, runSummary(run, chunks))

	records, err := database.ListRecords(ctx, runID)
	if err != nil {
		return err
	}
	return writeTo(runsOut, func(w io.Writer) error { return export.WriteCSV(w, records) })
}

func runSummary(r *db.Run, chunks int) string {
	return fmt.Sprintf("%s  %s / %s  %s  %d record(s), %d failed, %d chunk(s) indexed",
		r.ID, r.Company, r.Role, r.Status, r.Records, r.Failed, chunks)
}
