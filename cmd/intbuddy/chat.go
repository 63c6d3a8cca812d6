package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/jonathan/intbuddy/internal/chat"
	"github.com/jonathan/intbuddy/internal/export"
	"github.com/jonathan/intbuddy/internal/observability"
	"github.com/jonathan/intbuddy/internal/session"
	"github.com/jonathan/intbuddy/internal/types"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Scrape interviews and chat about them",
	Long: "Scrapes interview experiences for a company and role, builds a knowledge index, " +
		"and starts an interactive conversation. Type exit, quit or bye to leave.\n\n" +
		"With --from-csv the records of an earlier scrape are indexed instead and nothing is scraped.",
	RunE: runChat,
}

var (
	chatQuery   queryFlags
	chatPlain   bool
	chatSources bool
	chatFromCSV string
)

func init() {
	chatQuery.register(chatCmd.Flags())
	chatCmd.Flags().BoolVar(&chatPlain, "plain", false, "Print answers without Markdown rendering")
	chatCmd.Flags().BoolVar(&chatSources, "sources", false, "Show the retrieved chunks under each answer")
	chatCmd.Flags().StringVar(&chatFromCSV, "from-csv", "", "Chat over a CSV written by scrape instead of scraping")

	rootCmd.AddCommand(chatCmd)
}

var (
	promptStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#7aa2f7")).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#565f89"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#e0af68"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#f7768e")).Bold(true)
	sourceStyle  = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#565f89")).
			PaddingLeft(2).
			BorderLeft(true).
			BorderStyle(lipgloss.NormalBorder())
)

func runChat(_ *cobra.Command, _ []string) error {
	rt, err := loadRuntime()
	if err != nil {
		return err
	}
	defer func() { _ = rt.logger.Sync() }()

	if err := rt.cfg.RequireAPIKey(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	config := session.Config{TopK: rt.cfg.TopK, ChunkSize: rt.cfg.ChunkSize}
	var (
		manager *session.Manager
		sess    *session.Session
		entry   *session.Entry
	)
	if chatFromCSV != "" {
		records, err := readRecords(chatFromCSV)
		if err != nil {
			return err
		}
		manager = session.NewManager(nil, rt.clientFactory(), config, rt.logger)
		defer func() { _ = manager.Close() }()

		q := csvQuery(chatQuery, records)
		sess = manager.Create()
		_, _ = fmt.Fprintln(os.Stderr, mutedStyle.Render(fmt.Sprintf("Indexing %d record(s) from %s...", len(records), chatFromCSV)))
		if entry, err = manager.LoadRecords(ctx, sess.ID, q, records); err != nil {
			return err
		}
	} else {
		q, err := chatQuery.query(rt.cfg)
		if err != nil {
			return err
		}
		orch, err := rt.orchestrator()
		if err != nil {
			return err
		}

		var opts []session.ManagerOption
		archive, err := rt.archive(ctx, rt.cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to open archive: %w", err)
		}
		if archive != nil {
			defer archive.Close()
			opts = append(opts, session.WithArchiver(archive))
		}

		manager = session.NewManager(orch, rt.clientFactory(), config, rt.logger, opts...)
		defer func() { _ = manager.Close() }()

		sess = manager.Create()
		_, _ = fmt.Fprintln(os.Stderr, mutedStyle.Render(fmt.Sprintf("Loading %s / %s (%d page(s))...", q.Company, q.Role, q.Pages)))
		entry, err = manager.Load(ctx, sess.ID, q, func(done, total int) {
			_, _ = fmt.Fprintf(os.Stderr, "\rScraped %d/%d", done, total)
		})
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(os.Stderr)
	}

	if entry.Result != nil {
		if msg := statusMessage(entry.Result); msg != "" {
			style := mutedStyle
			if entry.Result.Status != types.StatusComplete {
				style = warningStyle
			}
			_, _ = fmt.Fprintln(os.Stderr, style.Render(msg))
		}
	}
	if verbose {
		printer := observability.NewPrinter(os.Stderr)
		printer.PrintResultSet(entry.Query, entry.Result)
		printer.PrintInterviewData(entry.Data)
		if entry.Index != nil {
			printer.PrintChunks(entry.Index.Chunks())
		}
	}
	if !entry.Ready() {
		return nil
	}

	repl := &chatREPL{
		manager:     manager,
		sessionID:   sess.ID,
		out:         os.Stdout,
		markdown:    newMarkdownRenderer(chatPlain),
		showSources: chatSources,
	}
	return repl.run(ctx, os.Stdin)
}

func readRecords(path string) ([]types.InterviewRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	records, err := export.ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return records, nil
}

// csvQuery labels records loaded from a CSV. Flags win; otherwise the first
// record's company and role are used.
func csvQuery(f queryFlags, records []types.InterviewRecord) types.Query {
	q := types.Query{Company: strings.TrimSpace(f.company), Role: strings.TrimSpace(f.role), Pages: 1}
	if len(records) > 0 {
		if q.Company == "" {
			q.Company = records[0].Company
		}
		if q.Role == "" {
			q.Role = records[0].Role
		}
	}
	return q
}

func newMarkdownRenderer(plain bool) *glamour.TermRenderer {
	if plain {
		return nil
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return nil
	}
	return renderer
}

// chatREPL reads questions line by line until an exit word or EOF.
type chatREPL struct {
	manager     *session.Manager
	sessionID   string
	out         io.Writer
	markdown    *glamour.TermRenderer
	showSources bool
}

func (r *chatREPL) run(ctx context.Context, in io.Reader) error {
	_, _ = fmt.Fprintln(r.out, mutedStyle.Render("Ask about the interviews. Type exit, quit or bye to leave."))

	scanner := bufio.NewScanner(in)
	for {
		_, _ = fmt.Fprint(r.out, promptStyle.Render("you> "))
		if !scanner.Scan() {
			_, _ = fmt.Fprintln(r.out)
			return scanner.Err()
		}

		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}

		ans, err := r.manager.Ask(ctx, r.sessionID, question)
		switch {
		case errors.Is(err, session.ErrSessionEnded):
			_, _ = fmt.Fprintln(r.out, mutedStyle.Render("Goodbye!"))
			return nil
		case errors.Is(err, context.Canceled):
			return nil
		case err != nil:
			_, _ = fmt.Fprintln(r.out, errorStyle.Render("error: "+err.Error()))
			continue
		}

		r.printAnswer(ans)
	}
}

func (r *chatREPL) printAnswer(ans chat.Answer) {
	text := ans.Text
	if r.markdown != nil {
		if rendered, err := r.markdown.Render(text); err == nil {
			text = rendered
		}
	}
	_, _ = fmt.Fprintln(r.out, text)

	if !r.showSources {
		return
	}
	for _, m := range ans.Sources {
		snippet := m.Chunk.Text
		if runes := []rune(snippet); len(runes) > 160 {
			snippet = string(runes[:160]) + "..."
		}
		_, _ = fmt.Fprintln(r.out, sourceStyle.Render(fmt.Sprintf("[%s %.2f] %s", m.Chunk.Section, m.Score, snippet)))
	}
}
