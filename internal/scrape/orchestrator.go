package scrape

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/intbuddy/internal/metrics"
	"github.com/jonathan/intbuddy/internal/types"
)

// DefaultWorkers is the number of detail pages extracted concurrently. It
// throttles load on the source site and does not grow with the link count.
const DefaultWorkers = 5

// Collector gathers interview links for a company and role.
type Collector interface {
	Collect(ctx context.Context, company, role string, pages int) CollectResult
}

// Extractor produces the description of one interview article.
type Extractor interface {
	Extract(ctx context.Context, url string) (string, error)
}

// ProgressFunc is called after each extraction finishes, successful or not.
type ProgressFunc func(done, total int)

// Orchestrator runs link collection once and fans the links out to a fixed
// pool of extractors.
type Orchestrator struct {
	collector Collector
	extractor Extractor
	workers   int
	logger    *zap.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithWorkers sets the pool size. Values below 1 keep the default.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n >= 1 {
			o.workers = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(collector Collector, extractor Extractor, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		collector: collector,
		extractor: extractor,
		workers:   DefaultWorkers,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Workers returns the pool size.
func (o *Orchestrator) Workers() int {
	return o.workers
}

// Run scrapes the query without progress reporting.
func (o *Orchestrator) Run(ctx context.Context, q types.Query) (*types.ResultSet, error) {
	return o.RunWithProgress(ctx, q, nil)
}

// RunWithProgress scrapes the query. The role is normalized and pages is
// clamped to at least 1. Empty outcomes are reported through the result
// status; the only error is a cancelled context.
func (o *Orchestrator) RunWithProgress(ctx context.Context, q types.Query, progress ProgressFunc) (*types.ResultSet, error) {
	start := time.Now()
	defer func() { metrics.ScrapeDuration.Observe(time.Since(start).Seconds()) }()

	role := NormalizeRole(q.Role)
	pages := max(q.Pages, 1)

	collected := o.collector.Collect(ctx, q.Company, role, pages)
	if len(collected.Links) == 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		o.logger.Warn("no links found",
			zap.String("company", q.Company),
			zap.String("role", role),
			zap.Int("pages", pages))
		metrics.ScrapeRunsTotal.WithLabelValues(string(types.StatusNoLinks)).Inc()
		return &types.ResultSet{Status: types.StatusNoLinks}, nil
	}

	total := len(collected.Links)
	o.logger.Info("scraping interview details", zap.Int("links", total), zap.Int("workers", o.workers))

	var (
		mu      sync.Mutex
		records []types.InterviewRecord
		failed  int
		done    int
	)

	var g errgroup.Group
	g.SetLimit(o.workers)

	for _, link := range collected.Links {
		g.Go(func() error {
			description, err := o.extractor.Extract(ctx, link.URL)

			mu.Lock()
			defer mu.Unlock()

			done++
			if err != nil || description == "" {
				failed++
				metrics.ExtractionsTotal.WithLabelValues("failure").Inc()
				o.logger.Debug("extraction failed", zap.String("url", link.URL), zap.Error(err))
			} else {
				company, parsedRole := ParseTitle(link.Title, q.Company, role)
				records = append(records, types.InterviewRecord{
					Company:     company,
					Role:        parsedRole,
					Description: description,
				})
				metrics.ExtractionsTotal.WithLabelValues("success").Inc()
			}
			o.logger.Info("scraped", zap.Int("done", done), zap.Int("total", total))
			if progress != nil {
				progress(done, total)
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &types.ResultSet{
		Records:    records,
		LinksFound: total,
		Failed:     failed,
	}

	switch {
	case len(records) == 0:
		result.Status = types.StatusNothingScraped
		o.logger.Warn("nothing scraped", zap.Int("links", total), zap.Int("failed", failed))
	case failed > 0 || collected.Status == CollectPartial:
		result.Status = types.StatusPartial
	default:
		result.Status = types.StatusComplete
	}

	metrics.ScrapeRunsTotal.WithLabelValues(string(result.Status)).Inc()
	o.logger.Info("scrape finished",
		zap.Int("records", len(records)),
		zap.Int("failed", failed),
		zap.String("status", string(result.Status)))
	return result, nil
}
