package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/jonathan/intbuddy/internal/config"
	"github.com/jonathan/intbuddy/internal/db"
	"github.com/jonathan/intbuddy/internal/fetch"
	"github.com/jonathan/intbuddy/internal/llm"
	"github.com/jonathan/intbuddy/internal/logging"
	"github.com/jonathan/intbuddy/internal/metrics"
	"github.com/jonathan/intbuddy/internal/scrape"
	"github.com/jonathan/intbuddy/internal/types"
)

// queryFlags holds the company/role/pages flags shared by scrape and chat.
type queryFlags struct {
	company string
	role    string
	pages   int
}

func (f *queryFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&f.company, "company", "c", "", "Company name, e.g. Google (required)")
	fs.StringVarP(&f.role, "role", "r", "", "Role, e.g. SDE-2 (required)")
	fs.IntVarP(&f.pages, "pages", "p", 1, "Number of listing pages to scrape")
}

func (f *queryFlags) query(cfg *config.Config) (types.Query, error) {
	company := strings.TrimSpace(f.company)
	role := strings.TrimSpace(f.role)
	if company == "" || role == "" {
		return types.Query{}, fmt.Errorf("both --company and --role are required")
	}
	return types.Query{Company: company, Role: role, Pages: cfg.ClampPages(f.pages)}, nil
}

// runtime is the configuration and logger every command starts from.
type runtime struct {
	cfg    *config.Config
	logger *zap.Logger
}

func loadRuntime() (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(cfg.LogEnv, cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	metrics.Register()
	return &runtime{cfg: cfg, logger: logger}, nil
}

// renderer picks the page renderer. A missing browser is fatal.
func (rt *runtime) renderer() (fetch.Renderer, error) {
	if rt.cfg.Renderer == "http" {
		opts := fetch.DefaultOptions()
		opts.Timeout = rt.cfg.PageTimeout
		return fetch.NewHTTPRenderer(opts), nil
	}

	execPath, err := fetch.CheckBrowser(rt.cfg.ChromePath)
	if err != nil {
		return nil, err
	}
	rt.logger.Debug("using browser", zap.String("path", execPath))
	return fetch.NewBrowserRenderer(fetch.BrowserOptions{
		ExecPath:    execPath,
		Timeout:     rt.cfg.PageTimeout,
		SettleDelay: rt.cfg.SettleDelay,
	}, rt.logger), nil
}

func (rt *runtime) orchestrator() (*scrape.Orchestrator, error) {
	renderer, err := rt.renderer()
	if err != nil {
		return nil, err
	}
	return scrape.NewOrchestrator(
		scrape.NewLinkCollector(renderer, rt.cfg.ListingURL, rt.logger),
		scrape.NewDetailExtractor(renderer, rt.logger),
		scrape.WithWorkers(rt.cfg.Workers),
		scrape.WithLogger(rt.logger),
	), nil
}

// clientFactory defers model client creation until the first model call.
func (rt *runtime) clientFactory() func(ctx context.Context) (llm.Client, error) {
	llmConfig := rt.cfg.LLMConfig()
	apiKey := rt.cfg.ProviderAPIKey()
	return func(ctx context.Context) (llm.Client, error) {
		return llm.NewClient(ctx, llmConfig, apiKey)
	}
}

// archive connects to the archive database and applies migrations. An
// empty URL means no archive.
func (rt *runtime) archive(ctx context.Context, databaseURL string) (*db.DB, error) {
	if databaseURL == "" {
		return nil, nil
	}
	if err := db.Migrate(databaseURL); err != nil {
		return nil, err
	}
	return db.Connect(ctx, databaseURL)
}
