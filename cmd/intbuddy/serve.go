package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonathan/intbuddy/internal/server"
	"github.com/jonathan/intbuddy/internal/server/ratelimit"
	"github.com/jonathan/intbuddy/internal/session"
	"github.com/jonathan/intbuddy/internal/telemetry"
)

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long:  `Start an HTTP server that exposes session endpoints for loading interviews, asking questions and exporting results.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&servePort, "port", "", "Port to listen on (overrides INTBUDDY_PORT)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	rt, err := loadRuntime()
	if err != nil {
		return err
	}
	defer func() { _ = rt.logger.Sync() }()

	if err := rt.cfg.RequireAPIKey(); err != nil {
		return err
	}
	if servePort != "" {
		rt.cfg.Port = servePort
	}

	flush := telemetry.Init(telemetry.Config{
		DSN:         rt.cfg.SentryDSN,
		Environment: rt.cfg.LogEnv,
	}, rt.logger)
	defer flush()

	orch, err := rt.orchestrator()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var opts []session.ManagerOption
	archive, err := rt.archive(ctx, rt.cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	if archive != nil {
		defer archive.Close()
		opts = append(opts, session.WithArchiver(archive))
	}

	limitConfig, err := ratelimit.LoadConfig()
	if err != nil {
		return err
	}

	manager := session.NewManager(orch, rt.clientFactory(), session.Config{
		TopK:      rt.cfg.TopK,
		ChunkSize: rt.cfg.ChunkSize,
	}, rt.logger, opts...)

	srv := server.New(server.Config{
		Port:     rt.cfg.Port,
		MaxPages: rt.cfg.MaxPages,
	}, manager, ratelimit.NewLimiter(limitConfig), rt.logger)

	return srv.Start(ctx)
}
