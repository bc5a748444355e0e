package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/use-agent/topdf/api"
	"github.com/use-agent/topdf/api/handler"
	"github.com/use-agent/topdf/browser"
	"github.com/use-agent/topdf/config"
	"github.com/use-agent/topdf/jobs"
	"github.com/use-agent/topdf/metrics"
	"github.com/use-agent/topdf/pipeline"
	"github.com/use-agent/topdf/webhook"
)

// runServe runs the HTTP job API until ctx ends.
func runServe(ctx context.Context, args []string, stderr io.Writer) error {
	// ── 1. Load configuration ───────────────────────────────────────
	flags, err := parseServeFlags(args, stderr)
	if err != nil {
		return err
	}
	cfg, err := config.Load(flags.common.config)
	if err != nil {
		return err
	}
	flags.apply(cfg)

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log, os.Stdout)
	slog.Info("topdf starting",
		"addr", cfg.Addr(),
		"mode", cfg.Server.Mode,
		"max_jobs", cfg.Jobs.MaxConcurrent,
		"output_dir", cfg.Output.Dir,
	)

	// ── 3. Launch the shared browser ────────────────────────────────
	b, err := browser.Launch(cfg.Browser, browser.TimingFrom(cfg.Capture))
	if err != nil {
		return err
	}
	defer b.Close()

	// ── 4. Wire the pipeline and job runner ─────────────────────────
	m := metrics.New()
	conv := pipeline.FromConfig(cfg, sessionFactory(b), m)
	notifier := webhook.NewNotifier(nil, cfg.Webhook.Timeout, cfg.Webhook.Delays, m)

	jobsCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()
	runner := handler.NewRunner(jobsCtx, jobs.NewStore(cfg.Jobs.MaxEntries, cfg.Jobs.TTL),
		conv, notifier, cfg.Jobs.MaxConcurrent, cfg.Jobs.CredentialTimeout)

	// ── 5. Setup router ─────────────────────────────────────────────
	router := api.NewRouter(api.Deps{
		Config:    cfg,
		Runner:    runner,
		History:   conv.History(),
		Metrics:   m,
		StartTime: time.Now(),
	})

	// ── 6. Start HTTP server ────────────────────────────────────────
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	// ── 7. Graceful shutdown ────────────────────────────────────────
	select {
	case err := <-errc:
		if err != nil {
			slog.Error("HTTP server error", "error", err)
			return err
		}
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	}

	// Give in-flight requests 5 seconds to complete, then stop running
	// conversions so their sessions are torn down before Chrome exits.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}
	cancelJobs()
	waitIdle(b, 5*time.Second)

	slog.Info("topdf stopped")
	return nil
}

// waitIdle waits for open browser sessions to close, up to limit.
func waitIdle(b *browser.Browser, limit time.Duration) {
	deadline := time.Now().Add(limit)
	for b.Active() > 0 && time.Now().Before(deadline) {
		time.Sleep(100 * time.Millisecond)
	}
}
