package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/steveyegge/triage/internal/notify"
	"github.com/steveyegge/triage/internal/storage"
	"github.com/steveyegge/triage/internal/triage"
	"github.com/steveyegge/triage/internal/webhook"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Receive webhooks and triage issues",
	Long: `Start the webhook server.

The server:
1. Claims the database with a lock file so only one server uses it
2. Acknowledges each webhook immediately and processes it in the background
3. Serializes events per issue, different issues run concurrently
4. Publishes outcomes to NATS when nats.url is set
5. Prunes old run records on the retention schedule
6. Clears the knowledge base cache on SIGHUP
7. Drains in-flight events on Ctrl+C or SIGTERM`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.Server.Addr = addr
		}
		return serve(cmd.Context())
	},
}

func serve(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	lockPath, err := storage.AcquireServerLock(cfg.Database.Path, cfg.Server.Addr)
	if err != nil {
		return err
	}
	defer func() {
		if err := storage.ReleaseServerLock(lockPath); err != nil {
			logger.Warn("failed to release server lock", "path", lockPath, "error", err)
		}
	}()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("error closing resources", "error", err)
		}
	}()

	nc, err := notify.Connect(notify.Config{URL: cfg.NATS.URL, Subject: cfg.NATS.Subject, Logger: logger})
	if err != nil {
		return err
	}
	var notifier triage.Notifier
	if nc != nil {
		notifier = nc
		a.closers = append(a.closers, nc.Close)
	}

	orch, err := a.orchestrator(ctx, notifier)
	if err != nil {
		return err
	}
	runner := triage.NewRunner(orch, triage.RunnerConfig{
		EventTimeout: cfg.Triage.EventTimeout,
		Logger:       logger,
	})

	hooks := webhook.New(runner, webhook.Config{
		Secret:             cfg.Server.WebhookSecret,
		MaxBodyBytes:       cfg.Server.MaxBodyBytes,
		TimestampTolerance: cfg.Server.TimestampTolerance,
		Metrics:            a.metrics,
		MetricsHandler:     a.metrics.Handler(),
		Logger:             logger,
	})
	if cfg.Server.WebhookSecret == "" {
		logger.Warn("webhook signature verification disabled: server.webhook_secret is empty")
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           hooks.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	retentionCtx, stopRetention := context.WithCancel(ctx)
	defer stopRetention()
	go storage.RunRetention(retentionCtx, a.db, cfg.Retention, logger)

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go a.knowledge.InvalidateOn(ctx, hup)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	green := color.New(color.FgGreen).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()
	fmt.Printf("%s Triage server listening on %s\n", green("✓"), cyan(cfg.Server.Addr))
	fmt.Printf("  Webhooks: POST %s\n", webhook.Path)
	fmt.Printf("  Model: %s, knowledge base: %s\n", cfg.Model.Provider, cfg.KB.Backend)
	fmt.Printf("  Press Ctrl+C to stop\n\n")

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	fmt.Println("\nShutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", "error", err)
	}
	if err := runner.Shutdown(shutdownCtx); err != nil {
		logger.Warn("in-flight events canceled", "error", err)
	}
	stopRetention()

	fmt.Printf("%s Server stopped\n", green("✓"))
	return nil
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (overrides server.addr)")
	rootCmd.AddCommand(serveCmd)
}
