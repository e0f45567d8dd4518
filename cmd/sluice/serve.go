package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sluicehq/sluice/internal/api"
	"github.com/sluicehq/sluice/internal/audit"
	"github.com/sluicehq/sluice/internal/budget"
	"github.com/sluicehq/sluice/internal/config"
	"github.com/sluicehq/sluice/internal/metrics"
	"github.com/sluicehq/sluice/internal/sched"
	"github.com/sluicehq/sluice/internal/snapshot"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Sluice server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()
	m.MarkServerStart()

	client, err := newUpstreamClient(cfg)
	if err != nil {
		return err
	}
	gov := newGovernor(cfg)
	gov.SetMetrics(m)

	store, collector, err := newCollector(cfg, gov, client, loc)
	if err != nil {
		return err
	}
	collector.SetMetrics(m)

	auditLog, err := audit.New(cfg.Audit.DBPath)
	if err != nil {
		return err
	}
	defer auditLog.Close()

	engine := newEngine(gov, client, loc)
	engine.SetRecorder(auditLog)
	engine.SetMetrics(m)

	planStore := budget.NewPlanStore(cfg.Plans.Path)

	scheduler := sched.New(collector, cfg.Scheduler.Accounts,
		cfg.Scheduler.Interval, cfg.Snapshots.BackfillHours, loc)
	go scheduler.Start(ctx)
	slog.Info("scheduler started",
		"accounts", len(cfg.Scheduler.Accounts),
		"interval", cfg.Scheduler.Interval,
		"backfill_hours", cfg.Snapshots.BackfillHours)

	router := api.NewRouter(api.RouterDeps{
		SnapshotStore: store,
		Reader:        snapshot.NewReader(store),
		PlanStore:     planStore,
		Engine:        engine,
		Audit:         auditLog,
		Metrics:       m,
		AdminKeyHash:  cfg.Auth.AdminKeyHash,
	})

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-sigCh
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	scheduler.Stop()

	return srv.Shutdown(shutdownCtx)
}
