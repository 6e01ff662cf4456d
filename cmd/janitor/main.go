package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ErlanBelekov/referral-tracker/config"
	"github.com/ErlanBelekov/referral-tracker/internal/app"
	"github.com/ErlanBelekov/referral-tracker/internal/health"
	"github.com/ErlanBelekov/referral-tracker/internal/janitor"
	"github.com/ErlanBelekov/referral-tracker/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	once := flag.Bool("once", false, "run a single sweep and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := app.NewLogger(cfg.Env, cfg.SlogLevel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	deps, err := app.Open(ctx, cfg, logger)
	if err != nil {
		stop()
		log.Fatalf("startup: %v", err)
	}
	defer deps.Close()

	metrics.Register()
	sweeper := janitor.NewSweeper(deps.Candidates, deps.Attachments, cfg.JanitorGrace, logger)

	if *once {
		report, err := sweeper.Sweep(ctx)
		stop()
		if err != nil {
			logger.Error("janitor sweep", "error", err)
			deps.Close()
			os.Exit(1)
		}
		logger.Info("janitor sweep finished", "scanned", report.Scanned, "deleted", report.Deleted, "failed", report.Failed)
		return
	}

	runner, err := janitor.NewRunner(sweeper, cfg.JanitorSchedule, logger)
	if err != nil {
		stop()
		deps.Close()
		log.Fatalf("janitor: %v", err)
	}

	checker := health.NewChecker(deps.Pingers, logger, prometheus.DefaultRegisterer)
	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker)
	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	runner.Start(ctx)
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}
}
