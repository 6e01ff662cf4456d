package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ErlanBelekov/referral-tracker/config"
	"github.com/ErlanBelekov/referral-tracker/internal/app"
	"github.com/ErlanBelekov/referral-tracker/internal/email"
	"github.com/ErlanBelekov/referral-tracker/internal/events"
	"github.com/ErlanBelekov/referral-tracker/internal/health"
	"github.com/ErlanBelekov/referral-tracker/internal/metrics"
	"github.com/ErlanBelekov/referral-tracker/internal/ratelimit"
	httptransport "github.com/ErlanBelekov/referral-tracker/internal/transport/http"
	"github.com/ErlanBelekov/referral-tracker/internal/transport/http/handler"
	"github.com/ErlanBelekov/referral-tracker/internal/usecase"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := app.NewLogger(cfg.Env, cfg.SlogLevel())

	if cfg.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	deps, err := app.Open(ctx, cfg, logger)
	if err != nil {
		stop()
		log.Fatalf("startup: %v", err)
	}
	defer deps.Close()

	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		producer := events.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		defer producer.Close()
		publisher = producer
		logger.Info("event producer started", "topic", cfg.KafkaTopic)
	}

	memLimiter := ratelimit.NewMemoryLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow)
	go memLimiter.RunSweeper(ctx, 5*time.Minute)
	var limiter ratelimit.Limiter = memLimiter
	if cfg.RedisURL != "" {
		opts, err := goredis.ParseURL(cfg.RedisURL)
		if err != nil {
			stop()
			log.Fatalf("redis url: %v", err)
		}
		rdb := goredis.NewClient(opts)
		defer rdb.Close()

		redisLimiter := ratelimit.NewRedisLimiter(rdb, "rl:ip:", cfg.RateLimitRequests, cfg.RateLimitWindow)
		limiter = ratelimit.NewFallbackLimiter(redisLimiter, memLimiter, logger)
		deps.Pingers["redis"] = health.PingFunc(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
	}

	candidateUsecase := usecase.NewCandidateUsecase(
		deps.Candidates,
		deps.Users,
		deps.Attachments,
		publisher,
		email.NewSender(cfg.ResendAPIKey, cfg.ResendFrom, logger),
		logger,
		usecase.WithAttachmentTimeout(cfg.AttachmentTimeout),
	)

	metrics.Register()
	checker := health.NewChecker(deps.Pingers, logger, prometheus.DefaultRegisterer)

	router, err := httptransport.NewRouter(httptransport.RouterConfig{
		Logger:           logger,
		CandidateHandler: handler.NewCandidateHandler(candidateUsecase, logger),
		UserRepo:         deps.Users,
		Limiter:          limiter,
		JWTKey:           []byte(cfg.JWTSecret),
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		TrustedProxies:   cfg.TrustedProxies,
	})
	if err != nil {
		stop()
		log.Fatalf("router: %v", err)
	}

	srv := http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker)

	go func() {
		logger.Info("server started", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server", "error", err)
			stop()
		}
	}()

	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}
}
