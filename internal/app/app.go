// Package app assembles the storage dependencies that every command needs
// from configuration.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ErlanBelekov/referral-tracker/config"
	"github.com/ErlanBelekov/referral-tracker/internal/health"
	"github.com/ErlanBelekov/referral-tracker/internal/infrastructure/filestore"
	"github.com/ErlanBelekov/referral-tracker/internal/infrastructure/postgres"
	"github.com/ErlanBelekov/referral-tracker/internal/infrastructure/s3store"
	"github.com/ErlanBelekov/referral-tracker/internal/infrastructure/sqlite"
	ctxlog "github.com/ErlanBelekov/referral-tracker/internal/log"
	"github.com/ErlanBelekov/referral-tracker/internal/repository"
	"github.com/lmittmann/tint"
)

// Deps are the repositories and attachment store selected by config.
type Deps struct {
	Candidates  repository.CandidateRepository
	Users       repository.UserRepository
	Attachments repository.AttachmentStore
	// Pingers feed the readiness checker.
	Pingers map[string]health.Pinger

	closers []func()
}

// Close releases database handles in reverse order of opening.
func (d *Deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Deps, error) {
	d := &Deps{Pingers: map[string]health.Pinger{}}

	if err := d.openDatabase(ctx, cfg, logger); err != nil {
		d.Close()
		return nil, err
	}
	if err := d.openAttachments(ctx, cfg, logger); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

func (d *Deps) openDatabase(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("db: %w", err)
		}
		d.closers = append(d.closers, pool.Close)
		if err := postgres.Migrate(ctx, pool); err != nil {
			return fmt.Errorf("db: %w", err)
		}
		d.Candidates = postgres.NewCandidateRepository(pool)
		d.Users = postgres.NewUserRepository(pool)
		d.Pingers["database"] = pool
		logger.Info("db connected", "driver", cfg.DBDriver)

	case config.DriverSQLite:
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return fmt.Errorf("db: %w", err)
		}
		d.closers = append(d.closers, func() {
			if err := sqlite.Close(db); err != nil {
				logger.Error("close sqlite", "error", err)
			}
		})
		d.Candidates = sqlite.NewCandidateRepository(db)
		d.Users = sqlite.NewUserRepository(db)
		d.Pingers["database"] = sqlite.NewPinger(db)
		logger.Info("db opened", "driver", cfg.DBDriver, "path", cfg.SQLitePath)

	default:
		return fmt.Errorf("db: unknown driver %q", cfg.DBDriver)
	}
	return nil
}

func (d *Deps) openAttachments(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	switch cfg.AttachmentBackend {
	case config.BackendFilesystem:
		store, err := filestore.New(cfg.AttachmentDir, logger)
		if err != nil {
			return fmt.Errorf("attachments: %w", err)
		}
		d.Attachments = store

	case config.BackendS3:
		client, err := s3store.NewClient(ctx, s3store.ClientConfig{
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		})
		if err != nil {
			return fmt.Errorf("attachments: %w", err)
		}
		d.Attachments = s3store.New(client, cfg.S3Bucket, cfg.S3Prefix, logger)

	default:
		return fmt.Errorf("attachments: unknown backend %q", cfg.AttachmentBackend)
	}
	logger.Info("attachment store ready", "backend", cfg.AttachmentBackend)
	return nil
}

// NewLogger builds the process logger: colored text locally, JSON
// elsewhere, always enriched with request-scoped attributes.
func NewLogger(env string, level slog.Level) *slog.Logger {
	var inner slog.Handler
	if env == "local" {
		inner = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	} else {
		inner = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}
	return slog.New(ctxlog.NewContextHandler(inner))
}
