// Package janitor removes stored resumes that no candidate references.
package janitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ErlanBelekov/referral-tracker/internal/domain"
	"github.com/ErlanBelekov/referral-tracker/internal/metrics"
	"github.com/ErlanBelekov/referral-tracker/internal/repository"
)

// KeySource lists the attachment keys that are still referenced.
type KeySource interface {
	AttachmentKeys(ctx context.Context) ([]string, error)
}

// Report summarises one sweep.
type Report struct {
	Scanned int
	Skipped int
	Deleted int
	Failed  int
}

type Sweeper struct {
	keys   KeySource
	store  repository.AttachmentStore
	grace  time.Duration
	logger *slog.Logger
	now    func() time.Time
}

func NewSweeper(keys KeySource, store repository.AttachmentStore, grace time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		keys:   keys,
		store:  store,
		grace:  grace,
		logger: logger.With("component", "janitor"),
		now:    time.Now,
	}
}

// Sweep deletes unreferenced objects older than the grace period. Objects
// are listed before references are read, so a resume committed during the
// sweep is always seen as referenced. The grace period covers resumes
// stored by requests that have not committed yet.
func (s *Sweeper) Sweep(ctx context.Context) (Report, error) {
	start := time.Now()
	defer func() { metrics.JanitorCycleDuration.Observe(time.Since(start).Seconds()) }()

	objects, err := s.store.List(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("list attachments: %w", err)
	}
	keys, err := s.keys.AttachmentKeys(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("load referenced keys: %w", err)
	}

	referenced := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		referenced[k] = struct{}{}
	}

	cutoff := s.now().Add(-s.grace)
	var r Report
	for _, obj := range objects {
		if ctx.Err() != nil {
			return r, ctx.Err()
		}
		r.Scanned++
		if _, ok := referenced[obj.Key]; ok || obj.ModifiedAt.After(cutoff) {
			r.Skipped++
			continue
		}
		if err := s.store.Delete(ctx, domain.Attachment{Key: obj.Key}); err != nil {
			r.Failed++
			s.logger.WarnContext(ctx, "orphan delete failed", "key", obj.Key, "error", err)
			continue
		}
		r.Deleted++
		metrics.JanitorDeletedTotal.Inc()
	}

	if r.Deleted > 0 || r.Failed > 0 {
		s.logger.InfoContext(ctx, "janitor sweep finished", "scanned", r.Scanned, "deleted", r.Deleted, "failed", r.Failed)
	}
	return r, nil
}
