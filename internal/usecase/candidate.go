package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ErlanBelekov/referral-tracker/internal/domain"
	"github.com/ErlanBelekov/referral-tracker/internal/email"
	"github.com/ErlanBelekov/referral-tracker/internal/events"
	"github.com/ErlanBelekov/referral-tracker/internal/metrics"
	"github.com/ErlanBelekov/referral-tracker/internal/query"
	"github.com/ErlanBelekov/referral-tracker/internal/repository"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const defaultAttachmentTimeout = 10 * time.Second

type CreateCandidateInput struct {
	Name     string
	Email    string
	Phone    string
	JobTitle string
	Notes    string
}

// UpdateCandidateInput carries presence: nil fields are left unchanged, a
// pointer to "" is an explicit empty value.
type UpdateCandidateInput struct {
	Name     *string
	Email    *string
	Phone    *string
	JobTitle *string
	Notes    *string
}

type CandidateUsecase struct {
	candidates        repository.CandidateRepository
	users             repository.UserRepository
	attachments       repository.AttachmentStore
	publisher         events.Publisher
	mailer            email.Sender
	validate          *validator.Validate
	logger            *slog.Logger
	attachmentTimeout time.Duration
	now               func() time.Time
}

type Option func(*CandidateUsecase)

// WithAttachmentTimeout bounds every attachment store call.
func WithAttachmentTimeout(d time.Duration) Option {
	return func(u *CandidateUsecase) {
		if d > 0 {
			u.attachmentTimeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(u *CandidateUsecase) { u.now = now }
}

func NewCandidateUsecase(
	candidates repository.CandidateRepository,
	users repository.UserRepository,
	attachments repository.AttachmentStore,
	publisher events.Publisher,
	mailer email.Sender,
	logger *slog.Logger,
	opts ...Option,
) *CandidateUsecase {
	u := &CandidateUsecase{
		candidates:        candidates,
		users:             users,
		attachments:       attachments,
		publisher:         publisher,
		mailer:            mailer,
		validate:          newValidator(),
		logger:            logger.With("component", "candidate_usecase"),
		attachmentTimeout: defaultAttachmentTimeout,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Create validates and stores a new referral. The resume is written only
// after the email is known to be free, and removed again if the insert
// loses a race on the unique email index.
func (u *CandidateUsecase) Create(ctx context.Context, in CreateCandidateInput, referrer *domain.Identity, resume *ResumeUpload) (*domain.Candidate, error) {
	c := &domain.Candidate{
		Name:     strings.TrimSpace(in.Name),
		Email:    normalizeEmail(in.Email),
		Phone:    strings.TrimSpace(in.Phone),
		JobTitle: strings.TrimSpace(in.JobTitle),
		Notes:    strings.TrimSpace(in.Notes),
		Status:   domain.StatusPending,
	}

	verr := &domain.ValidationError{}
	checkField(u.validate, verr, "name", c.Name)
	checkField(u.validate, verr, "email", c.Email)
	checkField(u.validate, verr, "phone", c.Phone)
	checkField(u.validate, verr, "job_title", c.JobTitle)
	checkField(u.validate, verr, "notes", c.Notes)
	if resume != nil {
		checkResume(verr, resume)
	}
	if err := verr.OrNil(); err != nil {
		u.countOp("create", err)
		return nil, err
	}

	if err := u.ensureEmailFree(ctx, c.Email); err != nil {
		u.countOp("create", err)
		return nil, err
	}

	c.ID = uuid.NewString()
	if referrer != nil && referrer.UserID != "" {
		referredBy := referrer.UserID
		c.ReferredBy = &referredBy
	}

	if resume != nil {
		handle, err := u.storeResume(ctx, c.ID, resume)
		if err != nil {
			u.countOp("create", err)
			return nil, fmt.Errorf("create candidate: %w", err)
		}
		c.Resume = &handle
	}

	now := u.now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	created, err := u.candidates.Create(ctx, c)
	if err != nil {
		if c.Resume != nil {
			u.discardResume(ctx, *c.Resume, "create failed")
		}
		u.countOp("create", err)
		return nil, fmt.Errorf("create candidate: %w", err)
	}

	u.countOp("create", nil)
	u.publisher.Publish(ctx, events.New(events.CandidateCreated, created, now))
	return created, nil
}

func (u *CandidateUsecase) ensureEmailFree(ctx context.Context, email string) error {
	_, err := u.candidates.FindByEmail(ctx, email)
	switch {
	case err == nil:
		return domain.ErrDuplicateEmail
	case errors.Is(err, domain.ErrCandidateNotFound):
		return nil
	default:
		return fmt.Errorf("check email: %w", err)
	}
}

// Update applies the present fields of in and optionally replaces the
// resume. The email is not re-checked here; the unique index still
// rejects a collision with domain.ErrDuplicateEmail.
func (u *CandidateUsecase) Update(ctx context.Context, id string, in UpdateCandidateInput, resume *ResumeUpload) (*domain.Candidate, error) {
	current, err := u.candidates.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("update candidate: %w", err)
	}

	var patch repository.CandidatePatch
	verr := &domain.ValidationError{}
	if in.Name != nil {
		v := strings.TrimSpace(*in.Name)
		checkField(u.validate, verr, "name", v)
		patch.Name = &v
	}
	if in.Email != nil {
		v := normalizeEmail(*in.Email)
		checkField(u.validate, verr, "email", v)
		patch.Email = &v
	}
	if in.Phone != nil {
		v := strings.TrimSpace(*in.Phone)
		checkField(u.validate, verr, "phone", v)
		patch.Phone = &v
	}
	if in.JobTitle != nil {
		v := strings.TrimSpace(*in.JobTitle)
		checkField(u.validate, verr, "job_title", v)
		patch.JobTitle = &v
	}
	if in.Notes != nil {
		v := strings.TrimSpace(*in.Notes)
		checkField(u.validate, verr, "notes", v)
		patch.Notes = &v
	}
	if resume != nil {
		checkResume(verr, resume)
	}
	if err := verr.OrNil(); err != nil {
		u.countOp("update", err)
		return nil, err
	}

	if resume != nil {
		handle, err := u.storeResume(ctx, current.ID, resume)
		if err != nil {
			u.countOp("update", err)
			return nil, fmt.Errorf("update candidate: %w", err)
		}
		patch.SetResume = true
		patch.Resume = &handle
	}

	now := u.now().UTC()
	patch.UpdatedAt = now

	updated, err := u.candidates.Update(ctx, current.ID, patch)
	if err != nil {
		if patch.Resume != nil {
			u.discardResume(ctx, *patch.Resume, "update failed")
		}
		u.countOp("update", err)
		return nil, fmt.Errorf("update candidate: %w", err)
	}

	// The new resume is committed; only now is the old one safe to drop.
	if patch.Resume != nil && current.Resume != nil && current.Resume.Key != patch.Resume.Key {
		u.discardResume(ctx, *current.Resume, "replaced")
	}

	u.countOp("update", nil)
	u.publisher.Publish(ctx, events.New(events.CandidateUpdated, updated, now))
	return updated, nil
}

// SetStatus moves a candidate to any status, including its current one.
// The referrer is emailed when the status actually changes.
func (u *CandidateUsecase) SetStatus(ctx context.Context, id, status string) (*domain.Candidate, error) {
	next := domain.Status(strings.TrimSpace(status))
	if !next.Valid() {
		err := domain.NewValidationError("status", "Status must be one of Pending, Reviewed, Hired, Rejected")
		u.countOp("set_status", err)
		return nil, err
	}

	current, err := u.candidates.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("set status: %w", err)
	}

	now := u.now().UTC()
	updated, err := u.candidates.Update(ctx, current.ID, repository.CandidatePatch{Status: &next, UpdatedAt: now})
	if err != nil {
		u.countOp("set_status", err)
		return nil, fmt.Errorf("set status: %w", err)
	}

	u.countOp("set_status", nil)
	e := events.New(events.CandidateStatusChanged, updated, now)
	e.PreviousStatus = current.Status
	u.publisher.Publish(ctx, e)

	if current.Status != next {
		u.notifyReferrer(ctx, updated)
	}
	return updated, nil
}

func (u *CandidateUsecase) notifyReferrer(ctx context.Context, c *domain.Candidate) {
	if c.ReferredBy == nil {
		return
	}
	referrer, err := u.users.FindByID(ctx, *c.ReferredBy)
	if err != nil {
		u.logger.WarnContext(ctx, "referrer lookup failed", "candidate_id", c.ID, "user_id", *c.ReferredBy, "error", err)
		return
	}
	if referrer.Email == "" {
		return
	}

	subject, body := email.StatusChanged(referrer.Name, c.Name, c.JobTitle, string(c.Status))
	if err := u.mailer.Send(ctx, referrer.Email, subject, body); err != nil {
		u.logger.WarnContext(ctx, "referrer notification failed", "candidate_id", c.ID, "error", err)
	}
}

// Delete removes the candidate. A resume that cannot be deleted is logged
// and left for the janitor; it never blocks the delete.
func (u *CandidateUsecase) Delete(ctx context.Context, id string) error {
	current, err := u.candidates.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("delete candidate: %w", err)
	}

	if current.Resume != nil {
		u.discardResume(ctx, *current.Resume, "candidate deleted")
	}

	if err := u.candidates.Delete(ctx, current.ID); err != nil {
		u.countOp("delete", err)
		return fmt.Errorf("delete candidate: %w", err)
	}

	u.countOp("delete", nil)
	u.publisher.Publish(ctx, events.New(events.CandidateDeleted, current, u.now().UTC()))
	return nil
}

func (u *CandidateUsecase) Get(ctx context.Context, id string) (*domain.Candidate, error) {
	c, err := u.candidates.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get candidate: %w", err)
	}
	return c, nil
}

// GetResume returns the candidate's resume bytes with the original
// filename and MIME type.
func (u *CandidateUsecase) GetResume(ctx context.Context, id string) (*domain.AttachmentContent, error) {
	c, err := u.candidates.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get resume: %w", err)
	}
	if c.Resume == nil {
		return nil, domain.ErrResumeNotFound
	}

	actx, cancel := context.WithTimeout(ctx, u.attachmentTimeout)
	defer cancel()

	start := time.Now()
	content, err := u.attachments.Retrieve(actx, *c.Resume)
	metrics.ObserveAttachment("retrieve", start, err)
	if err != nil {
		if errors.Is(err, domain.ErrAttachmentNotFound) {
			u.logger.WarnContext(ctx, "resume handle points at a missing object", "candidate_id", c.ID, "key", c.Resume.Key)
			return nil, domain.ErrResumeNotFound
		}
		return nil, fmt.Errorf("get resume: %w", asStorageError("retrieve", err))
	}
	return content, nil
}

func (u *CandidateUsecase) List(ctx context.Context, params query.Params) ([]*domain.Candidate, error) {
	candidates, err := u.candidates.List(ctx, query.Build(params))
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	return candidates, nil
}

// Stats counts candidates per status in one query; Total is the sum of
// the buckets.
func (u *CandidateUsecase) Stats(ctx context.Context) (*domain.Stats, error) {
	counts, err := u.candidates.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("candidate stats: %w", err)
	}
	return domain.NewStats(counts), nil
}

func (u *CandidateUsecase) storeResume(ctx context.Context, candidateID string, r *ResumeUpload) (domain.Attachment, error) {
	actx, cancel := context.WithTimeout(ctx, u.attachmentTimeout)
	defer cancel()

	start := time.Now()
	handle, err := u.attachments.Store(actx, candidateID, r.Data, resumeFilename(r.Filename), pdfMimeType)
	metrics.ObserveAttachment("store", start, err)
	if err != nil {
		return domain.Attachment{}, asStorageError("store", err)
	}
	return handle, nil
}

// discardResume deletes a resume best-effort. It runs detached from the
// request's cancellation so a client disconnect does not strand the file.
func (u *CandidateUsecase) discardResume(ctx context.Context, handle domain.Attachment, reason string) {
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), u.attachmentTimeout)
	defer cancel()

	start := time.Now()
	err := u.attachments.Delete(actx, handle)
	metrics.ObserveAttachment("delete", start, err)
	if err != nil {
		metrics.AttachmentCleanupFailuresTotal.Inc()
		u.logger.ErrorContext(ctx, "attachment cleanup failed", "key", handle.Key, "reason", reason, "error", err)
	}
}

func (u *CandidateUsecase) countOp(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = domain.KindOf(err)
	}
	metrics.CandidateOpsTotal.WithLabelValues(op, outcome).Inc()
}

// asStorageError makes sure every store failure, including a timeout on
// a store that does not classify its own errors, surfaces as StorageError.
func asStorageError(op string, err error) error {
	var se *domain.StorageError
	if errors.As(err, &se) || errors.Is(err, domain.ErrNotFound) {
		return err
	}
	return &domain.StorageError{
		Op:        op,
		Transient: errors.Is(err, context.DeadlineExceeded),
		Err:       err,
	}
}
