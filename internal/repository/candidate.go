package repository

import (
	"context"
	"time"

	"github.com/ErlanBelekov/referral-tracker/internal/domain"
)

// CandidateFilter is the predicate a list query applies. All set
// constraints AND together. Results are ordered created_at DESC, id DESC.
type CandidateFilter struct {
	Status    *domain.Status // nil = any status
	MatchNone bool           // unrecognised status filter; yields no rows
	JobTitle  string         // case-insensitive substring of job_title
	Search    string         // case-insensitive substring of name, email or job_title
}

// CandidatePatch lists the columns an update writes. Nil fields are left
// untouched. Resume is written only when SetResume is true, so a patch can
// also clear it.
type CandidatePatch struct {
	Name      *string
	Email     *string
	Phone     *string
	JobTitle  *string
	Status    *domain.Status
	Notes     *string
	SetResume bool
	Resume    *domain.Attachment
	UpdatedAt time.Time
}

type CandidateRepository interface {
	// Create inserts c. A unique-email violation returns domain.ErrDuplicateEmail.
	Create(ctx context.Context, c *domain.Candidate) (*domain.Candidate, error)
	GetByID(ctx context.Context, id string) (*domain.Candidate, error)
	// FindByEmail looks up by the already-normalized email.
	FindByEmail(ctx context.Context, email string) (*domain.Candidate, error)
	List(ctx context.Context, filter CandidateFilter) ([]*domain.Candidate, error)
	// Update applies patch and returns the stored record.
	Update(ctx context.Context, id string, patch CandidatePatch) (*domain.Candidate, error)
	Delete(ctx context.Context, id string) error
	CountByStatus(ctx context.Context) (map[domain.Status]int64, error)
	// AttachmentKeys returns the key of every resume still referenced by a candidate.
	AttachmentKeys(ctx context.Context) ([]string, error)
}
