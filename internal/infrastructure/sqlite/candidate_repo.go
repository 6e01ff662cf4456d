package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ErlanBelekov/referral-tracker/internal/domain"
	"github.com/ErlanBelekov/referral-tracker/internal/query"
	"github.com/ErlanBelekov/referral-tracker/internal/repository"
	"gorm.io/gorm"
)

type CandidateRepository struct {
	db *gorm.DB
}

func NewCandidateRepository(db *gorm.DB) *CandidateRepository {
	return &CandidateRepository{db: db}
}

func (r *CandidateRepository) Create(ctx context.Context, c *domain.Candidate) (*domain.Candidate, error) {
	rec := toRecord(c)
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrDuplicateEmail
		}
		return nil, fmt.Errorf("create candidate: %w", err)
	}
	return rec.toDomain(), nil
}

func (r *CandidateRepository) GetByID(ctx context.Context, id string) (*domain.Candidate, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *CandidateRepository) FindByEmail(ctx context.Context, email string) (*domain.Candidate, error) {
	return r.first(ctx, "email = ?", email)
}

func (r *CandidateRepository) first(ctx context.Context, cond string, arg any) (*domain.Candidate, error) {
	var rec candidateRecord
	err := r.db.WithContext(ctx).Where(cond, arg).Take(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrCandidateNotFound
		}
		return nil, fmt.Errorf("get candidate: %w", err)
	}
	return rec.toDomain(), nil
}

func (r *CandidateRepository) List(ctx context.Context, filter repository.CandidateFilter) ([]*domain.Candidate, error) {
	if filter.MatchNone {
		return []*domain.Candidate{}, nil
	}

	tx := r.db.WithContext(ctx).Model(&candidateRecord{})
	if filter.Status != nil {
		tx = tx.Where("status = ?", string(*filter.Status))
	}
	if filter.JobTitle != "" {
		tx = tx.Where(`job_title_lc LIKE ? ESCAPE '\'`, query.LikePattern(filter.JobTitle))
	}
	if filter.Search != "" {
		p := query.LikePattern(filter.Search)
		tx = tx.Where(`(name_lc LIKE ? ESCAPE '\' OR email_lc LIKE ? ESCAPE '\' OR job_title_lc LIKE ? ESCAPE '\')`, p, p, p)
	}

	var recs []candidateRecord
	if err := tx.Order("created_at DESC").Order("id DESC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}

	candidates := make([]*domain.Candidate, 0, len(recs))
	for i := range recs {
		candidates = append(candidates, recs[i].toDomain())
	}
	return candidates, nil
}

func (r *CandidateRepository) Update(ctx context.Context, id string, patch repository.CandidatePatch) (*domain.Candidate, error) {
	var updated *domain.Candidate
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&candidateRecord{}).Where("id = ?", id).Updates(patchColumns(patch))
		if res.Error != nil {
			if isUniqueViolation(res.Error) {
				return domain.ErrDuplicateEmail
			}
			return fmt.Errorf("update candidate: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return domain.ErrCandidateNotFound
		}

		var rec candidateRecord
		if err := tx.Where("id = ?", id).Take(&rec).Error; err != nil {
			return fmt.Errorf("reload candidate: %w", err)
		}
		updated = rec.toDomain()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// patchColumns uses a map so zero values such as empty notes are written.
func patchColumns(p repository.CandidatePatch) map[string]any {
	cols := map[string]any{"updated_at": p.UpdatedAt.UTC()}
	if p.Name != nil {
		cols["name"] = *p.Name
		cols["name_lc"] = fold(*p.Name)
	}
	if p.Email != nil {
		cols["email"] = *p.Email
		cols["email_lc"] = fold(*p.Email)
	}
	if p.Phone != nil {
		cols["phone"] = *p.Phone
	}
	if p.JobTitle != nil {
		cols["job_title"] = *p.JobTitle
		cols["job_title_lc"] = fold(*p.JobTitle)
	}
	if p.Status != nil {
		cols["status"] = string(*p.Status)
	}
	if p.Notes != nil {
		cols["notes"] = *p.Notes
	}
	if p.SetResume {
		if p.Resume == nil {
			cols["resume_key"] = nil
			cols["resume_filename"] = nil
			cols["resume_mime_type"] = nil
			cols["resume_size"] = nil
		} else {
			cols["resume_key"] = p.Resume.Key
			cols["resume_filename"] = p.Resume.Filename
			cols["resume_mime_type"] = p.Resume.MimeType
			cols["resume_size"] = p.Resume.Size
		}
	}
	return cols
}

func (r *CandidateRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Delete(&candidateRecord{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("delete candidate: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrCandidateNotFound
	}
	return nil
}

func (r *CandidateRepository) CountByStatus(ctx context.Context) (map[domain.Status]int64, error) {
	var rows []struct {
		Status string
		N      int64
	}
	err := r.db.WithContext(ctx).Model(&candidateRecord{}).
		Select("status, COUNT(*) AS n").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("count candidates: %w", err)
	}

	counts := make(map[domain.Status]int64, len(rows))
	for _, row := range rows {
		counts[domain.Status(row.Status)] = row.N
	}
	return counts, nil
}

func (r *CandidateRepository) AttachmentKeys(ctx context.Context) ([]string, error) {
	var keys []string
	err := r.db.WithContext(ctx).Model(&candidateRecord{}).
		Where("resume_key IS NOT NULL").
		Pluck("resume_key", &keys).Error
	if err != nil {
		return nil, fmt.Errorf("list attachment keys: %w", err)
	}
	return keys, nil
}

// isUniqueViolation covers drivers that do not translate to
// gorm.ErrDuplicatedKey.
func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// fold lower-cases with full Unicode rules to match query.LikePattern.
func fold(s string) string { return strings.ToLower(s) }

func toRecord(c *domain.Candidate) *candidateRecord {
	rec := &candidateRecord{
		ID:         c.ID,
		Name:       c.Name,
		Email:      c.Email,
		Phone:      c.Phone,
		JobTitle:   c.JobTitle,
		NameLC:     fold(c.Name),
		EmailLC:    fold(c.Email),
		JobTitleLC: fold(c.JobTitle),
		Status:     string(c.Status),
		Notes:      c.Notes,
		ReferredBy: c.ReferredBy,
		CreatedAt:  c.CreatedAt.UTC(),
		UpdatedAt:  c.UpdatedAt.UTC(),
	}
	if c.Resume != nil {
		res := *c.Resume
		rec.ResumeKey = &res.Key
		rec.ResumeFilename = &res.Filename
		rec.ResumeMimeType = &res.MimeType
		rec.ResumeSize = &res.Size
	}
	return rec
}

func (rec *candidateRecord) toDomain() *domain.Candidate {
	c := &domain.Candidate{
		ID:         rec.ID,
		Name:       rec.Name,
		Email:      rec.Email,
		Phone:      rec.Phone,
		JobTitle:   rec.JobTitle,
		Status:     domain.Status(rec.Status),
		Notes:      rec.Notes,
		ReferredBy: rec.ReferredBy,
		CreatedAt:  rec.CreatedAt.UTC(),
		UpdatedAt:  rec.UpdatedAt.UTC(),
	}
	if rec.ResumeKey != nil {
		c.Resume = &domain.Attachment{Key: *rec.ResumeKey}
		if rec.ResumeFilename != nil {
			c.Resume.Filename = *rec.ResumeFilename
		}
		if rec.ResumeMimeType != nil {
			c.Resume.MimeType = *rec.ResumeMimeType
		}
		if rec.ResumeSize != nil {
			c.Resume.Size = *rec.ResumeSize
		}
	}
	return c
}
