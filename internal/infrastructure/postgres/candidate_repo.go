package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ErlanBelekov/referral-tracker/internal/domain"
	"github.com/ErlanBelekov/referral-tracker/internal/query"
	"github.com/ErlanBelekov/referral-tracker/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const candidateColumns = `id, name, email, phone, job_title, status, notes, referred_by,
	resume_key, resume_filename, resume_mime_type, resume_size, created_at, updated_at`

type CandidateRepository struct {
	pool *pgxpool.Pool
}

func NewCandidateRepository(pool *pgxpool.Pool) *CandidateRepository {
	return &CandidateRepository{pool: pool}
}

func (r *CandidateRepository) Create(ctx context.Context, c *domain.Candidate) (*domain.Candidate, error) {
	stmt := `
		INSERT INTO candidates (
			id, name, email, phone, job_title, status, notes, referred_by,
			resume_key, resume_filename, resume_mime_type, resume_size, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING ` + candidateColumns

	key, filename, mimeType, size := resumeArgs(c.Resume)
	row := r.pool.QueryRow(ctx, stmt,
		c.ID,
		c.Name,
		c.Email,
		c.Phone,
		c.JobTitle,
		string(c.Status),
		c.Notes,
		c.ReferredBy,
		key,
		filename,
		mimeType,
		size,
		c.CreatedAt,
		c.UpdatedAt,
	)

	created, err := scanCandidate(row)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return created, nil
}

func (r *CandidateRepository) GetByID(ctx context.Context, id string) (*domain.Candidate, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrCandidateNotFound
	}
	row := r.pool.QueryRow(ctx, `SELECT `+candidateColumns+` FROM candidates WHERE id = $1`, id)
	return scanCandidate(row)
}

func (r *CandidateRepository) FindByEmail(ctx context.Context, email string) (*domain.Candidate, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+candidateColumns+` FROM candidates WHERE email = $1`, email)
	return scanCandidate(row)
}

func (r *CandidateRepository) List(ctx context.Context, filter repository.CandidateFilter) ([]*domain.Candidate, error) {
	if filter.MatchNone {
		return []*domain.Candidate{}, nil
	}

	sql, args := buildListQuery(filter)
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	defer rows.Close()

	candidates := []*domain.Candidate{}
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	return candidates, nil
}

func buildListQuery(filter repository.CandidateFilter) (string, []any) {
	var (
		args  []any
		where []string
	)

	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.JobTitle != "" {
		args = append(args, query.LikePattern(filter.JobTitle))
		where = append(where, fmt.Sprintf(`LOWER(job_title) LIKE $%d ESCAPE '\'`, len(args)))
	}
	if filter.Search != "" {
		args = append(args, query.LikePattern(filter.Search))
		n := len(args)
		where = append(where, fmt.Sprintf(
			`(LOWER(name) LIKE $%d ESCAPE '\' OR LOWER(email) LIKE $%d ESCAPE '\' OR LOWER(job_title) LIKE $%d ESCAPE '\')`,
			n, n, n))
	}

	sql := `SELECT ` + candidateColumns + ` FROM candidates`
	if len(where) > 0 {
		sql += ` WHERE ` + strings.Join(where, " AND ")
	}
	sql += ` ORDER BY created_at DESC, id DESC`
	return sql, args
}

func (r *CandidateRepository) Update(ctx context.Context, id string, patch repository.CandidatePatch) (*domain.Candidate, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrCandidateNotFound
	}

	sql, args := buildUpdate(id, patch)
	updated, err := scanCandidate(r.pool.QueryRow(ctx, sql, args...))
	if err != nil {
		return nil, mapWriteError(err)
	}
	return updated, nil
}

// buildUpdate writes only the patched columns so concurrent updates of
// different fields do not overwrite each other.
func buildUpdate(id string, patch repository.CandidatePatch) (string, []any) {
	args := []any{id}
	var set []string

	add := func(column string, value any) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Name != nil {
		add("name", *patch.Name)
	}
	if patch.Email != nil {
		add("email", *patch.Email)
	}
	if patch.Phone != nil {
		add("phone", *patch.Phone)
	}
	if patch.JobTitle != nil {
		add("job_title", *patch.JobTitle)
	}
	if patch.Status != nil {
		add("status", string(*patch.Status))
	}
	if patch.Notes != nil {
		add("notes", *patch.Notes)
	}
	if patch.SetResume {
		key, filename, mimeType, size := resumeArgs(patch.Resume)
		add("resume_key", key)
		add("resume_filename", filename)
		add("resume_mime_type", mimeType)
		add("resume_size", size)
	}
	add("updated_at", patch.UpdatedAt)

	sql := `UPDATE candidates SET ` + strings.Join(set, ", ") + ` WHERE id = $1 RETURNING ` + candidateColumns
	return sql, args
}

func (r *CandidateRepository) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return domain.ErrCandidateNotFound
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM candidates WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete candidate: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCandidateNotFound
	}
	return nil
}

func (r *CandidateRepository) CountByStatus(ctx context.Context) (map[domain.Status]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM candidates GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count candidates: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.Status]int64)
	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[domain.Status(status)] = n
	}
	return counts, rows.Err()
}

func (r *CandidateRepository) AttachmentKeys(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT resume_key FROM candidates WHERE resume_key IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("list attachment keys: %w", err)
	}
	keys, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list attachment keys: %w", err)
	}
	return keys, nil
}

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanCandidate(row rowScanner) (*domain.Candidate, error) {
	var (
		c        domain.Candidate
		status   string
		key      *string
		filename *string
		mimeType *string
		size     *int64
	)
	err := row.Scan(
		&c.ID,
		&c.Name,
		&c.Email,
		&c.Phone,
		&c.JobTitle,
		&status,
		&c.Notes,
		&c.ReferredBy,
		&key,
		&filename,
		&mimeType,
		&size,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrCandidateNotFound
		}
		return nil, fmt.Errorf("scan candidate: %w", err)
	}

	c.Status = domain.Status(status)
	if key != nil {
		c.Resume = &domain.Attachment{Key: *key}
		if filename != nil {
			c.Resume.Filename = *filename
		}
		if mimeType != nil {
			c.Resume.MimeType = *mimeType
		}
		if size != nil {
			c.Resume.Size = *size
		}
	}
	return &c, nil
}

func resumeArgs(a *domain.Attachment) (key, filename, mimeType *string, size *int64) {
	if a == nil {
		return nil, nil, nil, nil
	}
	return &a.Key, &a.Filename, &a.MimeType, &a.Size
}

func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "candidates_email_key" {
		return domain.ErrDuplicateEmail
	}
	return err
}
