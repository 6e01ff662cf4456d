package handler

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/ErlanBelekov/referral-tracker/internal/domain"
	"github.com/ErlanBelekov/referral-tracker/internal/identity"
	"github.com/ErlanBelekov/referral-tracker/internal/query"
	"github.com/ErlanBelekov/referral-tracker/internal/usecase"
	"github.com/gin-gonic/gin"
)

// Body caps leave room for the other fields around a maximum-size resume.
// JSON carries the resume base64-encoded.
var (
	maxFormBodyBytes int64 = usecase.MaxResumeBytes + 1<<20
	maxJSONBodyBytes       = int64(base64.StdEncoding.EncodedLen(usecase.MaxResumeBytes)) + 1<<20
)

type candidateService interface {
	Create(ctx context.Context, in usecase.CreateCandidateInput, referrer *domain.Identity, resume *usecase.ResumeUpload) (*domain.Candidate, error)
	Update(ctx context.Context, id string, in usecase.UpdateCandidateInput, resume *usecase.ResumeUpload) (*domain.Candidate, error)
	SetStatus(ctx context.Context, id, status string) (*domain.Candidate, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*domain.Candidate, error)
	GetResume(ctx context.Context, id string) (*domain.AttachmentContent, error)
	List(ctx context.Context, params query.Params) ([]*domain.Candidate, error)
	Stats(ctx context.Context) (*domain.Stats, error)
}

type CandidateHandler struct {
	candidates candidateService
	logger     *slog.Logger
}

func NewCandidateHandler(candidates candidateService, logger *slog.Logger) *CandidateHandler {
	return &CandidateHandler{candidates: candidates, logger: logger.With("component", "candidate_handler")}
}

// jsonResume lets JSON clients send a resume inline; Data is base64.
type jsonResume struct {
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
	Data     []byte `json:"data"`
}

type createCandidateRequest struct {
	Name     string      `json:"name"`
	Email    string      `json:"email"`
	Phone    string      `json:"phone"`
	JobTitle string      `json:"job_title"`
	Notes    string      `json:"notes"`
	Resume   *jsonResume `json:"resume"`
}

type updateCandidateRequest struct {
	Name     *string     `json:"name"`
	Email    *string     `json:"email"`
	Phone    *string     `json:"phone"`
	JobTitle *string     `json:"job_title"`
	Notes    *string     `json:"notes"`
	Resume   *jsonResume `json:"resume"`
}

type setStatusRequest struct {
	Status string `json:"status"`
}

type resumeResponse struct {
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
	URL      string `json:"url"`
}

type candidateResponse struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Email      string          `json:"email"`
	Phone      string          `json:"phone"`
	JobTitle   string          `json:"job_title"`
	Status     domain.Status   `json:"status"`
	Notes      string          `json:"notes"`
	ReferredBy *string         `json:"referred_by"`
	Resume     *resumeResponse `json:"resume"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

type listCandidatesResponse struct {
	Count      int                 `json:"count"`
	Candidates []candidateResponse `json:"candidates"`
}

type statsResponse struct {
	Total    int64            `json:"total"`
	ByStatus map[string]int64 `json:"by_status"`
}

func toResponse(c *domain.Candidate) candidateResponse {
	resp := candidateResponse{
		ID:         c.ID,
		Name:       c.Name,
		Email:      c.Email,
		Phone:      c.Phone,
		JobTitle:   c.JobTitle,
		Status:     c.Status,
		Notes:      c.Notes,
		ReferredBy: c.ReferredBy,
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}
	if c.Resume != nil {
		resp.Resume = &resumeResponse{
			Filename: c.Resume.Filename,
			MimeType: c.Resume.MimeType,
			Size:     c.Resume.Size,
			URL:      "/api/candidates/" + c.ID + "/resume",
		}
	}
	return resp
}

func (h *CandidateHandler) List(ctx *gin.Context) {
	candidates, err := h.candidates.List(ctx.Request.Context(), query.Params{
		Status:   ctx.Query("status"),
		JobTitle: ctx.Query("job_title"),
		Search:   ctx.Query("search"),
	})
	if err != nil {
		h.fail(ctx, "list candidates", err)
		return
	}

	items := make([]candidateResponse, len(candidates))
	for i, c := range candidates {
		items[i] = toResponse(c)
	}
	ctx.JSON(http.StatusOK, listCandidatesResponse{Count: len(items), Candidates: items})
}

func (h *CandidateHandler) Stats(ctx *gin.Context) {
	stats, err := h.candidates.Stats(ctx.Request.Context())
	if err != nil {
		h.fail(ctx, "candidate stats", err)
		return
	}

	byStatus := make(map[string]int64, len(stats.ByStatus))
	for s, n := range stats.ByStatus {
		byStatus[strings.ToLower(string(s))] = n
	}
	ctx.JSON(http.StatusOK, statsResponse{Total: stats.Total, ByStatus: byStatus})
}

func (h *CandidateHandler) GetByID(ctx *gin.Context) {
	c, err := h.candidates.Get(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		h.fail(ctx, "get candidate", err)
		return
	}
	ctx.JSON(http.StatusOK, toResponse(c))
}

func (h *CandidateHandler) Resume(ctx *gin.Context) {
	content, err := h.candidates.GetResume(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		h.fail(ctx, "get resume", err)
		return
	}

	disposition := mime.FormatMediaType("inline", map[string]string{"filename": content.Filename})
	if disposition == "" {
		disposition = "inline"
	}
	ctx.Header("Content-Disposition", disposition)
	ctx.Header("Cache-Control", "private, no-store")
	ctx.Data(http.StatusOK, content.MimeType, content.Data)
}

func (h *CandidateHandler) Create(ctx *gin.Context) {
	limitBody(ctx)

	var (
		in     usecase.CreateCandidateInput
		resume *usecase.ResumeUpload
	)
	if isMultipart(ctx) {
		var err error
		if resume, err = formResume(ctx); err != nil {
			h.badBody(ctx, err)
			return
		}
		in = usecase.CreateCandidateInput{
			Name:     ctx.PostForm("name"),
			Email:    ctx.PostForm("email"),
			Phone:    ctx.PostForm("phone"),
			JobTitle: ctx.PostForm("job_title"),
			Notes:    ctx.PostForm("notes"),
		}
	} else {
		var req createCandidateRequest
		if err := ctx.ShouldBindJSON(&req); err != nil {
			h.badBody(ctx, err)
			return
		}
		in = usecase.CreateCandidateInput{
			Name:     req.Name,
			Email:    req.Email,
			Phone:    req.Phone,
			JobTitle: req.JobTitle,
			Notes:    req.Notes,
		}
		resume = req.Resume.upload()
	}

	c, err := h.candidates.Create(ctx.Request.Context(), in, identity.FromContext(ctx.Request.Context()), resume)
	if err != nil {
		h.fail(ctx, "create candidate", err)
		return
	}
	ctx.JSON(http.StatusCreated, toResponse(c))
}

func (h *CandidateHandler) Update(ctx *gin.Context) {
	limitBody(ctx)

	var (
		in     usecase.UpdateCandidateInput
		resume *usecase.ResumeUpload
	)
	if isMultipart(ctx) {
		var err error
		if resume, err = formResume(ctx); err != nil {
			h.badBody(ctx, err)
			return
		}
		in = usecase.UpdateCandidateInput{
			Name:     postFormPtr(ctx, "name"),
			Email:    postFormPtr(ctx, "email"),
			Phone:    postFormPtr(ctx, "phone"),
			JobTitle: postFormPtr(ctx, "job_title"),
			Notes:    postFormPtr(ctx, "notes"),
		}
	} else {
		var req updateCandidateRequest
		if err := ctx.ShouldBindJSON(&req); err != nil {
			h.badBody(ctx, err)
			return
		}
		in = usecase.UpdateCandidateInput{
			Name:     req.Name,
			Email:    req.Email,
			Phone:    req.Phone,
			JobTitle: req.JobTitle,
			Notes:    req.Notes,
		}
		resume = req.Resume.upload()
	}

	c, err := h.candidates.Update(ctx.Request.Context(), ctx.Param("id"), in, resume)
	if err != nil {
		h.fail(ctx, "update candidate", err)
		return
	}
	ctx.JSON(http.StatusOK, toResponse(c))
}

func (h *CandidateHandler) SetStatus(ctx *gin.Context) {
	var req setStatusRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		h.badBody(ctx, err)
		return
	}

	c, err := h.candidates.SetStatus(ctx.Request.Context(), ctx.Param("id"), req.Status)
	if err != nil {
		h.fail(ctx, "set status", err)
		return
	}
	ctx.JSON(http.StatusOK, toResponse(c))
}

func (h *CandidateHandler) Delete(ctx *gin.Context) {
	if err := h.candidates.Delete(ctx.Request.Context(), ctx.Param("id")); err != nil {
		h.fail(ctx, "delete candidate", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": msgCandidateDeleted})
}

func limitBody(ctx *gin.Context) {
	limit := maxJSONBodyBytes
	if isMultipart(ctx) {
		limit = maxFormBodyBytes
	}
	ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, limit)
}

func isMultipart(ctx *gin.Context) bool {
	return ctx.ContentType() == "multipart/form-data"
}

// postFormPtr distinguishes an absent form field (nil) from an empty one.
func postFormPtr(ctx *gin.Context, key string) *string {
	v, ok := ctx.GetPostForm(key)
	if !ok {
		return nil
	}
	return &v
}

// formResume reads the optional "resume" file part. One byte past the
// limit is read so oversize files fail validation instead of truncating.
func formResume(ctx *gin.Context) (*usecase.ResumeUpload, error) {
	fh, err := ctx.FormFile("resume")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, usecase.MaxResumeBytes+1))
	if err != nil {
		return nil, err
	}
	return &usecase.ResumeUpload{
		Filename: fh.Filename,
		MimeType: fh.Header.Get("Content-Type"),
		Data:     data,
	}, nil
}

func (r *jsonResume) upload() *usecase.ResumeUpload {
	if r == nil {
		return nil
	}
	return &usecase.ResumeUpload{Filename: r.Filename, MimeType: r.MimeType, Data: r.Data}
}
