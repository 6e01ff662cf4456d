package handler

import (
	"errors"
	"net/http"

	"github.com/ErlanBelekov/referral-tracker/internal/domain"
	"github.com/gin-gonic/gin"
)

const (
	errInternalServer     = "Internal server error"
	errValidation         = "Validation failed"
	errInvalidBody        = "Invalid request body"
	errResumeTooLarge     = "Resume must be 5 MB or smaller"
	errCandidateNotFound  = "Candidate not found"
	errResumeNotFound     = "Resume not found"
	errDuplicateEmail     = "A candidate with this email already exists"
	errStorageUnavailable = "Resume storage is temporarily unavailable"
	errStorage            = "Resume storage failed"
	errRouteNotFound      = "Route not found"

	msgCandidateDeleted = "Candidate deleted successfully"
)

type errorResponse struct {
	Error  string              `json:"error"`
	Kind   string              `json:"kind"`
	Fields []domain.FieldError `json:"fields,omitempty"`
}

// fail maps a usecase error to a response. Storage and internal errors are
// logged; their details never reach the client.
func (h *CandidateHandler) fail(ctx *gin.Context, op string, err error) {
	var (
		verr *domain.ValidationError
		serr *domain.StorageError
	)
	switch {
	case errors.As(err, &verr):
		ctx.JSON(http.StatusBadRequest, errorResponse{Error: errValidation, Kind: domain.KindValidation, Fields: verr.Fields})
	case errors.Is(err, domain.ErrDuplicateEmail):
		ctx.JSON(http.StatusConflict, errorResponse{Error: errDuplicateEmail, Kind: domain.KindConflict})
	case errors.Is(err, domain.ErrResumeNotFound):
		ctx.JSON(http.StatusNotFound, errorResponse{Error: errResumeNotFound, Kind: domain.KindNotFound})
	case errors.Is(err, domain.ErrNotFound):
		ctx.JSON(http.StatusNotFound, errorResponse{Error: errCandidateNotFound, Kind: domain.KindNotFound})
	case errors.As(err, &serr):
		h.logger.ErrorContext(ctx.Request.Context(), op, "error", err, "transient", serr.Transient)
		if serr.Transient {
			ctx.JSON(http.StatusServiceUnavailable, errorResponse{Error: errStorageUnavailable, Kind: domain.KindStorage})
			return
		}
		ctx.JSON(http.StatusInternalServerError, errorResponse{Error: errStorage, Kind: domain.KindStorage})
	default:
		h.logger.ErrorContext(ctx.Request.Context(), op, "error", err)
		ctx.JSON(http.StatusInternalServerError, errorResponse{Error: errInternalServer, Kind: domain.KindInternal})
	}
}

// badBody reports a request that could not be parsed at all.
func (h *CandidateHandler) badBody(ctx *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		ctx.JSON(http.StatusBadRequest, errorResponse{
			Error:  errValidation,
			Kind:   domain.KindValidation,
			Fields: []domain.FieldError{{Field: "resume", Message: errResumeTooLarge}},
		})
		return
	}
	h.logger.DebugContext(ctx.Request.Context(), "unparseable request body", "error", err)
	ctx.JSON(http.StatusBadRequest, errorResponse{Error: errInvalidBody, Kind: domain.KindValidation})
}

// NotFound answers requests that match no route.
func NotFound(ctx *gin.Context) {
	ctx.JSON(http.StatusNotFound, errorResponse{Error: errRouteNotFound, Kind: domain.KindNotFound})
}
