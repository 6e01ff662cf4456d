package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/ErlanBelekov/referral-tracker/internal/domain"
	"github.com/ErlanBelekov/referral-tracker/internal/query"
	"github.com/ErlanBelekov/referral-tracker/internal/transport/http/handler"
	"github.com/ErlanBelekov/referral-tracker/internal/usecase"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeCandidates implements the handler's unexported service interface via
// method matching. Unset funcs fail the test if called.
type fakeCandidates struct {
	t         *testing.T
	create    func(ctx context.Context, in usecase.CreateCandidateInput, ref *domain.Identity, r *usecase.ResumeUpload) (*domain.Candidate, error)
	update    func(ctx context.Context, id string, in usecase.UpdateCandidateInput, r *usecase.ResumeUpload) (*domain.Candidate, error)
	setStatus func(ctx context.Context, id, status string) (*domain.Candidate, error)
	delete    func(ctx context.Context, id string) error
	get       func(ctx context.Context, id string) (*domain.Candidate, error)
	getResume func(ctx context.Context, id string) (*domain.AttachmentContent, error)
	list      func(ctx context.Context, p query.Params) ([]*domain.Candidate, error)
	stats     func(ctx context.Context) (*domain.Stats, error)
}

func (f *fakeCandidates) unexpected(name string) {
	f.t.Helper()
	f.t.Fatalf("unexpected call to %s", name)
}

func (f *fakeCandidates) Create(ctx context.Context, in usecase.CreateCandidateInput, ref *domain.Identity, r *usecase.ResumeUpload) (*domain.Candidate, error) {
	if f.create == nil {
		f.unexpected("Create")
	}
	return f.create(ctx, in, ref, r)
}

func (f *fakeCandidates) Update(ctx context.Context, id string, in usecase.UpdateCandidateInput, r *usecase.ResumeUpload) (*domain.Candidate, error) {
	if f.update == nil {
		f.unexpected("Update")
	}
	return f.update(ctx, id, in, r)
}

func (f *fakeCandidates) SetStatus(ctx context.Context, id, status string) (*domain.Candidate, error) {
	if f.setStatus == nil {
		f.unexpected("SetStatus")
	}
	return f.setStatus(ctx, id, status)
}

func (f *fakeCandidates) Delete(ctx context.Context, id string) error {
	if f.delete == nil {
		f.unexpected("Delete")
	}
	return f.delete(ctx, id)
}

func (f *fakeCandidates) Get(ctx context.Context, id string) (*domain.Candidate, error) {
	if f.get == nil {
		f.unexpected("Get")
	}
	return f.get(ctx, id)
}

func (f *fakeCandidates) GetResume(ctx context.Context, id string) (*domain.AttachmentContent, error) {
	if f.getResume == nil {
		f.unexpected("GetResume")
	}
	return f.getResume(ctx, id)
}

func (f *fakeCandidates) List(ctx context.Context, p query.Params) ([]*domain.Candidate, error) {
	if f.list == nil {
		f.unexpected("List")
	}
	return f.list(ctx, p)
}

func (f *fakeCandidates) Stats(ctx context.Context) (*domain.Stats, error) {
	if f.stats == nil {
		f.unexpected("Stats")
	}
	return f.stats(ctx)
}

func newTestEngine(svc *fakeCandidates) *gin.Engine {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	h := handler.NewCandidateHandler(svc, logger)

	r := gin.New()
	g := r.Group("/api/candidates")
	g.GET("", h.List)
	g.GET("/stats", h.Stats)
	g.POST("", h.Create)
	g.GET("/:id", h.GetByID)
	g.GET("/:id/resume", h.Resume)
	g.PUT("/:id", h.Update)
	g.PUT("/:id/status", h.SetStatus)
	g.DELETE("/:id", h.Delete)
	return r
}

func sample() *domain.Candidate {
	at := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	return &domain.Candidate{
		ID: "c-1", Name: "Jane Doe", Email: "jane@example.com", Phone: "+1-555-0100",
		JobTitle: "Engineer", Status: domain.StatusPending, CreatedAt: at, UpdatedAt: at,
		Resume: &domain.Attachment{Key: "k", Filename: "cv.pdf", MimeType: "application/pdf", Size: 12},
	}
}

func do(r *gin.Engine, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

// ---- Create ----

func TestCreate_JSON_Returns201(t *testing.T) {
	svc := &fakeCandidates{t: t, create: func(_ context.Context, in usecase.CreateCandidateInput, ref *domain.Identity, r *usecase.ResumeUpload) (*domain.Candidate, error) {
		assert.Equal(t, "Jane Doe", in.Name)
		assert.Equal(t, "Engineer", in.JobTitle)
		assert.Nil(t, ref)
		require.NotNil(t, r)
		assert.Equal(t, []byte("%PDF-1.4"), r.Data)
		return sample(), nil
	}}

	body := `{"name":"Jane Doe","email":"JANE@Example.com","phone":"+1-555-0100","job_title":"Engineer",
		"resume":{"filename":"cv.pdf","mime_type":"application/pdf","data":"JVBERi0xLjQ="}}`
	w := do(newTestEngine(svc), http.MethodPost, "/api/candidates", strings.NewReader(body), "application/json")

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	out := decode(t, w)
	assert.Equal(t, "c-1", out["id"])
	assert.Equal(t, "Pending", out["status"])
	resume := out["resume"].(map[string]any)
	assert.Equal(t, "/api/candidates/c-1/resume", resume["url"])
	assert.NotContains(t, resume, "key")
}

func TestCreate_Multipart_ReadsFieldsAndFile(t *testing.T) {
	svc := &fakeCandidates{t: t, create: func(_ context.Context, in usecase.CreateCandidateInput, _ *domain.Identity, r *usecase.ResumeUpload) (*domain.Candidate, error) {
		assert.Equal(t, "Jane Doe", in.Name)
		assert.Equal(t, "met at conf", in.Notes)
		require.NotNil(t, r)
		assert.Equal(t, "cv.pdf", r.Filename)
		assert.Equal(t, "application/pdf", r.MimeType)
		assert.Equal(t, []byte("%PDF-1.7 data"), r.Data)
		return sample(), nil
	}}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range map[string]string{"name": "Jane Doe", "email": "jane@example.com", "phone": "555", "job_title": "Engineer", "notes": "met at conf"} {
		require.NoError(t, mw.WriteField(k, v))
	}
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", `form-data; name="resume"; filename="cv.pdf"`)
	hdr.Set("Content-Type", "application/pdf")
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, _ = part.Write([]byte("%PDF-1.7 data"))
	require.NoError(t, mw.Close())

	w := do(newTestEngine(svc), http.MethodPost, "/api/candidates", &buf, mw.FormDataContentType())
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestCreate_InvalidJSON_Returns400(t *testing.T) {
	w := do(newTestEngine(&fakeCandidates{t: t}), http.MethodPost, "/api/candidates", strings.NewReader(`{bad json}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation", decode(t, w)["kind"])
}

func jsonCreateBody(t *testing.T, resume []byte) *bytes.Reader {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"name": "Jane Doe", "email": "jane@example.com", "phone": "+1-555-0100", "job_title": "Engineer",
		"resume": map[string]any{"filename": "cv.pdf", "mime_type": "application/pdf", "data": resume},
	})
	require.NoError(t, err)
	return bytes.NewReader(body)
}

func TestCreate_JSON_AcceptsLargeEncodedResume(t *testing.T) {
	pdf := append([]byte("%PDF-1.4\n"), bytes.Repeat([]byte("x"), 4900<<10)...)

	called := false
	svc := &fakeCandidates{t: t, create: func(_ context.Context, _ usecase.CreateCandidateInput, _ *domain.Identity, r *usecase.ResumeUpload) (*domain.Candidate, error) {
		called = true
		require.NotNil(t, r)
		assert.Len(t, r.Data, len(pdf))
		return sample(), nil
	}}

	w := do(newTestEngine(svc), http.MethodPost, "/api/candidates", jsonCreateBody(t, pdf), "application/json")
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.True(t, called)
}

func TestCreate_JSON_BodyOverCapIsResumeError(t *testing.T) {
	big := bytes.Repeat([]byte("x"), usecase.MaxResumeBytes+2<<20)
	w := do(newTestEngine(&fakeCandidates{t: t}), http.MethodPost, "/api/candidates", jsonCreateBody(t, big), "application/json")

	require.Equal(t, http.StatusBadRequest, w.Code)
	fields := decode(t, w)["fields"].([]any)
	require.Len(t, fields, 1)
	assert.Equal(t, "resume", fields[0].(map[string]any)["field"])
}

func TestCreate_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantKind string
		wantMsg  string
	}{
		{"validation", &domain.ValidationError{Fields: []domain.FieldError{{Field: "email", Message: "Email is required"}}}, http.StatusBadRequest, "validation", "Validation failed"},
		{"duplicate", domain.ErrDuplicateEmail, http.StatusConflict, "conflict", "A candidate with this email already exists"},
		{"transient storage", &domain.StorageError{Op: "store", Transient: true, Err: context.DeadlineExceeded}, http.StatusServiceUnavailable, "storage", "Resume storage is temporarily unavailable"},
		{"storage", &domain.StorageError{Op: "store", Err: errors.New("/var/data: permission denied")}, http.StatusInternalServerError, "storage", "Resume storage failed"},
		{"internal", errors.New("pq: connection reset"), http.StatusInternalServerError, "internal", "Internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeCandidates{t: t, create: func(context.Context, usecase.CreateCandidateInput, *domain.Identity, *usecase.ResumeUpload) (*domain.Candidate, error) {
				return nil, tt.err
			}}
			w := do(newTestEngine(svc), http.MethodPost, "/api/candidates", strings.NewReader(`{"name":"x"}`), "application/json")

			assert.Equal(t, tt.wantCode, w.Code)
			out := decode(t, w)
			assert.Equal(t, tt.wantKind, out["kind"])
			assert.Equal(t, tt.wantMsg, out["error"])
			assert.NotContains(t, w.Body.String(), "permission denied")
			assert.NotContains(t, w.Body.String(), "connection reset")
		})
	}
}

func TestCreate_ValidationFieldsInBody(t *testing.T) {
	svc := &fakeCandidates{t: t, create: func(context.Context, usecase.CreateCandidateInput, *domain.Identity, *usecase.ResumeUpload) (*domain.Candidate, error) {
		verr := &domain.ValidationError{}
		verr.Add("name", "Name is required")
		verr.Add("phone", "Phone must be a valid phone number")
		return nil, fmt.Errorf("create: %w", verr)
	}}
	w := do(newTestEngine(svc), http.MethodPost, "/api/candidates", strings.NewReader(`{}`), "application/json")

	require.Equal(t, http.StatusBadRequest, w.Code)
	fields := decode(t, w)["fields"].([]any)
	require.Len(t, fields, 2)
	assert.Equal(t, "name", fields[0].(map[string]any)["field"])
}

// ---- Update ----

func TestUpdate_JSON_TracksPresence(t *testing.T) {
	svc := &fakeCandidates{t: t, update: func(_ context.Context, id string, in usecase.UpdateCandidateInput, r *usecase.ResumeUpload) (*domain.Candidate, error) {
		assert.Equal(t, "c-1", id)
		assert.Nil(t, in.Name)
		require.NotNil(t, in.Notes)
		assert.Equal(t, "", *in.Notes)
		require.NotNil(t, in.JobTitle)
		assert.Equal(t, "Lead", *in.JobTitle)
		assert.Nil(t, r)
		return sample(), nil
	}}
	w := do(newTestEngine(svc), http.MethodPut, "/api/candidates/c-1", strings.NewReader(`{"notes":"","job_title":"Lead"}`), "application/json")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUpdate_Multipart_TracksPresence(t *testing.T) {
	svc := &fakeCandidates{t: t, update: func(_ context.Context, _ string, in usecase.UpdateCandidateInput, r *usecase.ResumeUpload) (*domain.Candidate, error) {
		assert.Nil(t, in.Email)
		require.NotNil(t, in.Notes)
		assert.Equal(t, "", *in.Notes)
		assert.Nil(t, r)
		return sample(), nil
	}}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("notes", ""))
	require.NoError(t, mw.Close())

	w := do(newTestEngine(svc), http.MethodPut, "/api/candidates/c-1", &buf, mw.FormDataContentType())
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestUpdate_NotFound_Returns404(t *testing.T) {
	svc := &fakeCandidates{t: t, update: func(context.Context, string, usecase.UpdateCandidateInput, *usecase.ResumeUpload) (*domain.Candidate, error) {
		return nil, fmt.Errorf("update candidate: %w", domain.ErrCandidateNotFound)
	}}
	w := do(newTestEngine(svc), http.MethodPut, "/api/candidates/nope", strings.NewReader(`{}`), "application/json")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Candidate not found", decode(t, w)["error"])
}

// ---- SetStatus / Delete ----

func TestSetStatus_PassesRawStatus(t *testing.T) {
	svc := &fakeCandidates{t: t, setStatus: func(_ context.Context, id, status string) (*domain.Candidate, error) {
		assert.Equal(t, "Hired", status)
		c := sample()
		c.Status = domain.StatusHired
		return c, nil
	}}
	w := do(newTestEngine(svc), http.MethodPut, "/api/candidates/c-1/status", strings.NewReader(`{"status":"Hired"}`), "application/json")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Hired", decode(t, w)["status"])
}

func TestDelete_ReturnsMessage(t *testing.T) {
	svc := &fakeCandidates{t: t, delete: func(context.Context, string) error { return nil }}
	w := do(newTestEngine(svc), http.MethodDelete, "/api/candidates/c-1", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Candidate deleted successfully", decode(t, w)["message"])
}

// ---- Reads ----

func TestList_PassesQueryAndCounts(t *testing.T) {
	svc := &fakeCandidates{t: t, list: func(_ context.Context, p query.Params) ([]*domain.Candidate, error) {
		assert.Equal(t, query.Params{Status: "Pending", JobTitle: "eng", Search: "doe"}, p)
		return []*domain.Candidate{sample(), sample()}, nil
	}}
	w := do(newTestEngine(svc), http.MethodGet, "/api/candidates?status=Pending&job_title=eng&search=doe", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	out := decode(t, w)
	assert.Equal(t, float64(2), out["count"])
	assert.Len(t, out["candidates"], 2)
}

func TestList_EmptyIsArray(t *testing.T) {
	svc := &fakeCandidates{t: t, list: func(context.Context, query.Params) ([]*domain.Candidate, error) { return nil, nil }}
	w := do(newTestEngine(svc), http.MethodGet, "/api/candidates", nil, "")
	assert.JSONEq(t, `{"count":0,"candidates":[]}`, w.Body.String())
}

func TestStats_LowercaseBuckets(t *testing.T) {
	svc := &fakeCandidates{t: t, stats: func(context.Context) (*domain.Stats, error) {
		return domain.NewStats(map[domain.Status]int64{domain.StatusHired: 2, domain.StatusPending: 1}), nil
	}}
	w := do(newTestEngine(svc), http.MethodGet, "/api/candidates/stats", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"total":3,"by_status":{"pending":1,"reviewed":0,"hired":2,"rejected":0}}`, w.Body.String())
}

func TestResume_ServedInline(t *testing.T) {
	svc := &fakeCandidates{t: t, getResume: func(context.Context, string) (*domain.AttachmentContent, error) {
		return &domain.AttachmentContent{Data: []byte("%PDF-1.4"), Filename: "jane doe.pdf", MimeType: "application/pdf"}, nil
	}}
	w := do(newTestEngine(svc), http.MethodGet, "/api/candidates/c-1/resume", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Equal(t, `inline; filename="jane doe.pdf"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "%PDF-1.4", w.Body.String())
}

func TestResume_Missing_Returns404(t *testing.T) {
	svc := &fakeCandidates{t: t, getResume: func(context.Context, string) (*domain.AttachmentContent, error) {
		return nil, domain.ErrResumeNotFound
	}}
	w := do(newTestEngine(svc), http.MethodGet, "/api/candidates/c-1/resume", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Resume not found", decode(t, w)["error"])
}
