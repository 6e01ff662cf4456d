package middleware_test

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ErlanBelekov/referral-tracker/internal/domain"
	"github.com/ErlanBelekov/referral-tracker/internal/identity"
	"github.com/ErlanBelekov/referral-tracker/internal/transport/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type fakeUserRepo struct {
	upserted []domain.Identity
	err      error
}

func (f *fakeUserRepo) Upsert(_ context.Context, id domain.Identity) error {
	f.upserted = append(f.upserted, id)
	return f.err
}

func (f *fakeUserRepo) FindByID(context.Context, string) (*domain.User, error) {
	return nil, domain.ErrUserNotFound
}

func ensureUserEngine(repo *fakeUserRepo, who *domain.Identity) *gin.Engine {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if who != nil {
			c.Request = c.Request.WithContext(identity.WithIdentity(c.Request.Context(), *who))
		}
	})
	r.Use(middleware.EnsureUser(repo, slog.Default()))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return r
}

func TestEnsureUser(t *testing.T) {
	t.Run("anonymous skips upsert", func(t *testing.T) {
		repo := &fakeUserRepo{}
		w := httptest.NewRecorder()
		ensureUserEngine(repo, nil).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Empty(t, repo.upserted)
	})

	t.Run("identity is upserted", func(t *testing.T) {
		repo := &fakeUserRepo{}
		who := &domain.Identity{UserID: "u-1", Email: "a@b.co"}
		w := httptest.NewRecorder()
		ensureUserEngine(repo, who).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, []domain.Identity{*who}, repo.upserted)
	})

	t.Run("upsert failure aborts", func(t *testing.T) {
		repo := &fakeUserRepo{err: errors.New("db down")}
		w := httptest.NewRecorder()
		ensureUserEngine(repo, &domain.Identity{UserID: "u-1"}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}
