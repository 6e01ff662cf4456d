package middleware_test

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ErlanBelekov/referral-tracker/internal/ratelimit"
	"github.com/ErlanBelekov/referral-tracker/internal/transport/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func rateLimitedEngine(l ratelimit.Limiter) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RateLimit(l, slog.Default()))
	r.GET("/api/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	return r
}

func hit(r *gin.Engine, ip string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	req.RemoteAddr = ip + ":4242"
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimit_RejectsAfterLimit(t *testing.T) {
	r := rateLimitedEngine(ratelimit.NewMemoryLimiter(2, 15*time.Minute))

	first := hit(r, "10.0.0.1")
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "2", first.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Remaining"))

	assert.Equal(t, http.StatusOK, hit(r, "10.0.0.1").Code)

	third := hit(r, "10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, third.Code)
	assert.Equal(t, "0", third.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, third.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, hit(r, "10.0.0.2").Code, "other clients are unaffected")
}

type brokenLimiter struct{}

func (brokenLimiter) Hit(context.Context, string) (ratelimit.Result, error) {
	return ratelimit.Result{}, errors.New("redis: connection refused")
}
func (brokenLimiter) Backend() string { return "redis" }

func TestRateLimit_FailsOpen(t *testing.T) {
	w := hit(rateLimitedEngine(brokenLimiter{}), "10.0.0.1")
	assert.Equal(t, http.StatusOK, w.Code)
}
