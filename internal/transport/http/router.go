package httptransport

import (
	"fmt"
	"log/slog"

	"github.com/ErlanBelekov/referral-tracker/internal/ratelimit"
	"github.com/ErlanBelekov/referral-tracker/internal/repository"
	"github.com/ErlanBelekov/referral-tracker/internal/transport/http/handler"
	"github.com/ErlanBelekov/referral-tracker/internal/transport/http/middleware"
	"github.com/gin-gonic/gin"

	sloggin "github.com/samber/slog-gin"
)

type RouterConfig struct {
	Logger           *slog.Logger
	CandidateHandler *handler.CandidateHandler
	UserRepo         repository.UserRepository
	Limiter          ratelimit.Limiter
	JWTKey           []byte
	AllowedOrigins   []string
	// TrustedProxies are the addresses whose X-Forwarded-For is believed
	// when resolving the client IP. Empty trusts none.
	TrustedProxies []string
}

func NewRouter(cfg RouterConfig) (*gin.Engine, error) {
	r := gin.New()
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}
	r.MaxMultipartMemory = 8 << 20
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Security())
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(sloggin.New(cfg.Logger))
	r.Use(middleware.Metrics())

	api := r.Group("/api")
	if cfg.Limiter != nil {
		api.Use(middleware.RateLimit(cfg.Limiter, cfg.Logger))
	}
	api.GET("/health", handler.Health)

	h := cfg.CandidateHandler
	candidates := api.Group("/candidates",
		middleware.OptionalAuth(cfg.JWTKey),
		middleware.EnsureUser(cfg.UserRepo, cfg.Logger),
	)
	candidates.GET("", h.List)
	candidates.GET("/stats", h.Stats)
	candidates.POST("", h.Create)
	candidates.GET("/:id", h.GetByID)
	candidates.GET("/:id/resume", h.Resume)
	candidates.PUT("/:id", h.Update)
	candidates.PUT("/:id/status", h.SetStatus)
	candidates.DELETE("/:id", h.Delete)

	r.NoRoute(handler.NotFound)
	return r, nil
}
