package middleware

import (
	"log/slog"
	"net/http"

	"github.com/ErlanBelekov/referral-tracker/internal/identity"
	"github.com/ErlanBelekov/referral-tracker/internal/repository"
	"github.com/gin-gonic/gin"
)

// EnsureUser runs after OptionalAuth. It upserts the referrer so that
// candidates.referred_by always points at a known user.
func EnsureUser(repo repository.UserRepository, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identity.FromContext(c.Request.Context())
		if id == nil {
			c.Next()
			return
		}
		if err := repo.Upsert(c.Request.Context(), *id); err != nil {
			logger.ErrorContext(c.Request.Context(), "ensure user upsert", "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError,
				gin.H{"error": "Internal server error", "kind": "internal"})
			return
		}
		c.Next()
	}
}
