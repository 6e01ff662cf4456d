package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ErlanBelekov/referral-tracker/internal/domain"
	"github.com/ErlanBelekov/referral-tracker/internal/identity"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const errUnauthorized = "Unauthorized"

// OptionalAuth resolves the referrer from a Bearer JWT when one is sent.
// Requests without an Authorization header continue anonymously; a header
// that does not carry a valid token is rejected.
func OptionalAuth(jwtKey []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}

		id, ok := parseIdentity(header, jwtKey)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errUnauthorized, "kind": "unauthorized"})
			return
		}

		c.Set("userID", id.UserID)
		c.Request = c.Request.WithContext(identity.WithIdentity(c.Request.Context(), id))
		c.Next()
	}
}

func parseIdentity(header string, jwtKey []byte) (domain.Identity, bool) {
	rawToken, found := strings.CutPrefix(header, "Bearer ")
	if !found {
		return domain.Identity{}, false
	}

	token, err := jwt.Parse(rawToken, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return jwtKey, nil
	})
	if err != nil || !token.Valid {
		return domain.Identity{}, false
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return domain.Identity{}, false
	}
	userID, _ := claims["sub"].(string)
	if userID == "" {
		return domain.Identity{}, false
	}
	email, _ := claims["email"].(string)
	name, _ := claims["name"].(string)
	return domain.Identity{UserID: userID, Email: email, Name: name}, true
}
