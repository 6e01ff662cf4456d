package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ErlanBelekov/referral-tracker/internal/identity"
	"github.com/ErlanBelekov/referral-tracker/internal/transport/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const testKey = "middleware-test-secret-32-chars!!"

func init() {
	gin.SetMode(gin.TestMode)
}

// newEngine serves GET /whoami behind OptionalAuth and echoes the resolved
// referrer id, or "anonymous".
func newEngine() *gin.Engine {
	r := gin.New()
	r.GET("/whoami", middleware.OptionalAuth([]byte(testKey)), func(c *gin.Context) {
		id := identity.FromContext(c.Request.Context())
		if id == nil {
			c.String(http.StatusOK, "anonymous")
			return
		}
		c.String(http.StatusOK, "%s|%s|%s", id.UserID, id.Email, id.Name)
	})
	return r
}

func makeJWT(t *testing.T, key []byte, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign jwt: %v", err)
	}
	return s
}

func serve(authHeader string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	newEngine().ServeHTTP(w, req)
	return w
}

func TestOptionalAuth_NoHeader_IsAnonymous(t *testing.T) {
	w := serve("")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := w.Body.String(); got != "anonymous" {
		t.Errorf("body = %q, want anonymous", got)
	}
}

func TestOptionalAuth_NonBearerScheme_Returns401(t *testing.T) {
	if w := serve("Basic dXNlcjpwYXNz"); w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestOptionalAuth_InvalidToken_Returns401(t *testing.T) {
	if w := serve("Bearer not.a.jwt"); w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestOptionalAuth_ExpiredToken_Returns401(t *testing.T) {
	tok := makeJWT(t, []byte(testKey), jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	if w := serve("Bearer " + tok); w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestOptionalAuth_WrongSigningKey_Returns401(t *testing.T) {
	tok := makeJWT(t, []byte("different-key-that-is-32-chars!!"), jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	if w := serve("Bearer " + tok); w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestOptionalAuth_MissingSubject_Returns401(t *testing.T) {
	tok := makeJWT(t, []byte(testKey), jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()})
	if w := serve("Bearer " + tok); w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestOptionalAuth_ValidToken_SetsIdentity(t *testing.T) {
	tok := makeJWT(t, []byte(testKey), jwt.MapClaims{
		"sub":   "user-abc",
		"email": "ref@corp.io",
		"name":  "Rita",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})

	w := serve("Bearer " + tok)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got, want := w.Body.String(), "user-abc|ref@corp.io|Rita"; got != want {
		t.Errorf("body = %q, want %q", got, want)
	}
}
