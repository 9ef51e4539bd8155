package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

type stubLimiter struct {
	allowed bool
	keys    []string
}

func (s *stubLimiter) Allow(_ context.Context, key string, _ int) (bool, error) {
	s.keys = append(s.keys, key)
	return s.allowed, nil
}

func TestRateLimitBlocksOverQuota(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter := &stubLimiter{allowed: false}
	router := gin.New()
	router.POST("/auth/login", RateLimit(limiter, "auth", 5), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	router.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusTooManyRequests {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
	if len(limiter.keys) != 1 || !strings.HasPrefix(limiter.keys[0], "auth:") {
		t.Fatalf("unexpected limiter keys: %v", limiter.keys)
	}
}

func TestRateLimitPassesUnderQuota(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter := &stubLimiter{allowed: true}
	router := gin.New()
	router.POST("/auth/login", RateLimit(limiter, "auth", 5), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	router.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
}

func TestRateLimitDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/auth/login", RateLimit(nil, "auth", 5), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	router.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
}

func TestSecurityHeadersSet(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(SecurityHeaders())
	router.GET("/", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	router.ServeHTTP(recorder, req)

	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "strict-origin-when-cross-origin",
	} {
		if got := recorder.Header().Get(header); got != want {
			t.Fatalf("%s: got %q want %q", header, got, want)
		}
	}
}
