package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/theprantadutta/filerunner/internal/models"
	appErrors "github.com/theprantadutta/filerunner/pkg/errors"
)

type stubProjectResolver struct {
	project   *models.Project
	err       error
	presented []string
}

func (s *stubProjectResolver) ProjectForKey(_ context.Context, presented string) (*models.Project, error) {
	s.presented = append(s.presented, presented)
	if s.err != nil {
		return nil, s.err
	}
	return s.project, nil
}

func keyRouter(resolver *stubProjectResolver) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/upload", APIKey(resolver), func(c *gin.Context) {
		value, _ := c.Get(ContextProjectKey)
		project := value.(*models.Project)
		c.String(http.StatusOK, project.ID)
	})
	return router
}

func TestAPIKeyFromHeader(t *testing.T) {
	resolver := &stubProjectResolver{project: &models.Project{ID: "p-1"}}
	router := keyRouter(resolver)

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/upload", nil)
	req.Header.Set(APIKeyHeader, "the-key")
	router.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
	if recorder.Body.String() != "p-1" {
		t.Fatalf("unexpected body: %s", recorder.Body.String())
	}
	if len(resolver.presented) != 1 || resolver.presented[0] != "the-key" {
		t.Fatalf("unexpected presented keys: %v", resolver.presented)
	}
}

func TestAPIKeyFromQueryFallback(t *testing.T) {
	resolver := &stubProjectResolver{project: &models.Project{ID: "p-1"}}
	router := keyRouter(resolver)

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/upload?api_key=query-key", nil)
	router.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
	if resolver.presented[0] != "query-key" {
		t.Fatalf("unexpected presented key: %s", resolver.presented[0])
	}
}

func TestAPIKeyHeaderWinsOverQuery(t *testing.T) {
	resolver := &stubProjectResolver{project: &models.Project{ID: "p-1"}}
	router := keyRouter(resolver)

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/upload?api_key=query-key", nil)
	req.Header.Set(APIKeyHeader, "header-key")
	router.ServeHTTP(recorder, req)

	if resolver.presented[0] != "header-key" {
		t.Fatalf("unexpected presented key: %s", resolver.presented[0])
	}
	_ = recorder
}

func TestAPIKeyMissing(t *testing.T) {
	resolver := &stubProjectResolver{project: &models.Project{ID: "p-1"}}
	router := keyRouter(resolver)

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/upload", nil)
	router.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
	if len(resolver.presented) != 0 {
		t.Fatal("resolver should not be consulted without a key")
	}
}

func TestAPIKeyRejected(t *testing.T) {
	resolver := &stubProjectResolver{err: appErrors.ErrInvalidAPIKey}
	router := keyRouter(resolver)

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/upload", nil)
	req.Header.Set(APIKeyHeader, "wrong")
	router.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
}
