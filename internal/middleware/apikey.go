package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/theprantadutta/filerunner/internal/models"
	appErrors "github.com/theprantadutta/filerunner/pkg/errors"
	"github.com/theprantadutta/filerunner/pkg/response"
)

// ContextProjectKey is the gin context key storing the project resolved from
// a presented API key.
const ContextProjectKey = "currentProject"

// APIKeyHeader is the canonical transport for project API keys.
const APIKeyHeader = "X-API-Key"

type projectResolver interface {
	ProjectForKey(ctx context.Context, presented string) (*models.Project, error)
}

// APIKey authenticates machine callers by project API key. The key travels in
// the X-API-Key header or, for clients that cannot set headers, the api_key
// query parameter.
func APIKey(access projectResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		presented := PresentedAPIKey(c)
		if presented == "" {
			response.Error(c, appErrors.Clone(appErrors.ErrInvalidAPIKey, "API key is required"))
			c.Abort()
			return
		}

		project, err := access.ProjectForKey(c.Request.Context(), presented)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextProjectKey, project)
		c.Next()
	}
}

// PresentedAPIKey extracts the API key from the request without judging it.
// Routes where a key is optional read it through this helper.
func PresentedAPIKey(c *gin.Context) string {
	if key := c.GetHeader(APIKeyHeader); key != "" {
		return key
	}
	return c.Query("api_key")
}
