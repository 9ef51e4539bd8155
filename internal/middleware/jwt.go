package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/theprantadutta/filerunner/internal/models"
	appErrors "github.com/theprantadutta/filerunner/pkg/errors"
	"github.com/theprantadutta/filerunner/pkg/response"
)

// ContextUserKey is the gin context key storing access token claims.
const ContextUserKey = "currentUser"

type accessVerifier interface {
	VerifyAccessToken(token string) (*models.AccessClaims, error)
}

// JWT protects routes by requiring a valid access token. Verification is
// purely cryptographic; no session store is consulted.
func JWT(tokens accessVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := bearerToken(c)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		claims, err := tokens.VerifyAccessToken(raw)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextUserKey, claims)
		c.Next()
	}
}

// OptionalJWT attaches claims when a valid token is present but never blocks.
func OptionalJWT(tokens accessVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := bearerToken(c)
		if err != nil {
			c.Next()
			return
		}

		claims, err := tokens.VerifyAccessToken(raw)
		if err != nil {
			c.Next()
			return
		}

		c.Set(ContextUserKey, claims)
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, error) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", appErrors.ErrUnauthorized
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header")
	}
	return parts[1], nil
}
