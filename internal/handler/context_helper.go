package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/theprantadutta/filerunner/internal/middleware"
	"github.com/theprantadutta/filerunner/internal/models"
)

func claimsFromContext(c *gin.Context) *models.AccessClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.AccessClaims)
	if !ok {
		return nil
	}
	return claims
}

func projectFromContext(c *gin.Context) *models.Project {
	value, exists := c.Get(middleware.ContextProjectKey)
	if !exists {
		return nil
	}
	project, ok := value.(*models.Project)
	if !ok {
		return nil
	}
	return project
}
