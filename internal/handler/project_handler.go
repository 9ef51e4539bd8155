package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/theprantadutta/filerunner/internal/models"
	"github.com/theprantadutta/filerunner/internal/service"
	appErrors "github.com/theprantadutta/filerunner/pkg/errors"
	"github.com/theprantadutta/filerunner/pkg/response"
)

// ProjectHandler wires HTTP endpoints to the project service.
type ProjectHandler struct {
	service *service.ProjectService
}

// NewProjectHandler creates a new handler.
func NewProjectHandler(svc *service.ProjectService) *ProjectHandler {
	return &ProjectHandler{service: svc}
}

// Create godoc
// @Summary Create a project
// @Description Create a project with a freshly minted API key
// @Tags Projects
// @Accept json
// @Produce json
// @Param payload body models.CreateProjectRequest true "Project payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /projects [post]
// @Security BearerAuth
func (h *ProjectHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid project payload"))
		return
	}

	project, err := h.service.Create(c.Request.Context(), claims.UserID, &req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, project)
}

// List godoc
// @Summary List projects
// @Description List the account's projects with file counters
// @Tags Projects
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /projects [get]
// @Security BearerAuth
func (h *ProjectHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	projects, err := h.service.List(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, projects, nil)
}

// Get godoc
// @Summary Get a project
// @Description Fetch one owned project including its API key
// @Tags Projects
// @Produce json
// @Param id path string true "Project ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /projects/{id} [get]
// @Security BearerAuth
func (h *ProjectHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	project, err := h.service.Get(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, project, nil)
}

// Update godoc
// @Summary Update a project
// @Description Apply a partial update; omitted fields stay untouched
// @Tags Projects
// @Accept json
// @Produce json
// @Param id path string true "Project ID"
// @Param payload body models.UpdateProjectRequest true "Update payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /projects/{id} [put]
// @Security BearerAuth
func (h *ProjectHandler) Update(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.UpdateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid project payload"))
		return
	}

	project, err := h.service.Update(c.Request.Context(), claims.UserID, c.Param("id"), &req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, project, nil)
}

// Delete godoc
// @Summary Delete a project
// @Description Remove the project, its folders, its files and their stored bytes
// @Tags Projects
// @Produce json
// @Param id path string true "Project ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /projects/{id} [delete]
// @Security BearerAuth
func (h *ProjectHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.Delete(c.Request.Context(), claims.UserID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// RegenerateKey godoc
// @Summary Regenerate the API key
// @Description Mint a replacement API key; the previous key stops working immediately
// @Tags Projects
// @Produce json
// @Param id path string true "Project ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /projects/{id}/regenerate-key [post]
// @Security BearerAuth
func (h *ProjectHandler) RegenerateKey(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	project, err := h.service.RegenerateKey(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, project, nil)
}

// UsageReport godoc
// @Summary Download a usage report
// @Description Per-folder storage usage as a CSV or PDF attachment
// @Tags Projects
// @Produce octet-stream
// @Param id path string true "Project ID"
// @Param format query string false "Report format (csv or pdf)" default(csv)
// @Success 200 {file} binary
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /projects/{id}/report [get]
// @Security BearerAuth
func (h *ProjectHandler) UsageReport(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	filename, contentType, data, err := h.service.UsageReport(c.Request.Context(), claims.UserID, c.Param("id"), c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, contentType, data)
}
