package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/theprantadutta/filerunner/internal/models"
	"github.com/theprantadutta/filerunner/internal/service"
	appErrors "github.com/theprantadutta/filerunner/pkg/errors"
	"github.com/theprantadutta/filerunner/pkg/response"
)

// FolderHandler wires HTTP endpoints to the folder service.
type FolderHandler struct {
	service *service.FolderService
}

// NewFolderHandler creates a new handler.
func NewFolderHandler(svc *service.FolderService) *FolderHandler {
	return &FolderHandler{service: svc}
}

// Create godoc
// @Summary Create a folder
// @Description Create or update a folder path inside an owned project
// @Tags Folders
// @Accept json
// @Produce json
// @Param payload body models.CreateFolderRequest true "Folder payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /folders [post]
// @Security BearerAuth
func (h *FolderHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.CreateFolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid folder payload"))
		return
	}

	folder, err := h.service.Create(c.Request.Context(), claims.UserID, &req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, folder)
}

// List godoc
// @Summary List folders
// @Description List a project's folders with file counters
// @Tags Folders
// @Produce json
// @Param project_id query string true "Project ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /folders [get]
// @Security BearerAuth
func (h *FolderHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	projectID := strings.TrimSpace(c.Query("project_id"))
	if projectID == "" {
		response.Error(c, appErrors.New(appErrors.ErrValidation.Code, http.StatusBadRequest, "project_id is required"))
		return
	}

	folders, err := h.service.List(c.Request.Context(), claims.UserID, projectID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, folders, nil)
}

// UpdateVisibility godoc
// @Summary Change folder visibility
// @Description Flip a folder's public flag; the change applies to the very next download
// @Tags Folders
// @Accept json
// @Produce json
// @Param id path string true "Folder ID"
// @Param payload body models.UpdateFolderVisibilityRequest true "Visibility payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /folders/{id}/visibility [put]
// @Security BearerAuth
func (h *FolderHandler) UpdateVisibility(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.UpdateFolderVisibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid visibility payload"))
		return
	}

	folder, err := h.service.UpdateVisibility(c.Request.Context(), claims.UserID, c.Param("id"), &req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, folder, nil)
}

// PurgeFiles godoc
// @Summary Empty a folder
// @Description Delete every file in the named folder; the folder itself survives. Requires the project API key
// @Tags Folders
// @Accept json
// @Produce json
// @Param payload body models.DeleteFolderFilesRequest true "Folder path payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /folders/delete [post]
// @Security ApiKeyAuth
func (h *FolderHandler) PurgeFiles(c *gin.Context) {
	project := projectFromContext(c)
	if project == nil {
		response.Error(c, appErrors.ErrInvalidAPIKey)
		return
	}

	var req models.DeleteFolderFilesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid folder payload"))
		return
	}

	count, err := h.service.PurgeFiles(c.Request.Context(), project, &req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, gin.H{"deleted_count": count}, nil)
}
