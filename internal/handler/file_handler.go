package handler

import (
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/theprantadutta/filerunner/internal/middleware"
	"github.com/theprantadutta/filerunner/internal/models"
	"github.com/theprantadutta/filerunner/internal/service"
	appErrors "github.com/theprantadutta/filerunner/pkg/errors"
	"github.com/theprantadutta/filerunner/pkg/response"
)

type fileService interface {
	Upload(ctx context.Context, project *models.Project, folderPath string, header *multipart.FileHeader) (*models.FileInfo, error)
	Download(ctx context.Context, fileID, presentedKey, signedToken string) (*service.DownloadResult, error)
	SignedURL(ctx context.Context, userID, fileID string) (*models.SignedURLResponse, error)
	DeleteAsOwner(ctx context.Context, userID, fileID string) error
	DeleteWithKey(ctx context.Context, project *models.Project, fileID string) error
	BulkDelete(ctx context.Context, userID string, req *models.BulkDeleteRequest) (*models.BulkDeleteResponse, error)
	ListForProject(ctx context.Context, userID, projectID string, page, pageSize int) ([]models.FileInfo, *models.Pagination, error)
}

type keyResolver interface {
	ProjectForKey(ctx context.Context, presented string) (*models.Project, error)
}

// FileHandler wires HTTP endpoints to the file service.
type FileHandler struct {
	files  fileService
	access keyResolver
}

// NewFileHandler creates a new handler.
func NewFileHandler(files fileService, access keyResolver) *FileHandler {
	return &FileHandler{files: files, access: access}
}

// Upload godoc
// @Summary Upload a file
// @Description Ingest one multipart file into the key's project, optionally inside a folder
// @Tags Files
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "File to upload"
// @Param folder_path formData string false "Folder path inside the project"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 413 {object} response.Envelope
// @Router /upload [post]
// @Security ApiKeyAuth
func (h *FileHandler) Upload(c *gin.Context) {
	project := projectFromContext(c)
	if project == nil {
		response.Error(c, appErrors.ErrInvalidAPIKey)
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "file field is required"))
		return
	}

	folderPath := c.PostForm("folder_path")

	info, err := h.files.Upload(c.Request.Context(), project, folderPath, header)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, info)
}

// Download godoc
// @Summary Download a file
// @Description Stream a file. Open files need no credentials; protected files accept the project API key or a signed link token
// @Tags Files
// @Produce octet-stream
// @Param id path string true "File ID"
// @Param api_key query string false "Project API key"
// @Param token query string false "Signed link token"
// @Success 200 {file} binary
// @Failure 401 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /files/{id} [get]
func (h *FileHandler) Download(c *gin.Context) {
	result, err := h.files.Download(c.Request.Context(), c.Param("id"), middleware.PresentedAPIKey(c), c.Query("token"))
	if err != nil {
		response.Error(c, err)
		return
	}

	// The recorded type wins over extension sniffing at serve time.
	c.Header("Content-Type", result.File.MimeType)
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", result.File.OriginalName))
	c.File(result.DiskPath)
}

// SignedURL godoc
// @Summary Mint a signed download link
// @Description Create a short-lived link that downloads the file without further credentials
// @Tags Files
// @Produce json
// @Param id path string true "File ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /files/{id}/signed-url [get]
// @Security BearerAuth
func (h *FileHandler) SignedURL(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	signed, err := h.files.SignedURL(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, signed, nil)
}

// Delete godoc
// @Summary Delete a file
// @Description Remove a file and its stored bytes. Accepts a bearer token from the owner or the project's API key
// @Tags Files
// @Produce json
// @Param id path string true "File ID"
// @Success 204 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /files/{id} [delete]
// @Security BearerAuth
// @Security ApiKeyAuth
func (h *FileHandler) Delete(c *gin.Context) {
	fileID := c.Param("id")

	if claims := claimsFromContext(c); claims != nil {
		if err := h.files.DeleteAsOwner(c.Request.Context(), claims.UserID, fileID); err != nil {
			response.Error(c, err)
			return
		}
		response.NoContent(c)
		return
	}

	presented := middleware.PresentedAPIKey(c)
	if presented == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	project, err := h.access.ProjectForKey(c.Request.Context(), presented)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.files.DeleteWithKey(c.Request.Context(), project, fileID); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// BulkDelete godoc
// @Summary Delete many files
// @Description Remove the owned subset of the listed files in one call
// @Tags Files
// @Accept json
// @Produce json
// @Param payload body models.BulkDeleteRequest true "File ids"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /files/bulk-delete [post]
// @Security BearerAuth
func (h *FileHandler) BulkDelete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.BulkDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid bulk delete payload"))
		return
	}

	res, err := h.files.BulkDelete(c.Request.Context(), claims.UserID, &req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, res, nil)
}

// ListForProject godoc
// @Summary List a project's files
// @Description Page through an owned project's files, newest first
// @Tags Files
// @Produce json
// @Param id path string true "Project ID"
// @Param page query int false "Page number" default(1)
// @Param page_size query int false "Page size" default(50)
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /projects/{id}/files [get]
// @Security BearerAuth
func (h *FileHandler) ListForProject(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	page := 1
	if parsed, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		page = parsed
	}
	pageSize := 50
	if parsed, err := strconv.Atoi(c.DefaultQuery("page_size", "50")); err == nil {
		pageSize = parsed
	}

	infos, pagination, err := h.files.ListForProject(c.Request.Context(), claims.UserID, c.Param("id"), page, pageSize)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, infos, pagination)
}
