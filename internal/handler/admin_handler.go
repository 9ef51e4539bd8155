package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/theprantadutta/filerunner/internal/models"
	"github.com/theprantadutta/filerunner/pkg/response"
)

type maintenanceRunner interface {
	RunPurge(ctx context.Context) (int64, error)
}

type statsSource interface {
	Snapshot() models.SystemMetrics
}

type auditTrail interface {
	List(ctx context.Context, filter models.AuditLogFilter) ([]models.AuditLog, *models.Pagination, error)
}

// AdminHandler exposes operator endpoints: maintenance triggers, runtime
// stats, and the audit trail.
type AdminHandler struct {
	maintenance maintenanceRunner
	metrics     statsSource
	audits      auditTrail
}

// NewAdminHandler instantiates AdminHandler.
func NewAdminHandler(maintenance maintenanceRunner, metrics statsSource, audits auditTrail) *AdminHandler {
	return &AdminHandler{maintenance: maintenance, metrics: metrics, audits: audits}
}

// PurgeTokens godoc
// @Summary Purge stale refresh tokens now
// @Description Runs the retention sweep immediately instead of waiting for the next scheduled pass.
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/maintenance/purge [post]
func (h *AdminHandler) PurgeTokens(c *gin.Context) {
	purged, err := h.maintenance.RunPurge(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"purged_count": purged}, nil)
}

// Stats godoc
// @Summary Runtime counters
// @Description Returns request, token, and file counters accumulated since process start.
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/stats [get]
func (h *AdminHandler) Stats(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.metrics.Snapshot(), nil)
}

// AuditLogs godoc
// @Summary List audit trail entries
// @Tags Admin
// @Produce json
// @Param user_id query string false "Filter by acting user"
// @Param action query string false "Filter by action, e.g. TOKEN_REUSE"
// @Param resource query string false "Filter by resource type"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size (max 100)"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/audit-logs [get]
func (h *AdminHandler) AuditLogs(c *gin.Context) {
	filter := models.AuditLogFilter{
		UserID:   strings.TrimSpace(c.Query("user_id")),
		Action:   strings.TrimSpace(c.Query("action")),
		Resource: strings.TrimSpace(c.Query("resource")),
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("page_size", "50")); err == nil {
		filter.PageSize = size
	}

	logs, pagination, err := h.audits.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, logs, pagination)
}
