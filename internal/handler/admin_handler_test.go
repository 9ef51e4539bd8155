package handler

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theprantadutta/filerunner/internal/models"
	appErrors "github.com/theprantadutta/filerunner/pkg/errors"
)

type maintenanceRunnerMock struct {
	purged int64
	err    error
	calls  int
}

func (m *maintenanceRunnerMock) RunPurge(ctx context.Context) (int64, error) {
	m.calls++
	return m.purged, m.err
}

type statsSourceMock struct {
	snap models.SystemMetrics
}

func (m *statsSourceMock) Snapshot() models.SystemMetrics {
	return m.snap
}

type auditTrailMock struct {
	logs       []models.AuditLog
	pagination *models.Pagination
	err        error
	gotFilter  models.AuditLogFilter
}

func (m *auditTrailMock) List(ctx context.Context, filter models.AuditLogFilter) ([]models.AuditLog, *models.Pagination, error) {
	m.gotFilter = filter
	return m.logs, m.pagination, m.err
}

func TestAdminHandlerPurgeTokens(t *testing.T) {
	gin.SetMode(gin.TestMode)
	maintenance := &maintenanceRunnerMock{purged: 5}
	handler := NewAdminHandler(maintenance, &statsSourceMock{}, &auditTrailMock{})

	c, w := newGinContext(http.MethodPost, "/admin/maintenance/purge", nil)

	handler.PurgeTokens(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, maintenance.calls)
	data, _ := decodeEnvelope(t, w)
	assert.Equal(t, float64(5), data["purged_count"])
}

func TestAdminHandlerPurgeTokensFailure(t *testing.T) {
	gin.SetMode(gin.TestMode)
	maintenance := &maintenanceRunnerMock{err: appErrors.ErrInternal}
	handler := NewAdminHandler(maintenance, &statsSourceMock{}, &auditTrailMock{})

	c, w := newGinContext(http.MethodPost, "/admin/maintenance/purge", nil)

	handler.PurgeTokens(c)
	require.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestAdminHandlerStats(t *testing.T) {
	gin.SetMode(gin.TestMode)
	stats := &statsSourceMock{snap: models.SystemMetrics{
		RequestsTotal:      42,
		TokensIssued:       7,
		TokenReuseDetected: 1,
		GeneratedAt:        time.Now(),
	}}
	handler := NewAdminHandler(&maintenanceRunnerMock{}, stats, &auditTrailMock{})

	c, w := newGinContext(http.MethodGet, "/admin/stats", nil)

	handler.Stats(c)
	require.Equal(t, http.StatusOK, w.Code)
	data, _ := decodeEnvelope(t, w)
	assert.Equal(t, float64(42), data["requests_total"])
	assert.Equal(t, float64(1), data["token_reuse_detected"])
}

func TestAdminHandlerAuditLogsParsesQuery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	trail := &auditTrailMock{
		logs:       []models.AuditLog{{ID: "a1", Action: models.AuditActionReuseDetected}},
		pagination: &models.Pagination{Page: 2, PageSize: 25, TotalCount: 60},
	}
	handler := NewAdminHandler(&maintenanceRunnerMock{}, &statsSourceMock{}, trail)

	c, w := newGinContext(http.MethodGet, "/admin/audit-logs?user_id=u1&action=TOKEN_REUSE_DETECTED&page=2&page_size=25", nil)

	handler.AuditLogs(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u1", trail.gotFilter.UserID)
	assert.Equal(t, models.AuditActionReuseDetected, trail.gotFilter.Action)
	assert.Equal(t, 2, trail.gotFilter.Page)
	assert.Equal(t, 25, trail.gotFilter.PageSize)
}
