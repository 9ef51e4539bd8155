package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theprantadutta/filerunner/internal/models"
	appErrors "github.com/theprantadutta/filerunner/pkg/errors"
)

type stubAuditLister struct {
	logs  []models.AuditLog
	total int
	err   error
}

func (s *stubAuditLister) List(ctx context.Context, filter models.AuditLogFilter) ([]models.AuditLog, int, error) {
	return s.logs, s.total, s.err
}

func TestAuditListPaginationDefaults(t *testing.T) {
	lister := &stubAuditLister{logs: []models.AuditLog{{ID: "a1"}}, total: 120}
	svc := NewAuditService(lister, nil)

	logs, pagination, err := svc.List(context.Background(), models.AuditLogFilter{Page: -3, PageSize: 10_000})
	require.NoError(t, err)
	assert.Len(t, logs, 1)
	assert.Equal(t, 1, pagination.Page)
	assert.Equal(t, 50, pagination.PageSize)
	assert.Equal(t, 120, pagination.TotalCount)
}

func TestAuditListWrapsStoreFailure(t *testing.T) {
	lister := &stubAuditLister{err: errors.New("connection refused")}
	svc := NewAuditService(lister, nil)

	_, _, err := svc.List(context.Background(), models.AuditLogFilter{})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrInternal)
}
