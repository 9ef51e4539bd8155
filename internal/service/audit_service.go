package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/theprantadutta/filerunner/internal/models"
	appErrors "github.com/theprantadutta/filerunner/pkg/errors"
)

type auditLister interface {
	List(ctx context.Context, filter models.AuditLogFilter) ([]models.AuditLog, int, error)
}

// AuditService exposes the audit trail to operators.
type AuditService struct {
	audits auditLister
	logger *zap.Logger
}

// NewAuditService instantiates AuditService.
func NewAuditService(audits auditLister, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditService{audits: audits, logger: logger}
}

// List returns audit entries matching the filter, newest first.
func (s *AuditService) List(ctx context.Context, filter models.AuditLogFilter) ([]models.AuditLog, *models.Pagination, error) {
	logs, total, err := s.audits.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list audit logs")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size < 1 || size > 100 {
		size = 50
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return logs, pagination, nil
}
