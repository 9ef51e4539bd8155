package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/theprantadutta/filerunner/internal/models"
	"github.com/theprantadutta/filerunner/internal/repository"
	appErrors "github.com/theprantadutta/filerunner/pkg/errors"
	"github.com/theprantadutta/filerunner/pkg/export"
)

type projectRepository interface {
	Create(ctx context.Context, project *models.Project) error
	FindByID(ctx context.Context, id string) (*models.Project, error)
	ListByOwner(ctx context.Context, userID string) ([]models.ProjectWithStats, error)
	Update(ctx context.Context, project *models.Project) error
	Delete(ctx context.Context, id string) (int64, error)
	RegenerateKey(ctx context.Context, id, newKey string, at time.Time) error
	UsageByFolder(ctx context.Context, projectID string) ([]models.UsageRow, error)
}

type projectTreeStore interface {
	DeleteTree(prefix string) error
}

type projectAuditSink interface {
	CreateAuditLog(ctx context.Context, entry *models.AuditLog) error
}

type reportRenderer interface {
	Render(table export.Table) ([]byte, error)
}

// ProjectService manages projects, their API keys and usage reporting.
type ProjectService struct {
	projects  projectRepository
	storage   projectTreeStore
	audit     projectAuditSink
	csv       reportRenderer
	pdf       reportRenderer
	validator *validator.Validate
	logger    *zap.Logger
}

// NewProjectService wires the project service.
func NewProjectService(projects projectRepository, storage projectTreeStore, audit projectAuditSink, validate *validator.Validate, logger *zap.Logger) *ProjectService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProjectService{
		projects:  projects,
		storage:   storage,
		audit:     audit,
		csv:       export.NewCSVExporter(),
		pdf:       export.NewPDFExporter(),
		validator: validate,
		logger:    logger,
	}
}

// Create registers a project for the owner and mints its first API key.
func (s *ProjectService) Create(ctx context.Context, userID string, req *models.CreateProjectRequest) (*models.Project, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid project payload")
	}

	project := &models.Project{
		UserID:      userID,
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		APIKey:      uuid.NewString(),
		IsPublic:    req.IsPublic,
	}
	if err := s.projects.Create(ctx, project); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "a project with this name already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create project")
	}

	s.recordAudit(ctx, userID, models.AuditActionProjectCreate, project.ID, nil)
	return project, nil
}

// List returns the owner's projects with aggregate file counters.
func (s *ProjectService) List(ctx context.Context, userID string) ([]models.ProjectWithStats, error) {
	projects, err := s.projects.ListByOwner(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list projects")
	}
	if projects == nil {
		projects = []models.ProjectWithStats{}
	}
	return projects, nil
}

// Get returns one project after confirming ownership.
func (s *ProjectService) Get(ctx context.Context, userID, projectID string) (*models.Project, error) {
	project, err := s.projects.FindByID(ctx, projectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "project not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load project")
	}
	if project.UserID != userID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "project belongs to a different account")
	}
	return project, nil
}

// Update applies a partial update to an owned project.
func (s *ProjectService) Update(ctx context.Context, userID, projectID string, req *models.UpdateProjectRequest) (*models.Project, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid project payload")
	}

	project, err := s.Get(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		project.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		project.Description = req.Description
	}
	if req.IsPublic != nil {
		project.IsPublic = *req.IsPublic
	}
	project.UpdatedAt = time.Now().UTC()

	if err := s.projects.Update(ctx, project); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "a project with this name already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update project")
	}
	return project, nil
}

// Delete removes the project, its database contents via cascade, and its
// on-disk tree. Disk cleanup failures are logged, not surfaced; the records
// are already gone.
func (s *ProjectService) Delete(ctx context.Context, userID, projectID string) error {
	project, err := s.Get(ctx, userID, projectID)
	if err != nil {
		return err
	}

	affected, err := s.projects.Delete(ctx, project.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete project")
	}
	if affected == 0 {
		return appErrors.Clone(appErrors.ErrNotFound, "project not found")
	}

	if s.storage != nil {
		if err := s.storage.DeleteTree(project.ID); err != nil {
			s.logger.Warn("failed to remove project files from disk", zap.String("project_id", project.ID), zap.Error(err))
		}
	}

	s.recordAudit(ctx, userID, models.AuditActionProjectDelete, project.ID, nil)
	return nil
}

// RegenerateKey replaces the project's API key. The old key stops working
// the moment the new one is stored.
func (s *ProjectService) RegenerateKey(ctx context.Context, userID, projectID string) (*models.Project, error) {
	project, err := s.Get(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}

	newKey := uuid.NewString()
	now := time.Now().UTC()
	if err := s.projects.RegenerateKey(ctx, project.ID, newKey, now); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to regenerate API key")
	}
	project.APIKey = newKey
	project.UpdatedAt = now

	s.recordAudit(ctx, userID, models.AuditActionKeyRegenerated, project.ID, nil)
	s.logger.Info("project API key regenerated", zap.String("project_id", project.ID))
	return project, nil
}

// UsageReport renders a per-folder usage breakdown as CSV or PDF.
func (s *ProjectService) UsageReport(ctx context.Context, userID, projectID, format string) (string, string, []byte, error) {
	project, err := s.Get(ctx, userID, projectID)
	if err != nil {
		return "", "", nil, err
	}

	rows, err := s.projects.UsageByFolder(ctx, project.ID)
	if err != nil {
		return "", "", nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate usage")
	}

	table := export.Table{
		Title:   fmt.Sprintf("Storage usage for %s", project.Name),
		Headers: []string{"folder", "files", "total_bytes"},
	}
	for _, row := range rows {
		folder := row.FolderPath
		if folder == "" {
			folder = "(root)"
		}
		table.Rows = append(table.Rows, []string{
			folder,
			strconv.FormatInt(row.FileCount, 10),
			strconv.FormatInt(row.TotalSize, 10),
		})
	}

	switch strings.ToLower(format) {
	case "", "csv":
		data, err := s.csv.Render(table)
		if err != nil {
			return "", "", nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render report")
		}
		return fmt.Sprintf("usage-%s.csv", project.ID), "text/csv", data, nil
	case "pdf":
		data, err := s.pdf.Render(table)
		if err != nil {
			return "", "", nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render report")
		}
		return fmt.Sprintf("usage-%s.pdf", project.ID), "application/pdf", data, nil
	default:
		return "", "", nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
}

func (s *ProjectService) recordAudit(ctx context.Context, userID, action, projectID string, metadata map[string]interface{}) {
	if s.audit == nil {
		return
	}
	var payload []byte
	if metadata != nil {
		payload, _ = json.Marshal(metadata)
	}
	entry := &models.AuditLog{
		UserID:     &userID,
		Action:     action,
		Resource:   "project",
		ResourceID: &projectID,
		Metadata:   payload,
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}
