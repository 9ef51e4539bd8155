package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/theprantadutta/filerunner/internal/models"
	appErrors "github.com/theprantadutta/filerunner/pkg/errors"
	"github.com/theprantadutta/filerunner/pkg/pathutil"
)

type folderRepository interface {
	Upsert(ctx context.Context, folder *models.Folder) error
	FindByID(ctx context.Context, id string) (*models.Folder, error)
	FindByPath(ctx context.Context, projectID, path string) (*models.Folder, error)
	ListByProject(ctx context.Context, projectID string) ([]models.FolderWithStats, error)
	UpdateVisibility(ctx context.Context, id string, isPublic bool, at time.Time) (int64, error)
}

type folderProjectSource interface {
	FindByID(ctx context.Context, id string) (*models.Project, error)
}

type folderFileStore interface {
	ListByFolder(ctx context.Context, folderID string) ([]models.File, error)
	DeleteByFolder(ctx context.Context, folderID string) (int64, error)
}

type folderBlobStore interface {
	Delete(key string) error
}

type folderAuditSink interface {
	CreateAuditLog(ctx context.Context, entry *models.AuditLog) error
}

// FolderService manages folders and their visibility flags. Folder paths are
// sanitized on the way in; everything downstream trusts them.
type FolderService struct {
	folders   folderRepository
	projects  folderProjectSource
	files     folderFileStore
	storage   folderBlobStore
	audit     folderAuditSink
	validator *validator.Validate
	logger    *zap.Logger
}

// NewFolderService wires the folder service.
func NewFolderService(folders folderRepository, projects folderProjectSource, files folderFileStore, storage folderBlobStore, audit folderAuditSink, validate *validator.Validate, logger *zap.Logger) *FolderService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FolderService{
		folders:   folders,
		projects:  projects,
		files:     files,
		storage:   storage,
		audit:     audit,
		validator: validate,
		logger:    logger,
	}
}

// Create upserts a folder in an owned project. Creating a path that already
// exists updates its visibility instead of failing. A folder created without
// an explicit flag inherits the project's visibility at creation time.
func (s *FolderService) Create(ctx context.Context, userID string, req *models.CreateFolderRequest) (*models.Folder, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid folder payload")
	}

	project, err := s.ownedProject(ctx, userID, req.ProjectID)
	if err != nil {
		return nil, err
	}

	clean, err := pathutil.Sanitize(req.Path)
	if err != nil {
		return nil, err
	}

	isPublic := project.IsPublic
	if req.IsPublic != nil {
		isPublic = *req.IsPublic
	}

	folder := &models.Folder{
		ProjectID: project.ID,
		Path:      clean,
		IsPublic:  isPublic,
	}
	if err := s.folders.Upsert(ctx, folder); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save folder")
	}
	return folder, nil
}

// List returns the project's folders with file counters.
func (s *FolderService) List(ctx context.Context, userID, projectID string) ([]models.FolderWithStats, error) {
	if _, err := s.ownedProject(ctx, userID, projectID); err != nil {
		return nil, err
	}
	folders, err := s.folders.ListByProject(ctx, projectID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list folders")
	}
	if folders == nil {
		folders = []models.FolderWithStats{}
	}
	return folders, nil
}

// UpdateVisibility flips a folder's flag. The change affects the very next
// download; nothing is cached.
func (s *FolderService) UpdateVisibility(ctx context.Context, userID, folderID string, req *models.UpdateFolderVisibilityRequest) (*models.Folder, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid visibility payload")
	}

	folder, err := s.folders.FindByID(ctx, folderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "folder not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load folder")
	}
	if _, err := s.ownedProject(ctx, userID, folder.ProjectID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	affected, err := s.folders.UpdateVisibility(ctx, folder.ID, *req.IsPublic, now)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update folder")
	}
	if affected == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "folder not found")
	}

	folder.IsPublic = *req.IsPublic
	folder.UpdatedAt = now
	return folder, nil
}

// PurgeFiles removes every file in the named folder on behalf of an API key
// holder. The folder itself survives, empty. Disk cleanup is best effort;
// the database rows are authoritative.
func (s *FolderService) PurgeFiles(ctx context.Context, project *models.Project, req *models.DeleteFolderFilesRequest) (int64, error) {
	if err := s.validator.Struct(req); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid folder payload")
	}

	clean, err := pathutil.Sanitize(req.FolderPath)
	if err != nil {
		return 0, err
	}

	folder, err := s.folders.FindByPath(ctx, project.ID, clean)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, appErrors.Clone(appErrors.ErrNotFound, "folder not found")
		}
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load folder")
	}

	records, err := s.files.ListByFolder(ctx, folder.ID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list folder files")
	}

	count, err := s.files.DeleteByFolder(ctx, folder.ID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete folder files")
	}

	if s.storage != nil {
		for i := range records {
			key := storageKey(project.ID, folder.Path, records[i].StoredName)
			if err := s.storage.Delete(key); err != nil {
				s.logger.Warn("failed to remove stored file", zap.String("key", key), zap.Error(err))
			}
		}
	}

	s.recordPurgeAudit(ctx, project.ID, folder.Path, count)
	s.logger.Info("folder purged",
		zap.String("project_id", project.ID),
		zap.String("folder_path", folder.Path),
		zap.Int64("deleted", count),
	)
	return count, nil
}

func (s *FolderService) ownedProject(ctx context.Context, userID, projectID string) (*models.Project, error) {
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

func (s *FolderService) recordPurgeAudit(ctx context.Context, projectID, folderPath string, count int64) {
	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"folder_path":   folderPath,
		"deleted_count": count,
	})
	entry := &models.AuditLog{
		Action:     models.AuditActionFolderPurge,
		Resource:   "folder",
		ResourceID: &projectID,
		Metadata:   payload,
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", models.AuditActionFolderPurge), zap.Error(err))
	}
}
