package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/theprantadutta/filerunner/internal/models"
	appErrors "github.com/theprantadutta/filerunner/pkg/errors"
	"github.com/theprantadutta/filerunner/pkg/pathutil"
)

// sniffLen is how many leading bytes feed content-type detection.
const sniffLen = 512

type fileRepository interface {
	Create(ctx context.Context, file *models.File) error
	FindByID(ctx context.Context, id string) (*models.File, error)
	ListByProject(ctx context.Context, projectID string, page, pageSize int) ([]models.FileWithFolder, int, error)
	ListOwnedByIDs(ctx context.Context, ids []string, userID string) ([]models.FileWithFolder, error)
	Delete(ctx context.Context, id string) (int64, error)
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
}

type fileFolderSource interface {
	GetOrCreate(ctx context.Context, projectID, path string, defaultPublic bool) (*models.Folder, error)
	FindByID(ctx context.Context, id string) (*models.Folder, error)
}

type fileProjectSource interface {
	FindByID(ctx context.Context, id string) (*models.Project, error)
}

type fileBlobStore interface {
	SaveStream(key string, r io.Reader) (int64, error)
	Delete(key string) error
	Path(key string) string
}

type fileURLSigner interface {
	Generate(fileID, storageKey string) (string, time.Time, error)
	Parse(token string) (fileID, storageKey string, expiresAt time.Time, err error)
}

type fileAuditSink interface {
	CreateAuditLog(ctx context.Context, entry *models.AuditLog) error
}

type fileMetrics interface {
	FileUploaded(sizeBytes int64)
	FileDownloaded(access string)
	FilesDeleted(count int64)
}

// FileConfig carries upload limits and URL construction settings.
type FileConfig struct {
	MaxFileSizeBytes int64
	APIPrefix        string
}

// DownloadResult bundles everything a handler needs to stream a file.
type DownloadResult struct {
	File       *models.File
	DiskPath   string
	Visibility models.Visibility
}

// FileService manages stored files: ingest, metadata, download
// authorization and removal.
type FileService struct {
	files     fileRepository
	folders   fileFolderSource
	projects  fileProjectSource
	storage   fileBlobStore
	signer    fileURLSigner
	access    *AccessService
	audit     fileAuditSink
	metrics   fileMetrics
	validator *validator.Validate
	logger    *zap.Logger
	config    FileConfig
}

// NewFileService wires the file service.
func NewFileService(files fileRepository, folders fileFolderSource, projects fileProjectSource, store fileBlobStore, signer fileURLSigner, access *AccessService, audit fileAuditSink, metrics fileMetrics, validate *validator.Validate, logger *zap.Logger, config FileConfig) *FileService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileService{
		files:     files,
		folders:   folders,
		projects:  projects,
		storage:   store,
		signer:    signer,
		access:    access,
		audit:     audit,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		config:    config,
	}
}

// Upload ingests one multipart file into the project, optionally inside a
// folder. The folder is created on first use and inherits the project's
// visibility. The stored name is always server generated; clients cannot
// influence where bytes land beyond the sanitized folder path.
func (s *FileService) Upload(ctx context.Context, project *models.Project, folderPath string, header *multipart.FileHeader) (*models.FileInfo, error) {
	if header == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file field is required")
	}
	if s.config.MaxFileSizeBytes > 0 && header.Size > s.config.MaxFileSizeBytes {
		return nil, appErrors.Clone(appErrors.ErrFileTooLarge,
			fmt.Sprintf("file exceeds the %d byte limit", s.config.MaxFileSizeBytes))
	}

	var folder *models.Folder
	if folderPath != "" {
		clean, err := pathutil.Sanitize(folderPath)
		if err != nil {
			return nil, err
		}
		folder, err = s.folders.GetOrCreate(ctx, project.ID, clean, project.IsPublic)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve folder")
		}
	}

	src, err := header.Open()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read upload")
	}
	defer src.Close() //nolint:errcheck

	mimeType, err := sniffContentType(src)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to inspect upload")
	}

	storedName := uuid.NewString() + storedExtension(header.Filename)
	key := storageKey(project.ID, folderPathOf(folder), storedName)

	written, err := s.storage.SaveStream(key, src)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store upload")
	}

	record := &models.File{
		ProjectID:    project.ID,
		OriginalName: filepath.Base(header.Filename),
		StoredName:   storedName,
		MimeType:     mimeType,
		SizeBytes:    written,
	}
	if folder != nil {
		record.FolderID = &folder.ID
	}
	if err := s.files.Create(ctx, record); err != nil {
		// Metadata is authoritative; without the row the blob is garbage.
		if cleanupErr := s.storage.Delete(key); cleanupErr != nil {
			s.logger.Warn("failed to remove orphaned upload", zap.String("key", key), zap.Error(cleanupErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record upload")
	}

	s.recordAudit(ctx, nil, models.AuditActionFileUpload, record.ID, map[string]interface{}{
		"project_id": project.ID,
		"size_bytes": written,
		"mime_type":  mimeType,
	})
	if s.metrics != nil {
		s.metrics.FileUploaded(written)
	}

	info := s.fileInfo(record, folderPathPtr(folder))
	return &info, nil
}

// Download authorizes and locates a file. Authorization accepts, in order: a
// signed link token, open visibility, or the project's API key.
func (s *FileService) Download(ctx context.Context, fileID, presentedKey, signedToken string) (*DownloadResult, error) {
	file, project, folder, err := s.loadFileContext(ctx, fileID)
	if err != nil {
		return nil, err
	}

	var visibility models.Visibility
	if signedToken != "" {
		tokenFileID, _, _, err := s.signer.Parse(signedToken)
		if err != nil || tokenFileID != file.ID {
			return nil, appErrors.Clone(appErrors.ErrInvalidToken, "invalid or expired download link")
		}
		visibility = models.VisibilityRequiresAPIKey
	} else {
		visibility, err = s.access.AuthorizeDownload(project, folder, presentedKey)
		if err != nil {
			return nil, err
		}
	}

	key := storageKey(project.ID, folderPathOf(folder), file.StoredName)
	if s.metrics != nil {
		label := string(visibility)
		if signedToken != "" {
			label = "signed"
		}
		s.metrics.FileDownloaded(label)
	}

	return &DownloadResult{
		File:       file,
		DiskPath:   s.storage.Path(key),
		Visibility: visibility,
	}, nil
}

// SignedURL mints a short-lived download link for an owned file. The link
// bypasses visibility until it expires, regardless of later flag changes.
func (s *FileService) SignedURL(ctx context.Context, userID, fileID string) (*models.SignedURLResponse, error) {
	file, project, folder, err := s.loadFileContext(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if project.UserID != userID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "file belongs to a different account")
	}

	key := storageKey(project.ID, folderPathOf(folder), file.StoredName)
	token, expiresAt, err := s.signer.Generate(file.ID, key)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download link")
	}

	return &models.SignedURLResponse{
		URL:       s.downloadPath(file.ID) + "?token=" + url.QueryEscape(token),
		ExpiresAt: expiresAt,
	}, nil
}

// DeleteAsOwner removes a file on behalf of the authenticated project owner.
func (s *FileService) DeleteAsOwner(ctx context.Context, userID, fileID string) error {
	file, project, folder, err := s.loadFileContext(ctx, fileID)
	if err != nil {
		return err
	}
	if project.UserID != userID {
		return appErrors.Clone(appErrors.ErrForbidden, "file belongs to a different account")
	}
	return s.remove(ctx, &userID, file, project, folder)
}

// DeleteWithKey removes a file on behalf of an API key holder. The key must
// belong to the file's project.
func (s *FileService) DeleteWithKey(ctx context.Context, project *models.Project, fileID string) error {
	file, fileProject, folder, err := s.loadFileContext(ctx, fileID)
	if err != nil {
		return err
	}
	if fileProject.ID != project.ID {
		return appErrors.Clone(appErrors.ErrForbidden, "file belongs to a different project")
	}
	return s.remove(ctx, nil, file, fileProject, folder)
}

// BulkDelete removes the owned subset of the requested files in one pass and
// reports how many went away. Foreign and unknown ids are skipped silently.
func (s *FileService) BulkDelete(ctx context.Context, userID string, req *models.BulkDeleteRequest) (*models.BulkDeleteResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk delete payload")
	}

	owned, err := s.files.ListOwnedByIDs(ctx, req.FileIDs, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve files")
	}
	if len(owned) == 0 {
		return &models.BulkDeleteResponse{DeletedCount: 0}, nil
	}

	ids := make([]string, 0, len(owned))
	for i := range owned {
		ids = append(ids, owned[i].ID)
	}
	count, err := s.files.DeleteByIDs(ctx, ids)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete files")
	}

	for i := range owned {
		key := storageKey(owned[i].ProjectID, derefString(owned[i].FolderPath), owned[i].StoredName)
		if err := s.storage.Delete(key); err != nil {
			s.logger.Warn("failed to remove stored file", zap.String("key", key), zap.Error(err))
		}
	}

	s.recordAudit(ctx, &userID, models.AuditActionFileDelete, "", map[string]interface{}{
		"deleted_count": count,
	})
	if s.metrics != nil {
		s.metrics.FilesDeleted(count)
	}

	return &models.BulkDeleteResponse{DeletedCount: count}, nil
}

// ListForProject pages through an owned project's files, newest first.
func (s *FileService) ListForProject(ctx context.Context, userID, projectID string, page, pageSize int) ([]models.FileInfo, *models.Pagination, error) {
	project, err := s.projects.FindByID(ctx, projectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "project not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load project")
	}
	if project.UserID != userID {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "project belongs to a different account")
	}

	records, total, err := s.files.ListByProject(ctx, projectID, page, pageSize)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list files")
	}

	infos := make([]models.FileInfo, 0, len(records))
	for i := range records {
		infos = append(infos, s.fileInfo(&records[i].File, records[i].FolderPath))
	}

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 50
	}
	return infos, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// remove deletes the row first, then the blob. A missing blob is already the
// desired end state.
func (s *FileService) remove(ctx context.Context, userID *string, file *models.File, project *models.Project, folder *models.Folder) error {
	affected, err := s.files.Delete(ctx, file.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete file")
	}
	if affected == 0 {
		return appErrors.Clone(appErrors.ErrNotFound, "file not found")
	}

	key := storageKey(project.ID, folderPathOf(folder), file.StoredName)
	if err := s.storage.Delete(key); err != nil {
		s.logger.Warn("failed to remove stored file", zap.String("key", key), zap.Error(err))
	}

	s.recordAudit(ctx, userID, models.AuditActionFileDelete, file.ID, map[string]interface{}{
		"project_id": project.ID,
	})
	if s.metrics != nil {
		s.metrics.FilesDeleted(1)
	}
	return nil
}

// loadFileContext resolves a file with its project and optional folder.
func (s *FileService) loadFileContext(ctx context.Context, fileID string) (*models.File, *models.Project, *models.Folder, error) {
	file, err := s.files.FindByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, nil, appErrors.Clone(appErrors.ErrNotFound, "file not found")
		}
		return nil, nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load file")
	}

	project, err := s.projects.FindByID(ctx, file.ProjectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, nil, appErrors.Clone(appErrors.ErrNotFound, "file not found")
		}
		return nil, nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load project")
	}

	var folder *models.Folder
	if file.FolderID != nil {
		folder, err = s.folders.FindByID(ctx, *file.FolderID)
		if err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				return nil, nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load folder")
			}
			// Folder rows can vanish independently; the file then follows
			// the project flag alone.
			folder = nil
		}
	}
	return file, project, folder, nil
}

func (s *FileService) fileInfo(file *models.File, folderPath *string) models.FileInfo {
	return models.FileInfo{
		ID:           file.ID,
		OriginalName: file.OriginalName,
		MimeType:     file.MimeType,
		SizeBytes:    file.SizeBytes,
		FolderPath:   folderPath,
		URL:          s.downloadPath(file.ID),
		CreatedAt:    file.CreatedAt,
	}
}

func (s *FileService) downloadPath(fileID string) string {
	prefix := strings.TrimSuffix(s.config.APIPrefix, "/")
	return fmt.Sprintf("%s/files/%s", prefix, fileID)
}

func (s *FileService) recordAudit(ctx context.Context, userID *string, action, resourceID string, metadata map[string]interface{}) {
	if s.audit == nil {
		return
	}
	var payload []byte
	if metadata != nil {
		payload, _ = json.Marshal(metadata)
	}
	entry := &models.AuditLog{
		UserID:   userID,
		Action:   action,
		Resource: "file",
		Metadata: payload,
	}
	if resourceID != "" {
		entry.ResourceID = &resourceID
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}

// sniffContentType reads the detection prefix and rewinds the stream.
func sniffContentType(src multipart.File) (string, error) {
	buf := make([]byte, sniffLen)
	n, err := io.ReadFull(src, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", err
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return http.DetectContentType(buf[:n]), nil
}

// storedExtension keeps the original extension only when it is plain ASCII;
// anything suspicious is dropped rather than sanitized.
func storedExtension(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if len(ext) > 10 {
		return ""
	}
	for _, r := range ext {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '.':
		default:
			return ""
		}
	}
	return ext
}

// storageKey composes the disk key for a stored file. The folder segment is
// already sanitized; empty means the project root.
func storageKey(projectID, folderPath, storedName string) string {
	parts := make([]string, 0, 3)
	parts = append(parts, projectID)
	if folderPath != "" {
		parts = append(parts, folderPath)
	}
	parts = append(parts, storedName)
	return strings.Join(parts, pathutil.Separator)
}

func folderPathOf(folder *models.Folder) string {
	if folder == nil {
		return ""
	}
	return folder.Path
}

func folderPathPtr(folder *models.Folder) *string {
	if folder == nil {
		return nil
	}
	return &folder.Path
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
