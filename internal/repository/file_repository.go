package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/theprantadutta/filerunner/internal/models"
)

// FileRepository provides database access for stored file metadata.
type FileRepository struct {
	db *sqlx.DB
}

// NewFileRepository creates a new instance of FileRepository.
func NewFileRepository(db *sqlx.DB) *FileRepository {
	return &FileRepository{db: db}
}

const fileColumns = `id, project_id, folder_id, original_name, stored_name, mime_type, size_bytes, created_at`

// Create inserts a file record.
func (r *FileRepository) Create(ctx context.Context, file *models.File) error {
	if file.ID == "" {
		file.ID = uuid.NewString()
	}
	if file.CreatedAt.IsZero() {
		file.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO files (id, project_id, folder_id, original_name, stored_name, mime_type, size_bytes, created_at) VALUES (:id, :project_id, :folder_id, :original_name, :stored_name, :mime_type, :size_bytes, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, file); err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	return nil
}

// FindByID returns a file by identifier.
func (r *FileRepository) FindByID(ctx context.Context, id string) (*models.File, error) {
	const query = `SELECT ` + fileColumns + ` FROM files WHERE id = $1 LIMIT 1`
	var file models.File
	if err := r.db.GetContext(ctx, &file, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find file by id: %w", err)
	}
	return &file, nil
}

// ListByProject returns a page of the project's files with folder paths.
func (r *FileRepository) ListByProject(ctx context.Context, projectID string, page, pageSize int) ([]models.FileWithFolder, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 50
	}
	offset := (page - 1) * pageSize

	const listQuery = `SELECT fi.id, fi.project_id, fi.folder_id, fi.original_name, fi.stored_name, fi.mime_type, fi.size_bytes, fi.created_at, fo.path AS folder_path
FROM files fi
LEFT JOIN folders fo ON fi.folder_id = fo.id
WHERE fi.project_id = $1
ORDER BY fi.created_at DESC
LIMIT $2 OFFSET $3`
	var files []models.FileWithFolder
	if err := r.db.SelectContext(ctx, &files, listQuery, projectID, pageSize, offset); err != nil {
		return nil, 0, fmt.Errorf("list files: %w", err)
	}

	const countQuery = `SELECT COUNT(*) FROM files WHERE project_id = $1`
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, projectID); err != nil {
		return nil, 0, fmt.Errorf("count files: %w", err)
	}

	return files, total, nil
}

// ListByFolder returns every file stored in a folder.
func (r *FileRepository) ListByFolder(ctx context.Context, folderID string) ([]models.File, error) {
	const query = `SELECT ` + fileColumns + ` FROM files WHERE folder_id = $1 ORDER BY created_at`
	var files []models.File
	if err := r.db.SelectContext(ctx, &files, query, folderID); err != nil {
		return nil, fmt.Errorf("list files by folder: %w", err)
	}
	return files, nil
}

// ListOwnedByIDs returns the subset of the given files that belong to
// projects owned by userID, with folder paths for storage cleanup.
func (r *FileRepository) ListOwnedByIDs(ctx context.Context, ids []string, userID string) ([]models.FileWithFolder, error) {
	const query = `SELECT fi.id, fi.project_id, fi.folder_id, fi.original_name, fi.stored_name, fi.mime_type, fi.size_bytes, fi.created_at, fo.path AS folder_path
FROM files fi
JOIN projects p ON p.id = fi.project_id
LEFT JOIN folders fo ON fi.folder_id = fo.id
WHERE fi.id = ANY($1) AND p.user_id = $2`
	var files []models.FileWithFolder
	if err := r.db.SelectContext(ctx, &files, query, pq.Array(ids), userID); err != nil {
		return nil, fmt.Errorf("list files by ids: %w", err)
	}
	return files, nil
}

// Delete removes a file record.
func (r *FileRepository) Delete(ctx context.Context, id string) (int64, error) {
	const query = `DELETE FROM files WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return 0, fmt.Errorf("delete file: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete file: %w", err)
	}
	return affected, nil
}

// DeleteByIDs removes a batch of file records.
func (r *FileRepository) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	const query = `DELETE FROM files WHERE id = ANY($1)`
	res, err := r.db.ExecContext(ctx, query, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("delete files: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete files: %w", err)
	}
	return affected, nil
}

// DeleteByFolder removes every file record in a folder.
func (r *FileRepository) DeleteByFolder(ctx context.Context, folderID string) (int64, error) {
	const query = `DELETE FROM files WHERE folder_id = $1`
	res, err := r.db.ExecContext(ctx, query, folderID)
	if err != nil {
		return 0, fmt.Errorf("delete folder files: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete folder files: %w", err)
	}
	return affected, nil
}
