package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/theprantadutta/filerunner/internal/models"
)

// FolderRepository provides database access for folders.
type FolderRepository struct {
	db *sqlx.DB
}

// NewFolderRepository creates a new instance of FolderRepository.
func NewFolderRepository(db *sqlx.DB) *FolderRepository {
	return &FolderRepository{db: db}
}

const folderColumns = `id, project_id, path, is_public, created_at, updated_at`

// Upsert creates the folder or, when the path already exists in the project,
// updates its visibility flag. The stored row is returned either way.
func (r *FolderRepository) Upsert(ctx context.Context, folder *models.Folder) error {
	if folder.ID == "" {
		folder.ID = uuid.NewString()
	}
	now := time.Now().UTC()

	const query = `INSERT INTO folders (id, project_id, path, is_public, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $5)
ON CONFLICT (project_id, path) DO UPDATE SET is_public = EXCLUDED.is_public, updated_at = EXCLUDED.updated_at
RETURNING ` + folderColumns
	if err := r.db.GetContext(ctx, folder, query, folder.ID, folder.ProjectID, folder.Path, folder.IsPublic, now); err != nil {
		return fmt.Errorf("upsert folder: %w", err)
	}
	return nil
}

// GetOrCreate returns the folder at path, creating it with the given default
// visibility when absent. The conflict arm is a deliberate no-op update so
// RETURNING yields the existing row without touching its visibility.
func (r *FolderRepository) GetOrCreate(ctx context.Context, projectID, path string, defaultPublic bool) (*models.Folder, error) {
	now := time.Now().UTC()

	const query = `INSERT INTO folders (id, project_id, path, is_public, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $5)
ON CONFLICT (project_id, path) DO UPDATE SET path = EXCLUDED.path
RETURNING ` + folderColumns
	var folder models.Folder
	if err := r.db.GetContext(ctx, &folder, query, uuid.NewString(), projectID, path, defaultPublic, now); err != nil {
		return nil, fmt.Errorf("get or create folder: %w", err)
	}
	return &folder, nil
}

// FindByID returns a folder by identifier.
func (r *FolderRepository) FindByID(ctx context.Context, id string) (*models.Folder, error) {
	const query = `SELECT ` + folderColumns + ` FROM folders WHERE id = $1 LIMIT 1`
	var folder models.Folder
	if err := r.db.GetContext(ctx, &folder, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find folder by id: %w", err)
	}
	return &folder, nil
}

// FindByPath returns the folder at a sanitized path within a project.
func (r *FolderRepository) FindByPath(ctx context.Context, projectID, path string) (*models.Folder, error) {
	const query = `SELECT ` + folderColumns + ` FROM folders WHERE project_id = $1 AND path = $2 LIMIT 1`
	var folder models.Folder
	if err := r.db.GetContext(ctx, &folder, query, projectID, path); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find folder by path: %w", err)
	}
	return &folder, nil
}

// ListByProject returns a project's folders with aggregate file stats.
func (r *FolderRepository) ListByProject(ctx context.Context, projectID string) ([]models.FolderWithStats, error) {
	const query = `SELECT fo.id, fo.project_id, fo.path, fo.is_public, fo.created_at, fo.updated_at,
COUNT(fi.id) AS file_count, COALESCE(SUM(fi.size_bytes), 0) AS total_size
FROM folders fo
LEFT JOIN files fi ON fi.folder_id = fo.id
WHERE fo.project_id = $1
GROUP BY fo.id
ORDER BY fo.path`
	var folders []models.FolderWithStats
	if err := r.db.SelectContext(ctx, &folders, query, projectID); err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}
	return folders, nil
}

// UpdateVisibility flips the folder's visibility flag.
func (r *FolderRepository) UpdateVisibility(ctx context.Context, id string, isPublic bool, at time.Time) (int64, error) {
	const query = `UPDATE folders SET is_public = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, isPublic, at)
	if err != nil {
		return 0, fmt.Errorf("update folder visibility: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("update folder visibility: %w", err)
	}
	return affected, nil
}

// Delete removes a folder row.
func (r *FolderRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM folders WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete folder: %w", err)
	}
	return nil
}
