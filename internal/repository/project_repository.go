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

// ProjectRepository provides database access for projects.
type ProjectRepository struct {
	db *sqlx.DB
}

// NewProjectRepository creates a new instance of ProjectRepository.
func NewProjectRepository(db *sqlx.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

const projectColumns = `id, user_id, name, description, api_key, is_public, created_at, updated_at`

// Create inserts a new project.
func (r *ProjectRepository) Create(ctx context.Context, project *models.Project) error {
	if project.ID == "" {
		project.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if project.CreatedAt.IsZero() {
		project.CreatedAt = now
	}
	project.UpdatedAt = now

	const query = `INSERT INTO projects (id, user_id, name, description, api_key, is_public, created_at, updated_at) VALUES (:id, :user_id, :name, :description, :api_key, :is_public, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, project); err != nil {
		return fmt.Errorf("create project: %w", err)
	}
	return nil
}

// FindByID returns a project by identifier.
func (r *ProjectRepository) FindByID(ctx context.Context, id string) (*models.Project, error) {
	const query = `SELECT ` + projectColumns + ` FROM projects WHERE id = $1 LIMIT 1`
	var project models.Project
	if err := r.db.GetContext(ctx, &project, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find project by id: %w", err)
	}
	return &project, nil
}

// FindByAPIKey returns the project owning a presented API key.
func (r *ProjectRepository) FindByAPIKey(ctx context.Context, apiKey string) (*models.Project, error) {
	const query = `SELECT ` + projectColumns + ` FROM projects WHERE api_key = $1 LIMIT 1`
	var project models.Project
	if err := r.db.GetContext(ctx, &project, query, apiKey); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find project by api key: %w", err)
	}
	return &project, nil
}

// ListByOwner returns the user's projects with aggregate file stats.
func (r *ProjectRepository) ListByOwner(ctx context.Context, userID string) ([]models.ProjectWithStats, error) {
	const query = `SELECT p.id, p.user_id, p.name, p.description, p.api_key, p.is_public, p.created_at, p.updated_at,
COUNT(f.id) AS file_count, COALESCE(SUM(f.size_bytes), 0) AS total_size
FROM projects p
LEFT JOIN files f ON f.project_id = p.id
WHERE p.user_id = $1
GROUP BY p.id
ORDER BY p.created_at DESC`
	var projects []models.ProjectWithStats
	if err := r.db.SelectContext(ctx, &projects, query, userID); err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

// Update persists mutable project fields.
func (r *ProjectRepository) Update(ctx context.Context, project *models.Project) error {
	project.UpdatedAt = time.Now().UTC()
	const query = `UPDATE projects SET name = :name, description = :description, is_public = :is_public, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, project); err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	return nil
}

// Delete removes a project. Folders and files cascade at the schema level.
func (r *ProjectRepository) Delete(ctx context.Context, id string) (int64, error) {
	const query = `DELETE FROM projects WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return 0, fmt.Errorf("delete project: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete project: %w", err)
	}
	return affected, nil
}

// RegenerateKey atomically replaces the project's API key. The old key fails
// verification from the next request onward.
func (r *ProjectRepository) RegenerateKey(ctx context.Context, id, newKey string, at time.Time) error {
	const query = `UPDATE projects SET api_key = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, newKey, at); err != nil {
		return fmt.Errorf("regenerate api key: %w", err)
	}
	return nil
}

// UsageByFolder aggregates file counts and sizes per folder for the usage
// report. Unfoldered files group under an empty path.
func (r *ProjectRepository) UsageByFolder(ctx context.Context, projectID string) ([]models.UsageRow, error) {
	const query = `SELECT COALESCE(fo.path, '') AS folder_path, COUNT(fi.id) AS file_count, COALESCE(SUM(fi.size_bytes), 0) AS total_size
FROM files fi
LEFT JOIN folders fo ON fi.folder_id = fo.id
WHERE fi.project_id = $1
GROUP BY fo.path
ORDER BY folder_path`
	var rows []models.UsageRow
	if err := r.db.SelectContext(ctx, &rows, query, projectID); err != nil {
		return nil, fmt.Errorf("project usage by folder: %w", err)
	}
	return rows, nil
}
