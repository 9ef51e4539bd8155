package models

import "time"

// Project groups uploads under one owner, one API key and one default
// visibility flag.
type Project struct {
	ID          string    `db:"id" json:"id"`
	UserID      string    `db:"user_id" json:"user_id"`
	Name        string    `db:"name" json:"name"`
	Description *string   `db:"description" json:"description,omitempty"`
	APIKey      string    `db:"api_key" json:"api_key"`
	IsPublic    bool      `db:"is_public" json:"is_public"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// ProjectWithStats augments a project row with aggregate file counters.
type ProjectWithStats struct {
	Project
	FileCount int64 `db:"file_count" json:"file_count"`
	TotalSize int64 `db:"total_size" json:"total_size"`
}

// CreateProjectRequest holds the payload for creating a project.
type CreateProjectRequest struct {
	Name        string  `json:"name" validate:"required,min=1,max=120"`
	Description *string `json:"description" validate:"omitempty,max=500"`
	IsPublic    bool    `json:"is_public"`
}

// UpdateProjectRequest applies a partial update; nil fields are untouched.
type UpdateProjectRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=120"`
	Description *string `json:"description" validate:"omitempty,max=500"`
	IsPublic    *bool   `json:"is_public"`
}

// UsageRow is one folder line of the project usage report.
type UsageRow struct {
	FolderPath string `db:"folder_path" json:"folder_path"`
	FileCount  int64  `db:"file_count" json:"file_count"`
	TotalSize  int64  `db:"total_size" json:"total_size"`
}
