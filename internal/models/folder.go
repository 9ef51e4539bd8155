package models

import "time"

// Folder is a named path inside a project. The sanitized path doubles as the
// folder's unique key within the project and as the on-disk directory suffix.
type Folder struct {
	ID        string    `db:"id" json:"id"`
	ProjectID string    `db:"project_id" json:"project_id"`
	Path      string    `db:"path" json:"path"`
	IsPublic  bool      `db:"is_public" json:"is_public"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// FolderWithStats augments a folder row with aggregate file counters.
type FolderWithStats struct {
	Folder
	FileCount int64 `db:"file_count" json:"file_count"`
	TotalSize int64 `db:"total_size" json:"total_size"`
}

// CreateFolderRequest holds the payload for creating a folder. When IsPublic
// is omitted the folder inherits the project's visibility flag.
type CreateFolderRequest struct {
	ProjectID string `json:"project_id" validate:"required,uuid4"`
	Path      string `json:"path" validate:"required,max=255"`
	IsPublic  *bool  `json:"is_public"`
}

// UpdateFolderVisibilityRequest flips a folder's visibility flag.
type UpdateFolderVisibilityRequest struct {
	IsPublic *bool `json:"is_public" validate:"required"`
}

// DeleteFolderFilesRequest names the folder to purge on key-scoped deletes.
type DeleteFolderFilesRequest struct {
	FolderPath string `json:"folder_path" validate:"required,max=255"`
}
