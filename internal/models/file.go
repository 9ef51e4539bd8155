package models

import "time"

// Visibility is the access requirement resolved for a stored file.
type Visibility string

const (
	// VisibilityOpen means the file is served without credentials.
	VisibilityOpen Visibility = "open"
	// VisibilityRequiresAPIKey means the project's API key (or a signed
	// link) must accompany the download.
	VisibilityRequiresAPIKey Visibility = "requires_api_key"
)

// File is one stored upload. StoredName is server generated; the original
// name survives only as response metadata.
type File struct {
	ID           string    `db:"id" json:"id"`
	ProjectID    string    `db:"project_id" json:"project_id"`
	FolderID     *string   `db:"folder_id" json:"folder_id,omitempty"`
	OriginalName string    `db:"original_name" json:"original_name"`
	StoredName   string    `db:"stored_name" json:"-"`
	MimeType     string    `db:"mime_type" json:"mime_type"`
	SizeBytes    int64     `db:"size_bytes" json:"size_bytes"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// FileInfo is the client-facing projection of a file, carrying the folder
// path instead of internal ids.
type FileInfo struct {
	ID           string    `json:"id"`
	OriginalName string    `json:"original_name"`
	MimeType     string    `json:"mime_type"`
	SizeBytes    int64     `json:"size_bytes"`
	FolderPath   *string   `json:"folder_path,omitempty"`
	URL          string    `json:"url"`
	CreatedAt    time.Time `json:"created_at"`
}

// FileWithFolder joins a file row with its optional folder path.
type FileWithFolder struct {
	File
	FolderPath *string `db:"folder_path" json:"folder_path,omitempty"`
}

// BulkDeleteRequest names the files to remove in one call.
type BulkDeleteRequest struct {
	FileIDs []string `json:"file_ids" validate:"required,min=1,max=100,dive,uuid4"`
}

// BulkDeleteResponse reports how many files were removed.
type BulkDeleteResponse struct {
	DeletedCount int64 `json:"deleted_count"`
}

// SignedURLResponse carries a temporary download link for a private file.
type SignedURLResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}
