package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// AuditAction constants represent actions to be logged.
const (
	AuditActionRegister       = "REGISTER"
	AuditActionLogin          = "LOGIN"
	AuditActionLogout         = "LOGOUT"
	AuditActionLogoutAll      = "LOGOUT_ALL"
	AuditActionTokenRotated   = "TOKEN_ROTATED"
	AuditActionReuseDetected  = "TOKEN_REUSE_DETECTED"
	AuditActionPasswordChange = "PASSWORD_CHANGE"
	AuditActionKeyRegenerated = "API_KEY_REGENERATED"
	AuditActionProjectCreate  = "PROJECT_CREATE"
	AuditActionProjectDelete  = "PROJECT_DELETE"
	AuditActionFileUpload     = "FILE_UPLOAD"
	AuditActionFileDelete     = "FILE_DELETE"
	AuditActionFolderPurge    = "FOLDER_PURGE"
)

// AuditLog represents an audit trail record. Metadata holds the
// action-specific JSONB payload.
type AuditLog struct {
	ID         string         `db:"id" json:"id"`
	UserID     *string        `db:"user_id" json:"user_id,omitempty"`
	Action     string         `db:"action" json:"action"`
	Resource   string         `db:"resource" json:"resource"`
	ResourceID *string        `db:"resource_id" json:"resource_id,omitempty"`
	Metadata   types.JSONText `db:"metadata" json:"metadata,omitempty"`
	IPAddress  string         `db:"ip_address" json:"ip_address"`
	UserAgent  string         `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
}

// AuditLogFilter narrows the admin audit trail listing.
type AuditLogFilter struct {
	UserID   string
	Action   string
	Resource string
	Page     int
	PageSize int
}
