package models

import "time"

// Revocation reasons recorded on refresh token records.
const (
	RevokeReasonRotated        = "rotated"
	RevokeReasonExpired        = "expired"
	RevokeReasonReuseDetected  = "reuse_detected"
	RevokeReasonLogout         = "logout"
	RevokeReasonLogoutAll      = "logout_all"
	RevokeReasonPasswordChange = "password_change"
)

// RefreshToken represents one persisted refresh credential. Only the SHA-256
// digest of the opaque secret is stored; the secret itself crosses the API
// boundary on issue and redemption and exists nowhere else. Records are kept
// after revocation for the audit trail and are removed only by the
// maintenance purge.
type RefreshToken struct {
	ID            string     `db:"id" json:"id"`
	UserID        string     `db:"user_id" json:"user_id"`
	TokenHash     string     `db:"token_hash" json:"-"`
	FamilyID      string     `db:"family_id" json:"-"`
	ExpiresAt     time.Time  `db:"expires_at" json:"expires_at"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	RevokedAt     *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
	RevokedReason *string    `db:"revoked_reason" json:"revoked_reason,omitempty"`
	UserAgent     string     `db:"user_agent" json:"user_agent"`
	IPAddress     string     `db:"ip_address" json:"ip_address"`
}

// IsRevoked reports whether the record has been consumed or cancelled.
func (t *RefreshToken) IsRevoked() bool {
	return t.RevokedAt != nil
}

// IsExpired reports whether the record's lifetime has passed.
func (t *RefreshToken) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// SessionInfo projects the record into its client-visible shape.
func (t *RefreshToken) SessionInfo() SessionInfo {
	return SessionInfo{
		ID:        t.ID,
		CreatedAt: t.CreatedAt,
		ExpiresAt: t.ExpiresAt,
		UserAgent: t.UserAgent,
		IPAddress: t.IPAddress,
	}
}
