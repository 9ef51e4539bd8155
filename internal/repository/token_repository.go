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

// TokenRepository is the persisted session registry. One row per issued
// refresh credential; rows are revoked in place and only ever deleted by the
// maintenance purge.
type TokenRepository struct {
	db *sqlx.DB
}

// NewTokenRepository creates a new instance of TokenRepository.
func NewTokenRepository(db *sqlx.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

const tokenColumns = `id, user_id, token_hash, family_id, expires_at, created_at, revoked_at, revoked_reason, user_agent, ip_address`

// Create persists a refresh token record.
func (r *TokenRepository) Create(ctx context.Context, token *models.RefreshToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO refresh_tokens (id, user_id, token_hash, family_id, expires_at, created_at, revoked_at, revoked_reason, user_agent, ip_address) VALUES (:id, :user_id, :token_hash, :family_id, :expires_at, :created_at, :revoked_at, :revoked_reason, :user_agent, :ip_address)`
	if _, err := r.db.NamedExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}
	return nil
}

// FindByHash returns the record matching a presented secret's digest.
func (r *TokenRepository) FindByHash(ctx context.Context, hash string) (*models.RefreshToken, error) {
	const query = `SELECT ` + tokenColumns + ` FROM refresh_tokens WHERE token_hash = $1 LIMIT 1`
	var token models.RefreshToken
	if err := r.db.GetContext(ctx, &token, query, hash); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	return &token, nil
}

// Consume revokes the record for the given hash if and only if it is still
// live, in a single conditional update. The boolean result is the race
// arbiter: exactly one concurrent caller observes true for a given record.
func (r *TokenRepository) Consume(ctx context.Context, hash, reason string, at time.Time) (bool, error) {
	const query = `UPDATE refresh_tokens SET revoked_at = $2, revoked_reason = $3 WHERE token_hash = $1 AND revoked_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, hash, at, reason)
	if err != nil {
		return false, fmt.Errorf("consume refresh token: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("consume refresh token: %w", err)
	}
	return affected == 1, nil
}

// RevokeFamily revokes every live record in a rotation family and returns
// how many were hit. Already revoked records keep their original reason, so
// the cascade is idempotent.
func (r *TokenRepository) RevokeFamily(ctx context.Context, familyID, reason string, at time.Time) (int64, error) {
	const query = `UPDATE refresh_tokens SET revoked_at = $2, revoked_reason = $3 WHERE family_id = $1 AND revoked_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, familyID, at, reason)
	if err != nil {
		return 0, fmt.Errorf("revoke token family: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("revoke token family: %w", err)
	}
	return affected, nil
}

// RevokeAllForUser revokes every live record across all of a user's
// families. Rerunning is a no-op returning zero.
func (r *TokenRepository) RevokeAllForUser(ctx context.Context, userID, reason string, at time.Time) (int64, error) {
	const query = `UPDATE refresh_tokens SET revoked_at = $2, revoked_reason = $3 WHERE user_id = $1 AND revoked_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, userID, at, reason)
	if err != nil {
		return 0, fmt.Errorf("revoke user refresh tokens: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("revoke user refresh tokens: %w", err)
	}
	return affected, nil
}

// ListActiveForUser returns the user's live sessions, newest first.
func (r *TokenRepository) ListActiveForUser(ctx context.Context, userID string, now time.Time) ([]models.RefreshToken, error) {
	const query = `SELECT ` + tokenColumns + ` FROM refresh_tokens WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > $2 ORDER BY created_at DESC`
	var tokens []models.RefreshToken
	if err := r.db.SelectContext(ctx, &tokens, query, userID, now); err != nil {
		return nil, fmt.Errorf("list active refresh tokens: %w", err)
	}
	return tokens, nil
}

// DeleteExpiredBefore removes records whose lifetime ended before the cutoff.
// Revoked-but-unexpired records are retained for the audit trail.
func (r *TokenRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM refresh_tokens WHERE expires_at < $1`
	res, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge refresh tokens: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge refresh tokens: %w", err)
	}
	return affected, nil
}
