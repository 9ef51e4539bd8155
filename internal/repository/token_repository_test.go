package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theprantadutta/filerunner/internal/models"
)

func TestTokenCreate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	mock.ExpectExec("INSERT INTO refresh_tokens").WillReturnResult(sqlmock.NewResult(1, 1))

	token := &models.RefreshToken{
		UserID:    "u1",
		TokenHash: "hash",
		FamilyID:  "fam-1",
		ExpiresAt: time.Now().Add(time.Hour),
	}
	require.NoError(t, repo.Create(context.Background(), token))
	assert.NotEmpty(t, token.ID)
	assert.False(t, token.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenFindByHash(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "user_id", "token_hash", "family_id", "expires_at", "created_at", "revoked_at", "revoked_reason", "user_agent", "ip_address"}).
		AddRow("t1", "u1", "hash", "fam-1", now.Add(time.Hour), now, nil, nil, "agent", "127.0.0.1")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, token_hash, family_id, expires_at, created_at, revoked_at, revoked_reason, user_agent, ip_address FROM refresh_tokens WHERE token_hash = $1 LIMIT 1")).
		WithArgs("hash").
		WillReturnRows(rows)

	token, err := repo.FindByHash(context.Background(), "hash")
	require.NoError(t, err)
	assert.Equal(t, "fam-1", token.FamilyID)
	assert.False(t, token.IsRevoked())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenFindByHashNoRows(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	mock.ExpectQuery("SELECT id, user_id, token_hash").WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByHash(context.Background(), "unknown")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestTokenConsumeLiveRecord(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	at := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE refresh_tokens SET revoked_at = $2, revoked_reason = $3 WHERE token_hash = $1 AND revoked_at IS NULL")).
		WithArgs("hash", at, models.RevokeReasonRotated).
		WillReturnResult(sqlmock.NewResult(0, 1))

	consumed, err := repo.Consume(context.Background(), "hash", models.RevokeReasonRotated, at)
	require.NoError(t, err)
	assert.True(t, consumed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenConsumeLosesRace(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	// Another rotation already flipped revoked_at, so the conditional
	// update hits zero rows.
	at := time.Now().UTC()
	mock.ExpectExec("UPDATE refresh_tokens SET revoked_at").
		WillReturnResult(sqlmock.NewResult(0, 0))

	consumed, err := repo.Consume(context.Background(), "hash", models.RevokeReasonRotated, at)
	require.NoError(t, err)
	assert.False(t, consumed)
}

func TestTokenRevokeFamilyCountsLiveRecords(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	at := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE refresh_tokens SET revoked_at = $2, revoked_reason = $3 WHERE family_id = $1 AND revoked_at IS NULL")).
		WithArgs("fam-1", at, models.RevokeReasonReuseDetected).
		WillReturnResult(sqlmock.NewResult(0, 2))

	affected, err := repo.RevokeFamily(context.Background(), "fam-1", models.RevokeReasonReuseDetected, at)
	require.NoError(t, err)
	assert.Equal(t, int64(2), affected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRevokeAllForUserIdempotent(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	at := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE refresh_tokens SET revoked_at = $2, revoked_reason = $3 WHERE user_id = $1 AND revoked_at IS NULL")).
		WithArgs("u1", at, models.RevokeReasonLogoutAll).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("UPDATE refresh_tokens SET revoked_at").
		WillReturnResult(sqlmock.NewResult(0, 0))

	first, err := repo.RevokeAllForUser(context.Background(), "u1", models.RevokeReasonLogoutAll, at)
	require.NoError(t, err)
	assert.Equal(t, int64(3), first)

	second, err := repo.RevokeAllForUser(context.Background(), "u1", models.RevokeReasonLogoutAll, at)
	require.NoError(t, err)
	assert.Equal(t, int64(0), second)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenListActiveForUser(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "user_id", "token_hash", "family_id", "expires_at", "created_at", "revoked_at", "revoked_reason", "user_agent", "ip_address"}).
		AddRow("t2", "u1", "h2", "fam-1", now.Add(time.Hour), now, nil, nil, "agent", "127.0.0.1").
		AddRow("t1", "u1", "h1", "fam-2", now.Add(time.Hour), now.Add(-time.Hour), nil, nil, "agent", "127.0.0.1")
	mock.ExpectQuery("SELECT id, user_id, token_hash, family_id, expires_at, created_at, revoked_at, revoked_reason, user_agent, ip_address FROM refresh_tokens WHERE user_id").
		WillReturnRows(rows)

	tokens, err := repo.ListActiveForUser(context.Background(), "u1", now)
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	assert.Equal(t, "t2", tokens[0].ID)
}

func TestTokenDeleteExpiredBefore(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	cutoff := time.Now().Add(-30 * 24 * time.Hour).UTC()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM refresh_tokens WHERE expires_at < $1")).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 5))

	deleted, err := repo.DeleteExpiredBefore(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(5), deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}
