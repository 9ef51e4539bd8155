package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theprantadutta/filerunner/internal/models"
)

func TestAuditCreateFillsDefaults(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAuditRepository(db)

	mock.ExpectExec("INSERT INTO audit_logs").WillReturnResult(sqlmock.NewResult(1, 1))

	userID := "u1"
	log := &models.AuditLog{
		UserID:    &userID,
		Action:    models.AuditActionLogin,
		Resource:  "user",
		IPAddress: "127.0.0.1",
		UserAgent: "test",
	}
	require.NoError(t, repo.CreateAuditLog(context.Background(), log))
	assert.NotEmpty(t, log.ID)
	assert.False(t, log.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditListAppliesFilters(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAuditRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "user_id", "action", "resource", "resource_id", "metadata", "ip_address", "user_agent", "created_at"}).
		AddRow("a2", "u1", models.AuditActionReuseDetected, "token", nil, nil, "127.0.0.1", "test", now).
		AddRow("a1", "u1", models.AuditActionReuseDetected, "token", nil, nil, "127.0.0.1", "test", now.Add(-time.Minute))
	mock.ExpectQuery(regexp.QuoteMeta("FROM audit_logs WHERE 1=1 AND user_id = $1 AND action = $2 ORDER BY created_at DESC LIMIT 10 OFFSET 10")).
		WithArgs("u1", models.AuditActionReuseDetected).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM audit_logs WHERE 1=1 AND user_id = $1 AND action = $2")).
		WithArgs("u1", models.AuditActionReuseDetected).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))

	logs, total, err := repo.List(context.Background(), models.AuditLogFilter{
		UserID:   "u1",
		Action:   models.AuditActionReuseDetected,
		Page:     2,
		PageSize: 10,
	})
	require.NoError(t, err)
	assert.Len(t, logs, 2)
	assert.Equal(t, 12, total)
	assert.Equal(t, "a2", logs[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditListDefaultsPaging(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAuditRepository(db)

	rows := sqlmock.NewRows([]string{"id", "user_id", "action", "resource", "resource_id", "metadata", "ip_address", "user_agent", "created_at"})
	mock.ExpectQuery(regexp.QuoteMeta("FROM audit_logs WHERE 1=1 ORDER BY created_at DESC LIMIT 50 OFFSET 0")).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM audit_logs WHERE 1=1")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	logs, total, err := repo.List(context.Background(), models.AuditLogFilter{})
	require.NoError(t, err)
	assert.NotNil(t, logs)
	assert.Empty(t, logs)
	assert.Equal(t, 0, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}
