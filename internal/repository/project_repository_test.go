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

func TestProjectListByOwnerIncludesStats(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewProjectRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "user_id", "name", "description", "api_key", "is_public", "created_at", "updated_at", "file_count", "total_size"}).
		AddRow("p1", "u1", "assets", nil, "key-1", true, now, now, 4, 8192)
	mock.ExpectQuery("SELECT p.id, p.user_id, p.name").WillReturnRows(rows)

	projects, err := repo.ListByOwner(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, int64(4), projects[0].FileCount)
	assert.Equal(t, int64(8192), projects[0].TotalSize)
}

func TestProjectFindByAPIKeyNoRows(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewProjectRepository(db)

	mock.ExpectQuery("SELECT id, user_id, name").WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByAPIKey(context.Background(), "unknown-key")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestProjectRegenerateKey(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewProjectRepository(db)

	at := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE projects SET api_key = $2, updated_at = $3 WHERE id = $1")).
		WithArgs("p1", "new-key", at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.RegenerateKey(context.Background(), "p1", "new-key", at))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProjectDeleteReportsMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewProjectRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM projects WHERE id = $1")).
		WithArgs("gone").
		WillReturnResult(sqlmock.NewResult(0, 0))

	affected, err := repo.Delete(context.Background(), "gone")
	require.NoError(t, err)
	assert.Equal(t, int64(0), affected)
}

func TestProjectUsageByFolder(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewProjectRepository(db)

	rows := sqlmock.NewRows([]string{"folder_path", "file_count", "total_size"}).
		AddRow("", 2, 1024).
		AddRow("thumbs", 12, 40960)
	mock.ExpectQuery("SELECT COALESCE").WillReturnRows(rows)

	usage, err := repo.UsageByFolder(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, usage, 2)
	assert.Equal(t, models.UsageRow{FolderPath: "thumbs", FileCount: 12, TotalSize: 40960}, usage[1])
}

func TestProjectCreateAssignsID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewProjectRepository(db)

	mock.ExpectExec("INSERT INTO projects").WillReturnResult(sqlmock.NewResult(1, 1))

	project := &models.Project{UserID: "u1", Name: "assets", APIKey: "key-1"}
	require.NoError(t, repo.Create(context.Background(), project))
	assert.NotEmpty(t, project.ID)
}
