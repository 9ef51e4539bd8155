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

func TestFolderUpsertReturnsStoredRow(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewFolderRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "project_id", "path", "is_public", "created_at", "updated_at"}).
		AddRow("f1", "p1", "thumbs", true, now.Add(-time.Hour), now)
	mock.ExpectQuery("INSERT INTO folders").WillReturnRows(rows)

	folder := &models.Folder{ProjectID: "p1", Path: "thumbs", IsPublic: true}
	require.NoError(t, repo.Upsert(context.Background(), folder))
	// The row existed already: the returned id and created_at win.
	assert.Equal(t, "f1", folder.ID)
	assert.True(t, folder.IsPublic)
}

func TestFolderGetOrCreateKeepsExistingVisibility(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewFolderRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "project_id", "path", "is_public", "created_at", "updated_at"}).
		AddRow("f1", "p1", "originals", false, now, now)
	mock.ExpectQuery("INSERT INTO folders").WillReturnRows(rows)

	folder, err := repo.GetOrCreate(context.Background(), "p1", "originals", true)
	require.NoError(t, err)
	// defaultPublic=true only applies on insert; the existing private row
	// comes back untouched.
	assert.False(t, folder.IsPublic)
	assert.Equal(t, "f1", folder.ID)
}

func TestFolderFindByPathNoRows(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewFolderRepository(db)

	mock.ExpectQuery("SELECT id, project_id, path").WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByPath(context.Background(), "p1", "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestFolderUpdateVisibilityAffectedRows(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewFolderRepository(db)

	at := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE folders SET is_public = $2, updated_at = $3 WHERE id = $1")).
		WithArgs("f1", false, at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	affected, err := repo.UpdateVisibility(context.Background(), "f1", false, at)
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFolderListByProjectIncludesStats(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewFolderRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "project_id", "path", "is_public", "created_at", "updated_at", "file_count", "total_size"}).
		AddRow("f1", "p1", "originals", false, now, now, 12, 1048576).
		AddRow("f2", "p1", "thumbs", true, now, now, 12, 40960)
	mock.ExpectQuery("SELECT fo.id, fo.project_id, fo.path").WillReturnRows(rows)

	folders, err := repo.ListByProject(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, folders, 2)
	assert.Equal(t, int64(1048576), folders[0].TotalSize)
}
