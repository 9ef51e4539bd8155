package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theprantadutta/filerunner/internal/models"
	appErrors "github.com/theprantadutta/filerunner/pkg/errors"
)

type mockFolderRepo struct {
	byID   map[string]*models.Folder
	byPath map[string]*models.Folder
	stats  map[string][]models.FolderWithStats
}

func newMockFolderRepo() *mockFolderRepo {
	return &mockFolderRepo{
		byID:   make(map[string]*models.Folder),
		byPath: make(map[string]*models.Folder),
		stats:  make(map[string][]models.FolderWithStats),
	}
}

func (m *mockFolderRepo) Upsert(_ context.Context, folder *models.Folder) error {
	if existing, ok := m.byPath[folder.ProjectID+"\x00"+folder.Path]; ok {
		existing.IsPublic = folder.IsPublic
		existing.UpdatedAt = time.Now().UTC()
		*folder = *existing
		return nil
	}
	if folder.ID == "" {
		folder.ID = uuid.NewString()
	}
	copied := *folder
	m.byID[folder.ID] = &copied
	m.byPath[folder.ProjectID+"\x00"+folder.Path] = &copied
	return nil
}

func (m *mockFolderRepo) FindByID(_ context.Context, id string) (*models.Folder, error) {
	if f, ok := m.byID[id]; ok {
		copied := *f
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockFolderRepo) FindByPath(_ context.Context, projectID, path string) (*models.Folder, error) {
	if f, ok := m.byPath[projectID+"\x00"+path]; ok {
		copied := *f
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockFolderRepo) ListByProject(_ context.Context, projectID string) ([]models.FolderWithStats, error) {
	return m.stats[projectID], nil
}

func (m *mockFolderRepo) UpdateVisibility(_ context.Context, id string, isPublic bool, at time.Time) (int64, error) {
	f, ok := m.byID[id]
	if !ok {
		return 0, nil
	}
	f.IsPublic = isPublic
	f.UpdatedAt = at
	return 1, nil
}

type mockFolderFileStore struct {
	byFolder map[string][]models.File
}

func (m *mockFolderFileStore) ListByFolder(_ context.Context, folderID string) ([]models.File, error) {
	return m.byFolder[folderID], nil
}

func (m *mockFolderFileStore) DeleteByFolder(_ context.Context, folderID string) (int64, error) {
	count := int64(len(m.byFolder[folderID]))
	delete(m.byFolder, folderID)
	return count, nil
}

const folderTestProjectID = "5f9d1c7a-83e4-4a1b-9c2d-0e6f7a8b9c0d"

func folderTestProject(isPublic bool) *models.Project {
	return &models.Project{
		ID:       folderTestProjectID,
		UserID:   "u-1",
		Name:     "media",
		APIKey:   "11111111-2222-4333-8444-555555555555",
		IsPublic: isPublic,
	}
}

func newFolderTestService(project *models.Project) (*FolderService, *mockFolderRepo, *mockFolderFileStore, *memoryBlobStore, *captureAudit) {
	repo := newMockFolderRepo()
	files := &mockFolderFileStore{byFolder: make(map[string][]models.File)}
	blobs := newMemoryBlobStore()
	audit := &captureAudit{}
	svc := NewFolderService(repo, newMockProjectSource(project), files, blobs, audit, nil, nil)
	return svc, repo, files, blobs, audit
}

func TestFolderCreateInheritsProjectVisibility(t *testing.T) {
	svc, _, _, _, _ := newFolderTestService(folderTestProject(true))

	inherited, err := svc.Create(context.Background(), "u-1", &models.CreateFolderRequest{
		ProjectID: folderTestProjectID,
		Path:      "thumbs/small",
	})
	require.NoError(t, err)
	assert.True(t, inherited.IsPublic)
	assert.Equal(t, "thumbs/small", inherited.Path)
	assert.NotEmpty(t, inherited.ID)

	explicit, err := svc.Create(context.Background(), "u-1", &models.CreateFolderRequest{
		ProjectID: folderTestProjectID,
		Path:      "originals",
		IsPublic:  boolPtr(false),
	})
	require.NoError(t, err)
	assert.False(t, explicit.IsPublic)
}

func TestFolderCreateUpsertsExistingPath(t *testing.T) {
	svc, _, _, _, _ := newFolderTestService(folderTestProject(false))

	first, err := svc.Create(context.Background(), "u-1", &models.CreateFolderRequest{
		ProjectID: folderTestProjectID,
		Path:      "docs",
		IsPublic:  boolPtr(false),
	})
	require.NoError(t, err)

	second, err := svc.Create(context.Background(), "u-1", &models.CreateFolderRequest{
		ProjectID: folderTestProjectID,
		Path:      "docs",
		IsPublic:  boolPtr(true),
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.True(t, second.IsPublic)
}

func TestFolderCreateRejectsTraversal(t *testing.T) {
	svc, _, _, _, _ := newFolderTestService(folderTestProject(false))

	for _, path := range []string{"../outside", "a//b", "/rooted", "trailing/", "back\\slash"} {
		_, err := svc.Create(context.Background(), "u-1", &models.CreateFolderRequest{
			ProjectID: folderTestProjectID,
			Path:      path,
		})
		assert.ErrorIs(t, err, appErrors.ErrInvalidPath, "path %q", path)
	}
}

func TestFolderCreateRequiresOwnership(t *testing.T) {
	svc, _, _, _, _ := newFolderTestService(folderTestProject(false))

	_, err := svc.Create(context.Background(), "u-intruder", &models.CreateFolderRequest{
		ProjectID: folderTestProjectID,
		Path:      "docs",
	})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = svc.Create(context.Background(), "u-1", &models.CreateFolderRequest{
		ProjectID: "0a68c1de-2f3a-4b5c-8d7e-9f0a1b2c3d4e",
		Path:      "docs",
	})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestFolderUpdateVisibilityFlipsFlag(t *testing.T) {
	svc, repo, _, _, _ := newFolderTestService(folderTestProject(false))

	folder, err := svc.Create(context.Background(), "u-1", &models.CreateFolderRequest{
		ProjectID: folderTestProjectID,
		Path:      "thumbs",
	})
	require.NoError(t, err)
	require.False(t, folder.IsPublic)

	updated, err := svc.UpdateVisibility(context.Background(), "u-1", folder.ID, &models.UpdateFolderVisibilityRequest{IsPublic: boolPtr(true)})
	require.NoError(t, err)
	assert.True(t, updated.IsPublic)

	stored, err := repo.FindByID(context.Background(), folder.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsPublic)

	_, err = svc.UpdateVisibility(context.Background(), "u-intruder", folder.ID, &models.UpdateFolderVisibilityRequest{IsPublic: boolPtr(false)})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = svc.UpdateVisibility(context.Background(), "u-1", "missing", &models.UpdateFolderVisibilityRequest{IsPublic: boolPtr(false)})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	_, err = svc.UpdateVisibility(context.Background(), "u-1", folder.ID, &models.UpdateFolderVisibilityRequest{})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestFolderListRequiresOwnership(t *testing.T) {
	svc, repo, _, _, _ := newFolderTestService(folderTestProject(false))
	repo.stats[folderTestProjectID] = []models.FolderWithStats{
		{Folder: models.Folder{ID: "fo-1", ProjectID: folderTestProjectID, Path: "docs"}, FileCount: 3, TotalSize: 4096},
	}

	folders, err := svc.List(context.Background(), "u-1", folderTestProjectID)
	require.NoError(t, err)
	require.Len(t, folders, 1)
	assert.Equal(t, int64(3), folders[0].FileCount)

	_, err = svc.List(context.Background(), "u-2", folderTestProjectID)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestFolderListNeverReturnsNil(t *testing.T) {
	svc, _, _, _, _ := newFolderTestService(folderTestProject(false))

	folders, err := svc.List(context.Background(), "u-1", folderTestProjectID)
	require.NoError(t, err)
	assert.NotNil(t, folders)
	assert.Empty(t, folders)
}

func TestPurgeFilesDeletesRowsAndBlobs(t *testing.T) {
	project := folderTestProject(false)
	svc, _, files, blobs, audit := newFolderTestService(project)

	folder, err := svc.Create(context.Background(), "u-1", &models.CreateFolderRequest{
		ProjectID: folderTestProjectID,
		Path:      "exports",
	})
	require.NoError(t, err)

	files.byFolder[folder.ID] = []models.File{
		{ID: "f-1", ProjectID: project.ID, StoredName: "a.csv"},
		{ID: "f-2", ProjectID: project.ID, StoredName: "b.csv"},
	}
	blobs.saved[project.ID+"/exports/a.csv"] = []byte("a")
	blobs.saved[project.ID+"/exports/b.csv"] = []byte("b")

	count, err := svc.PurgeFiles(context.Background(), project, &models.DeleteFolderFilesRequest{FolderPath: "exports"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.Empty(t, blobs.saved)
	assert.Empty(t, files.byFolder[folder.ID])

	// The folder row itself survives, now empty.
	_, err = svc.UpdateVisibility(context.Background(), "u-1", folder.ID, &models.UpdateFolderVisibilityRequest{IsPublic: boolPtr(true)})
	assert.NoError(t, err)

	require.Len(t, audit.entries, 1)
	entry := audit.entries[0]
	assert.Equal(t, models.AuditActionFolderPurge, entry.Action)
	var meta map[string]interface{}
	require.NoError(t, json.Unmarshal(entry.Metadata, &meta))
	assert.Equal(t, "exports", meta["folder_path"])
	assert.Equal(t, float64(2), meta["deleted_count"])
}

func TestPurgeFilesUnknownFolder(t *testing.T) {
	project := folderTestProject(false)
	svc, _, _, _, _ := newFolderTestService(project)

	_, err := svc.PurgeFiles(context.Background(), project, &models.DeleteFolderFilesRequest{FolderPath: "ghost"})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	_, err = svc.PurgeFiles(context.Background(), project, &models.DeleteFolderFilesRequest{FolderPath: "../ghost"})
	assert.ErrorIs(t, err, appErrors.ErrInvalidPath)
}
