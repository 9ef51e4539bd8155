package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/theprantadutta/filerunner/internal/models"
	appErrors "github.com/theprantadutta/filerunner/pkg/errors"
)

type mockProjectRepo struct {
	projects   map[string]*models.Project
	usage      []models.UsageRow
	deletedIDs []string
	keyUpdates map[string]string
}

func newMockProjectRepo(projects ...*models.Project) *mockProjectRepo {
	repo := &mockProjectRepo{projects: make(map[string]*models.Project), keyUpdates: make(map[string]string)}
	for _, p := range projects {
		repo.projects[p.ID] = p
	}
	return repo
}

func (m *mockProjectRepo) Create(_ context.Context, project *models.Project) error {
	if project.ID == "" {
		project.ID = "p-created"
	}
	m.projects[project.ID] = project
	return nil
}

func (m *mockProjectRepo) FindByID(_ context.Context, id string) (*models.Project, error) {
	if p, ok := m.projects[id]; ok {
		copied := *p
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockProjectRepo) ListByOwner(_ context.Context, userID string) ([]models.ProjectWithStats, error) {
	var out []models.ProjectWithStats
	for _, p := range m.projects {
		if p.UserID == userID {
			out = append(out, models.ProjectWithStats{Project: *p, FileCount: 2, TotalSize: 1024})
		}
	}
	return out, nil
}

func (m *mockProjectRepo) Update(_ context.Context, project *models.Project) error {
	m.projects[project.ID] = project
	return nil
}

func (m *mockProjectRepo) Delete(_ context.Context, id string) (int64, error) {
	if _, ok := m.projects[id]; !ok {
		return 0, nil
	}
	delete(m.projects, id)
	m.deletedIDs = append(m.deletedIDs, id)
	return 1, nil
}

func (m *mockProjectRepo) RegenerateKey(_ context.Context, id, newKey string, _ time.Time) error {
	m.keyUpdates[id] = newKey
	if p, ok := m.projects[id]; ok {
		p.APIKey = newKey
	}
	return nil
}

func (m *mockProjectRepo) UsageByFolder(_ context.Context, projectID string) ([]models.UsageRow, error) {
	return m.usage, nil
}

type mockTreeStore struct {
	deleted []string
}

func (m *mockTreeStore) DeleteTree(prefix string) error {
	m.deleted = append(m.deleted, prefix)
	return nil
}

func ownedProject() *models.Project {
	return &models.Project{
		ID:       "p-1",
		UserID:   "u-1",
		Name:     "media",
		APIKey:   "7d444840-9dc0-11d1-b245-5ffdce74fad2",
		IsPublic: false,
	}
}

func TestProjectCreateMintsKey(t *testing.T) {
	repo := newMockProjectRepo()
	svc := NewProjectService(repo, nil, nil, nil, zap.NewNop())

	project, err := svc.Create(context.Background(), "u-1", &models.CreateProjectRequest{Name: "  media  "})
	require.NoError(t, err)
	assert.Equal(t, "media", project.Name)
	assert.Equal(t, "u-1", project.UserID)
	assert.NotEmpty(t, project.APIKey)
	assert.False(t, project.IsPublic)
}

func TestProjectGetEnforcesOwnership(t *testing.T) {
	repo := newMockProjectRepo(ownedProject())
	svc := NewProjectService(repo, nil, nil, nil, zap.NewNop())

	_, err := svc.Get(context.Background(), "u-1", "p-1")
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), "u-2", "p-1")
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = svc.Get(context.Background(), "u-1", "p-missing")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestProjectUpdateAppliesPartial(t *testing.T) {
	repo := newMockProjectRepo(ownedProject())
	svc := NewProjectService(repo, nil, nil, nil, zap.NewNop())

	public := true
	updated, err := svc.Update(context.Background(), "u-1", "p-1", &models.UpdateProjectRequest{IsPublic: &public})
	require.NoError(t, err)
	assert.True(t, updated.IsPublic)
	assert.Equal(t, "media", updated.Name)

	name := "assets"
	updated, err = svc.Update(context.Background(), "u-1", "p-1", &models.UpdateProjectRequest{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "assets", updated.Name)
	assert.True(t, updated.IsPublic)
}

func TestProjectDeleteRemovesTree(t *testing.T) {
	repo := newMockProjectRepo(ownedProject())
	tree := &mockTreeStore{}
	svc := NewProjectService(repo, tree, nil, nil, zap.NewNop())

	require.NoError(t, svc.Delete(context.Background(), "u-1", "p-1"))
	assert.Equal(t, []string{"p-1"}, repo.deletedIDs)
	assert.Equal(t, []string{"p-1"}, tree.deleted)

	err := svc.Delete(context.Background(), "u-1", "p-1")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestRegenerateKeyReplacesOldKey(t *testing.T) {
	repo := newMockProjectRepo(ownedProject())
	svc := NewProjectService(repo, nil, nil, nil, zap.NewNop())

	before := repo.projects["p-1"].APIKey
	project, err := svc.RegenerateKey(context.Background(), "u-1", "p-1")
	require.NoError(t, err)
	assert.NotEqual(t, before, project.APIKey)
	assert.Equal(t, project.APIKey, repo.keyUpdates["p-1"])

	_, err = svc.RegenerateKey(context.Background(), "u-2", "p-1")
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestUsageReportCSV(t *testing.T) {
	repo := newMockProjectRepo(ownedProject())
	repo.usage = []models.UsageRow{
		{FolderPath: "thumbs", FileCount: 12, TotalSize: 40960},
		{FolderPath: "", FileCount: 3, TotalSize: 999},
	}
	svc := NewProjectService(repo, nil, nil, nil, zap.NewNop())

	name, contentType, data, err := svc.UsageReport(context.Background(), "u-1", "p-1", "csv")
	require.NoError(t, err)
	assert.Equal(t, "usage-p-1.csv", name)
	assert.Equal(t, "text/csv", contentType)

	body := string(data)
	assert.True(t, strings.HasPrefix(body, "folder,files,total_bytes\n"))
	assert.Contains(t, body, "thumbs,12,40960")
	assert.Contains(t, body, "(root),3,999")
}

func TestUsageReportPDFAndBadFormat(t *testing.T) {
	repo := newMockProjectRepo(ownedProject())
	repo.usage = []models.UsageRow{{FolderPath: "thumbs", FileCount: 1, TotalSize: 10}}
	svc := NewProjectService(repo, nil, nil, nil, zap.NewNop())

	_, contentType, data, err := svc.UsageReport(context.Background(), "u-1", "p-1", "pdf")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", contentType)
	assert.True(t, strings.HasPrefix(string(data), "%PDF"))

	_, _, _, err = svc.UsageReport(context.Background(), "u-1", "p-1", "xlsx")
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}
