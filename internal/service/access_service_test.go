package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/theprantadutta/filerunner/internal/models"
	appErrors "github.com/theprantadutta/filerunner/pkg/errors"
)

type stubProjectSource struct {
	project *models.Project
}

func (s *stubProjectSource) FindByAPIKey(_ context.Context, apiKey string) (*models.Project, error) {
	if s.project == nil || s.project.APIKey != apiKey {
		return nil, sql.ErrNoRows
	}
	return s.project, nil
}

func boolPtr(b bool) *bool { return &b }

func TestResolveVisibilityMatrix(t *testing.T) {
	svc := NewAccessService(nil, zap.NewNop())

	cases := []struct {
		name          string
		projectPublic bool
		folderPublic  *bool
		want          models.Visibility
	}{
		{"private project, no folder", false, nil, models.VisibilityRequiresAPIKey},
		{"private project, private folder", false, boolPtr(false), models.VisibilityRequiresAPIKey},
		{"private project, public folder", false, boolPtr(true), models.VisibilityOpen},
		{"public project, no folder", true, nil, models.VisibilityOpen},
		{"public project, private folder", true, boolPtr(false), models.VisibilityOpen},
		{"public project, public folder", true, boolPtr(true), models.VisibilityOpen},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			project := &models.Project{ID: "p1", IsPublic: tc.projectPublic}
			var folder *models.Folder
			if tc.folderPublic != nil {
				folder = &models.Folder{ID: "fo1", ProjectID: "p1", IsPublic: *tc.folderPublic}
			}
			assert.Equal(t, tc.want, svc.Resolve(project, folder))
		})
	}
}

func TestResolveSiblingFoldersAreIndependent(t *testing.T) {
	svc := NewAccessService(nil, zap.NewNop())

	project := &models.Project{ID: "p1", IsPublic: false}
	thumbs := &models.Folder{ID: "fo1", ProjectID: "p1", Path: "thumbs", IsPublic: true}
	originals := &models.Folder{ID: "fo2", ProjectID: "p1", Path: "originals", IsPublic: false}

	assert.Equal(t, models.VisibilityOpen, svc.Resolve(project, thumbs))
	assert.Equal(t, models.VisibilityRequiresAPIKey, svc.Resolve(project, originals))
	assert.Equal(t, models.VisibilityRequiresAPIKey, svc.Resolve(project, nil))
}

func TestVerifyAPIKey(t *testing.T) {
	svc := NewAccessService(nil, zap.NewNop())
	project := &models.Project{ID: "p1", APIKey: "7d444840-9dc0-11d1-b245-5ffdce74fad2"}

	assert.NoError(t, svc.VerifyAPIKey("7d444840-9dc0-11d1-b245-5ffdce74fad2", project))
	// Canonical UUIDs are lowercase; cased presentation still matches.
	assert.NoError(t, svc.VerifyAPIKey("7D444840-9DC0-11D1-B245-5FFDCE74FAD2", project))
	assert.NoError(t, svc.VerifyAPIKey("  7d444840-9dc0-11d1-b245-5ffdce74fad2  ", project))

	assert.ErrorIs(t, svc.VerifyAPIKey("7d444840-9dc0-11d1-b245-000000000000", project), appErrors.ErrInvalidAPIKey)
	assert.ErrorIs(t, svc.VerifyAPIKey("", project), appErrors.ErrInvalidAPIKey)
	assert.ErrorIs(t, svc.VerifyAPIKey("anything", nil), appErrors.ErrInvalidAPIKey)
}

func TestAuthorizeDownload(t *testing.T) {
	svc := NewAccessService(nil, zap.NewNop())
	project := &models.Project{ID: "p1", APIKey: "7d444840-9dc0-11d1-b245-5ffdce74fad2", IsPublic: false}
	open := &models.Folder{ID: "fo1", IsPublic: true}

	// Open files need no credentials at all.
	visibility, err := svc.AuthorizeDownload(project, open, "")
	require.NoError(t, err)
	assert.Equal(t, models.VisibilityOpen, visibility)

	// Protected files need the project's key.
	visibility, err = svc.AuthorizeDownload(project, nil, "")
	assert.ErrorIs(t, err, appErrors.ErrInvalidAPIKey)
	assert.Equal(t, models.VisibilityRequiresAPIKey, visibility)

	visibility, err = svc.AuthorizeDownload(project, nil, project.APIKey)
	require.NoError(t, err)
	assert.Equal(t, models.VisibilityRequiresAPIKey, visibility)

	// A key for some other project does not open this one.
	_, err = svc.AuthorizeDownload(project, nil, "11111111-2222-3333-4444-555555555555")
	assert.ErrorIs(t, err, appErrors.ErrInvalidAPIKey)
}

func TestProjectForKey(t *testing.T) {
	project := &models.Project{ID: "p1", APIKey: "7d444840-9dc0-11d1-b245-5ffdce74fad2"}
	svc := NewAccessService(&stubProjectSource{project: project}, zap.NewNop())

	found, err := svc.ProjectForKey(context.Background(), "7D444840-9DC0-11D1-B245-5FFDCE74FAD2")
	require.NoError(t, err)
	assert.Equal(t, "p1", found.ID)

	_, err = svc.ProjectForKey(context.Background(), "11111111-2222-3333-4444-555555555555")
	assert.ErrorIs(t, err, appErrors.ErrInvalidAPIKey)

	_, err = svc.ProjectForKey(context.Background(), "")
	assert.ErrorIs(t, err, appErrors.ErrInvalidAPIKey)
}
