package service

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/theprantadutta/filerunner/internal/models"
	appErrors "github.com/theprantadutta/filerunner/pkg/errors"
)

type accessProjectSource interface {
	FindByAPIKey(ctx context.Context, apiKey string) (*models.Project, error)
}

// AccessService decides whether a download may proceed and authenticates
// project API keys. Visibility is computed fresh on every call; flag changes
// take effect on the next request with no cache to invalidate.
type AccessService struct {
	projects accessProjectSource
	logger   *zap.Logger
}

// NewAccessService wires the access service.
func NewAccessService(projects accessProjectSource, logger *zap.Logger) *AccessService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccessService{projects: projects, logger: logger}
}

// Resolve computes the effective visibility of a file from its project and
// optional folder. A public project opens everything inside it regardless of
// folder flags; otherwise a public folder opens its own contents. Files
// outside any folder follow the project alone.
func (s *AccessService) Resolve(project *models.Project, folder *models.Folder) models.Visibility {
	if project != nil && project.IsPublic {
		return models.VisibilityOpen
	}
	if folder != nil && folder.IsPublic {
		return models.VisibilityOpen
	}
	return models.VisibilityRequiresAPIKey
}

// VerifyAPIKey checks the presented key against the project's current key.
// Keys never expire; regeneration is the only thing that invalidates them.
func (s *AccessService) VerifyAPIKey(presented string, project *models.Project) error {
	if project == nil {
		return appErrors.ErrInvalidAPIKey
	}
	candidate := normalizeAPIKey(presented)
	if candidate == "" {
		return appErrors.Clone(appErrors.ErrInvalidAPIKey, "API key is required")
	}
	if subtle.ConstantTimeCompare([]byte(candidate), []byte(normalizeAPIKey(project.APIKey))) != 1 {
		return appErrors.ErrInvalidAPIKey
	}
	return nil
}

// AuthorizeDownload combines visibility resolution with key verification.
// Open files need nothing; protected files need the project's key. The
// resolved visibility is returned either way so callers can label metrics.
func (s *AccessService) AuthorizeDownload(project *models.Project, folder *models.Folder, presentedKey string) (models.Visibility, error) {
	visibility := s.Resolve(project, folder)
	if visibility == models.VisibilityOpen {
		return visibility, nil
	}
	if err := s.VerifyAPIKey(presentedKey, project); err != nil {
		return visibility, err
	}
	return visibility, nil
}

// ProjectForKey resolves a presented API key to its project. Unknown keys
// are indistinguishable from malformed ones.
func (s *AccessService) ProjectForKey(ctx context.Context, presented string) (*models.Project, error) {
	candidate := normalizeAPIKey(presented)
	if candidate == "" {
		return nil, appErrors.Clone(appErrors.ErrInvalidAPIKey, "API key is required")
	}
	project, err := s.projects.FindByAPIKey(ctx, candidate)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrInvalidAPIKey
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up API key")
	}
	return project, nil
}

// normalizeAPIKey lowercases and trims so the canonical UUID form matches
// however the client cased it.
func normalizeAPIKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
