package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/theprantadutta/filerunner/internal/models"
	"github.com/theprantadutta/filerunner/internal/repository"
	appErrors "github.com/theprantadutta/filerunner/pkg/errors"
)

type authUserRepository interface {
	Create(ctx context.Context, user *models.User) error
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error
	EnsureAdmin(ctx context.Context, email, passwordHash string) (string, error)
}

type authTokenManager interface {
	Issue(ctx context.Context, user *models.User, ip, userAgent string) (*TokenPair, error)
	Rotate(ctx context.Context, presented, ip, userAgent string) (*TokenPair, *models.User, error)
	Revoke(ctx context.Context, userID, presented string) error
	RevokeAll(ctx context.Context, userID, reason string) (int64, error)
	Sessions(ctx context.Context, userID string) ([]models.SessionInfo, error)
}

type authAuditSink interface {
	CreateAuditLog(ctx context.Context, entry *models.AuditLog) error
}

// AuthConfig carries account-handling settings.
type AuthConfig struct {
	AllowSignup   bool
	AdminEmail    string
	AdminPassword string
	BcryptCost    int
}

// AuthService manages accounts and orchestrates credential issuance through
// the token service.
type AuthService struct {
	users     authUserRepository
	tokens    authTokenManager
	audit     authAuditSink
	validator *validator.Validate
	logger    *zap.Logger
	config    AuthConfig
}

// NewAuthService wires the auth service with its dependencies.
func NewAuthService(users authUserRepository, tokens authTokenManager, audit authAuditSink, validate *validator.Validate, logger *zap.Logger, config AuthConfig) *AuthService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.BcryptCost < bcrypt.MinCost || config.BcryptCost > bcrypt.MaxCost {
		config.BcryptCost = bcrypt.DefaultCost
	}
	return &AuthService{
		users:     users,
		tokens:    tokens,
		audit:     audit,
		validator: validate,
		logger:    logger,
		config:    config,
	}
}

// Bootstrap ensures the configured admin account exists with the admin role.
// It runs at startup and is a no-op when no admin is configured.
func (s *AuthService) Bootstrap(ctx context.Context) error {
	if s.config.AdminEmail == "" || s.config.AdminPassword == "" {
		s.logger.Debug("admin bootstrap skipped, no credentials configured")
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(s.config.AdminPassword), s.config.BcryptCost)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash admin password")
	}
	id, err := s.users.EnsureAdmin(ctx, normalizeEmail(s.config.AdminEmail), string(hash))
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to ensure admin account")
	}
	s.logger.Info("admin account ensured", zap.String("user_id", id))
	return nil
}

// Register creates an account and signs it in; the response already carries
// a credential pair.
func (s *AuthService) Register(ctx context.Context, req *models.RegisterRequest) (*models.TokenPairResponse, error) {
	if !s.config.AllowSignup {
		return nil, appErrors.ErrSignupDisabled
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.config.BcryptCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		Email:        normalizeEmail(req.Email),
		PasswordHash: string(hash),
		Role:         models.RoleUser,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email is already registered")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	pair, err := s.tokens.Issue(ctx, user, req.IP, req.UserAgent)
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, &user.ID, models.AuditActionRegister, "user", &user.ID, nil, req.IP, req.UserAgent)
	s.logger.Info("user registered", zap.String("user_id", user.ID))

	return tokenPairResponse(pair, user), nil
}

// Login verifies credentials and issues a fresh pair. Unknown accounts and
// wrong passwords are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, req *models.LoginRequest) (*models.TokenPairResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	user, err := s.users.FindByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrInvalidCredentials
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up user")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		s.logger.Warn("login failed", zap.String("user_id", user.ID), zap.String("ip", req.IP))
		return nil, appErrors.ErrInvalidCredentials
	}

	pair, err := s.tokens.Issue(ctx, user, req.IP, req.UserAgent)
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, &user.ID, models.AuditActionLogin, "user", &user.ID, nil, req.IP, req.UserAgent)

	return tokenPairResponse(pair, user), nil
}

// Refresh rotates the presented refresh token into a new pair.
func (s *AuthService) Refresh(ctx context.Context, req *models.RefreshTokenRequest) (*models.TokenPairResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid refresh payload")
	}

	pair, user, err := s.tokens.Rotate(ctx, req.RefreshToken, req.IP, req.UserAgent)
	if err != nil {
		return nil, err
	}
	return tokenPairResponse(pair, user), nil
}

// Logout revokes the presented refresh token. Clients that lost their token
// can still call it; there is simply nothing server-side to undo then.
func (s *AuthService) Logout(ctx context.Context, userID string, req *models.LogoutRequest, ip, userAgent string) error {
	if err := s.tokens.Revoke(ctx, userID, req.RefreshToken); err != nil {
		return err
	}
	s.recordAudit(ctx, &userID, models.AuditActionLogout, "user", &userID, nil, ip, userAgent)
	return nil
}

// LogoutAll revokes every live session the user holds.
func (s *AuthService) LogoutAll(ctx context.Context, userID, ip, userAgent string) (*models.LogoutAllResponse, error) {
	count, err := s.tokens.RevokeAll(ctx, userID, models.RevokeReasonLogoutAll)
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, &userID, models.AuditActionLogoutAll, "user", &userID, map[string]interface{}{
		"revoked_count": count,
	}, ip, userAgent)
	return &models.LogoutAllResponse{Message: "all sessions revoked", RevokedCount: count}, nil
}

// Me returns the authenticated user's profile.
func (s *AuthService) Me(ctx context.Context, userID string) (*models.UserInfo, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return &models.UserInfo{ID: user.ID, Email: user.Email, Role: user.Role}, nil
}

// Sessions lists the user's live refresh sessions.
func (s *AuthService) Sessions(ctx context.Context, userID string) ([]models.SessionInfo, error) {
	return s.tokens.Sessions(ctx, userID)
}

// ChangePassword swaps the password and revokes every outstanding session so
// stolen refresh tokens die with the old password.
func (s *AuthService) ChangePassword(ctx context.Context, userID string, req *models.ChangePasswordRequest, ip, userAgent string) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid password payload")
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)); err != nil {
		return appErrors.Clone(appErrors.ErrInvalidCredentials, "current password is incorrect")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), s.config.BcryptCost)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}
	if err := s.users.UpdatePassword(ctx, userID, string(hash), time.Now().UTC()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update password")
	}

	if _, err := s.tokens.RevokeAll(ctx, userID, models.RevokeReasonPasswordChange); err != nil {
		return err
	}

	s.recordAudit(ctx, &userID, models.AuditActionPasswordChange, "user", &userID, nil, ip, userAgent)
	return nil
}

func (s *AuthService) recordAudit(ctx context.Context, userID *string, action, resource string, resourceID *string, metadata map[string]interface{}, ip, userAgent string) {
	if s.audit == nil {
		return
	}
	var payload []byte
	if metadata != nil {
		payload, _ = json.Marshal(metadata)
	}
	entry := &models.AuditLog{
		UserID:     userID,
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		Metadata:   payload,
		IPAddress:  ip,
		UserAgent:  userAgent,
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}

func tokenPairResponse(pair *TokenPair, user *models.User) *models.TokenPairResponse {
	return &models.TokenPairResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    pair.ExpiresIn,
		User:         models.UserInfo{ID: user.ID, Email: user.Email, Role: user.Role},
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
