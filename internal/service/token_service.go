package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/theprantadutta/filerunner/internal/models"
	appErrors "github.com/theprantadutta/filerunner/pkg/errors"
)

// refreshSecretBytes is the entropy of a refresh secret before encoding.
const refreshSecretBytes = 32

type tokenRegistry interface {
	Create(ctx context.Context, token *models.RefreshToken) error
	FindByHash(ctx context.Context, hash string) (*models.RefreshToken, error)
	Consume(ctx context.Context, hash, reason string, at time.Time) (bool, error)
	RevokeFamily(ctx context.Context, familyID, reason string, at time.Time) (int64, error)
	RevokeAllForUser(ctx context.Context, userID, reason string, at time.Time) (int64, error)
	ListActiveForUser(ctx context.Context, userID string, now time.Time) ([]models.RefreshToken, error)
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type tokenUserSource interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type tokenAuditSink interface {
	CreateAuditLog(ctx context.Context, entry *models.AuditLog) error
}

type tokenMetrics interface {
	TokenIssued()
	TokenRotated()
	TokenReuseDetected()
	TokensRevoked(reason string, count int64)
	TokensPurged(count int64)
}

// TokenConfig groups signing and lifetime settings for issued credentials.
type TokenConfig struct {
	Secret        string
	Issuer        string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
}

// TokenPair carries a freshly minted access token together with the opaque
// refresh secret that replaces whatever the client held before.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
}

// TokenService owns the refresh credential lifecycle: issuance, single-use
// rotation, reuse detection with family-wide revocation, and purging. Access
// tokens are stateless JWTs; only refresh secrets are tracked server side,
// and only as SHA-256 digests.
type TokenService struct {
	registry tokenRegistry
	users    tokenUserSource
	audit    tokenAuditSink
	metrics  tokenMetrics
	logger   *zap.Logger
	config   TokenConfig
}

// NewTokenService wires the token service with its dependencies.
func NewTokenService(registry tokenRegistry, users tokenUserSource, audit tokenAuditSink, metrics tokenMetrics, logger *zap.Logger, config TokenConfig) *TokenService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.AccessExpiry <= 0 {
		config.AccessExpiry = 30 * time.Minute
	}
	if config.RefreshExpiry <= 0 {
		config.RefreshExpiry = 7 * 24 * time.Hour
	}
	return &TokenService{
		registry: registry,
		users:    users,
		audit:    audit,
		metrics:  metrics,
		logger:   logger,
		config:   config,
	}
}

// Issue mints a new access/refresh pair for a fresh login. The refresh
// credential starts a brand new family.
func (s *TokenService) Issue(ctx context.Context, user *models.User, ip, userAgent string) (*TokenPair, error) {
	now := time.Now().UTC()

	accessToken, err := s.mintAccessToken(user, now)
	if err != nil {
		return nil, err
	}

	secret, err := generateRefreshSecret()
	if err != nil {
		return nil, err
	}

	record := &models.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: hashRefreshSecret(secret),
		FamilyID:  uuid.NewString(),
		ExpiresAt: now.Add(s.config.RefreshExpiry),
		CreatedAt: now,
		UserAgent: userAgent,
		IPAddress: ip,
	}
	if err := s.registry.Create(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist refresh token")
	}

	if s.metrics != nil {
		s.metrics.TokenIssued()
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: secret,
		ExpiresIn:    int64(s.config.AccessExpiry.Seconds()),
	}, nil
}

// Rotate exchanges a refresh secret for a new pair. Each secret works exactly
// once: the presented credential is revoked and a successor is created in the
// same family. Replay of an already-revoked secret is treated as theft and
// revokes every live credential in the family before the caller sees an
// error. Expired secrets fail without touching siblings.
func (s *TokenService) Rotate(ctx context.Context, presented, ip, userAgent string) (*TokenPair, *models.User, error) {
	if presented == "" {
		return nil, nil, appErrors.Clone(appErrors.ErrInvalidToken, "refresh token is required")
	}

	hash := hashRefreshSecret(presented)
	record, err := s.registry.FindByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrInvalidToken, "refresh token not recognized")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up refresh token")
	}

	now := time.Now().UTC()

	// Expiry wins over revocation: replaying a token that simply aged out
	// is not evidence of theft and must not cascade.
	if record.IsExpired(now) {
		if _, err := s.registry.Consume(ctx, hash, models.RevokeReasonExpired, now); err != nil {
			s.logger.Warn("failed to mark expired refresh token", zap.Error(err))
		}
		return nil, nil, appErrors.Clone(appErrors.ErrInvalidToken, "refresh token expired")
	}

	if record.IsRevoked() {
		if err := s.cascadeReuse(ctx, record, ip, userAgent, now); err != nil {
			return nil, nil, err
		}
		return nil, nil, appErrors.ErrTokenReused
	}

	consumed, err := s.registry.Consume(ctx, hash, models.RevokeReasonRotated, now)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to consume refresh token")
	}
	if !consumed {
		// A racing request consumed this secret first. The loser is
		// indistinguishable from a replay.
		if err := s.cascadeReuse(ctx, record, ip, userAgent, now); err != nil {
			return nil, nil, err
		}
		return nil, nil, appErrors.ErrTokenReused
	}

	user, err := s.users.FindByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrInvalidToken, "account no longer exists")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load token owner")
	}

	secret, err := generateRefreshSecret()
	if err != nil {
		return nil, nil, err
	}
	successor := &models.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    record.UserID,
		TokenHash: hashRefreshSecret(secret),
		FamilyID:  record.FamilyID,
		ExpiresAt: now.Add(s.config.RefreshExpiry),
		CreatedAt: now,
		UserAgent: userAgent,
		IPAddress: ip,
	}
	if err := s.registry.Create(ctx, successor); err != nil {
		// The old credential is already spent; the family simply has no
		// live member until the user signs in again.
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist rotated refresh token")
	}

	accessToken, err := s.mintAccessToken(user, now)
	if err != nil {
		return nil, nil, err
	}

	s.recordAudit(ctx, &user.ID, models.AuditActionTokenRotated, "refresh_token", &record.FamilyID, map[string]interface{}{
		"family_id": record.FamilyID,
	}, ip, userAgent)
	if s.metrics != nil {
		s.metrics.TokenRotated()
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: secret,
		ExpiresIn:    int64(s.config.AccessExpiry.Seconds()),
	}, user, nil
}

// cascadeReuse revokes every live credential in the family and records the
// incident. The cascade must land before the caller is told anything.
func (s *TokenService) cascadeReuse(ctx context.Context, record *models.RefreshToken, ip, userAgent string, now time.Time) error {
	count, err := s.registry.RevokeFamily(ctx, record.FamilyID, models.RevokeReasonReuseDetected, now)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke token family")
	}

	s.logger.Warn("refresh token reuse detected, family revoked",
		zap.String("user_id", record.UserID),
		zap.String("family_id", record.FamilyID),
		zap.Int64("revoked_count", count),
		zap.String("ip", ip),
	)

	s.recordAudit(ctx, &record.UserID, models.AuditActionReuseDetected, "refresh_token", &record.FamilyID, map[string]interface{}{
		"family_id":     record.FamilyID,
		"revoked_count": count,
	}, ip, userAgent)

	if s.metrics != nil {
		s.metrics.TokenReuseDetected()
		if count > 0 {
			s.metrics.TokensRevoked(models.RevokeReasonReuseDetected, count)
		}
	}
	return nil
}

// Revoke ends the session holding the presented refresh secret. Unknown or
// already-revoked secrets are a no-op so logout stays idempotent, but a
// secret owned by a different account is rejected.
func (s *TokenService) Revoke(ctx context.Context, userID, presented string) error {
	if presented == "" {
		return nil
	}

	hash := hashRefreshSecret(presented)
	record, err := s.registry.FindByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up refresh token")
	}
	if record.UserID != userID {
		return appErrors.Clone(appErrors.ErrForbidden, "refresh token belongs to a different account")
	}

	consumed, err := s.registry.Consume(ctx, hash, models.RevokeReasonLogout, time.Now().UTC())
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke refresh token")
	}
	if consumed && s.metrics != nil {
		s.metrics.TokensRevoked(models.RevokeReasonLogout, 1)
	}
	return nil
}

// RevokeAll revokes every live refresh credential the user holds and returns
// how many were affected. Calling it twice in a row is harmless.
func (s *TokenService) RevokeAll(ctx context.Context, userID, reason string) (int64, error) {
	count, err := s.registry.RevokeAllForUser(ctx, userID, reason, time.Now().UTC())
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke sessions")
	}
	if count > 0 && s.metrics != nil {
		s.metrics.TokensRevoked(reason, count)
	}
	return count, nil
}

// Sessions lists the user's live refresh credentials, newest first. Secrets
// and hashes never leave the service.
func (s *TokenService) Sessions(ctx context.Context, userID string) ([]models.SessionInfo, error) {
	records, err := s.registry.ListActiveForUser(ctx, userID, time.Now().UTC())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	sessions := make([]models.SessionInfo, 0, len(records))
	for i := range records {
		sessions = append(sessions, records[i].SessionInfo())
	}
	return sessions, nil
}

// VerifyAccessToken validates a bearer token's signature, expiry and type.
// It never consults the registry: revoking a refresh family does not recall
// access tokens already in flight.
func (s *TokenService) VerifyAccessToken(raw string) (*models.AccessClaims, error) {
	claims := &models.AccessClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, appErrors.Clone(appErrors.ErrInvalidToken, "unexpected signing method")
		}
		return []byte(s.config.Secret), nil
	})
	if err != nil || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrInvalidToken, "invalid or expired access token")
	}
	if claims.TokenType != models.TokenTypeAccess {
		return nil, appErrors.Clone(appErrors.ErrInvalidToken, "token is not an access token")
	}
	return claims, nil
}

// PurgeExpired hard-deletes refresh records whose expiry lies beyond the
// retention window. Live and recently-expired records stay for forensics.
func (s *TokenService) PurgeExpired(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)
	count, err := s.registry.DeleteExpiredBefore(ctx, cutoff)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to purge refresh tokens")
	}
	if count > 0 {
		s.logger.Info("purged expired refresh tokens", zap.Int64("count", count), zap.Time("cutoff", cutoff))
		if s.metrics != nil {
			s.metrics.TokensPurged(count)
		}
	}
	return count, nil
}

func (s *TokenService) mintAccessToken(user *models.User, now time.Time) (string, error) {
	claims := &models.AccessClaims{
		UserID:    user.ID,
		Email:     user.Email,
		Role:      user.Role,
		TokenType: models.TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   user.ID,
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.AccessExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.Secret))
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign access token")
	}
	return signed, nil
}

func (s *TokenService) recordAudit(ctx context.Context, userID *string, action, resource string, resourceID *string, metadata map[string]interface{}, ip, userAgent string) {
	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(metadata)
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

// generateRefreshSecret returns an opaque URL-safe secret. Only its SHA-256
// digest is ever stored.
func generateRefreshSecret() (string, error) {
	buf := make([]byte, refreshSecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate refresh token")
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func hashRefreshSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
