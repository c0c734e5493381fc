package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ridemart/auth-api/internal/models"
	appErrors "github.com/ridemart/auth-api/pkg/errors"
)

type sessionTokenRepository interface {
	Create(ctx context.Context, rec *models.TokenRecord) error
	FindActiveByRefreshHash(ctx context.Context, refreshHash, family string) (*models.TokenRecord, error)
	ExistsActiveByAccessHash(ctx context.Context, accessHash, family string) (bool, error)
	HasRevokedInFamily(ctx context.Context, family string) (bool, error)
	MarkRotated(ctx context.Context, id string, now time.Time) (bool, error)
	MarkFamilyReuseDetected(ctx context.Context, family string, now time.Time) error
	RevokeAllForUser(ctx context.Context, userID, reason string, now time.Time) (int64, error)
	RevokeFamily(ctx context.Context, family, reason string, now time.Time) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type sessionAlertRepository interface {
	Create(ctx context.Context, alert *models.SecurityAlert) error
}

type sessionAuditRepository interface {
	Create(ctx context.Context, log *models.AuditLog) error
}

// SessionConfig defines configuration for the rotating session manager.
type SessionConfig struct {
	Secret             string
	TokenHashPepper    string
	Issuer             string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
}

// IssueParams carries the identity a new session is issued for.
type IssueParams struct {
	UserID string
	Role   models.UserRole
	Email  string
	Device models.DeviceInfo
}

// SessionService issues, rotates, validates and revokes access/refresh
// token pairs using a refresh-token-family model. Presenting a refresh
// token that was already rotated away is treated as a confirmed compromise
// of the whole family.
type SessionService struct {
	tokens  sessionTokenRepository
	alerts  sessionAlertRepository
	audits  sessionAuditRepository
	metrics *MetricsService
	logger  *zap.Logger
	config  SessionConfig
	now     func() time.Time
}

// NewSessionService constructs a SessionService instance.
func NewSessionService(tokens sessionTokenRepository, alerts sessionAlertRepository, audits sessionAuditRepository, metrics *MetricsService, logger *zap.Logger, config SessionConfig) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{
		tokens:  tokens,
		alerts:  alerts,
		audits:  audits,
		metrics: metrics,
		logger:  logger,
		config:  config,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Issue opens a new session family and returns its first token pair.
func (s *SessionService) Issue(ctx context.Context, params IssueParams) (*models.TokenPair, error) {
	family := uuid.NewString()
	return s.issuePair(ctx, params, family, 1)
}

// Rotate exchanges a refresh token for its successor pair. All verification
// failures collapse to a single unauthorized denial so a caller can never
// tell "expired" from "reused"; the reuse path escalates internally.
func (s *SessionService) Rotate(ctx context.Context, refreshToken string, device models.DeviceInfo) (*models.TokenPair, error) {
	claims, err := s.parseToken(refreshToken, models.TokenTypeRefresh)
	if err != nil {
		s.metrics.IncRotation(MetricResultDenied)
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid refresh token")
	}

	now := s.now()
	refreshHash := s.hashToken(refreshToken)

	rec, err := s.tokens.FindActiveByRefreshHash(ctx, refreshHash, claims.TokenFamily)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.handleMissingRefresh(ctx, claims, device, now)
		}
		s.metrics.IncRotation(MetricResultFailure)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up refresh token")
	}

	if rec.UsedAt != nil || now.After(rec.RefreshExpiresAt) {
		// Already consumed or past its window: a duplicate-rotation race or
		// a stale client, not proven theft. No escalation.
		s.metrics.IncRotation(MetricResultDenied)
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid refresh token")
	}

	won, err := s.tokens.MarkRotated(ctx, rec.ID, now)
	if err != nil {
		s.metrics.IncRotation(MetricResultFailure)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to consume refresh token")
	}
	if !won {
		// Lost the compare-and-set against a concurrent rotation. The other
		// request owns the successor; this one ends here.
		s.metrics.IncRotation(MetricResultDenied)
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid refresh token")
	}

	// Inherit the session's device metadata unless new metadata came in.
	if device.Empty() {
		device = models.DeviceInfo{
			DeviceID:          rec.DeviceID,
			DeviceFingerprint: rec.DeviceFingerprint,
			IPAddress:         rec.IPAddress,
			UserAgent:         rec.UserAgent,
		}
	}

	email := ""
	if rec.UserEmail != nil {
		email = *rec.UserEmail
	}
	pair, err := s.issuePair(ctx, IssueParams{
		UserID: rec.UserID,
		Role:   rec.UserRole,
		Email:  email,
		Device: device,
	}, rec.TokenFamily, rec.TokenVersion+1)
	if err != nil {
		return nil, err
	}

	s.metrics.IncRotation(MetricResultSuccess)
	return pair, nil
}

// Validate checks an access token's signature, expiry, type tag and the
// existence of a live backing record, so revocation bites before the
// signature's own expiry would.
func (s *SessionService) Validate(ctx context.Context, accessToken string) (*models.SessionClaims, error) {
	claims, err := s.parseToken(accessToken, models.TokenTypeAccess)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid access token")
	}

	active, err := s.tokens.ExistsActiveByAccessHash(ctx, s.hashToken(accessToken), claims.TokenFamily)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check session state")
	}
	if !active {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "session revoked")
	}

	return claims, nil
}

// RevokeAll revokes every active session of the user.
func (s *SessionService) RevokeAll(ctx context.Context, userID, reason string) (int64, error) {
	count, err := s.tokens.RevokeAllForUser(ctx, userID, reason, s.now())
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke sessions")
	}
	return count, nil
}

// RevokeFamily revokes one session family, used by logout.
func (s *SessionService) RevokeFamily(ctx context.Context, family, reason string) (int64, error) {
	count, err := s.tokens.RevokeFamily(ctx, family, reason, s.now())
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke session")
	}
	return count, nil
}

// CleanupExpired deletes token records past their refresh expiry.
func (s *SessionService) CleanupExpired(ctx context.Context) (int64, error) {
	count, err := s.tokens.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sweep expired tokens")
	}
	return count, nil
}

// ParseRefreshClaims extracts the claims of a structurally valid refresh
// token without touching the store; logout uses it to locate the family
// and verify ownership.
func (s *SessionService) ParseRefreshClaims(refreshToken string) (*models.SessionClaims, error) {
	claims, err := s.parseToken(refreshToken, models.TokenTypeRefresh)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid refresh token")
	}
	return claims, nil
}

// handleMissingRefresh classifies a refresh token with no live record. A
// revoked sibling in the family means the token was rotated away and is
// now being replayed: confirmed compromise, so the user's every session
// dies and a critical fraud event is recorded.
func (s *SessionService) handleMissingRefresh(ctx context.Context, claims *models.SessionClaims, device models.DeviceInfo, now time.Time) error {
	revoked, err := s.tokens.HasRevokedInFamily(ctx, claims.TokenFamily)
	if err != nil {
		s.metrics.IncRotation(MetricResultFailure)
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to inspect token family")
	}
	if !revoked {
		s.metrics.IncRotation(MetricResultDenied)
		return appErrors.Clone(appErrors.ErrUnauthorized, "invalid refresh token")
	}

	if err := s.tokens.MarkFamilyReuseDetected(ctx, claims.TokenFamily, now); err != nil {
		s.logger.Error("failed to flag token family reuse", zap.String("family", claims.TokenFamily), zap.Error(err))
	}
	if _, err := s.tokens.RevokeAllForUser(ctx, claims.UserID, models.RevokeReasonReuse, now); err != nil {
		s.logger.Error("failed to revoke sessions after reuse", zap.String("user_id", claims.UserID), zap.Error(err))
	}

	alert := &models.SecurityAlert{
		UserID:            claims.UserID,
		UserRole:          claims.Role,
		AlertType:         models.AlertTokenReuse,
		Severity:          models.SeverityCritical,
		Reason:            fmt.Sprintf("refresh token of family %s generation %d presented after rotation", claims.TokenFamily, claims.TokenVersion),
		DeviceID:          device.DeviceID,
		DeviceFingerprint: device.DeviceFingerprint,
		IPAddress:         device.IPAddress,
		UserAgent:         device.UserAgent,
		CreatedAt:         now,
	}
	if err := s.alerts.Create(ctx, alert); err != nil {
		s.logger.Error("failed to record reuse alert", zap.Error(err))
	}

	details, _ := json.Marshal(map[string]interface{}{
		"token_family":  claims.TokenFamily,
		"token_version": claims.TokenVersion,
	})
	if err := s.audits.Create(ctx, &models.AuditLog{
		UserID:     &claims.UserID,
		Action:     models.AuditActionTokenReuse,
		Severity:   models.AuditSeverityCritical,
		Resource:   "session",
		ResourceID: &claims.TokenFamily,
		Details:    details,
		IPAddress:  device.IPAddress,
		UserAgent:  device.UserAgent,
		CreatedAt:  now,
	}); err != nil {
		s.logger.Error("failed to record reuse audit log", zap.Error(err))
	}

	s.metrics.IncReuseDetected()
	s.metrics.IncRotation(MetricResultDenied)
	s.logger.Warn("refresh token reuse detected, all user sessions revoked",
		zap.String("user_id", claims.UserID),
		zap.String("family", claims.TokenFamily))

	// The caller still only learns "unauthorized".
	return appErrors.Clone(appErrors.ErrUnauthorized, "invalid refresh token")
}

func (s *SessionService) issuePair(ctx context.Context, params IssueParams, family string, version int) (*models.TokenPair, error) {
	now := s.now()
	accessExpiry := now.Add(s.config.AccessTokenExpiry)
	refreshExpiry := now.Add(s.config.RefreshTokenExpiry)

	accessToken, err := s.signToken(params, family, version, models.TokenTypeAccess, now, accessExpiry)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign access token")
	}
	refreshToken, err := s.signToken(params, family, version, models.TokenTypeRefresh, now, refreshExpiry)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign refresh token")
	}

	rec := &models.TokenRecord{
		UserID:            params.UserID,
		UserRole:          params.Role,
		AccessTokenHash:   s.hashToken(accessToken),
		RefreshTokenHash:  s.hashToken(refreshToken),
		TokenFamily:       family,
		TokenVersion:      version,
		AccessExpiresAt:   accessExpiry,
		RefreshExpiresAt:  refreshExpiry,
		DeviceID:          params.Device.DeviceID,
		DeviceFingerprint: params.Device.DeviceFingerprint,
		IPAddress:         params.Device.IPAddress,
		UserAgent:         params.Device.UserAgent,
		CreatedAt:         now,
	}
	if params.Email != "" {
		rec.UserEmail = &params.Email
	}

	if err := s.tokens.Create(ctx, rec); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist token record")
	}

	return &models.TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		TokenFamily:      family,
		TokenVersion:     version,
		ExpiresIn:        int64(s.config.AccessTokenExpiry.Seconds()),
		RefreshExpiresAt: refreshExpiry,
	}, nil
}

func (s *SessionService) signToken(params IssueParams, family string, version int, tokenType models.TokenType, issuedAt, expiresAt time.Time) (string, error) {
	claims := &models.SessionClaims{
		UserID:       params.UserID,
		Role:         params.Role,
		Email:        params.Email,
		TokenFamily:  family,
		TokenVersion: version,
		TokenType:    tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   params.UserID,
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.Secret))
}

// parseToken verifies signature and expiry and enforces the type tag so an
// access token can never stand in for a refresh token or vice versa.
func (s *SessionService) parseToken(tokenString string, want models.TokenType) (*models.SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*models.SessionClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	if claims.TokenType != want {
		return nil, fmt.Errorf("wrong token type")
	}
	return claims, nil
}

// hashToken produces the peppered digest stored instead of the raw token.
// HMAC keeps lookups deterministic while a leaked table alone cannot be
// matched against captured tokens.
func (s *SessionService) hashToken(token string) string {
	mac := hmac.New(sha256.New, []byte(s.config.TokenHashPepper))
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}
