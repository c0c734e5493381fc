package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ridemart/auth-api/internal/models"
	appErrors "github.com/ridemart/auth-api/pkg/errors"
)

type authUserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	UpdateLastLogin(ctx context.Context, id string, ts time.Time) error
}

type authAuditRepository interface {
	Create(ctx context.Context, log *models.AuditLog) error
}

type loginThrottle interface {
	Check(ctx context.Context, identifier, identifierType string, device models.DeviceInfo) (models.ThrottleDecision, error)
	RecordAttempt(ctx context.Context, attempt *models.LoginAttempt) error
}

type sessionManager interface {
	Issue(ctx context.Context, params IssueParams) (*models.TokenPair, error)
	Rotate(ctx context.Context, refreshToken string, device models.DeviceInfo) (*models.TokenPair, error)
	RevokeFamily(ctx context.Context, family, reason string) (int64, error)
	RevokeAll(ctx context.Context, userID, reason string) (int64, error)
	ParseRefreshClaims(refreshToken string) (*models.SessionClaims, error)
}

type loginDetector interface {
	Evaluate(ctx context.Context, login models.LoginContext) models.LoginEvaluation
}

// LoginOutcome is the result of a login request. Exactly one of Response
// and Throttle is set: a throttled login is a policy denial, not an error.
type LoginOutcome struct {
	Response *models.LoginResponse
	Throttle *models.ThrottleDecision
}

// AuthService orchestrates the login pipeline: throttle guard, credential
// check, session issuance and the non-blocking suspicious-login evaluation.
type AuthService struct {
	users     authUserRepository
	audits    authAuditRepository
	throttle  loginThrottle
	sessions  sessionManager
	detector  loginDetector
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
	now       func() time.Time
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(users authUserRepository, audits authAuditRepository, throttle loginThrottle, sessions sessionManager, detector loginDetector, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &AuthService{
		users:     users,
		audits:    audits,
		throttle:  throttle,
		sessions:  sessions,
		detector:  detector,
		validator: validate,
		metrics:   metrics,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Login authenticates a user. The throttle guard runs before any credential
// work; its denial is returned as a normal outcome. A successful login
// issues a fresh session family and feeds the suspicious-login detector,
// which may raise an alert but never blocks the response.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*LoginOutcome, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	decision, err := s.throttle.Check(ctx, req.Email, models.IdentifierEmail, req.Device)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		s.metrics.IncLogin(MetricResultDenied)
		s.auditLogin(ctx, nil, models.AuditActionLoginBlocked, models.AuditSeverityWarning, req, map[string]interface{}{
			"reason": decision.Reason,
		})
		return &LoginOutcome{Throttle: &decision}, nil
	}

	user, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.recordFailure(ctx, req, nil, "unknown identifier")
			return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid email or password")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}

	if !user.Active {
		s.recordFailure(ctx, req, &user.ID, "account inactive")
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "account is inactive")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		s.recordFailure(ctx, req, &user.ID, "invalid credentials")
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid email or password")
	}

	now := s.now()
	if err := s.throttle.RecordAttempt(ctx, &models.LoginAttempt{
		UserID:            &user.ID,
		Identifier:        req.Email,
		IdentifierType:    models.IdentifierEmail,
		AttemptType:       models.AttemptTypeLogin,
		Success:           true,
		DeviceID:          req.Device.DeviceID,
		DeviceFingerprint: req.Device.DeviceFingerprint,
		IPAddress:         req.Device.IPAddress,
		UserAgent:         req.Device.UserAgent,
		Country:           req.Country,
		CreatedAt:         now,
	}); err != nil {
		s.logger.Warn("failed to record successful attempt", zap.Error(err))
	}

	pair, err := s.sessions.Issue(ctx, IssueParams{
		UserID: user.ID,
		Role:   user.Role,
		Email:  user.Email,
		Device: req.Device,
	})
	if err != nil {
		return nil, err
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		s.logger.Warn("failed to update last login", zap.Error(err))
	}

	// Detection, not prevention: the evaluation is fail-open and its
	// verdict never alters the login response.
	evaluation := s.detector.Evaluate(ctx, models.LoginContext{
		UserID:  user.ID,
		Role:    user.Role,
		Email:   user.Email,
		Device:  req.Device,
		Country: req.Country,
	})
	if evaluation.Suspicious() {
		s.logger.Info("suspicious login detected",
			zap.String("user_id", user.ID),
			zap.String("alert_type", string(evaluation.AlertType)),
			zap.String("severity", string(evaluation.Severity)))
	}

	s.auditLogin(ctx, &user.ID, models.AuditActionLogin, models.AuditSeverityInfo, req, map[string]interface{}{
		"token_family": pair.TokenFamily,
		"evaluation":   evaluation.Outcome,
	})
	s.metrics.IncLogin(MetricResultSuccess)

	return &LoginOutcome{Response: &models.LoginResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
		IssuedAt:     now,
		User: models.UserInfo{
			ID:       user.ID,
			Email:    user.Email,
			FullName: user.FullName,
			Role:     user.Role,
		},
	}}, nil
}

// Refresh exchanges a refresh token for its successor pair.
func (s *AuthService) Refresh(ctx context.Context, req models.RefreshRequest) (*models.RefreshResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid refresh payload")
	}

	pair, err := s.sessions.Rotate(ctx, req.RefreshToken, req.Device)
	if err != nil {
		return nil, err
	}

	return &models.RefreshResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
		IssuedAt:     s.now(),
	}, nil
}

// Logout revokes the session family owning the provided refresh token.
func (s *AuthService) Logout(ctx context.Context, refreshToken, userID string, device models.DeviceInfo) error {
	claims, err := s.sessions.ParseRefreshClaims(refreshToken)
	if err != nil {
		return err
	}
	if claims.UserID != userID {
		return appErrors.Clone(appErrors.ErrForbidden, "token does not belong to user")
	}

	if _, err := s.sessions.RevokeFamily(ctx, claims.TokenFamily, models.RevokeReasonLogout); err != nil {
		return err
	}

	details, _ := json.Marshal(map[string]interface{}{"token_family": claims.TokenFamily})
	if err := s.audits.Create(ctx, &models.AuditLog{
		UserID:     &userID,
		Action:     models.AuditActionLogout,
		Severity:   models.AuditSeverityInfo,
		Resource:   "session",
		ResourceID: &claims.TokenFamily,
		Details:    details,
		IPAddress:  device.IPAddress,
		UserAgent:  device.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record logout audit log", zap.Error(err))
	}

	return nil
}

// LogoutAll revokes every active session of the user.
func (s *AuthService) LogoutAll(ctx context.Context, userID string, device models.DeviceInfo) (int64, error) {
	count, err := s.sessions.RevokeAll(ctx, userID, models.RevokeReasonLogout)
	if err != nil {
		return 0, err
	}

	details, _ := json.Marshal(map[string]interface{}{"revoked": count})
	if err := s.audits.Create(ctx, &models.AuditLog{
		UserID:    &userID,
		Action:    models.AuditActionLogout,
		Severity:  models.AuditSeverityInfo,
		Resource:  "session",
		Details:   details,
		IPAddress: device.IPAddress,
		UserAgent: device.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record logout-all audit log", zap.Error(err))
	}

	return count, nil
}

func (s *AuthService) recordFailure(ctx context.Context, req models.LoginRequest, userID *string, reason string) {
	s.metrics.IncLogin(MetricResultFailure)
	if err := s.throttle.RecordAttempt(ctx, &models.LoginAttempt{
		UserID:            userID,
		Identifier:        req.Email,
		IdentifierType:    models.IdentifierEmail,
		AttemptType:       models.AttemptTypeLogin,
		Success:           false,
		FailureReason:     &reason,
		DeviceID:          req.Device.DeviceID,
		DeviceFingerprint: req.Device.DeviceFingerprint,
		IPAddress:         req.Device.IPAddress,
		UserAgent:         req.Device.UserAgent,
		Country:           req.Country,
		CreatedAt:         s.now(),
	}); err != nil {
		s.logger.Warn("failed to record failed attempt", zap.Error(err))
	}
}

func (s *AuthService) auditLogin(ctx context.Context, userID *string, action, severity string, req models.LoginRequest, payload map[string]interface{}) {
	details, _ := json.Marshal(payload)
	entry := &models.AuditLog{
		UserID:    userID,
		Action:    action,
		Severity:  severity,
		Resource:  "auth",
		Details:   details,
		IPAddress: req.Device.IPAddress,
		UserAgent: req.Device.UserAgent,
	}
	if err := s.audits.Create(ctx, entry); err != nil {
		s.logger.Warn("failed to record login audit log", zap.Error(err))
	}
}
