package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ridemart/auth-api/internal/models"
	appErrors "github.com/ridemart/auth-api/pkg/errors"
)

type fakeUserRepo struct {
	users            map[string]*models.User
	lastLoginUpdated bool
}

func (f *fakeUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return u, nil
}

func (f *fakeUserRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	f.lastLoginUpdated = true
	return nil
}

type fakeThrottle struct {
	decision models.ThrottleDecision
	attempts []*models.LoginAttempt
}

func (f *fakeThrottle) Check(ctx context.Context, identifier, identifierType string, device models.DeviceInfo) (models.ThrottleDecision, error) {
	return f.decision, nil
}

func (f *fakeThrottle) RecordAttempt(ctx context.Context, attempt *models.LoginAttempt) error {
	clone := *attempt
	f.attempts = append(f.attempts, &clone)
	return nil
}

func (f *fakeThrottle) lastAttempt() *models.LoginAttempt {
	if len(f.attempts) == 0 {
		return nil
	}
	return f.attempts[len(f.attempts)-1]
}

type fakeSessions struct {
	issued        []IssueParams
	refreshClaims *models.SessionClaims
	claimsErr     error
	revokedFamily string
	revokedAll    string
}

func (f *fakeSessions) Issue(ctx context.Context, params IssueParams) (*models.TokenPair, error) {
	f.issued = append(f.issued, params)
	return &models.TokenPair{
		AccessToken:  "access-token",
		RefreshToken: "refresh-token",
		TokenFamily:  "fam-1",
		TokenVersion: 1,
		ExpiresIn:    900,
	}, nil
}

func (f *fakeSessions) Rotate(ctx context.Context, refreshToken string, device models.DeviceInfo) (*models.TokenPair, error) {
	if refreshToken != "refresh-token" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid refresh token")
	}
	return &models.TokenPair{
		AccessToken:  "access-token-2",
		RefreshToken: "refresh-token-2",
		TokenFamily:  "fam-1",
		TokenVersion: 2,
		ExpiresIn:    900,
	}, nil
}

func (f *fakeSessions) RevokeFamily(ctx context.Context, family, reason string) (int64, error) {
	f.revokedFamily = family
	return 1, nil
}

func (f *fakeSessions) RevokeAll(ctx context.Context, userID, reason string) (int64, error) {
	f.revokedAll = userID
	return 2, nil
}

func (f *fakeSessions) ParseRefreshClaims(refreshToken string) (*models.SessionClaims, error) {
	if f.claimsErr != nil {
		return nil, f.claimsErr
	}
	return f.refreshClaims, nil
}

type fakeDetector struct {
	evaluation models.LoginEvaluation
	evaluated  []models.LoginContext
}

func (f *fakeDetector) Evaluate(ctx context.Context, login models.LoginContext) models.LoginEvaluation {
	f.evaluated = append(f.evaluated, login)
	return f.evaluation
}

type authFixture struct {
	users    *fakeUserRepo
	audits   *fakeAuditRepo
	throttle *fakeThrottle
	sessions *fakeSessions
	detector *fakeDetector
	svc      *AuthService
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.MinCost)
	require.NoError(t, err)

	users := &fakeUserRepo{users: map[string]*models.User{
		"u1": {ID: "u1", Email: "driver@example.com", PasswordHash: string(hash), FullName: "Dana Driver", Role: models.RoleDriver, Active: true},
	}}
	audits := &fakeAuditRepo{}
	throttle := &fakeThrottle{decision: models.ThrottleDecision{Allowed: true, RemainingAttempts: 5}}
	sessions := &fakeSessions{}
	detector := &fakeDetector{evaluation: models.LoginEvaluation{Outcome: models.OutcomeClear}}

	svc := NewAuthService(users, audits, throttle, sessions, detector, validator.New(), nil, zap.NewNop())
	return &authFixture{users: users, audits: audits, throttle: throttle, sessions: sessions, detector: detector, svc: svc}
}

func TestAuthLoginSuccess(t *testing.T) {
	fix := newAuthFixture(t)

	outcome, err := fix.svc.Login(context.Background(), models.LoginRequest{
		Email:    "driver@example.com",
		Password: "password",
		Device:   testDevice,
		Country:  "DE",
	})
	require.NoError(t, err)
	require.NotNil(t, outcome.Response)
	assert.Nil(t, outcome.Throttle)
	assert.Equal(t, "access-token", outcome.Response.AccessToken)
	assert.Equal(t, "u1", outcome.Response.User.ID)

	assert.True(t, fix.users.lastLoginUpdated)
	require.Len(t, fix.sessions.issued, 1)
	assert.Equal(t, models.RoleDriver, fix.sessions.issued[0].Role)

	// Success is recorded as an attempt with the resolved user ID.
	attempt := fix.throttle.lastAttempt()
	require.NotNil(t, attempt)
	assert.True(t, attempt.Success)
	require.NotNil(t, attempt.UserID)
	assert.Equal(t, "u1", *attempt.UserID)

	// The detector saw the full login context.
	require.Len(t, fix.detector.evaluated, 1)
	assert.Equal(t, "DE", fix.detector.evaluated[0].Country)

	assert.Len(t, fix.audits.byAction(models.AuditActionLogin), 1)
}

func TestAuthLoginThrottled(t *testing.T) {
	fix := newAuthFixture(t)
	until := time.Now().UTC().Add(30 * time.Minute)
	fix.throttle.decision = models.ThrottleDecision{Allowed: false, LockedUntil: &until, Reason: models.BlockReasonHardLock}

	outcome, err := fix.svc.Login(context.Background(), models.LoginRequest{
		Email:    "driver@example.com",
		Password: "password",
	})
	require.NoError(t, err)
	assert.Nil(t, outcome.Response)
	require.NotNil(t, outcome.Throttle)
	assert.Equal(t, models.BlockReasonHardLock, outcome.Throttle.Reason)

	// Denied before credentials were ever touched.
	assert.Empty(t, fix.sessions.issued)
	assert.Empty(t, fix.throttle.attempts)
	assert.Len(t, fix.audits.byAction(models.AuditActionLoginBlocked), 1)
}

func TestAuthLoginWrongPassword(t *testing.T) {
	fix := newAuthFixture(t)

	_, err := fix.svc.Login(context.Background(), models.LoginRequest{
		Email:    "driver@example.com",
		Password: "wrong",
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErr.Code)

	attempt := fix.throttle.lastAttempt()
	require.NotNil(t, attempt)
	assert.False(t, attempt.Success)
	require.NotNil(t, attempt.FailureReason)
	assert.Equal(t, "invalid credentials", *attempt.FailureReason)
}

func TestAuthLoginUnknownUserSameDenial(t *testing.T) {
	fix := newAuthFixture(t)

	_, err := fix.svc.Login(context.Background(), models.LoginRequest{
		Email:    "nobody@example.com",
		Password: "password",
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)

	// Unknown identifier and wrong password produce the same message.
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErr.Code)
	assert.Equal(t, "invalid email or password", appErr.Message)

	attempt := fix.throttle.lastAttempt()
	require.NotNil(t, attempt)
	assert.Nil(t, attempt.UserID)
}

func TestAuthLoginInactiveAccount(t *testing.T) {
	fix := newAuthFixture(t)
	fix.users.users["u1"].Active = false

	_, err := fix.svc.Login(context.Background(), models.LoginRequest{
		Email:    "driver@example.com",
		Password: "password",
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErr.Code)
	assert.Empty(t, fix.sessions.issued)
}

func TestAuthLoginSuspiciousEvaluationDoesNotBlock(t *testing.T) {
	fix := newAuthFixture(t)
	fix.detector.evaluation = models.LoginEvaluation{
		Outcome:   models.OutcomeSuspicious,
		AlertType: models.AlertNewCountry,
		Severity:  models.SeverityHigh,
	}

	outcome, err := fix.svc.Login(context.Background(), models.LoginRequest{
		Email:    "driver@example.com",
		Password: "password",
	})
	require.NoError(t, err)
	require.NotNil(t, outcome.Response)
	assert.NotEmpty(t, outcome.Response.AccessToken)
}

func TestAuthRefresh(t *testing.T) {
	fix := newAuthFixture(t)

	res, err := fix.svc.Refresh(context.Background(), models.RefreshRequest{RefreshToken: "refresh-token"})
	require.NoError(t, err)
	assert.Equal(t, "access-token-2", res.AccessToken)
	assert.Equal(t, "refresh-token-2", res.RefreshToken)
}

func TestAuthLogoutOwnershipEnforced(t *testing.T) {
	fix := newAuthFixture(t)
	fix.sessions.refreshClaims = &models.SessionClaims{UserID: "u1", TokenFamily: "fam-1"}

	err := fix.svc.Logout(context.Background(), "refresh-token", "someone-else", testDevice)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
	assert.Empty(t, fix.sessions.revokedFamily)

	err = fix.svc.Logout(context.Background(), "refresh-token", "u1", testDevice)
	require.NoError(t, err)
	assert.Equal(t, "fam-1", fix.sessions.revokedFamily)
	assert.Len(t, fix.audits.byAction(models.AuditActionLogout), 1)
}

func TestAuthLogoutAll(t *testing.T) {
	fix := newAuthFixture(t)

	count, err := fix.svc.LogoutAll(context.Background(), "u1", testDevice)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.Equal(t, "u1", fix.sessions.revokedAll)
}
