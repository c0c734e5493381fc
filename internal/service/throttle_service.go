package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/ridemart/auth-api/internal/models"
	appErrors "github.com/ridemart/auth-api/pkg/errors"
)

type throttleAttemptRepository interface {
	Create(ctx context.Context, attempt *models.LoginAttempt) error
	CountRecentFailures(ctx context.Context, identifier, deviceID, fingerprint string, since time.Time) (int, error)
	FindActiveBlock(ctx context.Context, identifier, deviceID, fingerprint string, now time.Time) (*models.LoginAttempt, error)
	ClearActiveBlocks(ctx context.Context, identifier string, now time.Time) (int64, error)
	ClearAllBlocks(ctx context.Context, identifier string) (int64, error)
}

type throttleAuditRepository interface {
	Create(ctx context.Context, log *models.AuditLog) error
}

// ThrottleConfig tunes the escalating penalty tiers.
type ThrottleConfig struct {
	Window           time.Duration
	MaxAttempts      int
	HardLockAttempts int
	CooldownDuration time.Duration
	HardLockDuration time.Duration
}

// ThrottleService rate-limits login attempts per identifier and per device
// with two escalating penalty tiers: a short cooldown and a hard lock.
type ThrottleService struct {
	attempts throttleAttemptRepository
	audits   throttleAuditRepository
	metrics  *MetricsService
	logger   *zap.Logger
	config   ThrottleConfig
	now      func() time.Time
}

// NewThrottleService constructs a ThrottleService instance.
func NewThrottleService(attempts throttleAttemptRepository, audits throttleAuditRepository, metrics *MetricsService, logger *zap.Logger, config ThrottleConfig) *ThrottleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 5
	}
	if config.HardLockAttempts <= config.MaxAttempts {
		config.HardLockAttempts = config.MaxAttempts * 2
	}
	if config.Window <= 0 {
		config.Window = 15 * time.Minute
	}
	if config.CooldownDuration <= 0 {
		config.CooldownDuration = 5 * time.Minute
	}
	if config.HardLockDuration <= 0 {
		config.HardLockDuration = 30 * time.Minute
	}
	return &ThrottleService{
		attempts: attempts,
		audits:   audits,
		metrics:  metrics,
		logger:   logger,
		config:   config,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Check decides whether a login attempt may proceed. A denial is a normal
// result carrying the applicable block window, never an error. The hard
// lock tier is evaluated first so an identifier past the hard threshold is
// never merely cooled down.
func (s *ThrottleService) Check(ctx context.Context, identifier, identifierType string, device models.DeviceInfo) (models.ThrottleDecision, error) {
	now := s.now()

	block, err := s.attempts.FindActiveBlock(ctx, identifier, device.DeviceID, device.DeviceFingerprint, now)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return models.ThrottleDecision{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check login blocks")
	}
	if block != nil {
		reason := ""
		if block.BlockReason != nil {
			reason = *block.BlockReason
		}
		decision := models.ThrottleDecision{Allowed: false, Reason: reason}
		if reason == models.BlockReasonHardLock {
			decision.LockedUntil = block.BlockedUntil
		} else {
			decision.CooldownUntil = block.BlockedUntil
		}
		return decision, nil
	}

	failures, err := s.attempts.CountRecentFailures(ctx, identifier, device.DeviceID, device.DeviceFingerprint, now.Add(-s.config.Window))
	if err != nil {
		return models.ThrottleDecision{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count login failures")
	}

	switch {
	case failures >= s.config.HardLockAttempts:
		until := now.Add(s.config.HardLockDuration)
		if err := s.writeBlock(ctx, identifier, identifierType, device, models.BlockReasonHardLock, until, failures, now); err != nil {
			return models.ThrottleDecision{}, err
		}
		s.metrics.IncLoginBlock("hard_lock")
		return models.ThrottleDecision{Allowed: false, LockedUntil: &until, Reason: models.BlockReasonHardLock}, nil

	case failures >= s.config.MaxAttempts:
		until := now.Add(s.config.CooldownDuration)
		if err := s.writeBlock(ctx, identifier, identifierType, device, models.BlockReasonCooldown, until, failures, now); err != nil {
			return models.ThrottleDecision{}, err
		}
		s.metrics.IncLoginBlock("cooldown")
		return models.ThrottleDecision{Allowed: false, CooldownUntil: &until, Reason: models.BlockReasonCooldown}, nil

	default:
		return models.ThrottleDecision{Allowed: true, RemainingAttempts: s.config.MaxAttempts - failures}, nil
	}
}

// RecordAttempt appends one login attempt row. On success, the identifier's
// still-active blocks are cleared; success is only reachable once a block
// window has elapsed, so this can never bypass an effective block.
func (s *ThrottleService) RecordAttempt(ctx context.Context, attempt *models.LoginAttempt) error {
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = s.now()
	}
	if err := s.attempts.Create(ctx, attempt); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record login attempt")
	}

	if attempt.Success {
		if _, err := s.attempts.ClearActiveBlocks(ctx, attempt.Identifier, s.now()); err != nil {
			s.logger.Warn("failed to clear login blocks after success",
				zap.String("identifier", attempt.Identifier), zap.Error(err))
		}
	}

	return nil
}

// ClearBlocks unconditionally lifts an identifier's blocks. Administrative
// override; the action is written to the audit trail.
func (s *ThrottleService) ClearBlocks(ctx context.Context, identifier, adminID string) (int64, error) {
	count, err := s.attempts.ClearAllBlocks(ctx, identifier)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear login blocks")
	}

	details, _ := json.Marshal(map[string]interface{}{"identifier": identifier, "cleared": count})
	entry := &models.AuditLog{
		Action:     models.AuditActionBlocksCleared,
		Severity:   models.AuditSeverityWarning,
		Resource:   "login_throttle",
		ResourceID: &identifier,
		Details:    details,
		CreatedAt:  s.now(),
	}
	if adminID != "" {
		entry.UserID = &adminID
	}
	if err := s.audits.Create(ctx, entry); err != nil {
		s.logger.Warn("failed to audit block clearance", zap.Error(err))
	}

	return count, nil
}

func (s *ThrottleService) writeBlock(ctx context.Context, identifier, identifierType string, device models.DeviceInfo, reason string, until time.Time, failures int, now time.Time) error {
	block := &models.LoginAttempt{
		Identifier:        identifier,
		IdentifierType:    identifierType,
		AttemptType:       models.AttemptTypeLogin,
		Success:           false,
		DeviceID:          device.DeviceID,
		DeviceFingerprint: device.DeviceFingerprint,
		IPAddress:         device.IPAddress,
		UserAgent:         device.UserAgent,
		IsBlocked:         true,
		BlockedUntil:      &until,
		BlockReason:       &reason,
		AttemptCount:      failures,
		CreatedAt:         now,
	}
	if err := s.attempts.Create(ctx, block); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to write login block")
	}

	s.logger.Info("login block written",
		zap.String("identifier", identifier),
		zap.String("reason", reason),
		zap.Time("blocked_until", until),
		zap.Int("failures", failures))
	return nil
}
