package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ridemart/auth-api/internal/models"
	appErrors "github.com/ridemart/auth-api/pkg/errors"
)

type settlementRepository interface {
	FindBalance(ctx context.Context, ownerType models.OwnerType, ownerID string) (*models.NegativeBalance, error)
	AccrueCash(ctx context.Context, accrual models.CashAccrual, now time.Time) error
	CreditSettlement(ctx context.Context, credit models.SettlementCredit, now time.Time) (int64, error)
	SetRestricted(ctx context.Context, ownerType models.OwnerType, ownerID, reason string, now time.Time) error
	ClearRestriction(ctx context.Context, ownerType models.OwnerType, ownerID string, now time.Time) (int64, error)
	FindActiveThreshold(ctx context.Context, ownerType models.OwnerType, thresholdType string) (*models.SettlementThreshold, error)
	UpsertThreshold(ctx context.Context, threshold *models.SettlementThreshold) error
	ListThresholds(ctx context.Context) ([]models.SettlementThreshold, error)
}

type settlementAuditRepository interface {
	Create(ctx context.Context, log *models.AuditLog) error
}

// SettlementService gates privileged write operations on outstanding
// negative balance. Restriction checks run fresh on every gated request;
// correctness favors an extra lookup over a stale permission.
type SettlementService struct {
	balances  settlementRepository
	audits    settlementAuditRepository
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
	now       func() time.Time
}

// NewSettlementService constructs a SettlementService instance.
func NewSettlementService(balances settlementRepository, audits settlementAuditRepository, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger) *SettlementService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &SettlementService{
		balances:  balances,
		audits:    audits,
		validator: validate,
		metrics:   metrics,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CheckRestriction evaluates an actor's outstanding balance against the
// active threshold. Admins and customers are exempt entirely. A stored
// restriction flag short-circuits; otherwise crossing the threshold flips
// the flag persistently. The flag is sticky: a balance dropping back under
// threshold alone never lifts it, only an explicit administrative release.
func (s *SettlementService) CheckRestriction(ctx context.Context, userID string, role models.UserRole) (models.RestrictionDecision, error) {
	if !role.SettlementGated() {
		return models.RestrictionDecision{Restricted: false}, nil
	}
	ownerType := role.OwnerType()

	balance, err := s.balances.FindBalance(ctx, ownerType, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// No ledger yet means no cash transactions and nothing owed.
			return models.RestrictionDecision{Restricted: false}, nil
		}
		return models.RestrictionDecision{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load negative balance")
	}

	if balance.IsRestricted {
		reason := "outstanding balance must be settled"
		if balance.RestrictionReason != nil {
			reason = *balance.RestrictionReason
		}
		return models.RestrictionDecision{Restricted: true, Reason: reason, Balance: &balance.CurrentBalance}, nil
	}

	threshold, err := s.balances.FindActiveThreshold(ctx, ownerType, models.ThresholdNegativeBalanceMax)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// No active policy configured: nothing to enforce.
			return models.RestrictionDecision{Restricted: false, Balance: &balance.CurrentBalance}, nil
		}
		return models.RestrictionDecision{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load settlement threshold")
	}

	if balance.CurrentBalance > threshold.ThresholdValue {
		now := s.now()
		reason := fmt.Sprintf("outstanding balance %.2f exceeds limit %.2f, settle online to continue", balance.CurrentBalance, threshold.ThresholdValue)
		if err := s.balances.SetRestricted(ctx, ownerType, userID, reason, now); err != nil {
			return models.RestrictionDecision{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist restriction")
		}

		details, _ := json.Marshal(map[string]interface{}{
			"owner_type": ownerType,
			"balance":    balance.CurrentBalance,
			"threshold":  threshold.ThresholdValue,
		})
		if err := s.audits.Create(ctx, &models.AuditLog{
			UserID:     &userID,
			Action:     models.AuditActionSettlementBlock,
			Severity:   models.AuditSeverityWarning,
			Resource:   "negative_balance",
			ResourceID: &userID,
			Details:    details,
			CreatedAt:  now,
		}); err != nil {
			s.logger.Warn("failed to audit settlement restriction", zap.Error(err))
		}

		s.metrics.IncSettlementDenial()
		return models.RestrictionDecision{Restricted: true, Reason: reason, Balance: &balance.CurrentBalance}, nil
	}

	return models.RestrictionDecision{Restricted: false, Balance: &balance.CurrentBalance}, nil
}

// AccrueCashCommission records one cash transaction's commission against
// the owner's ledger. It never evaluates or mutates the restriction flag;
// only CheckRestriction sets it.
func (s *SettlementService) AccrueCashCommission(ctx context.Context, accrual models.CashAccrual) error {
	if err := s.validator.Struct(accrual); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid cash accrual")
	}
	if err := s.balances.AccrueCash(ctx, accrual, s.now()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to accrue cash commission")
	}
	return nil
}

// CreditOnlineSettlement decrements the owner's ledger by one online
// settlement. Like accrual, it leaves the restriction flag untouched.
func (s *SettlementService) CreditOnlineSettlement(ctx context.Context, credit models.SettlementCredit) error {
	if err := s.validator.Struct(credit); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid settlement credit")
	}
	count, err := s.balances.CreditSettlement(ctx, credit, s.now())
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to credit settlement")
	}
	if count == 0 {
		return appErrors.Clone(appErrors.ErrNotFound, "no balance ledger for owner")
	}
	return nil
}

// GetBalance returns the ledger for an owner, or nil when none exists yet.
func (s *SettlementService) GetBalance(ctx context.Context, ownerType models.OwnerType, ownerID string) (*models.NegativeBalance, error) {
	balance, err := s.balances.FindBalance(ctx, ownerType, ownerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load negative balance")
	}
	return balance, nil
}

// ClearRestriction is the administrative release of a sticky restriction.
func (s *SettlementService) ClearRestriction(ctx context.Context, ownerType models.OwnerType, ownerID, adminID string) error {
	now := s.now()
	count, err := s.balances.ClearRestriction(ctx, ownerType, ownerID, now)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear restriction")
	}
	if count == 0 {
		return appErrors.Clone(appErrors.ErrNotFound, "owner is not restricted")
	}

	details, _ := json.Marshal(map[string]interface{}{"owner_type": ownerType, "owner_id": ownerID})
	if err := s.audits.Create(ctx, &models.AuditLog{
		UserID:     &adminID,
		Action:     models.AuditActionRestrictionClear,
		Severity:   models.AuditSeverityWarning,
		Resource:   "negative_balance",
		ResourceID: &ownerID,
		Details:    details,
		CreatedAt:  now,
	}); err != nil {
		s.logger.Warn("failed to audit restriction clearance", zap.Error(err))
	}

	return nil
}

// SetThreshold replaces the active policy row for an owner type.
func (s *SettlementService) SetThreshold(ctx context.Context, req models.ThresholdRequest, adminID string) (*models.SettlementThreshold, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid threshold payload")
	}

	threshold := &models.SettlementThreshold{
		OwnerType:      req.OwnerType,
		ThresholdType:  req.ThresholdType,
		ThresholdValue: req.ThresholdValue,
		IsActive:       req.IsActive,
	}
	if err := s.balances.UpsertThreshold(ctx, threshold); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store threshold")
	}

	details, _ := json.Marshal(threshold)
	if err := s.audits.Create(ctx, &models.AuditLog{
		UserID:     &adminID,
		Action:     models.AuditActionThresholdChanged,
		Severity:   models.AuditSeverityInfo,
		Resource:   "settlement_threshold",
		ResourceID: &threshold.ID,
		Details:    details,
		CreatedAt:  s.now(),
	}); err != nil {
		s.logger.Warn("failed to audit threshold change", zap.Error(err))
	}

	return threshold, nil
}

// ListThresholds returns all policy rows, active first.
func (s *SettlementService) ListThresholds(ctx context.Context) ([]models.SettlementThreshold, error) {
	thresholds, err := s.balances.ListThresholds(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list thresholds")
	}
	return thresholds, nil
}
