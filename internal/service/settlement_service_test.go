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

	"github.com/ridemart/auth-api/internal/models"
	appErrors "github.com/ridemart/auth-api/pkg/errors"
)

type fakeSettlementRepo struct {
	balances   map[string]*models.NegativeBalance
	thresholds map[models.OwnerType]*models.SettlementThreshold
	allRows    []models.SettlementThreshold
}

func newFakeSettlementRepo() *fakeSettlementRepo {
	return &fakeSettlementRepo{
		balances:   make(map[string]*models.NegativeBalance),
		thresholds: make(map[models.OwnerType]*models.SettlementThreshold),
	}
}

func settlementKey(ownerType models.OwnerType, ownerID string) string {
	return string(ownerType) + "/" + ownerID
}

func (f *fakeSettlementRepo) FindBalance(ctx context.Context, ownerType models.OwnerType, ownerID string) (*models.NegativeBalance, error) {
	balance, ok := f.balances[settlementKey(ownerType, ownerID)]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *balance
	return &clone, nil
}

func (f *fakeSettlementRepo) AccrueCash(ctx context.Context, accrual models.CashAccrual, now time.Time) error {
	key := settlementKey(accrual.OwnerType, accrual.OwnerID)
	balance, ok := f.balances[key]
	if !ok {
		balance = &models.NegativeBalance{
			OwnerType:   accrual.OwnerType,
			OwnerID:     accrual.OwnerID,
			CountryCode: accrual.CountryCode,
		}
		f.balances[key] = balance
	}
	balance.CurrentBalance += accrual.Commission
	balance.TotalCashTrips++
	balance.TotalCashCollected += accrual.CashCollected
	balance.TotalCommissionDue += accrual.Commission
	balance.LastUpdated = now
	return nil
}

func (f *fakeSettlementRepo) CreditSettlement(ctx context.Context, credit models.SettlementCredit, now time.Time) (int64, error) {
	balance, ok := f.balances[settlementKey(credit.OwnerType, credit.OwnerID)]
	if !ok {
		return 0, nil
	}
	balance.CurrentBalance -= credit.Amount
	balance.TotalOnlineSettled += credit.Amount
	balance.LastUpdated = now
	return 1, nil
}

func (f *fakeSettlementRepo) SetRestricted(ctx context.Context, ownerType models.OwnerType, ownerID, reason string, now time.Time) error {
	balance := f.balances[settlementKey(ownerType, ownerID)]
	balance.IsRestricted = true
	balance.RestrictedAt = &now
	balance.RestrictionReason = &reason
	return nil
}

func (f *fakeSettlementRepo) ClearRestriction(ctx context.Context, ownerType models.OwnerType, ownerID string, now time.Time) (int64, error) {
	balance, ok := f.balances[settlementKey(ownerType, ownerID)]
	if !ok || !balance.IsRestricted {
		return 0, nil
	}
	balance.IsRestricted = false
	balance.RestrictedAt = nil
	balance.RestrictionReason = nil
	return 1, nil
}

func (f *fakeSettlementRepo) FindActiveThreshold(ctx context.Context, ownerType models.OwnerType, thresholdType string) (*models.SettlementThreshold, error) {
	threshold, ok := f.thresholds[ownerType]
	if !ok || !threshold.IsActive || threshold.ThresholdType != thresholdType {
		return nil, sql.ErrNoRows
	}
	clone := *threshold
	return &clone, nil
}

func (f *fakeSettlementRepo) UpsertThreshold(ctx context.Context, threshold *models.SettlementThreshold) error {
	clone := *threshold
	f.thresholds[threshold.OwnerType] = &clone
	f.allRows = append(f.allRows, clone)
	return nil
}

func (f *fakeSettlementRepo) ListThresholds(ctx context.Context) ([]models.SettlementThreshold, error) {
	return f.allRows, nil
}

func newTestSettlementService(repo *fakeSettlementRepo, audits *fakeAuditRepo) *SettlementService {
	return NewSettlementService(repo, audits, validator.New(), nil, zap.NewNop())
}

func seedThreshold(repo *fakeSettlementRepo, ownerType models.OwnerType, value float64) {
	repo.thresholds[ownerType] = &models.SettlementThreshold{
		OwnerType:      ownerType,
		ThresholdType:  models.ThresholdNegativeBalanceMax,
		ThresholdValue: value,
		IsActive:       true,
	}
}

func seedBalance(repo *fakeSettlementRepo, ownerType models.OwnerType, ownerID string, amount float64) {
	repo.balances[settlementKey(ownerType, ownerID)] = &models.NegativeBalance{
		OwnerType:      ownerType,
		OwnerID:        ownerID,
		CurrentBalance: amount,
	}
}

func TestSettlementExemptRoles(t *testing.T) {
	repo := newFakeSettlementRepo()
	svc := newTestSettlementService(repo, &fakeAuditRepo{})

	for _, role := range []models.UserRole{models.RoleAdmin, models.RoleCustomer} {
		decision, err := svc.CheckRestriction(context.Background(), "u1", role)
		require.NoError(t, err)
		assert.False(t, decision.Restricted)
	}
}

func TestSettlementNoLedgerNotRestricted(t *testing.T) {
	repo := newFakeSettlementRepo()
	seedThreshold(repo, models.OwnerDriver, 1000)
	svc := newTestSettlementService(repo, &fakeAuditRepo{})

	decision, err := svc.CheckRestriction(context.Background(), "d1", models.RoleDriver)
	require.NoError(t, err)
	assert.False(t, decision.Restricted)
}

func TestSettlementUnderThresholdAllowed(t *testing.T) {
	repo := newFakeSettlementRepo()
	seedThreshold(repo, models.OwnerDriver, 1000)
	seedBalance(repo, models.OwnerDriver, "d1", 999)
	svc := newTestSettlementService(repo, &fakeAuditRepo{})

	decision, err := svc.CheckRestriction(context.Background(), "d1", models.RoleDriver)
	require.NoError(t, err)
	assert.False(t, decision.Restricted)
	require.NotNil(t, decision.Balance)
	assert.Equal(t, 999.0, *decision.Balance)
}

func TestSettlementCrossingThresholdFlipsFlag(t *testing.T) {
	repo := newFakeSettlementRepo()
	audits := &fakeAuditRepo{}
	seedThreshold(repo, models.OwnerDriver, 1000)
	seedBalance(repo, models.OwnerDriver, "d1", 999)
	svc := newTestSettlementService(repo, audits)

	err := svc.AccrueCashCommission(context.Background(), models.CashAccrual{
		OwnerType:     models.OwnerDriver,
		OwnerID:       "d1",
		CountryCode:   "DE",
		CashCollected: 10,
		Commission:    2,
	})
	require.NoError(t, err)

	decision, err := svc.CheckRestriction(context.Background(), "d1", models.RoleDriver)
	require.NoError(t, err)
	assert.True(t, decision.Restricted)
	assert.Contains(t, decision.Reason, "settle online")

	// Flag is persisted, not just the decision.
	balance, err := svc.GetBalance(context.Background(), models.OwnerDriver, "d1")
	require.NoError(t, err)
	assert.True(t, balance.IsRestricted)
	require.NotNil(t, balance.RestrictionReason)

	blockAudits := audits.byAction(models.AuditActionSettlementBlock)
	require.Len(t, blockAudits, 1)
}

func TestSettlementRestrictionIsSticky(t *testing.T) {
	repo := newFakeSettlementRepo()
	seedThreshold(repo, models.OwnerRestaurant, 500)
	seedBalance(repo, models.OwnerRestaurant, "r1", 600)
	svc := newTestSettlementService(repo, &fakeAuditRepo{})

	decision, err := svc.CheckRestriction(context.Background(), "r1", models.RoleRestaurant)
	require.NoError(t, err)
	require.True(t, decision.Restricted)

	// Settling back under the threshold does not lift the flag by itself.
	err = svc.CreditOnlineSettlement(context.Background(), models.SettlementCredit{
		OwnerType: models.OwnerRestaurant,
		OwnerID:   "r1",
		Amount:    400,
	})
	require.NoError(t, err)

	decision, err = svc.CheckRestriction(context.Background(), "r1", models.RoleRestaurant)
	require.NoError(t, err)
	assert.True(t, decision.Restricted)

	// Only the administrative release lifts it.
	err = svc.ClearRestriction(context.Background(), models.OwnerRestaurant, "r1", "admin-1")
	require.NoError(t, err)

	decision, err = svc.CheckRestriction(context.Background(), "r1", models.RoleRestaurant)
	require.NoError(t, err)
	assert.False(t, decision.Restricted)
}

func TestSettlementStoredFlagShortCircuits(t *testing.T) {
	repo := newFakeSettlementRepo()
	reason := "manual restriction"
	now := time.Now().UTC()
	repo.balances[settlementKey(models.OwnerDriver, "d1")] = &models.NegativeBalance{
		OwnerType:         models.OwnerDriver,
		OwnerID:           "d1",
		CurrentBalance:    10,
		IsRestricted:      true,
		RestrictedAt:      &now,
		RestrictionReason: &reason,
	}
	svc := newTestSettlementService(repo, &fakeAuditRepo{})

	// No threshold configured at all; the stored flag alone binds.
	decision, err := svc.CheckRestriction(context.Background(), "d1", models.RoleDriver)
	require.NoError(t, err)
	assert.True(t, decision.Restricted)
	assert.Equal(t, "manual restriction", decision.Reason)
}

func TestSettlementNoThresholdNothingToEnforce(t *testing.T) {
	repo := newFakeSettlementRepo()
	seedBalance(repo, models.OwnerDriver, "d1", 100000)
	svc := newTestSettlementService(repo, &fakeAuditRepo{})

	decision, err := svc.CheckRestriction(context.Background(), "d1", models.RoleDriver)
	require.NoError(t, err)
	assert.False(t, decision.Restricted)
}

func TestSettlementAccrualNeverTouchesFlag(t *testing.T) {
	repo := newFakeSettlementRepo()
	seedThreshold(repo, models.OwnerDriver, 100)
	svc := newTestSettlementService(repo, &fakeAuditRepo{})

	// Accrue far past the threshold without running a gate check.
	err := svc.AccrueCashCommission(context.Background(), models.CashAccrual{
		OwnerType:   models.OwnerDriver,
		OwnerID:     "d1",
		CountryCode: "DE",
		Commission:  500,
	})
	require.NoError(t, err)

	balance, err := svc.GetBalance(context.Background(), models.OwnerDriver, "d1")
	require.NoError(t, err)
	assert.False(t, balance.IsRestricted)
}

func TestSettlementCreditWithoutLedger(t *testing.T) {
	repo := newFakeSettlementRepo()
	svc := newTestSettlementService(repo, &fakeAuditRepo{})

	err := svc.CreditOnlineSettlement(context.Background(), models.SettlementCredit{
		OwnerType: models.OwnerDriver,
		OwnerID:   "ghost",
		Amount:    10,
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestSettlementClearRestrictionNotRestricted(t *testing.T) {
	repo := newFakeSettlementRepo()
	seedBalance(repo, models.OwnerDriver, "d1", 10)
	svc := newTestSettlementService(repo, &fakeAuditRepo{})

	err := svc.ClearRestriction(context.Background(), models.OwnerDriver, "d1", "admin-1")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestSettlementThresholdValidation(t *testing.T) {
	repo := newFakeSettlementRepo()
	svc := newTestSettlementService(repo, &fakeAuditRepo{})

	_, err := svc.SetThreshold(context.Background(), models.ThresholdRequest{
		OwnerType:      "bank",
		ThresholdType:  models.ThresholdNegativeBalanceMax,
		ThresholdValue: 100,
	}, "admin-1")
	require.Error(t, err)

	threshold, err := svc.SetThreshold(context.Background(), models.ThresholdRequest{
		OwnerType:      models.OwnerDriver,
		ThresholdType:  models.ThresholdNegativeBalanceMax,
		ThresholdValue: 1000,
		IsActive:       true,
	}, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, models.OwnerDriver, threshold.OwnerType)
}
