package middleware

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridemart/auth-api/internal/models"
	"github.com/ridemart/auth-api/internal/service"
)

type gateBalanceRepo struct {
	balance   *models.NegativeBalance
	threshold *models.SettlementThreshold
}

func (r *gateBalanceRepo) FindBalance(ctx context.Context, ownerType models.OwnerType, ownerID string) (*models.NegativeBalance, error) {
	if r.balance == nil {
		return nil, sql.ErrNoRows
	}
	return r.balance, nil
}

func (r *gateBalanceRepo) AccrueCash(ctx context.Context, accrual models.CashAccrual, now time.Time) error {
	return nil
}

func (r *gateBalanceRepo) CreditSettlement(ctx context.Context, credit models.SettlementCredit, now time.Time) (int64, error) {
	return 1, nil
}

func (r *gateBalanceRepo) SetRestricted(ctx context.Context, ownerType models.OwnerType, ownerID, reason string, now time.Time) error {
	r.balance.IsRestricted = true
	r.balance.RestrictionReason = &reason
	return nil
}

func (r *gateBalanceRepo) ClearRestriction(ctx context.Context, ownerType models.OwnerType, ownerID string, now time.Time) (int64, error) {
	return 1, nil
}

func (r *gateBalanceRepo) FindActiveThreshold(ctx context.Context, ownerType models.OwnerType, thresholdType string) (*models.SettlementThreshold, error) {
	if r.threshold == nil {
		return nil, sql.ErrNoRows
	}
	return r.threshold, nil
}

func (r *gateBalanceRepo) UpsertThreshold(ctx context.Context, threshold *models.SettlementThreshold) error {
	return nil
}

func (r *gateBalanceRepo) ListThresholds(ctx context.Context) ([]models.SettlementThreshold, error) {
	return nil, nil
}

type gateAuditRepo struct{}

func (gateAuditRepo) Create(ctx context.Context, log *models.AuditLog) error { return nil }

func newGateRouter(svc *service.SettlementService, claims *models.SessionClaims, handler gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/gated", func(c *gin.Context) {
		if claims != nil {
			c.Set(ContextUserKey, claims)
		}
		c.Next()
	}, handler, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "eligible"})
	})
	return router
}

func TestSettlementGateBlocksRestrictedDriver(t *testing.T) {
	reason := "outstanding balance 1200.00 exceeds limit 1000.00, settle online to continue"
	repo := &gateBalanceRepo{balance: &models.NegativeBalance{
		OwnerType:         models.OwnerDriver,
		OwnerID:           "u1",
		CurrentBalance:    1200,
		IsRestricted:      true,
		RestrictionReason: &reason,
	}}
	svc := service.NewSettlementService(repo, gateAuditRepo{}, nil, nil, nil)
	claims := &models.SessionClaims{UserID: "u1", Role: models.RoleDriver}
	router := newGateRouter(svc, claims, SettlementGate(svc))

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/gated", nil))

	require.Equal(t, http.StatusForbidden, recorder.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	meta, ok := body["meta"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, meta["settlement_required"])
	assert.InDelta(t, 1200, meta["outstanding_balance"], 0.001)
}

func TestSettlementGatePassesUnrestrictedDriver(t *testing.T) {
	repo := &gateBalanceRepo{
		balance:   &models.NegativeBalance{OwnerType: models.OwnerDriver, OwnerID: "u1", CurrentBalance: 300},
		threshold: &models.SettlementThreshold{OwnerType: models.OwnerDriver, ThresholdType: models.ThresholdNegativeBalanceMax, ThresholdValue: 1000, IsActive: true},
	}
	svc := service.NewSettlementService(repo, gateAuditRepo{}, nil, nil, nil)
	claims := &models.SessionClaims{UserID: "u1", Role: models.RoleDriver}
	router := newGateRouter(svc, claims, SettlementGate(svc))

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/gated", nil))

	require.Equal(t, http.StatusOK, recorder.Code)
}

func TestSettlementGateExemptsCustomer(t *testing.T) {
	// Exempt roles never even hit the ledger; a nil balance repo result
	// would otherwise deny them.
	repo := &gateBalanceRepo{}
	svc := service.NewSettlementService(repo, gateAuditRepo{}, nil, nil, nil)
	claims := &models.SessionClaims{UserID: "c1", Role: models.RoleCustomer}
	router := newGateRouter(svc, claims, SettlementGate(svc))

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/gated", nil))

	require.Equal(t, http.StatusOK, recorder.Code)
}

func TestSettlementGateRequiresClaims(t *testing.T) {
	repo := &gateBalanceRepo{}
	svc := service.NewSettlementService(repo, gateAuditRepo{}, nil, nil, nil)
	router := newGateRouter(svc, nil, SettlementGate(svc))

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/gated", nil))

	require.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestRequireSettledDriverIgnoresRestaurant(t *testing.T) {
	reason := "manual restriction"
	repo := &gateBalanceRepo{balance: &models.NegativeBalance{
		OwnerType:         models.OwnerRestaurant,
		OwnerID:           "r1",
		IsRestricted:      true,
		RestrictionReason: &reason,
	}}
	svc := service.NewSettlementService(repo, gateAuditRepo{}, nil, nil, nil)
	claims := &models.SessionClaims{UserID: "r1", Role: models.RoleRestaurant}
	router := newGateRouter(svc, claims, RequireSettledDriver(svc))

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/gated", nil))

	// The driver-only gate must not block a restaurant, restricted or not.
	require.Equal(t, http.StatusOK, recorder.Code)
}

func TestRequireSettledRestaurantBlocksRestrictedRestaurant(t *testing.T) {
	reason := "manual restriction"
	repo := &gateBalanceRepo{balance: &models.NegativeBalance{
		OwnerType:         models.OwnerRestaurant,
		OwnerID:           "r1",
		CurrentBalance:    800,
		IsRestricted:      true,
		RestrictionReason: &reason,
	}}
	svc := service.NewSettlementService(repo, gateAuditRepo{}, nil, nil, nil)
	claims := &models.SessionClaims{UserID: "r1", Role: models.RoleRestaurant}
	router := newGateRouter(svc, claims, RequireSettledRestaurant(svc))

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/gated", nil))

	require.Equal(t, http.StatusForbidden, recorder.Code)
}
