package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/ridemart/auth-api/internal/models"
)

func TestSettlementRepositoryFindBalance(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewSettlementRepository(db)
	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "owner_type", "owner_id", "country_code", "current_balance",
		"total_cash_trips", "total_cash_collected", "total_commission_due", "total_online_settled",
		"is_restricted", "restricted_at", "restriction_reason", "last_updated",
	}).AddRow("bal-1", "driver", "u1", "DE", 420.50,
		12, 2100.00, 420.50, 0.00,
		false, nil, nil, now)

	mock.ExpectQuery("SELECT .+ FROM negative_balances").
		WithArgs(models.OwnerDriver, "u1").
		WillReturnRows(rows)

	balance, err := repo.FindBalance(context.Background(), models.OwnerDriver, "u1")
	require.NoError(t, err)
	require.Equal(t, "bal-1", balance.ID)
	require.InDelta(t, 420.50, balance.CurrentBalance, 0.001)
	require.False(t, balance.IsRestricted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSettlementRepositoryFindBalanceNoRows(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewSettlementRepository(db)
	mock.ExpectQuery("SELECT .+ FROM negative_balances").
		WithArgs(models.OwnerRestaurant, "r1").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindBalance(context.Background(), models.OwnerRestaurant, "r1")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSettlementRepositoryAccrueCash(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewSettlementRepository(db)
	now := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO negative_balances")).
		WithArgs(sqlmock.AnyArg(), models.OwnerDriver, "u1", "DE", 35.00, 350.00, now).
		WillReturnResult(sqlmock.NewResult(1, 1))

	accrual := models.CashAccrual{
		OwnerType:     models.OwnerDriver,
		OwnerID:       "u1",
		CountryCode:   "DE",
		CashCollected: 350.00,
		Commission:    35.00,
	}
	require.NoError(t, repo.AccrueCash(context.Background(), accrual, now))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSettlementRepositoryCreditSettlement(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewSettlementRepository(db)
	now := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE negative_balances SET")).
		WithArgs(models.OwnerDriver, "u1", 200.00, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	credit := models.SettlementCredit{OwnerType: models.OwnerDriver, OwnerID: "u1", Amount: 200.00}
	affected, err := repo.CreditSettlement(context.Background(), credit, now)
	require.NoError(t, err)
	require.Equal(t, int64(1), affected)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSettlementRepositoryCreditSettlementMissingLedger(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewSettlementRepository(db)
	now := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE negative_balances SET")).
		WithArgs(models.OwnerRestaurant, "r-missing", 50.00, now).
		WillReturnResult(sqlmock.NewResult(0, 0))

	credit := models.SettlementCredit{OwnerType: models.OwnerRestaurant, OwnerID: "r-missing", Amount: 50.00}
	affected, err := repo.CreditSettlement(context.Background(), credit, now)
	require.NoError(t, err)
	require.Zero(t, affected)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSettlementRepositorySetRestricted(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewSettlementRepository(db)
	now := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE negative_balances SET is_restricted = TRUE")).
		WithArgs(models.OwnerDriver, "u1", now, "outstanding balance 1001.00 exceeds limit 1000.00, settle online to continue").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.SetRestricted(context.Background(), models.OwnerDriver, "u1",
		"outstanding balance 1001.00 exceeds limit 1000.00, settle online to continue", now)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSettlementRepositoryClearRestriction(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewSettlementRepository(db)
	now := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE negative_balances SET is_restricted = FALSE")).
		WithArgs(models.OwnerDriver, "u1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	affected, err := repo.ClearRestriction(context.Background(), models.OwnerDriver, "u1", now)
	require.NoError(t, err)
	require.Equal(t, int64(1), affected)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSettlementRepositoryUpsertThreshold(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewSettlementRepository(db)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE settlement_thresholds SET is_active = FALSE")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO settlement_thresholds")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	threshold := &models.SettlementThreshold{
		OwnerType:      models.OwnerDriver,
		ThresholdType:  models.ThresholdNegativeBalanceMax,
		ThresholdValue: 1000,
		IsActive:       true,
	}
	require.NoError(t, repo.UpsertThreshold(context.Background(), threshold))
	require.NotEmpty(t, threshold.ID)
	require.False(t, threshold.UpdatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSettlementRepositoryListThresholds(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewSettlementRepository(db)
	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "owner_type", "threshold_type", "threshold_value", "is_active", "created_at", "updated_at"}).
		AddRow("th-1", "driver", "balance", 1000.0, true, now, now).
		AddRow("th-2", "restaurant", "balance", 500.0, true, now, now)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, owner_type, threshold_type, threshold_value, is_active, created_at, updated_at")).
		WillReturnRows(rows)

	thresholds, err := repo.ListThresholds(context.Background())
	require.NoError(t, err)
	require.Len(t, thresholds, 2)
	require.Equal(t, models.OwnerDriver, thresholds[0].OwnerType)
	require.NoError(t, mock.ExpectationsWereMet())
}
