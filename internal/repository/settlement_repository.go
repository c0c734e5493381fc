package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ridemart/auth-api/internal/models"
)

const balanceColumns = `id, owner_type, owner_id, country_code, current_balance,
	total_cash_trips, total_cash_collected, total_commission_due, total_online_settled,
	is_restricted, restricted_at, restriction_reason, last_updated`

// SettlementRepository provides database access for negative balance
// ledgers and threshold policies.
type SettlementRepository struct {
	db *sqlx.DB
}

// NewSettlementRepository creates a new instance of SettlementRepository.
func NewSettlementRepository(db *sqlx.DB) *SettlementRepository {
	return &SettlementRepository{db: db}
}

// FindBalance returns the ledger row for one owner.
func (r *SettlementRepository) FindBalance(ctx context.Context, ownerType models.OwnerType, ownerID string) (*models.NegativeBalance, error) {
	query := fmt.Sprintf(`SELECT %s FROM negative_balances WHERE owner_type = $1 AND owner_id = $2 LIMIT 1`, balanceColumns)
	var balance models.NegativeBalance
	if err := r.db.GetContext(ctx, &balance, query, ownerType, ownerID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find negative balance: %w", err)
	}
	return &balance, nil
}

// AccrueCash upserts the ledger, adding one cash transaction's commission.
// The increment happens in the database so concurrent accruals never lose
// updates; the ledger is created lazily on first cash transaction.
func (r *SettlementRepository) AccrueCash(ctx context.Context, accrual models.CashAccrual, now time.Time) error {
	const query = `INSERT INTO negative_balances (id, owner_type, owner_id, country_code, current_balance,
		total_cash_trips, total_cash_collected, total_commission_due, total_online_settled,
		is_restricted, last_updated)
		VALUES ($1, $2, $3, $4, $5, 1, $6, $5, 0, FALSE, $7)
		ON CONFLICT (owner_type, owner_id) DO UPDATE SET
			current_balance = negative_balances.current_balance + EXCLUDED.current_balance,
			total_cash_trips = negative_balances.total_cash_trips + 1,
			total_cash_collected = negative_balances.total_cash_collected + EXCLUDED.total_cash_collected,
			total_commission_due = negative_balances.total_commission_due + EXCLUDED.total_commission_due,
			last_updated = EXCLUDED.last_updated`
	if _, err := r.db.ExecContext(ctx, query,
		uuid.NewString(), accrual.OwnerType, accrual.OwnerID, accrual.CountryCode,
		accrual.Commission, accrual.CashCollected, now); err != nil {
		return fmt.Errorf("accrue cash commission: %w", err)
	}
	return nil
}

// CreditSettlement decrements the ledger by one online settlement. Returns
// the number of rows touched so callers can report a missing ledger.
func (r *SettlementRepository) CreditSettlement(ctx context.Context, credit models.SettlementCredit, now time.Time) (int64, error) {
	const query = `UPDATE negative_balances SET
			current_balance = current_balance - $3,
			total_online_settled = total_online_settled + $3,
			last_updated = $4
		WHERE owner_type = $1 AND owner_id = $2`
	res, err := r.db.ExecContext(ctx, query, credit.OwnerType, credit.OwnerID, credit.Amount, now)
	if err != nil {
		return 0, fmt.Errorf("credit online settlement: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("credit settlement rows affected: %w", err)
	}
	return affected, nil
}

// SetRestricted flips the restriction flag with its reason and timestamp.
func (r *SettlementRepository) SetRestricted(ctx context.Context, ownerType models.OwnerType, ownerID, reason string, now time.Time) error {
	const query = `UPDATE negative_balances SET is_restricted = TRUE, restricted_at = $3, restriction_reason = $4, last_updated = $3
		WHERE owner_type = $1 AND owner_id = $2`
	if _, err := r.db.ExecContext(ctx, query, ownerType, ownerID, now, reason); err != nil {
		return fmt.Errorf("set restriction: %w", err)
	}
	return nil
}

// ClearRestriction lifts the restriction flag. Administrative release only;
// the gate never clears restrictions on its own.
func (r *SettlementRepository) ClearRestriction(ctx context.Context, ownerType models.OwnerType, ownerID string, now time.Time) (int64, error) {
	const query = `UPDATE negative_balances SET is_restricted = FALSE, restricted_at = NULL, restriction_reason = NULL, last_updated = $3
		WHERE owner_type = $1 AND owner_id = $2 AND is_restricted = TRUE`
	res, err := r.db.ExecContext(ctx, query, ownerType, ownerID, now)
	if err != nil {
		return 0, fmt.Errorf("clear restriction: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear restriction rows affected: %w", err)
	}
	return affected, nil
}

// FindActiveThreshold returns the active policy row for the owner type.
func (r *SettlementRepository) FindActiveThreshold(ctx context.Context, ownerType models.OwnerType, thresholdType string) (*models.SettlementThreshold, error) {
	const query = `SELECT id, owner_type, threshold_type, threshold_value, is_active, created_at, updated_at
		FROM settlement_thresholds
		WHERE owner_type = $1 AND threshold_type = $2 AND is_active = TRUE
		ORDER BY updated_at DESC LIMIT 1`
	var threshold models.SettlementThreshold
	if err := r.db.GetContext(ctx, &threshold, query, ownerType, thresholdType); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find active threshold: %w", err)
	}
	return &threshold, nil
}

// UpsertThreshold replaces the policy row for an owner type and threshold
// type, deactivating prior rows of the same kind.
func (r *SettlementRepository) UpsertThreshold(ctx context.Context, threshold *models.SettlementThreshold) error {
	if threshold.ID == "" {
		threshold.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if threshold.CreatedAt.IsZero() {
		threshold.CreatedAt = now
	}
	threshold.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin threshold upsert: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const deactivate = `UPDATE settlement_thresholds SET is_active = FALSE, updated_at = $3
		WHERE owner_type = $1 AND threshold_type = $2 AND is_active = TRUE`
	if _, err := tx.ExecContext(ctx, deactivate, threshold.OwnerType, threshold.ThresholdType, now); err != nil {
		return fmt.Errorf("deactivate thresholds: %w", err)
	}

	const insert = `INSERT INTO settlement_thresholds (id, owner_type, threshold_type, threshold_value, is_active, created_at, updated_at)
		VALUES (:id, :owner_type, :threshold_type, :threshold_value, :is_active, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, insert, threshold); err != nil {
		return fmt.Errorf("insert threshold: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit threshold upsert: %w", err)
	}
	return nil
}

// ListThresholds returns all policy rows, active first.
func (r *SettlementRepository) ListThresholds(ctx context.Context) ([]models.SettlementThreshold, error) {
	const query = `SELECT id, owner_type, threshold_type, threshold_value, is_active, created_at, updated_at
		FROM settlement_thresholds ORDER BY is_active DESC, owner_type, threshold_type`
	var thresholds []models.SettlementThreshold
	if err := r.db.SelectContext(ctx, &thresholds, query); err != nil {
		return nil, fmt.Errorf("list thresholds: %w", err)
	}
	return thresholds, nil
}
