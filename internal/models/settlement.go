package models

import "time"

// OwnerType identifies which side of the marketplace owns a negative
// balance ledger.
type OwnerType string

const (
	OwnerDriver     OwnerType = "driver"
	OwnerRestaurant OwnerType = "restaurant"
)

// ThresholdNegativeBalanceMax is the threshold type consulted by the
// settlement gate.
const ThresholdNegativeBalanceMax = "negative_balance_max"

// NegativeBalance is the running ledger of commission owed on cash
// transactions for one driver or restaurant. The balance only grows via
// cash-commission accrual and only shrinks via online settlement credit or
// administrative adjustment.
type NegativeBalance struct {
	ID                 string     `db:"id" json:"id"`
	OwnerType          OwnerType  `db:"owner_type" json:"owner_type"`
	OwnerID            string     `db:"owner_id" json:"owner_id"`
	CountryCode        string     `db:"country_code" json:"country_code"`
	CurrentBalance     float64    `db:"current_balance" json:"current_balance"`
	TotalCashTrips     int        `db:"total_cash_trips" json:"total_cash_trips"`
	TotalCashCollected float64    `db:"total_cash_collected" json:"total_cash_collected"`
	TotalCommissionDue float64    `db:"total_commission_due" json:"total_commission_due"`
	TotalOnlineSettled float64    `db:"total_online_settled" json:"total_online_settled"`
	IsRestricted       bool       `db:"is_restricted" json:"is_restricted"`
	RestrictedAt       *time.Time `db:"restricted_at" json:"restricted_at,omitempty"`
	RestrictionReason  *string    `db:"restriction_reason" json:"restriction_reason,omitempty"`
	LastUpdated        time.Time  `db:"last_updated" json:"last_updated"`
}

// SettlementThreshold is an admin-configured policy row.
type SettlementThreshold struct {
	ID             string    `db:"id" json:"id"`
	OwnerType      OwnerType `db:"owner_type" json:"owner_type"`
	ThresholdType  string    `db:"threshold_type" json:"threshold_type"`
	ThresholdValue float64   `db:"threshold_value" json:"threshold_value"`
	IsActive       bool      `db:"is_active" json:"is_active"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// RestrictionDecision is the outcome of a settlement gate check. A
// restricted actor receives a normal negative result, never an error.
type RestrictionDecision struct {
	Restricted bool     `json:"restricted"`
	Reason     string   `json:"reason,omitempty"`
	Balance    *float64 `json:"balance,omitempty"`
}

// CashAccrual records one cash transaction's commission against a ledger.
type CashAccrual struct {
	OwnerType     OwnerType `json:"owner_type" validate:"required,oneof=driver restaurant"`
	OwnerID       string    `json:"owner_id" validate:"required"`
	CountryCode   string    `json:"country_code" validate:"required,len=2"`
	CashCollected float64   `json:"cash_collected" validate:"gte=0"`
	Commission    float64   `json:"commission" validate:"gt=0"`
}

// SettlementCredit records one online settlement against a ledger.
type SettlementCredit struct {
	OwnerType OwnerType `json:"owner_type" validate:"required,oneof=driver restaurant"`
	OwnerID   string    `json:"owner_id" validate:"required"`
	Amount    float64   `json:"amount" validate:"gt=0"`
}
