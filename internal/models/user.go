package models

import "time"

// UserRole represents the marketplace actor types.
type UserRole string

const (
	RoleAdmin      UserRole = "ADMIN"
	RoleCustomer   UserRole = "CUSTOMER"
	RoleDriver     UserRole = "DRIVER"
	RoleRestaurant UserRole = "RESTAURANT"
)

// SettlementGated reports whether the role is subject to negative-balance
// restriction checks. Admins and customers are exempt entirely.
func (r UserRole) SettlementGated() bool {
	return r == RoleDriver || r == RoleRestaurant
}

// OwnerType returns the negative-balance ledger owner type for the role,
// or the empty string for roles that carry no ledger.
func (r UserRole) OwnerType() OwnerType {
	switch r {
	case RoleDriver:
		return OwnerDriver
	case RoleRestaurant:
		return OwnerRestaurant
	default:
		return ""
	}
}

// User represents an account stored in the users table.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	Phone        string     `db:"phone" json:"phone"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         UserRole   `db:"role" json:"role"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}
