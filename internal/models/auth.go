package models

import "time"

// LoginRequest holds credentials for authenticating a user.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`

	// Populated by the HTTP layer, never by the client payload.
	Device  DeviceInfo `json:"-"`
	Country string     `json:"-"`
}

// LoginResponse returns the issued tokens and user info.
type LoginResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int64     `json:"expires_in"`
	IssuedAt     time.Time `json:"issued_at"`
	User         UserInfo  `json:"user"`
}

// RefreshRequest exchanges a refresh token for a new pair.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`

	Device DeviceInfo `json:"-"`
}

// RefreshResponse returns the rotated tokens.
type RefreshResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int64     `json:"expires_in"`
	IssuedAt     time.Time `json:"issued_at"`
}

// LogoutRequest revokes the session family owning the refresh token.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// ReviewAlertRequest records an admin review verdict on an alert.
type ReviewAlertRequest struct {
	Notes string `json:"notes" validate:"required,max=2000"`
}

// ThresholdRequest creates or replaces a settlement threshold policy row.
type ThresholdRequest struct {
	OwnerType      OwnerType `json:"owner_type" validate:"required,oneof=driver restaurant"`
	ThresholdType  string    `json:"threshold_type" validate:"required"`
	ThresholdValue float64   `json:"threshold_value" validate:"gt=0"`
	IsActive       bool      `json:"is_active"`
}

// ClearBlocksRequest is the admin override clearing throttle blocks.
type ClearBlocksRequest struct {
	Identifier string `json:"identifier" validate:"required"`
}

// UserInfo describes the authenticated user in responses.
type UserInfo struct {
	ID       string   `json:"id"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	Role     UserRole `json:"role"`
}
