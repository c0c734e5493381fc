package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenType tags a signed token as access or refresh. Every parse checks
// the tag so an access token is never accepted where a refresh token is
// required, and vice versa.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Revocation reasons recorded on token records.
const (
	RevokeReasonRotated      = "Token rotated"
	RevokeReasonLogout       = "User logout"
	RevokeReasonReuse        = "token reuse detected"
	RevokeReasonAdmin        = "Revoked by administrator"
	RevokeReasonPasswordless = "Credential change"
)

// TokenRecord is one row per issued access/refresh pair. Only peppered
// hashes of the signed tokens are stored, never the raw values.
type TokenRecord struct {
	ID               string     `db:"id" json:"id"`
	UserID           string     `db:"user_id" json:"user_id"`
	UserRole         UserRole   `db:"user_role" json:"user_role"`
	UserEmail        *string    `db:"user_email" json:"user_email,omitempty"`
	AccessTokenHash  string     `db:"access_token_hash" json:"-"`
	RefreshTokenHash string     `db:"refresh_token_hash" json:"-"`
	TokenFamily      string     `db:"token_family" json:"token_family"`
	TokenVersion     int        `db:"token_version" json:"token_version"`
	AccessExpiresAt  time.Time  `db:"access_expires_at" json:"access_expires_at"`
	RefreshExpiresAt time.Time  `db:"refresh_expires_at" json:"refresh_expires_at"`
	UsedAt           *time.Time `db:"used_at" json:"used_at,omitempty"`
	IsRevoked        bool       `db:"is_revoked" json:"is_revoked"`
	RevokedAt        *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
	RevokedReason    *string    `db:"revoked_reason" json:"revoked_reason,omitempty"`
	ReuseDetected    bool       `db:"reuse_detected" json:"reuse_detected"`
	ReuseDetectedAt  *time.Time `db:"reuse_detected_at" json:"reuse_detected_at,omitempty"`
	DeviceID         string     `db:"device_id" json:"device_id"`
	DeviceFingerprint string    `db:"device_fingerprint" json:"device_fingerprint"`
	IPAddress        string     `db:"ip_address" json:"ip_address"`
	UserAgent        string     `db:"user_agent" json:"user_agent"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
}

// DeviceInfo carries device/network metadata attached to sessions,
// login attempts and security alerts.
type DeviceInfo struct {
	DeviceID          string `json:"device_id"`
	DeviceFingerprint string `json:"device_fingerprint"`
	IPAddress         string `json:"ip_address"`
	UserAgent         string `json:"user_agent"`
}

// Empty reports whether no metadata was supplied at all.
func (d DeviceInfo) Empty() bool {
	return d.DeviceID == "" && d.DeviceFingerprint == "" && d.IPAddress == "" && d.UserAgent == ""
}

// SessionClaims is the JWT payload shared by access and refresh tokens.
type SessionClaims struct {
	UserID       string    `json:"user_id"`
	Role         UserRole  `json:"role"`
	Email        string    `json:"email,omitempty"`
	TokenFamily  string    `json:"token_family"`
	TokenVersion int       `json:"token_version"`
	TokenType    TokenType `json:"token_type"`
	jwt.RegisteredClaims
}

// TokenPair is the result of issuing or rotating a session.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenFamily      string    `json:"token_family"`
	TokenVersion     int       `json:"token_version"`
	ExpiresIn        int64     `json:"expires_in"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}
