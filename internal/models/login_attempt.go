package models

import "time"

// Identifier types accepted by the throttle guard.
const (
	IdentifierEmail  = "email"
	IdentifierPhone  = "phone"
	IdentifierUserID = "user_id"
)

// AttemptTypeLogin is currently the only attempt type recorded.
const AttemptTypeLogin = "login"

// Block reasons written on derived blocking rows.
const (
	BlockReasonCooldown = "Too many failed attempts, cooldown applied"
	BlockReasonHardLock = "Repeated failed attempts, account temporarily locked"
)

// LoginAttempt is one row per login attempt, plus derived block/cooldown
// rows. Blocking rows carry a future blocked_until; once that passes the
// block is logically expired even if is_blocked has not been cleared yet.
type LoginAttempt struct {
	ID                string     `db:"id" json:"id"`
	UserID            *string    `db:"user_id" json:"user_id,omitempty"`
	Identifier        string     `db:"identifier" json:"identifier"`
	IdentifierType    string     `db:"identifier_type" json:"identifier_type"`
	AttemptType       string     `db:"attempt_type" json:"attempt_type"`
	Success           bool       `db:"success" json:"success"`
	FailureReason     *string    `db:"failure_reason" json:"failure_reason,omitempty"`
	DeviceID          string     `db:"device_id" json:"device_id"`
	DeviceFingerprint string     `db:"device_fingerprint" json:"device_fingerprint"`
	IPAddress         string     `db:"ip_address" json:"ip_address"`
	UserAgent         string     `db:"user_agent" json:"user_agent"`
	Country           string     `db:"country" json:"country"`
	IsBlocked         bool       `db:"is_blocked" json:"is_blocked"`
	BlockedUntil      *time.Time `db:"blocked_until" json:"blocked_until,omitempty"`
	BlockReason       *string    `db:"block_reason" json:"block_reason,omitempty"`
	AttemptCount      int        `db:"attempt_count" json:"attempt_count"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
}

// ThrottleDecision is the outcome of a throttle check. Denial is a normal
// result, not an error.
type ThrottleDecision struct {
	Allowed           bool       `json:"allowed"`
	RemainingAttempts int        `json:"remaining_attempts"`
	LockedUntil       *time.Time `json:"locked_until,omitempty"`
	CooldownUntil     *time.Time `json:"cooldown_until,omitempty"`
	Reason            string     `json:"reason,omitempty"`
}

// DeviceHistoryEntry summarises a device previously seen on successful
// logins for a user.
type DeviceHistoryEntry struct {
	DeviceID  string    `db:"device_id" json:"device_id"`
	Country   string    `db:"country" json:"country"`
	IPAddress string    `db:"ip_address" json:"ip_address"`
	LastSeen  time.Time `db:"last_seen" json:"last_seen"`
}
