package models

import "time"

// AuditAction constants represent security-relevant actions to be logged.
const (
	AuditActionLogin             = "LOGIN"
	AuditActionLoginFailed       = "LOGIN_FAILED"
	AuditActionLoginBlocked      = "LOGIN_BLOCKED"
	AuditActionLogout            = "LOGOUT"
	AuditActionTokenRotated      = "TOKEN_ROTATED"
	AuditActionTokenReuse        = "TOKEN_REUSE_DETECTED"
	AuditActionSuspiciousLogin   = "SUSPICIOUS_LOGIN"
	AuditActionSettlementBlock   = "SETTLEMENT_RESTRICTED"
	AuditActionRestrictionClear  = "SETTLEMENT_RESTRICTION_CLEARED"
	AuditActionBlocksCleared     = "LOGIN_BLOCKS_CLEARED"
	AuditActionThresholdChanged  = "SETTLEMENT_THRESHOLD_CHANGED"
	AuditActionAlertAcknowledged = "ALERT_ACKNOWLEDGED"
	AuditActionAlertReviewed     = "ALERT_REVIEWED"
)

// Audit severities. Critical entries feed the fraud review queue.
const (
	AuditSeverityInfo     = "info"
	AuditSeverityWarning  = "warning"
	AuditSeverityCritical = "critical"
)

// AuditLog represents an append-only audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Severity   string    `db:"severity" json:"severity"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	Details    []byte    `db:"details" json:"details,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
