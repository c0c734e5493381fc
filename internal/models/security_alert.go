package models

import "time"

// AlertType identifies the rule that raised a security alert.
type AlertType string

const (
	AlertNewDevice        AlertType = "new_device"
	AlertNewCountry       AlertType = "new_country"
	AlertRapidIPChange    AlertType = "rapid_ip_change"
	AlertHighRiskLocation AlertType = "high_risk_location"
	AlertTokenReuse       AlertType = "token_reuse"
)

// AlertSeverity grades an alert.
type AlertSeverity string

const (
	SeverityLow      AlertSeverity = "low"
	SeverityMedium   AlertSeverity = "medium"
	SeverityHigh     AlertSeverity = "high"
	SeverityCritical AlertSeverity = "critical"
)

// SecurityAlert is one row per suspicious-login or fraud detection. It
// captures the triggering context plus a snapshot of the most recent prior
// device context for the user.
type SecurityAlert struct {
	ID                string        `db:"id" json:"id"`
	UserID            string        `db:"user_id" json:"user_id"`
	UserRole          UserRole      `db:"user_role" json:"user_role"`
	AlertType         AlertType     `db:"alert_type" json:"alert_type"`
	Severity          AlertSeverity `db:"severity" json:"severity"`
	Reason            string        `db:"reason" json:"reason"`
	DeviceID          string        `db:"device_id" json:"device_id"`
	DeviceFingerprint string        `db:"device_fingerprint" json:"device_fingerprint"`
	IPAddress         string        `db:"ip_address" json:"ip_address"`
	UserAgent         string        `db:"user_agent" json:"user_agent"`
	Country           string        `db:"country" json:"country"`
	PreviousDeviceID  *string       `db:"previous_device_id" json:"previous_device_id,omitempty"`
	PreviousCountry   *string       `db:"previous_country" json:"previous_country,omitempty"`
	PreviousIPAddress *string       `db:"previous_ip_address" json:"previous_ip_address,omitempty"`
	EmailSent         bool          `db:"email_sent" json:"email_sent"`
	SMSSent           bool          `db:"sms_sent" json:"sms_sent"`
	Acknowledged      bool          `db:"acknowledged" json:"acknowledged"`
	AcknowledgedAt    *time.Time    `db:"acknowledged_at" json:"acknowledged_at,omitempty"`
	ReviewedBy        *string       `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt        *time.Time    `db:"reviewed_at" json:"reviewed_at,omitempty"`
	ReviewNotes       *string       `db:"review_notes" json:"review_notes,omitempty"`
	CreatedAt         time.Time     `db:"created_at" json:"created_at"`
}

// LoginContext is the input to the suspicious-login detector: the context
// of a login that already succeeded.
type LoginContext struct {
	UserID string
	Role   UserRole
	Email  string
	Device DeviceInfo
	// Country is the coarse geolocation of the login, resolved by the
	// HTTP layer before the context reaches the detector.
	Country string
}

// EvaluationOutcome distinguishes a clean login from a suspicious one and,
// separately, from a detector failure. The detector is fail-open: internal
// errors degrade to skipped, never to a blocked login, and skipped must not
// be conflated with clear in telemetry.
type EvaluationOutcome string

const (
	OutcomeClear      EvaluationOutcome = "clear"
	OutcomeSuspicious EvaluationOutcome = "suspicious"
	OutcomeSkipped    EvaluationOutcome = "skipped"
)

// LoginEvaluation is the detector verdict for one login.
type LoginEvaluation struct {
	Outcome   EvaluationOutcome `json:"outcome"`
	AlertType AlertType         `json:"alert_type,omitempty"`
	Severity  AlertSeverity     `json:"severity,omitempty"`
	Reason    string            `json:"reason,omitempty"`
}

// Suspicious reports whether the evaluation raised an alert.
func (e LoginEvaluation) Suspicious() bool { return e.Outcome == OutcomeSuspicious }

// AlertFilter captures listing criteria for security alerts.
type AlertFilter struct {
	UserID       string
	AlertType    *AlertType
	Severity     *AlertSeverity
	Acknowledged *bool
	Since        *time.Time
	Page         int
	PageSize     int
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

// SecurityOverview aggregates 24h counters for the admin dashboard.
type SecurityOverview struct {
	FailedLogins    int       `json:"failed_logins"`
	ActiveBlocks    int       `json:"active_blocks"`
	OpenAlerts      int       `json:"open_alerts"`
	ReuseDetections int       `json:"reuse_detections"`
	GeneratedAt     time.Time `json:"generated_at"`
}
