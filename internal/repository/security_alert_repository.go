package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ridemart/auth-api/internal/models"
)

const alertColumns = `id, user_id, user_role, alert_type, severity, reason,
	device_id, device_fingerprint, ip_address, user_agent, country,
	previous_device_id, previous_country, previous_ip_address,
	email_sent, sms_sent, acknowledged, acknowledged_at,
	reviewed_by, reviewed_at, review_notes, created_at`

// SecurityAlertRepository provides database access for security alerts.
type SecurityAlertRepository struct {
	db *sqlx.DB
}

// NewSecurityAlertRepository creates a new instance of SecurityAlertRepository.
func NewSecurityAlertRepository(db *sqlx.DB) *SecurityAlertRepository {
	return &SecurityAlertRepository{db: db}
}

// Create stores a new alert.
func (r *SecurityAlertRepository) Create(ctx context.Context, alert *models.SecurityAlert) error {
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO security_alerts (id, user_id, user_role, alert_type, severity, reason,
		device_id, device_fingerprint, ip_address, user_agent, country,
		previous_device_id, previous_country, previous_ip_address,
		email_sent, sms_sent, acknowledged, acknowledged_at,
		reviewed_by, reviewed_at, review_notes, created_at)
		VALUES (:id, :user_id, :user_role, :alert_type, :severity, :reason,
		:device_id, :device_fingerprint, :ip_address, :user_agent, :country,
		:previous_device_id, :previous_country, :previous_ip_address,
		:email_sent, :sms_sent, :acknowledged, :acknowledged_at,
		:reviewed_by, :reviewed_at, :review_notes, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, alert); err != nil {
		return fmt.Errorf("create security alert: %w", err)
	}
	return nil
}

// FindByID returns one alert.
func (r *SecurityAlertRepository) FindByID(ctx context.Context, id string) (*models.SecurityAlert, error) {
	query := fmt.Sprintf(`SELECT %s FROM security_alerts WHERE id = $1 LIMIT 1`, alertColumns)
	var alert models.SecurityAlert
	if err := r.db.GetContext(ctx, &alert, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find security alert: %w", err)
	}
	return &alert, nil
}

// MarkNotified records which notification channels were dispatched.
func (r *SecurityAlertRepository) MarkNotified(ctx context.Context, id string, emailSent, smsSent bool) error {
	const query = `UPDATE security_alerts SET email_sent = $2, sms_sent = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, emailSent, smsSent); err != nil {
		return fmt.Errorf("mark alert notified: %w", err)
	}
	return nil
}

// Acknowledge marks the alert acknowledged by its owner. Returns the rows
// touched so callers can distinguish a repeat acknowledgement.
func (r *SecurityAlertRepository) Acknowledge(ctx context.Context, id string, now time.Time) (int64, error) {
	const query = `UPDATE security_alerts SET acknowledged = TRUE, acknowledged_at = $2
		WHERE id = $1 AND acknowledged = FALSE`
	res, err := r.db.ExecContext(ctx, query, id, now)
	if err != nil {
		return 0, fmt.Errorf("acknowledge alert: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("acknowledge alert rows affected: %w", err)
	}
	return affected, nil
}

// Review records an admin verdict on the alert.
func (r *SecurityAlertRepository) Review(ctx context.Context, id, adminID, notes string, now time.Time) error {
	const query = `UPDATE security_alerts SET reviewed_by = $2, reviewed_at = $3, review_notes = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, adminID, now, notes); err != nil {
		return fmt.Errorf("review alert: %w", err)
	}
	return nil
}

// List returns alerts matching the filter with a total count.
func (r *SecurityAlertRepository) List(ctx context.Context, filter models.AlertFilter) ([]models.SecurityAlert, int, error) {
	baseQuery := `FROM security_alerts WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.UserID != "" {
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)+1))
		args = append(args, filter.UserID)
	}
	if filter.AlertType != nil {
		conditions = append(conditions, fmt.Sprintf("alert_type = $%d", len(args)+1))
		args = append(args, *filter.AlertType)
	}
	if filter.Severity != nil {
		conditions = append(conditions, fmt.Sprintf("severity = $%d", len(args)+1))
		args = append(args, *filter.Severity)
	}
	if filter.Acknowledged != nil {
		conditions = append(conditions, fmt.Sprintf("acknowledged = $%d", len(args)+1))
		args = append(args, *filter.Acknowledged)
	}
	if filter.Since != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)+1))
		args = append(args, *filter.Since)
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC LIMIT %d OFFSET %d", alertColumns, baseQuery, pageSize, offset)

	var alerts []models.SecurityAlert
	if err := r.db.SelectContext(ctx, &alerts, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list security alerts: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count security alerts: %w", err)
	}

	return alerts, total, nil
}

// CountOpenSince counts unacknowledged alerts for the security overview.
func (r *SecurityAlertRepository) CountOpenSince(ctx context.Context, since time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM security_alerts WHERE acknowledged = FALSE AND created_at >= $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, since); err != nil {
		return 0, fmt.Errorf("count open alerts: %w", err)
	}
	return count, nil
}
