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

const attemptColumns = `id, user_id, identifier, identifier_type, attempt_type, success, failure_reason,
	device_id, device_fingerprint, ip_address, user_agent, country,
	is_blocked, blocked_until, block_reason, attempt_count, created_at`

// LoginAttemptRepository provides database access for login attempts and
// their derived block rows.
type LoginAttemptRepository struct {
	db *sqlx.DB
}

// NewLoginAttemptRepository creates a new instance of LoginAttemptRepository.
func NewLoginAttemptRepository(db *sqlx.DB) *LoginAttemptRepository {
	return &LoginAttemptRepository{db: db}
}

// Create appends a login attempt row. Attempts are never hard-deleted; they
// are the audit trail the throttle counts against.
func (r *LoginAttemptRepository) Create(ctx context.Context, attempt *models.LoginAttempt) error {
	if attempt.ID == "" {
		attempt.ID = uuid.NewString()
	}
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = time.Now().UTC()
	}
	if attempt.AttemptType == "" {
		attempt.AttemptType = models.AttemptTypeLogin
	}
	const query = `INSERT INTO login_attempts (id, user_id, identifier, identifier_type, attempt_type, success, failure_reason,
		device_id, device_fingerprint, ip_address, user_agent, country,
		is_blocked, blocked_until, block_reason, attempt_count, created_at)
		VALUES (:id, :user_id, :identifier, :identifier_type, :attempt_type, :success, :failure_reason,
		:device_id, :device_fingerprint, :ip_address, :user_agent, :country,
		:is_blocked, :blocked_until, :block_reason, :attempt_count, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, attempt); err != nil {
		return fmt.Errorf("create login attempt: %w", err)
	}
	return nil
}

// CountRecentFailures counts failed attempts in the window keyed on
// identifier OR device id OR fingerprint. Keying on the device stops one
// compromised device from rotating identifiers, and one stolen identifier
// from spraying devices. Derived block rows are excluded from the count.
func (r *LoginAttemptRepository) CountRecentFailures(ctx context.Context, identifier, deviceID, fingerprint string, since time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM login_attempts
		WHERE success = FALSE AND is_blocked = FALSE AND created_at >= $1
		AND (identifier = $2
			OR (device_id <> '' AND device_id = $3)
			OR (device_fingerprint <> '' AND device_fingerprint = $4))`
	var count int
	if err := r.db.GetContext(ctx, &count, query, since, identifier, deviceID, fingerprint); err != nil {
		return 0, fmt.Errorf("count recent failures: %w", err)
	}
	return count, nil
}

// FindActiveBlock returns the most recent unexpired block matching the
// identifier or device, or sql.ErrNoRows when none applies.
func (r *LoginAttemptRepository) FindActiveBlock(ctx context.Context, identifier, deviceID, fingerprint string, now time.Time) (*models.LoginAttempt, error) {
	query := fmt.Sprintf(`SELECT %s FROM login_attempts
		WHERE is_blocked = TRUE AND blocked_until > $1
		AND (identifier = $2
			OR (device_id <> '' AND device_id = $3)
			OR (device_fingerprint <> '' AND device_fingerprint = $4))
		ORDER BY blocked_until DESC LIMIT 1`, attemptColumns)
	var block models.LoginAttempt
	if err := r.db.GetContext(ctx, &block, query, now, identifier, deviceID, fingerprint); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find active block: %w", err)
	}
	return &block, nil
}

// ClearActiveBlocks flips is_blocked off for the identifier's blocks whose
// window is still in the future. Invoked after a successful login: success
// is only reachable once a block has naturally elapsed, so this is tidy-up,
// never a bypass.
func (r *LoginAttemptRepository) ClearActiveBlocks(ctx context.Context, identifier string, now time.Time) (int64, error) {
	const query = `UPDATE login_attempts SET is_blocked = FALSE
		WHERE identifier = $1 AND is_blocked = TRUE AND blocked_until > $2`
	res, err := r.db.ExecContext(ctx, query, identifier, now)
	if err != nil {
		return 0, fmt.Errorf("clear active blocks: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear active blocks rows affected: %w", err)
	}
	return affected, nil
}

// ClearAllBlocks unconditionally lifts the identifier's blocks. Admin
// override only.
func (r *LoginAttemptRepository) ClearAllBlocks(ctx context.Context, identifier string) (int64, error) {
	const query = `UPDATE login_attempts SET is_blocked = FALSE WHERE identifier = $1 AND is_blocked = TRUE`
	res, err := r.db.ExecContext(ctx, query, identifier)
	if err != nil {
		return 0, fmt.Errorf("clear all blocks: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear all blocks rows affected: %w", err)
	}
	return affected, nil
}

// DeviceHistory lists devices seen on the user's successful logins within
// the window, most recent first.
func (r *LoginAttemptRepository) DeviceHistory(ctx context.Context, userID string, since time.Time) ([]models.DeviceHistoryEntry, error) {
	const query = `SELECT device_id, country, ip_address, MAX(created_at) AS last_seen
		FROM login_attempts
		WHERE user_id = $1 AND success = TRUE AND device_id <> '' AND created_at >= $2
		GROUP BY device_id, country, ip_address
		ORDER BY last_seen DESC`
	var history []models.DeviceHistoryEntry
	if err := r.db.SelectContext(ctx, &history, query, userID, since); err != nil {
		return nil, fmt.Errorf("device history: %w", err)
	}
	return history, nil
}

// CountDistinctRecentIPs counts distinct IPs among the user's successful
// logins in the window, for rapid-IP-change detection.
func (r *LoginAttemptRepository) CountDistinctRecentIPs(ctx context.Context, userID string, since time.Time) (int, error) {
	const query = `SELECT COUNT(DISTINCT ip_address) FROM login_attempts
		WHERE user_id = $1 AND success = TRUE AND ip_address <> '' AND created_at >= $2`
	var count int
	if err := r.db.GetContext(ctx, &count, query, userID, since); err != nil {
		return 0, fmt.Errorf("count distinct recent ips: %w", err)
	}
	return count, nil
}

// CountFailedSince counts failed attempts platform-wide for the security
// overview.
func (r *LoginAttemptRepository) CountFailedSince(ctx context.Context, since time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM login_attempts WHERE success = FALSE AND is_blocked = FALSE AND created_at >= $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, since); err != nil {
		return 0, fmt.Errorf("count failed attempts: %w", err)
	}
	return count, nil
}

// CountActiveBlocks counts currently-effective block rows for the security
// overview.
func (r *LoginAttemptRepository) CountActiveBlocks(ctx context.Context, now time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM login_attempts WHERE is_blocked = TRUE AND blocked_until > $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, now); err != nil {
		return 0, fmt.Errorf("count active blocks: %w", err)
	}
	return count, nil
}
