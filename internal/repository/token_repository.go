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

const tokenColumns = `id, user_id, user_role, user_email, access_token_hash, refresh_token_hash,
	token_family, token_version, access_expires_at, refresh_expires_at, used_at,
	is_revoked, revoked_at, revoked_reason, reuse_detected, reuse_detected_at,
	device_id, device_fingerprint, ip_address, user_agent, created_at`

// TokenRepository provides database access for issued token records.
type TokenRepository struct {
	db *sqlx.DB
}

// NewTokenRepository creates a new instance of TokenRepository.
func NewTokenRepository(db *sqlx.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// Create inserts a new token record.
func (r *TokenRepository) Create(ctx context.Context, rec *models.TokenRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO token_records (id, user_id, user_role, user_email, access_token_hash, refresh_token_hash,
		token_family, token_version, access_expires_at, refresh_expires_at, used_at,
		is_revoked, revoked_at, revoked_reason, reuse_detected, reuse_detected_at,
		device_id, device_fingerprint, ip_address, user_agent, created_at)
		VALUES (:id, :user_id, :user_role, :user_email, :access_token_hash, :refresh_token_hash,
		:token_family, :token_version, :access_expires_at, :refresh_expires_at, :used_at,
		:is_revoked, :revoked_at, :revoked_reason, :reuse_detected, :reuse_detected_at,
		:device_id, :device_fingerprint, :ip_address, :user_agent, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, rec); err != nil {
		return fmt.Errorf("create token record: %w", err)
	}
	return nil
}

// FindActiveByRefreshHash returns the single non-revoked, unconsumed record
// for the given refresh token hash within its family.
func (r *TokenRepository) FindActiveByRefreshHash(ctx context.Context, refreshHash, family string) (*models.TokenRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM token_records
		WHERE refresh_token_hash = $1 AND token_family = $2 AND is_revoked = FALSE LIMIT 1`, tokenColumns)
	var rec models.TokenRecord
	if err := r.db.GetContext(ctx, &rec, query, refreshHash, family); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find active token record: %w", err)
	}
	return &rec, nil
}

// ExistsActiveByAccessHash reports whether a non-revoked record backs the
// given access token hash. Revocation must take effect before the token's
// own expiry, so validation always hits the store.
func (r *TokenRepository) ExistsActiveByAccessHash(ctx context.Context, accessHash, family string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM token_records
		WHERE access_token_hash = $1 AND token_family = $2 AND is_revoked = FALSE)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, accessHash, family); err != nil {
		return false, fmt.Errorf("check active access token: %w", err)
	}
	return exists, nil
}

// HasRevokedInFamily reports whether the family holds any revoked record,
// the signal that a presented-but-missing refresh token was rotated away.
func (r *TokenRepository) HasRevokedInFamily(ctx context.Context, family string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM token_records WHERE token_family = $1 AND is_revoked = TRUE)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, family); err != nil {
		return false, fmt.Errorf("check revoked in family: %w", err)
	}
	return exists, nil
}

// MarkRotated consumes a refresh token record. The compare-and-set guard on
// used_at/is_revoked guarantees at most one concurrent rotation wins; the
// loser sees zero rows affected and must treat the token as consumed.
func (r *TokenRepository) MarkRotated(ctx context.Context, id string, now time.Time) (bool, error) {
	const query = `UPDATE token_records
		SET used_at = $2, is_revoked = TRUE, revoked_at = $2, revoked_reason = $3
		WHERE id = $1 AND used_at IS NULL AND is_revoked = FALSE`
	res, err := r.db.ExecContext(ctx, query, id, now, models.RevokeReasonRotated)
	if err != nil {
		return false, fmt.Errorf("mark token rotated: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark token rotated rows affected: %w", err)
	}
	return affected == 1, nil
}

// MarkFamilyReuseDetected flags every record in the family as part of a
// confirmed reuse incident.
func (r *TokenRepository) MarkFamilyReuseDetected(ctx context.Context, family string, now time.Time) error {
	const query = `UPDATE token_records SET reuse_detected = TRUE, reuse_detected_at = $2 WHERE token_family = $1`
	if _, err := r.db.ExecContext(ctx, query, family, now); err != nil {
		return fmt.Errorf("mark family reuse detected: %w", err)
	}
	return nil
}

// RevokeAllForUser revokes every active session of the user and returns the
// number of records touched.
func (r *TokenRepository) RevokeAllForUser(ctx context.Context, userID, reason string, now time.Time) (int64, error) {
	const query = `UPDATE token_records SET is_revoked = TRUE, revoked_at = $2, revoked_reason = $3
		WHERE user_id = $1 AND is_revoked = FALSE`
	res, err := r.db.ExecContext(ctx, query, userID, now, reason)
	if err != nil {
		return 0, fmt.Errorf("revoke user tokens: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("revoke user tokens rows affected: %w", err)
	}
	return affected, nil
}

// RevokeFamily revokes the active records of one session family.
func (r *TokenRepository) RevokeFamily(ctx context.Context, family, reason string, now time.Time) (int64, error) {
	const query = `UPDATE token_records SET is_revoked = TRUE, revoked_at = $2, revoked_reason = $3
		WHERE token_family = $1 AND is_revoked = FALSE`
	res, err := r.db.ExecContext(ctx, query, family, now, reason)
	if err != nil {
		return 0, fmt.Errorf("revoke token family: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("revoke token family rows affected: %w", err)
	}
	return affected, nil
}

// DeleteExpired removes records whose refresh expiry has passed. Retention
// sweep only; not correctness-critical.
func (r *TokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	const query = `DELETE FROM token_records WHERE refresh_expires_at < $1`
	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired token records: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired rows affected: %w", err)
	}
	return affected, nil
}

// CountReuseDetectedSince counts reuse incidents for the security overview.
func (r *TokenRepository) CountReuseDetectedSince(ctx context.Context, since time.Time) (int, error) {
	const query = `SELECT COUNT(DISTINCT token_family) FROM token_records
		WHERE reuse_detected = TRUE AND reuse_detected_at >= $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, since); err != nil {
		return 0, fmt.Errorf("count reuse detections: %w", err)
	}
	return count, nil
}
