package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/ridemart/auth-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestTokenRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewTokenRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO token_records")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	rec := &models.TokenRecord{
		UserID:           "u1",
		UserRole:         models.RoleDriver,
		AccessTokenHash:  "ahash",
		RefreshTokenHash: "rhash",
		TokenFamily:      "fam-1",
		TokenVersion:     1,
		AccessExpiresAt:  time.Now().Add(15 * time.Minute),
		RefreshExpiresAt: time.Now().Add(7 * 24 * time.Hour),
	}
	require.NoError(t, repo.Create(context.Background(), rec))
	require.NotEmpty(t, rec.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepositoryFindActiveByRefreshHash(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewTokenRepository(db)
	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "user_id", "user_role", "user_email", "access_token_hash", "refresh_token_hash",
		"token_family", "token_version", "access_expires_at", "refresh_expires_at", "used_at",
		"is_revoked", "revoked_at", "revoked_reason", "reuse_detected", "reuse_detected_at",
		"device_id", "device_fingerprint", "ip_address", "user_agent", "created_at",
	}).AddRow("tok-1", "u1", "DRIVER", nil, "ahash", "rhash",
		"fam-1", 1, now.Add(15*time.Minute), now.Add(24*time.Hour), nil,
		false, nil, nil, false, nil,
		"dev-1", "fp-1", "203.0.113.10", "agent", now)

	mock.ExpectQuery("SELECT .+ FROM token_records").
		WithArgs("rhash", "fam-1").
		WillReturnRows(rows)

	rec, err := repo.FindActiveByRefreshHash(context.Background(), "rhash", "fam-1")
	require.NoError(t, err)
	require.Equal(t, "tok-1", rec.ID)
	require.Equal(t, 1, rec.TokenVersion)
	require.Nil(t, rec.UsedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepositoryFindActiveNoRows(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewTokenRepository(db)
	mock.ExpectQuery("SELECT .+ FROM token_records").
		WithArgs("gone", "fam-1").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindActiveByRefreshHash(context.Background(), "gone", "fam-1")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepositoryMarkRotatedWinsOnce(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewTokenRepository(db)
	now := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE token_records")).
		WithArgs("tok-1", now, models.RevokeReasonRotated).
		WillReturnResult(sqlmock.NewResult(0, 1))

	won, err := repo.MarkRotated(context.Background(), "tok-1", now)
	require.NoError(t, err)
	require.True(t, won)

	// Second attempt hits the used_at/is_revoked guard: zero rows.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE token_records")).
		WithArgs("tok-1", now, models.RevokeReasonRotated).
		WillReturnResult(sqlmock.NewResult(0, 0))

	won, err = repo.MarkRotated(context.Background(), "tok-1", now)
	require.NoError(t, err)
	require.False(t, won)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepositoryHasRevokedInFamily(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewTokenRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs("fam-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	revoked, err := repo.HasRevokedInFamily(context.Background(), "fam-1")
	require.NoError(t, err)
	require.True(t, revoked)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepositoryRevokeAllForUser(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewTokenRepository(db)
	now := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE token_records")).
		WithArgs("u1", now, models.RevokeReasonReuse).
		WillReturnResult(sqlmock.NewResult(0, 3))

	count, err := repo.RevokeAllForUser(context.Background(), "u1", models.RevokeReasonReuse, now)
	require.NoError(t, err)
	require.Equal(t, int64(3), count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepositoryDeleteExpired(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewTokenRepository(db)
	now := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM token_records")).
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 7))

	count, err := repo.DeleteExpired(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, int64(7), count)
	require.NoError(t, mock.ExpectationsWereMet())
}
