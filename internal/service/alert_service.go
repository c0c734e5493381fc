package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ridemart/auth-api/internal/models"
	appErrors "github.com/ridemart/auth-api/pkg/errors"
	"github.com/ridemart/auth-api/pkg/export"
)

type alertRepository interface {
	FindByID(ctx context.Context, id string) (*models.SecurityAlert, error)
	Acknowledge(ctx context.Context, id string, now time.Time) (int64, error)
	Review(ctx context.Context, id, adminID, notes string, now time.Time) error
	List(ctx context.Context, filter models.AlertFilter) ([]models.SecurityAlert, int, error)
	CountOpenSince(ctx context.Context, since time.Time) (int, error)
}

type alertAttemptRepository interface {
	CountFailedSince(ctx context.Context, since time.Time) (int, error)
	CountActiveBlocks(ctx context.Context, now time.Time) (int, error)
}

type alertTokenRepository interface {
	CountReuseDetectedSince(ctx context.Context, since time.Time) (int, error)
}

type alertOverviewCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

type alertAuditRepository interface {
	Create(ctx context.Context, log *models.AuditLog) error
}

const overviewCacheKey = "security:overview"

// AlertService handles the security alert review surface: listing,
// acknowledgement, admin review, export and the dashboard overview.
type AlertService struct {
	alerts      alertRepository
	attempts    alertAttemptRepository
	tokens      alertTokenRepository
	audits      alertAuditRepository
	cache       alertOverviewCache
	csvExporter *export.CSVExporter
	pdfExporter *export.PDFExporter
	cacheTTL    time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

// NewAlertService constructs an AlertService instance.
func NewAlertService(alerts alertRepository, attempts alertAttemptRepository, tokens alertTokenRepository, audits alertAuditRepository, cache alertOverviewCache, cacheTTL time.Duration, logger *zap.Logger) *AlertService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &AlertService{
		alerts:      alerts,
		attempts:    attempts,
		tokens:      tokens,
		audits:      audits,
		cache:       cache,
		csvExporter: export.NewCSVExporter(),
		pdfExporter: export.NewPDFExporter(),
		cacheTTL:    cacheTTL,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// List returns alerts matching the filter with pagination metadata.
func (s *AlertService) List(ctx context.Context, filter models.AlertFilter) ([]models.SecurityAlert, *models.Pagination, error) {
	alerts, total, err := s.alerts.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list alerts")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return alerts, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Get returns a single alert.
func (s *AlertService) Get(ctx context.Context, id string) (*models.SecurityAlert, error) {
	alert, err := s.alerts.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "alert not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch alert")
	}
	return alert, nil
}

// Acknowledge marks an alert acknowledged by the user it belongs to.
// Users may only acknowledge their own alerts.
func (s *AlertService) Acknowledge(ctx context.Context, id, userID string) error {
	alert, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if alert.UserID != userID {
		return appErrors.Clone(appErrors.ErrForbidden, "alert belongs to another user")
	}

	affected, err := s.alerts.Acknowledge(ctx, id, s.now())
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to acknowledge alert")
	}
	if affected == 0 {
		return appErrors.Clone(appErrors.ErrConflict, "alert already acknowledged")
	}

	s.audit(ctx, &userID, models.AuditActionAlertAcknowledged, id, nil)
	return nil
}

// Review records an admin verdict and notes on an alert.
func (s *AlertService) Review(ctx context.Context, id, adminID, notes string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.alerts.Review(ctx, id, adminID, notes, s.now()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to review alert")
	}
	s.audit(ctx, &adminID, models.AuditActionAlertReviewed, id, map[string]interface{}{"notes": notes})
	return nil
}

// Export renders alerts matching the filter as CSV or PDF bytes.
func (s *AlertService) Export(ctx context.Context, filter models.AlertFilter, format string) ([]byte, string, error) {
	filter.Page = 1
	if filter.PageSize <= 0 {
		filter.PageSize = 100
	}
	alerts, _, err := s.alerts.List(ctx, filter)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list alerts for export")
	}

	dataset := buildAlertDataset(alerts)
	switch format {
	case "csv":
		payload, err := s.csvExporter.Render(dataset)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return payload, "text/csv", nil
	case "pdf":
		payload, err := s.pdfExporter.Render(dataset, "Security Alerts")
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return payload, "application/pdf", nil
	default:
		return nil, "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
}

// Overview aggregates the last 24 hours of security counters. The result is
// cached briefly; a cache failure degrades to a fresh computation.
func (s *AlertService) Overview(ctx context.Context) (*models.SecurityOverview, error) {
	if s.cache != nil {
		var cached models.SecurityOverview
		if err := s.cache.Get(ctx, overviewCacheKey, &cached); err == nil {
			return &cached, nil
		}
	}

	now := s.now()
	since := now.Add(-24 * time.Hour)

	failed, err := s.attempts.CountFailedSince(ctx, since)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count failed logins")
	}
	blocks, err := s.attempts.CountActiveBlocks(ctx, now)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count active blocks")
	}
	open, err := s.alerts.CountOpenSince(ctx, since)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count open alerts")
	}
	reuse, err := s.tokens.CountReuseDetectedSince(ctx, since)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count reuse detections")
	}

	overview := &models.SecurityOverview{
		FailedLogins:    failed,
		ActiveBlocks:    blocks,
		OpenAlerts:      open,
		ReuseDetections: reuse,
		GeneratedAt:     now,
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, overviewCacheKey, overview, s.cacheTTL); err != nil {
			s.logger.Warn("failed to cache security overview", zap.Error(err))
		}
	}

	return overview, nil
}

func (s *AlertService) audit(ctx context.Context, actorID *string, action, alertID string, payload map[string]interface{}) {
	var details []byte
	if payload != nil {
		details, _ = json.Marshal(payload)
	}
	if err := s.audits.Create(ctx, &models.AuditLog{
		UserID:     actorID,
		Action:     action,
		Severity:   models.AuditSeverityInfo,
		Resource:   "security_alert",
		ResourceID: &alertID,
		Details:    details,
	}); err != nil {
		s.logger.Warn("failed to record alert audit log", zap.Error(err))
	}
}

func buildAlertDataset(alerts []models.SecurityAlert) export.Dataset {
	headers := []string{"ID", "User ID", "Type", "Severity", "Reason", "Country", "IP Address", "Acknowledged", "Created At"}
	rows := make([]map[string]string, 0, len(alerts))
	for _, alert := range alerts {
		rows = append(rows, map[string]string{
			"ID":           alert.ID,
			"User ID":      alert.UserID,
			"Type":         string(alert.AlertType),
			"Severity":     string(alert.Severity),
			"Reason":       alert.Reason,
			"Country":      alert.Country,
			"IP Address":   alert.IPAddress,
			"Acknowledged": strconv.FormatBool(alert.Acknowledged),
			"Created At":   alert.CreatedAt.Format(time.RFC3339),
		})
	}
	return export.Dataset{Headers: headers, Rows: rows}
}
