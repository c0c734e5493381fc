package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ridemart/auth-api/internal/models"
	"github.com/ridemart/auth-api/pkg/notify"
)

type detectorAttemptRepository interface {
	DeviceHistory(ctx context.Context, userID string, since time.Time) ([]models.DeviceHistoryEntry, error)
	CountDistinctRecentIPs(ctx context.Context, userID string, since time.Time) (int, error)
}

type detectorAlertRepository interface {
	Create(ctx context.Context, alert *models.SecurityAlert) error
	MarkNotified(ctx context.Context, id string, emailSent, smsSent bool) error
}

type detectorAuditRepository interface {
	Create(ctx context.Context, log *models.AuditLog) error
}

// DetectorConfig tunes the suspicious-login rules.
type DetectorConfig struct {
	HistoryWindow     time.Duration
	RapidIPWindow     time.Duration
	RapidIPThreshold  int
	HighRiskCountries []string
}

// SuspiciousLoginService classifies a successful login's context against
// the user's history and raises an alert without ever blocking the login.
// The service is fail-open by policy: the throttle guard and signature
// checks are the hard boundary, so any internal failure here degrades to a
// skipped evaluation, reported distinctly from a clear one.
type SuspiciousLoginService struct {
	attempts   detectorAttemptRepository
	alerts     detectorAlertRepository
	audits     detectorAuditRepository
	dispatcher notify.Dispatcher
	metrics    *MetricsService
	logger     *zap.Logger
	config     DetectorConfig
	highRisk   map[string]struct{}
	now        func() time.Time
}

// NewSuspiciousLoginService constructs a SuspiciousLoginService instance.
func NewSuspiciousLoginService(attempts detectorAttemptRepository, alerts detectorAlertRepository, audits detectorAuditRepository, dispatcher notify.Dispatcher, metrics *MetricsService, logger *zap.Logger, config DetectorConfig) *SuspiciousLoginService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dispatcher == nil {
		dispatcher = notify.NoopDispatcher{}
	}
	if config.RapidIPThreshold <= 0 {
		config.RapidIPThreshold = 3
	}
	if config.RapidIPWindow <= 0 {
		config.RapidIPWindow = time.Hour
	}
	if config.HistoryWindow <= 0 {
		config.HistoryWindow = 90 * 24 * time.Hour
	}

	highRisk := make(map[string]struct{}, len(config.HighRiskCountries))
	for _, c := range config.HighRiskCountries {
		highRisk[strings.ToUpper(strings.TrimSpace(c))] = struct{}{}
	}

	return &SuspiciousLoginService{
		attempts:   attempts,
		alerts:     alerts,
		audits:     audits,
		dispatcher: dispatcher,
		metrics:    metrics,
		logger:     logger,
		config:     config,
		highRisk:   highRisk,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Evaluate runs the detection rules in fixed priority order, first match
// wins: new_device, new_country, rapid_ip_change, high_risk_location. On a
// match it persists an alert, dispatches notifications and writes an audit
// entry. Errors never surface to the login path.
func (s *SuspiciousLoginService) Evaluate(ctx context.Context, login models.LoginContext) models.LoginEvaluation {
	now := s.now()

	history, err := s.attempts.DeviceHistory(ctx, login.UserID, now.Add(-s.config.HistoryWindow))
	if err != nil {
		s.logger.Warn("suspicious-login evaluation skipped: device history unavailable",
			zap.String("user_id", login.UserID), zap.Error(err))
		return models.LoginEvaluation{Outcome: models.OutcomeSkipped}
	}

	evaluation, err := s.classify(ctx, login, history, now)
	if err != nil {
		s.logger.Warn("suspicious-login evaluation skipped",
			zap.String("user_id", login.UserID), zap.Error(err))
		return models.LoginEvaluation{Outcome: models.OutcomeSkipped}
	}
	if !evaluation.Suspicious() {
		return evaluation
	}

	s.raiseAlert(ctx, login, evaluation, history, now)
	return evaluation
}

func (s *SuspiciousLoginService) classify(ctx context.Context, login models.LoginContext, history []models.DeviceHistoryEntry, now time.Time) (models.LoginEvaluation, error) {
	country := strings.ToUpper(strings.TrimSpace(login.Country))

	if login.Device.DeviceID != "" && !knownDevice(history, login.Device.DeviceID) {
		return models.LoginEvaluation{
			Outcome:   models.OutcomeSuspicious,
			AlertType: models.AlertNewDevice,
			Severity:  models.SeverityMedium,
			Reason:    fmt.Sprintf("device %s not seen before for this account", login.Device.DeviceID),
		}, nil
	}

	// Only meaningful once some history exists; a user's very first device
	// would otherwise always trip the country rule.
	if len(history) > 0 && country != "" && !knownCountry(history, country) {
		return models.LoginEvaluation{
			Outcome:   models.OutcomeSuspicious,
			AlertType: models.AlertNewCountry,
			Severity:  models.SeverityHigh,
			Reason:    fmt.Sprintf("login from %s, not among previously seen countries", country),
		}, nil
	}

	distinctIPs, err := s.attempts.CountDistinctRecentIPs(ctx, login.UserID, now.Add(-s.config.RapidIPWindow))
	if err != nil {
		return models.LoginEvaluation{}, err
	}
	if distinctIPs >= s.config.RapidIPThreshold {
		return models.LoginEvaluation{
			Outcome:   models.OutcomeSuspicious,
			AlertType: models.AlertRapidIPChange,
			Severity:  models.SeverityHigh,
			Reason:    fmt.Sprintf("%d distinct IP addresses within %s", distinctIPs, s.config.RapidIPWindow),
		}, nil
	}

	if _, risky := s.highRisk[country]; risky {
		return models.LoginEvaluation{
			Outcome:   models.OutcomeSuspicious,
			AlertType: models.AlertHighRiskLocation,
			Severity:  models.SeverityCritical,
			Reason:    fmt.Sprintf("login from high-risk location %s", country),
		}, nil
	}

	return models.LoginEvaluation{Outcome: models.OutcomeClear}, nil
}

func (s *SuspiciousLoginService) raiseAlert(ctx context.Context, login models.LoginContext, evaluation models.LoginEvaluation, history []models.DeviceHistoryEntry, now time.Time) {
	alert := &models.SecurityAlert{
		UserID:            login.UserID,
		UserRole:          login.Role,
		AlertType:         evaluation.AlertType,
		Severity:          evaluation.Severity,
		Reason:            evaluation.Reason,
		DeviceID:          login.Device.DeviceID,
		DeviceFingerprint: login.Device.DeviceFingerprint,
		IPAddress:         login.Device.IPAddress,
		UserAgent:         login.Device.UserAgent,
		Country:           login.Country,
		CreatedAt:         now,
	}
	if len(history) > 0 {
		prev := history[0]
		alert.PreviousDeviceID = &prev.DeviceID
		alert.PreviousCountry = &prev.Country
		alert.PreviousIPAddress = &prev.IPAddress
	}

	if err := s.alerts.Create(ctx, alert); err != nil {
		s.logger.Warn("failed to persist security alert", zap.Error(err))
		return
	}
	s.metrics.IncAlert(string(evaluation.AlertType))

	msg := notify.BuildMessage(notify.AlertContext{
		AlertID:   alert.ID,
		UserID:    login.UserID,
		UserEmail: login.Email,
		AlertType: string(evaluation.AlertType),
		Severity:  string(evaluation.Severity),
		Reason:    evaluation.Reason,
		DeviceID:  login.Device.DeviceID,
		IPAddress: login.Device.IPAddress,
		Country:   login.Country,
		When:      now,
	})
	emailSent, smsSent := true, true
	if err := s.dispatcher.Dispatch(ctx, msg); err != nil {
		s.logger.Warn("failed to dispatch security notification", zap.Error(err))
		emailSent, smsSent = false, false
	}
	if err := s.alerts.MarkNotified(ctx, alert.ID, emailSent, smsSent); err != nil {
		s.logger.Warn("failed to mark alert notified", zap.Error(err))
	}

	severity := models.AuditSeverityWarning
	if evaluation.AlertType == models.AlertHighRiskLocation {
		severity = models.AuditSeverityCritical
	}
	details, _ := json.Marshal(evaluation)
	if err := s.audits.Create(ctx, &models.AuditLog{
		UserID:     &alert.UserID,
		Action:     models.AuditActionSuspiciousLogin,
		Severity:   severity,
		Resource:   "security_alert",
		ResourceID: &alert.ID,
		Details:    details,
		IPAddress:  login.Device.IPAddress,
		UserAgent:  login.Device.UserAgent,
		CreatedAt:  now,
	}); err != nil {
		s.logger.Warn("failed to audit suspicious login", zap.Error(err))
	}
}

func knownDevice(history []models.DeviceHistoryEntry, deviceID string) bool {
	for _, entry := range history {
		if entry.DeviceID == deviceID {
			return true
		}
	}
	return false
}

func knownCountry(history []models.DeviceHistoryEntry, country string) bool {
	for _, entry := range history {
		if strings.EqualFold(entry.Country, country) {
			return true
		}
	}
	return false
}
