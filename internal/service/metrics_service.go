package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Login/rotation result labels.
const (
	MetricResultSuccess = "success"
	MetricResultDenied  = "denied"
	MetricResultFailure = "failure"
)

// MetricsService encapsulates Prometheus instrumentation for the auth core:
// HTTP timings plus the abuse-control domain counters.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	logins          *prometheus.CounterVec
	rotations       *prometheus.CounterVec
	reuseDetected   prometheus.Counter
	loginBlocks     *prometheus.CounterVec
	settlementDeny  prometheus.Counter
	alertsRaised    *prometheus.CounterVec
}

// NewMetricsService registers the core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	logins := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_logins_total",
		Help: "Login attempts by result",
	}, []string{"result"})

	rotations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_token_rotations_total",
		Help: "Refresh token rotations by result",
	}, []string{"result"})

	reuseDetected := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_token_reuse_detected_total",
		Help: "Confirmed refresh token reuse incidents",
	})

	loginBlocks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_login_blocks_total",
		Help: "Throttle blocks written by tier",
	}, []string{"tier"})

	settlementDeny := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "settlement_denials_total",
		Help: "Requests denied by the settlement gate",
	})

	alertsRaised := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "security_alerts_total",
		Help: "Security alerts raised by type",
	}, []string{"type"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, logins, rotations, reuseDetected, loginBlocks, settlementDeny, alertsRaised, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		logins:          logins,
		rotations:       rotations,
		reuseDetected:   reuseDetected,
		loginBlocks:     loginBlocks,
		settlementDeny:  settlementDeny,
		alertsRaised:    alertsRaised,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// IncLogin counts a login attempt outcome.
func (m *MetricsService) IncLogin(result string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(result).Inc()
}

// IncRotation counts a refresh rotation outcome.
func (m *MetricsService) IncRotation(result string) {
	if m == nil {
		return
	}
	m.rotations.WithLabelValues(result).Inc()
}

// IncReuseDetected counts a confirmed token reuse incident.
func (m *MetricsService) IncReuseDetected() {
	if m == nil {
		return
	}
	m.reuseDetected.Inc()
}

// IncLoginBlock counts a throttle block by tier ("cooldown" or "hard_lock").
func (m *MetricsService) IncLoginBlock(tier string) {
	if m == nil {
		return
	}
	m.loginBlocks.WithLabelValues(tier).Inc()
}

// IncSettlementDenial counts a settlement gate denial.
func (m *MetricsService) IncSettlementDenial() {
	if m == nil {
		return
	}
	m.settlementDeny.Inc()
}

// IncAlert counts a raised security alert by type.
func (m *MetricsService) IncAlert(alertType string) {
	if m == nil {
		return
	}
	m.alertsRaised.WithLabelValues(alertType).Inc()
}
