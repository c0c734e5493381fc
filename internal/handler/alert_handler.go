package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ridemart/auth-api/internal/models"
	"github.com/ridemart/auth-api/internal/service"
	appErrors "github.com/ridemart/auth-api/pkg/errors"
	"github.com/ridemart/auth-api/pkg/response"
)

// AlertHandler exposes the security alert review surface.
type AlertHandler struct {
	service *service.AlertService
}

// NewAlertHandler creates a new handler.
func NewAlertHandler(svc *service.AlertService) *AlertHandler {
	return &AlertHandler{service: svc}
}

// List godoc
// @Summary List security alerts
// @Description List security alerts with optional filters. Admins see all alerts; other roles only their own.
// @Tags Security
// @Produce json
// @Param alert_type query string false "Alert type"
// @Param severity query string false "Severity"
// @Param acknowledged query bool false "Acknowledged filter"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Security BearerAuth
// @Router /security/alerts [get]
func (h *AlertHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	filter, err := alertFilterFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if claims.Role != models.RoleAdmin {
		filter.UserID = claims.UserID
	}

	alerts, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, alerts, pagination)
}

// Acknowledge godoc
// @Summary Acknowledge an alert
// @Description Mark one of the caller's security alerts as acknowledged
// @Tags Security
// @Produce json
// @Param id path string true "Alert ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /security/alerts/{id}/acknowledge [post]
func (h *AlertHandler) Acknowledge(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.Acknowledge(c.Request.Context(), c.Param("id"), claims.UserID); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// Review godoc
// @Summary Review an alert
// @Description Record an admin verdict with notes on a security alert
// @Tags Security
// @Accept json
// @Produce json
// @Param id path string true "Alert ID"
// @Param payload body models.ReviewAlertRequest true "Review payload"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /security/alerts/{id}/review [post]
func (h *AlertHandler) Review(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.ReviewAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid review payload"))
		return
	}

	if err := h.service.Review(c.Request.Context(), c.Param("id"), claims.UserID, req.Notes); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// Export godoc
// @Summary Export security alerts
// @Description Export alerts matching the filters as CSV or PDF
// @Tags Security
// @Produce text/csv
// @Produce application/pdf
// @Param format path string true "Export format (csv or pdf)"
// @Success 200 {file} byte
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /security/alerts/export/{format} [get]
func (h *AlertHandler) Export(c *gin.Context) {
	filter, err := alertFilterFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	format := c.Param("format")
	payload, contentType, err := h.service.Export(c.Request.Context(), filter, format)
	if err != nil {
		response.Error(c, err)
		return
	}

	filename := fmt.Sprintf("security-alerts-%s.%s", time.Now().UTC().Format("20060102-150405"), format)
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, contentType, payload)
}

// Overview godoc
// @Summary Security overview
// @Description Aggregated 24h security counters for the admin dashboard
// @Tags Security
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /security/overview [get]
func (h *AlertHandler) Overview(c *gin.Context) {
	overview, err := h.service.Overview(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, overview, nil)
}

func alertFilterFromQuery(c *gin.Context) (models.AlertFilter, error) {
	var filter models.AlertFilter

	if v := c.Query("alert_type"); v != "" {
		alertType := models.AlertType(v)
		filter.AlertType = &alertType
	}
	if v := c.Query("severity"); v != "" {
		severity := models.AlertSeverity(v)
		filter.Severity = &severity
	}
	if v := c.Query("acknowledged"); v != "" {
		acknowledged, err := strconv.ParseBool(v)
		if err != nil {
			return filter, appErrors.Clone(appErrors.ErrValidation, "acknowledged must be a boolean")
		}
		filter.Acknowledged = &acknowledged
	}
	if v := c.Query("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, appErrors.Clone(appErrors.ErrValidation, "since must be RFC3339")
		}
		filter.Since = &since
	}
	if v := c.Query("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			return filter, appErrors.Clone(appErrors.ErrValidation, "page must be a positive integer")
		}
		filter.Page = page
	}
	if v := c.Query("page_size"); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil || size < 1 {
			return filter, appErrors.Clone(appErrors.ErrValidation, "page_size must be a positive integer")
		}
		filter.PageSize = size
	}

	return filter, nil
}
