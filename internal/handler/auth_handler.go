package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ridemart/auth-api/internal/models"
	"github.com/ridemart/auth-api/internal/service"
	appErrors "github.com/ridemart/auth-api/pkg/errors"
	"github.com/ridemart/auth-api/pkg/response"
)

// AuthHandler wires HTTP endpoints to the auth service.
type AuthHandler struct {
	service *service.AuthService
	users   *service.UserService
}

// NewAuthHandler creates a new handler.
func NewAuthHandler(svc *service.AuthService, users *service.UserService) *AuthHandler {
	return &AuthHandler{service: svc, users: users}
}

// Login godoc
// @Summary Authenticate user
// @Description Authenticate user by email and password
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.LoginRequest true "Login payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid login payload"))
		return
	}
	req.Device = deviceFromRequest(c)
	req.Country = c.GetHeader("X-Country-Code")

	outcome, err := h.service.Login(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	if outcome.Throttle != nil {
		meta := map[string]interface{}{}
		if outcome.Throttle.LockedUntil != nil {
			meta["locked_until"] = outcome.Throttle.LockedUntil
		}
		if outcome.Throttle.CooldownUntil != nil {
			meta["cooldown_until"] = outcome.Throttle.CooldownUntil
		}
		response.Denied(c, http.StatusTooManyRequests, appErrors.ErrTooManyAttempts.Code, outcome.Throttle.Reason, meta)
		return
	}

	response.JSON(c, http.StatusOK, outcome.Response, nil)
}

// Refresh godoc
// @Summary Refresh access token
// @Description Exchange a refresh token for its rotated successor pair
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.RefreshRequest true "Refresh payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req models.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid refresh payload"))
		return
	}
	req.Device = deviceFromRequest(c)

	res, err := h.service.Refresh(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, res, nil)
}

// Logout godoc
// @Summary Logout current session
// @Description Revoke the session family owning the refresh token
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.LogoutRequest true "Refresh token"
// @Success 204 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Security BearerAuth
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var payload models.LogoutRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "refresh token required"))
		return
	}

	if err := h.service.Logout(c.Request.Context(), payload.RefreshToken, claims.UserID, deviceFromRequest(c)); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// LogoutAll godoc
// @Summary Logout all sessions
// @Description Revoke every active session of the authenticated user
// @Tags Authentication
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Security BearerAuth
// @Router /auth/logout-all [post]
func (h *AuthHandler) LogoutAll(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	count, err := h.service.LogoutAll(c.Request.Context(), claims.UserID, deviceFromRequest(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, gin.H{"revoked_sessions": count}, nil)
}

// Me godoc
// @Summary Current user
// @Description Return the authenticated user's profile
// @Tags Authentication
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Security BearerAuth
// @Router /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	user, err := h.users.Get(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, user, nil)
}
