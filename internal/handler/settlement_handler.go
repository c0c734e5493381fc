package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ridemart/auth-api/internal/models"
	"github.com/ridemart/auth-api/internal/service"
	appErrors "github.com/ridemart/auth-api/pkg/errors"
	"github.com/ridemart/auth-api/pkg/response"
)

// SettlementHandler exposes the negative-balance ledger and restriction
// administration endpoints.
type SettlementHandler struct {
	service *service.SettlementService
}

// NewSettlementHandler creates a new handler.
func NewSettlementHandler(svc *service.SettlementService) *SettlementHandler {
	return &SettlementHandler{service: svc}
}

// MyBalance godoc
// @Summary Current balance
// @Description Return the caller's negative-balance ledger and restriction state
// @Tags Settlement
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Security BearerAuth
// @Router /settlement/balance [get]
func (h *SettlementHandler) MyBalance(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	ownerType := claims.Role.OwnerType()
	if ownerType == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "role carries no balance ledger"))
		return
	}

	balance, err := h.service.GetBalance(c.Request.Context(), ownerType, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if balance == nil {
		response.JSON(c, http.StatusOK, gin.H{
			"owner_type":      ownerType,
			"owner_id":        claims.UserID,
			"current_balance": 0,
			"is_restricted":   false,
		}, nil)
		return
	}

	response.JSON(c, http.StatusOK, balance, nil)
}

// Accrue godoc
// @Summary Accrue cash commission
// @Description Record commission owed on one cash transaction
// @Tags Settlement
// @Accept json
// @Produce json
// @Param payload body models.CashAccrual true "Accrual payload"
// @Success 204 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /settlement/accrue [post]
func (h *SettlementHandler) Accrue(c *gin.Context) {
	var req models.CashAccrual
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid accrual payload"))
		return
	}

	if err := h.service.AccrueCashCommission(c.Request.Context(), req); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// Credit godoc
// @Summary Credit online settlement
// @Description Reduce an owner's outstanding balance by a settled amount
// @Tags Settlement
// @Accept json
// @Produce json
// @Param payload body models.SettlementCredit true "Credit payload"
// @Success 204 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /settlement/credit [post]
func (h *SettlementHandler) Credit(c *gin.Context) {
	var req models.SettlementCredit
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid credit payload"))
		return
	}

	if err := h.service.CreditOnlineSettlement(c.Request.Context(), req); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// GetBalance godoc
// @Summary Inspect a ledger
// @Description Admin lookup of one owner's negative-balance ledger
// @Tags Settlement
// @Produce json
// @Param owner_type path string true "Owner type (driver or restaurant)"
// @Param owner_id path string true "Owner ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /settlement/balances/{owner_type}/{owner_id} [get]
func (h *SettlementHandler) GetBalance(c *gin.Context) {
	ownerType, err := ownerTypeParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	balance, err := h.service.GetBalance(c.Request.Context(), ownerType, c.Param("owner_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if balance == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "no balance ledger for owner"))
		return
	}

	response.JSON(c, http.StatusOK, balance, nil)
}

// ClearRestriction godoc
// @Summary Clear a settlement restriction
// @Description Admin override lifting an owner's restriction flag
// @Tags Settlement
// @Produce json
// @Param owner_type path string true "Owner type (driver or restaurant)"
// @Param owner_id path string true "Owner ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /settlement/balances/{owner_type}/{owner_id}/restriction [delete]
func (h *SettlementHandler) ClearRestriction(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	ownerType, err := ownerTypeParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	if err := h.service.ClearRestriction(c.Request.Context(), ownerType, c.Param("owner_id"), claims.UserID); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// SetThreshold godoc
// @Summary Set a settlement threshold
// @Description Create or replace the active threshold policy for an owner type
// @Tags Settlement
// @Accept json
// @Produce json
// @Param payload body models.ThresholdRequest true "Threshold payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /settlement/thresholds [put]
func (h *SettlementHandler) SetThreshold(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.ThresholdRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid threshold payload"))
		return
	}

	threshold, err := h.service.SetThreshold(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusCreated, threshold, nil)
}

// ListThresholds godoc
// @Summary List settlement thresholds
// @Description List all configured threshold policy rows
// @Tags Settlement
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /settlement/thresholds [get]
func (h *SettlementHandler) ListThresholds(c *gin.Context) {
	thresholds, err := h.service.ListThresholds(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, thresholds, nil)
}

func ownerTypeParam(c *gin.Context) (models.OwnerType, error) {
	switch ownerType := models.OwnerType(c.Param("owner_type")); ownerType {
	case models.OwnerDriver, models.OwnerRestaurant:
		return ownerType, nil
	default:
		return "", appErrors.Clone(appErrors.ErrValidation, "owner_type must be driver or restaurant")
	}
}
