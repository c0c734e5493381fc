package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ridemart/auth-api/internal/models"
	"github.com/ridemart/auth-api/internal/service"
	appErrors "github.com/ridemart/auth-api/pkg/errors"
	"github.com/ridemart/auth-api/pkg/response"
)

// ThrottleHandler exposes the admin override on login blocks.
type ThrottleHandler struct {
	service *service.ThrottleService
}

// NewThrottleHandler creates a new handler.
func NewThrottleHandler(svc *service.ThrottleService) *ThrottleHandler {
	return &ThrottleHandler{service: svc}
}

// ClearBlocks godoc
// @Summary Clear login blocks
// @Description Admin override clearing all throttle blocks for an identifier
// @Tags Security
// @Accept json
// @Produce json
// @Param payload body models.ClearBlocksRequest true "Identifier payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /security/blocks/clear [post]
func (h *ThrottleHandler) ClearBlocks(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.ClearBlocksRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "identifier required"))
		return
	}

	cleared, err := h.service.ClearBlocks(c.Request.Context(), req.Identifier, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, gin.H{"cleared_blocks": cleared}, nil)
}
