package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ridemart/auth-api/internal/models"
	"github.com/ridemart/auth-api/internal/service"
	appErrors "github.com/ridemart/auth-api/pkg/errors"
	"github.com/ridemart/auth-api/pkg/response"
)

// SettlementGate blocks operational endpoints for restricted earners. The
// check reads fresh state on every request; admins and customers pass
// through untouched. A gate failure is a hard error, never a silent pass.
func SettlementGate(settlements *service.SettlementService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claimsValue, exists := c.Get(ContextUserKey)
		if !exists {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		claims := claimsValue.(*models.SessionClaims)

		decision, err := settlements.CheckRestriction(c.Request.Context(), claims.UserID, claims.Role)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		if decision.Restricted {
			meta := map[string]interface{}{"settlement_required": true}
			if decision.Balance != nil {
				meta["outstanding_balance"] = *decision.Balance
			}
			response.Denied(c, http.StatusForbidden, appErrors.ErrSettlementRequired.Code, decision.Reason, meta)
			c.Abort()
			return
		}

		c.Next()
	}
}

// RequireSettledDriver gates only driver accounts; other roles pass through.
func RequireSettledDriver(settlements *service.SettlementService) gin.HandlerFunc {
	return requireSettledRole(settlements, models.RoleDriver)
}

// RequireSettledRestaurant gates only restaurant accounts.
func RequireSettledRestaurant(settlements *service.SettlementService) gin.HandlerFunc {
	return requireSettledRole(settlements, models.RoleRestaurant)
}

func requireSettledRole(settlements *service.SettlementService, role models.UserRole) gin.HandlerFunc {
	gate := SettlementGate(settlements)
	return func(c *gin.Context) {
		claimsValue, exists := c.Get(ContextUserKey)
		if !exists {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if claimsValue.(*models.SessionClaims).Role != role {
			c.Next()
			return
		}
		gate(c)
	}
}
