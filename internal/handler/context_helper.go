package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/ridemart/auth-api/internal/middleware"
	"github.com/ridemart/auth-api/internal/models"
)

func claimsFromContext(c *gin.Context) *models.SessionClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.SessionClaims)
	if !ok {
		return nil
	}
	return claims
}

// deviceFromRequest collects the device/network metadata clients send on
// auth endpoints. All fields are optional; absent headers degrade the
// throttle key to the identifier alone.
func deviceFromRequest(c *gin.Context) models.DeviceInfo {
	return models.DeviceInfo{
		DeviceID:          c.GetHeader("X-Device-ID"),
		DeviceFingerprint: c.GetHeader("X-Device-Fingerprint"),
		IPAddress:         c.ClientIP(),
		UserAgent:         c.GetHeader("User-Agent"),
	}
}
