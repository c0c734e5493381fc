package middleware

import (
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ridemart/auth-api/internal/models"
	"github.com/ridemart/auth-api/internal/repository"
)

// Audit records an audit trail entry after successful requests on
// sensitive routes. Failures are never written here; services log their
// own denials with richer context.
func Audit(repo *repository.AuditRepository, action, resource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now().UTC()
		c.Next()

		if c.Writer.Status() >= 400 {
			return
		}

		var userID *string
		if claims, ok := c.Get(ContextUserKey); ok {
			user := claims.(*models.SessionClaims)
			userID = &user.UserID
		}

		details, _ := json.Marshal(map[string]interface{}{
			"path":    c.FullPath(),
			"method":  c.Request.Method,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).Milliseconds(),
		})

		_ = repo.Create(c.Request.Context(), &models.AuditLog{
			UserID:    userID,
			Action:    action,
			Severity:  models.AuditSeverityInfo,
			Resource:  resource,
			Details:   details,
			IPAddress: c.ClientIP(),
			UserAgent: c.GetHeader("User-Agent"),
		})
	}
}
