package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-merit-api/internal/service"
)

// AuditContext attaches the caller's address and user agent to the request
// context so audit entries written by the services can carry them.
func AuditContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		info := service.RequestInfo{
			IPAddress: c.ClientIP(),
			UserAgent: c.GetHeader("User-Agent"),
		}
		c.Request = c.Request.WithContext(service.WithRequestInfo(c.Request.Context(), info))
		c.Next()
	}
}
