package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/retgrow/billing/pkg/response"
)

const HeaderCronSecret = "X-Cron-Secret"

// CronSecretMiddleware guards scheduler triggers with a shared secret. When no secret is
// configured the endpoint is unavailable rather than open.
func CronSecretMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, response.MessageT[any](response.APIResponseCodeUnavailable, "cron secret is not configured", nil))
			return
		}
		got := c.GetHeader(HeaderCronSecret)
		if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, response.MessageT[any](response.APIResponseCodeForbidden, "invalid cron secret", nil))
			return
		}
		c.Next()
	}
}
