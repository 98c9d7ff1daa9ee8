package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

const secretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// WebhookSecret rejects webhook deliveries whose secret token does not
// match. An empty configured secret disables the check.
func WebhookSecret(required string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if required == "" {
			c.Next()
			return
		}
		token := c.GetHeader(secretTokenHeader)
		if subtle.ConstantTimeCompare([]byte(token), []byte(required)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": gin.H{
					"code":    "FORBIDDEN",
					"message": "Invalid webhook secret token",
				},
			})
			return
		}
		c.Next()
	}
}
