package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"gclipool-go/internal/logging"
)

// RequestLogger logs HTTP requests
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		modelVal, _ := c.Get("model")
		credVal, _ := c.Get("credential_id")
		logging.WithReq(c, log.Fields{
			"status":     c.Writer.Status(),
			"latency_ms": logging.DurationMS(time.Since(start)),
			"user_agent": c.Request.UserAgent(),
			"model":      modelVal,
			"credential": credVal,
		}).Info("http_request")
	}
}
