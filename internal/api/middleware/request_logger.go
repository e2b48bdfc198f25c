package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/0xabdo/the-market/internal/metrics"
)

// RequestLogger logs basic request information along with the request_id
// and counts admitted requests.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		if !c.IsAborted() && c.Writer.Status() < 400 {
			metrics.IncAdmitted()
		}
		entry := GetRequestLogger(c)
		entry.WithFields(logrus.Fields{
			"status":  c.Writer.Status(),
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"latency": latency.String(),
			"client":  c.ClientIP(),
		}).Info("handled request")
	}
}
