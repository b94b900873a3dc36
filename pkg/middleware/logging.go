package middleware

import (
	"time"

	"github.com/evault/evault/pkg/logger"
	"github.com/gin-gonic/gin"
)

// RequestLogger writes one line per request through log. Server errors are
// logged at error level together with any errors attached to the context.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		latency := time.Since(start)
		switch {
		case status >= 500:
			log.Errorf("%s %s %d %s user=%q errors=%q", c.Request.Method, path, status, latency, PrincipalFrom(c), c.Errors.String())
		case status >= 400:
			log.Infof("%s %s %d %s user=%q", c.Request.Method, path, status, latency, PrincipalFrom(c))
		default:
			log.Debugf("%s %s %d %s user=%q", c.Request.Method, path, status, latency, PrincipalFrom(c))
		}
	}
}
