package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/lifedrop/lifedrop-api/internal/handler"
	"github.com/lifedrop/lifedrop-api/pkg/logger"
)

// Logger logs one line per request. Bodies are never logged since they
// carry passwords and verification codes.
func Logger(log *logger.Logger) gin.HandlerFunc {
	zl := log.Named("http").Zerolog()

	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" && c.Query("token") == "" {
			path = path + "?" + raw
		}

		c.Next()

		status := c.Writer.Status()
		var evt *zerolog.Event
		switch {
		case status >= 500:
			evt = zl.Error()
		case status >= 400:
			evt = zl.Warn()
		default:
			evt = zl.Info()
		}
		if len(c.Errors) > 0 {
			evt = evt.Str("error", c.Errors.Last().Error())
		}

		evt.Str("request_id", c.GetString(ContextRequestID)).
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Str("user_id", handler.ActorID(c)).
			Str("user_agent", c.Request.UserAgent()).
			Msg("Request processed")
	}
}
