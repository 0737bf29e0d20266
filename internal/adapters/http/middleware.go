package httpadapter

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/PabloGalante/voicechat/internal/domain"
	"github.com/PabloGalante/voicechat/internal/observability"
)

const requestIDHeader = "X-Request-Id"

// withRequestID tags every request with an id, kept from the caller when
// supplied, and echoes it in the response.
func withRequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = domain.NewRequestID()
		}
		c.Header(requestIDHeader, id)
		c.Request = c.Request.WithContext(observability.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

// withLogging logs every request once it has been served.
func withLogging() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		observability.LoggerFromContext(c.Request.Context()).Info("http request",
			"component", "http",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	}
}

// withCORS allows the configured origins; an empty list or "*" opens it up.
func withCORS(origins []string) gin.HandlerFunc {
	cfg := cors.DefaultConfig()
	cfg.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	cfg.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", requestIDHeader}
	cfg.ExposeHeaders = []string{requestIDHeader}

	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}
