package api

import (
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/kilianp07/homefix/core/apperr"
	"github.com/kilianp07/homefix/core/logger"
	"github.com/kilianp07/homefix/core/monitoring"
)

const (
	requestIDKey    = "request_id"
	requestIDHeader = "X-Request-ID"
)

// RequestID ensures every request has an ID for tracing and logs. A
// client supplied X-Request-ID is kept.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Header(requestIDHeader, rid)
		c.Next()
	}
}

// GetRequestID extracts the request id from the gin context.
func GetRequestID(c *gin.Context) string {
	if c == nil {
		return ""
	}
	return c.GetString(requestIDKey)
}

// Logger writes one line per request.
func Logger(log logger.Logger) gin.HandlerFunc {
	log = logger.OrNop(log)
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		line := "request_id=%s method=%s path=%s status=%d latency_ms=%.3f ip=%s"
		args := []any{
			GetRequestID(c), c.Request.Method, c.Request.URL.Path, status,
			float64(time.Since(start).Microseconds()) / 1000.0, c.ClientIP(),
		}
		if status >= http.StatusInternalServerError {
			log.Errorf(line, args...)
			return
		}
		log.Infof(line, args...)
	}
}

// Recovery turns a handler panic into a 500 response and reports it.
func Recovery(log logger.Logger) gin.HandlerFunc {
	log = logger.OrNop(log)
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		err := fmt.Errorf("panic: %v", recovered)
		log.Errorf("request_id=%s %v", GetRequestID(c), err)
		monitoring.CaptureException(err, map[string]string{
			"component":  "api",
			"route":      c.FullPath(),
			"request_id": GetRequestID(c),
		})
		respondError(c, apperr.New(apperr.CodeInternal, "internal error"))
	})
}

// CORS allows browser clients from the given origins. "*" allows any origin.
func CORS(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", requestIDHeader},
		ExposeHeaders: []string{requestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}
