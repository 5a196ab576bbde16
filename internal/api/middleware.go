package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/amanullahtanweer/fluency-coach/internal/logging"
)

const (
	headerRequestID = "X-Request-Id"
	ctxRequestID    = "request_id"
)

// requestID propagates or mints an X-Request-Id for every request.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerRequestID)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(ctxRequestID, id)
		c.Header(headerRequestID, id)
		c.Next()
	}
}

// accessLog logs every request except health probes. 5xx log at error, 4xx
// at warn, the rest at debug. It also feeds the request duration histogram.
func accessLog(log zerolog.Logger, rec HTTPRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		if rec != nil {
			rec.RecordHTTPRequest(c.Request.Context(), c.Request.Method, route, status, latency)
		}
		if isHealthPath(c.Request.URL.Path) {
			return
		}

		var ev *zerolog.Event
		switch {
		case status >= 500:
			ev = log.Error()
		case status >= 400:
			ev = log.Warn()
		default:
			ev = log.Debug()
		}
		ev = ev.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", latency).
			Str("client", c.ClientIP()).
			Str(logging.FieldRequestID, c.GetString(ctxRequestID))
		if errs := c.Errors.ByType(gin.ErrorTypeAny); len(errs) > 0 {
			ev = ev.Str("error", errs.String())
		}
		if latency > 500*time.Millisecond {
			ev = ev.Bool("slow", true)
		}
		ev.Msg("request")
	}
}

func isHealthPath(path string) bool {
	return path == "/health" || strings.HasPrefix(path, "/metrics")
}

// recovery turns a handler panic into a 500 INTERNAL_ERROR body.
func recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().
					Interface("panic", r).
					Str("path", c.Request.URL.Path).
					Str(logging.FieldRequestID, c.GetString(ctxRequestID)).
					Msg("panic recovered")
				c.AbortWithStatusJSON(http.StatusInternalServerError, &Error{
					Message: "Internal server error",
					Type:    TypeInternal,
				})
			}
		}()
		c.Next()
	}
}

// rateLimit admits requests per client IP. A limiter failure lets the
// request through.
func rateLimit(limiter Limiter, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		d, err := limiter.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			log.Warn().Err(err).Str("client", c.ClientIP()).Msg("rate limiter unavailable")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		if !d.Allowed {
			c.Header("Retry-After", strconv.Itoa(int(d.ResetAfter.Seconds())))
			respondError(c, newRateLimitedError())
			return
		}
		c.Next()
	}
}
