package httpmiddleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/libs/metrics"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
	maxRequestIDLen = 128
)

// RequestID reuses a caller supplied X-Request-ID when it is short enough
// and otherwise mints one. The id is echoed on the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" || len(id) > maxRequestIDLen {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func RequestIDFrom(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// Logger writes one access line per request and feeds m when non-nil.
// Register it after the trace middleware so the span is known.
func Logger(logger *slog.Logger, m *metrics.HTTP) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m != nil {
			m.Begin()
		}
		began := time.Now()
		c.Next()
		took := time.Since(began)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		if m != nil {
			m.Observe(c.Request.Method, route, status, took)
		}

		ctx := c.Request.Context()
		fields := []any{
			"method", c.Request.Method,
			"path", route,
			"status", status,
			"latency", took,
			"client_ip", c.ClientIP(),
			"request_id", RequestIDFrom(c),
		}
		if sc := oteltrace.SpanContextFromContext(ctx); sc.HasTraceID() {
			fields = append(fields, "trace_id", sc.TraceID().String())
		}
		if errs := c.Errors.ByType(gin.ErrorTypeAny); len(errs) > 0 {
			fields = append(fields, "errors", errs.String())
		}

		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.Log(ctx, level, "request", fields...)
	}
}

// Recovery turns a handler panic into a 500 with the router error body.
func Recovery(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			logger.Error("panic",
				"error", rec,
				"path", c.Request.URL.Path,
				"request_id", RequestIDFrom(c),
				"stack", string(debug.Stack()),
			)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"code":       "INTERNAL_ERROR",
				"message":    "internal error",
				"abort_code": 0,
			})
		}()
		c.Next()
	}
}
