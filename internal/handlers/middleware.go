package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RequestIDHeader carries the per-request correlation id.
const RequestIDHeader = "X-Request-ID"

// HTTPObserver records request outcomes.
type HTTPObserver interface {
	ObserveHTTP(route, method string, status int, elapsed time.Duration)
}

// LimitBody caps request bodies at n bytes.
func LimitBody(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		}
		c.Next()
	}
}

// RequestLogger logs one line per request and echoes a request id.
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	logger = logger.Named("access")
	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(RequestIDHeader, requestID)

		c.Next()

		fields := []zap.Field{
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Error("request completed", fields...)
			return
		}
		logger.Info("request completed", fields...)
	}
}

// Metrics reports every request to observer under its route template.
func Metrics(observer HTTPObserver) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		observer.ObserveHTTP(route, c.Request.Method, c.Writer.Status(), time.Since(start))
	}
}
