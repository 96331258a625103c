package middleware

import (
	"time"

	"clinical-mdr-api/logger"
	"clinical-mdr-api/metrics"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const RequestIDHeader = "X-Request-ID"

// RequestLogger tags each request with an id and records its outcome.
func RequestLogger(log *logger.Logger, m *metrics.Metrics) gin.HandlerFunc {
	httpLog := log.HTTPLogger()
	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("request_id", requestID)
		c.Header(RequestIDHeader, requestID)

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		for _, err := range c.Errors {
			httpLog.Error().Err(err.Err).Str("request_id", requestID).Msg("request error")
		}
		httpLog.LogRequest(c.Request.Method, c.Request.URL.Path, status, latency, requestID)
		if m != nil {
			m.ObserveRequest(c.Request.Method, route, status, latency)
		}
	}
}

// CORS allows browser clients from any origin.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, X-Request-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
