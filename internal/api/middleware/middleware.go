// Package middleware provides HTTP middleware for the API server.
package middleware

import (
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/rostilos/CodeCrow-sub008/pkg/errors"
	"github.com/rostilos/CodeCrow-sub008/pkg/idgen"
	"github.com/rostilos/CodeCrow-sub008/pkg/logger"
	"github.com/rostilos/CodeCrow-sub008/pkg/telemetry"
)

// Context keys set by the middleware
const (
	ContextKeyRequestID = "request_id"
	ContextKeySubject   = "subject"
)

// LoggerConfig holds the configuration for the Logger middleware
type LoggerConfig struct {
	// AccessLog determines if HTTP request logs should be printed at info level
	// When true, successful requests (status < 400) are logged; when false, they are not
	AccessLog bool
}

// Logger returns a middleware that logs HTTP requests and records request
// metrics. If cfg is nil, successful requests are not logged.
func Logger(cfg *LoggerConfig) gin.HandlerFunc {
	accessLog := false
	if cfg != nil {
		accessLog = cfg.AccessLog
	}

	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		// route template keeps metric cardinality bounded
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		telemetry.GetMetrics().RecordHTTPRequest(c.Request.Context(), c.Request.Method, route, status, latency.Seconds())

		fields := []zap.Field{
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.String("ip", c.ClientIP()),
			zap.String("user_agent", c.Request.UserAgent()),
			zap.Duration("latency", latency),
			zap.String(ContextKeyRequestID, c.GetString(ContextKeyRequestID)),
		}

		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("error", c.Errors.String()))
		}

		switch {
		case status >= 500:
			logger.Error("Server error", fields...)
		case status >= 400:
			logger.Warn("Client error", fields...)
		default:
			if accessLog {
				logger.Info("Request", fields...)
			}
		}
	}
}

// Recovery returns a middleware that recovers from panics
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				stack := debug.Stack()
				logger.Error("Panic recovered",
					zap.Any("error", err),
					zap.ByteString("stack", stack),
					zap.String("path", c.Request.URL.Path),
					zap.String("method", c.Request.Method),
				)

				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"code":    errors.ErrCodeInternal,
					"message": "Internal server error",
				})
			}
		}()
		c.Next()
	}
}

// RequestID returns a middleware that adds a request ID to the context
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.Request.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = idgen.NewRequestID()
		}

		c.Set(ContextKeyRequestID, requestID)
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

// BodyLimit caps request bodies at maxBytes; 0 disables the limit
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}

// RateLimit returns a middleware allowing rps requests per second per client
// IP with the given burst. rps <= 0 disables limiting.
func RateLimit(rps float64, burst int) gin.HandlerFunc {
	if rps <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if burst <= 0 {
		burst = 1
	}

	var mu sync.Mutex
	limiters := make(map[string]*rate.Limiter)

	return func(c *gin.Context) {
		ip := c.ClientIP()
		mu.Lock()
		l, ok := limiters[ip]
		if !ok {
			l = rate.NewLimiter(rate.Limit(rps), burst)
			limiters[ip] = l
		}
		mu.Unlock()

		if !l.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code":    errors.ErrCodeRateLimited,
				"message": "Too many requests",
			})
			return
		}
		c.Next()
	}
}

// ErrorHandler returns a middleware that renders errors attached with
// c.Error. In production mode (debugMode=false) internal error details are
// hidden.
func ErrorHandler(debugMode bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err

		if appErr, ok := errors.AsAppError(err); ok {
			response := gin.H{
				"code": appErr.Code,
			}
			if appErr.HTTPStatus() >= http.StatusInternalServerError && !debugMode {
				response["message"] = "Internal server error"
			} else {
				response["message"] = appErr.Message
			}
			if debugMode && appErr.Details != nil {
				response["details"] = appErr.Details
			}
			c.JSON(appErr.HTTPStatus(), response)
			return
		}

		msg := "Internal server error"
		if debugMode {
			msg = err.Error()
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    errors.ErrCodeInternal,
			"message": msg,
		})
	}
}

// TokenValidator is an interface for validating JWT tokens
type TokenValidator interface {
	ValidateToken(token string) (subject string, err error)
}

// JWTAuth returns a middleware that validates bearer tokens
func JWTAuth(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortWith(c, errors.ErrUnauthorized("Authorization header required"))
			return
		}

		const bearerPrefix = "Bearer "
		if len(authHeader) <= len(bearerPrefix) || authHeader[:len(bearerPrefix)] != bearerPrefix {
			abortWith(c, errors.ErrUnauthorized("Invalid authorization format"))
			return
		}

		subject, err := validator.ValidateToken(authHeader[len(bearerPrefix):])
		if err != nil {
			logger.Debug("JWT validation failed", zap.Error(err))
			abortWith(c, errors.ErrUnauthorized("Invalid or expired token"))
			return
		}

		c.Set(ContextKeySubject, subject)
		c.Next()
	}
}

func abortWith(c *gin.Context, err *errors.AppError) {
	c.AbortWithStatusJSON(err.HTTPStatus(), gin.H{
		"code":    err.Code,
		"message": err.Message,
	})
}
