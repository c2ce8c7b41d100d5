package handlers

import (
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/titinauta/journey-engine/pkg/logger"
)

const (
	// HeaderRequestID carries the request id in both directions.
	HeaderRequestID = "X-Request-ID"

	// HeaderUserID identifies the authenticated caller. An upstream gateway
	// sets it after authentication.
	HeaderUserID = "X-User-ID"

	// HeaderCaregiver overrides the caregiver label used in texts.
	HeaderCaregiver = "X-Caregiver-Name"

	keyRequestID = "request_id"
	keyUserID    = "user_id"
	keyLogger    = "logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST CONTEXT
// ══════════════════════════════════════════════════════════════════════════════

// RequestID assigns every request an id, echoes it in the response and puts a
// request-scoped logger into the request context.
func RequestID(base *logger.Logger) gin.HandlerFunc {
	if base == nil {
		base = logger.Nop()
	}
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(HeaderRequestID))
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(keyRequestID, id)
		c.Header(HeaderRequestID, id)

		reqLog := base.WithRequestID(id)
		c.Set(keyLogger, reqLog)
		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context(), reqLog))
		c.Next()
	}
}

// RequestLogger logs one line per request.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []logger.Field{
			logger.String("method", c.Request.Method),
			logger.String("path", c.FullPath()),
			logger.Int("status", status),
			logger.Latency(time.Since(start)),
			logger.String("ip", c.ClientIP()),
		}
		if user := c.GetString(keyUserID); user != "" {
			fields = append(fields, logger.UserID(user))
		}

		log := LoggerFrom(c)
		switch {
		case status >= http.StatusInternalServerError:
			log.Error("http request", fields...)
		case status >= http.StatusBadRequest:
			log.Warn("http request", fields...)
		default:
			log.Info("http request", fields...)
		}
	}
}

// Recovery turns a panic into a 500 envelope.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				LoggerFrom(c).Error("panic recovered",
					logger.Any("error", err),
					logger.String("stack", string(debug.Stack())),
					logger.String("path", c.Request.URL.Path),
				)
				RespondErrorCode(c, http.StatusInternalServerError, "internal_server_error", "An unexpected error occurred")
			}
		}()
		c.Next()
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CALLER IDENTITY
// ══════════════════════════════════════════════════════════════════════════════

// CallerIdentity reads X-User-ID. When required, requests without it are
// rejected with 401.
func CallerIdentity(required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if user == "" && required {
			RespondErrorCode(c, http.StatusUnauthorized, "unauthenticated", "X-User-ID header is required")
			return
		}
		c.Set(keyUserID, user)
		c.Next()
	}
}

// APIKeyAuth rejects requests whose X-API-Key (or bearer token) is not one
// of keys. An empty key list disables the check.
func APIKeyAuth(keys []string) gin.HandlerFunc {
	valid := make(map[string]bool, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			valid[k] = true
		}
	}
	return func(c *gin.Context) {
		if len(valid) == 0 {
			c.Next()
			return
		}
		key := c.GetHeader("X-API-Key")
		if key == "" {
			key = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		}
		if key == "" {
			RespondErrorCode(c, http.StatusUnauthorized, "missing_api_key", "API key is required")
			return
		}
		if !valid[key] {
			RespondErrorCode(c, http.StatusUnauthorized, "invalid_api_key", "Invalid API key")
			return
		}
		c.Next()
	}
}

// CORS allows the configured origins. "*" allows any origin.
func CORS(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Authorization", "Content-Type", "X-API-Key", HeaderRequestID, HeaderUserID, HeaderCaregiver},
		ExposeHeaders: []string{HeaderRequestID},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}

// ══════════════════════════════════════════════════════════════════════════════
// ACCESSORS
// ══════════════════════════════════════════════════════════════════════════════

// RequestIDOf returns the request id set by the RequestID middleware.
func RequestIDOf(c *gin.Context) string {
	return c.GetString(keyRequestID)
}

// UserID returns the caller set by CallerIdentity.
func UserID(c *gin.Context) string {
	return c.GetString(keyUserID)
}

// Caregiver returns the caregiver label from the query or header.
func Caregiver(c *gin.Context) string {
	if v := strings.TrimSpace(c.Query("caregiver")); v != "" {
		return v
	}
	return strings.TrimSpace(c.GetHeader(HeaderCaregiver))
}

// LoggerFrom returns the request-scoped logger.
func LoggerFrom(c *gin.Context) *logger.Logger {
	if v, ok := c.Get(keyLogger); ok {
		if l, ok := v.(*logger.Logger); ok {
			return l
		}
	}
	return logger.FromContext(c.Request.Context())
}
