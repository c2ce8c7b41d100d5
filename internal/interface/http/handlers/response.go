package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/titinauta/journey-engine/internal/domain/shared"
	"github.com/titinauta/journey-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE ENVELOPE
// ══════════════════════════════════════════════════════════════════════════════

// JSONResponse is the envelope of every API response.
type JSONResponse struct {
	Success   bool          `json:"success"`
	Data      any           `json:"data,omitempty"`
	Error     *APIError     `json:"error,omitempty"`
	Meta      *ResponseMeta `json:"meta,omitempty"`
	RequestID string        `json:"request_id,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ResponseMeta contains response metadata.
type ResponseMeta struct {
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version,omitempty"`
}

// RespondOK writes a successful envelope.
func RespondOK(c *gin.Context, status int, data any) {
	c.JSON(status, JSONResponse{
		Success:   true,
		Data:      data,
		Meta:      &ResponseMeta{Timestamp: time.Now().UTC(), Version: "v1"},
		RequestID: RequestIDOf(c),
	})
}

// RespondErrorCode writes an error envelope with an explicit status and code.
func RespondErrorCode(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, JSONResponse{
		Success:   false,
		Error:     &APIError{Code: code, Message: message},
		Meta:      &ResponseMeta{Timestamp: time.Now().UTC()},
		RequestID: RequestIDOf(c),
	})
}

// RespondError maps a domain error to a status code and writes it. Messages
// of external failures never reach the client.
func RespondError(c *gin.Context, err error) {
	status, code := StatusFor(err)
	if status >= http.StatusInternalServerError {
		LoggerFrom(c).Error("request failed", logger.Err(err), logger.Int("status", status))
	} else {
		LoggerFrom(c).Debug("request rejected", logger.Err(err), logger.Int("status", status))
	}
	RespondErrorCode(c, status, code, shared.PublicMessage(err))
}

// StatusFor returns the HTTP status and error code for err.
func StatusFor(err error) (int, string) {
	var de *shared.DomainError
	switch {
	case shared.IsValidation(err):
		return http.StatusBadRequest, "validation_error"
	case shared.IsForbidden(err):
		return http.StatusForbidden, "forbidden"
	case shared.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case shared.IsConflict(err):
		return http.StatusConflict, "conflict"
	case shared.IsExternalService(err):
		return http.StatusServiceUnavailable, "service_unavailable"
	case errors.As(err, &de):
		return http.StatusUnprocessableEntity, "domain_error"
	default:
		return http.StatusInternalServerError, "internal_server_error"
	}
}
