// Package handlers provides HTTP handler implementations for the public API.
//
// This file defines the standard response utilities: the error envelope,
// consistent JSON serialization, and helpers shared by all endpoints.
//
// Example error response:
//
//	HTTP/1.1 429 Too Many Requests
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "daily_limit_exceeded",
//	  "message": "daily request limit reached",
//	  "cooldown_sec": 3600
//	}
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Arthurgann/hvostosovet/internal/http/middleware"
	"github.com/Arthurgann/hvostosovet/internal/services"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
// CooldownSec and Upsell appear only on limit rejections.
type ErrorResponse struct {
	// Correlates server logs, client errors, and dedup records
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"daily_limit_exceeded"`
	// Human-readable message (safe to show to users)
	Message string `json:"message,omitempty" example:"daily request limit reached"`
	// Seconds until the limit lifts (limit rejections only)
	CooldownSec int `json:"cooldown_sec,omitempty"`
	// Purchase prompt attached to free-plan rejections
	Upsell *services.Upsell `json:"upsell,omitempty"`
}

// fail aborts the request with a structured error. 5xx responses are
// additionally logged with the request-scoped logger.
func fail(c *gin.Context, status int, code, msg string) {
	failWith(c, status, ErrorResponse{Code: code, Message: msg})
}

// failWith is the full-envelope variant used for limit rejections.
func failWith(c *gin.Context, status int, resp ErrorResponse) {
	if resp.RequestID == "" {
		resp.RequestID = c.Writer.Header().Get(middleware.HeaderRequestID)
	}

	if status >= http.StatusInternalServerError {
		lg := middleware.LoggerFrom(c)
		lg.Error().
			Int("status", status).
			Str("code", resp.Code).
			Str("message", resp.Message).
			Msg("api error")
	}

	c.AbortWithStatusJSON(status, resp)
}

// Fail is the exported variant of fail(), for router-level fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// ok writes a success JSON response.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}
