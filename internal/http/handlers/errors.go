// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are lowercase snake_case and stable: the bot branches on them to
// pick user-facing copy, so renaming one is a breaking change. Generic
// codes (bad_request, unauthorized, not_found) mirror HTTP semantics;
// domain codes name the specific gate that rejected the request. Every
// error response carries both an HTTP status and one of these codes.
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeNotFound         = "not_found"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeMisconfigured    = "server_misconfigured"

	// Request validation:
	ErrCodeMissingRequestID  = "missing_x_request_id"
	ErrCodeInvalidRequestID  = "invalid_x_request_id"
	ErrCodeMissingText       = "missing_text"
	ErrCodeInvalidAttachment = "invalid_attachment"

	// Idempotency and limits:
	ErrCodeRequestInProgress  = "request_in_progress"
	ErrCodeRateLimited        = "rate_limited"
	ErrCodeDailyLimitExceeded = "daily_limit_exceeded"

	// Plan gating:
	ErrCodeProRequired         = "pro_required"
	ErrCodeVisionLimitExceeded = "vision_limit_exceeded"

	// Upstream:
	ErrCodeLLMTimeout            = "llm_timeout"
	ErrCodeLLMFailed             = "llm_failed"
	ErrCodeVisionNotProcessed    = "vision_not_processed"
	ErrCodeOpenAIUnavailable     = "openai_not_configured"
	ErrCodeOpenRouterUnavailable = "openrouter_not_configured"
)
