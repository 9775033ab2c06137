// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file validates the X-Request-Id idempotency header on state-changing
// endpoints. The bot generates one UUID per logical user action and resends
// it on retries; the orchestrator uses it to guarantee at-most-once
// execution. The middleware keeps transport concerns here (presence, UUID
// shape, context stashing) and leaves replay semantics to the dedup store —
// with one exception: a lookup hook lets the rate limiter skip replays so a
// retried request can always fetch its stored outcome.
package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// HeaderRequestID is the idempotency header clients must send on POST
// endpoints. One UUID per logical action, reused on retries.
const HeaderRequestID = "X-Request-Id"

// Context keys for idempotency state, accessed via the helpers below.
const (
	ctxKeyReqID      = "ask.request_id"
	ctxKeyReplay     = "ask.replay"  // bool: a finished record exists
	ctxKeyRateBypass = "rate.bypass" // bool: skip edge rate limiting
)

// RequestIDFrom returns the validated idempotency key stored by
// RequestIDValidator. The second value reports presence.
func RequestIDFrom(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyReqID)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// IsReplay reports whether the validator's lookup found a finished record
// for this request id, meaning the handler will serve a stored outcome.
func IsReplay(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyReplay)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// ReplayLookup answers whether a finished (done or failed) record already
// exists for the request id. Lookup failures must not block processing;
// return exists=false and let the pipeline run.
type ReplayLookup func(ctx context.Context, requestID string, now time.Time) (bool, error)

// RequestIDValidator enforces the idempotency header on the routes it is
// mounted on: the header must be present and a well-formed UUID. The
// normalized (lowercased) id is stashed in the context. When lookup reports
// a finished record, the replay and rate-bypass flags are set so the edge
// limiter does not block a retry from fetching its stored outcome.
func RequestIDValidator(lookup ReplayLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(HeaderRequestID)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": "",
				"code":       "missing_x_request_id",
				"message":    "X-Request-Id header is required",
			})
			return
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": raw,
				"code":       "invalid_x_request_id",
				"message":    "X-Request-Id must be a UUID",
			})
			return
		}
		rid := id.String()
		c.Set(ctxKeyReqID, rid)

		if lookup != nil {
			if exists, _ := lookup(c.Request.Context(), rid, time.Now().UTC()); exists {
				c.Set(ctxKeyReplay, true)
				c.Set(ctxKeyRateBypass, true)
			}
		}

		c.Next()
	}
}
