// Package handlers provides HTTP handler implementations for the public API.
//
// This file implements POST /chat/ask, the primary endpoint. The handler is
// deliberately thin: it binds the body, hands off to the orchestrator, and
// translates the outcome. Success bodies are written as raw bytes because
// dedup replays must be byte-identical to the first response.
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Arthurgann/hvostosovet/internal/http/middleware"
	"github.com/Arthurgann/hvostosovet/internal/services"
)

// dedupHitHeader marks responses served from the dedup store.
const dedupHitHeader = "X-Dedup-Hit"

// Handler bundles the services behind the HTTP endpoints.
type Handler struct {
	Ask      *services.AskService
	Users    *services.UserService
	Profiles *services.ProfileService
	Limits   *services.LimitsService
	Vision   *services.VisionService
}

// New constructs the Handler with its service dependencies.
func New(
	ask *services.AskService,
	users *services.UserService,
	profiles *services.ProfileService,
	limits *services.LimitsService,
	vision *services.VisionService,
) *Handler {
	return &Handler{
		Ask:      ask,
		Users:    users,
		Profiles: profiles,
		Limits:   limits,
		Vision:   vision,
	}
}

// ChatAsk handles POST /chat/ask.
//
// The X-Request-Id header is validated by middleware before this runs.
// Outcomes: 200 with the answer (replays flagged via X-Dedup-Hit: 1),
// 4xx/5xx with the error envelope. Every post-validation outcome is also
// recorded in the dedup store by the orchestrator.
func (h *Handler) ChatAsk(c *gin.Context) {
	rid, ok := middleware.RequestIDFrom(c)
	if !ok {
		fail(c, http.StatusBadRequest, ErrCodeMissingRequestID, "X-Request-Id header is required")
		return
	}

	var req services.AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}

	res, err := h.Ask.Ask(c.Request.Context(), rid, &req, time.Now().UTC())
	if err != nil {
		var ae *services.AskError
		if errors.As(err, &ae) {
			if ae.DedupHit {
				c.Header(dedupHitHeader, "1")
			}
			failWith(c, ae.Status, ErrorResponse{
				RequestID:   rid,
				Code:        ae.Code,
				Message:     ae.Message,
				CooldownSec: ae.CooldownSec,
				Upsell:      ae.Upsell,
			})
			return
		}
		lg := middleware.LoggerFrom(c)
		lg.Error().Err(err).Str("request_id", rid).Msg("ask pipeline")
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
		return
	}

	if res.DedupHit {
		c.Header(dedupHitHeader, "1")
	}
	c.Data(res.Status, "application/json; charset=utf-8", res.Body)
}
