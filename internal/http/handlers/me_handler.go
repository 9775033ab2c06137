// Package handlers provides HTTP handler implementations for the public API.
//
// This file implements GET /me, the account snapshot the bot renders on the
// profile screen: plan, remaining daily requests, stored pets, and the
// vision quota for pro accounts. Consent and research blocks are carried in
// the shape the bot expects even though those features are not tracked yet.
package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Arthurgann/hvostosovet/internal/domain"
	"github.com/Arthurgann/hvostosovet/internal/services"
)

type meLimits struct {
	RemainingInWindow int        `json:"remaining_in_window"`
	CooldownSec       int        `json:"cooldown_sec"`
	ResetAt           *time.Time `json:"reset_at"`
}

type meVision struct {
	Used      int       `json:"used"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

type meConsents struct {
	TermsAccepted      bool `json:"terms_accepted"`
	DataPolicyAccepted bool `json:"data_policy_accepted"`
}

type meResearch struct {
	Available      bool       `json:"available"`
	UsedThisPeriod int        `json:"used_this_period"`
	Limit          int        `json:"limit"`
	ResetAt        *time.Time `json:"reset_at"`
}

type meResponse struct {
	Plan     string      `json:"plan"`
	Limits   meLimits    `json:"limits"`
	Pets     []meFullPet `json:"pets"`
	Vision   *meVision   `json:"vision,omitempty"`
	Consents meConsents  `json:"consents"`
	Research meResearch  `json:"research"`
}

type meFullPet struct {
	PetID      string         `json:"pet_id"`
	PetProfile map[string]any `json:"pet_profile"`
}

// Me handles GET /me. The user is identified by the telegram_user_id query
// parameter and created lazily like everywhere else.
func (h *Handler) Me(c *gin.Context) {
	tgID, ok2 := telegramIDQuery(c)
	if !ok2 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "telegram_user_id query parameter is required")
		return
	}

	now := time.Now().UTC()
	ctx := c.Request.Context()
	user, err := h.Users.GetOrCreateByTelegramID(ctx, tgID, now)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
		return
	}

	decision, err := h.Limits.Status(ctx, user, now)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
		return
	}

	resp := meResponse{
		Plan: user.Plan,
		Limits: meLimits{
			RemainingInWindow: decision.RemainingToday,
			CooldownSec:       decision.CooldownSec,
			ResetAt:           &decision.ResetAt,
		},
		Pets:     []meFullPet{},
		Consents: meConsents{},
		Research: meResearch{},
	}

	if user.Plan == domain.PlanPro {
		pet, profile, err := h.Profiles.ActivePet(ctx, user.ID)
		if err == nil {
			resp.Pets = append(resp.Pets, meFullPet{PetID: pet.ID, PetProfile: profile})
		} else if err != services.ErrPetNotFound {
			fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
			return
		}

		vs := h.Vision.Status(user, now)
		resp.Vision = &meVision{
			Used:      vs.Used,
			Limit:     vs.Limit,
			Remaining: vs.Remaining,
			ResetAt:   vs.ResetAt,
		}
	}

	ok(c, http.StatusOK, resp)
}

// telegramIDQuery parses the telegram_user_id query parameter.
func telegramIDQuery(c *gin.Context) (int64, bool) {
	raw := c.Query("telegram_user_id")
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
