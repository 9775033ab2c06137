// Package handlers provides HTTP handler implementations for the public API.
//
// This file implements the pet profile endpoints. Stored profiles are a pro
// feature: free users carry their pet data inline with each question, so
// both endpoints reject the free plan with pro_required.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/Arthurgann/hvostosovet/internal/domain"
	"github.com/Arthurgann/hvostosovet/internal/http/middleware"
	"github.com/Arthurgann/hvostosovet/internal/services"
)

// petSaveRequest is the POST /pets/active/save body.
type petSaveRequest struct {
	User       services.AskUser `json:"user"`
	PetProfile map[string]any   `json:"pet_profile"`
}

// petResponse is the body for both pet endpoints.
type petResponse struct {
	PetID      string         `json:"pet_id"`
	PetProfile map[string]any `json:"pet_profile"`
}

// SaveActivePet handles POST /pets/active/save.
//
// The incoming profile is merged over the stored one, so partial updates
// never erase known fields. Saving the same patch twice converges to the
// same row, which keeps the endpoint naturally idempotent.
func (h *Handler) SaveActivePet(c *gin.Context) {
	var req petSaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}
	if req.User.TelegramUserID <= 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "user.telegram_user_id is required")
		return
	}

	now := time.Now().UTC()
	user, err := h.Users.GetOrCreateByTelegramID(c.Request.Context(), req.User.TelegramUserID, now)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
		return
	}
	if user.Plan != domain.PlanPro {
		fail(c, http.StatusPaymentRequired, ErrCodeProRequired, "stored pet profiles require the pro plan")
		return
	}

	var petID string
	err = h.Profiles.DB.Transaction(func(tx *gorm.DB) error {
		id, err := h.Profiles.UpsertActivePet(c.Request.Context(), tx, user.ID, req.PetProfile, now)
		petID = id
		return err
	})
	if err == services.ErrMissingPetType {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "pet profile has no type")
		return
	}
	if err != nil {
		lg := middleware.LoggerFrom(c)
		lg.Error().Err(err).Str("user_id", user.ID).Msg("pet upsert")
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
		return
	}

	_, profile, err := h.Profiles.ActivePet(c.Request.Context(), user.ID)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
		return
	}
	ok(c, http.StatusOK, petResponse{PetID: petID, PetProfile: profile})
}

// GetActivePet handles GET /pets/active. The user is identified by the
// telegram_user_id query parameter.
func (h *Handler) GetActivePet(c *gin.Context) {
	tgID, ok2 := telegramIDQuery(c)
	if !ok2 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "telegram_user_id query parameter is required")
		return
	}

	now := time.Now().UTC()
	user, err := h.Users.GetOrCreateByTelegramID(c.Request.Context(), tgID, now)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
		return
	}
	if user.Plan != domain.PlanPro {
		fail(c, http.StatusPaymentRequired, ErrCodeProRequired, "stored pet profiles require the pro plan")
		return
	}

	pet, profile, err := h.Profiles.ActivePet(c.Request.Context(), user.ID)
	if err == services.ErrPetNotFound {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "no active pet")
		return
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
		return
	}
	ok(c, http.StatusOK, petResponse{PetID: pet.ID, PetProfile: profile})
}
