// Package services – AskService
//
// The orchestrator for POST /chat/ask. It walks one request through the
// full gate sequence: deduplication, validation, daily limits, the vision
// quota, profile resolution, session memory, policy routing, the upstream
// call, and persistence. Every terminal outcome after a successful begin is
// recorded in the dedup store, so a retry with the same request id replays
// the identical answer or rejection instead of re-executing the pipeline.
package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Arthurgann/hvostosovet/internal/domain"
	"github.com/Arthurgann/hvostosovet/internal/llm"
)

// DefaultSystemPrompt is used when SYSTEM_PROMPT is not set. The bot's
// audience is Russian-speaking, so the baseline persona is too.
const DefaultSystemPrompt = "Ты — ассистент по уходу за домашними животными. " +
	"Отвечай кратко и по делу, на русском языке. " +
	"Ты не ставишь диагнозы и не назначаешь лечение; при тревожных симптомах " +
	"рекомендуй очный осмотр у ветеринарного врача."

// Completer is the upstream gateway dependency, satisfied by *llm.Gateway.
type Completer interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (string, error)
}

// AskUser identifies the end user behind the bot.
type AskUser struct {
	TelegramUserID int64 `json:"telegram_user_id"`
}

// AskAttachment is one inline attachment. Only base64-encoded inline
// images are supported.
type AskAttachment struct {
	Type   string `json:"type"`
	Source string `json:"source"`
	MIME   string `json:"mime"`
	Data   string `json:"data"`
}

// AskRequest is the parsed /chat/ask body.
type AskRequest struct {
	User        AskUser         `json:"user"`
	Text        string          `json:"text"`
	Mode        string          `json:"mode"`
	PetProfile  map[string]any  `json:"pet_profile"`
	Attachments []AskAttachment `json:"attachments"`
}

// AskResult is a successful (or replayed-success) outcome. Body holds the
// exact bytes to serve; replays reuse the stored bytes verbatim.
type AskResult struct {
	Status   int
	Body     []byte
	DedupHit bool
}

// AskError is a structured rejection. Code is machine-readable and stable;
// CooldownSec and Upsell enrich limit rejections. DedupHit marks a replayed
// rejection.
type AskError struct {
	Status      int
	Code        string
	Message     string
	CooldownSec int
	Upsell      *Upsell
	DedupHit    bool
}

func (e *AskError) Error() string { return e.Code }

// askResponse is the success body shape.
type askResponse struct {
	AnswerText         string       `json:"answer_text"`
	SafetyLevel        string       `json:"safety_level"`
	RecommendedActions []string     `json:"recommended_actions"`
	ShouldGoToVet      bool         `json:"should_go_to_vet"`
	FollowupQuestion   *string      `json:"followup_question"`
	Session            sessionInfo  `json:"session"`
	Limits             limitsInfo   `json:"limits"`
	Upsell             *Upsell      `json:"upsell"`
	Research           researchInfo `json:"research"`
	Meta               responseMeta `json:"meta"`
}

type sessionInfo struct {
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

type limitsInfo struct {
	Plan                  string     `json:"plan"`
	RemainingToday        int        `json:"remaining_today"`
	ResetAt               time.Time  `json:"reset_at"`
	VisionImagesUsed      *int       `json:"vision_images_used,omitempty"`
	VisionImagesLimit     *int       `json:"vision_images_limit,omitempty"`
	VisionImagesRemaining *int       `json:"vision_images_remaining,omitempty"`
	VisionImagesResetAt   *time.Time `json:"vision_images_reset_at,omitempty"`
}

type researchInfo struct {
	UsedThisPeriod int        `json:"used_this_period"`
	Limit          int        `json:"limit"`
	ResetAt        *time.Time `json:"reset_at"`
}

type responseMeta struct {
	RequestID        string `json:"request_id"`
	Provider         string `json:"provider"`
	Model            string `json:"model"`
	PetProfileSource string `json:"pet_profile_source"`
}

// AskService wires the full pipeline together.
type AskService struct {
	DB       *gorm.DB
	Dedup    *DedupService
	Limits   *LimitsService
	Vision   *VisionService
	Profiles *ProfileService
	Sessions *SessionService
	Policy   *PolicyService
	Gateway  Completer
	Refusal  llm.RefusalDetector

	Users         *UserService
	MaxImageBytes int64
	SystemPrompt  string
	Log           zerolog.Logger
}

// AskConfig groups the orchestrator's scalar knobs.
type AskConfig struct {
	MaxImageBytes int64
	SystemPrompt  string
}

// NewAskService constructs the orchestrator.
func NewAskService(
	db *gorm.DB,
	dedup *DedupService,
	limits *LimitsService,
	vision *VisionService,
	profiles *ProfileService,
	sessions *SessionService,
	policy *PolicyService,
	gateway Completer,
	refusal llm.RefusalDetector,
	users *UserService,
	cfg AskConfig,
	log zerolog.Logger,
) *AskService {
	return &AskService{
		DB:            db,
		Dedup:         dedup,
		Limits:        limits,
		Vision:        vision,
		Profiles:      profiles,
		Sessions:      sessions,
		Policy:        policy,
		Gateway:       gateway,
		Refusal:       refusal,
		Users:         users,
		MaxImageBytes: cfg.MaxImageBytes,
		SystemPrompt:  cfg.SystemPrompt,
		Log:           log,
	}
}

// Ask executes one chat request end to end. The returned error is either an
// *AskError (a mapped rejection, already recorded for replay) or an
// unexpected internal error the handler maps to internal_error.
func (s *AskService) Ask(ctx context.Context, requestID string, req *AskRequest, now time.Time) (*AskResult, error) {
	tr := otel.Tracer("services/AskService")
	ctx, span := tr.Start(ctx, "Ask",
		trace.WithAttributes(
			attribute.String("request.id", requestID),
			attribute.Int64("user.telegram_id", req.User.TelegramUserID),
		),
	)
	defer span.End()

	begin, err := s.Dedup.Begin(ctx, requestID, now)
	if err != nil {
		return nil, err
	}
	switch begin.State {
	case BeginReplayDone:
		return &AskResult{Status: http.StatusOK, Body: begin.Response, DedupHit: true}, nil
	case BeginReplayFailed:
		status := begin.HTTPStatus
		if status == 0 {
			status = http.StatusInternalServerError
		}
		return nil, &AskError{Status: status, Code: begin.ErrorText, DedupHit: true}
	case BeginInProgress:
		return nil, &AskError{Status: http.StatusConflict, Code: "request_in_progress"}
	}

	// From here on every terminal path records its outcome first.
	reject := func(ae *AskError) (*AskResult, error) {
		if err := s.Dedup.Fail(ctx, requestID, ae.Code, ae.Status, time.Now().UTC()); err != nil {
			s.Log.Error().Err(err).Str("request_id", requestID).Msg("dedup fail write")
		}
		return nil, ae
	}

	if req.User.TelegramUserID <= 0 {
		return reject(&AskError{Status: http.StatusBadRequest, Code: "bad_request", Message: "user.telegram_user_id is required"})
	}
	if strings.TrimSpace(req.Text) == "" {
		return reject(&AskError{Status: http.StatusBadRequest, Code: "missing_text"})
	}
	attachment, ae := s.validateAttachment(req.Attachments)
	if ae != nil {
		return reject(ae)
	}

	user, err := s.Users.GetOrCreateByTelegramID(ctx, req.User.TelegramUserID, now)
	if err != nil {
		return nil, err
	}
	if err := s.Dedup.AttachUser(ctx, requestID, user.ID); err != nil {
		s.Log.Warn().Err(err).Str("request_id", requestID).Msg("dedup attach user")
	}

	decision, err := s.Limits.CheckAndIncrement(ctx, user, now)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		status := http.StatusTooManyRequests
		return reject(&AskError{
			Status:      status,
			Code:        decision.Code,
			CooldownSec: decision.CooldownSec,
			Upsell:      decision.Upsell,
		})
	}

	var visionStatus *VisionStatus
	if attachment != nil {
		if user.Plan != domain.PlanPro {
			return reject(&AskError{Status: http.StatusPaymentRequired, Code: "pro_required", Upsell: freeUpsell()})
		}
		visionStatus, err = s.Vision.Reserve(ctx, user, now)
		if err == ErrVisionQuotaExceeded {
			return reject(&AskError{Status: http.StatusPaymentRequired, Code: "vision_limit_exceeded"})
		}
		if err != nil {
			return nil, err
		}
	}

	requestProfile := NormalizeHealthBlock(NormalizeProfile(req.PetProfile))
	if user.Plan == domain.PlanPro && !IsMinimalProfile(requestProfile) {
		// The upsert runs in its own transaction so a storage failure here
		// cannot poison the rest of the pipeline's writes.
		err := s.DB.Transaction(func(tx *gorm.DB) error {
			_, err := s.Profiles.UpsertActivePet(ctx, tx, user.ID, requestProfile, now)
			return err
		})
		if err == ErrMissingPetType {
			return reject(&AskError{Status: http.StatusBadRequest, Code: "bad_request", Message: "pet profile has no type"})
		}
		if err != nil {
			s.Log.Error().Err(err).Str("user_id", user.ID).Msg("pet upsert")
			return reject(&AskError{Status: http.StatusInternalServerError, Code: "internal_error"})
		}
	}

	profile, profileSource, _, err := s.Profiles.ResolveEffective(ctx, user.Plan, user.ID, requestProfile)
	if err != nil {
		return nil, err
	}

	state, err := s.Sessions.LoadActive(ctx, user.ID, now)
	if err != nil {
		return nil, err
	}
	mode := s.Sessions.EffectiveMode(state.Context, req.Mode)
	prefix := s.Sessions.BuildPrefix(state.Context)

	policy, err := s.Policy.Select(user.Plan, attachment != nil)
	if err != nil {
		code := "openai_not_configured"
		if err == ErrOpenRouterNotConfigured {
			code = "openrouter_not_configured"
		}
		return reject(&AskError{Status: http.StatusServiceUnavailable, Code: code})
	}

	llmReq := llm.CompletionRequest{
		Provider:    policy.Provider,
		Model:       policy.Model,
		Temperature: policy.Temperature,
		MaxTokens:   policy.MaxTokens,
		Timeout:     policy.Timeout,
		System:      s.SystemPrompt,
		UserText:    buildUserPrompt(prefix, profile, req.Text),
	}
	if attachment != nil {
		llmReq.ImageMIME = attachment.MIME
		llmReq.ImageB64 = attachment.Data
	}

	answer, err := s.Gateway.Complete(ctx, llmReq)
	if err != nil {
		return reject(mapLLMError(err))
	}

	if attachment != nil && s.Refusal != nil && s.Refusal.DetectRefusal(answer) {
		return reject(&AskError{Status: http.StatusBadGateway, Code: "vision_not_processed"})
	}

	if attachment != nil {
		visionStatus, err = s.Vision.Commit(ctx, user, now)
		if err != nil {
			return nil, err
		}
	}

	next := s.Sessions.AppendTurn(state.Context, mode, req.Text, answer, now)
	sessionID, expiresAt, err := s.Sessions.Persist(ctx, state, next, user.Plan, now)
	if err != nil {
		return nil, err
	}

	body, err := s.buildResponse(requestID, user, answer, decision, visionStatus, sessionID, expiresAt, policy, profileSource)
	if err != nil {
		return nil, err
	}
	if err := s.Dedup.Complete(ctx, requestID, body, time.Now().UTC()); err != nil {
		s.Log.Error().Err(err).Str("request_id", requestID).Msg("dedup complete write")
	}
	return &AskResult{Status: http.StatusOK, Body: body}, nil
}

func (s *AskService) validateAttachment(atts []AskAttachment) (*AskAttachment, *AskError) {
	if len(atts) == 0 {
		return nil, nil
	}
	if len(atts) > 1 {
		return nil, &AskError{Status: http.StatusBadRequest, Code: "invalid_attachment", Message: "at most one attachment is supported"}
	}
	a := atts[0]
	if a.Type != "image" || a.Source != "inline" || a.Data == "" {
		return nil, &AskError{Status: http.StatusBadRequest, Code: "invalid_attachment"}
	}
	raw, err := base64.StdEncoding.DecodeString(a.Data)
	if err != nil {
		return nil, &AskError{Status: http.StatusBadRequest, Code: "invalid_attachment", Message: "attachment data is not valid base64"}
	}
	if s.MaxImageBytes > 0 && int64(len(raw)) > s.MaxImageBytes {
		return nil, &AskError{Status: http.StatusBadRequest, Code: "invalid_attachment", Message: "attachment too large"}
	}
	return &a, nil
}

// buildUserPrompt assembles the model input: prior dialog first, then the
// pet profile as compact JSON, then the current question.
func buildUserPrompt(prefix string, profile map[string]any, text string) string {
	var parts []string
	if prefix != "" {
		parts = append(parts, prefix)
	}
	if len(profile) > 0 {
		if blob, err := json.Marshal(profile); err == nil {
			parts = append(parts, "Профиль питомца: "+string(blob))
		}
	}
	parts = append(parts, "Пользователь: "+strings.TrimSpace(text))
	return strings.Join(parts, "\n\n")
}

func mapLLMError(err error) *AskError {
	switch {
	case err == llm.ErrTimeout:
		return &AskError{Status: http.StatusGatewayTimeout, Code: "llm_timeout"}
	default:
		return &AskError{Status: http.StatusBadGateway, Code: "llm_failed"}
	}
}

func (s *AskService) buildResponse(
	requestID string,
	user *domain.User,
	answer string,
	decision *LimitDecision,
	vision *VisionStatus,
	sessionID string,
	expiresAt time.Time,
	policy *Policy,
	profileSource string,
) ([]byte, error) {
	limits := limitsInfo{
		Plan:           user.Plan,
		RemainingToday: decision.RemainingToday,
		ResetAt:        decision.ResetAt,
	}
	if user.Plan == domain.PlanPro {
		if vision == nil {
			vision = s.Vision.Status(user, time.Now().UTC())
		}
		limits.VisionImagesUsed = &vision.Used
		limits.VisionImagesLimit = &vision.Limit
		limits.VisionImagesRemaining = &vision.Remaining
		limits.VisionImagesResetAt = &vision.ResetAt
	}

	resp := askResponse{
		AnswerText:         answer,
		SafetyLevel:        "low",
		RecommendedActions: []string{},
		Session:            sessionInfo{SessionID: sessionID, ExpiresAt: expiresAt},
		Limits:             limits,
		Research:           researchInfo{},
		Meta: responseMeta{
			RequestID:        requestID,
			Provider:         policy.Provider,
			Model:            policy.Model,
			PetProfileSource: profileSource,
		},
	}
	return json.Marshal(resp)
}
