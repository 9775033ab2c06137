// Package services – PolicyService
//
// Routing is a pure function of plan and attachment presence: images go to
// the OpenRouter vision model, text goes to OpenAI with a pro-plan model
// override. Missing credentials surface as configuration errors before the
// request spends any quota on the upstream call.
package services

import (
	"errors"
	"time"

	"github.com/Arthurgann/hvostosovet/internal/config"
	"github.com/Arthurgann/hvostosovet/internal/domain"
	"github.com/Arthurgann/hvostosovet/internal/llm"
)

var (
	// ErrOpenAINotConfigured means the text provider has no API key.
	ErrOpenAINotConfigured = errors.New("openai is not configured")
	// ErrOpenRouterNotConfigured means the vision provider has no API key.
	ErrOpenRouterNotConfigured = errors.New("openrouter is not configured")
)

// Fallback models when the corresponding env vars are unset.
const (
	defaultTextModel   = "gpt-4.1-mini"
	defaultVisionModel = "openai/gpt-4o-mini"
)

// Policy is a fully resolved upstream call plan.
type Policy struct {
	Provider    string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// PolicyService selects provider, model, and call parameters per request.
type PolicyService struct {
	Cfg config.LLMConfig
}

// NewPolicyService constructs a PolicyService.
func NewPolicyService(cfg config.LLMConfig) *PolicyService {
	return &PolicyService{Cfg: cfg}
}

// Select resolves the policy for one request. Image requests route to the
// vision provider with its longer timeout; text requests pick the pro model
// when configured and the plan warrants it, falling back layer by layer to
// the generic model and finally a built-in default.
func (p *PolicyService) Select(plan string, hasImage bool) (*Policy, error) {
	if hasImage {
		if p.Cfg.OpenRouterAPIKey == "" {
			return nil, ErrOpenRouterNotConfigured
		}
		model := p.Cfg.VisionModel
		if model == "" {
			model = defaultVisionModel
		}
		return &Policy{
			Provider:    llm.ProviderOpenRouter,
			Model:       model,
			Temperature: p.Cfg.Temperature,
			MaxTokens:   p.Cfg.MaxTokens,
			Timeout:     p.Cfg.VisionTimeout,
		}, nil
	}

	if p.Cfg.OpenAIAPIKey == "" {
		return nil, ErrOpenAINotConfigured
	}
	model := p.Cfg.OpenAIModel
	if plan == domain.PlanPro && p.Cfg.ProModel != "" {
		model = p.Cfg.ProModel
	}
	if model == "" {
		model = defaultTextModel
	}
	return &Policy{
		Provider:    llm.ProviderOpenAI,
		Model:       model,
		Temperature: p.Cfg.Temperature,
		MaxTokens:   p.Cfg.MaxTokens,
		Timeout:     p.Cfg.Timeout,
	}, nil
}
