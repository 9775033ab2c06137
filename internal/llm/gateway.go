// Package llm wraps the upstream chat-completion providers behind a single
// gateway with a normalized error taxonomy. Callers see four failure
// shapes: timeout, upstream error, empty response, and non-text response;
// everything else is a usable answer string.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/rs/zerolog"
)

// Provider identifiers used by routing policies.
const (
	ProviderOpenAI     = "openai"
	ProviderOpenRouter = "openrouter"
)

var (
	// ErrTimeout means the upstream call exceeded its deadline.
	ErrTimeout = errors.New("llm call timed out")
	// ErrEmptyResponse means the provider returned no usable content.
	ErrEmptyResponse = errors.New("llm returned empty response")
	// ErrNonTextResponse means the provider answered only with tool calls.
	ErrNonTextResponse = errors.New("llm returned non-text response")
)

// UpstreamError is a provider-side failure with its HTTP status when known.
type UpstreamError struct {
	Provider string
	Code     int
	Msg      string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s upstream error (status %d): %s", e.Provider, e.Code, e.Msg)
}

// CompletionRequest is one fully resolved upstream call. ImageB64 is set
// only for vision requests and is embedded as a data URL.
type CompletionRequest struct {
	Provider    string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration

	System   string
	UserText string

	ImageMIME string
	ImageB64  string
}

// Gateway holds one configured client per provider.
type Gateway struct {
	clients map[string]*openai.Client
	log     zerolog.Logger
}

// ClientConfig is the per-provider connection config.
type ClientConfig struct {
	APIKey  string
	BaseURL string
}

// NewGateway builds clients for every provider with a non-empty API key.
// Routing policies guard against selecting an unconfigured provider, so a
// missing client here is a programming error surfaced as UpstreamError.
func NewGateway(log zerolog.Logger, providers map[string]ClientConfig) *Gateway {
	clients := make(map[string]*openai.Client, len(providers))
	for name, cc := range providers {
		if cc.APIKey == "" {
			continue
		}
		cfg := openai.DefaultConfig(cc.APIKey)
		if cc.BaseURL != "" {
			cfg.BaseURL = strings.TrimRight(cc.BaseURL, "/")
		}
		clients[name] = openai.NewClientWithConfig(cfg)
	}
	return &Gateway{clients: clients, log: log}
}

// Complete performs one chat completion and returns the answer text.
func (g *Gateway) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	client, ok := g.clients[req.Provider]
	if !ok {
		return "", &UpstreamError{Provider: req.Provider, Msg: "provider not configured"}
	}

	callCtx := ctx
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	messages := []openai.ChatCompletionMessage{}
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	if req.ImageB64 != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: req.UserText},
				{
					Type: openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{
						URL: dataURL(req.ImageMIME, req.ImageB64),
					},
				},
			},
		})
	} else {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: req.UserText,
		})
	}

	start := time.Now()
	resp, err := client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
	})
	elapsed := time.Since(start)

	logEvent := g.log.Info()
	if err != nil {
		logEvent = g.log.Warn().Err(err)
	}
	logEvent.
		Str("provider", req.Provider).
		Str("model", req.Model).
		Bool("multimodal", req.ImageB64 != "").
		Dur("elapsed", elapsed).
		Msg("llm call")

	if err != nil {
		return "", g.classify(req.Provider, err)
	}
	return extractText(req.Provider, resp)
}

func dataURL(mime, b64 string) string {
	if mime == "" {
		mime = "image/jpeg"
	}
	return "data:" + mime + ";base64," + b64
}

func (g *Gateway) classify(provider string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &UpstreamError{Provider: provider, Code: apiErr.HTTPStatusCode, Msg: apiErr.Message}
	}
	return &UpstreamError{Provider: provider, Msg: err.Error()}
}

// extractText normalizes the provider response: prefer the content field,
// fall back to an explicit refusal, and report tool-call-only answers as a
// distinct failure so the orchestrator never persists an empty turn.
func extractText(provider string, resp openai.ChatCompletionResponse) (string, error) {
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	msg := resp.Choices[0].Message
	if text := strings.TrimSpace(msg.Content); text != "" {
		return text, nil
	}
	if refusal := strings.TrimSpace(msg.Refusal); refusal != "" {
		return refusal, nil
	}
	if len(msg.ToolCalls) > 0 {
		return "", ErrNonTextResponse
	}
	return "", ErrEmptyResponse
}
