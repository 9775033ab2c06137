// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns:
// tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, idempotency validation, and edge rate limiting.
//
// Design goals:
//   - Observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (correlation → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/Arthurgann/hvostosovet/internal/config"
	"github.com/Arthurgann/hvostosovet/internal/domain"
	"github.com/Arthurgann/hvostosovet/internal/http/handlers"
	"github.com/Arthurgann/hvostosovet/internal/http/middleware"
	"github.com/Arthurgann/hvostosovet/internal/llm"
	"github.com/Arthurgann/hvostosovet/internal/repo"
	"github.com/Arthurgann/hvostosovet/internal/services"
	"github.com/Arthurgann/hvostosovet/internal/sysutil"
)

// RegisterRoutes attaches all middleware and endpoints to the Gin engine.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. CorrelationID: echo/mint the correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter (inline images travel base64-encoded in JSON)
//  6. Gzip compression for responses
//  7. Metrics
//  8. CORS and security headers
//
// Per-route on the API group: bearer auth, then on POST endpoints the
// X-Request-Id validator (before the rate limiter so finished replays
// bypass it), then the token-bucket edge limiter.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.CorrelationID())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{}))
	r.Use(middleware.Recovery())

	// The JSON body carries one base64 image at most; base64 inflates by
	// 4/3, plus headroom for the rest of the payload.
	r.Use(limitBody(cfg.MaxImageBytes*2 + 64<<10))

	r.Use(gzip.Gzip(gzip.DefaultCompression))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// CORS posture. The only expected caller is the bot process, but the
	// allowlist keeps browser-based admin tooling possible.
	if len(cfg.CORS.AllowedOrigins) == 0 {
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderRequestID},
			ExposeHeaders:    []string{middleware.HeaderRequestID, "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	} else {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderRequestID},
			ExposeHeaders:    []string{middleware.HeaderRequestID, "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      true,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: services ← repo/db/llm
	systemPrompt := sysutil.FirstNonEmpty(cfg.LLM.SystemPrompt, services.DefaultSystemPrompt)
	gateway := llm.NewGateway(log.With().Str("component", "llm").Logger(), map[string]llm.ClientConfig{
		llm.ProviderOpenAI:     {APIKey: cfg.LLM.OpenAIAPIKey, BaseURL: cfg.LLM.OpenAIBaseURL},
		llm.ProviderOpenRouter: {APIKey: cfg.LLM.OpenRouterAPIKey, BaseURL: cfg.LLM.OpenRouterBaseURL},
	})

	dedupSvc := services.NewDedupService(db)
	limitsSvc := services.NewLimitsService(db, cfg.Limits)
	visionSvc := services.NewVisionService(db, cfg.Limits.VisionMonthly)
	profileSvc := services.NewProfileService(db)
	sessionSvc := services.NewSessionService(db, cfg.Session)
	policySvc := services.NewPolicyService(cfg.LLM)
	userSvc := services.NewUserService(db)
	askSvc := services.NewAskService(
		db, dedupSvc, limitsSvc, visionSvc, profileSvc, sessionSvc, policySvc,
		gateway, llm.NewSubstringRefusalDetector(), userSvc,
		services.AskConfig{MaxImageBytes: cfg.MaxImageBytes, SystemPrompt: systemPrompt},
		log.With().Str("component", "ask").Logger(),
	)

	h := handlers.New(askSvc, userSvc, profileSvc, limitsSvc, visionSvc)

	// A finished dedup record lets a retry skip the edge limiter; it will
	// be served from storage without touching the pipeline.
	replayLookup := func(ctx context.Context, requestID string, now time.Time) (bool, error) {
		rec, err := repo.GetDedup(ctx, db, requestID)
		if err != nil || rec == nil {
			return false, nil
		}
		return rec.Status != domain.DedupStarted, nil
	}
	requestID := middleware.RequestIDValidator(replayLookup)
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByIP())

	// Public API
	api := groupWithPrefix(r, cfg.APIBasePath)
	api.Use(middleware.BotAuth(cfg.BotBackendToken))
	{
		api.POST("/chat/ask", requestID, rl.Handler(), h.ChatAsk)

		api.POST("/pets/active/save", requestID, rl.Handler(), h.SaveActivePet)
		api.GET("/pets/active", h.GetActivePet)

		api.GET("/me", h.Me)
	}
}

// limitBody caps the request body size using http.MaxBytesReader; oversized
// bodies error on read downstream.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
