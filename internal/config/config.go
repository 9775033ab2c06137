// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server settings,
// database connection values, quota and session policy, and the layered LLM
// routing table (plan override → provider default → hard default) so that
// operators can retune providers and models without code changes.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Arthurgann/hvostosovet/internal/sysutil"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// LimitsConfig holds the daily request quota and the monthly vision quota.
// Plans are not special-cased in code: "pro" simply carries a (much) larger
// configured daily limit.
type LimitsConfig struct {
	DailyLimitFree int           // DAILY_LIMIT_FREE
	DailyLimitPro  int           // DAILY_LIMIT_PRO
	Cooldown       time.Duration // COOLDOWN_SEC, applied after the daily limit is hit
	VisionMonthly  int           // VISION_MONTHLY_LIMIT, images per month on the pro plan
}

// SessionConfig bounds the conversational memory window.
type SessionConfig struct {
	TTL         time.Duration // SESSION_TTL_MIN (free plan)
	ProTTL      time.Duration // PRO_SESSION_TTL_MIN
	MaxTurns    int           // SESSION_MAX_TURNS
	DefaultMode string        // SESSION_DEFAULT_MODE, baseline active mode
}

// LLMConfig is the validated routing table behind the policy router. Each
// policy resolves model and provider with layered fallbacks; empty override
// fields fall through to the provider default, then to the hard default
// baked into the policy router.
type LLMConfig struct {
	OpenAIAPIKey  string // OPENAI_API_KEY
	OpenAIBaseURL string // OPENAI_BASE_URL (optional override)
	OpenAIModel   string // OPENAI_MODEL, provider-generic default
	ProModel      string // OPENAI_PRO_MODEL, pro-plan override

	OpenRouterAPIKey  string // OPENROUTER_API_KEY
	OpenRouterBaseURL string // OPENROUTER_BASE_URL
	VisionModel       string // OPENROUTER_VISION_MODEL

	Temperature   float64       // TEMPERATURE
	MaxTokens     int           // MAX_TOKENS
	Timeout       time.Duration // LLM_TIMEOUT_S
	VisionTimeout time.Duration // LLM_VISION_TIMEOUT_S

	SystemPrompt string // SYSTEM_PROMPT (optional override of the built-in one)
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	GinMode           string // debug|release|test

	// Logging / Docs
	LogLevel       string
	LogPretty      bool
	SwaggerEnabled bool
	APIBasePath    string // base path for API routes, e.g. /v1

	// Auth
	BotBackendToken string // BOT_BACKEND_TOKEN, shared bearer token for the bot

	// Storage
	DatabaseURL string // DATABASE_URL (postgres); when empty, DBPath is used
	DBPath      string // DB_PATH (sqlite fallback for local dev)

	// Request handling
	MaxImageBytes int64 // MAX_IMAGE_BYTES, cap on a decoded inline attachment

	// Edge rate limiting (in-process token bucket, abuse control only;
	// the authoritative daily quota lives in the database)
	RateRPS   float64
	RateBurst int

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Domain policy
	Limits  LimitsConfig
	Session SessionConfig
	LLM     LLMConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables, applies defaults,
// normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 90*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/v1")),

		// Auth
		BotBackendToken: getenv("BOT_BACKEND_TOKEN", ""),

		// Storage
		DatabaseURL: getenv("DATABASE_URL", ""),
		DBPath:      getenv("DB_PATH", "app.db"),

		// Request handling
		MaxImageBytes: int64(getint("MAX_IMAGE_BYTES", 4<<20)),

		// Edge rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Domain policy
		Limits: LimitsConfig{
			DailyLimitFree: getint("DAILY_LIMIT_FREE", 5),
			DailyLimitPro:  getint("DAILY_LIMIT_PRO", 1000),
			Cooldown:       time.Duration(getint("COOLDOWN_SEC", 3600)) * time.Second,
			VisionMonthly:  getint("VISION_MONTHLY_LIMIT", 30),
		},
		Session: SessionConfig{
			TTL:         time.Duration(getint("SESSION_TTL_MIN", 60)) * time.Minute,
			ProTTL:      time.Duration(getint("PRO_SESSION_TTL_MIN", 43200)) * time.Minute,
			MaxTurns:    getint("SESSION_MAX_TURNS", 6),
			DefaultMode: getenv("SESSION_DEFAULT_MODE", "care"),
		},
		LLM: LLMConfig{
			OpenAIAPIKey:  getenv("OPENAI_API_KEY", ""),
			OpenAIBaseURL: getenv("OPENAI_BASE_URL", ""),
			OpenAIModel:   getenv("OPENAI_MODEL", ""),
			ProModel:      getenv("OPENAI_PRO_MODEL", ""),

			OpenRouterAPIKey:  getenv("OPENROUTER_API_KEY", ""),
			OpenRouterBaseURL: getenv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
			VisionModel:       getenv("OPENROUTER_VISION_MODEL", ""),

			Temperature:   getfloat("TEMPERATURE", 0.7),
			MaxTokens:     getint("MAX_TOKENS", 800),
			Timeout:       time.Duration(getint("LLM_TIMEOUT_S", 60)) * time.Second,
			VisionTimeout: time.Duration(getint("LLM_VISION_TIMEOUT_S", 90)) * time.Second,

			SystemPrompt: getenv("SYSTEM_PROMPT", ""),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "hvostosovet-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if cfg.DatabaseURL == "" && strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("either DATABASE_URL or DB_PATH must be set")
	}
	if cfg.MaxImageBytes <= 0 {
		return cfg, errors.New("MAX_IMAGE_BYTES must be > 0")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Limits.DailyLimitFree < 1 || cfg.Limits.DailyLimitPro < 1 {
		return cfg, errors.New("daily limits must be >= 1")
	}
	if cfg.Limits.Cooldown <= 0 {
		return cfg, errors.New("COOLDOWN_SEC must be > 0")
	}
	if cfg.Limits.VisionMonthly < 0 {
		return cfg, errors.New("VISION_MONTHLY_LIMIT must be >= 0")
	}
	if cfg.Session.MaxTurns < 1 {
		return cfg, errors.New("SESSION_MAX_TURNS must be >= 1")
	}
	if cfg.Session.TTL <= 0 || cfg.Session.ProTTL <= 0 {
		return cfg, errors.New("session TTLs must be > 0")
	}
	if cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 2 {
		return cfg, errors.New("TEMPERATURE must be in [0,2]")
	}
	if cfg.LLM.MaxTokens < 1 {
		return cfg, errors.New("MAX_TOKENS must be >= 1")
	}
	if cfg.LLM.Timeout <= 0 || cfg.LLM.VisionTimeout <= 0 {
		return cfg, errors.New("LLM timeouts must be > 0")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// DailyLimit returns the configured daily request quota for a plan.
func (l LimitsConfig) DailyLimit(plan string) int {
	if plan == "pro" {
		return l.DailyLimitPro
	}
	return l.DailyLimitFree
}

// SessionTTL returns the session lifetime for a plan.
func (s SessionConfig) SessionTTL(plan string) time.Duration {
	if plan == "pro" {
		return s.ProTTL
	}
	return s.TTL
}

// ---- env helpers ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if sysutil.IsTruthy(v) {
			return true
		}
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
