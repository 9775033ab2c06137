package config

import (
	"testing"
	"time"
)

// clearEnv unsets every variable the loader reads so tests see defaults.
func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"PORT", "READ_TIMEOUT", "READ_HEADER_TIMEOUT", "WRITE_TIMEOUT", "IDLE_TIMEOUT",
		"MAX_HEADER_BYTES", "GIN_MODE", "LOG_LEVEL", "LOG_PRETTY", "SWAGGER_ENABLED",
		"API_BASE_PATH", "BOT_BACKEND_TOKEN", "DATABASE_URL", "DB_PATH",
		"MAX_IMAGE_BYTES", "RATE_RPS", "RATE_BURST", "CORS_ALLOWED_ORIGINS",
		"ENABLE_HSTS", "HSTS_MAX_AGE",
		"DAILY_LIMIT_FREE", "DAILY_LIMIT_PRO", "COOLDOWN_SEC", "VISION_MONTHLY_LIMIT",
		"SESSION_TTL_MIN", "PRO_SESSION_TTL_MIN", "SESSION_MAX_TURNS", "SESSION_DEFAULT_MODE",
		"OPENAI_API_KEY", "OPENAI_BASE_URL", "OPENAI_MODEL", "OPENAI_PRO_MODEL",
		"OPENROUTER_API_KEY", "OPENROUTER_BASE_URL", "OPENROUTER_VISION_MODEL",
		"TEMPERATURE", "MAX_TOKENS", "LLM_TIMEOUT_S", "LLM_VISION_TIMEOUT_S", "SYSTEM_PROMPT",
		"OTEL_ENABLED", "OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_INSECURE",
		"OTEL_SERVICE_NAME", "OTEL_TRACES_SAMPLER_ARG",
	}
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.GinMode != "release" {
		t.Errorf("GinMode = %q, want release", cfg.GinMode)
	}
	if cfg.APIBasePath != "/v1" {
		t.Errorf("APIBasePath = %q, want /v1", cfg.APIBasePath)
	}
	if cfg.MaxImageBytes != 4<<20 {
		t.Errorf("MaxImageBytes = %d, want %d", cfg.MaxImageBytes, 4<<20)
	}
	if cfg.Limits.DailyLimitFree != 5 || cfg.Limits.DailyLimitPro != 1000 {
		t.Errorf("daily limits = %d/%d, want 5/1000", cfg.Limits.DailyLimitFree, cfg.Limits.DailyLimitPro)
	}
	if cfg.Limits.Cooldown != time.Hour {
		t.Errorf("Cooldown = %v, want 1h", cfg.Limits.Cooldown)
	}
	if cfg.Limits.VisionMonthly != 30 {
		t.Errorf("VisionMonthly = %d, want 30", cfg.Limits.VisionMonthly)
	}
	if cfg.Session.MaxTurns != 6 {
		t.Errorf("MaxTurns = %d, want 6", cfg.Session.MaxTurns)
	}
	if cfg.Session.DefaultMode != "care" {
		t.Errorf("DefaultMode = %q, want care", cfg.Session.DefaultMode)
	}
	if cfg.LLM.Timeout != 60*time.Second || cfg.LLM.VisionTimeout != 90*time.Second {
		t.Errorf("LLM timeouts = %v/%v, want 60s/90s", cfg.LLM.Timeout, cfg.LLM.VisionTimeout)
	}
}

func TestLoad_NormalizesValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("LOG_LEVEL", "WARNING")
	t.Setenv("GIN_MODE", "bogus")
	t.Setenv("API_BASE_PATH", "v1/")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn", cfg.LogLevel)
	}
	if cfg.GinMode != "release" {
		t.Errorf("GinMode = %q, want release", cfg.GinMode)
	}
	if cfg.APIBasePath != "/v1" {
		t.Errorf("APIBasePath = %q, want /v1", cfg.APIBasePath)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	cases := map[string]struct {
		key, val string
	}{
		"bad log level":   {"LOG_LEVEL", "verbose"},
		"zero max tokens": {"MAX_TOKENS", "0"},
		"bad temperature": {"TEMPERATURE", "3.5"},
		"zero turns":      {"SESSION_MAX_TURNS", "0"},
		"bad sample":      {"OTEL_TRACES_SAMPLER_ARG", "1.5"},
		"zero rate burst": {"RATE_BURST", "0"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tc.key, tc.val)
			if _, err := Load(); err == nil {
				t.Fatalf("expected validation error for %s=%s", tc.key, tc.val)
			}
		})
	}
}

func TestDailyLimit_PerPlan(t *testing.T) {
	l := LimitsConfig{DailyLimitFree: 5, DailyLimitPro: 1000}
	if got := l.DailyLimit("free"); got != 5 {
		t.Errorf("free limit = %d, want 5", got)
	}
	if got := l.DailyLimit("pro"); got != 1000 {
		t.Errorf("pro limit = %d, want 1000", got)
	}
	if got := l.DailyLimit("unknown"); got != 5 {
		t.Errorf("unknown plan limit = %d, want free fallback 5", got)
	}
}

func TestSessionTTL_PerPlan(t *testing.T) {
	s := SessionConfig{TTL: time.Hour, ProTTL: 30 * 24 * time.Hour}
	if got := s.SessionTTL("free"); got != time.Hour {
		t.Errorf("free TTL = %v, want 1h", got)
	}
	if got := s.SessionTTL("pro"); got != 30*24*time.Hour {
		t.Errorf("pro TTL = %v, want 720h", got)
	}
}
