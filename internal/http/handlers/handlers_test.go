package handlers

import (
	"context"
	"fmt"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Arthurgann/hvostosovet/internal/config"
	"github.com/Arthurgann/hvostosovet/internal/domain"
	"github.com/Arthurgann/hvostosovet/internal/http/middleware"
	"github.com/Arthurgann/hvostosovet/internal/llm"
	"github.com/Arthurgann/hvostosovet/internal/repo"
	"github.com/Arthurgann/hvostosovet/internal/services"
)

type fakeCompleter struct {
	answer string
	err    error
}

func (f *fakeCompleter) Complete(_ context.Context, _ llm.CompletionRequest) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

// newTestAPI wires the handlers onto a test router backed by a throwaway
// SQLite database, mirroring the production route setup minus auth and the
// edge limiter.
func newTestAPI(t *testing.T, completer *fakeCompleter) (*gin.Engine, *gorm.DB) {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("handlers_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	limitsCfg := config.LimitsConfig{
		DailyLimitFree: 2,
		DailyLimitPro:  1000,
		Cooldown:       time.Hour,
		VisionMonthly:  2,
	}
	sessionCfg := config.SessionConfig{
		TTL: time.Hour, ProTTL: 30 * 24 * time.Hour, MaxTurns: 6, DefaultMode: "care",
	}
	llmCfg := config.LLMConfig{
		OpenAIAPIKey:     "sk-test",
		OpenRouterAPIKey: "or-test",
		Temperature:      0.7,
		MaxTokens:        800,
		Timeout:          60 * time.Second,
		VisionTimeout:    90 * time.Second,
	}

	users := services.NewUserService(db)
	profiles := services.NewProfileService(db)
	limits := services.NewLimitsService(db, limitsCfg)
	vision := services.NewVisionService(db, limitsCfg.VisionMonthly)
	ask := services.NewAskService(
		db,
		services.NewDedupService(db),
		limits,
		vision,
		profiles,
		services.NewSessionService(db, sessionCfg),
		services.NewPolicyService(llmCfg),
		completer,
		llm.NewSubstringRefusalDetector(),
		users,
		services.AskConfig{MaxImageBytes: 1 << 20, SystemPrompt: services.DefaultSystemPrompt},
		zerolog.Nop(),
	)
	h := New(ask, users, profiles, limits, vision)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/v1/chat/ask", middleware.RequestIDValidator(nil), h.ChatAsk)
	r.POST("/v1/pets/active/save", middleware.RequestIDValidator(nil), h.SaveActivePet)
	r.GET("/v1/pets/active", h.GetActivePet)
	r.GET("/v1/me", h.Me)
	return r, db
}

func proUser(t *testing.T, db *gorm.DB, telegramID int64) *domain.User {
	t.Helper()
	u, err := repo.GetOrCreateUserByTelegramID(context.Background(), db, telegramID, time.Now().UTC())
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := db.Model(&domain.User{}).Where("id = ?", u.ID).Update("plan", domain.PlanPro).Error; err != nil {
		t.Fatalf("set plan: %v", err)
	}
	u.Plan = domain.PlanPro
	return u
}

func doJSON(r *gin.Engine, method, path, requestID, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if requestID != "" {
		req.Header.Set(middleware.HeaderRequestID, requestID)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}
