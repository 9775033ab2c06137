package services

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Arthurgann/hvostosovet/internal/config"
	"github.com/Arthurgann/hvostosovet/internal/domain"
	"github.com/Arthurgann/hvostosovet/internal/repo"
)

// newTestDB opens a throwaway SQLite database with the full schema.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("services_test_%d.db", time.Now().UnixNano()))
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
	return db
}

func newTestUser(t *testing.T, db *gorm.DB, telegramID int64, plan string) *domain.User {
	t.Helper()

	now := time.Now().UTC()
	u, err := repo.GetOrCreateUserByTelegramID(context.Background(), db, telegramID, now)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if plan != domain.PlanFree {
		if err := db.Model(&domain.User{}).Where("id = ?", u.ID).Update("plan", plan).Error; err != nil {
			t.Fatalf("set plan: %v", err)
		}
		u.Plan = plan
	}
	return u
}

func testLimitsConfig() config.LimitsConfig {
	return config.LimitsConfig{
		DailyLimitFree: 2,
		DailyLimitPro:  1000,
		Cooldown:       time.Hour,
		VisionMonthly:  2,
	}
}

func testSessionConfig() config.SessionConfig {
	return config.SessionConfig{
		TTL:         time.Hour,
		ProTTL:      30 * 24 * time.Hour,
		MaxTurns:    3,
		DefaultMode: "care",
	}
}
