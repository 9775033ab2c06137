// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for the RateLimit
// model: one daily-window row per user, mutated in place.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Arthurgann/hvostosovet/internal/domain"
)

// GetRateLimit returns the user's window row or ErrNotFound.
func GetRateLimit(ctx context.Context, db *gorm.DB, userID string) (*domain.RateLimit, error) {
	var rl domain.RateLimit
	if err := db.WithContext(ctx).Where("user_id = ?", userID).First(&rl).Error; err != nil {
		return nil, err
	}
	return &rl, nil
}

// InsertRateLimit creates the initial window row for a user. A concurrent
// insert of the same row is not an error; callers re-read afterwards.
func InsertRateLimit(ctx context.Context, db *gorm.DB, rl *domain.RateLimit) error {
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(rl).Error
	if err != nil && isUniqueViolation(err) {
		return nil
	}
	return err
}

// SaveRateLimitWindow persists the full window state: bounds, count, last
// request time, and cooldown. cooldownUntil may be nil to clear a cooldown —
// the map form is used so GORM writes the NULL instead of skipping it.
func SaveRateLimitWindow(ctx context.Context, db *gorm.DB, rl *domain.RateLimit) error {
	return db.WithContext(ctx).
		Model(&domain.RateLimit{}).
		Where("user_id = ?", rl.UserID).
		Updates(map[string]any{
			"window_start_at": rl.WindowStartAt,
			"window_end_at":   rl.WindowEndAt,
			"count":           rl.Count,
			"last_request_at": rl.LastRequestAt,
			"cooldown_until":  rl.CooldownUntil,
		}).Error
}

// SetRateLimitCooldown stamps a cooldown without touching the counter.
func SetRateLimitCooldown(ctx context.Context, db *gorm.DB, userID string, until, now time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.RateLimit{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			"cooldown_until":  until,
			"last_request_at": now,
		}).Error
}
