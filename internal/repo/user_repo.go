// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for the User model,
// including lazy account creation keyed by Telegram user id.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Arthurgann/hvostosovet/internal/domain"
)

// GetUser fetches a user by primary key or returns ErrNotFound.
func GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// GetOrCreateUserByTelegramID returns the user for a Telegram id, creating a
// free-plan account on first sight. Creation uses insert-if-absent plus a
// read-back so two concurrent first requests end up with the same row.
func GetOrCreateUserByTelegramID(ctx context.Context, db *gorm.DB, telegramUserID int64, now time.Time) (*domain.User, error) {
	var u domain.User
	err := db.WithContext(ctx).Where("telegram_user_id = ?", telegramUserID).First(&u).Error
	if err == nil {
		return &u, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	fresh := &domain.User{
		ID:             uuid.NewString(),
		TelegramUserID: telegramUserID,
		Plan:           domain.PlanFree,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(fresh).Error; err != nil && !isUniqueViolation(err) {
		return nil, err
	}

	// Read back: either our row or the one a concurrent request inserted.
	if err := db.WithContext(ctx).Where("telegram_user_id = ?", telegramUserID).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// UpdateUserVisionUsage persists the monthly vision counter and its reset
// date in one write.
func UpdateUserVisionUsage(ctx context.Context, db *gorm.DB, userID string, used int, resetAt time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"vision_images_used":     used,
			"vision_images_reset_at": resetAt,
		}).Error
}
