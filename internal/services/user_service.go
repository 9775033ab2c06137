// Package services – UserService
//
// Accounts are created lazily: the first request carrying an unseen
// Telegram user id materializes a free-plan user row. Plan upgrades happen
// out of band (billing), so this service only reads the plan.
package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/Arthurgann/hvostosovet/internal/domain"
	"github.com/Arthurgann/hvostosovet/internal/repo"
)

// UserService resolves accounts from external identities.
type UserService struct {
	DB *gorm.DB
}

// NewUserService constructs a UserService.
func NewUserService(db *gorm.DB) *UserService {
	return &UserService{DB: db}
}

// GetOrCreateByTelegramID returns the account for a Telegram user id,
// creating a free-plan one when none exists. Safe under concurrent first
// requests: the insert is conflict-tolerant and followed by a read-back.
func (s *UserService) GetOrCreateByTelegramID(ctx context.Context, telegramUserID int64, now time.Time) (*domain.User, error) {
	return repo.GetOrCreateUserByTelegramID(ctx, s.DB, telegramUserID, now)
}

// Get returns the account by primary key.
func (s *UserService) Get(ctx context.Context, id string) (*domain.User, error) {
	return repo.GetUser(ctx, s.DB, id)
}
