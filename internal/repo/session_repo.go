// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for the Session
// model. Sessions are append-mostly: the active row is updated in place
// until it expires, then a fresh row is inserted.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/Arthurgann/hvostosovet/internal/domain"
)

// GetActiveSession returns the newest non-expired session for a user, or
// ErrNotFound. Expired rows are left in place; they simply stop matching.
func GetActiveSession(ctx context.Context, db *gorm.DB, userID string, now time.Time) (*domain.Session, error) {
	var s domain.Session
	err := db.WithContext(ctx).
		Where("user_id = ? AND expires_at > ?", userID, now).
		Order("updated_at DESC").
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateSession inserts a new session row.
func CreateSession(ctx context.Context, db *gorm.DB, s *domain.Session) error {
	return db.WithContext(ctx).Create(s).Error
}

// UpdateSessionContext rewrites the context blob of an existing session and
// extends its lifetime.
func UpdateSessionContext(ctx context.Context, db *gorm.DB, id string, contextJSON []byte, expiresAt, now time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"session_context": contextJSON,
			"expires_at":      expiresAt,
			"updated_at":      now,
		}).Error
}
