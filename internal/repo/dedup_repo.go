// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for the RequestDedup
// model: the "insert row if absent" primitive that turns concurrent
// duplicate submissions into a single winner plus read-back losers.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Arthurgann/hvostosovet/internal/domain"
)

// InsertDedupStarted inserts a fresh "started" record for requestID unless
// one already exists. The boolean reports whether this call created the row;
// false means a concurrent or earlier submission won the race.
func InsertDedupStarted(ctx context.Context, db *gorm.DB, requestID string, now time.Time) (bool, error) {
	rec := &domain.RequestDedup{
		RequestID: requestID,
		Status:    domain.DedupStarted,
		CreatedAt: now,
	}
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(rec)
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return false, nil
		}
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// GetDedup returns the record for requestID or ErrNotFound.
func GetDedup(ctx context.Context, db *gorm.DB, requestID string) (*domain.RequestDedup, error) {
	var rec domain.RequestDedup
	err := db.WithContext(ctx).
		Where("request_id = ?", requestID).
		First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// MarkDedupDone finishes the record with the exact response body that was
// served. The stored bytes are replayed verbatim on duplicate submissions.
func MarkDedupDone(ctx context.Context, db *gorm.DB, requestID string, body []byte, now time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.RequestDedup{}).
		Where("request_id = ?", requestID).
		Updates(map[string]any{
			"status":        domain.DedupDone,
			"response_json": body,
			"finished_at":   now,
		}).Error
}

// MarkDedupFailed finishes the record with a machine-readable error code and
// the HTTP status it was rejected with, so retries replay the same outcome.
func MarkDedupFailed(ctx context.Context, db *gorm.DB, requestID, errorText string, httpStatus int, now time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.RequestDedup{}).
		Where("request_id = ?", requestID).
		Updates(map[string]any{
			"status":      domain.DedupFailed,
			"error_text":  errorText,
			"http_status": httpStatus,
			"finished_at": now,
		}).Error
}

// AttachDedupUser links the record to a user once the user is resolved.
// A user id already attached (e.g. by the racing winner) is left alone.
func AttachDedupUser(ctx context.Context, db *gorm.DB, requestID, userID string) error {
	return db.WithContext(ctx).
		Model(&domain.RequestDedup{}).
		Where("request_id = ? AND user_id IS NULL", requestID).
		Update("user_id", userID).Error
}
