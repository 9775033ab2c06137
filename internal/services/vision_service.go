// Package services – VisionService
//
// Image analysis is metered per calendar month on the user row itself.
// Reserve/Commit are split on purpose: Reserve only verifies headroom
// before the expensive upstream call, and Commit increments the counter
// after a successful, non-refused answer. A failed or refused call
// therefore never consumes quota.
package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/Arthurgann/hvostosovet/internal/domain"
	"github.com/Arthurgann/hvostosovet/internal/repo"
)

// VisionStatus reports the monthly image quota as seen at check time.
type VisionStatus struct {
	Used      int
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// VisionService meters monthly image-analysis usage.
type VisionService struct {
	DB      *gorm.DB
	Monthly int
}

// NewVisionService constructs a VisionService with the per-month limit.
func NewVisionService(db *gorm.DB, monthly int) *VisionService {
	return &VisionService{DB: db, Monthly: monthly}
}

// firstOfNextMonth returns midnight UTC on the first day of the month after
// now. time.Date normalizes month 13 into January of the next year.
func firstOfNextMonth(now time.Time) time.Time {
	u := now.UTC()
	return time.Date(u.Year(), u.Month()+1, 1, 0, 0, 0, 0, time.UTC)
}

// Reserve verifies headroom without consuming it. A lapsed reset date rolls
// the counter over to zero, persisting the rollover so /me reads stay
// consistent. ErrVisionQuotaExceeded is returned alongside the status so
// callers can still render the numbers.
func (s *VisionService) Reserve(ctx context.Context, user *domain.User, now time.Time) (*VisionStatus, error) {
	used := user.VisionImagesUsed
	resetAt := firstOfNextMonth(now)

	if user.VisionImagesResetAt == nil || !now.Before(*user.VisionImagesResetAt) {
		used = 0
		if err := repo.UpdateUserVisionUsage(ctx, s.DB, user.ID, 0, resetAt); err != nil {
			return nil, err
		}
		user.VisionImagesUsed = 0
		user.VisionImagesResetAt = &resetAt
	} else {
		resetAt = *user.VisionImagesResetAt
	}

	st := &VisionStatus{
		Used:      used,
		Limit:     s.Monthly,
		Remaining: s.Monthly - used,
		ResetAt:   resetAt,
	}
	if st.Remaining <= 0 {
		st.Remaining = 0
		return st, ErrVisionQuotaExceeded
	}
	return st, nil
}

// Commit consumes one image from the quota after a successful call. The
// returned status reflects the post-commit counter.
func (s *VisionService) Commit(ctx context.Context, user *domain.User, now time.Time) (*VisionStatus, error) {
	resetAt := firstOfNextMonth(now)
	if user.VisionImagesResetAt != nil && now.Before(*user.VisionImagesResetAt) {
		resetAt = *user.VisionImagesResetAt
	}

	used := user.VisionImagesUsed + 1
	if err := repo.UpdateUserVisionUsage(ctx, s.DB, user.ID, used, resetAt); err != nil {
		return nil, err
	}
	user.VisionImagesUsed = used
	user.VisionImagesResetAt = &resetAt

	remaining := s.Monthly - used
	if remaining < 0 {
		remaining = 0
	}
	return &VisionStatus{Used: used, Limit: s.Monthly, Remaining: remaining, ResetAt: resetAt}, nil
}

// Status reports the quota without reserving or committing, rolling the
// window over in memory only. Used by read-only endpoints.
func (s *VisionService) Status(user *domain.User, now time.Time) *VisionStatus {
	used := user.VisionImagesUsed
	resetAt := firstOfNextMonth(now)
	if user.VisionImagesResetAt != nil && now.Before(*user.VisionImagesResetAt) {
		resetAt = *user.VisionImagesResetAt
	} else {
		used = 0
	}
	remaining := s.Monthly - used
	if remaining < 0 {
		remaining = 0
	}
	return &VisionStatus{Used: used, Limit: s.Monthly, Remaining: remaining, ResetAt: resetAt}
}
