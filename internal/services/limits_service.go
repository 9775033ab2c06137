// Package services – LimitsService
//
// Daily request limits are tracked in one mutable row per user keyed by a
// UTC-day window. The window is rolled forward lazily inside the check
// itself, so no scheduler is needed: the first request after midnight UTC
// resets the counter and clears any cooldown. Within the window, an
// exhausted limit stamps a cooldown, and an active cooldown
// short-circuits the check before the counter is looked at.
package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/Arthurgann/hvostosovet/internal/config"
	"github.com/Arthurgann/hvostosovet/internal/domain"
	"github.com/Arthurgann/hvostosovet/internal/repo"
)

// LimitDecision is the outcome of a daily-limit check. Exactly one of
// Allowed/rejection applies; on rejection Code distinguishes an active
// cooldown ("rate_limited") from a freshly exhausted window
// ("daily_limit_exceeded").
type LimitDecision struct {
	Allowed        bool
	Code           string
	CooldownSec    int
	RemainingToday int
	ResetAt        time.Time
	Upsell         *Upsell
}

// Upsell is the purchase prompt attached to free-plan rejections.
type Upsell struct {
	Title  string `json:"title"`
	Text   string `json:"text"`
	Button string `json:"button"`
}

func freeUpsell() *Upsell {
	return &Upsell{
		Title:  "🔓 Pro-доступ",
		Text:   "С Pro вы можете задавать вопросы без дневных лимитов",
		Button: "Оформить Pro",
	}
}

// LimitsService enforces per-plan daily request limits.
type LimitsService struct {
	DB     *gorm.DB
	Limits config.LimitsConfig
}

// NewLimitsService constructs a LimitsService.
func NewLimitsService(db *gorm.DB, limits config.LimitsConfig) *LimitsService {
	return &LimitsService{DB: db, Limits: limits}
}

// utcDayWindow returns the [start, end) UTC-day window containing now.
func utcDayWindow(now time.Time) (time.Time, time.Time) {
	u := now.UTC()
	start := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.Add(24 * time.Hour)
}

// CheckAndIncrement applies the daily limit for one incoming request.
//
// Order matters: an expired window rolls first, zeroing the counter and
// the cooldown, so a cooldown never outlives its UTC day. Only then does
// an active cooldown reject ahead of the counter. When the counter hits
// the limit the cooldown is stamped, which converts subsequent retries
// from "daily_limit_exceeded" bookkeeping into cheap cooldown rejections.
func (s *LimitsService) CheckAndIncrement(ctx context.Context, user *domain.User, now time.Time) (*LimitDecision, error) {
	limit := s.Limits.DailyLimit(user.Plan)
	start, end := utcDayWindow(now)

	rl, err := repo.GetRateLimit(ctx, s.DB, user.ID)
	if err == repo.ErrNotFound {
		rl = &domain.RateLimit{
			UserID:        user.ID,
			WindowType:    domain.WindowDailyUTC,
			WindowStartAt: start,
			WindowEndAt:   end,
			Count:         0,
			LastRequestAt: now,
		}
		if err := repo.InsertRateLimit(ctx, s.DB, rl); err != nil {
			return nil, err
		}
		// Re-read in case a concurrent first request won the insert.
		if rl, err = repo.GetRateLimit(ctx, s.DB, user.ID); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	// Roll the window forward when the stored one has passed. The roll
	// clears the cooldown along with the counter.
	if !now.Before(rl.WindowEndAt) {
		rl.WindowStartAt = start
		rl.WindowEndAt = end
		rl.Count = 0
		rl.CooldownUntil = nil
	}

	if rl.CooldownUntil != nil && now.Before(*rl.CooldownUntil) {
		d := &LimitDecision{
			Code:        "rate_limited",
			CooldownSec: int(rl.CooldownUntil.Sub(now).Seconds()),
			ResetAt:     *rl.CooldownUntil,
		}
		if user.Plan == domain.PlanFree {
			d.Upsell = freeUpsell()
		}
		return d, nil
	}

	if rl.Count >= limit {
		until := now.Add(s.Limits.Cooldown)
		if err := repo.SetRateLimitCooldown(ctx, s.DB, user.ID, until, now); err != nil {
			return nil, err
		}
		d := &LimitDecision{
			Code:        "daily_limit_exceeded",
			CooldownSec: int(s.Limits.Cooldown.Seconds()),
			ResetAt:     rl.WindowEndAt,
		}
		if user.Plan == domain.PlanFree {
			d.Upsell = freeUpsell()
		}
		return d, nil
	}

	rl.Count++
	rl.LastRequestAt = now
	rl.CooldownUntil = nil
	if err := repo.SaveRateLimitWindow(ctx, s.DB, rl); err != nil {
		return nil, err
	}

	return &LimitDecision{
		Allowed:        true,
		RemainingToday: limit - rl.Count,
		ResetAt:        rl.WindowEndAt,
	}, nil
}

// Status reports the current window without consuming a request. Used by
// read-only endpoints; the window roll happens in memory only.
func (s *LimitsService) Status(ctx context.Context, user *domain.User, now time.Time) (*LimitDecision, error) {
	limit := s.Limits.DailyLimit(user.Plan)
	_, end := utcDayWindow(now)

	rl, err := repo.GetRateLimit(ctx, s.DB, user.ID)
	if err == repo.ErrNotFound {
		return &LimitDecision{Allowed: true, RemainingToday: limit, ResetAt: end}, nil
	}
	if err != nil {
		return nil, err
	}

	count := rl.Count
	resetAt := rl.WindowEndAt
	cooldown := rl.CooldownUntil
	if !now.Before(rl.WindowEndAt) {
		count = 0
		resetAt = end
		cooldown = nil
	}

	if cooldown != nil && now.Before(*cooldown) {
		return &LimitDecision{
			Code:        "rate_limited",
			CooldownSec: int(cooldown.Sub(now).Seconds()),
			ResetAt:     *cooldown,
		}, nil
	}

	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return &LimitDecision{Allowed: remaining > 0, RemainingToday: remaining, ResetAt: resetAt}, nil
}
