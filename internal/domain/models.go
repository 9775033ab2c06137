// Package domain defines the persistence models for users, pets, sessions,
// rate-limit windows, and request deduplication records. These types are
// mapped with GORM and form the core data layer of the pet-care chatbot
// backend. All cross-request state lives in these rows; the application
// holds no authoritative in-memory state between requests.
package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Subscription plans. Plan gating is data-driven: "pro" is not special-cased
// in code beyond profile resolution; its limits come from configuration.
const (
	PlanFree = "free"
	PlanPro  = "pro"
)

// Dedup record lifecycle. Transitions are started→done or started→failed,
// both terminal. A record stuck in "started" (crash between begin and
// finish) is a known limitation; cleanup is an operational concern.
const (
	DedupStarted = "started"
	DedupDone    = "done"
	DedupFailed  = "failed"
)

// WindowDailyUTC is the only rate-limit window type in use: a fixed UTC
// calendar day.
const WindowDailyUTC = "daily_utc"

// User is a chatbot account, created lazily on the first request carrying an
// unseen Telegram user id.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - TelegramUserID: external identity; unique.
//   - Plan: "free" or "pro".
//   - VisionImagesUsed / VisionImagesResetAt: monthly image-analysis quota
//     state for paying users; the reset date is the first of the next month
//     and is rolled forward lazily during quota checks.
type User struct {
	ID                  string     `json:"id"                     gorm:"type:char(36);primaryKey"`
	TelegramUserID      int64      `json:"telegram_user_id"       gorm:"not null;uniqueIndex:ux_users_tg"`
	Plan                string     `json:"plan"                   gorm:"type:varchar(16);not null;default:'free'"`
	VisionImagesUsed    int        `json:"vision_images_used"     gorm:"not null;default:0"`
	VisionImagesResetAt *time.Time `json:"vision_images_reset_at"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Pet is a stored pet profile. The typed columns (type, name, sex, …) mirror
// the corresponding keys of the free-form Profile JSON; when the two
// disagree, columns win (they are the source of truth for base fields).
// Only the most recently created non-archived pet per user is "active".
//
// Archival is an explicit soft delete: archived pets keep their row but are
// excluded from active-pet resolution.
type Pet struct {
	ID         string            `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID     string            `json:"user_id"    gorm:"type:char(36);not null;index:idx_user_pets"`
	Type       string            `json:"type"       gorm:"type:varchar(32);not null"`
	Name       string            `json:"name"       gorm:"type:varchar(255)"`
	Sex        string            `json:"sex"        gorm:"type:varchar(16);not null;default:'unknown'"`
	BirthDate  *time.Time        `json:"birth_date" gorm:"type:date"`
	AgeText    string            `json:"age_text"   gorm:"type:varchar(64)"`
	Breed      string            `json:"breed"      gorm:"type:varchar(255)"`
	Profile    datatypes.JSONMap `json:"profile"`
	ArchivedAt *time.Time        `json:"-"          gorm:"index"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// TableName returns the database table name for Pet.
func (Pet) TableName() string { return "pets" }

// Session holds one conversational window for a user. SessionContext is the
// versioned JSON blob described by Context; it is stored raw and normalized
// defensively on read because rows written by older schema versions may
// still be present. A session is active while expires_at > now; at most one
// active session per user is consulted.
type Session struct {
	ID             string         `json:"id"              gorm:"type:char(36);primaryKey"`
	UserID         string         `json:"user_id"         gorm:"type:char(36);not null;index:idx_user_sessions"`
	SessionContext datatypes.JSON `json:"session_context"`
	ExpiresAt      time.Time      `json:"expires_at"      gorm:"not null;index"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"      gorm:"index"`
}

// TableName returns the database table name for Session.
func (Session) TableName() string { return "sessions" }

// RateLimit is the single daily-quota row per user. The window is a fixed
// UTC calendar day [WindowStartAt, WindowEndAt); an expired window is reset
// in place during the next check rather than by a background job.
//
// Invariant: Count never exceeds the configured daily limit without
// CooldownUntil being set.
type RateLimit struct {
	UserID        string     `json:"user_id"         gorm:"type:char(36);primaryKey"`
	WindowType    string     `json:"window_type"     gorm:"type:varchar(16);not null;default:'daily_utc'"`
	WindowStartAt time.Time  `json:"window_start_at" gorm:"not null"`
	WindowEndAt   time.Time  `json:"window_end_at"   gorm:"not null"`
	Count         int        `json:"count"           gorm:"not null;default:0"`
	LastRequestAt time.Time  `json:"last_request_at"`
	CooldownUntil *time.Time `json:"cooldown_until"`
}

// TableName returns the database table name for RateLimit.
func (RateLimit) TableName() string { return "rate_limits" }

// RequestDedup records the lifecycle of one client request id, enforcing
// at-most-once execution of POST /chat/ask under concurrent duplicate
// submissions. The row itself is the cross-process mutex: "insert if absent"
// on the primary key elects exactly one winner.
//
// Fields:
//   - RequestID: client-supplied UUID, primary key.
//   - UserID: attached once the user is resolved (null before that).
//   - Status: started | done | failed (see Dedup* constants).
//   - ResponseJSON: exact response body, set only when done; replays must
//     return these bytes verbatim.
//   - ErrorText / HTTPStatus: machine-readable failure code and the HTTP
//     status it was served with, so a retry replays the same rejection.
//
// Rows are never deleted by the application; retention is external.
type RequestDedup struct {
	RequestID    string         `json:"request_id"    gorm:"type:char(36);primaryKey"`
	UserID       *string        `json:"user_id"       gorm:"type:char(36)"`
	Status       string         `json:"status"        gorm:"type:varchar(16);not null"`
	ResponseJSON datatypes.JSON `json:"response_json"`
	ErrorText    string         `json:"error_text"    gorm:"type:text"`
	HTTPStatus   int            `json:"http_status"`
	CreatedAt    time.Time      `json:"created_at"`
	FinishedAt   *time.Time     `json:"finished_at"`
}

// TableName returns the database table name for RequestDedup.
func (RequestDedup) TableName() string { return "request_dedup" }
