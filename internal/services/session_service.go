// Package services – SessionService
//
// Short-term conversation memory. Each user has at most one active session
// row whose context blob carries recent turns, the active dialog mode, and
// an optional rolling summary. The blob is normalized defensively on every
// read: rows written by older code may be missing fields or carry junk, and
// the service must degrade to an empty context rather than fail a request.
package services

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Arthurgann/hvostosovet/internal/config"
	"github.com/Arthurgann/hvostosovet/internal/domain"
	"github.com/Arthurgann/hvostosovet/internal/repo"
)

// Dialog modes. An unknown requested mode is ignored rather than rejected;
// the stored or default mode applies instead.
var knownModes = map[string]struct{}{
	"care":      {},
	"emergency": {},
	"vaccines":  {},
}

// SessionService loads, normalizes, and persists conversation memory.
type SessionService struct {
	DB  *gorm.DB
	Cfg config.SessionConfig
}

// NewSessionService constructs a SessionService.
func NewSessionService(db *gorm.DB, cfg config.SessionConfig) *SessionService {
	return &SessionService{DB: db, Cfg: cfg}
}

// SessionState is an active session with its normalized context. Session is
// nil when the user has no active session.
type SessionState struct {
	UserID  string
	Session *domain.Session
	Context domain.Context
}

// LoadActive returns the user's active session with a normalized context,
// or an empty state when none exists.
func (s *SessionService) LoadActive(ctx context.Context, userID string, now time.Time) (*SessionState, error) {
	sess, err := repo.GetActiveSession(ctx, s.DB, userID, now)
	if err == repo.ErrNotFound {
		return &SessionState{UserID: userID, Context: emptyContext()}, nil
	}
	if err != nil {
		return nil, err
	}
	return &SessionState{
		UserID:  userID,
		Session: sess,
		Context: s.Normalize([]byte(sess.SessionContext)),
	}, nil
}

func emptyContext() domain.Context {
	return domain.Context{V: domain.ContextVersion, Turns: []domain.Turn{}}
}

// Normalize parses a raw context blob into the current schema. Malformed
// JSON, a non-object, or a wrong version all yield an empty context.
// Fields are coerced one by one, so junk in one field does not discard the
// others; the turn list is additionally capped to the configured maximum,
// newest kept.
func (s *SessionService) Normalize(raw []byte) domain.Context {
	out := emptyContext()
	if len(raw) == 0 {
		return out
	}
	var fields struct {
		V       json.RawMessage `json:"v"`
		Active  json.RawMessage `json:"active"`
		Turns   json.RawMessage `json:"turns"`
		Summary json.RawMessage `json:"summary"`
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return out
	}
	var v int
	if len(fields.V) > 0 {
		if err := json.Unmarshal(fields.V, &v); err != nil {
			return out
		}
	}
	if v != 0 && v != domain.ContextVersion {
		return out
	}

	var active domain.ActiveState
	if len(fields.Active) > 0 {
		_ = json.Unmarshal(fields.Active, &active)
	}
	if _, ok := knownModes[active.Mode]; ok {
		out.Active = active
	}

	if len(fields.Summary) > 0 {
		var summary string
		_ = json.Unmarshal(fields.Summary, &summary)
		out.Summary = summary
	}

	var turns []domain.Turn
	if len(fields.Turns) > 0 {
		_ = json.Unmarshal(fields.Turns, &turns)
	}
	if max := s.Cfg.MaxTurns; max > 0 && len(turns) > max {
		turns = turns[len(turns)-max:]
	}
	for _, t := range turns {
		if strings.TrimSpace(t.Q) == "" && strings.TrimSpace(t.A) == "" {
			continue
		}
		out.Turns = append(out.Turns, t)
	}
	return out
}

// EffectiveMode picks the dialog mode for this turn: an explicitly
// requested known mode wins, then the session's stored active mode, then
// the configured default.
func (s *SessionService) EffectiveMode(c domain.Context, requested string) string {
	if _, ok := knownModes[requested]; ok {
		return requested
	}
	if _, ok := knownModes[c.Active.Mode]; ok {
		return c.Active.Mode
	}
	return s.Cfg.DefaultMode
}

// BuildPrefix renders the context as dialog text for the model: the rolling
// summary first, then each turn as labelled user/assistant lines. Returns
// "" when there is nothing to say.
func (s *SessionService) BuildPrefix(c domain.Context) string {
	var blocks []string
	if sum := strings.TrimSpace(c.Summary); sum != "" {
		blocks = append(blocks, sum)
	}
	for _, t := range c.Turns {
		q := strings.TrimSpace(t.Q)
		a := strings.TrimSpace(t.A)
		if q == "" && a == "" {
			continue
		}
		var lines []string
		if q != "" {
			lines = append(lines, "Пользователь: "+q)
		}
		if a != "" {
			lines = append(lines, "Ассистент: "+a)
		}
		blocks = append(blocks, strings.Join(lines, "\n"))
	}
	return strings.Join(blocks, "\n\n")
}

// AppendTurn adds this exchange to the context and stamps the active mode.
// The turn list is capped oldest-first so the window slides forward.
func (s *SessionService) AppendTurn(c domain.Context, mode, question, answer string, now time.Time) domain.Context {
	c.V = domain.ContextVersion
	c.Turns = append(c.Turns, domain.Turn{T: now, Mode: mode, Q: question, A: answer})
	if max := s.Cfg.MaxTurns; max > 0 && len(c.Turns) > max {
		c.Turns = c.Turns[len(c.Turns)-max:]
	}
	c.Active = domain.ActiveState{Mode: mode, UpdatedAt: &now}
	return c
}

// Persist writes the context back: the active session is updated in place
// and its lifetime extended, otherwise a fresh row is created. The TTL is
// per plan. Returns the session id and its new expiry.
func (s *SessionService) Persist(ctx context.Context, state *SessionState, c domain.Context, plan string, now time.Time) (string, time.Time, error) {
	blob, err := json.Marshal(c)
	if err != nil {
		return "", time.Time{}, err
	}
	expiresAt := now.Add(s.Cfg.SessionTTL(plan))

	if state.Session != nil {
		if err := repo.UpdateSessionContext(ctx, s.DB, state.Session.ID, blob, expiresAt, now); err != nil {
			return "", time.Time{}, err
		}
		return state.Session.ID, expiresAt, nil
	}

	sess := &domain.Session{
		ID:             uuid.NewString(),
		UserID:         state.UserID,
		SessionContext: blob,
		ExpiresAt:      expiresAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := repo.CreateSession(ctx, s.DB, sess); err != nil {
		return "", time.Time{}, err
	}
	return sess.ID, expiresAt, nil
}
