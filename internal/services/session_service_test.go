package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/Arthurgann/hvostosovet/internal/domain"
	"github.com/Arthurgann/hvostosovet/internal/repo"
)

func newSessionService(t *testing.T) *SessionService {
	t.Helper()
	return NewSessionService(newTestDB(t), testSessionConfig())
}

func TestSessionNormalize(t *testing.T) {
	svc := newSessionService(t) // MaxTurns = 3

	cases := map[string]struct {
		raw       string
		wantTurns int
		wantMode  string
	}{
		"empty blob":       {"", 0, ""},
		"garbage":          {"not json", 0, ""},
		"wrong version":    {`{"v":7,"turns":[{"q":"a","a":"b"}]}`, 0, ""},
		"unknown mode":     {`{"v":1,"active":{"mode":"astrology"},"turns":[]}`, 0, ""},
		"known mode":       {`{"v":1,"active":{"mode":"emergency"},"turns":[]}`, 0, "emergency"},
		"empty turns drop": {`{"v":1,"turns":[{"q":"","a":" "},{"q":"жив","a":"да"}]}`, 1, ""},
		"junk turns":       {`{"v":1,"active":{"mode":"care"},"turns":"junk"}`, 0, "care"},
		"junk active":      {`{"v":1,"active":"junk","turns":[{"q":"жив","a":"да"}]}`, 1, ""},
		"turns capped": {`{"v":1,"turns":[
			{"q":"1","a":"1"},{"q":"2","a":"2"},{"q":"3","a":"3"},{"q":"4","a":"4"},{"q":"5","a":"5"}
		]}`, 3, ""},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			c := svc.Normalize([]byte(tc.raw))
			if c.V != domain.ContextVersion {
				t.Errorf("V = %d, want %d", c.V, domain.ContextVersion)
			}
			if len(c.Turns) != tc.wantTurns {
				t.Errorf("turns = %d, want %d", len(c.Turns), tc.wantTurns)
			}
			if c.Active.Mode != tc.wantMode {
				t.Errorf("mode = %q, want %q", c.Active.Mode, tc.wantMode)
			}
		})
	}

	// Capping keeps the newest turns.
	c := svc.Normalize([]byte(`{"v":1,"turns":[
		{"q":"1","a":"1"},{"q":"2","a":"2"},{"q":"3","a":"3"},{"q":"4","a":"4"}
	]}`))
	if len(c.Turns) != 3 || c.Turns[0].Q != "2" || c.Turns[2].Q != "4" {
		t.Fatalf("capped turns = %+v, want the newest three", c.Turns)
	}

	// One unusable field must not wipe the others: the summary and the
	// active mode survive a malformed turn list.
	c = svc.Normalize([]byte(`{"v":1,"active":{"mode":"care"},"turns":{"oops":true},"summary":"итог беседы"}`))
	if c.Summary != "итог беседы" {
		t.Fatalf("Summary = %q, want the stored summary", c.Summary)
	}
	if c.Active.Mode != "care" || len(c.Turns) != 0 {
		t.Fatalf("context = %+v, want mode care and no turns", c)
	}
}

func TestEffectiveMode(t *testing.T) {
	svc := newSessionService(t) // DefaultMode = care

	cases := map[string]struct {
		stored    string
		requested string
		want      string
	}{
		"requested wins":           {"care", "emergency", "emergency"},
		"unknown requested":        {"vaccines", "astrology", "vaccines"},
		"stored fallback":          {"emergency", "", "emergency"},
		"default when nothing":     {"", "", "care"},
		"unknown stored → default": {"junk", "", "care"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			c := domain.Context{Active: domain.ActiveState{Mode: tc.stored}}
			if got := svc.EffectiveMode(c, tc.requested); got != tc.want {
				t.Fatalf("EffectiveMode(%q, %q) = %q, want %q", tc.stored, tc.requested, got, tc.want)
			}
		})
	}
}

func TestBuildPrefix(t *testing.T) {
	svc := newSessionService(t)

	c := domain.Context{
		V:       domain.ContextVersion,
		Summary: "Собака, 3 года, жаловались на аппетит.",
		Turns: []domain.Turn{
			{Q: "Чем кормить?", A: "Сбалансированным кормом."},
			{Q: "", A: ""},
			{Q: "А сколько раз?", A: "Дважды в день."},
		},
	}
	got := svc.BuildPrefix(c)

	wantBlocks := []string{
		"Собака, 3 года, жаловались на аппетит.",
		"Пользователь: Чем кормить?\nАссистент: Сбалансированным кормом.",
		"Пользователь: А сколько раз?\nАссистент: Дважды в день.",
	}
	if got != strings.Join(wantBlocks, "\n\n") {
		t.Fatalf("prefix =\n%s", got)
	}

	if svc.BuildPrefix(domain.Context{}) != "" {
		t.Fatal("empty context must render an empty prefix")
	}
}

func TestAppendTurn_CapsOldestFirst(t *testing.T) {
	svc := newSessionService(t) // MaxTurns = 3
	now := time.Date(2026, time.August, 15, 12, 0, 0, 0, time.UTC)

	c := domain.Context{}
	for i, q := range []string{"1", "2", "3", "4"} {
		c = svc.AppendTurn(c, "care", q, "ответ "+q, now.Add(time.Duration(i)*time.Minute))
	}

	if len(c.Turns) != 3 {
		t.Fatalf("turns = %d, want 3", len(c.Turns))
	}
	if c.Turns[0].Q != "2" || c.Turns[2].Q != "4" {
		t.Fatalf("window = [%s %s %s], want [2 3 4]", c.Turns[0].Q, c.Turns[1].Q, c.Turns[2].Q)
	}
	if c.Active.Mode != "care" || c.Active.UpdatedAt == nil {
		t.Fatalf("active = %+v, want stamped care mode", c.Active)
	}
	if c.V != domain.ContextVersion {
		t.Fatalf("V = %d, want %d", c.V, domain.ContextVersion)
	}
}

func TestSessionPersist_CreateThenUpdate(t *testing.T) {
	db := newTestDB(t)
	svc := NewSessionService(db, testSessionConfig())
	ctx := context.Background()
	now := time.Date(2026, time.August, 15, 12, 0, 0, 0, time.UTC)
	user := newTestUser(t, db, 400, domain.PlanFree)

	state, err := svc.LoadActive(ctx, user.ID, now)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if state.Session != nil {
		t.Fatal("expected no active session")
	}

	c := svc.AppendTurn(state.Context, "care", "Вопрос", "Ответ", now)
	id1, exp1, err := svc.Persist(ctx, state, c, domain.PlanFree, now)
	if err != nil {
		t.Fatalf("persist create: %v", err)
	}
	if id1 == "" {
		t.Fatal("empty session id")
	}
	if want := now.Add(time.Hour); !exp1.Equal(want) {
		t.Fatalf("free expiry = %v, want %v", exp1, want)
	}

	// Reload and append again: the same row is updated, lifetime extended.
	state, err = svc.LoadActive(ctx, user.ID, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if state.Session == nil || state.Session.ID != id1 {
		t.Fatalf("reload found %+v, want session %s", state.Session, id1)
	}
	if len(state.Context.Turns) != 1 || state.Context.Turns[0].Q != "Вопрос" {
		t.Fatalf("reloaded context = %+v", state.Context)
	}

	c = svc.AppendTurn(state.Context, "care", "Ещё вопрос", "Ещё ответ", now.Add(time.Minute))
	id2, exp2, err := svc.Persist(ctx, state, c, domain.PlanFree, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("persist update: %v", err)
	}
	if id2 != id1 {
		t.Fatalf("update created a new session: %s vs %s", id2, id1)
	}
	if !exp2.After(exp1) {
		t.Fatalf("expiry not extended: %v vs %v", exp2, exp1)
	}

	sess, err := repo.GetActiveSession(ctx, db, user.ID, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got := svc.Normalize([]byte(sess.SessionContext)); len(got.Turns) != 2 {
		t.Fatalf("stored turns = %d, want 2", len(got.Turns))
	}
}

func TestSessionPersist_ProTTL(t *testing.T) {
	db := newTestDB(t)
	svc := NewSessionService(db, testSessionConfig())
	ctx := context.Background()
	now := time.Date(2026, time.August, 15, 12, 0, 0, 0, time.UTC)
	user := newTestUser(t, db, 401, domain.PlanPro)

	state, err := svc.LoadActive(ctx, user.ID, now)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	_, exp, err := svc.Persist(ctx, state, svc.AppendTurn(state.Context, "care", "q", "a", now), domain.PlanPro, now)
	if err != nil {
		t.Fatalf("persist: %v", err)
	}
	if want := now.Add(30 * 24 * time.Hour); !exp.Equal(want) {
		t.Fatalf("pro expiry = %v, want %v", exp, want)
	}
}
