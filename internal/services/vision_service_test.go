package services

import (
	"context"
	"testing"
	"time"

	"github.com/Arthurgann/hvostosovet/internal/domain"
	"github.com/Arthurgann/hvostosovet/internal/repo"
)

func TestVisionService_ReserveCommitCycle(t *testing.T) {
	db := newTestDB(t)
	svc := NewVisionService(db, 2)
	user := newTestUser(t, db, 200, domain.PlanPro)
	ctx := context.Background()
	now := time.Date(2026, time.August, 15, 12, 0, 0, 0, time.UTC)

	st, err := svc.Reserve(ctx, user, now)
	if err != nil {
		t.Fatalf("reserve 1: %v", err)
	}
	if st.Used != 0 || st.Remaining != 2 {
		t.Fatalf("reserve 1 = %+v, want 0 used / 2 remaining", st)
	}
	wantReset := time.Date(2026, time.September, 1, 0, 0, 0, 0, time.UTC)
	if !st.ResetAt.Equal(wantReset) {
		t.Fatalf("ResetAt = %v, want %v", st.ResetAt, wantReset)
	}

	st, err = svc.Commit(ctx, user, now)
	if err != nil {
		t.Fatalf("commit 1: %v", err)
	}
	if st.Used != 1 || st.Remaining != 1 {
		t.Fatalf("commit 1 = %+v, want 1 used / 1 remaining", st)
	}
	if _, err := svc.Commit(ctx, user, now); err != nil {
		t.Fatalf("commit 2: %v", err)
	}

	st, err = svc.Reserve(ctx, user, now)
	if err != ErrVisionQuotaExceeded {
		t.Fatalf("reserve after exhaustion: err = %v, want ErrVisionQuotaExceeded", err)
	}
	if st == nil || st.Remaining != 0 || st.Used != 2 {
		t.Fatalf("exceeded status = %+v, want 2 used / 0 remaining", st)
	}

	// The persisted row must agree with the in-memory state.
	got, err := repo.GetUser(ctx, db, user.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if got.VisionImagesUsed != 2 {
		t.Fatalf("persisted used = %d, want 2", got.VisionImagesUsed)
	}
}

func TestVisionService_MonthlyRollover(t *testing.T) {
	db := newTestDB(t)
	svc := NewVisionService(db, 2)
	user := newTestUser(t, db, 201, domain.PlanPro)
	ctx := context.Background()

	// Exhaust the quota in August.
	august := time.Date(2026, time.August, 20, 10, 0, 0, 0, time.UTC)
	if _, err := svc.Reserve(ctx, user, august); err != nil {
		t.Fatalf("seed reserve: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := svc.Commit(ctx, user, august); err != nil {
			t.Fatalf("commit %d: %v", i, err)
		}
	}

	// September: the lapsed reset date rolls the counter to zero.
	september := time.Date(2026, time.September, 2, 10, 0, 0, 0, time.UTC)
	st, err := svc.Reserve(ctx, user, september)
	if err != nil {
		t.Fatalf("september reserve: %v", err)
	}
	if st.Used != 0 || st.Remaining != 2 {
		t.Fatalf("september status = %+v, want reset counter", st)
	}
	wantReset := time.Date(2026, time.October, 1, 0, 0, 0, 0, time.UTC)
	if !st.ResetAt.Equal(wantReset) {
		t.Fatalf("ResetAt = %v, want %v", st.ResetAt, wantReset)
	}

	// The rollover is persisted, not just in memory.
	got, err := repo.GetUser(ctx, db, user.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if got.VisionImagesUsed != 0 {
		t.Fatalf("persisted used = %d, want 0 after rollover", got.VisionImagesUsed)
	}
}

func TestVisionService_StatusIsReadOnly(t *testing.T) {
	db := newTestDB(t)
	svc := NewVisionService(db, 2)
	user := newTestUser(t, db, 202, domain.PlanPro)
	ctx := context.Background()
	now := time.Date(2026, time.August, 15, 12, 0, 0, 0, time.UTC)

	if _, err := svc.Reserve(ctx, user, now); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if _, err := svc.Commit(ctx, user, now); err != nil {
		t.Fatalf("commit: %v", err)
	}

	st := svc.Status(user, now)
	if st.Used != 1 || st.Remaining != 1 {
		t.Fatalf("status = %+v, want 1 used / 1 remaining", st)
	}

	// Past the reset date the counter reads as zero without a write.
	st = svc.Status(user, time.Date(2026, time.September, 2, 0, 0, 0, 0, time.UTC))
	if st.Used != 0 || st.Remaining != 2 {
		t.Fatalf("post-reset status = %+v, want fresh window", st)
	}
	got, err := repo.GetUser(ctx, db, user.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if got.VisionImagesUsed != 1 {
		t.Fatalf("persisted used = %d, Status must not write", got.VisionImagesUsed)
	}
}
