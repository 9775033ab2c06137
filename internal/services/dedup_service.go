// Package services – DedupService
//
// This file implements the idempotency store around the request_dedup
// table. Begin performs an atomic insert-if-absent followed by a read-back,
// which turns N concurrent submissions of one request id into exactly one
// FRESH winner; the losers either replay a finished outcome or get a
// conflict. Every terminal path of the orchestrator must call exactly one
// of Complete/Fail — a crash in between leaves the record "started"
// forever, which is an accepted limitation (operators clean up out of band).
package services

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"github.com/Arthurgann/hvostosovet/internal/domain"
	"github.com/Arthurgann/hvostosovet/internal/repo"
)

// dedupBegins counts Begin outcomes. A sustained rise of "in_progress"
// usually means records stuck in started after a crash.
var dedupBegins = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "dedup_begin_total",
		Help: "Request dedup begin outcomes.",
	},
	[]string{"outcome"},
)

func init() {
	prometheus.MustRegister(dedupBegins)
}

// BeginState classifies the outcome of DedupService.Begin.
type BeginState int

const (
	// BeginFresh: this caller owns the request and must process it.
	BeginFresh BeginState = iota
	// BeginInProgress: another caller owns it and has not finished.
	BeginInProgress
	// BeginReplayDone: a finished success exists; serve the stored bytes.
	BeginReplayDone
	// BeginReplayFailed: a finished failure exists; serve the same rejection.
	BeginReplayFailed
)

// BeginResult carries the replay payload for non-fresh outcomes.
type BeginResult struct {
	State BeginState
	// Response is the exact stored body for BeginReplayDone.
	Response []byte
	// ErrorText / HTTPStatus reconstruct the rejection for BeginReplayFailed.
	ErrorText  string
	HTTPStatus int
}

// DedupService tracks request lifecycle by client-supplied request id and
// gives the at-most-one-execution guarantee for POST /chat/ask.
type DedupService struct {
	DB *gorm.DB
}

// NewDedupService constructs a DedupService.
func NewDedupService(db *gorm.DB) *DedupService {
	return &DedupService{DB: db}
}

// Begin claims the request id or reports what happened to it already.
//
// The sequence mirrors the storage-as-mutex pattern: read, insert-if-absent,
// read again. The second read resolves the race where two callers pass the
// first read simultaneously — only one row exists afterwards, and its status
// tells each caller whether it won.
func (s *DedupService) Begin(ctx context.Context, requestID string, now time.Time) (*BeginResult, error) {
	if rec, err := repo.GetDedup(ctx, s.DB, requestID); err == nil {
		return countBegin(beginResultFor(rec, false)), nil
	} else if err != repo.ErrNotFound {
		return nil, err
	}

	inserted, err := repo.InsertDedupStarted(ctx, s.DB, requestID, now)
	if err != nil {
		return nil, err
	}
	if inserted {
		return countBegin(&BeginResult{State: BeginFresh}), nil
	}

	// Lost the insert race: the winner's row tells us whether it already
	// finished (replay) or is still running (conflict).
	rec, err := repo.GetDedup(ctx, s.DB, requestID)
	if err != nil {
		return nil, err
	}
	return countBegin(beginResultFor(rec, false)), nil
}

func countBegin(r *BeginResult) *BeginResult {
	outcome := "fresh"
	switch r.State {
	case BeginInProgress:
		outcome = "in_progress"
	case BeginReplayDone:
		outcome = "replay_done"
	case BeginReplayFailed:
		outcome = "replay_failed"
	}
	dedupBegins.WithLabelValues(outcome).Inc()
	return r
}

func beginResultFor(rec *domain.RequestDedup, ownInsert bool) *BeginResult {
	switch rec.Status {
	case domain.DedupDone:
		return &BeginResult{State: BeginReplayDone, Response: []byte(rec.ResponseJSON)}
	case domain.DedupFailed:
		return &BeginResult{
			State:      BeginReplayFailed,
			ErrorText:  rec.ErrorText,
			HTTPStatus: rec.HTTPStatus,
		}
	default:
		if ownInsert {
			return &BeginResult{State: BeginFresh}
		}
		return &BeginResult{State: BeginInProgress}
	}
}

// Complete finishes the record as done with the exact served body.
func (s *DedupService) Complete(ctx context.Context, requestID string, body []byte, now time.Time) error {
	return repo.MarkDedupDone(ctx, s.DB, requestID, body, now)
}

// Fail finishes the record as failed with a machine-readable code and the
// HTTP status it was served with.
func (s *DedupService) Fail(ctx context.Context, requestID, code string, httpStatus int, now time.Time) error {
	return repo.MarkDedupFailed(ctx, s.DB, requestID, code, httpStatus, now)
}

// AttachUser links the record to the user once resolved.
func (s *DedupService) AttachUser(ctx context.Context, requestID, userID string) error {
	return repo.AttachDedupUser(ctx, s.DB, requestID, userID)
}
