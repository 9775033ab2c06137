// Package services implements the business logic of the chat-request
// pipeline: request deduplication, quota enforcement, profile resolution,
// session memory, policy routing, and the orchestrating ask flow.
//
// This file centralizes service-level error values. Translation into HTTP
// statuses and error codes happens at the handler layer; the orchestrator
// additionally records terminal failures in the dedup store so retries
// replay the same rejection.
package services

import "errors"

var (
	// ErrVisionQuotaExceeded is returned when the monthly image-analysis
	// quota is exhausted. It is deliberately distinct from daily rate
	// limiting and never touches the daily counters.
	ErrVisionQuotaExceeded = errors.New("vision quota exceeded")

	// ErrMissingPetType is returned when a pet profile has no type after
	// merging with the stored record.
	ErrMissingPetType = errors.New("missing pet.type")

	// ErrPetNotFound is returned when a user has no active pet.
	ErrPetNotFound = errors.New("pet not found")
)
