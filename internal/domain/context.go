// Package domain defines the core persistence models for the application.
// This file declares the versioned session-context schema stored in the
// sessions.session_context JSON column.
package domain

import "time"

// ContextVersion is the current session-context schema version. Rows with a
// lower (or missing) version are upgraded by normalization on read, never
// rejected.
const ContextVersion = 1

// Turn is one question/answer exchange retained in the sliding window.
type Turn struct {
	// T is the time the turn was appended (UTC).
	T time.Time `json:"t"`
	// Mode the turn was answered in (care, emergency, vaccines).
	Mode string `json:"mode,omitempty"`
	// Q is the user's question, A the assistant's answer.
	Q string `json:"q"`
	A string `json:"a"`
}

// ActiveState carries the sticky conversation mode.
type ActiveState struct {
	Mode      string     `json:"mode,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// Context is the session memory blob: a bounded window of past turns, the
// active mode, and an optional running summary of evicted history.
type Context struct {
	V       int         `json:"v"`
	Active  ActiveState `json:"active"`
	Turns   []Turn      `json:"turns"`
	Summary string      `json:"summary,omitempty"`
}
