package core

import (
	"context"
	"errors"
	"time"
)

// ErrProfileNotFound is returned by ProfileStore implementations when the
// referenced user has no stored profile.
var ErrProfileNotFound = errors.New("profile not found")

// Store is the persistence port for sessions, messages and results.
//
// All calls are best-effort with respect to the state machine: the
// orchestrator logs a warning on failure and keeps going rather than blocking
// or reverting a transition. Implementations therefore only need eventual
// consistency.
type Store interface {
	CreateSession(ctx context.Context, session *Session) error
	AppendMessage(ctx context.Context, sessionID string, msg Message) error
	UpdateState(ctx context.Context, sessionID string, state State) error
	UpdateEnd(ctx context.Context, sessionID string, endedAt time.Time, elapsedSeconds int) error
	CreateResult(ctx context.Context, result CompatibilityResult) error
}

// ProfileStore resolves participant ids to their profile vectors.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (ProfileVector, error)
}
