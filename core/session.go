package core

import "time"

// State is the lifecycle phase of a conversation session. Transitions only
// move forward: Init -> Live -> Wrap -> Score.
type State int

const (
	// StateInit is the pre-conversation phase (profile loading, pre-score).
	StateInit State = iota
	// StateLive is the main conversational phase.
	StateLive
	// StateWrap is the closing-impression phase near the end of the window.
	StateWrap
	// StateScore is the terminal phase after the final result is computed.
	StateScore
)

// String returns the wire representation used in events and persistence.
func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateLive:
		return "LIVE"
	case StateWrap:
		return "WRAP"
	case StateScore:
		return "SCORE"
	default:
		return "UNKNOWN"
	}
}

// CanTransitionTo reports whether moving from s to next respects the strictly
// forward ordering of the state machine.
func (s State) CanTransitionTo(next State) bool { return next > s }

// MarshalText implements encoding.TextMarshaler so State serializes as its
// wire name inside JSON records.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "LIVE":
		*s = StateLive
	case "WRAP":
		*s = StateWrap
	case "SCORE":
		*s = StateScore
	default:
		*s = StateInit
	}
	return nil
}

// Session captures one timed conversation between two participants. It is
// owned exclusively by its orchestrator instance; no other component mutates
// it, so the struct itself carries no locking.
type Session struct {
	ID             string    `json:"id"`
	ParticipantA   string    `json:"participantA"`
	ParticipantB   string    `json:"participantB"`
	State          State     `json:"state"`
	Messages       []Message `json:"messages"`
	StartedAt      time.Time `json:"startedAt"`
	EndedAt        time.Time `json:"endedAt,omitempty"`
	ElapsedSeconds int       `json:"elapsedSeconds"`
}

// NewSession creates a session in the Init state.
func NewSession(id, participantA, participantB string, now time.Time) *Session {
	return &Session{
		ID:           id,
		ParticipantA: participantA,
		ParticipantB: participantB,
		State:        StateInit,
		StartedAt:    now.UTC(),
	}
}
