package core

import "time"

// EventType discriminates the outbound lifecycle events a session emits.
type EventType string

const (
	// EventStateChange announces a forward state transition.
	EventStateChange EventType = "state_change"
	// EventAgentMessage carries one enriched persona utterance.
	EventAgentMessage EventType = "agent_message"
	// EventCompatibilityUpdate carries the smoothed score after a turn.
	EventCompatibilityUpdate EventType = "compatibility_update"
	// EventTimerTick reports elapsed conversation seconds once per second.
	EventTimerTick EventType = "timer_tick"
	// EventConversationEnd carries the final persisted result.
	EventConversationEnd EventType = "conversation_end"
	// EventError reports an unrecoverable session-start failure.
	EventError EventType = "error"
)

// Event is the immutable unit of communication from a session to the
// transport layer. Exactly one payload field is non-zero, matching Type.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"sessionId"`
	Timestamp time.Time `json:"timestamp"`

	State          string               `json:"state,omitempty"`
	Message        *Message             `json:"message,omitempty"`
	Score          int                  `json:"score,omitempty"`
	Breakdown      *ScoreBreakdown      `json:"breakdown,omitempty"`
	ElapsedSeconds int                  `json:"elapsedSeconds,omitempty"`
	Result         *CompatibilityResult `json:"result,omitempty"`
	Error          string               `json:"error,omitempty"`
}

// EventSink receives outbound events. Implementations must be safe for
// concurrent use and must not block the caller for long; the orchestrator
// emits from its scheduling goroutines.
type EventSink interface {
	Emit(event Event)
}

// NoOpSink discards all events. Useful as a default and in tests.
type NoOpSink struct{}

// Emit implements EventSink.
func (NoOpSink) Emit(Event) {}

// NewStateChangeEvent announces the transition of sessionID into state.
func NewStateChangeEvent(sessionID string, state State, now time.Time) Event {
	return Event{Type: EventStateChange, SessionID: sessionID, Timestamp: now.UTC(), State: state.String()}
}

// NewAgentMessageEvent wraps an enriched message for outbound delivery.
func NewAgentMessageEvent(msg Message, now time.Time) Event {
	return Event{Type: EventAgentMessage, SessionID: msg.SessionID, Timestamp: now.UTC(), Message: &msg}
}

// NewCompatibilityUpdateEvent carries the current smoothed score and its
// component breakdown.
func NewCompatibilityUpdateEvent(sessionID string, score int, breakdown ScoreBreakdown, now time.Time) Event {
	return Event{Type: EventCompatibilityUpdate, SessionID: sessionID, Timestamp: now.UTC(), Score: score, Breakdown: &breakdown}
}

// NewTimerTickEvent reports the elapsed seconds of a running session.
func NewTimerTickEvent(sessionID string, elapsed int, now time.Time) Event {
	return Event{Type: EventTimerTick, SessionID: sessionID, Timestamp: now.UTC(), ElapsedSeconds: elapsed}
}

// NewConversationEndEvent carries the final compatibility result.
func NewConversationEndEvent(result CompatibilityResult, now time.Time) Event {
	return Event{
		Type:      EventConversationEnd,
		SessionID: result.SessionID,
		Timestamp: now.UTC(),
		Score:     result.CompatibilityScore,
		Breakdown: &result.Breakdown,
		Result:    &result,
	}
}

// NewErrorEvent reports an unrecoverable session-start failure.
func NewErrorEvent(sessionID, message string, now time.Time) Event {
	return Event{Type: EventError, SessionID: sessionID, Timestamp: now.UTC(), Error: message}
}
