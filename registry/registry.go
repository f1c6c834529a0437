// Package registry tracks the per-session readiness handshake and guards
// the one-orchestrator-per-session invariant. Entries are created on first
// contact and destroyed on explicit removal or process teardown.
package registry

import (
	"errors"
	"sync"

	"github.com/hupe1980/duetmatch/core"
	"github.com/hupe1980/duetmatch/logging"
	"github.com/hupe1980/duetmatch/orchestrator"
)

// ErrUnknownSession is returned when a session id has no registry entry.
var ErrUnknownSession = errors.New("unknown session")

// ErrUnknownParticipant is returned when a readiness signal names a user who
// is not part of the session.
var ErrUnknownParticipant = errors.New("participant not in session")

// Entry is a snapshot of one registered session.
type Entry struct {
	SessionID    string
	ParticipantA string
	ParticipantB string
	ReadyA       bool
	ReadyB       bool
	// Running reports whether an orchestrator is attached.
	Running bool
}

type entry struct {
	participantA string
	participantB string
	readyA       bool
	readyB       bool
	orch         *orchestrator.Orchestrator
}

// Options configures a Registry.
type Options struct {
	Logger logging.Logger
}

// Registry is safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	logger  logging.Logger
}

// New creates an empty Registry.
func New(optFns ...func(o *Options)) *Registry {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Registry{
		entries: make(map[string]*entry),
		logger:  opts.Logger,
	}
}

// Create registers a session on first contact. Creating an existing session
// again is a no-op returning the current snapshot. The scripted demo
// participant is ready from the start; it never sends a readiness signal of
// its own.
func (r *Registry) Create(sessionID, participantA, participantB string) Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[sessionID]
	if !ok {
		e = &entry{
			participantA: participantA,
			participantB: participantB,
			readyA:       participantA == core.DemoAgentID,
			readyB:       participantB == core.DemoAgentID,
		}
		r.entries[sessionID] = e
		r.logger.Debug("session registered", "session", sessionID, "participantA", participantA, "participantB", participantB)
	}
	return snapshot(sessionID, e)
}

// SetReady records or retracts a participant's readiness signal and reports
// whether both participants are now ready. Repeated signals are idempotent;
// a retraction after the handshake completed has no effect on the running
// conversation.
func (r *Registry) SetReady(sessionID, participantID string, ready bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[sessionID]
	if !ok {
		return false, ErrUnknownSession
	}
	switch participantID {
	case e.participantA:
		e.readyA = ready
	case e.participantB:
		e.readyB = ready
	default:
		return false, ErrUnknownParticipant
	}
	return e.readyA && e.readyB, nil
}

// Attach binds an orchestrator to its session. It returns false when one is
// already attached, which callers use to ensure exactly one orchestrator ever
// starts per session id.
func (r *Registry) Attach(sessionID string, o *orchestrator.Orchestrator) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[sessionID]
	if !ok || e.orch != nil {
		return false
	}
	e.orch = o
	return true
}

// Orchestrator returns the attached orchestrator, if any.
func (r *Registry) Orchestrator(sessionID string) (*orchestrator.Orchestrator, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[sessionID]
	if !ok || e.orch == nil {
		return nil, false
	}
	return e.orch, true
}

// Get returns a snapshot of the entry for sessionID.
func (r *Registry) Get(sessionID string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[sessionID]
	if !ok {
		return Entry{}, false
	}
	return snapshot(sessionID, e), true
}

// Remove destroys the entry and stops its orchestrator, if one is running.
// Removing an unknown session is a no-op.
func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	e, ok := r.entries[sessionID]
	if ok {
		delete(r.entries, sessionID)
	}
	r.mu.Unlock()

	if ok && e.orch != nil {
		e.orch.Stop()
		r.logger.Debug("session removed, orchestrator stopped", "session", sessionID)
	}
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Shutdown stops every running orchestrator and clears the registry.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*entry)
	r.mu.Unlock()

	for id, e := range entries {
		if e.orch != nil {
			e.orch.Stop()
			r.logger.Debug("orchestrator stopped on shutdown", "session", id)
		}
	}
}

func snapshot(sessionID string, e *entry) Entry {
	return Entry{
		SessionID:    sessionID,
		ParticipantA: e.participantA,
		ParticipantB: e.participantB,
		ReadyA:       e.readyA,
		ReadyB:       e.readyB,
		Running:      e.orch != nil,
	}
}
