// Package duetmatch provides a high-level façade over the conversation
// orchestration core (gateway, personas, enrichment, scoring, registry and
// persistence). Most applications interact with this package by:
//  1. Creating a Service via New() (optionally overriding default in-memory
//     services and the generation gateway)
//  2. Creating sessions and feeding per-participant readiness signals
//  3. Consuming the lifecycle events emitted to the configured sink
//
// All defaults are safe for local development and testing: sessions persist
// in memory, profiles come from the built-in seed set and the gateway falls
// back to deterministic local embeddings when no provider is configured.
// Production deployments typically supply durable stores, real providers and
// a structured logger.
package duetmatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/duetmatch/core"
	"github.com/hupe1980/duetmatch/enrich"
	"github.com/hupe1980/duetmatch/gateway"
	"github.com/hupe1980/duetmatch/logging"
	"github.com/hupe1980/duetmatch/orchestrator"
	"github.com/hupe1980/duetmatch/persona"
	"github.com/hupe1980/duetmatch/registry"
	"github.com/hupe1980/duetmatch/storage/memory"
)

// Options configures the Service instance.
type Options struct {
	// Gateway is the shared generation gateway. Defaults to a gateway with
	// no providers, which serves deterministic local embeddings and fails
	// text generation (persona agents then fall back to filler lines).
	Gateway *gateway.Gateway

	// Stores (default to in-memory implementations if not provided).
	Store    core.Store
	Profiles core.ProfileStore

	// Sink receives all session lifecycle events (default NoOp).
	Sink core.EventSink

	// Logger (defaults to NoOp logger if nil).
	Logger logging.Logger

	// Clock drives all session timing (default system clock).
	Clock core.Clock

	// Session timing. Defaults: 180s total, wrap at 170s, a turn every 6s.
	TotalDuration time.Duration
	WrapThreshold time.Duration
	TurnInterval  time.Duration
}

// Service is the high-level façade aggregating the orchestration core.
type Service struct {
	opts     Options
	registry *registry.Registry
	enricher *enrich.Enricher
	results  *resultCache
}

// New creates a Service with optional overrides. Any unset collaborator is
// initialized with a local default.
func New(optFns ...func(o *Options)) *Service {
	opts := Options{
		Store:         memory.NewStore(),
		Profiles:      memory.NewProfileStore(core.SeedProfiles()...),
		Sink:          core.NoOpSink{},
		Logger:        logging.NoOpLogger{},
		Clock:         core.SystemClock{},
		TotalDuration: 180 * time.Second,
		WrapThreshold: 170 * time.Second,
		TurnInterval:  6 * time.Second,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Gateway == nil {
		opts.Gateway = gateway.New(func(o *gateway.Options) {
			o.Clock = opts.Clock
			o.Logger = opts.Logger
		})
	}

	results := &resultCache{next: opts.Sink, results: make(map[string]core.CompatibilityResult)}
	opts.Sink = results

	return &Service{
		opts:     opts,
		registry: registry.New(func(o *registry.Options) { o.Logger = opts.Logger }),
		enricher: enrich.New(opts.Gateway, func(o *enrich.Options) { o.Logger = opts.Logger }),
		results:  results,
	}
}

// CreateSession registers a conversation between two participants. Both
// profiles must exist; the call is idempotent per generated session id only,
// so repeated calls create distinct sessions. When both sides are already
// ready (two scripted demo participants) the conversation starts
// immediately.
func (s *Service) CreateSession(ctx context.Context, participantA, participantB string) (registry.Entry, error) {
	if _, err := s.opts.Profiles.GetProfile(ctx, participantA); err != nil {
		return registry.Entry{}, fmt.Errorf("participant %s: %w", participantA, err)
	}
	if _, err := s.opts.Profiles.GetProfile(ctx, participantB); err != nil {
		return registry.Entry{}, fmt.Errorf("participant %s: %w", participantB, err)
	}

	sessionID := core.NewID()
	entry := s.registry.Create(sessionID, participantA, participantB)
	s.opts.Logger.Info("session created", "session", sessionID, "participantA", participantA, "participantB", participantB)

	if entry.ReadyA && entry.ReadyB {
		s.startSession(ctx, sessionID)
		entry, _ = s.registry.Get(sessionID)
	}
	return entry, nil
}

// SetReady records or retracts a readiness signal. Once both participants
// are ready the conversation starts; exactly one orchestrator ever starts per
// session.
func (s *Service) SetReady(ctx context.Context, sessionID, participantID string, ready bool) (registry.Entry, error) {
	both, err := s.registry.SetReady(sessionID, participantID, ready)
	if err != nil {
		return registry.Entry{}, err
	}
	if both {
		s.startSession(ctx, sessionID)
	}
	entry, ok := s.registry.Get(sessionID)
	if !ok {
		return registry.Entry{}, registry.ErrUnknownSession
	}
	return entry, nil
}

// Disconnect tears a session down early: the orchestrator is stopped without
// computing a result and the registry entry is destroyed.
func (s *Service) Disconnect(sessionID string) {
	s.registry.Remove(sessionID)
}

// Session returns a snapshot of a running session.
func (s *Service) Session(sessionID string) (core.Session, bool) {
	orch, ok := s.registry.Orchestrator(sessionID)
	if !ok {
		return core.Session{}, false
	}
	return orch.Session(), true
}

// Result returns the final compatibility result of a finished session.
func (s *Service) Result(sessionID string) (core.CompatibilityResult, bool) {
	return s.results.get(sessionID)
}

// Shutdown stops all running sessions.
func (s *Service) Shutdown() {
	s.registry.Shutdown()
}

// startSession resolves profiles, builds the two persona agents and the
// orchestrator and starts the conversation. A missing profile at this point
// aborts startup and surfaces an error event; any later per-turn failure is
// absorbed further down the stack.
func (s *Service) startSession(ctx context.Context, sessionID string) {
	entry, ok := s.registry.Get(sessionID)
	if !ok || entry.Running {
		return
	}

	profileA, err := s.opts.Profiles.GetProfile(ctx, entry.ParticipantA)
	if err != nil {
		s.failStart(sessionID, entry.ParticipantA, err)
		return
	}
	profileB, err := s.opts.Profiles.GetProfile(ctx, entry.ParticipantB)
	if err != nil {
		s.failStart(sessionID, entry.ParticipantB, err)
		return
	}

	orch := orchestrator.New(sessionID, profileA, profileB,
		s.newAgent(profileA), s.newAgent(profileB), s.enricher,
		func(o *orchestrator.Options) {
			o.TotalDuration = s.opts.TotalDuration
			o.WrapThreshold = s.opts.WrapThreshold
			o.TurnInterval = s.opts.TurnInterval
			o.Clock = s.opts.Clock
			o.Logger = s.opts.Logger
			o.Sink = s.opts.Sink
			o.Store = s.opts.Store
		})

	if !s.registry.Attach(sessionID, orch) {
		// Lost the race against a concurrent readiness signal; the winner's
		// orchestrator is already running.
		return
	}

	// The session outlives the readiness request that triggered it.
	orch.Start(context.WithoutCancel(ctx))
	s.opts.Logger.Info("conversation started", "session", sessionID)
}

func (s *Service) newAgent(profile core.ProfileVector) orchestrator.Agent {
	if profile.UserID == core.DemoAgentID {
		return persona.NewScripted(profile)
	}
	return persona.New(profile, "", s.opts.Gateway, func(o *persona.Options) {
		o.Logger = s.opts.Logger
	})
}

func (s *Service) failStart(sessionID, participantID string, err error) {
	s.opts.Logger.Error("session start aborted", "session", sessionID, "participant", participantID, "error", err)
	s.opts.Sink.Emit(core.NewErrorEvent(sessionID,
		fmt.Sprintf("cannot start session: profile %s: %v", participantID, err),
		s.opts.Clock.Now()))
	s.registry.Remove(sessionID)
}

// resultCache tees conversation_end events so final results stay queryable
// through the façade regardless of the persistence backend.
type resultCache struct {
	mu      sync.RWMutex
	results map[string]core.CompatibilityResult
	next    core.EventSink
}

func (c *resultCache) Emit(event core.Event) {
	if event.Type == core.EventConversationEnd && event.Result != nil {
		c.mu.Lock()
		c.results[event.SessionID] = *event.Result
		c.mu.Unlock()
	}
	c.next.Emit(event)
}

func (c *resultCache) get(sessionID string) (core.CompatibilityResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result, ok := c.results[sessionID]
	return result, ok
}
