package duetmatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/duetmatch/core"
	"github.com/hupe1980/duetmatch/server"
)

// The façade is what the HTTP layer drives.
var _ server.Service = (*Service)(nil)

type captureSink struct {
	mu     sync.Mutex
	events []core.Event
}

func (s *captureSink) Emit(e core.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *captureSink) count(t core.EventType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

func (s *captureSink) stateChanges() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, e := range s.events {
		if e.Type == core.EventStateChange {
			out = append(out, e.State)
		}
	}
	return out
}

// newFastService runs a whole conversation in about two wall-clock seconds:
// the default gateway has no providers, so personas fall back to filler
// lines and embeddings come from the local hash, making the run fully
// offline and deterministic in shape.
func newFastService(sink core.EventSink) *Service {
	return New(func(o *Options) {
		o.Sink = sink
		o.TotalDuration = 2 * time.Second
		o.WrapThreshold = 1 * time.Second
		o.TurnInterval = 200 * time.Millisecond
	})
}

func TestCreateSessionUnknownProfile(t *testing.T) {
	svc := New()
	_, err := svc.CreateSession(context.Background(), "ava", "nobody")
	assert.ErrorIs(t, err, core.ErrProfileNotFound)
}

func TestConversationRunsToCompletion(t *testing.T) {
	sink := &captureSink{}
	svc := newFastService(sink)
	defer svc.Shutdown()
	ctx := context.Background()

	entry, err := svc.CreateSession(ctx, "ava", "ben")
	require.NoError(t, err)
	assert.False(t, entry.Running)

	_, err = svc.SetReady(ctx, entry.SessionID, "ava", true)
	require.NoError(t, err)
	entry, err = svc.SetReady(ctx, entry.SessionID, "ben", true)
	require.NoError(t, err)
	assert.True(t, entry.Running)

	require.Eventually(t, func() bool {
		return sink.count(core.EventConversationEnd) == 1
	}, 15*time.Second, 50*time.Millisecond)

	result, ok := svc.Result(entry.SessionID)
	require.True(t, ok)
	assert.Equal(t, entry.SessionID, result.SessionID)
	assert.GreaterOrEqual(t, result.CompatibilityScore, 0)
	assert.LessOrEqual(t, result.CompatibilityScore, 100)
	assert.False(t, result.ComputedAt.IsZero())

	states := sink.stateChanges()
	require.NotEmpty(t, states)
	assert.Equal(t, "INIT", states[0])
	assert.Equal(t, "SCORE", states[len(states)-1])

	// The scripted opener plus at least one generated turn made it out.
	assert.GreaterOrEqual(t, sink.count(core.EventAgentMessage), 2)
	assert.GreaterOrEqual(t, sink.count(core.EventTimerTick), 1)
}

func TestOnlyOneOrchestratorPerSession(t *testing.T) {
	sink := &captureSink{}
	svc := newFastService(sink)
	defer svc.Shutdown()
	ctx := context.Background()

	entry, err := svc.CreateSession(ctx, "ava", "ben")
	require.NoError(t, err)
	_, err = svc.SetReady(ctx, entry.SessionID, "ava", true)
	require.NoError(t, err)
	_, err = svc.SetReady(ctx, entry.SessionID, "ben", true)
	require.NoError(t, err)

	// Repeated readiness signals must not start a second conversation.
	_, err = svc.SetReady(ctx, entry.SessionID, "ben", true)
	require.NoError(t, err)
	_, err = svc.SetReady(ctx, entry.SessionID, "ava", true)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return sink.count(core.EventConversationEnd) >= 1
	}, 15*time.Second, 50*time.Millisecond)
	assert.Equal(t, 1, sink.count(core.EventConversationEnd))

	var lives int
	for _, state := range sink.stateChanges() {
		if state == "LIVE" {
			lives++
		}
	}
	assert.Equal(t, 1, lives)
}

func TestDemoParticipantIsReadyImmediately(t *testing.T) {
	sink := &captureSink{}
	svc := newFastService(sink)
	defer svc.Shutdown()
	ctx := context.Background()

	entry, err := svc.CreateSession(ctx, "ava", core.DemoAgentID)
	require.NoError(t, err)
	assert.False(t, entry.ReadyA)
	assert.True(t, entry.ReadyB)

	entry, err = svc.SetReady(ctx, entry.SessionID, "ava", true)
	require.NoError(t, err)
	assert.True(t, entry.Running, "one human signal completes the handshake against the demo agent")
}

func TestRetractedReadinessDoesNotStart(t *testing.T) {
	sink := &captureSink{}
	svc := newFastService(sink)
	defer svc.Shutdown()
	ctx := context.Background()

	entry, err := svc.CreateSession(ctx, "ava", "ben")
	require.NoError(t, err)
	_, err = svc.SetReady(ctx, entry.SessionID, "ava", true)
	require.NoError(t, err)

	// Ava backs out; Ben's signal alone must not start the conversation.
	entry, err = svc.SetReady(ctx, entry.SessionID, "ava", false)
	require.NoError(t, err)
	assert.False(t, entry.ReadyA)

	entry, err = svc.SetReady(ctx, entry.SessionID, "ben", true)
	require.NoError(t, err)
	assert.False(t, entry.Running)
	assert.Empty(t, sink.stateChanges())
}

func TestDisconnectStopsWithoutResult(t *testing.T) {
	sink := &captureSink{}
	svc := New(func(o *Options) {
		o.Sink = sink
		// Long window so the session is still live when we disconnect.
		o.TotalDuration = 180 * time.Second
		o.WrapThreshold = 170 * time.Second
	})
	ctx := context.Background()

	entry, err := svc.CreateSession(ctx, "ava", "ben")
	require.NoError(t, err)
	_, err = svc.SetReady(ctx, entry.SessionID, "ava", true)
	require.NoError(t, err)
	_, err = svc.SetReady(ctx, entry.SessionID, "ben", true)
	require.NoError(t, err)

	_, ok := svc.Session(entry.SessionID)
	require.True(t, ok)

	svc.Disconnect(entry.SessionID)
	_, ok = svc.Session(entry.SessionID)
	assert.False(t, ok)
	assert.Zero(t, sink.count(core.EventConversationEnd))

	// Idempotent.
	svc.Disconnect(entry.SessionID)
}

func TestReadySignalErrors(t *testing.T) {
	svc := New()
	ctx := context.Background()

	_, err := svc.SetReady(ctx, "missing", "ava", true)
	assert.Error(t, err)

	entry, err := svc.CreateSession(ctx, "ava", "ben")
	require.NoError(t, err)
	_, err = svc.SetReady(ctx, entry.SessionID, "stranger", true)
	assert.Error(t, err)
}
