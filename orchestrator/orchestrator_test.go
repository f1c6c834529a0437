package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/duetmatch/core"
)

type recordingSink struct {
	mu     sync.Mutex
	events []core.Event
}

func (s *recordingSink) Emit(e core.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordingSink) byType(t core.EventType) []core.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Event
	for _, e := range s.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type memStore struct {
	mu       sync.Mutex
	err      error
	sessions int
	messages []core.Message
	states   []core.State
	ends     int
	results  []core.CompatibilityResult
}

func (m *memStore) CreateSession(context.Context, *core.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions++
	return m.err
}

func (m *memStore) AppendMessage(_ context.Context, _ string, msg core.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return m.err
}

func (m *memStore) UpdateState(_ context.Context, _ string, state core.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = append(m.states, state)
	return m.err
}

func (m *memStore) UpdateEnd(context.Context, string, time.Time, int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ends++
	return m.err
}

func (m *memStore) CreateResult(_ context.Context, result core.CompatibilityResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, result)
	return m.err
}

type passthroughEnricher struct {
	sentiment float64
	topic     []float64
}

func (p passthroughEnricher) Enrich(_ context.Context, msg core.Message) core.Message {
	msg.Sentiment = p.sentiment
	msg.TopicEmbedding = p.topic
	return msg
}

type fakeAgent struct {
	id     string
	reply  string
	phases []core.State
}

func (f *fakeAgent) ID() string     { return f.id }
func (f *fakeAgent) Opener() string { return "opener from " + f.id }

func (f *fakeAgent) Observe(core.Message) {}

func (f *fakeAgent) GenerateResponse(_ context.Context, _ string, phase core.State) string {
	f.phases = append(f.phases, phase)
	return f.reply
}

func newTestOrchestrator(t *testing.T, optFns ...func(o *Options)) (*Orchestrator, *recordingSink, *memStore, *fakeAgent, *fakeAgent) {
	t.Helper()
	sink := &recordingSink{}
	store := &memStore{}
	agentA := &fakeAgent{id: "ava", reply: "line from ava."}
	agentB := &fakeAgent{id: "ben", reply: "line from ben."}
	profileA := core.ProfileVector{UserID: "ava", Embedding: []float64{1, 0}}
	profileB := core.ProfileVector{UserID: "ben", Embedding: []float64{1, 0}}

	clock := core.NewManualClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	o := New("s1", profileA, profileB, agentA, agentB, passthroughEnricher{sentiment: 0.5},
		append([]func(o *Options){func(o *Options) {
			o.Clock = clock
			o.Sink = sink
			o.Store = store
		}}, optFns...)...)
	return o, sink, store, agentA, agentB
}

// goLive puts the orchestrator into LIVE without launching the scheduler
// goroutines, so ticks and turns can be driven directly. The sender index
// matches the post-opener invariant: participant B responds first.
func goLive(o *Orchestrator) {
	o.mu.Lock()
	o.started = true
	o.session.State = core.StateLive
	o.nextSender = 1
	o.mu.Unlock()
}

func TestStartEmitsOpenerThenAlternatingTurns(t *testing.T) {
	o, sink, store, _, _ := newTestOrchestrator(t)
	goLive(o)
	ctx := context.Background()

	o.deliver(ctx, o.agents[0].ID(), o.agents[0].Opener(), 0)
	for i := 0; i < 4; i++ {
		o.handleTurn(ctx)
	}

	session := o.Session()
	require.Len(t, session.Messages, 5)
	senders := make([]string, len(session.Messages))
	for i, msg := range session.Messages {
		senders[i] = msg.Sender
	}
	assert.Equal(t, []string{"ava", "ben", "ava", "ben", "ava"}, senders)
	assert.Equal(t, "opener from ava", session.Messages[0].Content)

	assert.Len(t, sink.byType(core.EventAgentMessage), 5)
	assert.Len(t, sink.byType(core.EventCompatibilityUpdate), 5)
	assert.Len(t, store.messages, 5)
}

func TestStartLaunchesSchedulersAndOpener(t *testing.T) {
	o, sink, store, _, _ := newTestOrchestrator(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	o.Start(ctx)
	defer o.Stop()

	require.Eventually(t, func() bool {
		return len(sink.byType(core.EventAgentMessage)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, "opener from ava", sink.byType(core.EventAgentMessage)[0].Message.Content)
	states := sink.byType(core.EventStateChange)
	require.GreaterOrEqual(t, len(states), 2)
	assert.Equal(t, "INIT", states[0].State)
	assert.Equal(t, "LIVE", states[1].State)
	assert.Equal(t, 1, store.sessions)

	// Start is a no-op the second time.
	o.Start(ctx)
	assert.Equal(t, 1, store.sessions)
}

// stopOnCreateStore stops its orchestrator from inside CreateSession, which
// Start calls between its two critical sections. This reproduces a Stop (via
// a participant disconnect) racing the startup of the very same session.
type stopOnCreateStore struct {
	memStore
	orch *Orchestrator
}

func (s *stopOnCreateStore) CreateSession(ctx context.Context, sess *core.Session) error {
	s.orch.Stop()
	return s.memStore.CreateSession(ctx, sess)
}

func TestStopDuringStartupKeepsSessionDown(t *testing.T) {
	sink := &recordingSink{}
	store := &stopOnCreateStore{}
	profileA := core.ProfileVector{UserID: "ava", Embedding: []float64{1, 0}}
	profileB := core.ProfileVector{UserID: "ben", Embedding: []float64{1, 0}}
	clock := core.NewManualClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	o := New("s1", profileA, profileB,
		&fakeAgent{id: "ava", reply: "line from ava."},
		&fakeAgent{id: "ben", reply: "line from ben."},
		passthroughEnricher{sentiment: 0.5},
		func(opt *Options) {
			opt.Clock = clock
			opt.Sink = sink
			opt.Store = store
		})
	store.orch = o

	o.Start(context.Background())

	// The stop won: no LIVE transition, no schedulers, no opener.
	session := o.Session()
	assert.Equal(t, core.StateInit, session.State)
	assert.Empty(t, session.Messages)
	for _, e := range sink.byType(core.EventStateChange) {
		assert.NotEqual(t, "LIVE", e.State)
	}
	assert.Empty(t, sink.byType(core.EventAgentMessage))

	o.mu.Lock()
	assert.Nil(t, o.tickTicker, "no ticker may survive a stop that raced startup")
	assert.Nil(t, o.turnTicker)
	o.mu.Unlock()
}

func TestTickAdvancesElapsedMonotonically(t *testing.T) {
	o, sink, _, _, _ := newTestOrchestrator(t)
	goLive(o)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		o.handleTick(ctx)
	}

	assert.Equal(t, 5, o.Session().ElapsedSeconds)
	ticks := sink.byType(core.EventTimerTick)
	require.Len(t, ticks, 5)
	for i, e := range ticks {
		assert.Equal(t, i+1, e.ElapsedSeconds)
	}
}

func TestWrapTransitionFiresExactlyOnce(t *testing.T) {
	o, sink, _, _, _ := newTestOrchestrator(t, func(o *Options) {
		o.WrapThreshold = 3 * time.Second
		o.TotalDuration = 10 * time.Second
	})
	goLive(o)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		o.handleTick(ctx)
	}

	assert.Equal(t, core.StateWrap, o.Session().State)
	var wraps int
	for _, e := range sink.byType(core.EventStateChange) {
		if e.State == "WRAP" {
			wraps++
		}
	}
	assert.Equal(t, 1, wraps)
}

func TestTickEndsSessionAtTotalDuration(t *testing.T) {
	o, sink, store, _, _ := newTestOrchestrator(t, func(o *Options) {
		o.WrapThreshold = 2 * time.Second
		o.TotalDuration = 3 * time.Second
	})
	goLive(o)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		o.handleTick(ctx)
	}

	session := o.Session()
	assert.Equal(t, core.StateScore, session.State)
	assert.Equal(t, 3, session.ElapsedSeconds, "ticks after end must not advance elapsed time")
	assert.False(t, session.EndedAt.IsZero())
	assert.Len(t, sink.byType(core.EventConversationEnd), 1)
	require.Len(t, store.results, 1)
	assert.Equal(t, "s1", store.results[0].SessionID)
	assert.Equal(t, 1, store.ends)
}

func TestWrapNotSkippedBeforeEnd(t *testing.T) {
	o, sink, _, _, _ := newTestOrchestrator(t, func(o *Options) {
		o.WrapThreshold = 2 * time.Second
		o.TotalDuration = 4 * time.Second
	})
	goLive(o)
	ctx := context.Background()

	var sawWrap bool
	for i := 0; i < 4; i++ {
		o.handleTick(ctx)
		if o.Session().State == core.StateWrap {
			sawWrap = true
		}
	}
	assert.True(t, sawWrap, "session must pass through WRAP before SCORE")
	assert.Equal(t, core.StateScore, o.Session().State)
	assert.Len(t, sink.byType(core.EventConversationEnd), 1)
}

func TestEndIsIdempotent(t *testing.T) {
	o, sink, store, _, _ := newTestOrchestrator(t)
	goLive(o)
	ctx := context.Background()

	o.End(ctx)
	o.End(ctx)

	assert.Len(t, sink.byType(core.EventConversationEnd), 1)
	assert.Len(t, store.results, 1)
	assert.Equal(t, core.StateScore, o.Session().State)
}

func TestStopIsIdempotentAndEmitsNoResult(t *testing.T) {
	o, sink, store, _, _ := newTestOrchestrator(t)
	goLive(o)

	o.Stop()
	o.Stop()

	assert.Empty(t, sink.byType(core.EventConversationEnd))
	assert.Empty(t, store.results)

	// End after Stop stays a no-op: the session was torn down without a
	// result and must not produce one later.
	o.End(context.Background())
	assert.Empty(t, sink.byType(core.EventConversationEnd))
}

func TestTurnSkippedWhileBusy(t *testing.T) {
	o, _, _, _, _ := newTestOrchestrator(t)
	goLive(o)

	o.mu.Lock()
	o.turnBusy = true
	next := o.nextSender
	o.mu.Unlock()

	o.handleTurn(context.Background())

	assert.Empty(t, o.Session().Messages)
	o.mu.Lock()
	defer o.mu.Unlock()
	assert.Equal(t, next, o.nextSender, "a skipped firing must not advance the sender")
}

func TestStaleTurnResultDiscardedAfterStop(t *testing.T) {
	o, sink, store, _, _ := newTestOrchestrator(t)
	goLive(o)

	o.mu.Lock()
	token := o.generation
	o.mu.Unlock()

	o.Stop()
	o.deliver(context.Background(), "ava", "late arrival", token)

	assert.Empty(t, o.Session().Messages)
	assert.Empty(t, sink.byType(core.EventAgentMessage))
	assert.Empty(t, store.messages)
}

func TestNoTurnsInScoreState(t *testing.T) {
	o, sink, _, _, _ := newTestOrchestrator(t)
	goLive(o)
	ctx := context.Background()

	o.End(ctx)
	o.handleTurn(ctx)

	assert.Empty(t, sink.byType(core.EventAgentMessage))
}

func TestWrapPhasePassedToAgents(t *testing.T) {
	o, _, _, _, agentB := newTestOrchestrator(t, func(o *Options) {
		o.WrapThreshold = 1 * time.Second
		o.TotalDuration = 10 * time.Second
	})
	goLive(o)
	ctx := context.Background()

	o.handleTick(ctx) // enters WRAP
	require.Equal(t, core.StateWrap, o.Session().State)

	o.handleTurn(ctx) // B's turn first
	require.Len(t, agentB.phases, 1)
	assert.Equal(t, core.StateWrap, agentB.phases[0])
}

func TestPersistenceFailuresDoNotBreakTheTurnLoop(t *testing.T) {
	o, sink, store, _, _ := newTestOrchestrator(t)
	store.err = errors.New("store down")
	goLive(o)
	ctx := context.Background()

	o.handleTurn(ctx)
	o.handleTurn(ctx)

	// Messages still land in the session and reach the sink.
	assert.Len(t, o.Session().Messages, 2)
	assert.Len(t, sink.byType(core.EventAgentMessage), 2)

	o.End(ctx)
	assert.Len(t, sink.byType(core.EventConversationEnd), 1)
}

func TestScoreEventsStayBounded(t *testing.T) {
	o, sink, _, _, _ := newTestOrchestrator(t)
	goLive(o)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		o.handleTurn(ctx)
	}
	for _, e := range sink.byType(core.EventCompatibilityUpdate) {
		assert.GreaterOrEqual(t, e.Score, 0)
		assert.LessOrEqual(t, e.Score, 100)
	}
}
