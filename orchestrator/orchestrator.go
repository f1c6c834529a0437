package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/duetmatch/core"
	"github.com/hupe1980/duetmatch/logging"
	"github.com/hupe1980/duetmatch/metrics"
	"github.com/hupe1980/duetmatch/scoring"
)

// Agent is the persona surface the orchestrator schedules. Both
// persona.Agent and persona.ScriptedAgent satisfy it.
type Agent interface {
	ID() string
	Opener() string
	Observe(msg core.Message)
	GenerateResponse(ctx context.Context, incoming string, phase core.State) string
}

// Enricher annotates a message with sentiment and a topic embedding.
// *enrich.Enricher satisfies it.
type Enricher interface {
	Enrich(ctx context.Context, msg core.Message) core.Message
}

// Options configures an Orchestrator.
type Options struct {
	// TotalDuration is the full conversation window (default 180s).
	TotalDuration time.Duration
	// WrapThreshold is the elapsed time at which the session enters the wrap
	// phase (default 170s). Must be below TotalDuration.
	WrapThreshold time.Duration
	// TurnInterval is the cadence of the alternating turn timer (default 6s).
	TurnInterval time.Duration
	// TickInterval is the cadence of the elapsed-time clock (default 1s).
	TickInterval time.Duration

	Clock  core.Clock
	Logger logging.Logger
	Sink   core.EventSink
	Store  core.Store
}

// Orchestrator owns one conversation session end to end.
type Orchestrator struct {
	enricher Enricher
	clock    core.Clock
	logger   logging.Logger
	sink     core.EventSink
	store    core.Store

	totalSeconds int
	wrapSeconds  int
	turnInterval time.Duration
	tickInterval time.Duration

	mu         sync.Mutex
	session    *core.Session
	agents     [2]Agent // index 0 is participant A
	scoring    scoring.State
	nextSender int
	lastLine   string
	generation uint64
	turnBusy   bool
	started    bool
	ended      bool
	stopped    bool
	wrapFired  bool
	endFired   bool
	tickTicker core.Ticker
	turnTicker core.Ticker
	cancel     context.CancelFunc
}

// New builds an orchestrator for one session. The two profiles seed the
// scoring engine; agentA and agentB must speak for the same participants, in
// the same order.
func New(sessionID string, profileA, profileB core.ProfileVector, agentA, agentB Agent, enricher Enricher, optFns ...func(o *Options)) *Orchestrator {
	opts := Options{
		TotalDuration: 180 * time.Second,
		WrapThreshold: 170 * time.Second,
		TurnInterval:  6 * time.Second,
		TickInterval:  time.Second,
		Clock:         core.SystemClock{},
		Logger:        logging.NoOpLogger{},
		Sink:          core.NoOpSink{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Orchestrator{
		enricher:     enricher,
		clock:        opts.Clock,
		logger:       opts.Logger,
		sink:         opts.Sink,
		store:        opts.Store,
		totalSeconds: int(opts.TotalDuration / time.Second),
		wrapSeconds:  int(opts.WrapThreshold / time.Second),
		turnInterval: opts.TurnInterval,
		tickInterval: opts.TickInterval,
		session:      core.NewSession(sessionID, profileA.UserID, profileB.UserID, opts.Clock.Now()),
		agents:       [2]Agent{agentA, agentB},
		scoring:      scoring.NewState(profileA, profileB),
	}
}

// SessionID returns the id of the owned session.
func (o *Orchestrator) SessionID() string { return o.session.ID }

// Session returns a snapshot copy of the owned session.
func (o *Orchestrator) Session() core.Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	snapshot := *o.session
	snapshot.Messages = make([]core.Message, len(o.session.Messages))
	copy(snapshot.Messages, o.session.Messages)
	return snapshot
}

// Start runs the session: persists the new record, computes the one-time
// pre-conversation score, transitions to LIVE, emits the scripted opener and
// launches the tick and turn schedulers. Calling Start twice is a no-op.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	if o.started || o.ended || o.stopped {
		o.mu.Unlock()
		return
	}
	o.started = true
	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	// Counted while the lock is held so a racing Stop's decrement cannot
	// run before the increment.
	metrics.SessionsActive.Inc()
	o.mu.Unlock()

	now := o.clock.Now()
	o.sink.Emit(core.NewStateChangeEvent(o.session.ID, core.StateInit, now))
	if o.store != nil {
		if err := o.store.CreateSession(runCtx, o.session); err != nil {
			o.logger.Warn("session create not persisted", "session", o.session.ID, "error", err)
		}
	}

	o.mu.Lock()
	if o.ended || o.stopped {
		// Stop or End landed while the session record was being persisted;
		// the session never goes live.
		o.mu.Unlock()
		return
	}
	o.scoring = scoring.PreConversation(o.scoring)
	o.session.State = core.StateLive
	o.tickTicker = o.clock.NewTicker(o.tickInterval)
	o.turnTicker = o.clock.NewTicker(o.turnInterval)
	token := o.generation
	// Participant A opens, so the turn timer starts with B.
	o.nextSender = 1
	o.turnBusy = true
	o.mu.Unlock()

	o.sink.Emit(core.NewStateChangeEvent(o.session.ID, core.StateLive, o.clock.Now()))
	o.persistState(runCtx, core.StateLive)

	go o.tickLoop(runCtx)
	go o.turnLoop(runCtx)

	// The scripted opener bypasses generation so the conversation starts
	// promptly even when providers are slow.
	go func() {
		defer o.clearBusy()
		o.deliver(runCtx, o.agents[0].ID(), o.agents[0].Opener(), token)
	}()
}

// End finishes the session: cancels both timers, transitions to SCORE,
// persists the end-of-session fields, computes the final result and emits it.
// Idempotent; a no-op after a prior End or Stop.
func (o *Orchestrator) End(ctx context.Context) {
	o.mu.Lock()
	if o.ended || o.stopped {
		o.mu.Unlock()
		return
	}
	o.ended = true
	o.generation++
	// Detach before cancelling the run context so the final persistence
	// writes still go through.
	ctx = context.WithoutCancel(ctx)
	o.stopTimersLocked()
	o.session.State = core.StateScore
	now := o.clock.Now()
	o.session.EndedAt = now.UTC()
	elapsed := o.session.ElapsedSeconds
	result := scoring.Finalize(o.scoring, o.session.ID, now)
	o.mu.Unlock()

	o.sink.Emit(core.NewStateChangeEvent(o.session.ID, core.StateScore, now))
	if o.store != nil {
		if err := o.store.UpdateState(ctx, o.session.ID, core.StateScore); err != nil {
			o.logger.Warn("state not persisted", "session", o.session.ID, "error", err)
		}
		if err := o.store.UpdateEnd(ctx, o.session.ID, now, elapsed); err != nil {
			o.logger.Warn("session end not persisted", "session", o.session.ID, "error", err)
		}
		if err := o.store.CreateResult(ctx, result); err != nil {
			o.logger.Warn("result not persisted", "session", o.session.ID, "error", err)
		}
	}
	o.sink.Emit(core.NewConversationEndEvent(result, now))
	metrics.SessionsActive.Dec()
	o.logger.Info("conversation ended",
		"session", o.session.ID,
		"score", result.CompatibilityScore,
		"recommend", result.RecommendMatch,
		"elapsedSeconds", elapsed)
}

// Stop cancels the session early without computing or emitting a result,
// for participant disconnects. Safe to call repeatedly or after End.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if o.ended || o.stopped {
		o.mu.Unlock()
		return
	}
	o.stopped = true
	o.generation++
	started := o.started
	o.stopTimersLocked()
	o.mu.Unlock()

	if started {
		metrics.SessionsActive.Dec()
	}
	o.logger.Info("conversation stopped", "session", o.session.ID)
}

// stopTimersLocked clears both tickers and cancels the run context. Caller
// holds o.mu.
func (o *Orchestrator) stopTimersLocked() {
	if o.tickTicker != nil {
		o.tickTicker.Stop()
		o.tickTicker = nil
	}
	if o.turnTicker != nil {
		o.turnTicker.Stop()
		o.turnTicker = nil
	}
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
}

func (o *Orchestrator) tickLoop(ctx context.Context) {
	o.mu.Lock()
	ticker := o.tickTicker
	o.mu.Unlock()
	if ticker == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			o.handleTick(ctx)
		}
	}
}

func (o *Orchestrator) turnLoop(ctx context.Context) {
	o.mu.Lock()
	ticker := o.turnTicker
	o.mu.Unlock()
	if ticker == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			o.handleTurn(ctx)
		}
	}
}

// handleTick advances elapsed time by one second, fires the wrap transition
// exactly once at the threshold and invokes End exactly once at the total
// duration.
func (o *Orchestrator) handleTick(ctx context.Context) {
	o.mu.Lock()
	if o.ended || o.stopped {
		o.mu.Unlock()
		return
	}
	o.session.ElapsedSeconds++
	elapsed := o.session.ElapsedSeconds
	var enterWrap, endNow bool
	if !o.wrapFired && elapsed >= o.wrapSeconds && elapsed < o.totalSeconds && o.session.State == core.StateLive {
		o.wrapFired = true
		o.session.State = core.StateWrap
		enterWrap = true
	}
	if !o.endFired && elapsed >= o.totalSeconds {
		o.endFired = true
		endNow = true
	}
	o.mu.Unlock()

	now := o.clock.Now()
	o.sink.Emit(core.NewTimerTickEvent(o.session.ID, elapsed, now))
	if enterWrap {
		o.sink.Emit(core.NewStateChangeEvent(o.session.ID, core.StateWrap, now))
		o.persistState(ctx, core.StateWrap)
		o.logger.Debug("entering wrap phase", "session", o.session.ID, "elapsedSeconds", elapsed)
	}
	if endNow {
		o.End(ctx)
	}
}

// handleTurn runs one alternating persona turn. A firing while the previous
// turn is still in flight is skipped; the sender only advances when a turn is
// actually taken, so alternation survives skipped slots.
func (o *Orchestrator) handleTurn(ctx context.Context) {
	o.mu.Lock()
	if o.turnBusy || o.ended || o.stopped || !conversational(o.session.State) {
		busy := o.turnBusy
		o.mu.Unlock()
		if busy {
			metrics.TurnsTotal.WithLabelValues("skipped").Inc()
		}
		return
	}
	o.turnBusy = true
	token := o.generation
	agent := o.agents[o.nextSender]
	o.nextSender = 1 - o.nextSender
	phase := o.session.State
	incoming := o.lastLine
	o.mu.Unlock()

	defer o.clearBusy()
	content := agent.GenerateResponse(ctx, incoming, phase)
	o.deliver(ctx, agent.ID(), content, token)
}

// deliver pushes one utterance through the rest of the turn pipeline:
// history, enrichment, session append, persistence, events and scoring. The
// token gate discards results that resolve after End or Stop.
func (o *Orchestrator) deliver(ctx context.Context, sender, content string, token uint64) {
	msg := core.NewMessage(o.session.ID, sender, content, o.clock.Now())
	o.agents[0].Observe(msg)
	o.agents[1].Observe(msg)

	enriched := o.enricher.Enrich(ctx, msg)

	o.mu.Lock()
	if token != o.generation || !conversational(o.session.State) {
		o.mu.Unlock()
		metrics.TurnsTotal.WithLabelValues("stale").Inc()
		return
	}
	o.session.Messages = append(o.session.Messages, enriched)
	o.lastLine = enriched.Content
	o.scoring = scoring.Update(o.scoring, enriched)
	score := scoring.Score(o.scoring)
	breakdown := scoring.Breakdown(o.scoring)
	o.mu.Unlock()

	if o.store != nil {
		if err := o.store.AppendMessage(ctx, o.session.ID, enriched); err != nil {
			o.logger.Warn("message not persisted", "session", o.session.ID, "message", enriched.ID, "error", err)
		}
	}
	now := o.clock.Now()
	o.sink.Emit(core.NewAgentMessageEvent(enriched, now))
	o.sink.Emit(core.NewCompatibilityUpdateEvent(o.session.ID, score, breakdown, now))
	metrics.TurnsTotal.WithLabelValues("ok").Inc()
}

func (o *Orchestrator) clearBusy() {
	o.mu.Lock()
	o.turnBusy = false
	o.mu.Unlock()
}

func (o *Orchestrator) persistState(ctx context.Context, state core.State) {
	if o.store == nil {
		return
	}
	if err := o.store.UpdateState(ctx, o.session.ID, state); err != nil {
		o.logger.Warn("state not persisted", "session", o.session.ID, "state", state.String(), "error", err)
	}
}

// conversational reports whether agents may still speak in the given state.
func conversational(s core.State) bool {
	return s == core.StateLive || s == core.StateWrap
}
