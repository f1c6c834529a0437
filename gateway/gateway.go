package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/duetmatch/core"
	"github.com/hupe1980/duetmatch/logging"
	"github.com/hupe1980/duetmatch/metrics"
)

// TextRequest captures one normalized generation request.
type TextRequest struct {
	Prompt      string
	System      string
	Temperature float64
	JSONMode    bool
	// CallerTag identifies the calling component (persona, sentiment, …)
	// for logging and metrics.
	CallerTag string
}

// Provider generates text for a single vendor. Adapters normalize their
// failures into *Error before returning.
type Provider interface {
	Name() string
	GenerateText(ctx context.Context, req TextRequest) (string, error)
}

// Embedder produces embedding vectors for a single vendor.
type Embedder interface {
	Name() string
	EmbedText(ctx context.Context, text string) ([]float64, error)
}

// Options configures a Gateway instance.
type Options struct {
	// Providers are tried in priority order; the first is the primary.
	Providers []Provider
	// Embedders are tried in priority order. When empty, EmbedText uses the
	// deterministic local fallback embedding.
	Embedders []Embedder
	// MaxAttempts is the per-provider retry budget (default 3).
	MaxAttempts int
	// InitialBackoff is the first retry delay, doubled each attempt
	// (default 1s).
	InitialBackoff time.Duration
	// WindowLimit is the number of calls allowed per provider inside
	// Window (default 60). Zero disables throttling.
	WindowLimit int
	// Window is the sliding rate window (default 60s).
	Window time.Duration
	// LocalDims is the dimensionality of the local fallback embedding.
	LocalDims int
	// Clock drives throttle waits and backoff sleeps (default system clock).
	Clock core.Clock
	// Logger receives retry/failover diagnostics (default NoOp).
	Logger logging.Logger
}

// Gateway is the process-wide generation front door shared by all sessions.
// It is safe for concurrent use.
type Gateway struct {
	providers      []Provider
	embedders      []Embedder
	maxAttempts    int
	initialBackoff time.Duration
	localDims      int
	limiter        *rateWindow
	clock          core.Clock
	logger         logging.Logger
}

// New creates a Gateway with the given options.
func New(optFns ...func(o *Options)) *Gateway {
	opts := Options{
		MaxAttempts:    3,
		InitialBackoff: time.Second,
		WindowLimit:    60,
		Window:         60 * time.Second,
		LocalDims:      DefaultLocalDims,
		Clock:          core.SystemClock{},
		Logger:         logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Gateway{
		providers:      opts.Providers,
		embedders:      opts.Embedders,
		maxAttempts:    opts.MaxAttempts,
		initialBackoff: opts.InitialBackoff,
		localDims:      opts.LocalDims,
		limiter:        newRateWindow(opts.WindowLimit, opts.Window, opts.Clock),
		clock:          opts.Clock,
		logger:         opts.Logger,
	}
}

// GenerateText runs the request through the provider chain, honoring the
// rate window, per-provider retry budget and not-found fast fallback. It
// fails only once every provider and every retry is exhausted.
func (g *Gateway) GenerateText(ctx context.Context, req TextRequest) (string, error) {
	if len(g.providers) == 0 {
		return "", fmt.Errorf("no text providers configured")
	}

	var lastErr error
	for i, p := range g.providers {
		text, err := g.generateWithRetry(ctx, p, req)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if i+1 < len(g.providers) {
			next := g.providers[i+1]
			metrics.GatewayFailoversTotal.WithLabelValues(p.Name(), next.Name()).Inc()
			g.logger.Warn("gateway failover", "from", p.Name(), "to", next.Name(), "caller", req.CallerTag, "error", err)
		}
	}
	return "", fmt.Errorf("all providers exhausted: %w", lastErr)
}

// generateWithRetry runs one provider's retry budget for a request.
func (g *Gateway) generateWithRetry(ctx context.Context, p Provider, req TextRequest) (string, error) {
	var lastErr *Error
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		if err := g.limiter.Acquire(ctx, p.Name()); err != nil {
			return "", err
		}

		text, err := p.GenerateText(ctx, req)
		if err == nil {
			metrics.GatewayRequestsTotal.WithLabelValues(p.Name(), "generate", "success").Inc()
			return text, nil
		}

		gwErr := Normalize(p.Name(), err)
		lastErr = gwErr
		metrics.GatewayRequestsTotal.WithLabelValues(p.Name(), "generate", gwErr.Kind.String()).Inc()

		if gwErr.Kind == KindNotFound {
			// Wrong model id on this provider; backoff will not help.
			return "", gwErr
		}
		if !gwErr.Retryable() {
			return "", gwErr
		}

		metrics.GatewayRetriesTotal.WithLabelValues(p.Name(), gwErr.Kind.String()).Inc()
		backoff := g.initialBackoff << attempt
		g.logger.Debug("gateway retry", "provider", p.Name(), "attempt", attempt+1, "backoff", backoff, "kind", gwErr.Kind.String())
		if err := g.clock.Sleep(ctx, backoff); err != nil {
			return "", err
		}
	}
	return "", lastErr
}

// EmbedText embeds text via the embedder chain, or deterministically via the
// local hash embedding when no embedder is configured.
func (g *Gateway) EmbedText(ctx context.Context, text string) ([]float64, error) {
	if len(g.embedders) == 0 {
		return LocalEmbedding(text, g.localDims), nil
	}

	var lastErr error
	for i, e := range g.embedders {
		vec, err := g.embedWithRetry(ctx, e, text)
		if err == nil {
			return vec, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if i+1 < len(g.embedders) {
			next := g.embedders[i+1]
			metrics.GatewayFailoversTotal.WithLabelValues(e.Name(), next.Name()).Inc()
			g.logger.Warn("gateway embed failover", "from", e.Name(), "to", next.Name(), "error", err)
		}
	}
	return nil, fmt.Errorf("all embedders exhausted: %w", lastErr)
}

func (g *Gateway) embedWithRetry(ctx context.Context, e Embedder, text string) ([]float64, error) {
	var lastErr *Error
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		if err := g.limiter.Acquire(ctx, e.Name()); err != nil {
			return nil, err
		}

		vec, err := e.EmbedText(ctx, text)
		if err == nil {
			metrics.GatewayRequestsTotal.WithLabelValues(e.Name(), "embed", "success").Inc()
			return vec, nil
		}

		gwErr := Normalize(e.Name(), err)
		lastErr = gwErr
		metrics.GatewayRequestsTotal.WithLabelValues(e.Name(), "embed", gwErr.Kind.String()).Inc()

		if gwErr.Kind == KindNotFound || !gwErr.Retryable() {
			return nil, gwErr
		}

		metrics.GatewayRetriesTotal.WithLabelValues(e.Name(), gwErr.Kind.String()).Inc()
		if err := g.clock.Sleep(ctx, g.initialBackoff<<attempt); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}
