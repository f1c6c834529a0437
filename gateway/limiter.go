package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/duetmatch/core"
	"github.com/hupe1980/duetmatch/metrics"
)

// rateWindow enforces a sliding-window call budget per provider. It is
// shared by every session in the process, so a single mutex guards all
// windows. A full window delays the caller until the oldest timestamp
// expires; calls are never rejected.
type rateWindow struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	clock  core.Clock
	stamps map[string][]time.Time
}

// newRateWindow creates a limiter allowing limit calls per provider within
// window. If limit == 0 the limiter is a no-op.
func newRateWindow(limit int, window time.Duration, clock core.Clock) *rateWindow {
	return &rateWindow{
		limit:  limit,
		window: window,
		clock:  clock,
		stamps: make(map[string][]time.Time),
	}
}

// Acquire blocks until the provider's window has a free slot, then records
// the call timestamp. Returns ctx.Err() if the context is cancelled while
// waiting.
func (w *rateWindow) Acquire(ctx context.Context, provider string) error {
	if w.limit <= 0 {
		return nil
	}
	for {
		w.mu.Lock()
		now := w.clock.Now()
		stamps := pruneStamps(w.stamps[provider], now.Add(-w.window))
		if len(stamps) < w.limit {
			w.stamps[provider] = append(stamps, now)
			w.mu.Unlock()
			return nil
		}
		wait := stamps[0].Add(w.window).Sub(now)
		w.stamps[provider] = stamps
		w.mu.Unlock()

		metrics.GatewayThrottleWait.WithLabelValues(provider).Observe(wait.Seconds())
		if err := w.clock.Sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// pruneStamps drops timestamps at or before the cutoff, preserving order.
func pruneStamps(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}
	return stamps[i:]
}
