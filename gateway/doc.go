// Package gateway implements the multi-provider text generation and
// embedding gateway. It layers three concerns on top of vendor adapters:
//
//   - Self-throttling: a process-wide sliding 60 second window per provider
//     delays calls instead of rejecting them once the window is full.
//   - Retry with backoff: rate-limited and server errors are retried with
//     exponential backoff inside a bounded per-provider budget.
//   - Failover: providers are tried in fixed priority order; a provider is
//     skipped immediately on not-found class errors and after its retry
//     budget is exhausted otherwise.
//
// Provider errors are normalized at the adapter boundary into the tagged
// Error type so the retry and failover logic never inspects vendor fields.
// When no embedding provider is configured, EmbedText falls back to a
// deterministic local hash embedding so the same text always embeds to the
// same vector without any network dependency.
package gateway
