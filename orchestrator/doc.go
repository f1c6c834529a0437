// Package orchestrator drives one timed conversation between two persona
// agents. Each orchestrator owns exactly one session: it walks the session
// through INIT, LIVE, WRAP and SCORE, advances elapsed time on a one-second
// clock, alternates agent turns on an independent turn timer, funnels every
// utterance through enrichment and the scoring engine, and emits lifecycle
// events outward.
//
// Turns are fully serialized per session. The turn timer skips a firing
// while the previous turn's generation, enrichment and persistence are still
// in flight, and every turn captures a generation token at its start: by the
// time its results resolve, a bumped token (from End or Stop) means the
// results are silently discarded. Cross-session concurrency is unconstrained
// because each orchestrator owns disjoint state.
package orchestrator
