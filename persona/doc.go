// Package persona turns a participant profile into a conversational agent.
// An Agent keeps a bounded window of recent messages, builds a phase-aware
// system prompt around a precomputed persona summary, and delegates the
// actual text generation to the gateway. Generation failures never leave
// this package: the agent falls back to a fixed continuation line so the
// turn scheduler can never stall on a single failed call.
//
// ScriptedAgent is the network-free variant backing the reserved demo
// participant; it cycles canned lines instead of calling the gateway.
package persona
