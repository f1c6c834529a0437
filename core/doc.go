// Package core provides the foundational domain types, interfaces and ports
// used by duetmatch. It defines the core abstractions for:
//
//   - Profiles (embedding + Big-Five personality + matching filters)
//   - Messages and conversation sessions (the state machine's owned data)
//   - Compatibility results and score breakdowns
//   - Events (immutable outbound lifecycle records) and the EventSink port
//   - Pluggable stores for session persistence and profile lookup
//   - Clock / Ticker ports so schedulers can run on virtual time in tests
//
// The package intentionally keeps implementation concerns (persistence,
// orchestration, concrete providers) out of scope, exposing small interfaces
// to enable custom backends and extensions.
package core
