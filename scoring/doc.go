// Package scoring implements the compatibility scoring engine as a pure
// reducer: NewState seeds per-session accumulators from the two profiles,
// PreConversation computes the one-time pre-score and hard-constraint gate,
// Update folds one enriched message into the running component scores, and
// Finalize snapshots everything into the terminal CompatibilityResult.
//
// Because every step is a value-in/value-out function, the weighting and
// smoothing logic is directly property-testable without constructing a live
// session.
package scoring
