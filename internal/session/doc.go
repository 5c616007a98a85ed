// Package session owns one model's conversation state across turns.
//
// An Engine mirrors the backend's KV memory with a Token History and a
// Position Counter, evicts the oldest tokens when a turn would not fit, and
// runs the sample/detokenize/evaluate loop. Files by concern:
//
//   - engine.go: construction (initialize), Clear, introspection, teardown.
//   - generate.go: Generate/GenerateStream, prompt evaluation, the loop.
//   - window.go: eviction planner (Window.Plan).
//   - prompt.go: chat template detection and prompt formatting.
//   - history.go: Token History deque.
//   - config.go: Config, defaults, thread/batch heuristics.
//   - errors.go: error kinds and Is* predicates.
//   - metrics.go: Prometheus collectors.
//
// An Engine is not safe for concurrent use. Callers serialize Generate,
// Clear and the setters; internal/manager does this with its admission
// slots.
package session
