// Package manager coordinates the chat session for the HTTP and CLI
// surfaces. It is structured into small files by concern:
//
//   - manager.go: core Manager type, model listing, Ready, Close.
//   - config.go: ManagerConfig and package defaults; NewWithConfig applies defaults.
//   - types.go: lifecycle State and ModelInfo.
//   - errors.go: error types and helpers (IsTooBusy, IsModelNotFound, IsNoModel).
//   - admission.go: single in-flight generation plus a bounded FIFO queue.
//   - switch.go: Switch/SwitchAsync; the old session is torn down before the
//     new one is built.
//   - generate.go: Generate and the recovery policy for session errors.
//   - task.go: Submit and the cancellable background Task.
//   - infer.go: NDJSON streaming for the HTTP surface.
//   - prefs.go: generation settings seeded from and persisted to the settings store.
//   - history.go: transcript recording.
//   - status.go: Status/Snapshot reporting.
//   - events.go, eventpub_*.go: lifecycle events.
//   - metrics.go: Prometheus collectors.
//
// The session engine is not safe for concurrent use. Every call that touches
// it goes through the generation slot in admission.go, which is how the
// manager provides the single-writer discipline the engine relies on.
package manager
