package manager

// State represents the lifecycle state of the manager.
type State string

const (
	StateEmpty   State = "empty"
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateError   State = "error"
)

// ModelInfo is a minimal view of the loaded model.
type ModelInfo struct {
	ID   string
	Path string
}

// Snapshot is a read-only projection of the manager state.
type Snapshot struct {
	State        State
	CurrentModel *ModelInfo
	Err          string
}
