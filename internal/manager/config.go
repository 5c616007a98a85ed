package manager

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"chatcore/internal/backend"
	"chatcore/internal/session"
	"chatcore/internal/settings"
	"chatcore/internal/transcript"
	"chatcore/pkg/types"
)

// Defaults applied when corresponding ManagerConfig fields are unset.
const (
	defaultMaxQueueDepth = 8
	defaultMaxWait       = 30 * time.Second
)

// ModelDirectory lists and resolves model files.
type ModelDirectory interface {
	List() ([]types.Model, error)
	Resolve(name string) (string, error)
}

// Transcript stores conversation messages.
type Transcript interface {
	Append(ctx context.Context, m transcript.Message) (int64, error)
	List(ctx context.Context, conversation string, limit int) ([]transcript.Message, error)
	Clear(ctx context.Context, conversation string) (int64, error)
}

// ManagerConfig encapsulates all tunables for Manager construction.
type ManagerConfig struct {
	Loader    backend.Loader
	Directory ModelDirectory
	// Session is the base engine configuration; generation fields are
	// overridden by persisted settings.
	Session session.Config
	// Settings persists user changes; nil keeps them in memory only.
	Settings *settings.Section
	// Transcript records turns; nil disables recording.
	Transcript    Transcript
	Publisher     EventPublisher
	Logger        zerolog.Logger
	MaxQueueDepth int
	MaxWait       time.Duration
}

// NewWithConfig constructs a Manager from ManagerConfig. No model is loaded
// until Switch is called.
func NewWithConfig(cfg ManagerConfig) *Manager {
	m := &Manager{
		state:        StateEmpty,
		loader:       cfg.Loader,
		dir:          cfg.Directory,
		base:         cfg.Session,
		settings:     cfg.Settings,
		transcript:   cfg.Transcript,
		publisher:    cfg.Publisher,
		log:          cfg.Logger,
		conversation: transcript.NewConversationID(),
		startTime:    time.Now(),
	}
	if m.publisher == nil {
		m.publisher = noopPublisher{}
	}
	depth := cfg.MaxQueueDepth
	if depth <= 0 {
		depth = defaultMaxQueueDepth
	}
	m.maxWait = cfg.MaxWait
	if m.maxWait <= 0 {
		m.maxWait = defaultMaxWait
	}
	m.genCh = make(chan struct{}, 1)
	m.queueCh = make(chan struct{}, depth)
	m.prefs = loadPrefs(cfg.Session, cfg.Settings)
	if _, err := m.RefreshModels(); err != nil {
		m.log.Warn().Err(err).Msg("list models")
	}
	return m
}
