package manager

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"chatcore/internal/backend"
	"chatcore/internal/session"
	"chatcore/internal/settings"
	"chatcore/pkg/types"
)

type Manager struct {
	mu           sync.RWMutex
	state        State
	cur          *ModelInfo
	err          string
	eng          *session.Engine
	models       []types.Model
	prefs        prefs
	loads        uint64
	conversation string
	// view mirrors engine fields for Status; it is refreshed by whoever holds
	// the generation slot so Status never reads the engine directly.
	view sessionView

	loader     backend.Loader
	dir        ModelDirectory
	base       session.Config
	settings   *settings.Section
	transcript Transcript
	publisher  EventPublisher
	log        zerolog.Logger

	// Admission: genCh holds the single in-flight slot, queueCh bounds the
	// number of callers waiting for it.
	genCh   chan struct{}
	queueCh chan struct{}
	maxWait time.Duration

	ops       sync.WaitGroup
	startTime time.Time
}

// Ready reports whether a session is loaded and usable.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == StateReady && m.eng != nil
}

// ListModels returns the last directory listing.
func (m *Manager) ListModels() []types.Model {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Model, len(m.models))
	copy(out, m.models)
	return out
}

// RefreshModels re-lists the models directory.
func (m *Manager) RefreshModels() ([]types.Model, error) {
	if m.dir == nil {
		return nil, nil
	}
	models, err := m.dir.List()
	if err != nil {
		return nil, err
	}
	m.SetModels(models)
	return models, nil
}

// SetModels replaces the cached listing, e.g. from a directory watcher.
func (m *Manager) SetModels(models []types.Model) {
	m.mu.Lock()
	m.models = models
	m.mu.Unlock()
	m.publish("models_changed", "", map[string]any{"count": len(models)})
}

// Close waits for any in-flight generation, then releases the session.
func (m *Manager) Close(ctx context.Context) error {
	release, err := m.acquireExclusive(ctx)
	if err != nil {
		return err
	}
	defer release()
	m.mu.Lock()
	eng := m.eng
	m.eng = nil
	m.cur = nil
	m.view = sessionView{}
	m.state = StateEmpty
	m.mu.Unlock()
	if eng == nil {
		return nil
	}
	return eng.Close()
}

// Wait blocks until background switches have finished.
func (m *Manager) Wait() { m.ops.Wait() }

type sessionView struct {
	used, capacity int
	maxTokens      int
	templateActive bool
	marker         string
}

// refreshView must be called with the generation slot held.
func (m *Manager) refreshView(eng *session.Engine) {
	v := sessionView{
		used:           eng.ContextUsage(),
		capacity:       eng.ContextCapacity(),
		maxTokens:      eng.Config().MaxTokens,
		templateActive: eng.TemplateActive(),
		marker:         eng.TemplateInfo().Marker,
	}
	m.mu.Lock()
	if m.eng == eng {
		m.view = v
	}
	m.mu.Unlock()
}

// engine returns the current session; callers must hold the generation slot.
func (m *Manager) engine() (*session.Engine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.eng == nil {
		return nil, noModelError{reason: m.err}
	}
	return m.eng, nil
}
