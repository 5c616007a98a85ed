package manager

import (
	"context"
	"time"

	"github.com/google/uuid"

	"chatcore/internal/session"
	"chatcore/internal/settings"
	"chatcore/internal/transcript"
)

// Switch loads modelID, replacing the current session. The old session is
// fully released (sampler, context, model) before the new one is built; on
// failure no model is loaded and the reason is kept for Status.
func (m *Manager) Switch(ctx context.Context, modelID string) error {
	path, err := m.resolve(modelID)
	if err != nil {
		return err
	}
	release, err := m.acquireExclusive(ctx)
	if err != nil {
		return err
	}
	defer release()
	return m.load(modelID, path)
}

// SwitchAsync validates modelID, then switches in the background and
// returns an operation id. Progress is reported through events and Status.
func (m *Manager) SwitchAsync(modelID string) (string, error) {
	path, err := m.resolve(modelID)
	if err != nil {
		return "", err
	}
	op := uuid.NewString()
	m.publish("switch_queued", modelID, map[string]any{"op": op})
	m.ops.Add(1)
	go func() {
		defer m.ops.Done()
		release, _ := m.acquireExclusive(context.Background())
		defer release()
		if err := m.load(modelID, path); err != nil {
			m.log.Warn().Err(err).Str("op", op).Str("model", modelID).Msg("background switch failed")
		}
	}()
	return op, nil
}

func (m *Manager) resolve(modelID string) (string, error) {
	if modelID == "" {
		return "", ErrModelNotFound("(unspecified)")
	}
	if m.dir == nil {
		return "", ErrModelNotFound(modelID)
	}
	path, err := m.dir.Resolve(modelID)
	if err != nil {
		return "", ErrModelNotFound(modelID)
	}
	return path, nil
}

// load must be called with the generation slot held.
func (m *Manager) load(modelID, path string) error {
	start := time.Now()
	m.publish("switch_start", modelID, nil)

	m.mu.Lock()
	old := m.eng
	oldID := ""
	if m.cur != nil {
		oldID = m.cur.ID
	}
	m.eng = nil
	m.cur = nil
	m.view = sessionView{}
	m.state = StateLoading
	m.err = ""
	m.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			m.log.Warn().Err(err).Str("model", oldID).Msg("release previous session")
		}
		m.publish("unload_done", oldID, nil)
	}

	if m.loader == nil {
		return m.failLoad(modelID, noModelError{reason: "no backend configured"})
	}
	cfg := m.sessionConfig()
	eng, err := session.New(m.loader, path, &cfg,
		session.WithLogger(m.log.With().Str("component", "session").Logger()))
	if err != nil {
		return m.failLoad(modelID, err)
	}

	m.mu.Lock()
	m.eng = eng
	m.cur = &ModelInfo{ID: modelID, Path: path}
	m.state = StateReady
	m.loads++
	m.conversation = transcript.NewConversationID()
	m.mu.Unlock()
	m.refreshView(eng)

	loadsTotal.WithLabelValues("ok").Inc()
	loadDuration.Observe(time.Since(start).Seconds())
	if m.settings != nil {
		if err := m.settings.SetString(settings.KeyLastModel, modelID); err != nil {
			m.log.Warn().Err(err).Msg("persist last model")
		}
	}
	info := eng.TemplateInfo()
	m.log.Info().
		Str("model", modelID).
		Int("capacity", eng.ContextCapacity()).
		Bool("chat_template", info.Present).
		Dur("dur", time.Since(start)).
		Msg("model loaded")
	m.publish("switch_done", modelID, map[string]any{
		"capacity":      eng.ContextCapacity(),
		"chat_template": info.Present,
	})
	return nil
}

func (m *Manager) failLoad(modelID string, err error) error {
	m.mu.Lock()
	m.state = StateError
	m.err = err.Error()
	m.mu.Unlock()
	loadsTotal.WithLabelValues("error").Inc()
	m.log.Error().Err(err).Str("model", modelID).Msg("model load failed")
	m.publish("switch_failed", modelID, map[string]any{"error": err.Error()})
	return err
}

// teardown discards a session after a fatal evaluation error. Called with
// the generation slot held.
func (m *Manager) teardown(eng *session.Engine, cause error) {
	m.mu.Lock()
	id := ""
	if m.cur != nil {
		id = m.cur.ID
	}
	if m.eng == eng {
		m.eng = nil
		m.cur = nil
		m.view = sessionView{}
	}
	m.state = StateError
	m.err = cause.Error()
	m.mu.Unlock()
	if err := eng.Close(); err != nil {
		m.log.Warn().Err(err).Msg("release broken session")
	}
	recoveries.WithLabelValues("teardown").Inc()
	m.log.Error().Err(cause).Str("model", id).Msg("session discarded after backend failure")
	m.publish("session_torn_down", id, map[string]any{"error": cause.Error()})
}

// LastModel returns the model recorded by the last successful switch.
func (m *Manager) LastModel() string {
	if m.settings == nil {
		return ""
	}
	return m.settings.String(settings.KeyLastModel, "")
}
