package manager

import (
	"context"
	"fmt"

	"chatcore/internal/session"
	"chatcore/internal/settings"
	"chatcore/pkg/types"
)

// prefs are the generation settings applied to every session. Zero
// MaxTokens lets the engine derive it from the context capacity.
type prefs struct {
	maxTokens       int
	sampling        session.Sampling
	usePromptFormat bool
	promptFormat    string
}

func (p prefs) format() string {
	if !p.usePromptFormat {
		return ""
	}
	return p.promptFormat
}

// loadPrefs layers persisted settings over the base configuration.
func loadPrefs(base session.Config, sec *settings.Section) prefs {
	p := prefs{
		maxTokens:       base.MaxTokens,
		sampling:        base.Sampling.WithDefaults(),
		usePromptFormat: true,
		promptFormat:    base.PromptFormat,
	}
	if p.promptFormat == "" {
		p.promptFormat = session.DefaultPromptFormat
	}
	if sec == nil {
		return p
	}
	p.maxTokens = sec.Int(settings.KeyMaxTokens, p.maxTokens)
	p.sampling.Temperature = float32(sec.Float(settings.KeyTemperature, float64(p.sampling.Temperature)))
	p.sampling.TopK = sec.Int(settings.KeyTopK, p.sampling.TopK)
	p.sampling.TopP = float32(sec.Float(settings.KeyTopP, float64(p.sampling.TopP)))
	p.usePromptFormat = sec.Bool(settings.KeyUsePromptFormat, p.usePromptFormat)
	if f := sec.String(settings.KeyPromptFormat, ""); f != "" && session.ValidateFormat(f) == nil {
		p.promptFormat = f
	}
	return p
}

// sessionConfig is the engine configuration for the next load.
func (m *Manager) sessionConfig() session.Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg := m.base
	cfg.MaxTokens = m.prefs.maxTokens
	cfg.Sampling = m.prefs.sampling
	cfg.PromptFormat = m.prefs.format()
	return cfg
}

// Settings returns the effective generation settings. With a session loaded
// MaxTokens reflects the value the engine resolved.
func (m *Manager) Settings() types.Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p := m.prefs
	out := types.Settings{
		MaxTokens:       p.maxTokens,
		Temperature:     float64(p.sampling.Temperature),
		TopK:            p.sampling.TopK,
		TopP:            float64(p.sampling.TopP),
		UsePromptFormat: p.usePromptFormat,
		PromptFormat:    p.promptFormat,
	}
	if m.eng != nil {
		out.MaxTokens = m.view.maxTokens
	}
	return out
}

func validateUpdate(u types.SettingsUpdate) error {
	if u.MaxTokens != nil && *u.MaxTokens <= 0 {
		return invalidArgumentError{msg: "max_tokens must be positive"}
	}
	if u.Temperature != nil && (*u.Temperature <= 0 || *u.Temperature > 5) {
		return invalidArgumentError{msg: "temperature must be in (0,5]"}
	}
	if u.TopK != nil && *u.TopK <= 0 {
		return invalidArgumentError{msg: "top_k must be positive"}
	}
	if u.TopP != nil && (*u.TopP <= 0 || *u.TopP > 1) {
		return invalidArgumentError{msg: "top_p must be in (0,1]"}
	}
	if u.PromptFormat != nil {
		if err := session.ValidateFormat(*u.PromptFormat); err != nil {
			return invalidArgumentError{msg: err.Error()}
		}
	}
	return nil
}

// UpdateSettings applies the set fields to the loaded session and persists
// them. It waits for any in-flight generation like a regular request.
func (m *Manager) UpdateSettings(ctx context.Context, u types.SettingsUpdate) (types.Settings, error) {
	if err := validateUpdate(u); err != nil {
		return types.Settings{}, err
	}
	release, err := m.beginGeneration(ctx)
	if err != nil {
		return types.Settings{}, err
	}
	defer release()

	m.mu.RLock()
	next := m.prefs
	eng := m.eng
	m.mu.RUnlock()
	if u.MaxTokens != nil {
		next.maxTokens = *u.MaxTokens
	}
	if u.Temperature != nil {
		next.sampling.Temperature = float32(*u.Temperature)
	}
	if u.TopK != nil {
		next.sampling.TopK = *u.TopK
	}
	if u.TopP != nil {
		next.sampling.TopP = float32(*u.TopP)
	}
	if u.UsePromptFormat != nil {
		next.usePromptFormat = *u.UsePromptFormat
	}
	if u.PromptFormat != nil {
		next.promptFormat = *u.PromptFormat
	}

	if eng != nil {
		if err := applyToEngine(eng, u, next); err != nil {
			return types.Settings{}, err
		}
	}

	m.mu.Lock()
	m.prefs = next
	m.mu.Unlock()
	if eng != nil {
		m.refreshView(eng)
	}
	if err := m.persist(u, next); err != nil {
		m.log.Warn().Err(err).Msg("persist settings")
	}
	m.publish("settings_changed", m.currentID(), nil)
	return m.Settings(), nil
}

// applyToEngine changes the engine only if every field can be applied.
// Sizes and formats are checked first; the sampler, the only step that can
// fail in the backend, is rebuilt last, and a failure restores the rest.
func applyToEngine(eng *session.Engine, u types.SettingsUpdate, next prefs) error {
	if u.MaxTokens != nil && next.maxTokens >= eng.ContextCapacity() {
		return invalidArgumentError{msg: fmt.Sprintf("max_tokens must be below the context capacity %d", eng.ContextCapacity())}
	}
	formatChanged := u.UsePromptFormat != nil || u.PromptFormat != nil
	if f := next.format(); formatChanged && f != "" {
		if err := session.ValidateFormat(f); err != nil {
			return invalidArgumentError{msg: err.Error()}
		}
	}

	prev := eng.Config()
	restore := func() {
		_ = eng.SetMaxTokens(prev.MaxTokens)
		_ = eng.SetPromptFormat(prev.PromptFormat)
	}
	if u.MaxTokens != nil {
		if err := eng.SetMaxTokens(next.maxTokens); err != nil {
			return invalidArgumentError{msg: err.Error()}
		}
	}
	if formatChanged {
		if err := eng.SetPromptFormat(next.format()); err != nil {
			restore()
			return invalidArgumentError{msg: err.Error()}
		}
	}
	if u.Temperature != nil || u.TopK != nil || u.TopP != nil {
		if err := eng.SetSampling(next.sampling); err != nil {
			restore()
			return fmt.Errorf("apply sampling: %w", err)
		}
	}
	return nil
}

func (m *Manager) persist(u types.SettingsUpdate, p prefs) error {
	sec := m.settings
	if sec == nil {
		return nil
	}
	if u.MaxTokens != nil {
		if err := sec.SetInt(settings.KeyMaxTokens, p.maxTokens); err != nil {
			return err
		}
	}
	if u.Temperature != nil {
		if err := sec.SetFloat(settings.KeyTemperature, *u.Temperature); err != nil {
			return err
		}
	}
	if u.TopK != nil {
		if err := sec.SetInt(settings.KeyTopK, p.sampling.TopK); err != nil {
			return err
		}
	}
	if u.TopP != nil {
		if err := sec.SetFloat(settings.KeyTopP, *u.TopP); err != nil {
			return err
		}
	}
	if u.UsePromptFormat != nil {
		if err := sec.SetBool(settings.KeyUsePromptFormat, p.usePromptFormat); err != nil {
			return err
		}
	}
	if u.PromptFormat != nil {
		if err := sec.SetString(settings.KeyPromptFormat, p.promptFormat); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) currentID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.cur == nil {
		return ""
	}
	return m.cur.ID
}
