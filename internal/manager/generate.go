package manager

import (
	"context"
	"errors"

	"chatcore/internal/session"
)

// Generate runs one conversational turn on the loaded session, passing each
// fragment to onToken (which may be nil). It waits for admission first.
//
// Recovery policy: a chat template failure switches the session to static
// formatting once and retries; a backend evaluation failure discards the
// session, leaving no model loaded. Other errors leave the session usable.
func (m *Manager) Generate(ctx context.Context, text string, onToken func(string) error) (session.Outcome, error) {
	if text == "" {
		return session.Outcome{}, invalidArgumentError{msg: "prompt is required"}
	}
	release, err := m.beginGeneration(ctx)
	if err != nil {
		return session.Outcome{}, err
	}
	defer release()
	eng, err := m.engine()
	if err != nil {
		return session.Outcome{}, err
	}
	model := eng.ModelPath()
	m.recordUser(text)

	out, err := eng.GenerateStream(ctx, text, onToken)
	if session.IsTemplateApplication(err) {
		m.log.Warn().Err(err).Msg("chat template failed, falling back to static format")
		eng.DisableTemplate()
		recoveries.WithLabelValues("template_fallback").Inc()
		m.publish("template_fallback", m.currentID(), map[string]any{"error": err.Error()})
		out, err = eng.GenerateStream(ctx, text, onToken)
	}
	m.refreshView(eng)
	switch {
	case err == nil:
		m.recordAssistant(model, out)
	case out.Reason == session.StopCanceled:
		if out.Text != "" {
			m.recordAssistant(model, out)
		}
	case session.IsEvaluation(err):
		m.recordError(err)
		m.teardown(eng, err)
	default:
		m.recordError(err)
	}
	return out, err
}

// Clear drops the conversation on the loaded session and starts a new
// transcript conversation.
func (m *Manager) Clear(ctx context.Context) error {
	release, err := m.beginGeneration(ctx)
	if err != nil {
		return err
	}
	defer release()
	eng, err := m.engine()
	if err != nil {
		return err
	}
	if err := eng.Clear(); err != nil {
		if session.IsEvaluation(err) {
			m.teardown(eng, err)
		}
		return err
	}
	m.refreshView(eng)
	m.mu.Lock()
	prev := m.conversation
	m.mu.Unlock()
	if m.transcript != nil {
		if _, err := m.transcript.Clear(context.WithoutCancel(ctx), prev); err != nil {
			m.log.Warn().Err(err).Msg("clear transcript")
		}
	}
	m.publish("cleared", m.currentID(), nil)
	return nil
}

// isCanceled reports whether err came from the caller going away.
func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
