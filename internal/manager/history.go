package manager

import (
	"context"
	"time"

	"chatcore/internal/session"
	"chatcore/internal/transcript"
	"chatcore/pkg/types"
)

const transcriptTimeout = 5 * time.Second

func (m *Manager) record(msg transcript.Message) {
	if m.transcript == nil {
		return
	}
	m.mu.RLock()
	msg.Conversation = m.conversation
	m.mu.RUnlock()
	ctx, cancel := context.WithTimeout(context.Background(), transcriptTimeout)
	defer cancel()
	if _, err := m.transcript.Append(ctx, msg); err != nil {
		m.log.Warn().Err(err).Str("role", string(msg.Role)).Msg("append transcript")
	}
}

func (m *Manager) recordUser(text string) {
	m.record(transcript.Message{Role: transcript.RoleUser, Content: text})
}

func (m *Manager) recordAssistant(model string, out session.Outcome) {
	m.record(transcript.Message{
		Role:       transcript.RoleAssistant,
		Content:    out.Text,
		Model:      model,
		Tokens:     out.GeneratedTokens,
		Duration:   out.Duration,
		StopReason: string(out.Reason),
	})
}

// recordError stores the short message shown in place of a reply.
func (m *Manager) recordError(err error) {
	if isCanceled(err) {
		return
	}
	m.record(transcript.Message{Role: transcript.RoleError, Content: "Error: " + err.Error()})
}

// Transcript returns the newest limit messages of the current conversation.
func (m *Manager) Transcript(ctx context.Context, limit int) (types.TranscriptResponse, error) {
	m.mu.RLock()
	conv := m.conversation
	m.mu.RUnlock()
	resp := types.TranscriptResponse{Conversation: conv, Messages: []types.TranscriptEntry{}}
	if m.transcript == nil {
		return resp, nil
	}
	msgs, err := m.transcript.List(ctx, conv, limit)
	if err != nil {
		return resp, err
	}
	for _, msg := range msgs {
		resp.Messages = append(resp.Messages, types.TranscriptEntry{
			Role:       string(msg.Role),
			Content:    msg.Content,
			CreatedAt:  msg.CreatedAt.UnixMilli(),
			Model:      msg.Model,
			Tokens:     msg.Tokens,
			DurationMS: msg.Duration.Milliseconds(),
			StopReason: msg.StopReason,
		})
	}
	return resp, nil
}
