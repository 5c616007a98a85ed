package manager

import (
	"context"
	"encoding/json"
	"io"

	"chatcore/internal/session"
	"chatcore/pkg/types"
)

// Infer runs one turn and streams NDJSON to w: one {"token":...} line per
// fragment, then a final DoneLine. When req.Model names a different model
// the session is switched first, which drops the conversation. Errors
// before the first write are returned unwritten so the caller can map them
// to a status code.
func (m *Manager) Infer(ctx context.Context, req types.GenerateRequest, w io.Writer, flusher func()) error {
	if req.Prompt == "" {
		return invalidArgumentError{msg: "prompt is required"}
	}
	if req.Model != "" && req.Model != m.currentID() {
		if err := m.Switch(ctx, req.Model); err != nil {
			return err
		}
	}
	onTok := func(tok string) error {
		if _, err := w.Write(tokenLineJSON(tok)); err != nil {
			return err
		}
		if flusher != nil {
			flusher()
		}
		return nil
	}
	out, err := m.Generate(ctx, req.Prompt, onTok)
	if err != nil {
		return err
	}
	if _, err := w.Write(doneLineJSON(out)); err != nil {
		return err
	}
	if flusher != nil {
		flusher()
	}
	return nil
}

// tokenLineJSON formats a token NDJSON line using json.Marshal for correctness.
func tokenLineJSON(tok string) []byte {
	b, _ := json.Marshal(types.TokenLine{Token: tok})
	return append(b, '\n')
}

func doneLineJSON(out session.Outcome) []byte {
	b, _ := json.Marshal(types.DoneLine{
		Done:            true,
		Content:         out.Text,
		StopReason:      string(out.Reason),
		PromptTokens:    out.PromptTokens,
		GeneratedTokens: out.GeneratedTokens,
		Evicted:         out.Evicted,
		DurationMS:      out.Duration.Milliseconds(),
		TokensPerSecond: out.TokensPerSecond(),
	})
	return append(b, '\n')
}
