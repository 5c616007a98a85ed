package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"chatcore/internal/backend"
)

// Generate runs one conversational turn and returns the produced text.
// Conversation context persists across calls.
func (e *Engine) Generate(ctx context.Context, userText string) (Outcome, error) {
	return e.GenerateStream(ctx, userText, nil)
}

// GenerateStream is Generate with each emitted fragment passed to onToken.
// An onToken error stops the loop and is returned. ctx is polled once per
// loop iteration; on cancellation the outcome holds the text produced so far
// and the session stays consistent.
func (e *Engine) GenerateStream(ctx context.Context, userText string, onToken func(string) error) (Outcome, error) {
	if err := e.usable(); err != nil {
		return Outcome{}, err
	}
	start := time.Now()
	prompt, err := e.format.Format(e.model, userText)
	if err != nil {
		return Outcome{}, err
	}
	tokens, err := e.model.Tokenize(prompt, e.pos == 0, e.format.TemplateActive())
	if err != nil {
		return Outcome{}, tokenizationError{err: err}
	}
	if len(tokens) == 0 {
		return Outcome{}, tokenizationError{err: errors.New("prompt produced no tokens")}
	}
	out := Outcome{PromptTokens: len(tokens)}
	evicted, err := e.ensureCapacity(len(tokens))
	out.Evicted = evicted
	if err != nil {
		return out, err
	}
	if err := e.evaluatePrompt(tokens); err != nil {
		return out, err
	}
	promptTokensTotal.Add(float64(len(tokens)))

	err = e.loop(ctx, &out, onToken)
	out.Duration = time.Since(start)
	generatedTokensTotal.Add(float64(out.GeneratedTokens))
	contextUsage.Set(float64(e.pos))
	generationDuration.Observe(out.Duration.Seconds())
	if out.Reason != "" {
		stopsTotal.WithLabelValues(string(out.Reason)).Inc()
	}
	ev := e.log.Debug()
	if err != nil {
		ev = e.log.Warn().Err(err)
	}
	ev.Str("reason", string(out.Reason)).
		Int("prompt_tokens", out.PromptTokens).
		Int("generated", out.GeneratedTokens).
		Int("evicted", out.Evicted).
		Int("position", e.pos).
		Dur("dur", out.Duration).
		Msg("generate done")
	return out, err
}

// ensureCapacity evicts the oldest tokens so incoming tokens plus the full
// generation budget fit.
func (e *Engine) ensureCapacity(incoming int) (int, error) {
	n, err := e.window.Plan(e.pos, incoming, e.cfg.MaxTokens)
	if err != nil {
		e.log.Warn().Err(err).Int("incoming", incoming).Msg("context overflow")
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	if err := e.lctx.EvictRange(0, 0, n); err != nil {
		e.broken = evaluationError{op: "evict", pos: e.pos, err: err}
		return 0, e.broken
	}
	e.pos -= n
	e.history.PopFront(n)
	evictionsTotal.Inc()
	evictedTokensTotal.Add(float64(n))
	e.log.Debug().Int("evicted", n).Int("position", e.pos).Msg("evicted oldest tokens")
	return n, nil
}

// evaluatePrompt feeds tokens in BatchSize chunks. The counter and history
// advance only after each chunk is accepted.
func (e *Engine) evaluatePrompt(tokens []backend.Token) error {
	for start := 0; start < len(tokens); start += e.cfg.BatchSize {
		end := min(start+e.cfg.BatchSize, len(tokens))
		chunk := tokens[start:end]
		if err := e.lctx.Evaluate(chunk); err != nil {
			e.broken = evaluationError{op: "evaluate prompt", pos: e.pos, err: err}
			return e.broken
		}
		e.pos += len(chunk)
		e.history.Push(chunk...)
	}
	return nil
}

// loop samples until a stop condition fires. The budget is checked before
// sampling so no token beyond MaxTokens is drawn.
func (e *Engine) loop(ctx context.Context, out *Outcome, onToken func(string) error) error {
	var sb strings.Builder
	defer func() { out.Text = sb.String() }()
	for produced := 0; ; produced++ {
		if err := ctx.Err(); err != nil {
			out.Reason = StopCanceled
			return err
		}
		if produced >= e.cfg.MaxTokens {
			out.Reason = StopMaxTokens
			return nil
		}
		tok := e.sampler.Sample(e.lctx)
		e.sampler.Accept(tok)
		if e.model.IsEndOfGeneration(tok) {
			out.Reason = StopNatural
			return nil
		}
		if e.format.IsBoundary(tok) {
			out.Reason = StopBoundary
			return nil
		}
		piece, err := e.model.TokenToText(tok, produced == 0)
		if err != nil {
			return tokenizationError{err: err}
		}
		if onToken != nil {
			if err := onToken(piece); err != nil {
				out.Reason = StopCanceled
				return err
			}
		}
		sb.WriteString(piece)
		if err := e.lctx.Evaluate([]backend.Token{tok}); err != nil {
			e.broken = evaluationError{op: "evaluate token", pos: e.pos, err: err}
			return e.broken
		}
		e.pos++
		e.history.Push(tok)
		out.GeneratedTokens++
		if e.pos >= e.cfg.Capacity-guardMargin {
			out.Reason = StopCapacity
			return nil
		}
	}
}
