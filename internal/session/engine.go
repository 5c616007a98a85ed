package session

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/rs/zerolog"

	"chatcore/internal/backend"
)

// guardMargin is how close to capacity the loop may run before it stops.
const guardMargin = 4

// Engine is one loaded model with its conversation state.
type Engine struct {
	cfg     Config
	path    string
	model   backend.Model
	lctx    backend.Context
	sampler backend.Sampler
	window  Window
	format  *Formatter
	history History
	// pos mirrors the number of tokens resident in backend memory.
	pos    int
	broken error
	closed bool
	log    zerolog.Logger
	cpus   int
}

// Option customizes Engine construction.
type Option func(*Engine)

// WithLogger installs a structured logger.
func WithLogger(l zerolog.Logger) Option { return func(e *Engine) { e.log = l } }

// withCPUs overrides the detected hardware concurrency.
func withCPUs(n int) Option { return func(e *Engine) { e.cpus = n } }

// New loads modelPath and builds the execution context and sampler chain.
// A nil cfg (or zero Capacity) derives capacity from the model's trained
// context length. Any failure is an initialization error and releases what
// was already built.
func New(loader backend.Loader, modelPath string, cfg *Config, opts ...Option) (*Engine, error) {
	e := &Engine{path: modelPath, log: zerolog.Nop(), cpus: runtime.NumCPU()}
	for _, o := range opts {
		o(e)
	}
	if loader == nil {
		return nil, initializationError{stage: "load model", err: errors.New("no backend loader")}
	}
	model, err := loader.Load(modelPath)
	if err != nil {
		return nil, initializationError{stage: "load model", err: err}
	}
	resolved, err := resolveConfig(cfg, model.TrainedContext(), e.cpus)
	if err != nil {
		_ = model.Close()
		return nil, initializationError{stage: "config", err: err}
	}
	lctx, err := model.NewContext(backend.ContextParams{
		Capacity:  resolved.Capacity,
		BatchSize: resolved.BatchSize,
		Threads:   resolved.Threads,
	})
	if err != nil {
		_ = model.Close()
		return nil, initializationError{stage: "create context", err: err}
	}
	sampler, err := model.NewSampler(resolved.Sampling.params())
	if err != nil {
		_ = lctx.Close()
		_ = model.Close()
		return nil, initializationError{stage: "create sampler", err: err}
	}
	e.cfg = resolved
	e.model = model
	e.lctx = lctx
	e.sampler = sampler
	e.window = Window{Capacity: resolved.Capacity, KeepRatio: resolved.KeepRatio, MinKeep: resolved.MinKeep}
	info := detectTemplate(model, e.log)
	e.format = newFormatter(info, resolved.PromptFormat)
	contextUsage.Set(0)
	e.log.Info().
		Str("model", modelPath).
		Int("capacity", resolved.Capacity).
		Int("batch", resolved.BatchSize).
		Int("threads", resolved.Threads).
		Bool("chat_template", info.Present).
		Str("boundary_marker", info.Marker).
		Msg("session initialized")
	return e, nil
}

func (e *Engine) usable() error {
	if e.closed {
		return ErrClosed
	}
	return e.broken
}

// Clear drops the conversation: backend memory, Position Counter, Token
// History and sampler state. The model stays loaded.
func (e *Engine) Clear() error {
	if err := e.usable(); err != nil {
		return err
	}
	if err := e.lctx.ClearMemory(); err != nil {
		e.broken = evaluationError{op: "clear", pos: e.pos, err: err}
		return e.broken
	}
	e.pos = 0
	e.history.Reset()
	e.sampler.Reset()
	contextUsage.Set(0)
	e.log.Debug().Msg("session cleared")
	return nil
}

// ContextUsage reports the tokens resident in backend memory.
func (e *Engine) ContextUsage() int { return e.pos }

// ContextCapacity reports the configured capacity.
func (e *Engine) ContextCapacity() int { return e.cfg.Capacity }

// Config returns the resolved configuration.
func (e *Engine) Config() Config { return e.cfg }

// ModelPath returns the path the session was loaded from.
func (e *Engine) ModelPath() string { return e.path }

// TemplateInfo returns what was detected at load.
func (e *Engine) TemplateInfo() TemplateInfo { return e.format.info }

// TemplateActive reports whether prompts go through the chat template.
func (e *Engine) TemplateActive() bool { return e.format.TemplateActive() }

// History returns a copy of the Token History, oldest first.
func (e *Engine) History() []backend.Token { return e.history.Tokens() }

// Err returns the fatal error that broke the session, if any.
func (e *Engine) Err() error { return e.broken }

// SetMaxTokens changes the per-call generation budget.
func (e *Engine) SetMaxTokens(n int) error {
	if n <= 0 || n >= e.cfg.Capacity {
		return fmt.Errorf("max tokens must be in [1,%d), got %d", e.cfg.Capacity, n)
	}
	e.cfg.MaxTokens = n
	return nil
}

// SetSampling rebuilds the sampler chain with new parameters. The previous
// sampler is kept if the new one cannot be built.
func (e *Engine) SetSampling(s Sampling) error {
	if err := e.usable(); err != nil {
		return err
	}
	s = s.WithDefaults()
	next, err := e.model.NewSampler(s.params())
	if err != nil {
		return fmt.Errorf("create sampler: %w", err)
	}
	_ = e.sampler.Close()
	e.sampler = next
	e.cfg.Sampling = s
	return nil
}

// SetPromptFormat sets the static format used when no template is active.
// An empty format passes user text through unchanged.
func (e *Engine) SetPromptFormat(format string) error {
	if format != "" {
		if err := ValidateFormat(format); err != nil {
			return err
		}
	}
	e.format.static = format
	e.cfg.PromptFormat = format
	return nil
}

// DisableTemplate switches to static formatting, e.g. after a template
// application error. The boundary stop token is ignored from then on.
func (e *Engine) DisableTemplate() { e.format.useTemplate = false }

// Close releases the sampler, then the context, then the model.
func (e *Engine) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	var errs []error
	if err := e.sampler.Close(); err != nil {
		errs = append(errs, fmt.Errorf("sampler: %w", err))
	}
	if err := e.lctx.Close(); err != nil {
		errs = append(errs, fmt.Errorf("context: %w", err))
	}
	if err := e.model.Close(); err != nil {
		errs = append(errs, fmt.Errorf("model: %w", err))
	}
	contextUsage.Set(0)
	e.log.Info().Str("model", e.path).Msg("session closed")
	return errors.Join(errs...)
}
