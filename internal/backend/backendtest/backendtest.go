// Package backendtest provides an in-memory backend for tests.
//
// Tokens are runes, so "hi" tokenizes to ['h','i']. A few small ids are
// reserved: BOS marks the leading token, EOG ends generation and Boundary is
// the token "<|im_start|>" turns into when special parsing is on. Samplers
// replay a script and fall back to EOG once it is exhausted.
package backendtest

import (
	"errors"
	"strings"
	"sync"
	"unicode/utf8"

	"chatcore/internal/backend"
)

const (
	BOS      backend.Token = 1
	EOG      backend.Token = 2
	Boundary backend.Token = 3

	BoundaryMarker = "<|im_start|>"
	// ChatML is a template string that contains the boundary marker.
	ChatML = "{% for m in messages %}<|im_start|>{{ m.role }}\n{{ m.content }}<|im_end|>\n{% endfor %}<|im_start|>assistant\n"
)

var (
	_ backend.Loader  = (*Loader)(nil)
	_ backend.Model   = (*Model)(nil)
	_ backend.Context = (*Context)(nil)
	_ backend.Sampler = (*Sampler)(nil)
)

// Tokens converts text to rune tokens without special parsing.
func Tokens(s string) []backend.Token {
	out := make([]backend.Token, 0, len(s))
	for _, r := range s {
		out = append(out, backend.Token(r))
	}
	return out
}

// Loader hands out Models by path.
type Loader struct {
	mu sync.Mutex
	// Models maps a path to the model returned for it. Paths not present
	// get a fresh Model built by New (or a zero Model).
	Models map[string]*Model
	New    func(path string) *Model
	Err    error
	Loads  []string
}

func (l *Loader) Load(path string) (backend.Model, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Loads = append(l.Loads, path)
	if l.Err != nil {
		return nil, l.Err
	}
	if m, ok := l.Models[path]; ok {
		return m, nil
	}
	if l.New != nil {
		return l.New(path), nil
	}
	return &Model{}, nil
}

// LoadCount reports how many loads were attempted.
func (l *Loader) LoadCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.Loads)
}

// Model is a scriptable backend.Model.
type Model struct {
	mu sync.Mutex

	Trained  int
	Template string
	// Script is the token sequence samplers replay.
	Script []backend.Token
	// OnSample runs before every Sample; tests use it to block or cancel.
	OnSample func()

	TokenizeErr    error
	TemplateErr    error
	TokenToTextErr error
	NewContextErr  error
	NewSamplerErr  error
	// EvaluateErrAt makes the n-th Evaluate call (1-based) fail.
	EvaluateErrAt int
	EvictErr      error
	ClearErr      error

	// Log records close calls in order: "sampler", "context", "model".
	Log []string

	ctx      *Context
	samplers int
}

func (m *Model) record(s string) {
	m.mu.Lock()
	m.Log = append(m.Log, s)
	m.mu.Unlock()
}

// Closed reports the recorded close order.
func (m *Model) Closed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Log...)
}

// LastContext returns the most recent context created from the model.
func (m *Model) LastContext() *Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ctx
}

// SamplersBuilt counts NewSampler calls that succeeded.
func (m *Model) SamplersBuilt() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.samplers
}

func (m *Model) TrainedContext() int { return m.Trained }

func (m *Model) Tokenize(text string, addLeading, parseSpecial bool) ([]backend.Token, error) {
	if m.TokenizeErr != nil {
		return nil, m.TokenizeErr
	}
	var out []backend.Token
	if addLeading {
		out = append(out, BOS)
	}
	for len(text) > 0 {
		if parseSpecial && strings.HasPrefix(text, BoundaryMarker) {
			out = append(out, Boundary)
			text = text[len(BoundaryMarker):]
			continue
		}
		r, size := utf8.DecodeRuneInString(text)
		out = append(out, backend.Token(r))
		text = text[size:]
	}
	return out, nil
}

func (m *Model) TokenToText(tok backend.Token, firstOfCall bool) (string, error) {
	if m.TokenToTextErr != nil {
		return "", m.TokenToTextErr
	}
	var s string
	switch tok {
	case BOS, EOG:
		s = ""
	case Boundary:
		s = BoundaryMarker
	default:
		s = string(rune(tok))
	}
	return backend.StripLeadingSpace(s, firstOfCall), nil
}

func (m *Model) IsEndOfGeneration(tok backend.Token) bool { return tok == EOG }

func (m *Model) ChatTemplate() (string, bool) { return m.Template, m.Template != "" }

func (m *Model) ApplyChatTemplate(tmpl string, msgs []backend.Message, addAssistant bool) (string, error) {
	if m.TemplateErr != nil {
		return "", m.TemplateErr
	}
	var sb strings.Builder
	for _, msg := range msgs {
		sb.WriteString(BoundaryMarker + msg.Role + "\n" + msg.Content + "<|im_end|>\n")
	}
	if addAssistant {
		sb.WriteString(BoundaryMarker + "assistant\n")
	}
	return sb.String(), nil
}

func (m *Model) NewContext(p backend.ContextParams) (backend.Context, error) {
	if m.NewContextErr != nil {
		return nil, m.NewContextErr
	}
	c := &Context{model: m, Params: p}
	m.mu.Lock()
	m.ctx = c
	m.mu.Unlock()
	return c, nil
}

func (m *Model) NewSampler(p backend.SamplerParams) (backend.Sampler, error) {
	if m.NewSamplerErr != nil {
		return nil, m.NewSamplerErr
	}
	m.mu.Lock()
	m.samplers++
	m.mu.Unlock()
	return &Sampler{model: m, Params: p}, nil
}

func (m *Model) Close() error {
	m.record("model")
	return nil
}

// Context tracks resident tokens and refuses to grow past capacity.
type Context struct {
	mu     sync.Mutex
	model  *Model
	Params backend.ContextParams

	resident []backend.Token
	evals    int
	batches  []int
}

// Resident returns the tokens currently held in memory.
func (c *Context) Resident() []backend.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]backend.Token(nil), c.resident...)
}

// Batches returns the size of every Evaluate call in order.
func (c *Context) Batches() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.batches...)
}

func (c *Context) Evaluate(tokens []backend.Token) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evals++
	if c.model.EvaluateErrAt > 0 && c.evals == c.model.EvaluateErrAt {
		return errors.New("decode failed")
	}
	if len(tokens) > c.Params.BatchSize {
		return errors.New("batch larger than batch size")
	}
	if len(c.resident)+len(tokens) > c.Params.Capacity {
		return errors.New("context full")
	}
	c.resident = append(c.resident, tokens...)
	c.batches = append(c.batches, len(tokens))
	return nil
}

func (c *Context) EvictRange(seq, start, end int) error {
	if c.model.EvictErr != nil {
		return c.model.EvictErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if seq != 0 || start < 0 || end > len(c.resident) || start > end {
		return errors.New("bad eviction range")
	}
	c.resident = append(c.resident[:start], c.resident[end:]...)
	return nil
}

func (c *Context) ClearMemory() error {
	if c.model.ClearErr != nil {
		return c.model.ClearErr
	}
	c.mu.Lock()
	c.resident = nil
	c.mu.Unlock()
	return nil
}

func (c *Context) Close() error {
	c.model.record("context")
	return nil
}

// Sampler replays the model's script.
type Sampler struct {
	model  *Model
	Params backend.SamplerParams
	next   int
}

func (s *Sampler) Sample(backend.Context) backend.Token {
	if s.model.OnSample != nil {
		s.model.OnSample()
	}
	s.model.mu.Lock()
	defer s.model.mu.Unlock()
	if s.next >= len(s.model.Script) {
		return EOG
	}
	tok := s.model.Script[s.next]
	s.next++
	return tok
}

func (s *Sampler) Accept(backend.Token) {}

func (s *Sampler) Reset() { s.next = 0 }

func (s *Sampler) Close() error {
	s.model.record("sampler")
	return nil
}
