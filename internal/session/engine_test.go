package session

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"chatcore/internal/backend/backendtest"
)

func newTestEngine(t *testing.T, m *backendtest.Model, cfg *Config) *Engine {
	t.Helper()
	loader := &backendtest.Loader{Models: map[string]*backendtest.Model{"m.gguf": m}}
	e, err := New(loader, "m.gguf", cfg, withCPUs(8))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = e.Close() })
	return e
}

// checkShadow asserts the Token History mirrors backend memory exactly.
func checkShadow(t *testing.T, e *Engine, m *backendtest.Model) {
	t.Helper()
	resident := m.LastContext().Resident()
	if !slices.Equal(resident, e.History()) {
		t.Fatalf("history %v does not mirror memory %v", e.History(), resident)
	}
	if e.ContextUsage() != len(resident) {
		t.Fatalf("position %d, resident %d", e.ContextUsage(), len(resident))
	}
	if e.ContextUsage() > e.ContextCapacity() {
		t.Fatalf("position %d exceeds capacity %d", e.ContextUsage(), e.ContextCapacity())
	}
}

func repeat(s string, n int) string { return strings.Repeat(s, n) }

func TestGenerateStaticFormat(t *testing.T) {
	m := &backendtest.Model{Script: backendtest.Tokens(" ok")}
	e := newTestEngine(t, m, &Config{Capacity: 128, BatchSize: 8, MaxTokens: 16, PromptFormat: DefaultPromptFormat})

	var pieces []string
	out, err := e.GenerateStream(context.Background(), "hi", func(s string) error {
		pieces = append(pieces, s)
		return nil
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if out.Text != "ok" || out.Reason != StopNatural {
		t.Fatalf("outcome=%+v", out)
	}
	if strings.Join(pieces, "") != out.Text {
		t.Fatalf("streamed %q, returned %q", pieces, out.Text)
	}
	// BOS + "Human: hi\n\nAssistant: "
	if out.PromptTokens != 23 || out.GeneratedTokens != 3 {
		t.Fatalf("prompt=%d generated=%d", out.PromptTokens, out.GeneratedTokens)
	}
	h := e.History()
	if h[0] != backendtest.BOS {
		t.Fatalf("first turn must start with the leading marker")
	}
	if !slices.Equal(m.LastContext().Batches(), []int{8, 8, 7, 1, 1, 1}) {
		t.Fatalf("batches=%v", m.LastContext().Batches())
	}
	checkShadow(t, e, m)
}

func TestGenerateTemplateBoundaryStop(t *testing.T) {
	script := append(backendtest.Tokens("yes"), backendtest.Boundary)
	script = append(script, backendtest.Tokens("user\nmore")...)
	m := &backendtest.Model{Template: backendtest.ChatML, Script: script}
	e := newTestEngine(t, m, &Config{Capacity: 256, MaxTokens: 32})

	if !e.TemplateActive() || e.TemplateInfo().Marker != backendtest.BoundaryMarker {
		t.Fatalf("template not detected: %+v", e.TemplateInfo())
	}
	out, err := e.Generate(context.Background(), "hi")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if out.Reason != StopBoundary || out.Text != "yes" {
		t.Fatalf("outcome=%+v", out)
	}
	if strings.Contains(out.Text, backendtest.BoundaryMarker) {
		t.Fatalf("boundary marker leaked into %q", out.Text)
	}
	h := e.History()
	if !slices.Equal(h[len(h)-3:], backendtest.Tokens("yes")) {
		t.Fatalf("boundary token must not be evaluated, history tail %v", h[len(h)-3:])
	}
	checkShadow(t, e, m)
}

func TestGenerateMaxTokens(t *testing.T) {
	m := &backendtest.Model{Script: backendtest.Tokens("abcdefgh")}
	e := newTestEngine(t, m, &Config{Capacity: 64, MaxTokens: 3})
	out, err := e.Generate(context.Background(), "q")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if out.Reason != StopMaxTokens || out.Text != "abc" || out.GeneratedTokens != 3 {
		t.Fatalf("outcome=%+v", out)
	}
	checkShadow(t, e, m)
}

func TestGenerateMultiTurnRetainsContext(t *testing.T) {
	script := append(backendtest.Tokens("ab"), backendtest.EOG)
	script = append(script, backendtest.Tokens("cd")...)
	m := &backendtest.Model{Script: script}
	e := newTestEngine(t, m, &Config{Capacity: 128, MaxTokens: 8})

	first, err := e.Generate(context.Background(), "one")
	if err != nil || first.Text != "ab" {
		t.Fatalf("first turn: %+v %v", first, err)
	}
	posAfterFirst := e.ContextUsage()
	if posAfterFirst != 1+3+2 {
		t.Fatalf("position after first turn %d", posAfterFirst)
	}
	second, err := e.Generate(context.Background(), "two")
	if err != nil || second.Text != "cd" {
		t.Fatalf("second turn: %+v %v", second, err)
	}
	if second.PromptTokens != 3 {
		t.Fatalf("leading marker must only be added on an empty context, prompt=%d", second.PromptTokens)
	}
	h := e.History()
	if !slices.Equal(h[posAfterFirst:posAfterFirst+3], backendtest.Tokens("two")) {
		t.Fatalf("history=%v", h)
	}
	checkShadow(t, e, m)
}

func TestClear(t *testing.T) {
	m := &backendtest.Model{Script: backendtest.Tokens("ab")}
	e := newTestEngine(t, m, &Config{Capacity: 64, MaxTokens: 8})
	if _, err := e.Generate(context.Background(), "x"); err != nil {
		t.Fatalf("generate: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := e.Clear(); err != nil {
			t.Fatalf("clear %d: %v", i, err)
		}
		if e.ContextUsage() != 0 || len(e.History()) != 0 {
			t.Fatalf("clear left state behind")
		}
		checkShadow(t, e, m)
	}
	if testutil.ToFloat64(contextUsage) != 0 {
		t.Fatalf("context gauge not reset")
	}
	// The sampler is reset too, so the script replays.
	out, err := e.Generate(context.Background(), "x")
	if err != nil || out.Text != "ab" {
		t.Fatalf("after clear: %+v %v", out, err)
	}
	if e.History()[0] != backendtest.BOS {
		t.Fatalf("leading marker expected after clear")
	}
}

func TestGenerateEvictsOldestTokens(t *testing.T) {
	script := append(backendtest.Tokens("xy"), backendtest.EOG)
	script = append(script, backendtest.Tokens("z")...)
	m := &backendtest.Model{Script: script}
	e := newTestEngine(t, m, &Config{Capacity: 64, BatchSize: 64, MaxTokens: 8, KeepRatio: 0.75, MinKeep: 4})

	beforeEvictions := testutil.ToFloat64(evictionsTotal)
	beforeEvicted := testutil.ToFloat64(evictedTokensTotal)

	if _, err := e.Generate(context.Background(), repeat("a", 40)); err != nil {
		t.Fatalf("first turn: %v", err)
	}
	if e.ContextUsage() != 43 {
		t.Fatalf("position=%d want 43", e.ContextUsage())
	}
	out, err := e.Generate(context.Background(), repeat("b", 15))
	if err != nil {
		t.Fatalf("second turn: %v", err)
	}
	// overflow 43+15+8-64=2, ratio floor(43*0.25)=10
	if out.Evicted != 10 {
		t.Fatalf("evicted=%d want 10", out.Evicted)
	}
	if e.ContextUsage() != 43-10+15+1 {
		t.Fatalf("position=%d", e.ContextUsage())
	}
	h := e.History()
	if h[0] != 'a' {
		t.Fatalf("oldest tokens should have been evicted first, history starts %v", h[:3])
	}
	checkShadow(t, e, m)
	if got := testutil.ToFloat64(evictionsTotal) - beforeEvictions; got != 1 {
		t.Fatalf("evictions metric delta %v", got)
	}
	if got := testutil.ToFloat64(evictedTokensTotal) - beforeEvicted; got != 10 {
		t.Fatalf("evicted tokens metric delta %v", got)
	}
}

func TestGenerateContextOverflowLeavesStateUntouched(t *testing.T) {
	m := &backendtest.Model{}
	e := newTestEngine(t, m, &Config{Capacity: 64, MaxTokens: 8, MinKeep: 40})
	if _, err := e.Generate(context.Background(), repeat("a", 40)); err != nil {
		t.Fatalf("first turn: %v", err)
	}
	before := e.History()

	_, err := e.Generate(context.Background(), repeat("b", 20))
	if !IsContextOverflow(err) {
		t.Fatalf("want overflow, got %v", err)
	}
	if !slices.Equal(before, e.History()) {
		t.Fatalf("overflow must not touch history")
	}
	checkShadow(t, e, m)

	// A smaller turn still fits.
	if _, err := e.Generate(context.Background(), "hi"); err != nil {
		t.Fatalf("session should remain usable: %v", err)
	}
}

func TestGeneratePromptLargerThanCapacity(t *testing.T) {
	m := &backendtest.Model{}
	e := newTestEngine(t, m, &Config{Capacity: 32, MaxTokens: 8})
	if _, err := e.Generate(context.Background(), repeat("a", 40)); !IsContextOverflow(err) {
		t.Fatalf("want overflow, got %v", err)
	}
	if e.ContextUsage() != 0 {
		t.Fatalf("position=%d", e.ContextUsage())
	}
}

func TestGenerateCapacityGuard(t *testing.T) {
	m := &backendtest.Model{Script: backendtest.Tokens(repeat("x", 40))}
	e := newTestEngine(t, m, &Config{Capacity: 32, MaxTokens: 28})
	out, err := e.Generate(context.Background(), "a")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if out.Reason != StopCapacity || out.GeneratedTokens != 26 {
		t.Fatalf("outcome=%+v", out)
	}
	checkShadow(t, e, m)
}

func TestEvaluationErrorIsSticky(t *testing.T) {
	m := &backendtest.Model{EvaluateErrAt: 1}
	e := newTestEngine(t, m, &Config{Capacity: 64, MaxTokens: 8})
	_, err := e.Generate(context.Background(), "hi")
	if !IsEvaluation(err) {
		t.Fatalf("want evaluation error, got %v", err)
	}
	if e.ContextUsage() != 0 {
		t.Fatalf("failed chunk must not advance position")
	}
	if _, err := e.Generate(context.Background(), "hi"); !IsEvaluation(err) {
		t.Fatalf("session must stay broken, got %v", err)
	}
	if err := e.Clear(); !IsEvaluation(err) {
		t.Fatalf("clear on broken session: %v", err)
	}
	if e.Err() == nil {
		t.Fatalf("Err() should report the failure")
	}
}

func TestEvaluationErrorDuringGeneration(t *testing.T) {
	// Prompt fits in one batch; the second Evaluate is the first sampled token.
	m := &backendtest.Model{Script: backendtest.Tokens("abc"), EvaluateErrAt: 2}
	e := newTestEngine(t, m, &Config{Capacity: 64, MaxTokens: 8})
	out, err := e.Generate(context.Background(), "hi")
	if !IsEvaluation(err) {
		t.Fatalf("want evaluation error, got %v", err)
	}
	if out.GeneratedTokens != 0 {
		t.Fatalf("generated=%d", out.GeneratedTokens)
	}
	checkShadow(t, e, m)
}

func TestTokenizationErrorIsRecoverable(t *testing.T) {
	m := &backendtest.Model{TokenizeErr: errors.New("bad utf8")}
	e := newTestEngine(t, m, &Config{Capacity: 64, MaxTokens: 8})
	if _, err := e.Generate(context.Background(), "hi"); !IsTokenization(err) {
		t.Fatalf("want tokenization error, got %v", err)
	}
	m.TokenizeErr = nil
	if _, err := e.Generate(context.Background(), "hi"); err != nil {
		t.Fatalf("session should be reusable: %v", err)
	}

	m.Script = backendtest.Tokens("abc")
	m.TokenToTextErr = errors.New("piece")
	if _, err := e.Generate(context.Background(), "hi"); !IsTokenization(err) {
		t.Fatalf("want tokenization error from rendering, got %v", err)
	}
	checkShadow(t, e, m)
}

func TestTemplateErrorFallsBackToStatic(t *testing.T) {
	m := &backendtest.Model{Template: backendtest.ChatML, TemplateErr: errors.New("jinja"), Script: backendtest.Tokens("ok")}
	e := newTestEngine(t, m, &Config{Capacity: 128, MaxTokens: 8, PromptFormat: DefaultPromptFormat})
	if _, err := e.Generate(context.Background(), "hi"); !IsTemplateApplication(err) {
		t.Fatalf("want template error, got %v", err)
	}
	if e.ContextUsage() != 0 {
		t.Fatalf("template failure must not evaluate anything")
	}
	e.DisableTemplate()
	out, err := e.Generate(context.Background(), "hi")
	if err != nil || out.Text != "ok" {
		t.Fatalf("static retry: %+v %v", out, err)
	}
	if out.PromptTokens != 1+len("Human: hi\n\nAssistant: ") {
		t.Fatalf("prompt tokens=%d", out.PromptTokens)
	}
}

func TestGenerateCancellation(t *testing.T) {
	m := &backendtest.Model{Script: backendtest.Tokens("abcdef")}
	e := newTestEngine(t, m, &Config{Capacity: 64, MaxTokens: 16})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	n := 0
	out, err := e.GenerateStream(ctx, "hi", func(string) error {
		n++
		if n == 2 {
			cancel()
		}
		return nil
	})
	if !errors.Is(err, context.Canceled) || out.Reason != StopCanceled {
		t.Fatalf("want canceled, got %+v %v", out, err)
	}
	if out.Text != "ab" || out.GeneratedTokens != 2 {
		t.Fatalf("partial outcome=%+v", out)
	}
	checkShadow(t, e, m)

	errStop := errors.New("client gone")
	out, err = e.GenerateStream(context.Background(), "hi", func(string) error { return errStop })
	if !errors.Is(err, errStop) || out.Reason != StopCanceled {
		t.Fatalf("callback error: %+v %v", out, err)
	}
	checkShadow(t, e, m)
}

func TestRejectedFragmentNotInText(t *testing.T) {
	m := &backendtest.Model{Script: backendtest.Tokens("abcdef")}
	e := newTestEngine(t, m, &Config{Capacity: 64, MaxTokens: 16})

	errStop := errors.New("client gone")
	n := 0
	out, err := e.GenerateStream(context.Background(), "hi", func(string) error {
		n++
		if n == 3 {
			return errStop
		}
		return nil
	})
	if !errors.Is(err, errStop) || out.Reason != StopCanceled {
		t.Fatalf("callback error: %+v %v", out, err)
	}
	// "c" was sampled but rejected by the callback, so it is neither
	// evaluated nor part of the text.
	if out.Text != "ab" || out.GeneratedTokens != 2 {
		t.Fatalf("outcome=%+v", out)
	}
	h := e.History()
	if !slices.Equal(h[len(h)-2:], backendtest.Tokens("ab")) {
		t.Fatalf("history tail %v", h[len(h)-2:])
	}
	checkShadow(t, e, m)
}

func TestLeadingSpaceStrippedOnlyOnFirstFragment(t *testing.T) {
	m := &backendtest.Model{Script: backendtest.Tokens(" a b")}
	e := newTestEngine(t, m, &Config{Capacity: 64, MaxTokens: 16})
	out, err := e.Generate(context.Background(), "hi")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if out.Text != "a b" {
		t.Fatalf("text=%q want %q", out.Text, "a b")
	}
}

func TestNewFailuresReleaseResources(t *testing.T) {
	loader := &backendtest.Loader{Err: errors.New("no such file")}
	if _, err := New(loader, "x.gguf", nil); !IsInitialization(err) {
		t.Fatalf("want initialization error, got %v", err)
	}

	m := &backendtest.Model{NewContextErr: errors.New("oom")}
	loader = &backendtest.Loader{Models: map[string]*backendtest.Model{"m": m}}
	if _, err := New(loader, "m", nil); !IsInitialization(err) {
		t.Fatalf("want initialization error, got %v", err)
	}
	if !slices.Equal(m.Closed(), []string{"model"}) {
		t.Fatalf("close log %v", m.Closed())
	}

	m = &backendtest.Model{NewSamplerErr: errors.New("bad params")}
	loader = &backendtest.Loader{Models: map[string]*backendtest.Model{"m": m}}
	if _, err := New(loader, "m", nil); !IsInitialization(err) {
		t.Fatalf("want initialization error, got %v", err)
	}
	if !slices.Equal(m.Closed(), []string{"context", "model"}) {
		t.Fatalf("close log %v", m.Closed())
	}

	if _, err := New(nil, "m", nil); !IsInitialization(err) {
		t.Fatalf("nil loader: %v", err)
	}
}

func TestNewDerivesCapacityFromModel(t *testing.T) {
	m := &backendtest.Model{Trained: 512}
	e := newTestEngine(t, m, nil)
	cfg := e.Config()
	if cfg.Capacity != 512 || cfg.BatchSize != 512 || cfg.MaxTokens != 256 || cfg.MinKeep != 128 {
		t.Fatalf("cfg=%+v", cfg)
	}
	p := m.LastContext().Params
	if p.Capacity != 512 || p.Threads != 2 {
		t.Fatalf("context params=%+v", p)
	}
}

func TestCloseOrder(t *testing.T) {
	m := &backendtest.Model{}
	loader := &backendtest.Loader{Models: map[string]*backendtest.Model{"m": m}}
	e, err := New(loader, "m", &Config{Capacity: 64})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !slices.Equal(m.Closed(), []string{"sampler", "context", "model"}) {
		t.Fatalf("close order %v", m.Closed())
	}
	if err := e.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if len(m.Closed()) != 3 {
		t.Fatalf("double release: %v", m.Closed())
	}
	if _, err := e.Generate(context.Background(), "hi"); !errors.Is(err, ErrClosed) {
		t.Fatalf("generate after close: %v", err)
	}
	if err := e.Clear(); !errors.Is(err, ErrClosed) {
		t.Fatalf("clear after close: %v", err)
	}
}

func TestSetters(t *testing.T) {
	m := &backendtest.Model{}
	e := newTestEngine(t, m, &Config{Capacity: 64})
	if err := e.SetMaxTokens(64); err == nil {
		t.Fatalf("max tokens equal to capacity must fail")
	}
	if err := e.SetMaxTokens(10); err != nil || e.Config().MaxTokens != 10 {
		t.Fatalf("set max tokens: %v", err)
	}
	if err := e.SetSampling(Sampling{Temperature: 1.2}); err != nil {
		t.Fatalf("set sampling: %v", err)
	}
	if s := e.Config().Sampling; s.Temperature != 1.2 || s.TopK != 50 {
		t.Fatalf("sampling=%+v", s)
	}
	if m.SamplersBuilt() != 2 {
		t.Fatalf("samplers built=%d", m.SamplersBuilt())
	}
	m.NewSamplerErr = errors.New("nope")
	if err := e.SetSampling(Sampling{Temperature: 0.1}); err == nil {
		t.Fatalf("expected sampler error")
	}
	if e.Config().Sampling.Temperature != 1.2 {
		t.Fatalf("failed rebuild must keep previous sampling")
	}
	if err := e.SetPromptFormat("bad"); err == nil {
		t.Fatalf("expected format error")
	}
	if err := e.SetPromptFormat("Q: {prompt}\nA:"); err != nil {
		t.Fatalf("set format: %v", err)
	}
}

func TestStopReasonMetric(t *testing.T) {
	m := &backendtest.Model{Script: backendtest.Tokens("abc")}
	e := newTestEngine(t, m, &Config{Capacity: 64, MaxTokens: 2})
	before := testutil.ToFloat64(stopsTotal.WithLabelValues(string(StopMaxTokens)))
	if _, err := e.Generate(context.Background(), "hi"); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got := testutil.ToFloat64(stopsTotal.WithLabelValues(string(StopMaxTokens))) - before; got != 1 {
		t.Fatalf("stop metric delta %v", got)
	}
	if got := testutil.ToFloat64(contextUsage); got != float64(e.ContextUsage()) {
		t.Fatalf("gauge=%v position=%d", got, e.ContextUsage())
	}
}
