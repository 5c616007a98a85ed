//go:build yzma

package backend

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/hybridgroup/yzma/pkg/llama"
)

// Built reports whether this binary carries the native runtime.
const Built = true

var (
	initOnce sync.Once
	initErr  error
)

// Init loads the llama.cpp shared libraries from libPath once per process.
// An empty libPath falls back to $YZMA_LIB.
func Init(libPath string) error {
	initOnce.Do(func() {
		if strings.TrimSpace(libPath) == "" {
			libPath = os.Getenv("YZMA_LIB")
		}
		if libPath == "" {
			initErr = ErrDependencyUnavailable("llama library path not set (use --lib or YZMA_LIB)")
			return
		}
		if err := llama.Load(libPath); err != nil {
			initErr = ErrDependencyUnavailable(fmt.Sprintf("load llama library from %s: %v", libPath, err))
			return
		}
		llama.Init()
	})
	return initErr
}

type yzmaLoader struct{}

// NewLoader returns a loader backed by llama.cpp. Init must succeed first.
func NewLoader() Loader { return yzmaLoader{} }

func (yzmaLoader) Load(path string) (Model, error) {
	if initErr != nil {
		return nil, initErr
	}
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("model path is empty")
	}
	params := llama.ModelDefaultParams()
	// CPU only; GPU offload is not part of the desktop build.
	params.NGpuLayers = 0
	m, err := llama.ModelLoadFromFile(path, params)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", path, err)
	}
	return &yzmaModel{model: m, vocab: llama.ModelGetVocab(m)}, nil
}

type yzmaModel struct {
	model llama.Model
	vocab llama.Vocab
}

func (m *yzmaModel) TrainedContext() int { return int(llama.ModelNCtxTrain(m.model)) }

func (m *yzmaModel) Tokenize(text string, addLeading, parseSpecial bool) ([]Token, error) {
	raw := llama.Tokenize(m.vocab, text, addLeading, parseSpecial)
	if len(raw) == 0 && text != "" {
		return nil, fmt.Errorf("tokenize %d bytes: no tokens produced", len(text))
	}
	out := make([]Token, len(raw))
	for i, t := range raw {
		out[i] = Token(t)
	}
	return out, nil
}

func (m *yzmaModel) TokenToText(tok Token, firstOfCall bool) (string, error) {
	var lstrip int32
	if firstOfCall {
		lstrip = 1
	}
	buf := make([]byte, 128)
	n := llama.TokenToPiece(m.vocab, llama.Token(tok), buf, lstrip, true)
	if n < 0 {
		// Negative length is the required buffer size.
		buf = make([]byte, -n)
		n = llama.TokenToPiece(m.vocab, llama.Token(tok), buf, lstrip, true)
		if n < 0 {
			return "", fmt.Errorf("token %d: piece conversion failed", tok)
		}
	}
	return string(buf[:n]), nil
}

func (m *yzmaModel) IsEndOfGeneration(tok Token) bool {
	return llama.VocabIsEOG(m.vocab, llama.Token(tok))
}

func (m *yzmaModel) ChatTemplate() (string, bool) {
	tmpl := llama.ModelChatTemplate(m.model, "")
	return tmpl, tmpl != ""
}

func (m *yzmaModel) ApplyChatTemplate(tmpl string, msgs []Message, addAssistant bool) (string, error) {
	chat := make([]llama.ChatMessage, 0, len(msgs))
	size := 0
	for _, msg := range msgs {
		chat = append(chat, llama.NewChatMessage(msg.Role, msg.Content))
		size += len(msg.Role) + len(msg.Content)
	}
	buf := make([]byte, 2*size+256)
	n := llama.ChatApplyTemplate(tmpl, chat, addAssistant, buf)
	if n < 0 {
		return "", fmt.Errorf("chat template rejected %d message(s)", len(msgs))
	}
	if int(n) > len(buf) {
		buf = make([]byte, n)
		n = llama.ChatApplyTemplate(tmpl, chat, addAssistant, buf)
		if n < 0 || int(n) > len(buf) {
			return "", fmt.Errorf("chat template output size %d", n)
		}
	}
	return string(buf[:n]), nil
}

func (m *yzmaModel) NewContext(p ContextParams) (Context, error) {
	cp := llama.ContextDefaultParams()
	cp.NCtx = uint32(p.Capacity)
	cp.NBatch = uint32(p.BatchSize)
	cp.NUbatch = uint32(p.BatchSize)
	cp.NThreads = int32(p.Threads)
	cp.NThreadsBatch = int32(p.Threads)
	lctx, err := llama.InitFromModel(m.model, cp)
	if err != nil {
		return nil, fmt.Errorf("create context: %w", err)
	}
	mem, err := llama.GetMemory(lctx)
	if err != nil {
		llama.Free(lctx)
		return nil, fmt.Errorf("create context: memory: %w", err)
	}
	return &yzmaContext{ctx: lctx, mem: mem}, nil
}

func (m *yzmaModel) NewSampler(p SamplerParams) (Sampler, error) {
	chain := llama.SamplerChainInit(llama.SamplerChainDefaultParams())
	llama.SamplerChainAdd(chain, llama.SamplerInitTopK(int32(p.TopK)))
	llama.SamplerChainAdd(chain, llama.SamplerInitTopP(p.TopP, 1))
	llama.SamplerChainAdd(chain, llama.SamplerInitTempExt(p.Temperature, 0, 1))
	llama.SamplerChainAdd(chain, llama.SamplerInitDist(p.Seed))
	return &yzmaSampler{chain: chain}, nil
}

func (m *yzmaModel) Close() error {
	llama.ModelFree(m.model)
	return nil
}

type yzmaContext struct {
	ctx llama.Context
	mem llama.Memory
}

func (c *yzmaContext) Evaluate(tokens []Token) error {
	if len(tokens) == 0 {
		return nil
	}
	raw := make([]llama.Token, len(tokens))
	for i, t := range tokens {
		raw[i] = llama.Token(t)
	}
	rc, err := llama.Decode(c.ctx, llama.BatchGetOne(raw))
	if err != nil {
		return err
	}
	if rc != 0 {
		return fmt.Errorf("decode returned %d", rc)
	}
	return nil
}

func (c *yzmaContext) EvictRange(seq, start, end int) error {
	if end <= start {
		return nil
	}
	ok, err := llama.MemorySeqRm(c.mem, llama.SeqId(seq), llama.Pos(start), llama.Pos(end))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("memory rejected removal of [%d,%d)", start, end)
	}
	// Slide the survivors down so positions stay contiguous from start.
	return llama.MemorySeqAdd(c.mem, llama.SeqId(seq), llama.Pos(end), -1, llama.Pos(start-end))
}

func (c *yzmaContext) ClearMemory() error { return llama.MemoryClear(c.mem, true) }

func (c *yzmaContext) Close() error {
	llama.Free(c.ctx)
	return nil
}

type yzmaSampler struct{ chain llama.Sampler }

func (s *yzmaSampler) Sample(ctx Context) Token {
	yc := ctx.(*yzmaContext)
	return Token(llama.SamplerSample(s.chain, yc.ctx, -1))
}

func (s *yzmaSampler) Accept(tok Token) { llama.SamplerAccept(s.chain, llama.Token(tok)) }

func (s *yzmaSampler) Reset() { llama.SamplerReset(s.chain) }

func (s *yzmaSampler) Close() error {
	llama.SamplerFree(s.chain)
	return nil
}
