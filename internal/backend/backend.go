// Package backend defines the boundary to the native model-execution runtime.
//
// The session engine only ever talks to these interfaces. The real
// implementation (yzma.go) binds llama.cpp through purego and is compiled
// with `-tags=yzma`; without the tag a stub (stub.go) fails fast with a
// dependency-unavailable error so default builds stay free of native code.
package backend

import "strings"

// Token is a vocabulary id as produced by the tokenizer.
type Token int32

// DefaultSeed asks the runtime to pick a random seed.
const DefaultSeed uint32 = 0xFFFFFFFF

// ContextParams configures an execution context.
type ContextParams struct {
	Capacity  int
	BatchSize int
	Threads   int
}

// SamplerParams configures the sampler chain. The chain order is fixed:
// top-k, top-p, temperature, seeded distribution.
type SamplerParams struct {
	TopK        int
	TopP        float32
	Temperature float32
	Seed        uint32
}

// Message is one role-tagged chat turn handed to a chat template.
type Message struct {
	Role    string
	Content string
}

// Loader loads model files.
type Loader interface {
	Load(path string) (Model, error)
}

// Model is a loaded model plus its vocabulary.
type Model interface {
	// TrainedContext reports the context length the model was trained with.
	TrainedContext() int
	Tokenize(text string, addLeading, parseSpecial bool) ([]Token, error)
	// TokenToText renders one token. When firstOfCall is set a single
	// leading space is dropped from the fragment.
	TokenToText(tok Token, firstOfCall bool) (string, error)
	IsEndOfGeneration(tok Token) bool
	// ChatTemplate returns the embedded chat template, if any.
	ChatTemplate() (string, bool)
	ApplyChatTemplate(tmpl string, msgs []Message, addAssistant bool) (string, error)
	NewContext(p ContextParams) (Context, error)
	NewSampler(p SamplerParams) (Sampler, error)
	Close() error
}

// Context is a stateful execution context holding the KV memory.
type Context interface {
	// Evaluate advances the autoregressive state by len(tokens).
	Evaluate(tokens []Token) error
	// EvictRange removes positions [start,end) of sequence seq from memory.
	EvictRange(seq, start, end int) error
	// ClearMemory drops every resident token.
	ClearMemory() error
	Close() error
}

// Sampler picks the next token from the logits of the last evaluation.
type Sampler interface {
	Sample(ctx Context) Token
	Accept(tok Token)
	Reset()
	Close() error
}

// StripLeadingSpace drops one leading space from the first fragment of a
// generation call.
func StripLeadingSpace(piece string, firstOfCall bool) string {
	if firstOfCall {
		return strings.TrimPrefix(piece, " ")
	}
	return piece
}
