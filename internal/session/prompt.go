package session

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"chatcore/internal/backend"
)

// Placeholder is substituted by the user text in a static prompt format.
const Placeholder = "{prompt}"

// DefaultPromptFormat is the static format offered when a model has no
// embedded chat template.
const DefaultPromptFormat = "Human: {prompt}\n\nAssistant: "

// boundaryMarkers mark where a new conversational turn starts, in the order
// they are searched for inside a chat template.
var boundaryMarkers = []string{
	"<|im_start|>",
	"<|start_header_id|>",
	"<start_of_turn>",
	"<|user|>",
	"[INST]",
}

// ValidateFormat requires exactly one placeholder.
func ValidateFormat(format string) error {
	if n := strings.Count(format, Placeholder); n != 1 {
		return fmt.Errorf("prompt format must contain %s exactly once, found %d", Placeholder, n)
	}
	return nil
}

// FormatStatic substitutes input for the placeholder verbatim.
func FormatStatic(format, input string) string {
	return strings.Replace(format, Placeholder, input, 1)
}

// detectTemplate queries the model for an embedded chat template and caches
// the first token of the first boundary marker found in it.
func detectTemplate(m backend.Model, log zerolog.Logger) TemplateInfo {
	tmpl, ok := m.ChatTemplate()
	if !ok || tmpl == "" {
		return TemplateInfo{}
	}
	info := TemplateInfo{Present: true, Template: tmpl}
	for _, marker := range boundaryMarkers {
		if !strings.Contains(tmpl, marker) {
			continue
		}
		toks, err := m.Tokenize(marker, false, true)
		if err != nil || len(toks) == 0 {
			log.Warn().Str("marker", marker).Err(err).Msg("boundary marker did not tokenize")
			break
		}
		info.Marker = marker
		info.BoundaryToken = toks[0]
		info.HasBoundary = true
		break
	}
	return info
}

// Formatter turns user text into the exact text handed to tokenization.
type Formatter struct {
	info        TemplateInfo
	useTemplate bool
	static      string
}

func newFormatter(info TemplateInfo, static string) *Formatter {
	return &Formatter{info: info, useTemplate: info.Present, static: static}
}

// TemplateActive reports whether the chat template is in use.
func (f *Formatter) TemplateActive() bool { return f.useTemplate }

// IsBoundary reports whether tok is the cached turn-boundary stop token.
func (f *Formatter) IsBoundary(tok backend.Token) bool {
	return f.useTemplate && f.info.HasBoundary && tok == f.info.BoundaryToken
}

// Format applies the chat template when active, else the static format,
// else passes the text through.
func (f *Formatter) Format(m backend.Model, userText string) (string, error) {
	if f.useTemplate {
		msgs := []backend.Message{{Role: "user", Content: userText}}
		out, err := m.ApplyChatTemplate(f.info.Template, msgs, true)
		if err != nil {
			return "", templateError{err: err}
		}
		return out, nil
	}
	if f.static != "" {
		return FormatStatic(f.static, userText), nil
	}
	return userText, nil
}
