package session

import "chatcore/internal/backend"

// History is the oldest-first shadow of the tokens resident in backend
// memory. Front pops advance a head index; the backing array is compacted
// once the dead prefix outgrows the live part.
type History struct {
	buf  []backend.Token
	head int
}

func (h *History) Len() int { return len(h.buf) - h.head }

func (h *History) Push(toks ...backend.Token) { h.buf = append(h.buf, toks...) }

// PopFront drops the n oldest tokens.
func (h *History) PopFront(n int) {
	if n <= 0 {
		return
	}
	if n >= h.Len() {
		h.Reset()
		return
	}
	h.head += n
	if h.head > len(h.buf)/2 {
		live := copy(h.buf, h.buf[h.head:])
		h.buf = h.buf[:live]
		h.head = 0
	}
}

// Tokens returns a copy of the resident tokens, oldest first.
func (h *History) Tokens() []backend.Token {
	out := make([]backend.Token, h.Len())
	copy(out, h.buf[h.head:])
	return out
}

func (h *History) Reset() {
	h.buf = h.buf[:0]
	h.head = 0
}
