package manager

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"chatcore/internal/session"
)

// Task is a generation running in the background. Done is closed when it
// finishes; Cancel stops it at the next token boundary with reason
// canceled, leaving the session consistent.
type Task struct {
	ID string

	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	partial strings.Builder
	out     session.Outcome
	err     error
}

// Submit starts a generation for text and returns immediately. onToken, if
// set, is called from the task goroutine for each fragment.
func (m *Manager) Submit(ctx context.Context, text string, onToken func(string)) *Task {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{ID: uuid.NewString(), cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(t.done)
		defer cancel()
		out, err := m.Generate(ctx, text, func(tok string) error {
			t.mu.Lock()
			t.partial.WriteString(tok)
			t.mu.Unlock()
			if onToken != nil {
				onToken(tok)
			}
			return nil
		})
		t.mu.Lock()
		t.out, t.err = out, err
		t.mu.Unlock()
	}()
	return t
}

// Done is closed once the task has finished.
func (t *Task) Done() <-chan struct{} { return t.done }

func (t *Task) Cancel() { t.cancel() }

// Partial returns the text generated so far.
func (t *Task) Partial() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.partial.String()
}

// Result returns the outcome; it is only meaningful after Done.
func (t *Task) Result() (session.Outcome, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.out, t.err
}

// Wait blocks until the task finishes or ctx ends.
func (t *Task) Wait(ctx context.Context) (session.Outcome, error) {
	select {
	case <-t.done:
		return t.Result()
	case <-ctx.Done():
		return session.Outcome{}, ctx.Err()
	}
}
