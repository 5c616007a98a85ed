package manager

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"chatcore/internal/backend/backendtest"
	"chatcore/internal/session"
	"chatcore/internal/transcript"
	"chatcore/pkg/types"
)

// fakeDir resolves model names to themselves.
type fakeDir struct {
	names []string
	err   error
}

func (d *fakeDir) List() ([]types.Model, error) {
	if d.err != nil {
		return nil, d.err
	}
	out := make([]types.Model, 0, len(d.names))
	for _, n := range d.names {
		out = append(out, types.Model{ID: n, Name: n, Path: "/models/" + n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (d *fakeDir) Resolve(name string) (string, error) {
	for _, n := range d.names {
		if n == name {
			return "/models/" + n, nil
		}
	}
	return "", errors.New("not found")
}

var errBoom = errors.New("boom")

var testSession = session.Config{Capacity: 128, BatchSize: 8, Threads: 1, MaxTokens: 16}

// newTestManager builds a manager over the given models, keyed by file name.
func newTestManager(t *testing.T, models map[string]*backendtest.Model, mutate func(*ManagerConfig)) (*Manager, *backendtest.Loader) {
	t.Helper()
	loader := &backendtest.Loader{Models: map[string]*backendtest.Model{}}
	dir := &fakeDir{}
	for name, mdl := range models {
		loader.Models["/models/"+name] = mdl
		dir.names = append(dir.names, name)
	}
	cfg := ManagerConfig{
		Loader:    loader,
		Directory: dir,
		Session:   testSession,
		Publisher: NewMemoryPublisher(),
		MaxWait:   time.Second,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	m := NewWithConfig(cfg)
	t.Cleanup(func() { _ = m.Close(context.Background()) })
	return m, loader
}

func newTranscript(t *testing.T) *transcript.Store {
	t.Helper()
	st, err := transcript.Open(context.Background(), filepath.Join(t.TempDir(), "transcript.db"))
	if err != nil {
		t.Fatalf("open transcript: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func mustSwitch(t *testing.T, m *Manager, id string) {
	t.Helper()
	if err := m.Switch(context.Background(), id); err != nil {
		t.Fatalf("switch %s: %v", id, err)
	}
}

// blockFirstSample parks the first Sample call until release is closed and
// signals started when it gets there.
func blockFirstSample(mdl *backendtest.Model) (started, release chan struct{}) {
	started = make(chan struct{})
	release = make(chan struct{})
	first := true
	mdl.OnSample = func() {
		if !first {
			return
		}
		first = false
		close(started)
		<-release
	}
	return started, release
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting")
	}
}
