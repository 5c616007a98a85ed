package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"chatcore/internal/backend/backendtest"
	"chatcore/internal/download"
	"chatcore/internal/folders"
	"chatcore/internal/httpapi"
	"chatcore/internal/manager"
	"chatcore/internal/registry"
	"chatcore/internal/session"
	"chatcore/internal/settings"
	"chatcore/internal/transcript"
)

// stack is a full server over a temporary data root and the fake backend.
type stack struct {
	paths  folders.Paths
	loader *backendtest.Loader
	mgr    *manager.Manager
	srv    *httptest.Server
}

// createModels writes empty .gguf files into dir.
func createModels(t *testing.T, dir string, names ...string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	for _, n := range names {
		p := filepath.Join(dir, n)
		if err := os.WriteFile(p, []byte(""), 0o644); err != nil {
			t.Fatalf("write temp model %s: %v", p, err)
		}
	}
}

// newStack wires registry, settings, transcript, manager, downloader and
// mux the way chatd serve does. reply is what every model generates.
func newStack(t *testing.T, root, reply string) *stack {
	t.Helper()
	paths := folders.UnderRoot(root)
	if err := paths.Ensure(); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	reg, err := registry.New(paths.Models)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	store, err := settings.Open(paths.SettingsFile())
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	tr, err := transcript.Open(context.Background(), paths.TranscriptDB())
	if err != nil {
		t.Fatalf("transcript: %v", err)
	}
	loader := &backendtest.Loader{New: func(string) *backendtest.Model {
		return &backendtest.Model{Script: backendtest.Tokens(reply)}
	}}
	mgr := manager.NewWithConfig(manager.ManagerConfig{
		Loader:        loader,
		Directory:     reg,
		Session:       session.Config{Capacity: 256, BatchSize: 16, Threads: 1, MaxTokens: 32},
		Settings:      store.Section("chat"),
		Transcript:    tr,
		MaxQueueDepth: 2,
		MaxWait:       time.Second,
	})
	dl := download.New(paths.Models, download.OnComplete(func(string) { _, _ = mgr.RefreshModels() }))
	srv := httptest.NewServer(httpapi.NewMux(mgr, dl))
	t.Cleanup(func() {
		srv.Close()
		dl.Wait()
		_ = mgr.Close(context.Background())
		_ = tr.Close()
	})
	return &stack{paths: paths, loader: loader, mgr: mgr, srv: srv}
}

func httpGet(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp, b
}

func httpSend(t *testing.T, method, url, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp, b
}

func decode(t *testing.T, b []byte, v any) {
	t.Helper()
	if err := json.Unmarshal(b, v); err != nil {
		t.Fatalf("decode %q: %v", b, err)
	}
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
