package e2e

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"chatcore/internal/download"
	"chatcore/pkg/types"
)

func TestModelsFromDirectory(t *testing.T) {
	root := t.TempDir()
	createModels(t, filepath.Join(root, "documents", "models"), "b.Q4_K_M.gguf", "a.gguf", "notes.txt")
	s := newStack(t, root, " ok")

	resp, body := httpGet(t, s.srv.URL+"/models")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var mr types.ModelsResponse
	decode(t, body, &mr)
	if len(mr.Models) != 2 || mr.Models[0].ID != "a.gguf" || mr.Models[1].ID != "b.Q4_K_M.gguf" {
		t.Fatalf("models: %+v", mr.Models)
	}
	if mr.Models[1].Quant != "Q4_K_M" {
		t.Fatalf("quant not parsed: %+v", mr.Models[1])
	}
}

func TestSwitchGenerateAndTranscript(t *testing.T) {
	root := t.TempDir()
	createModels(t, filepath.Join(root, "documents", "models"), "a.gguf")
	s := newStack(t, root, " ok")

	if resp, _ := httpGet(t, s.srv.URL+"/readyz"); resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("readyz before load: %d", resp.StatusCode)
	}
	resp, body := httpSend(t, http.MethodPost, s.srv.URL+"/switch", `{"model":"a.gguf"}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("switch: %d %s", resp.StatusCode, body)
	}
	eventually(t, "ready", func() bool {
		var st types.StatusResponse
		_, b := httpGet(t, s.srv.URL+"/status")
		decode(t, b, &st)
		return st.State == "ready" && st.Model == "a.gguf"
	})

	resp, body = httpSend(t, http.MethodPost, s.srv.URL+"/generate", `{"prompt":"hi"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("generate: %d %s", resp.StatusCode, body)
	}
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	var done types.DoneLine
	decode(t, []byte(lines[len(lines)-1]), &done)
	if !done.Done || done.Content != "ok" {
		t.Fatalf("done line: %+v", done)
	}

	_, body = httpGet(t, s.srv.URL+"/transcript")
	var tr types.TranscriptResponse
	decode(t, body, &tr)
	if len(tr.Messages) != 2 || tr.Messages[0].Role != "user" || tr.Messages[1].Content != "ok" {
		t.Fatalf("transcript: %+v", tr)
	}

	if resp, _ := httpSend(t, http.MethodPost, s.srv.URL+"/clear", ``); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("clear: %d", resp.StatusCode)
	}
	_, body = httpGet(t, s.srv.URL+"/transcript")
	tr = types.TranscriptResponse{}
	decode(t, body, &tr)
	if len(tr.Messages) != 0 {
		t.Fatalf("transcript after clear: %+v", tr.Messages)
	}
}

func TestSettingsAndLastModelSurviveRestart(t *testing.T) {
	root := t.TempDir()
	createModels(t, filepath.Join(root, "documents", "models"), "a.gguf")
	s := newStack(t, root, " ok")

	if resp, body := httpSend(t, http.MethodPost, s.srv.URL+"/generate", `{"model":"a.gguf","prompt":"hi"}`); resp.StatusCode != http.StatusOK {
		t.Fatalf("generate: %d %s", resp.StatusCode, body)
	}
	if resp, body := httpSend(t, http.MethodPut, s.srv.URL+"/settings", `{"max_tokens":12,"temperature":0.25}`); resp.StatusCode != http.StatusOK {
		t.Fatalf("settings: %d %s", resp.StatusCode, body)
	}
	s.srv.Close()

	again := newStack(t, root, " ok")
	if got := again.mgr.LastModel(); got != "a.gguf" {
		t.Fatalf("last model = %q", got)
	}
	_, body := httpGet(t, again.srv.URL+"/settings")
	var st types.Settings
	decode(t, body, &st)
	if st.MaxTokens != 12 || st.Temperature != 0.25 {
		t.Fatalf("settings after restart: %+v", st)
	}
}

func TestDownloadAppearsInModels(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("GGUF-model-bytes"))
	}))
	defer upstream.Close()

	root := t.TempDir()
	s := newStack(t, root, " ok")

	resp, body := httpSend(t, http.MethodPost, s.srv.URL+"/download", `{"url":"`+upstream.URL+`/files/c.gguf"}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("download: %d %s", resp.StatusCode, body)
	}
	var op types.OpResponse
	decode(t, body, &op)

	eventually(t, "download done", func() bool {
		var p download.Progress
		_, b := httpGet(t, s.srv.URL+"/download/"+op.OpID)
		decode(t, b, &p)
		return p.Done
	})
	if _, err := os.Stat(filepath.Join(s.paths.Models, "c.gguf")); err != nil {
		t.Fatalf("model file missing: %v", err)
	}
	eventually(t, "model listed", func() bool {
		var mr types.ModelsResponse
		_, b := httpGet(t, s.srv.URL+"/models")
		decode(t, b, &mr)
		return len(mr.Models) == 1 && mr.Models[0].ID == "c.gguf"
	})
}
