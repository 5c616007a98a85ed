package httpapi

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"chatcore/pkg/types"
)

type handlers struct {
	svc Service
	dl  Downloads
}

func (h *handlers) models(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.ModelsResponse{Models: h.svc.ListModels()})
}

func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Status())
}

func (h *handlers) generate(w http.ResponseWriter, r *http.Request) {
	var req types.GenerateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeJSONError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	var flush func()
	if f, ok := w.(http.Flusher); ok {
		flush = f.Flush
	}
	// Headers go out with the first line, so errors that happen before any
	// output can still be mapped to a status code.
	sw := &ndjsonWriter{w: w}
	var out io.Writer = sw
	lvl := requestLogLevel(r)
	if lvl >= LevelDebug {
		out = io.MultiWriter(sw, &loggingLineWriter{log: zlog})
	}
	if ev := requestLog(r, lvl, false); ev != nil {
		ev.Str("model", req.Model).Msg("generate start")
	}

	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	defer cancel()
	if generateTimeout > 0 {
		var tcancel context.CancelFunc
		ctx, tcancel = context.WithTimeout(ctx, generateTimeout)
		defer tcancel()
	}
	start := time.Now()
	err := h.svc.Infer(ctx, req, out, flush)
	status := http.StatusOK
	switch {
	case err == nil:
	case r.Context().Err() != nil || serverBaseCtx.Err() != nil:
		// Client went away or the server is shutting down.
		status = 499
	case sw.started:
		// Mid-stream failure: the status line is already sent.
		writeStreamError(sw, err)
		status = statusFor(err)
	default:
		status = writeError(w, err)
	}
	if ev := requestLog(r, lvl, status >= 500); ev != nil {
		if err != nil {
			ev = ev.Err(err)
		}
		ev.Int("status", status).Dur("dur", time.Since(start)).Msg("generate end")
	}
}

// ndjsonWriter sets the NDJSON content type on first write.
type ndjsonWriter struct {
	w       http.ResponseWriter
	started bool
}

func (n *ndjsonWriter) Write(p []byte) (int, error) {
	if !n.started {
		n.started = true
		n.w.Header().Set("Content-Type", "application/x-ndjson")
		n.w.WriteHeader(http.StatusOK)
	}
	return n.w.Write(p)
}

func writeStreamError(w io.Writer, err error) {
	b, _ := jsonLine(types.ErrorResponse{Error: err.Error(), Code: statusFor(err)})
	_, _ = w.Write(b)
}

func (h *handlers) clear(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Clear(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) switchModel(w http.ResponseWriter, r *http.Request) {
	var req types.SwitchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Model) == "" {
		writeJSONError(w, http.StatusBadRequest, "model is required")
		return
	}
	op, err := h.svc.SwitchAsync(req.Model)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, types.OpResponse{OpID: op})
}

func (h *handlers) startDownload(w http.ResponseWriter, r *http.Request) {
	if h.dl == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "downloads are disabled")
		return
	}
	var req types.DownloadRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	id, err := h.dl.Start(r.Context(), req.URL, req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, types.OpResponse{OpID: id})
}

func (h *handlers) downloadProgress(w http.ResponseWriter, r *http.Request) {
	if h.dl == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "downloads are disabled")
		return
	}
	p, ok := h.dl.Get(chi.URLParam(r, "id"))
	if !ok {
		writeJSONError(w, http.StatusNotFound, "unknown download")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handlers) settings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Settings())
}

func (h *handlers) updateSettings(w http.ResponseWriter, r *http.Request) {
	var u types.SettingsUpdate
	if !decodeJSON(w, r, &u) {
		return
	}
	s, err := h.svc.UpdateSettings(r.Context(), u)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *handlers) transcript(w http.ResponseWriter, r *http.Request) {
	limit := defaultTranscriptLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	resp, err := h.svc.Transcript(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
