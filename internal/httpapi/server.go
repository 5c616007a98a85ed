package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chatcore/internal/download"
	"chatcore/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	ListModels() []types.Model
	Status() types.StatusResponse
	Ready() bool
	Infer(ctx context.Context, req types.GenerateRequest, w io.Writer, flush func()) error
	Clear(ctx context.Context) error
	SwitchAsync(modelID string) (string, error)
	Settings() types.Settings
	UpdateSettings(ctx context.Context, u types.SettingsUpdate) (types.Settings, error)
	Transcript(ctx context.Context, limit int) (types.TranscriptResponse, error)
}

// Downloads starts and tracks model downloads. Optional.
type Downloads interface {
	Start(ctx context.Context, rawURL, name string) (string, error)
	Get(id string) (download.Progress, bool)
}

const defaultTranscriptLimit = 100

// NewMux builds the router. dl may be nil, which disables /download.
func NewMux(svc Service, dl Downloads) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
			ExposedHeaders: []string{"X-Request-Id"},
			MaxAge:         300,
		}))
	}
	r.Use(MetricsMiddleware)
	r.Use(AccessLog)
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	h := &handlers{svc: svc, dl: dl}
	// NDJSON must not be buffered by the compressor.
	r.Post("/generate", h.generate)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Compress(5))
		r.Get("/models", h.models)
		r.Get("/status", h.status)
		r.Post("/clear", h.clear)
		r.Post("/switch", h.switchModel)
		r.Post("/download", h.startDownload)
		r.Get("/download/{id}", h.downloadProgress)
		r.Get("/settings", h.settings)
		r.Put("/settings", h.updateSettings)
		r.Get("/transcript", h.transcript)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(svc.Status().State))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	MountSwagger(r)
	return r
}

// decodeJSON enforces the content type and body limit. It writes the error
// response itself and reports whether decoding succeeded.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}
