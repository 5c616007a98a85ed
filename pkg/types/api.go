package types

// GenerateRequest is the payload of POST /generate.
type GenerateRequest struct {
	// Optional model file. When it differs from the loaded model the
	// session is switched first, which drops the conversation.
	// example: tinyllama-1.1b-chat.Q4_K_M.gguf
	Model string `json:"model,omitempty" example:"tinyllama-1.1b-chat.Q4_K_M.gguf"`
	// User text for this turn.
	// example: Write a haiku about the ocean.
	Prompt string `json:"prompt" example:"Write a haiku about the ocean."`
}

// TokenLine is one streamed NDJSON fragment.
type TokenLine struct {
	Token string `json:"token"`
}

// DoneLine is the final NDJSON line of a generation.
type DoneLine struct {
	Done            bool    `json:"done"`
	Content         string  `json:"content"`
	StopReason      string  `json:"stop_reason"`
	PromptTokens    int     `json:"prompt_tokens"`
	GeneratedTokens int     `json:"generated_tokens"`
	Evicted         int     `json:"evicted,omitempty"`
	DurationMS      int64   `json:"duration_ms"`
	TokensPerSecond float64 `json:"tokens_per_second"`
}

// ModelsResponse wraps the list of models returned by GET /models.
type ModelsResponse struct {
	Models []Model `json:"models"`
}

// SwitchRequest is the payload of POST /switch.
type SwitchRequest struct {
	// example: tinyllama-1.1b-chat.Q4_K_M.gguf
	Model string `json:"model" example:"tinyllama-1.1b-chat.Q4_K_M.gguf"`
}

// OpResponse carries the id of a background operation.
type OpResponse struct {
	// example: 5f0c6a3e-8d1e-4a57-9d0b-3b1f9f7f2a11
	OpID string `json:"op_id" example:"5f0c6a3e-8d1e-4a57-9d0b-3b1f9f7f2a11"`
}

// DownloadRequest is the payload of POST /download.
type DownloadRequest struct {
	// example: https://huggingface.co/org/repo/resolve/main/model.gguf
	URL string `json:"url" example:"https://huggingface.co/org/repo/resolve/main/model.gguf"`
	// Optional target file name; derived from the URL when empty.
	Name string `json:"name,omitempty"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// example: 400
	Code int `json:"code" example:"400"`
}

// TranscriptEntry is one stored message.
type TranscriptEntry struct {
	Role       string `json:"role"`
	Content    string `json:"content"`
	CreatedAt  int64  `json:"created_at_unix_ms"`
	Model      string `json:"model,omitempty"`
	Tokens     int    `json:"tokens,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
	StopReason string `json:"stop_reason,omitempty"`
}

// TranscriptResponse is returned by GET /transcript.
type TranscriptResponse struct {
	Conversation string            `json:"conversation"`
	Messages     []TranscriptEntry `json:"messages"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Lifecycle state: empty, loading, ready, error.
	// example: ready
	State string `json:"state" example:"ready"`
	// Loaded model file, if any.
	Model string `json:"model,omitempty"`
	// Last error observed by the manager (e.g. a failed switch).
	LastError string `json:"last_error,omitempty"`
	// Tokens resident in the context.
	// example: 412
	ContextUsed int `json:"context_used" example:"412"`
	// Context capacity in tokens.
	// example: 2048
	ContextCapacity int `json:"context_capacity" example:"2048"`
	// Whether prompts go through the model's chat template.
	TemplateActive bool `json:"template_active"`
	// Detected turn-boundary marker.
	BoundaryMarker string `json:"boundary_marker,omitempty"`
	// Requests waiting for admission.
	QueueLen int `json:"queue_len"`
	// Generations in progress (0 or 1).
	Inflight int `json:"inflight"`
	// Maximum queued requests before backpressure triggers.
	MaxQueueDepth int `json:"max_queue_depth"`
	// Current conversation id.
	Conversation string `json:"conversation"`
	// Uptime of the server in seconds.
	UptimeSeconds int64 `json:"uptime_seconds"`
	// Server time in unix seconds.
	ServerTimeUnix int64 `json:"server_time_unix"`
	// Total number of model loads.
	LoadsTotal uint64 `json:"loads_total"`
}
