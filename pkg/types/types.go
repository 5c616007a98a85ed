package types

// Model represents a model file found in the models directory.
type Model struct {
	// File name, used as the stable identifier.
	// example: tinyllama-1.1b-chat.Q4_K_M.gguf
	ID string `json:"id" example:"tinyllama-1.1b-chat.Q4_K_M.gguf"`
	// File name without extension.
	// example: tinyllama-1.1b-chat.Q4_K_M
	Name string `json:"name" example:"tinyllama-1.1b-chat.Q4_K_M"`
	// Absolute path to the model file on disk.
	// example: /home/user/Documents/chatd/models/tinyllama-1.1b-chat.Q4_K_M.gguf
	Path string `json:"path" example:"/home/user/Documents/chatd/models/tinyllama-1.1b-chat.Q4_K_M.gguf"`
	// Quantization parsed from the file name, when recognizable.
	// example: Q4_K_M
	Quant string `json:"quant,omitempty" example:"Q4_K_M"`
	// File size in bytes.
	// example: 668788096
	SizeBytes int64 `json:"size_bytes" example:"668788096"`
}

// Settings are the user-tunable generation parameters.
type Settings struct {
	// example: 256
	MaxTokens int `json:"max_tokens" example:"256"`
	// example: 0.5
	Temperature float64 `json:"temperature" example:"0.5"`
	// example: 50
	TopK int `json:"top_k" example:"50"`
	// example: 0.9
	TopP float64 `json:"top_p" example:"0.9"`
	// Use the static prompt format when the model has no chat template.
	// example: true
	UsePromptFormat bool `json:"use_prompt_format" example:"true"`
	// Static format; must contain {prompt} exactly once.
	PromptFormat string `json:"prompt_format"`
}

// SettingsUpdate changes only the fields that are set.
type SettingsUpdate struct {
	MaxTokens       *int     `json:"max_tokens,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
	TopK            *int     `json:"top_k,omitempty"`
	TopP            *float64 `json:"top_p,omitempty"`
	UsePromptFormat *bool    `json:"use_prompt_format,omitempty"`
	PromptFormat    *string  `json:"prompt_format,omitempty"`
}
