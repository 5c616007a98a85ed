package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for chatd.
// Zero values mean "unspecified" and are replaced by Defaults.
type Config struct {
	Addr         string   `json:"addr" yaml:"addr" toml:"addr" env:"CHATD_ADDR" env-description:"HTTP listen address"`
	DataDir      string   `json:"data_dir" yaml:"data_dir" toml:"data_dir" env:"CHATD_DATA_DIR" env-description:"Root for settings, transcript and models (default: per-user dirs)"`
	ModelsDir    string   `json:"models_dir" yaml:"models_dir" toml:"models_dir" env:"CHATD_MODELS_DIR" env-description:"Directory scanned for *.gguf models"`
	DefaultModel string   `json:"default_model" yaml:"default_model" toml:"default_model" env:"CHATD_DEFAULT_MODEL" env-description:"Model file loaded at startup"`
	LibPath      string   `json:"lib_path" yaml:"lib_path" toml:"lib_path" env:"CHATD_LIB" env-description:"Directory holding the llama.cpp shared libraries"`
	LogLevel     string   `json:"log_level" yaml:"log_level" toml:"log_level" env:"CHATD_LOG_LEVEL" env-description:"debug, info, warn or error"`
	CORSOrigins  []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins" env:"CHATD_CORS_ORIGINS" env-separator:"," env-description:"Allowed CORS origins"`

	MaxQueueDepth  int `json:"max_queue_depth" yaml:"max_queue_depth" toml:"max_queue_depth" env:"CHATD_MAX_QUEUE_DEPTH" env-description:"Queued generations before 429"`
	MaxWaitSeconds int `json:"max_wait_seconds" yaml:"max_wait_seconds" toml:"max_wait_seconds" env:"CHATD_MAX_WAIT_SECONDS" env-description:"Seconds a request waits for admission"`

	Session Session `json:"session" yaml:"session" toml:"session"`
}

// Session holds the session engine tunables. Zero fields let the engine
// derive its own defaults.
type Session struct {
	ContextSize  int     `json:"context_size" yaml:"context_size" toml:"context_size" env:"CHATD_CONTEXT_SIZE" env-description:"Context capacity in tokens (0: model's trained length)"`
	BatchSize    int     `json:"batch_size" yaml:"batch_size" toml:"batch_size" env:"CHATD_BATCH_SIZE"`
	Threads      int     `json:"threads" yaml:"threads" toml:"threads" env:"CHATD_THREADS"`
	MaxTokens    int     `json:"max_tokens" yaml:"max_tokens" toml:"max_tokens" env:"CHATD_MAX_TOKENS"`
	KeepRatio    float64 `json:"keep_ratio" yaml:"keep_ratio" toml:"keep_ratio" env:"CHATD_KEEP_RATIO"`
	MinKeep      int     `json:"min_keep" yaml:"min_keep" toml:"min_keep" env:"CHATD_MIN_KEEP" env-description:"Eviction floor in tokens (0: default, -1: none)"`
	TopK         int     `json:"top_k" yaml:"top_k" toml:"top_k" env:"CHATD_TOP_K"`
	TopP         float64 `json:"top_p" yaml:"top_p" toml:"top_p" env:"CHATD_TOP_P"`
	Temperature  float64 `json:"temperature" yaml:"temperature" toml:"temperature" env:"CHATD_TEMPERATURE"`
	Seed         uint32  `json:"seed" yaml:"seed" toml:"seed" env:"CHATD_SEED"`
	PromptFormat string  `json:"prompt_format" yaml:"prompt_format" toml:"prompt_format" env:"CHATD_PROMPT_FORMAT"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// ApplyEnv overlays CHATD_* environment variables onto cfg. Variables that
// are not set leave the field alone.
func ApplyEnv(cfg *Config) error {
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return fmt.Errorf("read env: %w", err)
	}
	return nil
}

// EnvHelp describes the supported environment variables.
func EnvHelp() string {
	header := "Environment variables:"
	help, err := cleanenv.GetDescription(&Config{}, &header)
	if err != nil {
		return ""
	}
	return help
}

// Resolve loads path (when non-empty), applies the environment and fills
// defaults, then validates the result.
func Resolve(path string) (Config, error) {
	var cfg Config
	if path != "" {
		var err error
		if cfg, err = Load(path); err != nil {
			return cfg, fmt.Errorf("load %s: %w", path, err)
		}
	}
	if err := ApplyEnv(&cfg); err != nil {
		return cfg, err
	}
	cfg = Defaults(cfg)
	return cfg, cfg.Validate()
}
