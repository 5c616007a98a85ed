package config

import (
	"fmt"
	"strings"
)

// Defaults applied when the corresponding Config fields are unset.
const (
	DefaultAddr           = ":8080"
	DefaultLogLevel       = "info"
	DefaultMaxQueueDepth  = 8
	DefaultMaxWaitSeconds = 30
)

// Defaults fills unset top-level fields. Session fields stay zero so the
// engine can derive them from the loaded model.
func Defaults(cfg Config) Config {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.MaxQueueDepth <= 0 {
		cfg.MaxQueueDepth = DefaultMaxQueueDepth
	}
	if cfg.MaxWaitSeconds <= 0 {
		cfg.MaxWaitSeconds = DefaultMaxWaitSeconds
	}
	return cfg
}

// Validate rejects values no component could work with.
func (c Config) Validate() error {
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error", "trace", "disabled":
	default:
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	s := c.Session
	if s.ContextSize < 0 || s.BatchSize < 0 || s.Threads < 0 || s.MaxTokens < 0 || s.MinKeep < -1 {
		return fmt.Errorf("session sizes must not be negative")
	}
	if s.ContextSize > 0 && s.MaxTokens >= s.ContextSize {
		return fmt.Errorf("max_tokens %d must be below context_size %d", s.MaxTokens, s.ContextSize)
	}
	if s.KeepRatio < 0 || s.KeepRatio > 1 {
		return fmt.Errorf("keep_ratio must be in (0,1], got %g", s.KeepRatio)
	}
	if s.TopP < 0 || s.TopP > 1 {
		return fmt.Errorf("top_p must be in (0,1], got %g", s.TopP)
	}
	if s.Temperature < 0 {
		return fmt.Errorf("temperature must not be negative")
	}
	if s.PromptFormat != "" && strings.Count(s.PromptFormat, "{prompt}") != 1 {
		return fmt.Errorf("prompt_format must contain {prompt} exactly once")
	}
	return nil
}
