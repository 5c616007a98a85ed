package session

import (
	"fmt"

	"chatcore/internal/backend"
)

// Defaults applied when the corresponding Config fields are unset.
const (
	defaultCapacity    = 2048
	defaultMaxTokens   = 256
	defaultTopK        = 50
	defaultTopP        = 0.9
	defaultTemperature = 0.5
	defaultKeepRatio   = 0.75
	defaultMinKeep     = 512

	// NoMinKeep as Config.MinKeep lets eviction remove every resident token.
	NoMinKeep = -1
)

// Sampling holds the sampler chain parameters. Zero fields take defaults.
type Sampling struct {
	TopK        int
	TopP        float32
	Temperature float32
	Seed        uint32
}

// WithDefaults fills unset fields with the default sampler parameters.
func (s Sampling) WithDefaults() Sampling {
	if s.TopK <= 0 {
		s.TopK = defaultTopK
	}
	if s.TopP <= 0 {
		s.TopP = defaultTopP
	}
	if s.Temperature <= 0 {
		s.Temperature = defaultTemperature
	}
	if s.Seed == 0 {
		s.Seed = backend.DefaultSeed
	}
	return s
}

func (s Sampling) params() backend.SamplerParams {
	return backend.SamplerParams{TopK: s.TopK, TopP: s.TopP, Temperature: s.Temperature, Seed: s.Seed}
}

// Config encapsulates the session tunables. Zero values mean "unspecified".
// Capacity, BatchSize, Threads, KeepRatio and MinKeep are fixed at
// construction; MaxTokens, Sampling and PromptFormat may change between
// turns through the Engine setters.
type Config struct {
	Capacity  int
	BatchSize int
	Threads   int
	MaxTokens int
	Sampling  Sampling
	// KeepRatio is the share of resident tokens kept by an eviction, in (0,1].
	KeepRatio float64
	// MinKeep is the floor eviction never goes below. Zero picks the
	// default floor; NoMinKeep disables it.
	MinKeep int
	// PromptFormat is the static "{prompt}" format used without a template.
	PromptFormat string
}

// DefaultThreads maps hardware concurrency to compute threads: a quarter
// of the cores, and a single thread on machines with four cores or fewer.
func DefaultThreads(cpus int) int {
	if cpus <= 4 {
		return 1
	}
	return cpus / 4
}

// defaultBatch picks a batch size from the thread count.
func defaultBatch(threads int) int {
	switch {
	case threads >= 16:
		return 64
	case threads >= 8:
		return 32
	default:
		return 16
	}
}

// resolveConfig fills unset fields. A nil cfg or a zero Capacity derives the
// capacity from the model's trained context and sets BatchSize to match.
func resolveConfig(cfg *Config, trainedCtx, cpus int) (Config, error) {
	var c Config
	if cfg != nil {
		c = *cfg
	}
	if c.Threads <= 0 {
		c.Threads = DefaultThreads(cpus)
	}
	if c.Capacity <= 0 {
		c.Capacity = trainedCtx
		if c.Capacity <= 0 {
			c.Capacity = defaultCapacity
		}
		if c.BatchSize <= 0 {
			c.BatchSize = c.Capacity
		}
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatch(c.Threads)
	}
	if c.BatchSize > c.Capacity {
		c.BatchSize = c.Capacity
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = min(defaultMaxTokens, c.Capacity/2)
	}
	if c.KeepRatio == 0 {
		c.KeepRatio = defaultKeepRatio
	}
	switch {
	case c.MinKeep == 0:
		c.MinKeep = min(defaultMinKeep, c.Capacity/4)
	case c.MinKeep < 0:
		c.MinKeep = 0
	}
	c.Sampling = c.Sampling.WithDefaults()
	return c, c.validate()
}

func (c Config) validate() error {
	if c.Capacity <= 0 {
		return fmt.Errorf("capacity must be > 0, got %d", c.Capacity)
	}
	if c.MaxTokens <= 0 || c.MaxTokens >= c.Capacity {
		return fmt.Errorf("max tokens must be in [1,%d), got %d", c.Capacity, c.MaxTokens)
	}
	if c.KeepRatio <= 0 || c.KeepRatio > 1 {
		return fmt.Errorf("keep ratio must be in (0,1], got %g", c.KeepRatio)
	}
	if c.MinKeep < 0 || c.MinKeep > c.Capacity {
		return fmt.Errorf("min keep must be in [0,%d], got %d", c.Capacity, c.MinKeep)
	}
	if c.PromptFormat != "" {
		if err := ValidateFormat(c.PromptFormat); err != nil {
			return err
		}
	}
	return nil
}
