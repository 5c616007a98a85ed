// Package settings is a small typed key/value store persisted as TOML.
// Values live under named sections; every Set rewrites the file atomically.
package settings

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"sync"

	toml "github.com/pelletier/go-toml/v2"

	"chatcore/internal/common/fsutil"
)

// Keys used by the chat session.
const (
	KeyMaxTokens       = "maxTokens"
	KeyTemperature     = "temperature"
	KeyUsePromptFormat = "usePromptFormat"
	KeyPromptFormat    = "promptFormat"
	KeyTopK            = "topK"
	KeyTopP            = "topP"
	KeyLastModel       = "lastModel"
)

// Store holds one file's worth of sections.
type Store struct {
	mu   sync.RWMutex
	path string
	data map[string]map[string]any
}

// Open reads path if it exists; a missing file yields an empty store.
// An empty path keeps the store in memory only.
func Open(path string) (*Store, error) {
	s := &Store{path: path, data: map[string]map[string]any{}}
	if path == "" {
		return s, nil
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	if err := toml.Unmarshal(b, &s.data); err != nil {
		return nil, fmt.Errorf("parse settings %s: %w", path, err)
	}
	return s, nil
}

// Path returns the backing file, empty for an in-memory store.
func (s *Store) Path() string { return s.path }

// Section returns a view scoped to one section name.
func (s *Store) Section(name string) *Section { return &Section{store: s, name: name} }

func (s *Store) get(section, key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[section][key]
	return v, ok
}

func (s *Store) set(section, key string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sec := s.data[section]
	if sec == nil {
		sec = map[string]any{}
		s.data[section] = sec
	}
	prev, had := sec[key]
	sec[key] = v
	if err := s.saveLocked(); err != nil {
		if had {
			sec[key] = prev
		} else {
			delete(sec, key)
		}
		return err
	}
	return nil
}

func (s *Store) saveLocked() error {
	if s.path == "" {
		return nil
	}
	b, err := toml.Marshal(s.data)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := fsutil.WriteFileAtomic(s.path, b, 0o600); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// Section reads and writes keys of one section.
type Section struct {
	store *Store
	name  string
}

// Keys lists the keys present, sorted.
func (c *Section) Keys() []string {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	keys := make([]string, 0, len(c.store.data[c.name]))
	for k := range c.store.data[c.name] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Has reports whether key has a stored value.
func (c *Section) Has(key string) bool {
	_, ok := c.store.get(c.name, key)
	return ok
}

func (c *Section) SetInt(key string, v int) error       { return c.store.set(c.name, key, int64(v)) }
func (c *Section) SetFloat(key string, v float64) error { return c.store.set(c.name, key, v) }
func (c *Section) SetBool(key string, v bool) error     { return c.store.set(c.name, key, v) }
func (c *Section) SetString(key string, v string) error { return c.store.set(c.name, key, v) }

// Int returns the value for key, or def when absent or not numeric.
func (c *Section) Int(key string, def int) int {
	v, ok := c.store.get(c.name, key)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int64:
		return int(n)
	case float64:
		if n == math.Trunc(n) {
			return int(n)
		}
	case string:
		if i, err := strconv.Atoi(n); err == nil {
			return i
		}
	}
	return def
}

// Float returns the value for key, or def when absent or not numeric.
func (c *Section) Float(key string, def float64) float64 {
	v, ok := c.store.get(c.name, key)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case string:
		if f, err := strconv.ParseFloat(n, 64); err == nil {
			return f
		}
	}
	return def
}

// Bool returns the value for key, or def when absent. "1" and "0" strings
// are accepted for files written by hand.
func (c *Section) Bool(key string, def bool) bool {
	v, ok := c.store.get(c.name, key)
	if !ok {
		return def
	}
	switch b := v.(type) {
	case bool:
		return b
	case int64:
		return b != 0
	case string:
		if p, err := strconv.ParseBool(b); err == nil {
			return p
		}
	}
	return def
}

// String returns the value for key, or def when absent.
func (c *Section) String(key string, def string) string {
	v, ok := c.store.get(c.name, key)
	if !ok {
		return def
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
