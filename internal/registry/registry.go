// Package registry is the model directory: it lists *.gguf files in one
// configured directory, resolves names to paths and watches for changes.
package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"chatcore/internal/common/fsutil"
	"chatcore/pkg/types"
)

// Ext is the model file extension, matched case-insensitively.
const Ext = ".gguf"

var quantPattern = regexp.MustCompile(`(?i)\b(I?Q[0-9]_[A-Z0-9_]*[A-Z0-9]|I?Q[0-9]+|BF16|F16|F32)\b`)

type notFoundError struct{ name string }

func (e notFoundError) Error() string { return "model not found: " + e.name }

// IsNotFound reports whether err means the named model file is missing.
func IsNotFound(err error) bool {
	var nf notFoundError
	return errors.As(err, &nf)
}

// Registry lists models in Dir.
type Registry struct {
	dir string
}

// New expands '~' and makes dir absolute. The directory does not need to
// exist yet; List reports an empty registry until it does.
func New(dir string) (*Registry, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	return &Registry{dir: abs}, nil
}

// Dir returns the absolute directory being listed.
func (r *Registry) Dir() string { return r.dir }

// List scans the directory. ID is the full filename; Path is absolute.
func (r *Registry) List() ([]types.Model, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var models []types.Model
	for _, e := range entries {
		if e.IsDir() || !IsModelFile(e.Name()) {
			continue
		}
		m := describe(r.dir, e.Name())
		if info, err := e.Info(); err == nil {
			m.SizeBytes = info.Size()
		}
		models = append(models, m)
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models, nil
}

// Resolve maps a file name to its absolute path. Names containing path
// separators are rejected so callers cannot escape the directory.
func (r *Registry) Resolve(name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	p := filepath.Join(r.dir, name)
	st, err := os.Stat(p)
	if err != nil || st.IsDir() {
		return "", notFoundError{name: name}
	}
	return p, nil
}

// Exists reports whether name resolves to a model file.
func (r *Registry) Exists(name string) bool {
	_, err := r.Resolve(name)
	return err == nil
}

// ValidateName rejects empty names, traversal and non-model extensions.
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." {
		return fmt.Errorf("invalid model name %q", name)
	}
	if strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return fmt.Errorf("model name %q must not contain path separators", name)
	}
	if !IsModelFile(name) {
		return fmt.Errorf("model name %q must end in %s", name, Ext)
	}
	return nil
}

// IsModelFile reports whether name has the model extension.
func IsModelFile(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), Ext)
}

func describe(dir, name string) types.Model {
	display := name[:len(name)-len(Ext)]
	return types.Model{
		ID:    name,
		Name:  display,
		Path:  filepath.Join(dir, name),
		Quant: strings.ToUpper(quantPattern.FindString(display)),
	}
}

// LoadDir lists dir in one call.
func LoadDir(dir string) ([]types.Model, error) {
	r, err := New(dir)
	if err != nil {
		return nil, err
	}
	return r.List()
}
