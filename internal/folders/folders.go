// Package folders resolves the on-disk layout used by chatd: an app data
// directory for settings, the transcript database and the native library,
// and a documents directory holding downloaded models.
package folders

import (
	"fmt"
	"os"
	"path/filepath"
)

// AppName names the per-user directories.
const AppName = "chatd"

// Paths is the resolved layout. It is a plain value handed to whoever needs
// it; nothing in the process holds it globally.
type Paths struct {
	AppData   string
	Bin       string
	Documents string
	Models    string
	Cache     string
}

// Resolve builds the per-user layout for the current OS. AppData follows
// os.UserConfigDir (XDG_CONFIG_HOME on Linux), Documents honors
// XDG_DOCUMENTS_DIR and falls back to ~/Documents.
func Resolve() (Paths, error) {
	cfg, err := os.UserConfigDir()
	if err != nil {
		return Paths{}, fmt.Errorf("config dir: %w", err)
	}
	docs, err := documentsDir()
	if err != nil {
		return Paths{}, err
	}
	cache, err := os.UserCacheDir()
	if err != nil {
		cache = filepath.Join(cfg, AppName, "cache")
	} else {
		cache = filepath.Join(cache, AppName)
	}
	p := Paths{
		AppData:   filepath.Join(cfg, AppName),
		Documents: filepath.Join(docs, AppName),
		Cache:     cache,
	}
	p.Bin = filepath.Join(p.AppData, "bin")
	p.Models = filepath.Join(p.Documents, "models")
	return p, nil
}

// UnderRoot places the whole layout below a single directory.
func UnderRoot(root string) Paths {
	return Paths{
		AppData:   filepath.Join(root, "data"),
		Bin:       filepath.Join(root, "data", "bin"),
		Documents: filepath.Join(root, "documents"),
		Models:    filepath.Join(root, "documents", "models"),
		Cache:     filepath.Join(root, "cache"),
	}
}

func documentsDir() (string, error) {
	if v := os.Getenv("XDG_DOCUMENTS_DIR"); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	return filepath.Join(home, "Documents"), nil
}

// Ensure creates every directory of the layout.
func (p Paths) Ensure() error {
	for _, d := range []string{p.AppData, p.Bin, p.Documents, p.Models, p.Cache} {
		if d == "" {
			continue
		}
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", d, err)
		}
	}
	return nil
}

// SettingsFile is where the settings store persists.
func (p Paths) SettingsFile() string { return filepath.Join(p.AppData, "settings.toml") }

// TranscriptDB is the transcript database path.
func (p Paths) TranscriptDB() string { return filepath.Join(p.AppData, "transcript.db") }

// HistoryFile keeps the interactive prompt history.
func (p Paths) HistoryFile() string { return filepath.Join(p.AppData, "chat_history") }
