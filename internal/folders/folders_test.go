package folders

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestUnderRootEnsure(t *testing.T) {
	root := t.TempDir()
	p := UnderRoot(root)
	if err := p.Ensure(); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	for _, d := range []string{p.AppData, p.Bin, p.Documents, p.Models, p.Cache} {
		st, err := os.Stat(d)
		if err != nil || !st.IsDir() {
			t.Fatalf("%s not created: %v", d, err)
		}
	}
	if err := p.Ensure(); err != nil {
		t.Fatalf("second ensure: %v", err)
	}
	if filepath.Dir(p.SettingsFile()) != p.AppData || filepath.Dir(p.TranscriptDB()) != p.AppData {
		t.Fatalf("data files must live in app data")
	}
}

func TestResolveHonorsXDG(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("XDG variables only apply on linux")
	}
	root := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(root, "cfg"))
	t.Setenv("XDG_DOCUMENTS_DIR", filepath.Join(root, "docs"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(root, "cache"))
	p, err := Resolve()
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if p.AppData != filepath.Join(root, "cfg", AppName) {
		t.Fatalf("app data %q", p.AppData)
	}
	if p.Models != filepath.Join(root, "docs", AppName, "models") {
		t.Fatalf("models %q", p.Models)
	}
	if p.Cache != filepath.Join(root, "cache", AppName) {
		t.Fatalf("cache %q", p.Cache)
	}
}
