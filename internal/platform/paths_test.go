package platform

import (
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"testing"
)

func TestPathsForPerOS(t *testing.T) {
	cases := []struct {
		name       string
		goos       string
		env        map[string]string
		configHome string
		dataHome   string
		wantConfig string
		wantData   string
	}{
		{
			name:       "linux xdg overrides",
			goos:       "linux",
			env:        map[string]string{"XDG_CONFIG_HOME": "/xdg/config", "XDG_DATA_HOME": "/xdg/data"},
			configHome: "/fallback/config",
			dataHome:   "/fallback/data",
			wantConfig: "/xdg/config",
			wantData:   "/xdg/data",
		},
		{
			name:       "linux without xdg",
			goos:       "linux",
			env:        map[string]string{},
			configHome: "/home/me/.config",
			dataHome:   "/home/me/.local/share",
			wantConfig: "/home/me/.config",
			wantData:   "/home/me/.local/share",
		},
		{
			name:       "windows appdata",
			goos:       "windows",
			env:        map[string]string{"APPDATA": `C:\Users\me\AppData\Roaming`, "LOCALAPPDATA": `C:\Users\me\AppData\Local`},
			configHome: `C:\fallback\config`,
			dataHome:   `C:\fallback\data`,
			wantConfig: `C:\Users\me\AppData\Roaming`,
			wantData:   `C:\Users\me\AppData\Local`,
		},
		{
			name:       "darwin ignores xdg",
			goos:       "darwin",
			env:        map[string]string{"XDG_CONFIG_HOME": "/ignored", "XDG_DATA_HOME": "/ignored"},
			configHome: "/Users/me/Library/Application Support",
			dataHome:   "/Users/me/Library/Application Support",
			wantConfig: "/Users/me/Library/Application Support",
			wantData:   "/Users/me/Library/Application Support",
		},
		{
			name:       "unknown os",
			goos:       "freebsd",
			env:        map[string]string{"APPDATA": "/ignored"},
			configHome: "/cfg",
			dataHome:   "/data",
			wantConfig: "/cfg",
			wantData:   "/data",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := PathsFor(tc.goos, tc.env, tc.configHome, tc.dataHome, "taskdeck")
			if err != nil {
				t.Fatalf("PathsFor() error = %v", err)
			}
			want := Paths{
				ConfigPath:  filepath.Join(tc.wantConfig, "taskdeck", "config.toml"),
				SessionPath: filepath.Join(tc.wantConfig, "taskdeck", "session.json"),
				DataDir:     filepath.Join(tc.wantData, "taskdeck"),
				DBPath:      filepath.Join(tc.wantData, "taskdeck", "taskdeck.db"),
				LogDir:      filepath.Join(tc.wantData, "taskdeck", "logs"),
			}
			if p != want {
				t.Fatalf("PathsFor() = %#v, want %#v", p, want)
			}
		})
	}
}

func TestPathsForRejectsBlankInputs(t *testing.T) {
	if _, err := PathsFor("darwin", nil, "", "/tmp/data", "taskdeck"); err == nil {
		t.Fatal("expected error for empty config home")
	}
	if _, err := PathsFor("linux", nil, "/cfg", "/data", "  "); err == nil {
		t.Fatal("expected error for blank app name")
	}
}

func TestEntriesOrder(t *testing.T) {
	p, err := PathsFor("linux", nil, "/cfg", "/data", "taskdeck")
	if err != nil {
		t.Fatalf("PathsFor() error = %v", err)
	}
	var labels []string
	for _, e := range p.Entries() {
		if e.Path == "" {
			t.Fatalf("entry %q has no path", e.Label)
		}
		labels = append(labels, e.Label)
	}
	if want := []string{"config", "data_dir", "db", "logs", "session"}; !slices.Equal(labels, want) {
		t.Fatalf("labels = %v, want %v", labels, want)
	}
}

func TestEnsureSessionDir(t *testing.T) {
	root := t.TempDir()
	p, err := PathsFor("linux", map[string]string{"XDG_CONFIG_HOME": root}, "/unused", "/unused", "taskdeck")
	if err != nil {
		t.Fatalf("PathsFor() error = %v", err)
	}
	if err := p.EnsureSessionDir(); err != nil {
		t.Fatalf("EnsureSessionDir() error = %v", err)
	}
	info, err := os.Stat(filepath.Dir(p.SessionPath))
	if err != nil || !info.IsDir() {
		t.Fatalf("expected session dir, stat err = %v", err)
	}
	if runtime.GOOS != "windows" && info.Mode().Perm() != 0o700 {
		t.Fatalf("session dir mode = %v, want 0700", info.Mode().Perm())
	}
	if err := (Paths{}).EnsureSessionDir(); err == nil {
		t.Fatal("expected error for unresolved session path")
	}
}

func TestDefaultPathsWithOptions(t *testing.T) {
	p, err := DefaultPaths()
	if err != nil {
		t.Fatalf("DefaultPaths() error = %v", err)
	}
	if p.ConfigPath == "" || p.DBPath == "" || p.LogDir == "" || p.SessionPath == "" {
		t.Fatalf("expected every path resolved, got %#v", p)
	}

	dev, err := DefaultPathsWithOptions(Options{AppName: "taskdeck", DevMode: true})
	if err != nil {
		t.Fatalf("DefaultPathsWithOptions(dev) error = %v", err)
	}
	if filepath.Base(filepath.Dir(dev.ConfigPath)) != "taskdeck-dev" || filepath.Base(dev.DBPath) != "taskdeck-dev.db" {
		t.Fatalf("expected dev suffix, got %#v", dev)
	}
}

func TestDefaultPathsWithOptionsReadsGetenv(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("xdg overrides apply on linux only")
	}
	env := map[string]string{"XDG_CONFIG_HOME": "/env/config", "XDG_DATA_HOME": "/env/data"}
	p, err := DefaultPathsWithOptions(Options{Getenv: func(k string) string { return env[k] }})
	if err != nil {
		t.Fatalf("DefaultPathsWithOptions() error = %v", err)
	}
	if want := filepath.Join("/env/config", "taskdeck", "config.toml"); p.ConfigPath != want {
		t.Fatalf("ConfigPath = %q, want %q", p.ConfigPath, want)
	}
	if want := filepath.Join("/env/data", "taskdeck", "logs"); p.LogDir != want {
		t.Fatalf("LogDir = %q, want %q", p.LogDir, want)
	}
}
