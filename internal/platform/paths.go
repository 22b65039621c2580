// Package platform resolves per-OS config, data, log, and session locations.
package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

const defaultAppName = "taskdeck"

// Paths is every on-disk location taskdeck touches. Config and session live
// under the config home; the database and logs live under the data home.
type Paths struct {
	ConfigPath  string
	DataDir     string
	DBPath      string
	LogDir      string
	SessionPath string
}

// Entry is one labelled location, in the order `taskdeck paths` prints them.
type Entry struct {
	Label string
	Path  string
}

// Entries lists the resolved locations for display.
func (p Paths) Entries() []Entry {
	return []Entry{
		{Label: "config", Path: p.ConfigPath},
		{Label: "data_dir", Path: p.DataDir},
		{Label: "db", Path: p.DBPath},
		{Label: "logs", Path: p.LogDir},
		{Label: "session", Path: p.SessionPath},
	}
}

// EnsureSessionDir creates the session file's directory, readable by the owner only.
func (p Paths) EnsureSessionDir() error {
	if p.SessionPath == "" {
		return errors.New("session path is not resolved")
	}
	if err := os.MkdirAll(filepath.Dir(p.SessionPath), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	return nil
}

// Options tunes DefaultPathsWithOptions. Getenv defaults to os.Getenv.
type Options struct {
	AppName string
	DevMode bool
	Getenv  func(string) string
}

// homes is the pair of per-user base directories an app dir is placed under.
type homes struct {
	config string
	data   string
}

// overrideVars names the env vars that replace the config and data homes per OS.
// macOS and unlisted platforms keep the os package defaults.
var overrideVars = map[string][2]string{
	"linux":   {"XDG_CONFIG_HOME", "XDG_DATA_HOME"},
	"windows": {"APPDATA", "LOCALAPPDATA"},
}

// DefaultPaths resolves paths for the default app name.
func DefaultPaths() (Paths, error) {
	return DefaultPathsWithOptions(Options{AppName: defaultAppName})
}

// DefaultPathsWithOptions resolves paths for the running OS. Dev mode appends
// "-dev" to the app name so dev data never mixes with a real install.
func DefaultPathsWithOptions(opts Options) (Paths, error) {
	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	appName := strings.TrimSpace(opts.AppName)
	if appName == "" {
		appName = defaultAppName
	}
	if opts.DevMode {
		appName += "-dev"
	}

	base, err := osHomes(getenv)
	if err != nil {
		return Paths{}, err
	}
	env := map[string]string{}
	for _, vars := range overrideVars {
		for _, name := range vars {
			env[name] = getenv(name)
		}
	}
	return PathsFor(runtime.GOOS, env, base.config, base.data, appName)
}

// osHomes asks the os package for the config home and derives a data home from it.
func osHomes(getenv func(string) string) (homes, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return homes{}, fmt.Errorf("user config dir: %w", err)
	}
	h := homes{config: configDir, data: configDir}
	switch runtime.GOOS {
	case "linux":
		home, err := os.UserHomeDir()
		if err != nil {
			return homes{}, fmt.Errorf("user home dir: %w", err)
		}
		h.data = filepath.Join(home, ".local", "share")
	case "windows":
		if v := strings.TrimSpace(getenv("LOCALAPPDATA")); v != "" {
			h.data = v
		}
	}
	return h, nil
}

// PathsFor lays out every location for an explicit OS, environment, and pair
// of fallback homes. It touches nothing on disk.
func PathsFor(goos string, env map[string]string, userConfigDir, userDataDir, appName string) (Paths, error) {
	if userConfigDir == "" || userDataDir == "" {
		return Paths{}, errors.New("empty base dirs")
	}
	appName = strings.TrimSpace(appName)
	if appName == "" {
		return Paths{}, errors.New("empty app name")
	}

	h := homes{config: userConfigDir, data: userDataDir}
	if vars, ok := overrideVars[goos]; ok {
		if v := env[vars[0]]; v != "" {
			h.config = v
		}
		if v := env[vars[1]]; v != "" {
			h.data = v
		}
	}
	return h.layout(appName), nil
}

func (h homes) layout(appName string) Paths {
	configDir := filepath.Join(h.config, appName)
	dataDir := filepath.Join(h.data, appName)
	return Paths{
		ConfigPath:  filepath.Join(configDir, "config.toml"),
		SessionPath: filepath.Join(configDir, "session.json"),
		DataDir:     dataDir,
		DBPath:      filepath.Join(dataDir, appName+".db"),
		LogDir:      filepath.Join(dataDir, "logs"),
	}
}
