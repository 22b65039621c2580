package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default("/tmp/taskdeck.db")
	if cfg.Database.Path != "/tmp/taskdeck.db" {
		t.Fatalf("unexpected db path %q", cfg.Database.Path)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if cfg.Query.PageSize != 5 {
		t.Fatalf("unexpected page size %d", cfg.Query.PageSize)
	}
	if cfg.PendingActionTTL() != 5*time.Minute {
		t.Fatalf("unexpected pending action ttl %s", cfg.PendingActionTTL())
	}
	if cfg.AccessTTL() != 15*time.Minute || cfg.RefreshTTL() != 168*time.Hour {
		t.Fatalf("unexpected token ttls %s/%s", cfg.AccessTTL(), cfg.RefreshTTL())
	}
	if cfg.LogLevel() != log.InfoLevel {
		t.Fatalf("unexpected log level %s", cfg.LogLevel())
	}
	if cfg.Logging.DevFile.Enabled {
		t.Fatal("expected dev file logging disabled by default")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	defaults := Default("/tmp/taskdeck.db")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"), defaults)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Path != defaults.Database.Path {
		t.Fatalf("expected default db path, got %q", cfg.Database.Path)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[database]
path = "/custom/taskdeck.db"

[logging]
level = "debug"

[logging.dev_file]
enabled = true
max_backups = 7

[query]
page_size = 20

[workflow]
pending_action_ttl = "90s"

[server]
http_bind = "0.0.0.0:9000"

[auth]
jwt_secret = "s3cret"
redis_addr = "localhost:6379"
redis_db = 2
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(path, Default("/tmp/default.db"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Path != "/custom/taskdeck.db" {
		t.Fatalf("unexpected db path %q", cfg.Database.Path)
	}
	if cfg.LogLevel() != log.DebugLevel {
		t.Fatalf("unexpected log level %s", cfg.LogLevel())
	}
	if !cfg.Logging.DevFile.Enabled || cfg.Logging.DevFile.MaxBackups != 7 || cfg.Logging.DevFile.MaxSizeMB != 10 {
		t.Fatalf("unexpected dev file config %#v", cfg.Logging.DevFile)
	}
	if cfg.Query.PageSize != 20 {
		t.Fatalf("unexpected page size %d", cfg.Query.PageSize)
	}
	if cfg.PendingActionTTL() != 90*time.Second {
		t.Fatalf("unexpected pending action ttl %s", cfg.PendingActionTTL())
	}
	if cfg.Server.HTTPBind != "0.0.0.0:9000" || cfg.Server.APIEndpoint != "/api/v1" {
		t.Fatalf("unexpected server config %#v", cfg.Server)
	}
	if cfg.Auth.JWTSecret != "s3cret" || cfg.Auth.RedisAddr != "localhost:6379" || cfg.Auth.RedisDB != 2 {
		t.Fatalf("unexpected auth config %#v", cfg.Auth)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"page size":      "[query]\npage_size = 0\n",
		"ttl":            "[workflow]\npending_action_ttl = \"soon\"\n",
		"negative ttl":   "[auth]\naccess_ttl = \"-1m\"\n",
		"log level":      "[logging]\nlevel = \"loud\"\n",
		"same endpoints": "[server]\napi_endpoint = \"/x\"\nmcp_endpoint = \"x/\"\n",
		"empty db path":  "[database]\npath = \"  \"\n",
		"malformed toml": "[query\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				t.Fatalf("WriteFile() error = %v", err)
			}
			if _, err := Load(path, Default("/tmp/default.db")); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestApplyEnvOverridesNonEmptyValues(t *testing.T) {
	env := map[string]string{
		EnvDBPath:    "/env/taskdeck.db",
		EnvJWTSecret: "from-env",
		EnvRedisAddr: " ",
		EnvLogLevel:  "warn",
	}
	cfg := Default("/tmp/taskdeck.db")
	cfg.Auth.RedisAddr = "keep:6379"
	cfg = ApplyEnv(cfg, func(key string) string { return env[key] })

	if cfg.Database.Path != "/env/taskdeck.db" {
		t.Fatalf("unexpected db path %q", cfg.Database.Path)
	}
	if cfg.Auth.JWTSecret != "from-env" {
		t.Fatalf("unexpected jwt secret %q", cfg.Auth.JWTSecret)
	}
	if cfg.Auth.RedisAddr != "keep:6379" {
		t.Fatalf("blank env should not override redis addr, got %q", cfg.Auth.RedisAddr)
	}
	if cfg.LogLevel() != log.WarnLevel {
		t.Fatalf("unexpected log level %s", cfg.LogLevel())
	}
}

func TestEnsureConfigDir(t *testing.T) {
	target := filepath.Join(t.TempDir(), "a", "b", "config.toml")
	if err := EnsureConfigDir(target); err != nil {
		t.Fatalf("EnsureConfigDir() error = %v", err)
	}
	if _, err := os.Stat(filepath.Dir(target)); err != nil {
		t.Fatalf("expected dir to exist, stat error %v", err)
	}
}
