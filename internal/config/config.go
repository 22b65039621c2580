package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	toml "github.com/pelletier/go-toml/v2"
)

// Env names read by ApplyEnv.
const (
	EnvDBPath    = "TASKDECK_DB_PATH"
	EnvJWTSecret = "TASKDECK_JWT_SECRET"
	EnvRedisAddr = "TASKDECK_REDIS_ADDR"
	EnvLogLevel  = "TASKDECK_LOG_LEVEL"
)

type Config struct {
	Database DatabaseConfig `toml:"database"`
	Logging  LoggingConfig  `toml:"logging"`
	Query    QueryConfig    `toml:"query"`
	Workflow WorkflowConfig `toml:"workflow"`
	Server   ServerConfig   `toml:"server"`
	Auth     AuthConfig     `toml:"auth"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type LoggingConfig struct {
	Level   string        `toml:"level"`
	DevFile DevFileConfig `toml:"dev_file"`
}

// DevFileConfig controls the rotated logfmt sink used during development.
type DevFileConfig struct {
	Enabled    bool   `toml:"enabled"`
	Dir        string `toml:"dir"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
}

type QueryConfig struct {
	PageSize int `toml:"page_size"`
}

type WorkflowConfig struct {
	// PendingActionTTL is a Go duration string such as "5m".
	PendingActionTTL string `toml:"pending_action_ttl"`
}

type ServerConfig struct {
	HTTPBind     string `toml:"http_bind"`
	APIEndpoint  string `toml:"api_endpoint"`
	MCPEndpoint  string `toml:"mcp_endpoint"`
	SecureCookie bool   `toml:"secure_cookie"`
}

type AuthConfig struct {
	JWTSecret  string `toml:"jwt_secret"`
	Issuer     string `toml:"issuer"`
	AccessTTL  string `toml:"access_ttl"`
	RefreshTTL string `toml:"refresh_ttl"`
	// RedisAddr selects the redis refresh-token store when set.
	RedisAddr string `toml:"redis_addr"`
	RedisDB   int    `toml:"redis_db"`
}

func Default(dbPath string) Config {
	return Config{
		Database: DatabaseConfig{
			Path: dbPath,
		},
		Logging: LoggingConfig{
			Level: "info",
			DevFile: DevFileConfig{
				Enabled:    false,
				MaxSizeMB:  10,
				MaxBackups: 3,
			},
		},
		Query: QueryConfig{
			PageSize: 5,
		},
		Workflow: WorkflowConfig{
			PendingActionTTL: "5m",
		},
		Server: ServerConfig{
			HTTPBind:    "127.0.0.1:8080",
			APIEndpoint: "/api/v1",
			MCPEndpoint: "/mcp",
		},
		Auth: AuthConfig{
			Issuer:     "taskdeck",
			AccessTTL:  "15m",
			RefreshTTL: "168h",
		},
	}
}

func Load(path string, defaults Config) (Config, error) {
	cfg := defaults
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if len(content) == 0 {
		return cfg, nil
	}

	if err := toml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode toml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// ApplyEnv overlays non-empty environment values onto cfg.
func ApplyEnv(cfg Config, getenv func(string) string) Config {
	if getenv == nil {
		getenv = os.Getenv
	}
	if v := strings.TrimSpace(getenv(EnvDBPath)); v != "" {
		cfg.Database.Path = v
	}
	if v := strings.TrimSpace(getenv(EnvJWTSecret)); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := strings.TrimSpace(getenv(EnvRedisAddr)); v != "" {
		cfg.Auth.RedisAddr = v
	}
	if v := strings.TrimSpace(getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = v
	}
	return cfg
}

func (c Config) Validate() error {
	c.Database.Path = strings.TrimSpace(c.Database.Path)
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	if _, err := log.ParseLevel(strings.TrimSpace(strings.ToLower(c.Logging.Level))); err != nil {
		return fmt.Errorf("invalid logging.level: %q", c.Logging.Level)
	}
	if c.Logging.DevFile.MaxSizeMB < 0 {
		return errors.New("logging.dev_file.max_size_mb must be >= 0")
	}
	if c.Logging.DevFile.MaxBackups < 0 {
		return errors.New("logging.dev_file.max_backups must be >= 0")
	}

	if c.Query.PageSize < 1 {
		return fmt.Errorf("query.page_size must be >= 1, got %d", c.Query.PageSize)
	}

	for name, value := range map[string]string{
		"workflow.pending_action_ttl": c.Workflow.PendingActionTTL,
		"auth.access_ttl":             c.Auth.AccessTTL,
		"auth.refresh_ttl":            c.Auth.RefreshTTL,
	} {
		if _, err := parsePositiveDuration(value); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}

	api := strings.Trim(strings.TrimSpace(c.Server.APIEndpoint), "/")
	mcp := strings.Trim(strings.TrimSpace(c.Server.MCPEndpoint), "/")
	if api != "" && api == mcp {
		return fmt.Errorf("server.api_endpoint and server.mcp_endpoint must differ: %q", c.Server.APIEndpoint)
	}

	if c.Auth.RedisDB < 0 {
		return errors.New("auth.redis_db must be >= 0")
	}
	return nil
}

// PendingActionTTL returns the parsed confirmation window.
func (c Config) PendingActionTTL() time.Duration {
	d, _ := parsePositiveDuration(c.Workflow.PendingActionTTL)
	return d
}

// AccessTTL returns the parsed access-token lifetime.
func (c Config) AccessTTL() time.Duration {
	d, _ := parsePositiveDuration(c.Auth.AccessTTL)
	return d
}

// RefreshTTL returns the parsed refresh-token lifetime.
func (c Config) RefreshTTL() time.Duration {
	d, _ := parsePositiveDuration(c.Auth.RefreshTTL)
	return d
}

// LogLevel returns the configured level, falling back to info.
func (c Config) LogLevel() log.Level {
	level, err := log.ParseLevel(strings.TrimSpace(strings.ToLower(c.Logging.Level)))
	if err != nil {
		return log.InfoLevel
	}
	return level
}

// parsePositiveDuration accepts empty input as zero so callers fall back to package defaults.
func parsePositiveDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %s", raw)
	}
	return d, nil
}

func EnsureConfigDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
