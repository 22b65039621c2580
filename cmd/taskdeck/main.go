package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/fang"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	serveradapter "github.com/evanschultz/taskdeck/internal/adapters/server"
	servercommon "github.com/evanschultz/taskdeck/internal/adapters/server/common"
	"github.com/evanschultz/taskdeck/internal/adapters/sanitize"
	"github.com/evanschultz/taskdeck/internal/adapters/storage/memory"
	"github.com/evanschultz/taskdeck/internal/adapters/storage/sqlite"
	"github.com/evanschultz/taskdeck/internal/app"
	"github.com/evanschultz/taskdeck/internal/config"
	"github.com/evanschultz/taskdeck/internal/domain"
	"github.com/evanschultz/taskdeck/internal/platform"
)

// version stores a package-level helper value.
var version = "dev"

// serveCommandRunner starts the HTTP+MCP serve flow.
var serveCommandRunner = func(ctx context.Context, cfg serveradapter.Config, deps serveradapter.Dependencies) error {
	return serveradapter.Run(ctx, cfg, deps)
}

// skipConfigAnnotation marks commands that only need resolved paths.
const skipConfigAnnotation = "taskdeck/skip-config"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCommand(os.Stdin, os.Stdout, os.Stderr)
	if err := fang.Execute(ctx, root, fang.WithVersion(version)); err != nil {
		os.Exit(1)
	}
}

// run executes one command line with explicit streams.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	root := newRootCommand(stdin, stdout, stderr)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// cliState carries flag values and resolved runtime state across one invocation.
type cliState struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	configPath string
	dbPath     string
	appName    string
	actorEmail string
	devMode    bool
	memory     bool

	paths  platform.Paths
	cfg    config.Config
	logger *runtimeLogger
}

// newRootCommand builds the command tree.
func newRootCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	if stdin == nil {
		stdin = strings.NewReader("")
	}
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	state := &cliState{stdin: stdin, stdout: stdout, stderr: stderr}

	defaultDevMode := version == "dev"
	if envDev, ok := parseBoolEnv("TASKDECK_DEV_MODE"); ok {
		defaultDevMode = envDev
	}
	defaultApp := "taskdeck"
	if envApp := strings.TrimSpace(os.Getenv("TASKDECK_APP_NAME")); envApp != "" {
		defaultApp = envApp
	}

	root := &cobra.Command{
		Use:           "taskdeck",
		Short:         "Track projects, tasks, and memberships",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return state.prepare(cmd)
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			return state.close()
		},
	}
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&state.configPath, "config", "", "path to config TOML")
	flags.StringVar(&state.dbPath, "db", "", "path to sqlite database")
	flags.StringVar(&state.appName, "app", defaultApp, "application name for config/data path resolution")
	flags.BoolVar(&state.devMode, "dev", defaultDevMode, "use dev mode paths (<app>-dev)")
	flags.BoolVar(&state.memory, "memory", false, "use an ephemeral in-memory store")
	flags.StringVar(&state.actorEmail, "as", os.Getenv("TASKDECK_USER"), "email of the registered user performing the command")

	root.AddCommand(
		newPathsCommand(state),
		newServeCommand(state),
		newUserCommand(state),
		newProjectsCommand(state),
		newTasksCommand(state),
		newMembersCommand(state),
		newCommentsCommand(state),
		newRequestsCommand(state),
		newRemoteCommand(state),
		newExportCommand(state),
		newImportCommand(state),
	)
	return root
}

// prepare resolves paths, config, and logging for the selected command.
func (s *cliState) prepare(cmd *cobra.Command) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	paths, err := platform.DefaultPathsWithOptions(platform.Options{
		AppName: s.appName,
		DevMode: s.devMode,
	})
	if err != nil {
		return err
	}
	s.paths = paths
	if cmd.Annotations[skipConfigAnnotation] == "true" {
		return nil
	}

	if s.configPath == "" {
		if envPath := strings.TrimSpace(os.Getenv("TASKDECK_CONFIG")); envPath != "" {
			s.configPath = envPath
		} else {
			s.configPath = paths.ConfigPath
		}
	}
	cfg, err := config.Load(s.configPath, config.Default(paths.DBPath))
	if err != nil {
		return fmt.Errorf("load config %q: %w", s.configPath, err)
	}
	cfg = config.ApplyEnv(cfg, os.Getenv)
	if strings.TrimSpace(s.dbPath) != "" {
		cfg.Database.Path = s.dbPath
	}
	if cfg.Logging.DevFile.Dir == "" {
		cfg.Logging.DevFile.Dir = paths.LogDir
	}
	s.cfg = cfg

	logger, err := newRuntimeLogger(s.stderr, s.appName, s.devMode, cfg.Logging, time.Now)
	if err != nil {
		return fmt.Errorf("configure runtime logger: %w", err)
	}
	s.logger = logger
	logger.Debug("startup configuration resolved", "app", s.appName, "dev_mode", s.devMode, "command", cmd.CommandPath())
	logger.Debug("configuration loaded", "config_path", s.configPath, "db_path", cfg.Database.Path, "log_level", cfg.Logging.Level)
	if devPath := logger.DevLogPath(); devPath != "" {
		logger.Info("dev file logging enabled", "path", devPath)
	}
	return nil
}

// close releases the runtime logger.
func (s *cliState) close() error {
	if s.logger == nil {
		return nil
	}
	if err := s.logger.Close(); err != nil {
		_, _ = fmt.Fprintf(s.stderr, "warning: close runtime log sink: %v\n", err)
	}
	return nil
}

// backend bundles an opened store with the service built on it.
type backend struct {
	svc     *app.Service
	adapter *servercommon.AppServiceAdapter
	ready   func(context.Context) error
	close   func()
}

// openBackend opens the configured store and builds the application service.
func (s *cliState) openBackend() (*backend, error) {
	svcCfg := app.ServiceConfig{
		PageSize:         s.cfg.Query.PageSize,
		PendingActionTTL: s.cfg.PendingActionTTL(),
		Sanitize:         sanitize.Text,
		ActionKey:        []byte(s.cfg.Auth.JWTSecret),
	}

	if s.memory {
		s.logger.Info("using in-memory repository")
		svc := app.NewService(memory.New(), uuid.NewString, nil, svcCfg)
		return &backend{
			svc:     svc,
			adapter: servercommon.NewAppServiceAdapter(svc),
			ready:   func(context.Context) error { return nil },
			close:   func() {},
		}, nil
	}

	dbPath := s.cfg.Database.Path
	s.logger.Info("opening sqlite repository", "db_path", dbPath)
	repo, err := sqlite.Open(dbPath)
	if err != nil {
		s.logger.Error("sqlite open failed", "db_path", dbPath, "err", err)
		return nil, fmt.Errorf("open sqlite repository: %w", err)
	}
	s.logger.Debug("sqlite repository ready", "db_path", dbPath, "migrations", "ensured")

	svc := app.NewService(repo, uuid.NewString, nil, svcCfg)
	return &backend{
		svc:     svc,
		adapter: servercommon.NewAppServiceAdapter(svc),
		ready:   repo.Ping,
		close: func() {
			if closeErr := repo.Close(); closeErr != nil {
				s.logger.Warn("sqlite close failed", "db_path", dbPath, "err", closeErr)
			}
		},
	}, nil
}

// withBackend runs fn against a freshly opened backend and closes it afterwards.
func (s *cliState) withBackend(cmd *cobra.Command, fn func(context.Context, *backend) error) error {
	b, err := s.openBackend()
	if err != nil {
		return err
	}
	defer b.close()

	name := cmd.CommandPath()
	s.logger.Debug("command flow start", "command", name)
	if err := fn(cmd.Context(), b); err != nil {
		s.logger.Debug("command flow failed", "command", name, "err", err)
		return err
	}
	s.logger.Debug("command flow complete", "command", name)
	return nil
}

// actor resolves --as into a registered identity.
func (s *cliState) actor(ctx context.Context, b *backend) (domain.Identity, error) {
	email := strings.TrimSpace(s.actorEmail)
	if email == "" {
		return domain.Identity{}, errors.New("--as <email> (or TASKDECK_USER) is required for this command")
	}
	identity, err := b.svc.LookupUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, app.ErrNotFound) {
			return domain.Identity{}, fmt.Errorf("no registered user %q; run `taskdeck user add` first", email)
		}
		return domain.Identity{}, fmt.Errorf("resolve --as user: %w", err)
	}
	return identity, nil
}

func newPathsCommand(state *cliState) *cobra.Command {
	return &cobra.Command{
		Use:         "paths",
		Short:       "Print resolved config, data, and log locations",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "app: %s\n", state.appName)
			_, _ = fmt.Fprintf(out, "dev_mode: %t\n", state.devMode)
			for _, entry := range state.paths.Entries() {
				_, _ = fmt.Fprintf(out, "%s: %s\n", entry.Label, entry.Path)
			}
			return nil
		},
	}
}

// parseBoolEnv parses input into a normalized form.
func parseBoolEnv(name string) (bool, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
