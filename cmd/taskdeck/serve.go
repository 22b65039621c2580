package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/evanschultz/taskdeck/internal/adapters/auth"
	serveradapter "github.com/evanschultz/taskdeck/internal/adapters/server"
)

// refreshKeyPrefix namespaces refresh tokens in redis.
const refreshKeyPrefix = "taskdeck:refresh:"

func newServeCommand(state *cliState) *cobra.Command {
	var (
		httpBind    string
		apiEndpoint string
		mcpEndpoint string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the REST API and MCP tools over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			if flags.Changed("http") {
				state.cfg.Server.HTTPBind = httpBind
			}
			if flags.Changed("api-endpoint") {
				state.cfg.Server.APIEndpoint = apiEndpoint
			}
			if flags.Changed("mcp-endpoint") {
				state.cfg.Server.MCPEndpoint = mcpEndpoint
			}
			return state.withBackend(cmd, func(ctx context.Context, b *backend) error {
				return state.runServe(ctx, b)
			})
		},
	}
	cmd.Flags().StringVar(&httpBind, "http", "127.0.0.1:8080", "HTTP listen address")
	cmd.Flags().StringVar(&apiEndpoint, "api-endpoint", "/api/v1", "HTTP API base endpoint")
	cmd.Flags().StringVar(&mcpEndpoint, "mcp-endpoint", "/mcp", "MCP streamable HTTP endpoint")
	return cmd
}

// runServe wires sessions, tracing, and readiness around the opened backend.
func (s *cliState) runServe(ctx context.Context, b *backend) error {
	store, closeStore, storePing, err := s.openRefreshStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	secret := strings.TrimSpace(s.cfg.Auth.JWTSecret)
	if secret == "" {
		secret = uuid.NewString()
		s.logger.Warn("auth.jwt_secret not configured; using an ephemeral secret, sessions end when the server stops")
	}
	issuer, err := auth.NewIssuer(b.svc, store, auth.IssuerConfig{
		Secret:     []byte(secret),
		Issuer:     s.cfg.Auth.Issuer,
		AccessTTL:  s.cfg.AccessTTL(),
		RefreshTTL: s.cfg.RefreshTTL(),
	})
	if err != nil {
		return fmt.Errorf("configure auth issuer: %w", err)
	}

	tp := newTracerProvider(s.logger)
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer func() {
		otel.SetTracerProvider(previous)
		if shutdownErr := tp.Shutdown(context.Background()); shutdownErr != nil {
			s.logger.Warn("tracer shutdown failed", "err", shutdownErr)
		}
	}()

	ready := func(ctx context.Context) error {
		if err := b.ready(ctx); err != nil {
			return fmt.Errorf("repository: %w", err)
		}
		if err := storePing(ctx); err != nil {
			return fmt.Errorf("refresh store: %w", err)
		}
		return nil
	}

	return serveCommandRunner(ctx, serveradapter.Config{
		HTTPBind:      s.cfg.Server.HTTPBind,
		APIEndpoint:   s.cfg.Server.APIEndpoint,
		MCPEndpoint:   s.cfg.Server.MCPEndpoint,
		ServerName:    s.appName,
		ServerVersion: version,
		SecureCookie:  s.cfg.Server.SecureCookie,
	}, serveradapter.Dependencies{
		Service:  b.adapter,
		Sessions: issuer,
		Logger:   s.logger.HTTP(),
		Ready:    ready,
	})
}

// openRefreshStore selects redis when auth.redis_addr is set and the in-process store otherwise.
func (s *cliState) openRefreshStore(ctx context.Context) (auth.RefreshStore, func(), func(context.Context) error, error) {
	addr := strings.TrimSpace(s.cfg.Auth.RedisAddr)
	if addr == "" {
		s.logger.Info("using in-memory refresh token store")
		return auth.NewMemoryStore(nil), func() {}, func(context.Context) error { return nil }, nil
	}

	client := redis.NewClient(&redis.Options{Addr: addr, DB: s.cfg.Auth.RedisDB})
	store := auth.NewRedisStore(client, refreshKeyPrefix)
	if err := store.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}
	s.logger.Info("using redis refresh token store", "addr", addr, "db", s.cfg.Auth.RedisDB)
	closeFn := func() {
		if err := client.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
			s.logger.Warn("redis close failed", "err", err)
		}
	}
	return store, closeFn, store.Ping, nil
}

// newTracerProvider builds the process tracer provider with span logging at debug level.
func newTracerProvider(logger *runtimeLogger) *sdktrace.TracerProvider {
	return sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithSpanProcessor(spanLogger{logger: logger}),
	)
}

// spanLogger reports finished spans through the runtime logger.
type spanLogger struct {
	logger *runtimeLogger
}

func (p spanLogger) OnStart(context.Context, sdktrace.ReadWriteSpan) {}

func (p spanLogger) OnEnd(span sdktrace.ReadOnlySpan) {
	p.logger.Debug("span finished",
		"name", span.Name(),
		"trace_id", span.SpanContext().TraceID().String(),
		"duration", span.EndTime().Sub(span.StartTime()),
		"status", span.Status().Code.String(),
	)
}

func (p spanLogger) Shutdown(context.Context) error { return nil }

func (p spanLogger) ForceFlush(context.Context) error { return nil }
