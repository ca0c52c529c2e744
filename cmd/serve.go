package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/geoffsee/open-gsio/internal/api"
	"github.com/geoffsee/open-gsio/internal/backend"
	"github.com/geoffsee/open-gsio/internal/backend/anthropic"
	"github.com/geoffsee/open-gsio/internal/backend/openai"
	"github.com/geoffsee/open-gsio/internal/chat"
	"github.com/geoffsee/open-gsio/internal/config"
	"github.com/geoffsee/open-gsio/internal/database"
	"github.com/geoffsee/open-gsio/internal/log"
	"github.com/geoffsee/open-gsio/internal/observability"
	"github.com/geoffsee/open-gsio/internal/provider"
	"github.com/geoffsee/open-gsio/internal/retrieval"
	"github.com/geoffsee/open-gsio/internal/stream"
)

// Server timeout configuration.
const (
	readHeaderTimeout = 10 * time.Second
	readTimeout       = 30 * time.Second
	writeTimeout      = 5 * time.Minute // SSE streaming needs a long write window
	idleTimeout       = 2 * time.Minute
	shutdownTimeout   = 30 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway HTTP server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// runServe initializes and starts the HTTP API server.
func runServe(parent context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err = cfg.ValidateServe(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := log.New(log.Config{JSON: true})
	logger.Info("starting gateway", "version", Version)

	shutdownTracing, err := observability.Setup(ctx, cfg.Tracing, logger)
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("trace flush failed", "error", err)
		}
	}()

	repo, err := provider.NewRepository(cfg, logger)
	if err != nil {
		return fmt.Errorf("resolving providers: %w", err)
	}
	backends := backend.NewRegistry(openai.New(), anthropic.New())
	catalog := provider.NewCatalog(repo, backend.NewLister(backends), logger)

	// Postgres is optional. Without it streams live in memory and the
	// retrieval tool is disabled.
	var registry stream.Registry = stream.NewMemory()
	var pool *pgxpool.Pool
	if cfg.HasPostgres() {
		p, err := database.Connect(ctx, cfg.PostgresConnectionString())
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		defer p.Close()
		pool = p
		registry = stream.NewPostgres(p, logger)
	} else {
		logger.Info("postgres not configured, using in-memory stream registry")
	}

	var tool chat.Tool
	if pool != nil && cfg.GeminiAPIKey != "" {
		embedder, err := retrieval.NewGeminiEmbedder(ctx, cfg.GeminiAPIKey, cfg.EmbedderModel)
		if err != nil {
			return fmt.Errorf("creating embedder: %w", err)
		}
		store, err := retrieval.NewStore(pool, embedder, logger)
		if err != nil {
			return fmt.Errorf("creating retrieval store: %w", err)
		}
		tool = retrieval.NewTool(store, cfg.DefaultCollection, cfg.DefaultTopK, cfg.DefaultThreshold, logger)
		logger.Info("retrieval tool enabled", "collection", cfg.DefaultCollection)
	} else {
		logger.Info("retrieval tool disabled",
			"postgres", pool != nil,
			"gemini_key", cfg.GeminiAPIKey != "",
		)
	}

	ttl := time.Duration(cfg.StreamTTLSeconds) * time.Second
	orchestrator := chat.NewOrchestrator(registry, backends, catalog, tool, ttl, logger)

	apiServer, err := api.NewServer(api.ServerConfig{
		Logger:       logger,
		Orchestrator: orchestrator,
		Catalog:      catalog,
		Pool:         pool,
		CORSOrigins:  cfg.CORSOrigins,
		IsDev:        cfg.PostgresSSLMode == "disable",
		TrustProxy:   cfg.TrustProxy,
		RateBurst:    cfg.RateBurst,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	logger.Info("HTTP server ready",
		"addr", addr,
		"api", "/chat, /streams/{id}, /models",
		"health", "/health, /ready",
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down HTTP server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down server: %w", err)
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTP server: %w", err)
	}
}
