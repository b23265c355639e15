package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // postgres driver

	"github.com/nyashahama/geoanalyzer/internal/ai"
	"github.com/nyashahama/geoanalyzer/internal/api"
	"github.com/nyashahama/geoanalyzer/internal/config"
	"github.com/nyashahama/geoanalyzer/internal/conversation"
	"github.com/nyashahama/geoanalyzer/internal/db"
	"github.com/nyashahama/geoanalyzer/internal/geodata"
	"github.com/nyashahama/geoanalyzer/internal/risk"
	"github.com/nyashahama/geoanalyzer/internal/session"
	"github.com/nyashahama/geoanalyzer/internal/store"
	"github.com/nyashahama/geoanalyzer/internal/tools"
)

func main() {
	// ── Config ────────────────────────────────────────────────────────────────
	// Loaded first so ENV picks the log format; a bad config is reported on
	// a plain text logger.
	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("fatal", "error", fmt.Errorf("config: %w", err))
		os.Exit(1)
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	// JSON in production, pretty text in development.
	var logger *slog.Logger
	if cfg.IsProduction() {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	} else {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	}
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	logger.Info("config loaded", "env", cfg.Env, "port", cfg.Port, "ai_configured", cfg.HasAIProvider())

	// ── Geodata ───────────────────────────────────────────────────────────────
	geo, err := geodata.New(cfg.GeodataOptions(), logger)
	if err != nil {
		return fmt.Errorf("geodata: %w", err)
	}
	assessor := risk.NewAssessor(geo, logger)

	registry, err := tools.NewGeoRegistry(geo, assessor, logger)
	if err != nil {
		return fmt.Errorf("tools: %w", err)
	}

	// ── AI ────────────────────────────────────────────────────────────────────
	llm := newCompleter(cfg, logger)
	orchestrator := conversation.New(llm, registry, logger, conversation.Options{
		MaxIterations: cfg.MaxIterations,
	})

	// ── Session ───────────────────────────────────────────────────────────────
	analysis := session.New(orchestrator, assessor, geo, logger, session.Options{
		Timeout: cfg.AnalysisTimeout,
	})
	defer analysis.Close()

	// ── Saved locations ───────────────────────────────────────────────────────
	// Postgres when DATABASE_URL is set, otherwise in memory for the process.
	var locations store.LocationStore
	if cfg.DatabaseURL != "" {
		pool, queries, err := openDB(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer pool.Close()
		defer queries.Close()
		locations = store.NewPostgresStore(pool, queries)
		logger.Info("database connected")
	} else {
		locations = store.NewMemoryStore()
		logger.Info("DATABASE_URL not set; saved locations are kept in memory")
	}

	// ── Servers ───────────────────────────────────────────────────────────────
	handler := api.NewServer(analysis, geo, registry, locations, api.Config{Env: cfg.Env}, logger)
	grpcServer, health := api.NewGRPCServer(cfg.HasAIProvider(), logger)

	// Root context cancelled by OS signal.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, handler, grpcServer, health, logger)
}

// newCompleter picks the LLM backend. The first two configured providers, in
// the order OpenAI, DeepSeek, Anthropic, become primary and fallback. With no
// key at all the OpenAI client is returned unconfigured so every analysis
// fails with ai.ErrNotConfigured instead of the server refusing to start.
func newCompleter(cfg *config.Config, logger *slog.Logger) ai.Completer {
	var providers []ai.Completer
	var names []string
	if cfg.OpenAIAPIKey != "" {
		var opts []ai.Option
		if cfg.OpenAIBaseURL != "" {
			opts = append(opts, ai.WithBaseURL(cfg.OpenAIBaseURL))
		}
		providers = append(providers, ai.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModel, opts...))
		names = append(names, "openai")
	}
	if cfg.DeepSeekAPIKey != "" {
		providers = append(providers, ai.NewDeepSeekClient(cfg.DeepSeekAPIKey, cfg.DeepSeekModel))
		names = append(names, "deepseek")
	}
	if cfg.AnthropicAPIKey != "" {
		providers = append(providers, ai.NewAnthropicClient(cfg.AnthropicAPIKey, cfg.AnthropicModel))
		names = append(names, "anthropic")
	}

	switch len(providers) {
	case 0:
		logger.Warn("ai: no provider key set; analyses will fail until one is configured")
		return ai.NewOpenAIClient("", cfg.OpenAIModel)
	case 1:
		logger.Info("ai: single provider", "provider", names[0])
		return providers[0]
	default:
		logger.Info("ai: provider with fallback", "primary", names[0], "fallback", names[1])
		return ai.NewFallbackCompleter(providers[0], providers[1], logger)
	}
}

// openDB opens the connection pool, applies the embedded migrations and
// prepares all statements. Preparing validates every query against the live
// schema, so the server refuses to start if the two are out of sync.
func openDB(dsn string) (*sql.DB, *db.Queries, error) {
	pool, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open: %w", err)
	}

	pool.SetMaxOpenConns(25)
	pool.SetMaxIdleConns(10)
	pool.SetConnMaxLifetime(5 * time.Minute)
	pool.SetConnMaxIdleTime(2 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := pool.PingContext(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping: %w", err)
	}
	if err := db.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}

	queries, err := db.Prepare(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("prepare statements: %w", err)
	}

	return pool, queries, nil
}
