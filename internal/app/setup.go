package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/firebase/genkit/go/core/tracing"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/coverline/coverline/db"
	"github.com/coverline/coverline/internal/agent"
	"github.com/coverline/coverline/internal/auth"
	"github.com/coverline/coverline/internal/chat"
	"github.com/coverline/coverline/internal/config"
	"github.com/coverline/coverline/internal/database"
	"github.com/coverline/coverline/internal/insurance"
	"github.com/coverline/coverline/internal/knowledge"
	"github.com/coverline/coverline/internal/log"
)

// Setup creates and initializes the application.
// Returns an App with embedded cleanup — call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if logger == nil {
		logger = log.NewNop()
	}

	a := &App{Config: cfg, Logger: logger}

	// On error, release everything already initialized.
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	a.otelCleanup = provideOtelShutdown(ctx, cfg, logger)

	pool, dbCleanup, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.dbCleanup = dbCleanup
	a.DBPool = pool

	g, err := provideGenkit(ctx)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	embedder := googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found", cfg.EmbedderModel)
	}
	a.Embedder = embedder

	issuer := auth.NewTokenIssuer(cfg.JWTSecret, time.Duration(cfg.TokenTTLHrs)*time.Hour)
	a.Tokens = issuer
	a.Auth = auth.NewService(auth.NewStore(pool), issuer, logger.With("component", "auth"))

	a.Insurance = insurance.NewService(insurance.NewStore(pool), logger.With("component", "insurance"))
	a.Knowledge = knowledge.NewIndex(knowledge.NewStore(pool), embedder, logger.With("component", "knowledge"))

	orchestrator, err := provideAgent(g, cfg, a, logger)
	if err != nil {
		return nil, err
	}
	a.Agent = orchestrator

	a.Chats = chat.NewService(chat.NewStore(pool), orchestrator, logger.With("component", "chat"))

	return a, nil
}

// provideOtelShutdown configures OTLP trace export before Genkit
// initialization so spans land on Genkit's TracerProvider. An empty
// endpoint disables tracing entirely.
func provideOtelShutdown(ctx context.Context, cfg *config.Config, logger log.Logger) func() {
	if cfg.OtelEndpoint == "" {
		return func() {}
	}

	// SAFETY: os.Setenv is not concurrent-safe, but setup runs exactly once
	// at startup before any goroutines are spawned.
	if cfg.OtelServiceName != "" {
		_ = os.Setenv("OTEL_SERVICE_NAME", cfg.OtelServiceName)
	}
	if cfg.OtelEnvironment != "" {
		_ = os.Setenv("OTEL_RESOURCE_ATTRIBUTES", "deployment.environment="+cfg.OtelEnvironment)
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.OtelEndpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		logger.Warn("creating otlp exporter, tracing disabled", "error", err)
		return func() {}
	}

	processor := sdktrace.NewBatchSpanProcessor(exporter)
	tracing.TracerProvider().RegisterSpanProcessor(processor)

	logger.Debug("tracing enabled",
		"endpoint", cfg.OtelEndpoint,
		"service", cfg.OtelServiceName,
		"environment", cfg.OtelEnvironment)

	shutdown := tracing.TracerProvider().Shutdown
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("shutting down tracer provider", "error", err)
		}
	}
}

// provideDBPool runs migrations then opens the connection pool.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, func(), error) {
	connURL := cfg.PostgresURL()
	if err := db.Migrate(connURL); err != nil {
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}

	pool, cleanup, err := database.NewPool(ctx, connURL)
	if err != nil {
		return nil, nil, err
	}
	return pool, cleanup, nil
}

// provideGenkit initializes Genkit with the Google AI plugin. Tracing must
// already be set up so the TracerProvider is ready.
func provideGenkit(ctx context.Context) (*genkit.Genkit, error) {
	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		return nil, errors.New("initializing genkit")
	}
	return g, nil
}

// provideAgent assembles the tool catalog, registers the tools with
// Genkit, and constructs the orchestrator.
func provideAgent(g *genkit.Genkit, cfg *config.Config, a *App, logger log.Logger) (*agent.Orchestrator, error) {
	retriever := &boundedRetriever{index: a.Knowledge, topK: cfg.RetrievalTopK}

	catalog, err := agent.NewCatalog(a.Insurance, a.Insurance, retriever)
	if err != nil {
		return nil, fmt.Errorf("building tool catalog: %w", err)
	}

	refs := agent.RegisterTools(g, catalog)
	logger.Info("agent tools registered", "count", len(refs))

	return agent.New(agent.Config{
		LLM:      agent.NewGenkitLLM(g, cfg.ModelName),
		Catalog:  catalog,
		Logger:   logger.With("component", "agent"),
		MaxTurns: cfg.MaxTurns,
	})
}

// boundedRetriever applies the configured retrieval depth when the caller
// does not specify one.
type boundedRetriever struct {
	index *knowledge.Index
	topK  int
}

func (r *boundedRetriever) SearchForUser(ctx context.Context, userID uuid.UUID, query string, topK int) ([]knowledge.Result, error) {
	if topK <= 0 {
		topK = r.topK
	}
	return r.index.SearchForUser(ctx, userID, query, topK)
}
