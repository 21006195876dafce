package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/firebase/genkit/go/core/tracing"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/weftworks/loombot/db"
	"github.com/weftworks/loombot/internal/agent"
	"github.com/weftworks/loombot/internal/config"
	"github.com/weftworks/loombot/internal/embedcache"
	"github.com/weftworks/loombot/internal/knowledge"
	"github.com/weftworks/loombot/internal/livestate"
	"github.com/weftworks/loombot/internal/log"
	"github.com/weftworks/loombot/internal/resolver"
	"github.com/weftworks/loombot/internal/session"
	"github.com/weftworks/loombot/internal/supervisor"
	"github.com/weftworks/loombot/internal/ticket"
	"github.com/weftworks/loombot/internal/tools"
)

// CachedEmbedderName is the genkit name under which Setup registers the
// memoizing embedder cache.
const CachedEmbedderName = "loombot/embedder"

// Setup builds the full application graph. On failure everything already
// initialized is released before returning.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	if cfg == nil {
		return nil, config.ErrConfigNil
	}
	if logger == nil {
		logger = log.NewNop()
	}

	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if retErr != nil {
			_ = a.Close()
		}
	}()

	a.otelCleanup = provideTracing(ctx, cfg, logger)

	pool, dbCleanup, err := provideDBPool(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.dbCleanup = dbCleanup
	a.Pool = pool

	g, err := provideGenkit(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	embedder := provideEmbedder(g, cfg)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found for provider %q", cfg.EmbedderModel, cfg.Provider)
	}
	a.Embedder = embedder

	cache, err := embedcache.New(embedder, logger)
	if err != nil {
		return nil, err
	}
	a.Embeddings = cache

	// Expose the cache under a stable name so prompt-level retrievers and
	// indexers address the memoized embedder, not the raw provider one.
	embedcache.Register(g, CachedEmbedderName, cache)

	store, err := knowledge.New(pool, cache, logger)
	if err != nil {
		return nil, err
	}
	a.Knowledge = store

	live, err := livestate.New(pool, logger)
	if err != nil {
		return nil, err
	}
	a.LiveState = live

	orders, err := provideOrders(a, cfg, logger)
	if err != nil {
		return nil, err
	}

	if err := provideTools(a, orders); err != nil {
		return nil, err
	}

	assistant, err := agent.New(agent.Config{
		Genkit:      g,
		Logger:      logger,
		Tools:       a.Tools,
		Model:       cfg.FullModelName(),
		MaxTurns:    cfg.MaxTurns,
		TurnTimeout: cfg.TurnTimeout(),
	})
	if err != nil {
		return nil, err
	}
	a.Assistant = assistant

	sessions, err := session.NewStore(pool, logger)
	if err != nil {
		return nil, err
	}
	a.Sessions = sessions

	sup, err := provideSupervisor(a, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Supervisor = sup

	return a, nil
}

// provideTracing wires optional OTLP trace export into Genkit's
// TracerProvider. Must run before provideGenkit.
func provideTracing(ctx context.Context, cfg *config.Config, logger log.Logger) func() {
	tc := cfg.Tracing
	if !tc.Enabled {
		return func() {}
	}

	agentHost := tc.AgentHost
	if agentHost == "" {
		agentHost = "localhost:4318"
	}

	// os.Setenv is not concurrent-safe, but Setup runs once before any
	// goroutine is spawned.
	if tc.ServiceName != "" {
		_ = os.Setenv("OTEL_SERVICE_NAME", tc.ServiceName)
	}
	if tc.Environment != "" {
		_ = os.Setenv("OTEL_RESOURCE_ATTRIBUTES", "deployment.environment="+tc.Environment)
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(agentHost),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		logger.Warn("creating trace exporter, tracing disabled", "error", err)
		return func() {}
	}

	processor := sdktrace.NewBatchSpanProcessor(exporter)
	tracing.TracerProvider().RegisterSpanProcessor(processor)

	logger.Debug("tracing enabled",
		"agent", agentHost,
		"service", tc.ServiceName,
		"environment", tc.Environment)

	shutdown := tracing.TracerProvider().Shutdown
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("shutting down tracer provider", "error", err)
		}
	}
}

// provideDBPool runs migrations and opens the connection pool. The pgvector
// type is registered on every new connection so embeddings round-trip as
// native vectors.
func provideDBPool(ctx context.Context, cfg *config.Config, logger log.Logger) (*pgxpool.Pool, func(), error) {
	if err := db.Migrate(cfg.PostgresURL(), logger); err != nil {
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, pool.Close, nil
}

// provideGenkit initializes Genkit with the configured provider plugin.
func provideGenkit(ctx context.Context, cfg *config.Config, logger log.Logger) (*genkit.Genkit, error) {
	promptDir := cfg.PromptDir
	if promptDir == "" {
		promptDir = "prompts"
	}

	var g *genkit.Genkit

	switch cfg.Provider {
	case config.ProviderOllama:
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g = genkit.Init(ctx,
			genkit.WithPlugins(ollamaPlugin),
			genkit.WithPromptDir(promptDir),
		)
		if g == nil {
			return nil, errors.New("initializing genkit with ollama provider")
		}
		// Ollama has no auto-discovery, models are registered explicitly.
		ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
			Name: cfg.ModelName,
			Type: "chat",
		}, nil)
		ollamaPlugin.DefineEmbedder(g, cfg.OllamaHost, cfg.EmbedderModel, nil)
		logger.Info("initialized genkit", "provider", "ollama",
			"model", cfg.ModelName, "host", cfg.OllamaHost)

	case config.ProviderGemini, config.ProviderGoogleAI:
		g = genkit.Init(ctx,
			genkit.WithPlugins(&googlegenai.GoogleAI{}),
			genkit.WithPromptDir(promptDir),
		)
		if g == nil {
			return nil, errors.New("initializing genkit with googleai provider")
		}
		logger.Info("initialized genkit", "provider", "googleai", "model", cfg.ModelName)

	default: // openai
		g = genkit.Init(ctx,
			genkit.WithPlugins(&openai.OpenAI{}),
			genkit.WithPromptDir(promptDir),
		)
		if g == nil {
			return nil, errors.New("initializing genkit with openai provider")
		}
		logger.Info("initialized genkit", "provider", "openai", "model", cfg.ModelName)
	}

	return g, nil
}

// provideEmbedder looks up the embedder registered by the provider plugin.
func provideEmbedder(g *genkit.Genkit, cfg *config.Config) ai.Embedder {
	switch cfg.Provider {
	case config.ProviderOllama:
		// Registered in provideGenkit, keyed by server address.
		return ollama.Embedder(g, cfg.OllamaHost)
	case config.ProviderGemini, config.ProviderGoogleAI:
		return googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	default:
		return genkit.LookupEmbedder(g, api.NewName("openai", cfg.EmbedderModel))
	}
}

// disabledOrders stands in when no ticketing API is configured; the tool
// layer turns the error into a Portuguese message for the model.
type disabledOrders struct{}

func (disabledOrders) Search(context.Context, ticket.Filter, string) (string, error) {
	return "", errors.New("ticketing API not configured")
}

func provideOrders(a *App, cfg *config.Config, logger log.Logger) (tools.OrderSearcher, error) {
	if cfg.Ticket.BaseURL == "" {
		logger.Warn("ticketing API not configured, service order searches will fail")
		return disabledOrders{}, nil
	}

	client, err := ticket.New(
		cfg.Ticket.BaseURL,
		cfg.Ticket.APIKey,
		time.Duration(cfg.Ticket.TimeoutMs)*time.Millisecond,
		logger,
	)
	if err != nil {
		return nil, err
	}
	a.Tickets = client
	return client, nil
}

func resolverFromConfig(cfg *config.Config) *resolver.Resolver {
	return resolver.New(cfg.MatchThreshold)
}

// provideTools builds the tool handler and registers every tool with Genkit.
func provideTools(a *App, orders tools.OrderSearcher) error {
	cfg := a.Config

	handler, err := tools.NewHandler(
		resolverFromConfig(cfg),
		a.LiveState,
		orders,
		a.Knowledge,
		tools.Entities{
			Machines:       cfg.Entities.Machines,
			TicketMachines: cfg.Entities.TicketMachines,
			OrderStatuses:  cfg.Entities.OrderStatuses,
		},
		cfg.RetrievalTopK,
		a.Logger,
	)
	if err != nil {
		return err
	}

	registered, err := tools.Register(a.Genkit, handler)
	if err != nil {
		return err
	}
	a.Tools = registered
	a.Logger.Info("tools registered", "count", len(registered))
	return nil
}

// provideSupervisor wires the user directory and the per-user session
// factory. Each session gets its own logger scope and shares the assistant,
// which is stateless across users.
func provideSupervisor(a *App, cfg *config.Config, logger log.Logger) (*supervisor.Supervisor, error) {
	directory, err := supervisor.NewDirectory(a.Pool, logger)
	if err != nil {
		return nil, err
	}

	factory := func(userID string) (supervisor.SessionRunner, error) {
		return session.New(session.Config{
			UserID:       userID,
			Assistant:    a.Assistant,
			Source:       a.Sessions,
			Sink:         a.Sessions,
			Logger:       logger,
			HistoryLimit: cfg.HistoryLimit,
			PollInterval: cfg.MessagePollInterval(),
		})
	}

	return supervisor.New(supervisor.Config{
		Directory:    directory,
		NewSession:   factory,
		Logger:       logger,
		PollInterval: cfg.UserPollInterval(),
	})
}
