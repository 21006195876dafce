// Package app assembles the application: database pool, Genkit, the tool
// surface, the assistant, and the session supervisor. Setup builds the whole
// graph; Close releases it in reverse order.
package app

import (
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/weftworks/loombot/internal/agent"
	"github.com/weftworks/loombot/internal/config"
	"github.com/weftworks/loombot/internal/embedcache"
	"github.com/weftworks/loombot/internal/ingest"
	"github.com/weftworks/loombot/internal/knowledge"
	"github.com/weftworks/loombot/internal/livestate"
	"github.com/weftworks/loombot/internal/session"
	"github.com/weftworks/loombot/internal/supervisor"
	"github.com/weftworks/loombot/internal/ticket"
)

// App is the assembled application container.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Pool   *pgxpool.Pool
	Genkit *genkit.Genkit

	// Embedder is the provider embedder; Embeddings is the memoizing cache
	// every embedding consumer goes through.
	Embedder   ai.Embedder
	Embeddings *embedcache.Cache

	Knowledge *knowledge.Store
	LiveState *livestate.Service
	Tickets   *ticket.Client // nil when no ticketing API is configured

	Tools      []ai.Tool
	Assistant  *agent.Assistant
	Sessions   *session.Store
	Supervisor *supervisor.Supervisor

	dbCleanup   func()
	otelCleanup func()
}

// Close releases all resources held by the App. Safe to call on a partially
// initialized container.
func (a *App) Close() error {
	if a.dbCleanup != nil {
		a.dbCleanup()
		a.dbCleanup = nil
	}
	if a.otelCleanup != nil {
		a.otelCleanup()
		a.otelCleanup = nil
	}
	return nil
}

// NewIngester builds the documentation ingester on top of the App's pool and
// knowledge store. Used by the index command.
func (a *App) NewIngester() (*ingest.Ingester, error) {
	return ingest.New(ingest.Config{
		DB:     a.Pool,
		Writer: a.Knowledge,
		Chunk:  ingest.WindowChunker(ingest.DefaultChunkSize, ingest.DefaultChunkOverlap),
		Logger: a.Logger,
	})
}
