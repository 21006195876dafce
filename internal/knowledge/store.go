// Package knowledge stores documentation chunks in PostgreSQL with pgvector
// embeddings and serves semantic retrieval for the documentation tool.
package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/weftworks/loombot/internal/log"
)

// Embedder turns text into embedding vectors. *embedcache.Cache satisfies it,
// so every store query and insert goes through the memoizing layer.
type Embedder interface {
	EmbedSingle(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Querier is the subset of pgxpool.Pool the store needs.
// Defined here so tests can substitute a fake without a live database.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store manages documentation chunks with vector search.
// It is safe for concurrent use by multiple goroutines.
type Store struct {
	db       Querier
	embedder Embedder
	logger   log.Logger
}

// New creates a Store backed by the given querier and embedder.
func New(db Querier, embedder Embedder, logger log.Logger) (*Store, error) {
	if db == nil {
		return nil, errors.New("knowledge: querier must not be nil")
	}
	if embedder == nil {
		return nil, errors.New("knowledge: embedder must not be nil")
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{
		db:       db,
		embedder: embedder,
		logger:   logger.With("component", "knowledge"),
	}, nil
}

const upsertDocumentSQL = `
INSERT INTO documents (id, content, embedding, metadata, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET
    content    = EXCLUDED.content,
    embedding  = EXCLUDED.embedding,
    metadata   = EXCLUDED.metadata,
    created_at = EXCLUDED.created_at`

// Add embeds a document's content and upserts it.
func (s *Store) Add(ctx context.Context, doc Document) error {
	if doc.ID == "" {
		return errors.New("knowledge: document id must not be empty")
	}

	vec, err := s.embedder.EmbedSingle(ctx, doc.Content)
	if err != nil {
		return fmt.Errorf("embed document %q: %w", doc.ID, err)
	}

	return s.upsert(ctx, doc, vec)
}

// AddBatch embeds and upserts multiple documents with a single embedder
// round trip. Used by the ingestion pipeline, where one chunked source
// produces many documents at once.
func (s *Store) AddBatch(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		if doc.ID == "" {
			return fmt.Errorf("knowledge: document at index %d has empty id", i)
		}
		texts[i] = doc.Content
	}

	vecs, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed batch of %d documents: %w", len(docs), err)
	}
	if len(vecs) != len(docs) {
		return fmt.Errorf("knowledge: embedder returned %d vectors for %d documents", len(vecs), len(docs))
	}

	for i, doc := range docs {
		if err := s.upsert(ctx, doc, vecs[i]); err != nil {
			return err
		}
	}

	s.logger.Debug("added document batch", "count", len(docs))
	return nil
}

func (s *Store) upsert(ctx context.Context, doc Document, vec []float32) error {
	if len(vec) == 0 {
		return fmt.Errorf("knowledge: empty embedding for document %q", doc.ID)
	}

	metadataJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata for document %q: %w", doc.ID, err)
	}

	createdAt := doc.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	embedding := pgvector.NewVector(vec)
	if _, err := s.db.Exec(ctx, upsertDocumentSQL, doc.ID, doc.Content, embedding, metadataJSON, createdAt); err != nil {
		return fmt.Errorf("upsert document %q: %w", doc.ID, err)
	}

	s.logger.Debug("added document", "id", doc.ID, "content_length", len(doc.Content))
	return nil
}

const searchAllSQL = `
SELECT id, content, metadata, created_at, 1 - (embedding <=> $1) AS similarity
FROM documents
ORDER BY embedding <=> $1
LIMIT $2`

const searchFilteredSQL = `
SELECT id, content, metadata, created_at, 1 - (embedding <=> $1) AS similarity
FROM documents
WHERE metadata @> $2
ORDER BY embedding <=> $1
LIMIT $3`

// Search embeds the query and returns the topK most similar documents,
// ordered by descending cosine similarity.
//
// Example:
//
//	results, err := store.Search(ctx, "manutenção do tear",
//	    knowledge.WithTopK(3))
func (s *Store) Search(ctx context.Context, query string, opts ...SearchOption) ([]Result, error) {
	cfg := buildSearchConfig(opts)

	queryCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	vec, err := s.embedder.EmbedSingle(queryCtx, query)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("query embedding timed out: %w", err)
		}
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vec) == 0 {
		return nil, errors.New("knowledge: empty embedding returned for query")
	}

	embedding := pgvector.NewVector(vec)

	var rows pgx.Rows
	if len(cfg.filter) > 0 {
		// Filter values always come from json.Marshal, never raw user input,
		// and the JSONB containment operator takes them as a bound parameter.
		filterJSON, marshalErr := json.Marshal(cfg.filter)
		if marshalErr != nil {
			return nil, fmt.Errorf("marshal filter: %w", marshalErr)
		}
		rows, err = s.db.Query(queryCtx, searchFilteredSQL, embedding, filterJSON, cfg.topK)
	} else {
		rows, err = s.db.Query(queryCtx, searchAllSQL, embedding, cfg.topK)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("search query timed out: %w", err)
		}
		return nil, fmt.Errorf("search query: %w", err)
	}
	defer rows.Close()

	results, err := scanResults(rows)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("search completed", "query_length", len(query), "results", len(results))
	return results, nil
}

func scanResults(rows pgx.Rows) ([]Result, error) {
	var results []Result
	for rows.Next() {
		var (
			doc          Document
			metadataJSON []byte
			similarity   float64
		)
		if err := rows.Scan(&doc.ID, &doc.Content, &metadataJSON, &doc.CreatedAt, &similarity); err != nil {
			return nil, fmt.Errorf("scan search row: %w", err)
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &doc.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata for document %q: %w", doc.ID, err)
			}
		}
		results = append(results, Result{Document: doc, Similarity: float32(similarity)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search rows: %w", err)
	}
	return results, nil
}

// Count returns the number of documents matching the filter,
// or the total count when the filter is empty.
func (s *Store) Count(ctx context.Context, filter map[string]string) (int, error) {
	var (
		count int64
		err   error
	)
	if len(filter) > 0 {
		filterJSON, marshalErr := json.Marshal(filter)
		if marshalErr != nil {
			return 0, fmt.Errorf("marshal filter: %w", marshalErr)
		}
		err = s.db.QueryRow(ctx, `SELECT COUNT(*) FROM documents WHERE metadata @> $1`, filterJSON).Scan(&count)
	} else {
		err = s.db.QueryRow(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return int(count), nil
}

// Delete removes a document by ID. Deleting a missing document is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("knowledge: document id must not be empty")
	}
	if _, err := s.db.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete document %q: %w", id, err)
	}
	return nil
}
