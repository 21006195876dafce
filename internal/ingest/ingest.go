// Package ingest loads documentation rows from relational tables, fragments
// them, and writes the fragments into the knowledge store for retrieval.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/weftworks/loombot/internal/knowledge"
)

// Querier is the subset of pgxpool.Pool the ingester needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// DocumentWriter receives the chunked documents. *knowledge.Store satisfies it.
type DocumentWriter interface {
	AddBatch(ctx context.Context, docs []knowledge.Document) error
}

// Source describes one documentation table and how its rows become documents.
type Source struct {
	// Table is the table to read, selected in full.
	Table string
	// NameColumn, when set, is copied into the document metadata as "name".
	NameColumn string
	// DocType, when set, is copied into the document metadata as "type".
	DocType string
	// ContentColumn, when set, marks the table as holding one JSON document
	// per row in that column; the remaining columns become metadata.
	ContentColumn string
	// MetadataColumns lists the columns carried into metadata for
	// JSON-column tables.
	MetadataColumns []string
}

// DefaultSources lists the mill's documentation tables: the product catalog
// plus one JSON-document table per production sector.
func DefaultSources() []Source {
	sources := []Source{
		{Table: "products", NameColumn: "product_name", DocType: "product"},
	}
	for _, table := range []string{
		"tecelagem_e_revisao",
		"mantas",
		"recepcao_de_materiais",
		"preparacao_de_fios",
		"pean_sean_felts_PSF",
		"metrologia",
		"expedicao",
		"acabamento",
	} {
		sources = append(sources, Source{
			Table:           table,
			ContentColumn:   "file_content",
			MetadataColumns: []string{"id", "file_name"},
		})
	}
	return sources
}

// Ingester reads documentation sources and writes chunked documents.
type Ingester struct {
	db     Querier
	writer DocumentWriter
	chunk  Chunker
	logger *slog.Logger
}

// Config holds the ingester dependencies.
type Config struct {
	DB     Querier
	Writer DocumentWriter
	Chunk  Chunker
	Logger *slog.Logger
}

// New creates an Ingester. Chunk defaults to a WindowChunker with the
// default size and overlap.
func New(cfg Config) (*Ingester, error) {
	if cfg.DB == nil {
		return nil, fmt.Errorf("ingest: database is required")
	}
	if cfg.Writer == nil {
		return nil, fmt.Errorf("ingest: document writer is required")
	}
	if cfg.Chunk == nil {
		cfg.Chunk = WindowChunker(DefaultChunkSize, DefaultChunkOverlap)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Ingester{
		db:     cfg.DB,
		writer: cfg.Writer,
		chunk:  cfg.Chunk,
		logger: cfg.Logger.With("component", "ingest"),
	}, nil
}

// Run ingests every source. A source that fails is logged and skipped so one
// broken table does not abort the whole indexing pass. It returns the number
// of document fragments written.
func (in *Ingester) Run(ctx context.Context, sources []Source) (int, error) {
	if len(sources) == 0 {
		sources = DefaultSources()
	}

	total := 0
	for _, src := range sources {
		docs, err := in.load(ctx, src)
		if err != nil {
			in.logger.Error("failed to load source", "table", src.Table, "error", err)
			continue
		}
		if len(docs) == 0 {
			in.logger.Warn("source yielded no documents", "table", src.Table)
			continue
		}

		chunks := in.chunkDocuments(docs)
		if err := in.writer.AddBatch(ctx, chunks); err != nil {
			return total, fmt.Errorf("indexing table %s: %w", src.Table, err)
		}
		total += len(chunks)
		in.logger.Info("indexed source",
			"table", src.Table,
			"documents", len(docs),
			"fragments", len(chunks))
	}
	return total, nil
}

type sourceDocument struct {
	content  string
	metadata map[string]string
}

func (in *Ingester) load(ctx context.Context, src Source) ([]sourceDocument, error) {
	if src.ContentColumn != "" {
		return in.loadJSONColumn(ctx, src)
	}
	return in.loadRows(ctx, src)
}

// loadRows turns each table row into one document whose content is the row
// rendered as indented JSON, keyed by column name.
func (in *Ingester) loadRows(ctx context.Context, src Source) ([]sourceDocument, error) {
	rows, err := in.db.Query(ctx, fmt.Sprintf("SELECT * FROM %s", src.Table))
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", src.Table, err)
	}
	defer rows.Close()

	var docs []sourceDocument
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("reading row from %s: %w", src.Table, err)
		}

		fields := rows.FieldDescriptions()
		row := make(map[string]string, len(fields))
		for i, fd := range fields {
			if i < len(values) {
				row[fd.Name] = strings.TrimSpace(stringify(values[i]))
			}
		}

		content, err := marshalRow(row)
		if err != nil {
			return nil, fmt.Errorf("encoding row from %s: %w", src.Table, err)
		}

		metadata := map[string]string{"source_table": src.Table}
		if id, ok := row["id"]; ok {
			metadata["id"] = id
		}
		if src.NameColumn != "" {
			if name, ok := row[src.NameColumn]; ok {
				metadata["name"] = name
			}
		}
		if src.DocType != "" {
			metadata["type"] = src.DocType
		}
		docs = append(docs, sourceDocument{content: content, metadata: metadata})
	}
	return docs, rows.Err()
}

// loadJSONColumn reads tables where each row stores a whole document as a
// JSON object; the object's values joined by blank lines become the content.
func (in *Ingester) loadJSONColumn(ctx context.Context, src Source) ([]sourceDocument, error) {
	columns := append(append([]string{}, src.MetadataColumns...), src.ContentColumn)
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(columns, ", "), src.Table)

	rows, err := in.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", src.Table, err)
	}
	defer rows.Close()

	var docs []sourceDocument
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("reading row from %s: %w", src.Table, err)
		}
		if len(values) != len(columns) {
			return nil, fmt.Errorf("table %s: expected %d columns, got %d", src.Table, len(columns), len(values))
		}

		raw := stringify(values[len(values)-1])
		if raw == "" {
			continue
		}

		var payload map[string]any
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			in.logger.Warn("skipping row with invalid JSON content", "table", src.Table)
			continue
		}

		keys := make([]string, 0, len(payload))
		for k := range payload {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			if v := strings.TrimSpace(stringify(payload[k])); v != "" {
				parts = append(parts, v)
			}
		}

		metadata := map[string]string{"source_table": src.Table}
		for i, col := range src.MetadataColumns {
			metadata[col] = stringify(values[i])
		}
		docs = append(docs, sourceDocument{
			content:  strings.Join(parts, "\n\n"),
			metadata: metadata,
		})
	}
	return docs, rows.Err()
}

// chunkDocuments fragments each document, assigning every fragment a fresh
// UUID and its position within the parent document.
func (in *Ingester) chunkDocuments(docs []sourceDocument) []knowledge.Document {
	var out []knowledge.Document
	for _, doc := range docs {
		for i, chunk := range in.chunk(doc.content) {
			metadata := make(map[string]string, len(doc.metadata)+1)
			for k, v := range doc.metadata {
				metadata[k] = v
			}
			metadata["chunk_index"] = fmt.Sprintf("%d", i)

			out = append(out, knowledge.Document{
				ID:       uuid.NewString(),
				Content:  chunk,
				Metadata: metadata,
			})
		}
	}
	return out
}

func marshalRow(row map[string]string) (string, error) {
	data, err := json.MarshalIndent(row, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
