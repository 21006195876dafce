package knowledge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/weftworks/loombot/internal/log"
)

// fakeEmbedder returns a deterministic vector per text.
type fakeEmbedder struct {
	calls int
	fail  bool
}

func (f *fakeEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vecs, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.fail {
		return nil, errors.New("embedder unavailable")
	}
	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		vecs[i] = []float32{float32(len(text)), 1, 2}
	}
	return vecs, nil
}

// fakeQuerier records queries and serves canned rows.
type fakeQuerier struct {
	execSQL  []string
	execArgs [][]any

	querySQL  []string
	queryArgs [][]any
	rows      *fakeRows
	queryErr  error

	countValue int64
}

func (f *fakeQuerier) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execSQL = append(f.execSQL, sql)
	f.execArgs = append(f.execArgs, args)
	return pgconn.CommandTag{}, nil
}

func (f *fakeQuerier) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	f.querySQL = append(f.querySQL, sql)
	f.queryArgs = append(f.queryArgs, args)
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if f.rows == nil {
		f.rows = &fakeRows{}
	}
	return f.rows, nil
}

func (f *fakeQuerier) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	f.querySQL = append(f.querySQL, sql)
	f.queryArgs = append(f.queryArgs, args)
	return &fakeRow{count: f.countValue}
}

type fakeRow struct {
	count int64
}

func (r *fakeRow) Scan(dest ...any) error {
	if len(dest) != 1 {
		return fmt.Errorf("expected 1 destination, got %d", len(dest))
	}
	ptr, ok := dest[0].(*int64)
	if !ok {
		return fmt.Errorf("unexpected destination type %T", dest[0])
	}
	*ptr = r.count
	return nil
}

// fakeRows implements pgx.Rows over an in-memory result set of
// (id, content, metadata, created_at, similarity) tuples.
type fakeRows struct {
	data [][]any
	pos  int
}

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.data) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.data[r.pos-1]
	if len(dest) != len(row) {
		return fmt.Errorf("expected %d destinations, got %d", len(row), len(dest))
	}
	for i, src := range row {
		switch d := dest[i].(type) {
		case *string:
			*d = src.(string)
		case *[]byte:
			*d = src.([]byte)
		case *time.Time:
			*d = src.(time.Time)
		case *float64:
			*d = src.(float64)
		default:
			return fmt.Errorf("unexpected destination type %T", dest[i])
		}
	}
	return nil
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return nil, nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func newTestStore(t *testing.T, db *fakeQuerier, embedder *fakeEmbedder) *Store {
	t.Helper()
	store, err := New(db, embedder, log.NewNop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return store
}

func TestNewValidation(t *testing.T) {
	if _, err := New(nil, &fakeEmbedder{}, log.NewNop()); err == nil {
		t.Error("New(nil querier) expected error")
	}
	if _, err := New(&fakeQuerier{}, nil, log.NewNop()); err == nil {
		t.Error("New(nil embedder) expected error")
	}
	if _, err := New(&fakeQuerier{}, &fakeEmbedder{}, nil); err != nil {
		t.Errorf("New(nil logger) should default logger, got error %v", err)
	}
}

func TestAddUpsertsEmbeddedDocument(t *testing.T) {
	db := &fakeQuerier{}
	store := newTestStore(t, db, &fakeEmbedder{})

	doc := Document{
		ID:       "doc-1",
		Content:  "Procedimento de troca de agulhas",
		Metadata: map[string]string{"source": "manuals"},
	}
	if err := store.Add(context.Background(), doc); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	if len(db.execSQL) != 1 {
		t.Fatalf("expected 1 exec, got %d", len(db.execSQL))
	}
	if !strings.Contains(db.execSQL[0], "ON CONFLICT (id) DO UPDATE") {
		t.Errorf("expected upsert statement, got %q", db.execSQL[0])
	}
	if got := db.execArgs[0][0]; got != "doc-1" {
		t.Errorf("id arg = %v, want doc-1", got)
	}
}

func TestAddRejectsEmptyID(t *testing.T) {
	store := newTestStore(t, &fakeQuerier{}, &fakeEmbedder{})
	if err := store.Add(context.Background(), Document{Content: "x"}); err == nil {
		t.Error("Add() with empty id expected error")
	}
}

func TestAddBatchSingleEmbedderCall(t *testing.T) {
	db := &fakeQuerier{}
	embedder := &fakeEmbedder{}
	store := newTestStore(t, db, embedder)

	docs := []Document{
		{ID: "a", Content: "primeiro trecho"},
		{ID: "b", Content: "segundo trecho"},
		{ID: "c", Content: "terceiro trecho"},
	}
	if err := store.AddBatch(context.Background(), docs); err != nil {
		t.Fatalf("AddBatch() error = %v", err)
	}

	if embedder.calls != 1 {
		t.Errorf("embedder calls = %d, want 1", embedder.calls)
	}
	if len(db.execSQL) != len(docs) {
		t.Errorf("execs = %d, want %d", len(db.execSQL), len(docs))
	}
}

func TestAddBatchEmpty(t *testing.T) {
	db := &fakeQuerier{}
	embedder := &fakeEmbedder{}
	store := newTestStore(t, db, embedder)

	if err := store.AddBatch(context.Background(), nil); err != nil {
		t.Fatalf("AddBatch(nil) error = %v", err)
	}
	if embedder.calls != 0 || len(db.execSQL) != 0 {
		t.Error("AddBatch(nil) should not touch embedder or database")
	}
}

func TestSearchReturnsOrderedResults(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	db := &fakeQuerier{rows: &fakeRows{data: [][]any{
		{"doc-1", "troca de agulhas", []byte(`{"source":"manuals"}`), now, 0.92},
		{"doc-2", "limpeza da ramosa", []byte(`{}`), now, 0.71},
	}}}
	store := newTestStore(t, db, &fakeEmbedder{})

	results, err := store.Search(context.Background(), "agulhas", WithTopK(2))
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if results[0].Document.ID != "doc-1" || results[1].Document.ID != "doc-2" {
		t.Errorf("unexpected result order: %q, %q", results[0].Document.ID, results[1].Document.ID)
	}
	if results[0].Similarity <= results[1].Similarity {
		t.Errorf("similarities not descending: %v, %v", results[0].Similarity, results[1].Similarity)
	}
	if results[0].Document.Metadata["source"] != "manuals" {
		t.Errorf("metadata not decoded: %v", results[0].Document.Metadata)
	}

	// topK is passed as the LIMIT parameter.
	args := db.queryArgs[0]
	if args[len(args)-1] != 2 {
		t.Errorf("limit arg = %v, want 2", args[len(args)-1])
	}
}

func TestSearchWithFilterUsesContainment(t *testing.T) {
	db := &fakeQuerier{rows: &fakeRows{}}
	store := newTestStore(t, db, &fakeEmbedder{})

	if _, err := store.Search(context.Background(), "autoclave", WithFilter("source", "manuals")); err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if !strings.Contains(db.querySQL[0], "metadata @>") {
		t.Errorf("expected JSONB containment filter in query, got %q", db.querySQL[0])
	}
}

func TestSearchEmbedderFailure(t *testing.T) {
	db := &fakeQuerier{}
	store := newTestStore(t, db, &fakeEmbedder{fail: true})

	if _, err := store.Search(context.Background(), "tear"); err == nil {
		t.Fatal("Search() with failing embedder expected error")
	}
	if len(db.querySQL) != 0 {
		t.Error("database should not be queried when embedding fails")
	}
}

func TestCount(t *testing.T) {
	db := &fakeQuerier{countValue: 42}
	store := newTestStore(t, db, &fakeEmbedder{})

	count, err := store.Count(context.Background(), nil)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 42 {
		t.Errorf("Count() = %d, want 42", count)
	}

	if _, err := store.Count(context.Background(), map[string]string{"source": "manuals"}); err != nil {
		t.Fatalf("Count(filter) error = %v", err)
	}
	if !strings.Contains(db.querySQL[1], "metadata @>") {
		t.Errorf("filtered count should use containment, got %q", db.querySQL[1])
	}
}

func TestDelete(t *testing.T) {
	db := &fakeQuerier{}
	store := newTestStore(t, db, &fakeEmbedder{})

	if err := store.Delete(context.Background(), ""); err == nil {
		t.Error("Delete(\"\") expected error")
	}
	if err := store.Delete(context.Background(), "doc-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if len(db.execSQL) != 1 || !strings.Contains(db.execSQL[0], "DELETE FROM documents") {
		t.Errorf("unexpected exec statements: %v", db.execSQL)
	}
}
