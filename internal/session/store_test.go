package session

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/weftworks/loombot/internal/log"
)

type fakeDB struct {
	sql      []string
	args     [][]any
	content  string
	rowErr   error
	execErr  error
}

type fakeRow struct {
	content string
	err     error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*string)) = r.content
	return nil
}

func (f *fakeDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	f.sql = append(f.sql, sql)
	f.args = append(f.args, args)
	return fakeRow{content: f.content, err: f.rowErr}
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.sql = append(f.sql, sql)
	f.args = append(f.args, args)
	return pgconn.CommandTag{}, f.execErr
}

func TestFetchLatestClaimsMessage(t *testing.T) {
	db := &fakeDB{content: "qual o status do tear 2?"}
	store, err := NewStore(db, log.NewNop())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	msg, ok, err := store.FetchLatest(context.Background(), "user-a")
	if err != nil {
		t.Fatalf("FetchLatest() error = %v", err)
	}
	if !ok || msg != "qual o status do tear 2?" {
		t.Errorf("FetchLatest() = %q, %v", msg, ok)
	}
	if !strings.Contains(db.sql[0], "SET processed = TRUE") {
		t.Errorf("claim must mark the message processed, got %q", db.sql[0])
	}
	if db.args[0][0] != "user-a" {
		t.Errorf("user arg = %v", db.args[0][0])
	}
}

func TestFetchLatestNoMessage(t *testing.T) {
	db := &fakeDB{rowErr: pgx.ErrNoRows}
	store, _ := NewStore(db, log.NewNop())

	_, ok, err := store.FetchLatest(context.Background(), "user-a")
	if err != nil {
		t.Fatalf("FetchLatest() error = %v", err)
	}
	if ok {
		t.Error("ok = true with no pending message")
	}
}

func TestFetchLatestQueryFailure(t *testing.T) {
	db := &fakeDB{rowErr: errors.New("connection refused")}
	store, _ := NewStore(db, log.NewNop())

	if _, _, err := store.FetchLatest(context.Background(), "user-a"); err == nil {
		t.Error("expected error from failing query")
	}
}

func TestDeliverInsertsResponse(t *testing.T) {
	db := &fakeDB{}
	store, _ := NewStore(db, log.NewNop())

	if err := store.Deliver(context.Background(), "user-a", "O tear está operando."); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if !strings.Contains(db.sql[0], "INSERT INTO chat_responses") {
		t.Errorf("sql = %q", db.sql[0])
	}
	if db.args[0][1] != "O tear está operando." {
		t.Errorf("content arg = %v", db.args[0][1])
	}
}
