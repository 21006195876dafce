package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/weftworks/loombot/internal/log"
)

// DB is the subset of pgxpool.Pool the store needs.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store reads user messages and persists assistant responses in PostgreSQL.
// It implements MessageSource and ResponseSink for every session, keyed by
// user id.
type Store struct {
	db     DB
	logger log.Logger
}

// NewStore creates a Store over the given connection pool.
func NewStore(db DB, logger log.Logger) (*Store, error) {
	if db == nil {
		return nil, errors.New("session: db is required")
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{
		db:     db,
		logger: logger.With("component", "session_store"),
	}, nil
}

// claimLatestMessageSQL atomically claims the user's newest unprocessed
// message, so a restarted session never replays old input.
const claimLatestMessageSQL = `
UPDATE chat_messages
SET processed = TRUE, processed_at = now()
WHERE id = (
    SELECT id FROM chat_messages
    WHERE user_id = $1 AND NOT processed
    ORDER BY created_at DESC, id DESC
    LIMIT 1
)
RETURNING content`

// FetchLatest returns the user's newest unprocessed message and marks it
// processed. ok is false when nothing is waiting.
func (s *Store) FetchLatest(ctx context.Context, userID string) (string, bool, error) {
	var content string
	err := s.db.QueryRow(ctx, claimLatestMessageSQL, userID).Scan(&content)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("fetch message for user %s: %w", userID, err)
	}
	return content, true, nil
}

const insertResponseSQL = `
INSERT INTO chat_responses (user_id, content)
VALUES ($1, $2)`

// Deliver persists an assistant response for the delivery channel to pick up.
func (s *Store) Deliver(ctx context.Context, userID, response string) error {
	if _, err := s.db.Exec(ctx, insertResponseSQL, userID, response); err != nil {
		return fmt.Errorf("store response for user %s: %w", userID, err)
	}
	s.logger.Debug("response stored", "user_id", userID, "length", len(response))
	return nil
}
