package supervisor

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/weftworks/loombot/internal/log"
)

// DB is the subset of pgxpool.Pool the directory needs.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Directory enumerates eligible users from the users table.
// It implements UserDirectory.
type Directory struct {
	db     DB
	logger log.Logger
}

// NewDirectory creates a Directory over the given connection pool.
func NewDirectory(db DB, logger log.Logger) (*Directory, error) {
	if db == nil {
		return nil, errors.New("supervisor: db is required")
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Directory{
		db:     db,
		logger: logger.With("component", "user_directory"),
	}, nil
}

const activeUsersSQL = `
SELECT user_id FROM users
WHERE active
ORDER BY user_id`

// ActiveUsers returns the ids of users currently eligible for a session.
func (d *Directory) ActiveUsers(ctx context.Context) ([]string, error) {
	rows, err := d.db.Query(ctx, activeUsersSQL)
	if err != nil {
		return nil, fmt.Errorf("query active users: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		users = append(users, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}

	d.logger.Debug("users enumerated", "count", len(users))
	return users, nil
}
