// Package livestate queries the plant-floor database for the current state
// of machines and running products. Results are serialized as JSON so the
// model can read them directly as tool output.
package livestate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/weftworks/loombot/internal/log"
)

// ErrNotFound indicates no row matched the requested machine.
var ErrNotFound = errors.New("livestate: no matching rows")

// Querier is the subset of pgxpool.Pool the service needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Service reads machine and product status tables.
// It is safe for concurrent use by multiple goroutines.
type Service struct {
	db     Querier
	logger log.Logger
}

// New creates a Service backed by the given querier.
func New(db Querier, logger log.Logger) (*Service, error) {
	if db == nil {
		return nil, errors.New("livestate: querier must not be nil")
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Service{
		db:     db,
		logger: logger.With("component", "livestate"),
	}, nil
}

const machineStatusSQL = `
SELECT * FROM machines_status
WHERE machine_name LIKE '%' || $1 || '%'
LIMIT 1`

const productStatusSQL = `
SELECT * FROM products_status
WHERE machine_name LIKE '%' || $1 || '%'
LIMIT 1`

const generalStatusSQL = `
SELECT * FROM products_status
JOIN machines_status ON products_status.machine_name = machines_status.machine_name`

// MachineStatus returns the status row for the machine whose name contains
// the given canonical name, as an indented JSON object.
// Returns ErrNotFound when no machine matches.
func (s *Service) MachineStatus(ctx context.Context, machineName string) (string, error) {
	return s.queryOne(ctx, machineStatusSQL, machineName)
}

// ProductStatus returns the running-product row for the machine whose name
// contains the given canonical name, as an indented JSON object.
// Returns ErrNotFound when no machine matches.
func (s *Service) ProductStatus(ctx context.Context, machineName string) (string, error) {
	return s.queryOne(ctx, productStatusSQL, machineName)
}

// GeneralStatus joins machine and product status for the whole floor and
// returns all rows as an indented JSON array.
// Returns ErrNotFound when both tables are empty.
func (s *Service) GeneralStatus(ctx context.Context) (string, error) {
	rows, err := s.db.Query(ctx, generalStatusSQL)
	if err != nil {
		return "", fmt.Errorf("query general status: %w", err)
	}
	defer rows.Close()

	records, err := rowsToMaps(rows)
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "", ErrNotFound
	}

	payload, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal general status: %w", err)
	}

	s.logger.Debug("general status fetched", "rows", len(records))
	return string(payload), nil
}

func (s *Service) queryOne(ctx context.Context, sql, machineName string) (string, error) {
	rows, err := s.db.Query(ctx, sql, machineName)
	if err != nil {
		return "", fmt.Errorf("query status for %q: %w", machineName, err)
	}
	defer rows.Close()

	records, err := rowsToMaps(rows)
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "", ErrNotFound
	}

	payload, err := json.MarshalIndent(records[0], "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal status for %q: %w", machineName, err)
	}

	s.logger.Debug("status fetched", "machine", machineName)
	return string(payload), nil
}

// rowsToMaps converts result rows to column-name keyed maps, so callers
// stay independent of the status tables' column layout.
func rowsToMaps(rows pgx.Rows) ([]map[string]any, error) {
	var records []map[string]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read row values: %w", err)
		}
		fields := rows.FieldDescriptions()
		record := make(map[string]any, len(fields))
		for i, field := range fields {
			record[field.Name] = values[i]
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status rows: %w", err)
	}
	return records, nil
}
