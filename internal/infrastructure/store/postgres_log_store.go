package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/example/storefront-orders/internal/domain/order"
)

// PostgresLogStore appends audit entries to the logs table
type PostgresLogStore struct {
	db *sql.DB
}

func NewPostgresLogStore(db *sql.DB) *PostgresLogStore {
	return &PostgresLogStore{db: db}
}

// Append stores entry. An entry whose id is already stored is left as is.
func (s *PostgresLogStore) Append(ctx context.Context, entry order.LogEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO logs (id, event, payload, created_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO NOTHING`,
		entry.ID, entry.Event, string(entry.Payload), entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append log %s: %w", entry.Event, err)
	}
	return nil
}
