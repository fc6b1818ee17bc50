package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/example/storefront-orders/internal/domain/cart"
)

// PostgresCartStore persists carts as a JSONB list of entries
type PostgresCartStore struct {
	db *sql.DB
}

func NewPostgresCartStore(db *sql.DB) *PostgresCartStore {
	return &PostgresCartStore{db: db}
}

func (s *PostgresCartStore) LoadCart(ctx context.Context, cartID string) ([]cart.CartItem, bool, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT items FROM carts WHERE id = $1`, cartID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("select cart: %w", err)
	}

	var items []cart.CartItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, false, fmt.Errorf("unmarshal cart items: %w", err)
	}
	return items, true, nil
}

func (s *PostgresCartStore) SaveCart(ctx context.Context, cartID, userID string, items []cart.CartItem) error {
	if items == nil {
		items = []cart.CartItem{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshal cart items: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO carts (id, user_id, items, updated_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (id) DO UPDATE SET items = EXCLUDED.items, updated_at = NOW()`,
		cartID, userID, string(data),
	)
	if err != nil {
		return fmt.Errorf("upsert cart: %w", err)
	}
	return nil
}
