package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/example/storefront-orders/internal/domain/product"
)

// PostgresProductStore reads the product catalog
type PostgresProductStore struct {
	db *sql.DB
}

func NewPostgresProductStore(db *sql.DB) *PostgresProductStore {
	return &PostgresProductStore{db: db}
}

func (s *PostgresProductStore) GetProduct(ctx context.Context, productID string) (product.Product, error) {
	var p product.Product
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, price, COALESCE(description, ''), COALESCE(image_url, '')
		 FROM products WHERE id = $1`,
		productID,
	).Scan(&p.ID, &p.Name, &p.Price, &p.Description, &p.ImageURL)
	if errors.Is(err, sql.ErrNoRows) {
		return product.Product{}, product.ErrProductNotFound
	}
	if err != nil {
		return product.Product{}, fmt.Errorf("select product %s: %w", productID, err)
	}
	return p, nil
}
