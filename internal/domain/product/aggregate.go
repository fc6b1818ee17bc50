package product

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrInvalidProduct  = errors.New("product_id is required")
	ErrInvalidName     = errors.New("product name is required")
	ErrInvalidPrice    = errors.New("price must be non-negative")
)

// Product is the catalog entry as seen by the order workflow. The catalog owns it;
// this service only reads it.
type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description,omitempty"`
	ImageURL    string          `json:"image_url,omitempty"`
}

// Validate checks the fields the cart and order snapshots depend on.
func (p Product) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return ErrInvalidProduct
	}
	if strings.TrimSpace(p.Name) == "" {
		return ErrInvalidName
	}
	if p.Price.IsNegative() {
		return ErrInvalidPrice
	}
	return nil
}
