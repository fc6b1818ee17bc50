package readmodel

import (
	"time"

	"github.com/shopspring/decimal"
)

// CartItemReadModel represents an item in the cart
type CartItemReadModel struct {
	ProductID   string          `json:"product_id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	ImageURL    string          `json:"image_url,omitempty"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

// CartReadModel is the read model for shopping cart
type CartReadModel struct {
	ID       string              `json:"id"`
	UserID   string              `json:"user_id"`
	Items    []CartItemReadModel `json:"items"`
	Total    decimal.Decimal     `json:"total"`
	Count    int                 `json:"count"`
	Quantity int                 `json:"quantity"`
}

// OrderItemReadModel represents an item in an order joined with its product name
type OrderItemReadModel struct {
	ID        int64           `json:"id"`
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// OrderReadModel is the read model for orders
type OrderReadModel struct {
	ID        string               `json:"id"`
	UserID    string               `json:"user_id"`
	Items     []OrderItemReadModel `json:"items"`
	Total     decimal.Decimal      `json:"total"`
	Status    string               `json:"status"`
	CreatedAt time.Time            `json:"created_at"`
}

// TopProductReadModel is a product ranked by purchased quantity
type TopProductReadModel struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	Spent     decimal.Decimal `json:"spent"`
}

// UserStatsReadModel summarises the orders of one user
type UserStatsReadModel struct {
	UserID      string                `json:"user_id"`
	OrderCount  int                   `json:"order_count"`
	TotalSpent  decimal.Decimal       `json:"total_spent"`
	TopProducts []TopProductReadModel `json:"top_products"`
}

// StatusTotalReadModel aggregates orders sharing a status
type StatusTotalReadModel struct {
	Status string          `json:"status"`
	Orders int             `json:"orders"`
	Total  decimal.Decimal `json:"total"`
}

// DailyTotalReadModel aggregates orders created on one UTC day
type DailyTotalReadModel struct {
	Day    string          `json:"day"`
	Orders int             `json:"orders"`
	Total  decimal.Decimal `json:"total"`
}

// DashboardReadModel is the admin overview over all orders
type DashboardReadModel struct {
	Orders   int                    `json:"orders"`
	Revenue  decimal.Decimal        `json:"revenue"`
	ByStatus []StatusTotalReadModel `json:"by_status"`
	ByDay    []DailyTotalReadModel  `json:"by_day"`
}
