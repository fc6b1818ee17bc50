package order

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

var (
	ErrOrderNotFound  = errors.New("order not found")
	ErrEmptyCart      = errors.New("cart is empty")
	ErrOrderCreate    = errors.New("failed to create order")
	ErrOrderItems     = errors.New("failed to create order items")
	ErrFetch          = errors.New("failed to fetch orders")
	ErrTimeout        = errors.New("backend step timed out")
	ErrInvalidStatus  = errors.New("invalid order status transition")
	ErrOrderCancelled = errors.New("order is already cancelled")
	ErrOrderCompleted = errors.New("order is already completed")
	ErrInvalidFilter  = errors.New("invalid status filter")
	ErrInvalidSort    = errors.New("invalid sort order")
	ErrInvalidItem    = errors.New("order item must have a product, quantity >= 1 and price >= 0")
)

// validTransitions defines allowed state transitions
var validTransitions = map[Status][]Status{
	StatusPending:   {StatusCompleted, StatusCancelled},
	StatusCompleted: {}, // terminal state
	StatusCancelled: {}, // terminal state
}

// Valid reports whether s is one of the persisted statuses.
func (s Status) Valid() bool {
	_, ok := validTransitions[s]
	return ok
}

// ParseStatus validates a status read from storage.
func ParseStatus(s string) (Status, error) {
	status := Status(s)
	if !status.Valid() {
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidStatus, s)
	}
	return status, nil
}

type Order struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	// Email is the recipient of status emails for the order.
	Email     string          `json:"-"`
	Items     []OrderItem     `json:"items"`
	Total     decimal.Decimal `json:"total"`
	Status    Status          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

// OrderItem is a line of an order. Price is the snapshot taken at checkout; Name is
// filled from the product catalog on reads.
type OrderItem struct {
	ID        int64           `json:"id,omitempty"`
	OrderID   string          `json:"order_id,omitempty"`
	ProductID string          `json:"product_id"`
	Name      string          `json:"name,omitempty"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// Subtotal returns price * quantity.
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

func (i OrderItem) validate() error {
	if strings.TrimSpace(i.ProductID) == "" || i.Quantity < 1 || i.Price.IsNegative() {
		return fmt.Errorf("%w: product %q quantity %d price %s", ErrInvalidItem, i.ProductID, i.Quantity, i.Price)
	}
	return nil
}

// ComputeTotal sums the subtotals of items.
func ComputeTotal(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// NewPending builds a pending order for userID from items. ID and CreatedAt are
// assigned by the store on insert.
func NewPending(userID string, items []OrderItem) (*Order, error) {
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}
	copied := make([]OrderItem, len(items))
	for i, item := range items {
		if err := item.validate(); err != nil {
			return nil, err
		}
		copied[i] = item
	}
	return &Order{
		UserID: userID,
		Items:  copied,
		Total:  ComputeTotal(copied),
		Status: StatusPending,
	}, nil
}

// CanTransitionTo checks if the order can transition to the target status
func (o *Order) CanTransitionTo(target Status) bool {
	allowed, exists := validTransitions[o.Status]
	if !exists {
		return false
	}
	for _, s := range allowed {
		if s == target {
			return true
		}
	}
	return false
}

// TransitionError returns an appropriate error for an invalid transition
func (o *Order) TransitionError(target Status) error {
	switch {
	case o.Status == StatusCancelled:
		return ErrOrderCancelled
	case o.Status == StatusCompleted:
		return ErrOrderCompleted
	default:
		return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidStatus, o.Status, target)
	}
}
