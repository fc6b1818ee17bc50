package cart

import (
	"errors"
	"sync"
	"time"

	"github.com/example/storefront-orders/internal/domain/order"
	"github.com/example/storefront-orders/internal/domain/product"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrInvalidProduct  = errors.New("product_id is required")
)

// CartItem is a product snapshot plus the selected quantity. Quantity is always >= 1.
type CartItem struct {
	ProductID   string          `json:"product_id"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description,omitempty"`
	ImageURL    string          `json:"image_url,omitempty"`
	Quantity    int             `json:"quantity"`
}

func (i CartItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Cart holds at most one entry per product, in insertion order. All methods are
// safe for concurrent use.
type Cart struct {
	ID     string
	UserID string

	mu    sync.Mutex
	items []CartItem
}

// GetCartID returns the cart ID for a user
func GetCartID(userID string) string {
	return "cart-" + userID
}

// New returns the cart for userID holding items. Entries sharing a product id are
// merged and entries with quantity < 1 are dropped.
func New(userID string, items ...CartItem) *Cart {
	c := &Cart{ID: GetCartID(userID), UserID: userID}
	for _, item := range items {
		if item.ProductID == "" || item.Quantity < 1 {
			continue
		}
		if idx := c.indexOf(item.ProductID); idx >= 0 {
			c.items[idx].Quantity += item.Quantity
			continue
		}
		c.items = append(c.items, item)
	}
	return c
}

func (c *Cart) indexOf(productID string) int {
	for i, item := range c.items {
		if item.ProductID == productID {
			return i
		}
	}
	return -1
}

// Add puts one unit of p in the cart. An existing entry keeps its original
// product snapshot and has its quantity incremented.
func (c *Cart) Add(p product.Product) error {
	return c.AddQuantity(p, 1)
}

// AddQuantity behaves like n calls to Add.
func (c *Cart) AddQuantity(p product.Product, n int) error {
	if p.ID == "" {
		return ErrInvalidProduct
	}
	if n < 1 {
		return ErrInvalidQuantity
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if idx := c.indexOf(p.ID); idx >= 0 {
		c.items[idx].Quantity += n
		return nil
	}
	c.items = append(c.items, CartItem{
		ProductID:   p.ID,
		Name:        p.Name,
		Price:       p.Price,
		Description: p.Description,
		ImageURL:    p.ImageURL,
		Quantity:    n,
	})
	return nil
}

// Decrement lowers the quantity of productID by one, removing the entry when it
// reaches zero. Absent products are ignored.
func (c *Cart) Decrement(productID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.indexOf(productID)
	if idx < 0 {
		return
	}
	if c.items[idx].Quantity > 1 {
		c.items[idx].Quantity--
		return
	}
	c.items = append(c.items[:idx], c.items[idx+1:]...)
}

// Remove deletes the entry for productID if present.
func (c *Cart) Remove(productID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if idx := c.indexOf(productID); idx >= 0 {
		c.items = append(c.items[:idx], c.items[idx+1:]...)
	}
}

func (c *Cart) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = nil
}

// Release subtracts the quantities captured in snap. When the cart has not
// changed since the snapshot this empties it; entries added afterwards survive.
func (c *Cart) Release(snap Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, taken := range snap.Items {
		idx := c.indexOf(taken.ProductID)
		if idx < 0 {
			continue
		}
		if c.items[idx].Quantity > taken.Quantity {
			c.items[idx].Quantity -= taken.Quantity
			continue
		}
		c.items = append(c.items[:idx], c.items[idx+1:]...)
	}
}

func (c *Cart) Total() decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return total(c.items)
}

// Count returns the number of distinct entries.
func (c *Cart) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Quantity returns the sum of all entry quantities.
func (c *Cart) Quantity() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, item := range c.items {
		n += item.Quantity
	}
	return n
}

// Items returns a copy of the entries in insertion order.
func (c *Cart) Items() []CartItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyItems(c.items)
}

// Snapshot is an immutable view of a cart at one instant.
type Snapshot struct {
	CartID  string          `json:"cart_id"`
	UserID  string          `json:"user_id"`
	Items   []CartItem      `json:"items"`
	Total   decimal.Decimal `json:"total"`
	TakenAt time.Time       `json:"taken_at"`
}

func (c *Cart) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		CartID:  c.ID,
		UserID:  c.UserID,
		Items:   copyItems(c.items),
		Total:   total(c.items),
		TakenAt: time.Now().UTC(),
	}
}

func (s Snapshot) Empty() bool {
	return len(s.Items) == 0
}

// OrderItems converts the snapshot entries to order lines priced at snapshot time.
func (s Snapshot) OrderItems() []order.OrderItem {
	items := make([]order.OrderItem, 0, len(s.Items))
	for _, item := range s.Items {
		items = append(items, order.OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			Price:     item.Price,
		})
	}
	return items
}

func total(items []CartItem) decimal.Decimal {
	sum := decimal.Zero
	for _, item := range items {
		sum = sum.Add(item.Subtotal())
	}
	return sum
}

func copyItems(items []CartItem) []CartItem {
	out := make([]CartItem, len(items))
	copy(out, items)
	return out
}
