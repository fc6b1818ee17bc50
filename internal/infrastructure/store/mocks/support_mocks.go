package mocks

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/example/storefront-orders/internal/domain/cart"
	"github.com/example/storefront-orders/internal/domain/order"
	"github.com/example/storefront-orders/internal/domain/product"
	"github.com/example/storefront-orders/internal/notification"
)

// MockCartRepository is an in-memory cart.Repository
type MockCartRepository struct {
	mu    sync.Mutex
	carts map[string][]cart.CartItem

	SaveCalls []string
	LoadErr   error
	SaveErr   error
}

func NewMockCartRepository() *MockCartRepository {
	return &MockCartRepository{carts: make(map[string][]cart.CartItem)}
}

func (m *MockCartRepository) LoadCart(ctx context.Context, cartID string) ([]cart.CartItem, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LoadErr != nil {
		return nil, false, m.LoadErr
	}
	items, ok := m.carts[cartID]
	return append([]cart.CartItem(nil), items...), ok, nil
}

func (m *MockCartRepository) SaveCart(ctx context.Context, cartID, userID string, items []cart.CartItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SaveCalls = append(m.SaveCalls, cartID)
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.carts[cartID] = append([]cart.CartItem(nil), items...)
	return nil
}

// Items returns the saved entries of cartID.
func (m *MockCartRepository) Items(cartID string) []cart.CartItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]cart.CartItem(nil), m.carts[cartID]...)
}

// MockProductStore is an in-memory store.ProductStore
type MockProductStore struct {
	mu       sync.RWMutex
	products map[string]product.Product
	GetErr   error
}

func NewMockProductStore(products ...product.Product) *MockProductStore {
	m := &MockProductStore{products: make(map[string]product.Product)}
	for _, p := range products {
		m.products[p.ID] = p
	}
	return m
}

func (m *MockProductStore) GetProduct(ctx context.Context, productID string) (product.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.GetErr != nil {
		return product.Product{}, m.GetErr
	}
	p, ok := m.products[productID]
	if !ok {
		return product.Product{}, product.ErrProductNotFound
	}
	return p, nil
}

// MockLogStore records appended audit entries. Like the real stores it keeps
// the first entry of an id.
type MockLogStore struct {
	mu         sync.Mutex
	Entries    []order.LogEntry
	AppendErr  error
	AppendFunc func(ctx context.Context, entry order.LogEntry) error
}

func NewMockLogStore() *MockLogStore {
	return &MockLogStore{}
}

func (m *MockLogStore) Append(ctx context.Context, entry order.LogEntry) error {
	m.mu.Lock()
	fn, err := m.AppendFunc, m.AppendErr
	m.mu.Unlock()

	if fn != nil {
		if err := fn(ctx, entry); err != nil {
			return err
		}
	}
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.Entries {
		if e.ID == entry.ID {
			return nil
		}
	}
	m.Entries = append(m.Entries, entry)
	return nil
}

// Events returns the event names of the appended entries in order.
func (m *MockLogStore) Events() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.Entries))
	for i, e := range m.Entries {
		out[i] = e.Event
	}
	return out
}

// MockPublisher records change feed publications
type MockPublisher struct {
	mu         sync.Mutex
	Published  []PublishCall
	PublishErr error
}

// PublishCall records parameters passed to Publish
type PublishCall struct {
	Key   string
	Event any
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) Publish(ctx context.Context, key string, event any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Published = append(m.Published, PublishCall{Key: key, Event: event})
	return m.PublishErr
}

// Changes decodes the published events as order changes.
func (m *MockPublisher) Changes() []order.OrderChanged {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]order.OrderChanged, 0, len(m.Published))
	for _, p := range m.Published {
		switch ev := p.Event.(type) {
		case order.OrderChanged:
			out = append(out, ev)
		default:
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			var changed order.OrderChanged
			if json.Unmarshal(data, &changed) == nil {
				out = append(out, changed)
			}
		}
	}
	return out
}

// MockSink records notices
type MockSink struct {
	mu      sync.Mutex
	Notices []notification.Notice
}

func NewMockSink() *MockSink {
	return &MockSink{}
}

func (m *MockSink) Notify(ctx context.Context, n notification.Notice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Notices = append(m.Notices, n)
	return nil
}

// Last returns the most recent notice.
func (m *MockSink) Last() (notification.Notice, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Notices) == 0 {
		return notification.Notice{}, false
	}
	return m.Notices[len(m.Notices)-1], true
}
