package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/example/storefront-orders/internal/domain/order"
	"github.com/example/storefront-orders/internal/infrastructure/store"
	"github.com/google/uuid"
)

// MockOrderStore is an in-memory OrderWriter, OrderReader and OrderStatusStore.
// Writes made inside InTx become visible only when the transaction commits.
type MockOrderStore struct {
	mu         sync.RWMutex
	orders     map[string]order.Order
	items      []order.OrderItem
	jobs       []store.ReconcileJob
	nextItemID int64

	// For tracking calls in tests
	InsertOrderCalls []order.Order
	InsertItemsCalls []InsertItemsCall
	ScheduleCalls    []store.ReconcileJob
	TransitionCalls  []TransitionCall
	ListCalls        []string
	CommitCount      int
	RollbackCount    int

	InsertOrderErr  error
	InsertItemsErr  error
	ScheduleErr     error
	CommitErr       error
	ListErr         error
	ItemsErr        error
	TransitionErr   error
	InsertOrderFunc func(ctx context.Context, o *order.Order) error
	Now             func() time.Time
}

// InsertItemsCall records parameters passed to InsertItems
type InsertItemsCall struct {
	OrderID string
	Items   []order.OrderItem
}

// TransitionCall records parameters passed to TransitionStatus
type TransitionCall struct {
	OrderID string
	From    order.Status
	To      order.Status
}

func NewMockOrderStore() *MockOrderStore {
	return &MockOrderStore{
		orders: make(map[string]order.Order),
		Now:    time.Now,
	}
}

type mockOrderTx struct {
	store  *MockOrderStore
	orders []order.Order
	items  []order.OrderItem
	jobs   []store.ReconcileJob
}

func (m *MockOrderStore) InTx(ctx context.Context, fn func(tx store.OrderTx) error) error {
	tx := &mockOrderTx{store: m}
	if err := fn(tx); err != nil {
		m.mu.Lock()
		m.RollbackCount++
		m.mu.Unlock()
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CommitErr != nil {
		m.RollbackCount++
		return m.CommitErr
	}
	for _, o := range tx.orders {
		m.orders[o.ID] = o
	}
	m.items = append(m.items, tx.items...)
	m.jobs = append(m.jobs, tx.jobs...)
	m.CommitCount++
	return nil
}

func (t *mockOrderTx) InsertOrder(ctx context.Context, o *order.Order) error {
	m := t.store
	m.mu.Lock()
	m.InsertOrderCalls = append(m.InsertOrderCalls, *o)
	fn, err, now := m.InsertOrderFunc, m.InsertOrderErr, m.Now
	m.mu.Unlock()

	if fn != nil {
		if err := fn(ctx, o); err != nil {
			return err
		}
	}
	if err != nil {
		return err
	}
	o.ID = uuid.NewString()
	o.CreatedAt = now().UTC()
	stored := *o
	stored.Items = nil
	t.orders = append(t.orders, stored)
	return nil
}

func (t *mockOrderTx) InsertItems(ctx context.Context, orderID string, items []order.OrderItem) error {
	m := t.store
	m.mu.Lock()
	defer m.mu.Unlock()

	m.InsertItemsCalls = append(m.InsertItemsCalls, InsertItemsCall{
		OrderID: orderID,
		Items:   append([]order.OrderItem(nil), items...),
	})
	if m.InsertItemsErr != nil {
		return m.InsertItemsErr
	}
	for i := range items {
		m.nextItemID++
		items[i].ID = m.nextItemID
		items[i].OrderID = orderID
		t.items = append(t.items, items[i])
	}
	return nil
}

func (t *mockOrderTx) ScheduleReconcile(ctx context.Context, job store.ReconcileJob) error {
	m := t.store
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ScheduleCalls = append(m.ScheduleCalls, job)
	if m.ScheduleErr != nil {
		return m.ScheduleErr
	}
	t.jobs = append(t.jobs, job)
	return nil
}

func (m *MockOrderStore) ListByUser(ctx context.Context, userID string, sort order.SortOrder) ([]order.Order, error) {
	m.mu.Lock()
	m.ListCalls = append(m.ListCalls, userID)
	m.mu.Unlock()

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	out := []order.Order{}
	for _, o := range m.orders {
		if o.UserID == userID {
			o.Items = []order.OrderItem{}
			out = append(out, o)
		}
	}
	order.SortOrders(out, sort)
	return out, nil
}

func (m *MockOrderStore) ListAll(ctx context.Context) ([]order.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	out := make([]order.Order, 0, len(m.orders))
	for _, o := range m.orders {
		o.Items = []order.OrderItem{}
		out = append(out, o)
	}
	order.SortOrders(out, order.SortAsc)
	return out, nil
}

func (m *MockOrderStore) ItemsForOrders(ctx context.Context, orderIDs []string) ([]order.OrderItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ItemsErr != nil {
		return nil, m.ItemsErr
	}
	wanted := make(map[string]bool, len(orderIDs))
	for _, id := range orderIDs {
		wanted[id] = true
	}
	out := []order.OrderItem{}
	for _, item := range m.items {
		if wanted[item.OrderID] {
			out = append(out, item)
		}
	}
	return out, nil
}

func (m *MockOrderStore) GetOrder(ctx context.Context, orderID string) (*order.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	return &o, nil
}

func (m *MockOrderStore) TransitionStatus(ctx context.Context, orderID string, from, to order.Status) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TransitionCalls = append(m.TransitionCalls, TransitionCall{OrderID: orderID, From: from, To: to})
	if m.TransitionErr != nil {
		return false, m.TransitionErr
	}
	o, ok := m.orders[orderID]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	m.orders[orderID] = o
	return true, nil
}

// AddOrder seeds a committed order and its items.
func (m *MockOrderStore) AddOrder(o order.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range o.Items {
		m.nextItemID++
		item.ID = m.nextItemID
		item.OrderID = o.ID
		m.items = append(m.items, item)
	}
	o.Items = nil
	m.orders[o.ID] = o
}

// Orders returns the committed orders.
func (m *MockOrderStore) Orders() []order.Order {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]order.Order, 0, len(m.orders))
	for _, o := range m.orders {
		out = append(out, o)
	}
	return out
}

// Items returns the committed order items.
func (m *MockOrderStore) Items() []order.OrderItem {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]order.OrderItem(nil), m.items...)
}

// Jobs returns the committed reconciliation jobs.
func (m *MockOrderStore) Jobs() []store.ReconcileJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]store.ReconcileJob(nil), m.jobs...)
}
