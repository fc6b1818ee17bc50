package query

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/example/storefront-orders/internal/auth"
	"github.com/example/storefront-orders/internal/domain/cart"
	"github.com/example/storefront-orders/internal/domain/order"
	"github.com/example/storefront-orders/internal/infrastructure/store"
	"github.com/shopspring/decimal"
)

// TopProductsLimit caps the ranking returned by UserStats.
const TopProductsLimit = 5

type Handler struct {
	orders      store.OrderReader
	carts       *cart.Service
	stepTimeout time.Duration
}

func NewHandler(orders store.OrderReader, carts *cart.Service, stepTimeout time.Duration) *Handler {
	if stepTimeout <= 0 {
		stepTimeout = 5 * time.Second
	}
	return &Handler{orders: orders, carts: carts, stepTimeout: stepTimeout}
}

// read runs fn under the step timeout and maps every failure to ErrFetch,
// or ErrTimeout when the deadline expired.
func (h *Handler) read(ctx context.Context, fn func(ctx context.Context) error) error {
	stepCtx, cancel := context.WithTimeout(ctx, h.stepTimeout)
	defer cancel()

	err := fn(stepCtx)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(stepCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w: %v", order.ErrFetch, order.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", order.ErrFetch, err)
}

// Cart
func (h *Handler) GetCart(ctx context.Context) (*CartReadModel, error) {
	p, err := auth.PrincipalFromContext(ctx)
	if err != nil {
		return nil, err
	}
	var c *cart.Cart
	err = h.read(ctx, func(ctx context.Context) error {
		var err error
		c, err = h.carts.Load(ctx, p.ID)
		return err
	})
	if err != nil {
		log.Printf("[Query] Error loading cart of user %s: %v", p.ID, err)
		return nil, err
	}
	return NewCartReadModel(c), nil
}

// NewCartReadModel converts a cart aggregate to its view.
func NewCartReadModel(c *cart.Cart) *CartReadModel {
	items := c.Items()
	view := &CartReadModel{
		ID:       c.ID,
		UserID:   c.UserID,
		Items:    make([]CartItemReadModel, 0, len(items)),
		Total:    c.Total(),
		Count:    c.Count(),
		Quantity: c.Quantity(),
	}
	for _, item := range items {
		view.Items = append(view.Items, CartItemReadModel{
			ProductID:   item.ProductID,
			Name:        item.Name,
			Description: item.Description,
			ImageURL:    item.ImageURL,
			Quantity:    item.Quantity,
			Price:       item.Price,
			Subtotal:    item.Subtotal(),
		})
	}
	return view
}

// Orders

// ListOrders returns the principal's orders matching filter in the given
// creation order, each with its items and product names.
func (h *Handler) ListOrders(ctx context.Context, filter order.StatusFilter, sortOrder order.SortOrder) ([]*OrderReadModel, error) {
	p, err := auth.PrincipalFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if filter == "" {
		filter = order.FilterAll
	}
	if filter != order.FilterAll && !order.Status(filter).Valid() {
		return nil, fmt.Errorf("%w: %q", order.ErrInvalidFilter, filter)
	}
	switch sortOrder {
	case "":
		sortOrder = order.SortDesc
	case order.SortAsc, order.SortDesc:
	default:
		return nil, fmt.Errorf("%w: %q", order.ErrInvalidSort, sortOrder)
	}

	var orders []order.Order
	err = h.read(ctx, func(ctx context.Context) error {
		var err error
		orders, err = h.orders.ListByUser(ctx, p.ID, sortOrder)
		return err
	})
	if err != nil {
		log.Printf("[Query] Error listing orders of user %s: %v", p.ID, err)
		return nil, err
	}
	orders = order.FilterOrders(orders, filter)

	byOrder, err := h.itemsFor(ctx, orders)
	if err != nil {
		log.Printf("[Query] Error loading items for user %s: %v", p.ID, err)
		return nil, err
	}

	out := make([]*OrderReadModel, 0, len(orders))
	for _, o := range orders {
		out = append(out, newOrderReadModel(o, byOrder[o.ID]))
	}
	return out, nil
}

func (h *Handler) itemsFor(ctx context.Context, orders []order.Order) (map[string][]order.OrderItem, error) {
	byOrder := make(map[string][]order.OrderItem, len(orders))
	if len(orders) == 0 {
		return byOrder, nil
	}
	ids := make([]string, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}

	var items []order.OrderItem
	err := h.read(ctx, func(ctx context.Context) error {
		var err error
		items, err = h.orders.ItemsForOrders(ctx, ids)
		return err
	})
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		byOrder[item.OrderID] = append(byOrder[item.OrderID], item)
	}
	return byOrder, nil
}

func newOrderReadModel(o order.Order, items []order.OrderItem) *OrderReadModel {
	view := &OrderReadModel{
		ID:        o.ID,
		UserID:    o.UserID,
		Items:     make([]OrderItemReadModel, 0, len(items)),
		Total:     o.Total,
		Status:    string(o.Status),
		CreatedAt: o.CreatedAt,
	}
	for _, item := range items {
		view.Items = append(view.Items, OrderItemReadModel{
			ID:        item.ID,
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			Price:     item.Price,
			Subtotal:  item.Subtotal(),
		})
	}
	return view
}

// UserStats summarises every order of the principal, whatever its status.
func (h *Handler) UserStats(ctx context.Context) (*UserStatsReadModel, error) {
	p, err := auth.PrincipalFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var orders []order.Order
	err = h.read(ctx, func(ctx context.Context) error {
		var err error
		orders, err = h.orders.ListByUser(ctx, p.ID, order.SortAsc)
		return err
	})
	if err != nil {
		return nil, err
	}
	byOrder, err := h.itemsFor(ctx, orders)
	if err != nil {
		return nil, err
	}

	stats := &UserStatsReadModel{
		UserID:      p.ID,
		OrderCount:  len(orders),
		TotalSpent:  decimal.Zero,
		TopProducts: []TopProductReadModel{},
	}
	ranked := make(map[string]*TopProductReadModel)
	for _, o := range orders {
		stats.TotalSpent = stats.TotalSpent.Add(o.Total)
		for _, item := range byOrder[o.ID] {
			top, ok := ranked[item.ProductID]
			if !ok {
				top = &TopProductReadModel{ProductID: item.ProductID, Name: item.Name, Spent: decimal.Zero}
				ranked[item.ProductID] = top
			}
			top.Quantity += item.Quantity
			top.Spent = top.Spent.Add(item.Subtotal())
		}
	}
	for _, top := range ranked {
		stats.TopProducts = append(stats.TopProducts, *top)
	}
	sort.Slice(stats.TopProducts, func(i, j int) bool {
		a, b := stats.TopProducts[i], stats.TopProducts[j]
		if a.Quantity != b.Quantity {
			return a.Quantity > b.Quantity
		}
		return a.ProductID < b.ProductID
	})
	if len(stats.TopProducts) > TopProductsLimit {
		stats.TopProducts = stats.TopProducts[:TopProductsLimit]
	}
	return stats, nil
}

// Dashboard aggregates all orders by status and by UTC creation day.
// Callers must restrict it to administrators.
func (h *Handler) Dashboard(ctx context.Context) (*DashboardReadModel, error) {
	var orders []order.Order
	err := h.read(ctx, func(ctx context.Context) error {
		var err error
		orders, err = h.orders.ListAll(ctx)
		return err
	})
	if err != nil {
		log.Printf("[Query] Error listing all orders: %v", err)
		return nil, err
	}

	dash := &DashboardReadModel{
		Revenue:  decimal.Zero,
		ByStatus: []StatusTotalReadModel{},
		ByDay:    []DailyTotalReadModel{},
	}
	byStatus := make(map[string]*StatusTotalReadModel)
	byDay := make(map[string]*DailyTotalReadModel)
	for _, o := range orders {
		dash.Orders++
		dash.Revenue = dash.Revenue.Add(o.Total)

		s, ok := byStatus[string(o.Status)]
		if !ok {
			s = &StatusTotalReadModel{Status: string(o.Status), Total: decimal.Zero}
			byStatus[string(o.Status)] = s
		}
		s.Orders++
		s.Total = s.Total.Add(o.Total)

		day := o.CreatedAt.UTC().Format(time.DateOnly)
		d, ok := byDay[day]
		if !ok {
			d = &DailyTotalReadModel{Day: day, Total: decimal.Zero}
			byDay[day] = d
		}
		d.Orders++
		d.Total = d.Total.Add(o.Total)
	}

	for _, s := range byStatus {
		dash.ByStatus = append(dash.ByStatus, *s)
	}
	sort.Slice(dash.ByStatus, func(i, j int) bool { return dash.ByStatus[i].Status < dash.ByStatus[j].Status })
	for _, d := range byDay {
		dash.ByDay = append(dash.ByDay, *d)
	}
	sort.Slice(dash.ByDay, func(i, j int) bool { return dash.ByDay[i].Day < dash.ByDay[j].Day })
	return dash, nil
}
