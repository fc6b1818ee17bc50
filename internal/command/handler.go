package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/example/storefront-orders/internal/auth"
	"github.com/example/storefront-orders/internal/domain/cart"
	"github.com/example/storefront-orders/internal/domain/order"
	"github.com/example/storefront-orders/internal/domain/product"
	"github.com/example/storefront-orders/internal/infrastructure/store"
	"github.com/example/storefront-orders/internal/metrics"
	"github.com/example/storefront-orders/internal/notification"
	"golang.org/x/sync/singleflight"
)

// ChangePublisher publishes order changes on the change feed.
type ChangePublisher interface {
	Publish(ctx context.Context, key string, event any) error
}

type Config struct {
	// StepTimeout bounds every backend call of a command.
	StepTimeout time.Duration
	// CompletionDelay is how long after creation an order is completed.
	CompletionDelay time.Duration
}

// Deps are the collaborators of Handler. Publisher, Notifier and Metrics may be nil.
type Deps struct {
	Carts     *cart.Service
	Products  store.ProductStore
	Orders    store.OrderWriter
	Statuses  store.OrderStatusStore
	Logs      store.LogStore
	Publisher ChangePublisher
	Notifier  notification.Sink
	Metrics   *metrics.CheckoutMetrics
}

type Handler struct {
	carts     *cart.Service
	products  store.ProductStore
	orders    store.OrderWriter
	statuses  store.OrderStatusStore
	logs      store.LogStore
	publisher ChangePublisher
	notifier  notification.Sink
	metrics   *metrics.CheckoutMetrics
	cfg       Config

	inflight singleflight.Group
	now      func() time.Time
}

func NewHandler(deps Deps, cfg Config) *Handler {
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = 5 * time.Second
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notification.LogSink{}
	}
	return &Handler{
		carts:     deps.Carts,
		products:  deps.Products,
		orders:    deps.Orders,
		statuses:  deps.Statuses,
		logs:      deps.Logs,
		publisher: deps.Publisher,
		notifier:  notifier,
		metrics:   deps.Metrics,
		cfg:       cfg,
		now:       time.Now,
	}
}

// step runs fn under the step timeout and maps an expired deadline to ErrTimeout.
func (h *Handler) step(ctx context.Context, fn func(ctx context.Context) error) error {
	stepCtx, cancel := context.WithTimeout(ctx, h.cfg.StepTimeout)
	defer cancel()

	err := fn(stepCtx)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(stepCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", order.ErrTimeout, err)
	}
	return err
}

// classify wraps err with sentinel unless it already is a timeout.
func classify(sentinel, err error) error {
	if errors.Is(err, order.ErrTimeout) || errors.Is(err, sentinel) {
		return err
	}
	return fmt.Errorf("%w: %v", sentinel, err)
}

// AddToCart prices the product from the catalog and adds it to the principal's cart
func (h *Handler) AddToCart(ctx context.Context, cmd AddToCart) (*cart.Cart, error) {
	p, err := auth.PrincipalFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if cmd.ProductID == "" {
		return nil, cart.ErrInvalidProduct
	}
	if cmd.Quantity == 0 {
		cmd.Quantity = 1
	}
	if cmd.Quantity < 0 {
		return nil, cart.ErrInvalidQuantity
	}

	var prod product.Product
	err = h.step(ctx, func(ctx context.Context) error {
		var err error
		prod, err = h.products.GetProduct(ctx, cmd.ProductID)
		return err
	})
	if err != nil {
		return nil, err
	}

	var c *cart.Cart
	err = h.step(ctx, func(ctx context.Context) error {
		var err error
		c, err = h.carts.AddItem(ctx, p.ID, prod, cmd.Quantity)
		return err
	})
	return c, err
}

// DecrementCartItem lowers the quantity of a product by one, removing it at zero
func (h *Handler) DecrementCartItem(ctx context.Context, cmd DecrementCartItem) (*cart.Cart, error) {
	p, err := auth.PrincipalFromContext(ctx)
	if err != nil {
		return nil, err
	}
	var c *cart.Cart
	err = h.step(ctx, func(ctx context.Context) error {
		var err error
		c, err = h.carts.DecrementItem(ctx, p.ID, cmd.ProductID)
		return err
	})
	return c, err
}

// RemoveFromCart removes an item from cart
func (h *Handler) RemoveFromCart(ctx context.Context, cmd RemoveFromCart) (*cart.Cart, error) {
	p, err := auth.PrincipalFromContext(ctx)
	if err != nil {
		return nil, err
	}
	var c *cart.Cart
	err = h.step(ctx, func(ctx context.Context) error {
		var err error
		c, err = h.carts.RemoveItem(ctx, p.ID, cmd.ProductID)
		return err
	})
	return c, err
}

// ClearCart clears all items from cart
func (h *Handler) ClearCart(ctx context.Context) error {
	p, err := auth.PrincipalFromContext(ctx)
	if err != nil {
		return err
	}
	return h.step(ctx, func(ctx context.Context) error {
		return h.carts.Clear(ctx, p.ID)
	})
}

// PlaceOrder turns the principal's cart into a pending order. The order, its
// items and its reconciliation job are written in one transaction; concurrent
// calls for the same cart share a single submission and its result.
func (h *Handler) PlaceOrder(ctx context.Context) (*order.Order, error) {
	p, err := auth.PrincipalFromContext(ctx)
	if err != nil {
		h.fail(ctx, "", err)
		return nil, err
	}

	v, err, shared := h.inflight.Do(cart.GetCartID(p.ID), func() (any, error) {
		return h.placeOrder(context.WithoutCancel(ctx), p)
	})
	if shared {
		log.Printf("[Order] Joined in-flight checkout for user %s", p.ID)
	}
	if err != nil {
		return nil, err
	}
	return v.(*order.Order), nil
}

func (h *Handler) placeOrder(ctx context.Context, p auth.Principal) (*order.Order, error) {
	var snap cart.Snapshot
	err := h.step(ctx, func(ctx context.Context) error {
		var err error
		snap, err = h.carts.Snapshot(ctx, p.ID)
		return err
	})
	if err != nil {
		err = classify(order.ErrOrderCreate, err)
		h.fail(ctx, p.ID, err)
		return nil, err
	}
	if snap.Empty() {
		h.fail(ctx, p.ID, order.ErrEmptyCart)
		return nil, order.ErrEmptyCart
	}

	o, err := order.NewPending(p.ID, snap.OrderItems())
	if err != nil {
		err = classify(order.ErrOrderCreate, err)
		h.fail(ctx, p.ID, err)
		return nil, err
	}
	o.Email = p.Email

	err = h.orders.InTx(ctx, func(tx store.OrderTx) error {
		if err := h.step(ctx, func(ctx context.Context) error { return tx.InsertOrder(ctx, o) }); err != nil {
			return classify(order.ErrOrderCreate, err)
		}
		if err := h.step(ctx, func(ctx context.Context) error { return tx.InsertItems(ctx, o.ID, o.Items) }); err != nil {
			return classify(order.ErrOrderItems, err)
		}

		payload, err := json.Marshal(order.NewPayload(o))
		if err != nil {
			return classify(order.ErrOrderCreate, err)
		}
		job := store.ReconcileJob{
			OrderID:   o.ID,
			Payload:   payload,
			RunAt:     o.CreatedAt.Add(h.cfg.CompletionDelay),
			State:     store.JobScheduled,
			CreatedAt: o.CreatedAt,
		}
		if err := h.step(ctx, func(ctx context.Context) error { return tx.ScheduleReconcile(ctx, job) }); err != nil {
			return classify(order.ErrOrderCreate, err)
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, order.ErrOrderItems) {
			err = classify(order.ErrOrderCreate, err)
		}
		h.fail(ctx, p.ID, err)
		return nil, err
	}
	log.Printf("[Order] Created order %s for user %s (%d items, total %s)", o.ID, p.ID, len(o.Items), o.Total.StringFixed(2))

	if err := h.step(ctx, func(ctx context.Context) error { return h.carts.Release(ctx, snap) }); err != nil {
		log.Printf("[Order] Failed to clear cart %s after order %s: %v", snap.CartID, o.ID, err)
	}
	h.publish(ctx, order.NewPayload(o).Changed(order.ChangeCreated, h.now()))
	h.notify(ctx, notification.Notice{
		UserID:  p.ID,
		Level:   notification.LevelSuccess,
		Code:    CodeOrderPlaced,
		Message: "Your order has been placed!",
		OrderID: o.ID,
	})
	h.metrics.Observe("success")
	return o, nil
}

// CancelOrder moves a pending order to cancelled and records the reason
func (h *Handler) CancelOrder(ctx context.Context, cmd CancelOrder) (*order.Order, error) {
	if cmd.OrderID == "" {
		return nil, order.ErrOrderNotFound
	}

	var changed bool
	err := h.step(ctx, func(ctx context.Context) error {
		var err error
		changed, err = h.statuses.TransitionStatus(ctx, cmd.OrderID, order.StatusPending, order.StatusCancelled)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to cancel order %s: %w", cmd.OrderID, err)
	}

	var o *order.Order
	err = h.step(ctx, func(ctx context.Context) error {
		var err error
		o, err = h.statuses.GetOrder(ctx, cmd.OrderID)
		return err
	})
	if !changed {
		if err != nil {
			return nil, err
		}
		return nil, o.TransitionError(order.StatusCancelled)
	}
	if err != nil {
		log.Printf("[Order] Cancelled order %s but failed to reload it: %v", cmd.OrderID, err)
		o = &order.Order{ID: cmd.OrderID, Status: order.StatusCancelled}
	}

	payload := order.NewPayload(o)
	payload.Reason = cmd.Reason
	entry, err := order.NewOrderLogEntry(order.LogOrderCancelled, payload, h.now())
	if err == nil {
		err = h.step(ctx, func(ctx context.Context) error { return h.logs.Append(ctx, entry) })
	}
	if err != nil {
		log.Printf("[Order] Failed to append cancel entry for order %s: %v", o.ID, err)
	}
	log.Printf("[Order] Cancelled order %s: %s", o.ID, cmd.Reason)

	h.publish(ctx, payload.Changed(order.ChangeStatusChanged, h.now()))
	if o.UserID != "" {
		h.notify(ctx, notification.Notice{
			UserID:  o.UserID,
			Level:   notification.LevelInfo,
			Code:    CodeOrderCancelled,
			Message: "Your order was cancelled.",
			OrderID: o.ID,
		})
	}
	return o, nil
}

func (h *Handler) publish(ctx context.Context, change order.OrderChanged) {
	if h.publisher == nil {
		return
	}
	err := h.step(ctx, func(ctx context.Context) error {
		return h.publisher.Publish(ctx, change.UserID, change)
	})
	if err != nil {
		log.Printf("[Order] Failed to publish %s change for order %s: %v", change.Change, change.OrderID, err)
	}
}

func (h *Handler) notify(ctx context.Context, n notification.Notice) {
	if err := h.notifier.Notify(ctx, n); err != nil {
		log.Printf("[Order] Failed to deliver notice to user %s: %v", n.UserID, err)
	}
}

// fail reports a checkout failure to the user and counts it.
func (h *Handler) fail(ctx context.Context, userID string, err error) {
	code, message := Classify(err)
	log.Printf("[Order] Checkout failed for user %q (%s): %v", userID, code, err)
	h.notify(ctx, notification.Notice{
		UserID:  userID,
		Level:   notification.LevelError,
		Code:    code,
		Message: message,
	})
	h.metrics.Observe(code)
}
