package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/example/storefront-orders/internal/domain/order"
	"github.com/example/storefront-orders/internal/email"
	"github.com/example/storefront-orders/internal/infrastructure/store"
	"github.com/shopspring/decimal"
)

// Mailer sends order emails.
type Mailer interface {
	SendOrderConfirmation(to, orderID string, total decimal.Decimal, items []email.OrderItem) error
	SendOrderStatus(to, orderID, status string, total decimal.Decimal) error
}

// Handler turns order changes and audit entries into customer emails
type Handler struct {
	mailer Mailer
	orders store.OrderReader
}

// NewHandler creates a new notification handler
func NewHandler(mailer Mailer, orders store.OrderReader) *Handler {
	return &Handler{
		mailer: mailer,
		orders: orders,
	}
}

// HandleEvent processes an OrderChanged message from the change feed
func (h *Handler) HandleEvent(ctx context.Context, key, value []byte) error {
	var change order.OrderChanged
	if err := json.Unmarshal(value, &change); err != nil {
		log.Printf("[Notifier] Failed to unmarshal order change: %v", err)
		return err
	}
	if change.Email == "" {
		log.Printf("[Notifier] No recipient for order %s, skipping", change.OrderID)
		return nil
	}

	switch change.Change {
	case order.ChangeCreated:
		items, err := h.orders.ItemsForOrders(ctx, []string{change.OrderID})
		if err != nil {
			return fmt.Errorf("load items for order %s: %w", change.OrderID, err)
		}
		return h.sendConfirmation(change.Email, change.OrderID, change.Total, items)
	case order.ChangeStatusChanged:
		return h.sendStatus(change.Email, change.OrderID, change.Status, change.Total)
	}
	return nil
}

// HandleLogEntry processes an audit entry delivered by the log stream
func (h *Handler) HandleLogEntry(ctx context.Context, entry order.LogEntry) error {
	p, err := order.DecodePayload(entry.Payload)
	if err != nil {
		log.Printf("[Notifier] Failed to decode payload of log %s: %v", entry.ID, err)
		return err
	}
	if p.Email == "" {
		log.Printf("[Notifier] No recipient for order %s, skipping", p.OrderID)
		return nil
	}

	switch entry.Event {
	case order.LogOrderCreated:
		return h.sendConfirmation(p.Email, p.OrderID, p.Total, p.Items)
	case order.LogOrderStatusChanged, order.LogOrderCancelled:
		return h.sendStatus(p.Email, p.OrderID, p.Status, p.Total)
	}
	return nil
}

func (h *Handler) sendConfirmation(to, orderID string, total decimal.Decimal, items []order.OrderItem) error {
	emailItems := make([]email.OrderItem, len(items))
	for i, item := range items {
		emailItems[i] = email.OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			Price:     item.Price,
		}
	}

	if err := h.mailer.SendOrderConfirmation(to, orderID, total, emailItems); err != nil {
		log.Printf("[Notifier] Failed to send email to %s: %v", to, err)
		return err
	}
	log.Printf("[Notifier] Order confirmation email sent to %s for order %s", to, orderID)
	return nil
}

func (h *Handler) sendStatus(to, orderID string, status order.Status, total decimal.Decimal) error {
	if status == order.StatusPending {
		return nil
	}
	if err := h.mailer.SendOrderStatus(to, orderID, string(status), total); err != nil {
		log.Printf("[Notifier] Failed to send email to %s: %v", to, err)
		return err
	}
	log.Printf("[Notifier] Order %s email sent to %s for order %s", status, to, orderID)
	return nil
}
