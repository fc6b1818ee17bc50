package order

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Audit log event classifications.
const (
	LogOrderCreated       = "order_created"
	LogOrderStatusChanged = "order_status_changed"
	LogOrderCancelled     = "order_cancelled"
	LogReconcileFailed    = "order_reconcile_failed"
)

type ChangeType string

const (
	ChangeCreated       ChangeType = "created"
	ChangeStatusChanged ChangeType = "status_changed"
)

// LogEntry is an append-only audit record.
type LogEntry struct {
	ID        string          `json:"id"`
	Event     string          `json:"event"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewLogEntry marshals payload into a fresh entry stamped with now.
func NewLogEntry(event string, payload any, now time.Time) (LogEntry, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return LogEntry{}, fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}
	return LogEntry{
		ID:        uuid.NewString(),
		Event:     event,
		Payload:   data,
		CreatedAt: now.UTC(),
	}, nil
}

var entryNamespace = uuid.MustParse("6f1c2d3e-8a4b-4c5d-9e6f-7a8b9c0d1e2f")

// EntryID is the id of the event entry of orderID. An order has at most one
// entry per event, so a retried append stores it once.
func EntryID(orderID, event string) string {
	return uuid.NewSHA1(entryNamespace, []byte(orderID+"/"+event)).String()
}

// NewOrderLogEntry is NewLogEntry keyed by EntryID.
func NewOrderLogEntry(event string, p Payload, now time.Time) (LogEntry, error) {
	entry, err := NewLogEntry(event, p, now)
	if err != nil {
		return LogEntry{}, err
	}
	entry.ID = EntryID(p.OrderID, event)
	return entry, nil
}

// Payload describes an order in audit entries and reconciliation jobs.
type Payload struct {
	OrderID   string          `json:"order_id"`
	UserID    string          `json:"user_id"`
	Email     string          `json:"email,omitempty"`
	Total     decimal.Decimal `json:"total"`
	Status    Status          `json:"status"`
	Items     []OrderItem     `json:"items"`
	CreatedAt time.Time       `json:"created_at"`
	Reason    string          `json:"reason,omitempty"`
}

func NewPayload(o *Order) Payload {
	return Payload{
		OrderID:   o.ID,
		UserID:    o.UserID,
		Email:     o.Email,
		Total:     o.Total,
		Status:    o.Status,
		Items:     o.Items,
		CreatedAt: o.CreatedAt,
	}
}

// DecodePayload parses a payload stored by a job or log entry.
func DecodePayload(data []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Payload{}, fmt.Errorf("failed to unmarshal order payload: %w", err)
	}
	return p, nil
}

// OrderChanged is published on the change feed whenever an order row is created
// or its status changes.
type OrderChanged struct {
	OrderID    string          `json:"order_id"`
	UserID     string          `json:"user_id"`
	Email      string          `json:"email,omitempty"`
	Status     Status          `json:"status"`
	Total      decimal.Decimal `json:"total"`
	Change     ChangeType      `json:"change"`
	OccurredAt time.Time       `json:"occurred_at"`
}

func (p Payload) Changed(change ChangeType, now time.Time) OrderChanged {
	return OrderChanged{
		OrderID:    p.OrderID,
		UserID:     p.UserID,
		Email:      p.Email,
		Status:     p.Status,
		Total:      p.Total,
		Change:     change,
		OccurredAt: now.UTC(),
	}
}
