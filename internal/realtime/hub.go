package realtime

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/example/storefront-orders/internal/domain/order"
	"github.com/example/storefront-orders/internal/notification"
)

type EventKind string

const (
	KindOrderChanged EventKind = "order_changed"
	KindNotice       EventKind = "notice"
)

// Event is delivered to subscribers of one user.
type Event struct {
	Kind   EventKind            `json:"kind"`
	Change *order.OrderChanged  `json:"change,omitempty"`
	Notice *notification.Notice `json:"notice,omitempty"`
}

type subscriber struct {
	ch chan Event
}

// Hub fans events out to the live subscribers of each user. Delivery never
// blocks: a subscriber whose buffer is full misses the event, which is safe
// because every order change triggers a full refresh.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*subscriber]struct{}
	buffer int
}

func NewHub(buffer int) *Hub {
	if buffer < 1 {
		buffer = 1
	}
	return &Hub{subs: make(map[string]map[*subscriber]struct{}), buffer: buffer}
}

// Subscribe registers a subscriber for userID. The returned cancel function
// unregisters it and closes the channel.
func (h *Hub) Subscribe(userID string) (<-chan Event, func()) {
	sub := &subscriber{ch: make(chan Event, h.buffer)}

	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[*subscriber]struct{})
	}
	h.subs[userID][sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[userID], sub)
			if len(h.subs[userID]) == 0 {
				delete(h.subs, userID)
			}
			h.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

// Publish delivers ev to every subscriber of userID.
func (h *Hub) Publish(userID string, ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[userID] {
		select {
		case sub.ch <- ev:
		default:
		}
	}
}

// Subscribers returns the number of live subscribers of userID.
func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}

// HandleEvent consumes an OrderChanged message from the change feed.
func (h *Hub) HandleEvent(ctx context.Context, key, value []byte) error {
	var change order.OrderChanged
	if err := json.Unmarshal(value, &change); err != nil {
		log.Printf("[Hub] Failed to unmarshal order change: %v", err)
		return nil
	}
	if change.UserID == "" {
		return nil
	}
	h.Publish(change.UserID, Event{Kind: KindOrderChanged, Change: &change})
	return nil
}

// Notify implements notification.Sink by pushing the notice to the user's streams.
func (h *Hub) Notify(ctx context.Context, n notification.Notice) error {
	if n.UserID == "" {
		return nil
	}
	h.Publish(n.UserID, Event{Kind: KindNotice, Notice: &n})
	return nil
}

// LocalPublisher delivers order changes straight to the hub. It stands in for
// the change feed when none is configured.
type LocalPublisher struct {
	hub *Hub
}

func NewLocalPublisher(hub *Hub) *LocalPublisher {
	return &LocalPublisher{hub: hub}
}

func (p *LocalPublisher) Publish(ctx context.Context, key string, event any) error {
	switch ev := event.(type) {
	case order.OrderChanged:
		p.hub.Publish(key, Event{Kind: KindOrderChanged, Change: &ev})
		return nil
	case *order.OrderChanged:
		p.hub.Publish(key, Event{Kind: KindOrderChanged, Change: ev})
		return nil
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.hub.HandleEvent(ctx, []byte(key), data)
}
