package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/example/storefront-orders/internal/auth"
	"github.com/example/storefront-orders/internal/command"
	"github.com/example/storefront-orders/internal/realtime"
)

// StreamOrders serves the principal's order list as server-sent events. The
// list is sent on connect and again after every change of one of the
// principal's orders; notices are forwarded as they arrive.
func (h *Handlers) StreamOrders(w http.ResponseWriter, r *http.Request) {
	filter, sortOrder, err := parseListParams(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	p, err := auth.PrincipalFromContext(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondJSON(w, http.StatusInternalServerError, errorBody{Error: command.CodeInternal, Message: "Streaming is not supported."})
		return
	}

	events, unsubscribe := h.hub.Subscribe(p.ID)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	ctx := r.Context()
	refresh := func() error {
		orders, err := h.queryHandler.ListOrders(ctx, filter, sortOrder)
		if err != nil {
			code, message := command.Classify(err)
			return writeEvent(w, flusher, "error", errorBody{Error: code, Message: message})
		}
		return writeEvent(w, flusher, "orders", orders)
	}
	if err := refresh(); err != nil {
		return
	}

	keepAlive := time.NewTicker(h.keepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Kind {
			case realtime.KindOrderChanged:
				err = refresh()
			case realtime.KindNotice:
				err = writeEvent(w, flusher, "notice", ev.Notice)
			}
		case <-keepAlive.C:
			_, err = fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		}
		if err != nil {
			log.Printf("[API] Order stream of user %s closed: %v", p.ID, err)
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, flusher http.Flusher, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
