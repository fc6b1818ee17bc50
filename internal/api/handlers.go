package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/example/storefront-orders/internal/command"
	"github.com/example/storefront-orders/internal/domain/order"
	"github.com/example/storefront-orders/internal/query"
	"github.com/example/storefront-orders/internal/realtime"
	"github.com/go-chi/chi/v5"
)

type Handlers struct {
	cmdHandler   *command.Handler
	queryHandler *query.Handler
	hub          *realtime.Hub
	keepAlive    time.Duration
}

func NewHandlers(cmdHandler *command.Handler, queryHandler *query.Handler, hub *realtime.Hub) *Handlers {
	return &Handlers{
		cmdHandler:   cmdHandler,
		queryHandler: queryHandler,
		hub:          hub,
		keepAlive:    15 * time.Second,
	}
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Cart Handlers

func (h *Handlers) GetCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.queryHandler.GetCart(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (h *Handlers) AddToCart(w http.ResponseWriter, r *http.Request) {
	var cmd command.AddToCart
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		respondBadRequest(w, "Invalid request body.")
		return
	}

	c, err := h.cmdHandler.AddToCart(r.Context(), cmd)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, query.NewCartReadModel(c))
}

func (h *Handlers) DecrementCartItem(w http.ResponseWriter, r *http.Request) {
	cmd := command.DecrementCartItem{ProductID: chi.URLParam(r, "productID")}
	c, err := h.cmdHandler.DecrementCartItem(r.Context(), cmd)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, query.NewCartReadModel(c))
}

func (h *Handlers) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	cmd := command.RemoveFromCart{ProductID: chi.URLParam(r, "productID")}
	c, err := h.cmdHandler.RemoveFromCart(r.Context(), cmd)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, query.NewCartReadModel(c))
}

func (h *Handlers) ClearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.cmdHandler.ClearCart(r.Context()); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Order Handlers

func (h *Handlers) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.cmdHandler.PlaceOrder(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, o)
}

// parseListParams reads the status filter and sort order of an order listing.
func parseListParams(r *http.Request) (order.StatusFilter, order.SortOrder, error) {
	filter, err := order.ParseStatusFilter(r.URL.Query().Get("status"))
	if err != nil {
		return "", "", err
	}
	sortOrder, err := order.ParseSortOrder(r.URL.Query().Get("sort"))
	if err != nil {
		return "", "", err
	}
	return filter, sortOrder, nil
}

func (h *Handlers) GetOrders(w http.ResponseWriter, r *http.Request) {
	filter, sortOrder, err := parseListParams(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	orders, err := h.queryHandler.ListOrders(r.Context(), filter, sortOrder)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, orders)
}

func (h *Handlers) GetUserStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.queryHandler.UserStats(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// Admin Handlers

func (h *Handlers) GetDashboard(w http.ResponseWriter, r *http.Request) {
	dash, err := h.queryHandler.Dashboard(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, dash)
}

func (h *Handlers) CancelOrder(w http.ResponseWriter, r *http.Request) {
	cmd := command.CancelOrder{OrderID: chi.URLParam(r, "orderID")}
	if r.ContentLength != 0 {
		var req struct {
			Reason string `json:"reason"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondBadRequest(w, "Invalid request body.")
			return
		}
		cmd.Reason = req.Reason
	}

	o, err := h.cmdHandler.CancelOrder(r.Context(), cmd)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}
