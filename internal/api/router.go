package api

import (
	"net/http"

	"github.com/example/storefront-orders/internal/api/middleware"
	"github.com/example/storefront-orders/internal/auth"
	"github.com/example/storefront-orders/internal/metrics"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

type RouterConfig struct {
	Handlers   *Handlers
	JWTService *auth.JWTService
	// Metrics and Gatherer are optional; without a Gatherer /metrics serves
	// the default registry.
	Metrics  *metrics.ServerMetrics
	Gatherer prometheus.Gatherer
}

func NewRouter(cfg RouterConfig) http.Handler {
	h := cfg.Handlers

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	if cfg.Metrics != nil {
		r.Use(middleware.Metrics(cfg.Metrics))
	}

	r.Get("/health", h.Health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler(cfg.Gatherer))

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(cfg.JWTService))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.GetCart)
			r.Delete("/", h.ClearCart)
			r.Post("/items", h.AddToCart)
			r.Post("/items/{productID}/decrement", h.DecrementCartItem)
			r.Delete("/items/{productID}", h.RemoveFromCart)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", h.GetOrders)
			r.Post("/", h.PlaceOrder)
			r.Get("/stream", h.StreamOrders)
		})

		r.Get("/me/stats", h.GetUserStats)

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(auth.RoleAdmin))
			r.Get("/dashboard", h.GetDashboard)
			r.Post("/orders/{orderID}/cancel", h.CancelOrder)
		})
	})

	return r
}
