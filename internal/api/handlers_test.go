package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/example/storefront-orders/internal/auth"
	"github.com/example/storefront-orders/internal/command"
	"github.com/example/storefront-orders/internal/domain/cart"
	"github.com/example/storefront-orders/internal/domain/order"
	"github.com/example/storefront-orders/internal/domain/product"
	"github.com/example/storefront-orders/internal/infrastructure/store/mocks"
	"github.com/example/storefront-orders/internal/metrics"
	"github.com/example/storefront-orders/internal/notification"
	"github.com/example/storefront-orders/internal/query"
	"github.com/example/storefront-orders/internal/realtime"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-that-is-at-least-32-chars"

type apiEnv struct {
	router http.Handler
	jwt    *auth.JWTService
	orders *mocks.MockOrderStore
	hub    *realtime.Hub
}

func newTestAPI(t *testing.T) *apiEnv {
	t.Helper()
	orders := mocks.NewMockOrderStore()
	carts := cart.NewService(mocks.NewMockCartRepository())
	products := mocks.NewMockProductStore(
		product.Product{ID: "prod-a", Name: "Coffee Mug", Price: decimal.RequireFromString("10.00")},
		product.Product{ID: "prod-b", Name: "Sticker Pack", Price: decimal.RequireFromString("5.00")},
	)
	hub := realtime.NewHub(8)
	reg := prometheus.NewRegistry()

	cmdHandler := command.NewHandler(command.Deps{
		Carts:     carts,
		Products:  products,
		Orders:    orders,
		Statuses:  orders,
		Logs:      mocks.NewMockLogStore(),
		Publisher: realtime.NewLocalPublisher(hub),
		Notifier:  notification.Sinks{hub},
		Metrics:   metrics.NewCheckoutMetrics(reg),
	}, command.Config{StepTimeout: time.Second, CompletionDelay: 10 * time.Second})
	queryHandler := query.NewHandler(orders, carts, time.Second)

	jwtService := auth.NewJWTService(testSecret, time.Hour)
	handlers := NewHandlers(cmdHandler, queryHandler, hub)
	handlers.keepAlive = 20 * time.Millisecond

	return &apiEnv{
		router: NewRouter(RouterConfig{
			Handlers:   handlers,
			JWTService: jwtService,
			Metrics:    metrics.NewServerMetrics(reg, "api"),
			Gatherer:   reg,
		}),
		jwt:    jwtService,
		orders: orders,
		hub:    hub,
	}
}

func (e *apiEnv) token(t *testing.T, userID, role string) string {
	t.Helper()
	token, _, err := e.jwt.GenerateAccessToken(userID, userID+"@example.com", role)
	require.NoError(t, err)
	return token
}

func (e *apiEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func (e *apiEnv) fillCart(t *testing.T, token string) {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/cart/items", token, command.AddToCart{ProductID: "prod-a", Quantity: 2})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = e.do(t, http.MethodPost, "/cart/items", token, command.AddToCart{ProductID: "prod-b"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

// ============================================
// Public Endpoint Tests
// ============================================

func TestRouter_Health(t *testing.T) {
	env := newTestAPI(t)

	rec := env.do(t, http.MethodGet, "/health", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRouter_Metrics(t *testing.T) {
	env := newTestAPI(t)
	env.do(t, http.MethodGet, "/health", "", nil)

	rec := env.do(t, http.MethodGet, "/metrics", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "storefront_api_http_requests_total")
}

func TestRouter_RequiresToken(t *testing.T) {
	env := newTestAPI(t)

	rec := env.do(t, http.MethodPost, "/orders", "", nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, command.CodeUnauthenticated, decodeError(t, rec).Error)
	assert.Empty(t, env.orders.InsertOrderCalls)
}

// ============================================
// Cart Endpoint Tests
// ============================================

func TestHandlers_Cart(t *testing.T) {
	env := newTestAPI(t)
	token := env.token(t, "user-1", auth.RoleCustomer)
	env.fillCart(t, token)

	rec := env.do(t, http.MethodGet, "/cart", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var c query.CartReadModel
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &c))
	assert.Equal(t, 2, c.Count)
	assert.Equal(t, 3, c.Quantity)
	assert.True(t, c.Total.Equal(decimal.RequireFromString("25.00")))

	rec = env.do(t, http.MethodPost, "/cart/items/prod-a/decrement", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &c))
	assert.Equal(t, 2, c.Quantity)

	rec = env.do(t, http.MethodDelete, "/cart/items/prod-b", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &c))
	assert.Equal(t, 1, c.Count)

	rec = env.do(t, http.MethodDelete, "/cart", token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestHandlers_AddToCart_UnknownProduct(t *testing.T) {
	env := newTestAPI(t)
	token := env.token(t, "user-1", auth.RoleCustomer)

	rec := env.do(t, http.MethodPost, "/cart/items", token, command.AddToCart{ProductID: "missing"})

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, command.CodeNotFound, decodeError(t, rec).Error)
}

func TestHandlers_AddToCart_BadBody(t *testing.T) {
	env := newTestAPI(t)
	token := env.token(t, "user-1", auth.RoleCustomer)

	req := httptest.NewRequest(http.MethodPost, "/cart/items", strings.NewReader("{"))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, command.CodeInvalidRequest, decodeError(t, rec).Error)
}

// ============================================
// Order Endpoint Tests
// ============================================

func TestHandlers_PlaceOrder(t *testing.T) {
	env := newTestAPI(t)
	token := env.token(t, "user-1", auth.RoleCustomer)
	env.fillCart(t, token)

	rec := env.do(t, http.MethodPost, "/orders", token, nil)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var o order.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &o))
	assert.Equal(t, order.StatusPending, o.Status)
	assert.True(t, o.Total.Equal(decimal.RequireFromString("25.00")))
	assert.Len(t, o.Items, 2)

	rec = env.do(t, http.MethodGet, "/cart", token, nil)
	var c query.CartReadModel
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &c))
	assert.Empty(t, c.Items)
}

func TestHandlers_PlaceOrder_EmptyCart(t *testing.T) {
	env := newTestAPI(t)
	token := env.token(t, "user-1", auth.RoleCustomer)

	rec := env.do(t, http.MethodPost, "/orders", token, nil)

	assert.Equal(t, http.StatusConflict, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, command.CodeEmptyCart, body.Error)
	assert.NotEmpty(t, body.Message)
}

func TestHandlers_PlaceOrder_BackendFailure(t *testing.T) {
	env := newTestAPI(t)
	token := env.token(t, "user-1", auth.RoleCustomer)
	env.fillCart(t, token)
	env.orders.InsertItemsErr = errors.New("constraint violation")

	rec := env.do(t, http.MethodPost, "/orders", token, nil)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, command.CodeOrderItems, decodeError(t, rec).Error)
}

func TestHandlers_GetOrders_FilterAndSort(t *testing.T) {
	env := newTestAPI(t)
	base := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	for i, status := range []order.Status{order.StatusPending, order.StatusCompleted, order.StatusCancelled} {
		env.orders.AddOrder(order.Order{
			ID:        "o-" + string(rune('1'+i)),
			UserID:    "user-1",
			Status:    status,
			Total:     decimal.RequireFromString("10.00"),
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		})
	}
	token := env.token(t, "user-1", auth.RoleCustomer)

	rec := env.do(t, http.MethodGet, "/orders?status=completed", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []query.OrderReadModel
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "o-2", list[0].ID)

	rec = env.do(t, http.MethodGet, "/orders?sort=asc", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 3)
	assert.Equal(t, "o-1", list[0].ID)

	rec = env.do(t, http.MethodGet, "/orders?status=shipped", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, command.CodeInvalidRequest, decodeError(t, rec).Error)
}

func TestHandlers_GetOrders_FetchFailure(t *testing.T) {
	env := newTestAPI(t)
	env.orders.ListErr = errors.New("connection refused")
	token := env.token(t, "user-1", auth.RoleCustomer)

	rec := env.do(t, http.MethodGet, "/orders", token, nil)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, command.CodeFetch, decodeError(t, rec).Error)
}

func TestHandlers_GetUserStats(t *testing.T) {
	env := newTestAPI(t)
	token := env.token(t, "user-1", auth.RoleCustomer)
	env.fillCart(t, token)
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/orders", token, nil).Code)

	rec := env.do(t, http.MethodGet, "/me/stats", token, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var stats query.UserStatsReadModel
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.OrderCount)
	assert.True(t, stats.TotalSpent.Equal(decimal.RequireFromString("25.00")))
}

// ============================================
// Admin Endpoint Tests
// ============================================

func TestHandlers_Admin_RequiresRole(t *testing.T) {
	env := newTestAPI(t)
	token := env.token(t, "user-1", auth.RoleCustomer)

	rec := env.do(t, http.MethodGet, "/admin/dashboard", token, nil)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", decodeError(t, rec).Error)
}

func TestHandlers_Admin_Dashboard(t *testing.T) {
	env := newTestAPI(t)
	env.orders.AddOrder(order.Order{ID: "o-1", UserID: "user-1", Status: order.StatusPending, Total: decimal.RequireFromString("10.00"), CreatedAt: time.Now()})
	token := env.token(t, "admin-1", auth.RoleAdmin)

	rec := env.do(t, http.MethodGet, "/admin/dashboard", token, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var dash query.DashboardReadModel
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dash))
	assert.Equal(t, 1, dash.Orders)
}

func TestHandlers_Admin_CancelOrder(t *testing.T) {
	env := newTestAPI(t)
	env.orders.AddOrder(order.Order{ID: "o-1", UserID: "user-1", Status: order.StatusPending, Total: decimal.RequireFromString("10.00"), CreatedAt: time.Now()})
	env.orders.AddOrder(order.Order{ID: "o-2", UserID: "user-1", Status: order.StatusCompleted, Total: decimal.RequireFromString("10.00"), CreatedAt: time.Now()})
	token := env.token(t, "admin-1", auth.RoleAdmin)

	rec := env.do(t, http.MethodPost, "/admin/orders/o-1/cancel", token, map[string]string{"reason": "Out of stock"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var o order.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &o))
	assert.Equal(t, order.StatusCancelled, o.Status)

	rec = env.do(t, http.MethodPost, "/admin/orders/o-2/cancel", token, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, command.CodeInvalidStatus, decodeError(t, rec).Error)

	rec = env.do(t, http.MethodPost, "/admin/orders/missing/cancel", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// ============================================
// Stream Tests
// ============================================

type sseReader struct {
	r *bufio.Reader
}

// next returns the name and data of the next event, skipping comments.
func (s *sseReader) next(t *testing.T) (string, string) {
	t.Helper()
	var event, data string
	for {
		line, err := s.r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "" && event != "":
			return event, data
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestHandlers_StreamOrders(t *testing.T) {
	env := newTestAPI(t)
	server := httptest.NewServer(env.router)
	defer server.Close()
	token := env.token(t, "user-1", auth.RoleCustomer)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/orders/stream?status=all", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	stream := &sseReader{r: bufio.NewReader(resp.Body)}
	event, data := stream.next(t)
	assert.Equal(t, "orders", event)
	assert.Equal(t, "[]", data)

	require.Eventually(t, func() bool { return env.hub.Subscribers("user-1") == 1 }, time.Second, 5*time.Millisecond)

	env.orders.AddOrder(order.Order{ID: "o-1", UserID: "user-1", Status: order.StatusCompleted, Total: decimal.RequireFromString("10.00"), CreatedAt: time.Now()})
	env.hub.Publish("user-1", realtime.Event{Kind: realtime.KindOrderChanged, Change: &order.OrderChanged{OrderID: "o-1", UserID: "user-1"}})

	event, data = stream.next(t)
	assert.Equal(t, "orders", event)
	var list []query.OrderReadModel
	require.NoError(t, json.Unmarshal([]byte(data), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "completed", list[0].Status)

	require.NoError(t, env.hub.Notify(ctx, notification.Notice{UserID: "user-1", Level: notification.LevelInfo, Message: "Hello"}))
	event, data = stream.next(t)
	assert.Equal(t, "notice", event)
	assert.Contains(t, data, "Hello")
}

func TestHandlers_StreamOrders_InvalidFilter(t *testing.T) {
	env := newTestAPI(t)
	token := env.token(t, "user-1", auth.RoleCustomer)

	rec := env.do(t, http.MethodGet, "/orders/stream?status=shipped", token, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusFor(t *testing.T) {
	tests := map[string]int{
		command.CodeUnauthenticated: http.StatusUnauthorized,
		command.CodeForbidden:       http.StatusForbidden,
		command.CodeEmptyCart:       http.StatusConflict,
		command.CodeOrderCreate:     http.StatusBadGateway,
		command.CodeOrderItems:      http.StatusBadGateway,
		command.CodeTimeout:         http.StatusGatewayTimeout,
		command.CodeFetch:           http.StatusBadGateway,
		command.CodeNotFound:        http.StatusNotFound,
		command.CodeInvalidRequest:  http.StatusBadRequest,
		command.CodeInternal:        http.StatusInternalServerError,
	}
	for code, status := range tests {
		assert.Equal(t, status, statusFor(code), code)
	}
}
