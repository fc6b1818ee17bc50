package query

// Re-export read models so callers only depend on the query package
import "github.com/example/storefront-orders/internal/readmodel"

type CartItemReadModel = readmodel.CartItemReadModel
type CartReadModel = readmodel.CartReadModel
type OrderItemReadModel = readmodel.OrderItemReadModel
type OrderReadModel = readmodel.OrderReadModel
type TopProductReadModel = readmodel.TopProductReadModel
type UserStatsReadModel = readmodel.UserStatsReadModel
type StatusTotalReadModel = readmodel.StatusTotalReadModel
type DailyTotalReadModel = readmodel.DailyTotalReadModel
type DashboardReadModel = readmodel.DashboardReadModel
