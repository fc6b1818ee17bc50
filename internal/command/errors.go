package command

import (
	"errors"

	"github.com/example/storefront-orders/internal/auth"
	"github.com/example/storefront-orders/internal/domain/cart"
	"github.com/example/storefront-orders/internal/domain/order"
	"github.com/example/storefront-orders/internal/domain/product"
)

// Codes shared by notices and HTTP error bodies.
const (
	CodeUnauthenticated = "unauthenticated"
	CodeForbidden       = "forbidden"
	CodeEmptyCart       = "empty_cart"
	CodeOrderCreate     = "order_create_failed"
	CodeOrderItems      = "order_items_failed"
	CodeTimeout         = "timeout"
	CodeFetch           = "fetch_failed"
	CodeNotFound        = "not_found"
	CodeInvalidRequest  = "invalid_request"
	CodeInvalidStatus   = "invalid_status"
	CodeInternal        = "internal"

	CodeOrderPlaced    = "order_placed"
	CodeOrderCancelled = "order_cancelled"
)

// Classify maps an error to a stable code and a user-visible message.
func Classify(err error) (code, message string) {
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		return CodeUnauthenticated, "You must be signed in to place an order."
	case errors.Is(err, order.ErrEmptyCart):
		return CodeEmptyCart, "Your cart is empty."
	case errors.Is(err, order.ErrTimeout):
		return CodeTimeout, "The server took too long to respond. Please try again."
	case errors.Is(err, order.ErrOrderItems):
		return CodeOrderItems, "Could not save the items of your order."
	case errors.Is(err, order.ErrOrderCreate):
		return CodeOrderCreate, "Could not create your order."
	case errors.Is(err, order.ErrFetch):
		return CodeFetch, "Could not load your orders."
	case errors.Is(err, order.ErrOrderNotFound):
		return CodeNotFound, "Order not found."
	case errors.Is(err, product.ErrProductNotFound):
		return CodeNotFound, "Product not found."
	case errors.Is(err, order.ErrOrderCancelled):
		return CodeInvalidStatus, "The order is already cancelled."
	case errors.Is(err, order.ErrOrderCompleted):
		return CodeInvalidStatus, "The order is already completed."
	case errors.Is(err, order.ErrInvalidStatus):
		return CodeInvalidStatus, "The order cannot change to that status."
	case errors.Is(err, order.ErrInvalidFilter),
		errors.Is(err, order.ErrInvalidSort),
		errors.Is(err, order.ErrInvalidItem),
		errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, cart.ErrInvalidProduct):
		return CodeInvalidRequest, err.Error()
	default:
		return CodeInternal, "Something went wrong. Please try again."
	}
}
