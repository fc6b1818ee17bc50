package command

// Cart Commands
type AddToCart struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type DecrementCartItem struct {
	ProductID string `json:"product_id"`
}

type RemoveFromCart struct {
	ProductID string `json:"product_id"`
}

// Order Commands
type CancelOrder struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}
