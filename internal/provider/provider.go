package provider

import "context"

// OrderRequest captures what an upstream payment provider needs to open an order.
type OrderRequest struct {
	AmountMinorUnits int64
	Currency         string
	ReceiptTag       string
}

// OrderResponse is the minimal information returned when a provider opens an order.
type OrderResponse struct {
	Provider    string
	OrderID     string
	CheckoutURL string
}

// Client abstracts the order-creation call made to an upstream payment
// provider during issuance. Implementations may be stubbed in tests; the
// issuer treats a nil Client as "generate ids locally".
type Client interface {
	CreateOrder(ctx context.Context, req OrderRequest) (OrderResponse, error)
}
