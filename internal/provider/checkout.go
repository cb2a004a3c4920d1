package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Checkout implements Client for a hosted-checkout style gateway.
//
// CreateOrder synthesises a provider-shaped order id without performing a
// network call. The real integration should POST to the gateway's orders
// endpoint with basic auth; synthesising keeps the issuance flow exercisable
// in integration tests without credentials.
type Checkout struct {
	KeyID     string
	KeySecret string
	BaseURL   string
	Sandbox   bool
}

// CreateOrder opens an order with the gateway and returns its assigned id.
func (c Checkout) CreateOrder(_ context.Context, req OrderRequest) (OrderResponse, error) {
	if req.AmountMinorUnits <= 0 {
		return OrderResponse{}, errors.New("amount must be positive")
	}
	if strings.TrimSpace(req.Currency) == "" {
		return OrderResponse{}, errors.New("currency is required")
	}
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	orderID := fmt.Sprintf("order_%s", raw[:14])
	return OrderResponse{
		Provider:    "checkout",
		OrderID:     orderID,
		CheckoutURL: fmt.Sprintf("%s/checkout/%s", c.host(), orderID),
	}, nil
}

func (c Checkout) host() string {
	host := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if host != "" {
		return host
	}
	if c.Sandbox {
		return "https://sandbox.checkout-gw.dev"
	}
	return "https://api.checkout-gw.dev"
}
