package intent

import (
	"errors"
	"fmt"
	"time"
)

// Status tracks the lifecycle of an order intent. An intent starts as
// StatusCreated and moves to StatusVerified or StatusFailed exactly once;
// both are terminal.
type Status string

const (
	StatusCreated  Status = "CREATED"
	StatusVerified Status = "VERIFIED"
	StatusFailed   Status = "FAILED"
)

var (
	ErrInvalidAmount     = errors.New("amount must be a positive number of minor units")
	ErrInvalidCurrency   = errors.New("currency must be a recognised ISO 4217 code")
	ErrDuplicateOrderID  = errors.New("order id already exists")
	ErrNotFound          = errors.New("order intent not found")
	ErrInvalidTransition = errors.New("order intent status is already terminal")
	ErrInvalidState      = errors.New("order intent is not awaiting verification")
)

// ParseStatus converts a stored string back into a Status.
func ParseStatus(value string) (Status, error) {
	switch Status(value) {
	case StatusCreated, StatusVerified, StatusFailed:
		return Status(value), nil
	default:
		return "", fmt.Errorf("unknown intent status %q", value)
	}
}

// Terminal reports whether the status permits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusVerified || s == StatusFailed
}

// OrderIntent records a merchant's request to collect a payment. Instances
// are owned by the Store; callers always operate on copies.
type OrderIntent struct {
	OrderID          string
	AmountMinorUnits int64
	Currency         string
	Status           Status
	CreatedAt        time.Time
}

// PublicView is the caller-facing shape of an intent. It never carries the
// signing secret or provider credentials.
type PublicView struct {
	OrderID          string `json:"orderId"`
	AmountMinorUnits int64  `json:"amountMinorUnits"`
	Currency         string `json:"currency"`
	Status           string `json:"status"`
}

// Public returns the external representation of the intent.
func (i OrderIntent) Public() PublicView {
	return PublicView{
		OrderID:          i.OrderID,
		AmountMinorUnits: i.AmountMinorUnits,
		Currency:         i.Currency,
		Status:           string(i.Status),
	}
}
