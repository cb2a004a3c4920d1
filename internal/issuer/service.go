package issuer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/rakhadjo/payverify/internal/intent"
	"github.com/rakhadjo/payverify/internal/obs"
	"github.com/rakhadjo/payverify/internal/provider"
)

// Config collects the dependencies an issuer Service needs.
type Config struct {
	Store    intent.Store
	Provider provider.Client
	Logger   zerolog.Logger
	Now      func() time.Time
}

// Service creates order intents against amount and currency constraints.
type Service struct {
	store    intent.Store
	provider provider.Client
	logger   zerolog.Logger
	now      func() time.Time
	validate *validator.Validate
}

// NewService validates the configuration and constructs a Service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("issuer: store is required")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:    cfg.Store,
		provider: cfg.Provider,
		logger:   cfg.Logger,
		now:      now,
		validate: validator.New(),
	}, nil
}

// CreateOrder validates the input, generates a collision-resistant order id
// (or adopts the provider-assigned one) and inserts a StatusCreated intent.
func (s *Service) CreateOrder(ctx context.Context, amountMinorUnits int64, currency string) (intent.PublicView, error) {
	ctx, span := otel.Tracer("issuer.Service").Start(ctx, "IssuerService.CreateOrder")
	defer span.End()

	result := "error"
	defer func() {
		span.SetAttributes(attribute.String("order.create.result", result))
		if obs.OrdersCreatedTotal != nil {
			obs.OrdersCreatedTotal.WithLabelValues(result).Inc()
		}
	}()

	if amountMinorUnits <= 0 {
		result = "invalid_amount"
		return intent.PublicView{}, intent.ErrInvalidAmount
	}
	code := strings.ToUpper(strings.TrimSpace(currency))
	if err := s.validate.Var(code, "required,iso4217"); err != nil {
		result = "invalid_currency"
		return intent.PublicView{}, intent.ErrInvalidCurrency
	}

	orderID := newOrderID()
	providerAssigned := false
	if s.provider != nil {
		resp, err := s.provider.CreateOrder(ctx, provider.OrderRequest{
			AmountMinorUnits: amountMinorUnits,
			Currency:         code,
			ReceiptTag:       newReceiptTag(),
		})
		if err != nil {
			return intent.PublicView{}, fmt.Errorf("issuer: provider order creation: %w", err)
		}
		if strings.TrimSpace(resp.OrderID) != "" {
			// The provider-assigned id is what verification payloads will
			// reference, so it must be the stored id too.
			orderID = resp.OrderID
			providerAssigned = true
		}
	}
	span.SetAttributes(attribute.String("order.id", orderID))

	it := intent.OrderIntent{
		OrderID:          orderID,
		AmountMinorUnits: amountMinorUnits,
		Currency:         code,
		Status:           intent.StatusCreated,
		CreatedAt:        s.now().UTC(),
	}
	err := s.store.Put(ctx, it)
	if errors.Is(err, intent.ErrDuplicateOrderID) && !providerAssigned {
		// Locally generated ids are 128-bit random; a collision points at a
		// faulty entropy source, so log loudly and retry once with a fresh id.
		s.logger.Warn().Str("order_id", orderID).Msg("order id collision, regenerating")
		it.OrderID = newOrderID()
		err = s.store.Put(ctx, it)
	}
	if err != nil {
		return intent.PublicView{}, fmt.Errorf("issuer: store intent: %w", err)
	}
	result = "success"
	return it.Public(), nil
}

// GetOrder returns the public view of a stored intent.
func (s *Service) GetOrder(ctx context.Context, orderID string) (intent.PublicView, error) {
	it, err := s.store.Get(ctx, orderID)
	if err != nil {
		return intent.PublicView{}, err
	}
	return it.Public(), nil
}

func newOrderID() string {
	return "ord_" + ulid.Make().String()
}

func newReceiptTag() string {
	return "rcpt_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
