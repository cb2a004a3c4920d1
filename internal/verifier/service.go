package verifier

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/rakhadjo/payverify/internal/intent"
	"github.com/rakhadjo/payverify/internal/obs"
)

// Result is the verdict for a claimed payment completion. A signature
// mismatch is a normal outcome, not an error.
type Result struct {
	OrderID   string
	PaymentID string
	Verified  bool
}

// Config collects the dependencies a verifier Service needs.
type Config struct {
	Store  intent.Store
	Secret []byte
	Logger zerolog.Logger
}

// Service checks claimed payment completions against the shared secret and
// drives the intent's single terminal status transition.
type Service struct {
	store  intent.Store
	secret []byte
	logger zerolog.Logger
}

// NewService validates the configuration and constructs a Service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("verifier: store is required")
	}
	if len(cfg.Secret) == 0 {
		return nil, errors.New("verifier: signing secret is required")
	}
	return &Service{store: cfg.Store, secret: cfg.Secret, logger: cfg.Logger}, nil
}

// Signature computes the expected signature for an order/payment pair: the
// lowercase hex HMAC-SHA256 of "<orderID>|<paymentID>" under the secret. The
// payload bytes are used exactly as given, with no trimming.
func Signature(secret []byte, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(orderID))
	mac.Write([]byte("|"))
	mac.Write([]byte(paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify looks up the intent, recomputes the expected signature and settles
// the intent as Verified or Failed. Repeat attempts against an already
// settled intent return intent.ErrInvalidState and leave the stored status
// untouched.
func (s *Service) Verify(ctx context.Context, orderID, paymentID, claimedSignature string) (Result, error) {
	ctx, span := otel.Tracer("verifier.Service").Start(ctx, "VerifierService.Verify")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	res := Result{OrderID: orderID, PaymentID: paymentID}

	it, err := s.store.Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, intent.ErrNotFound) {
			s.countVerification("unknown_order")
			return res, err
		}
		return res, fmt.Errorf("verifier: load intent: %w", err)
	}
	if it.Status != intent.StatusCreated {
		s.rejectReplay(orderID, it.Status)
		return res, intent.ErrInvalidState
	}

	expected := Signature(s.secret, orderID, paymentID)
	// hmac.Equal, never ==: string comparison short-circuits on the first
	// differing byte and leaks timing information about the expected value.
	match := hmac.Equal([]byte(expected), []byte(claimedSignature))

	next := intent.StatusFailed
	if match {
		next = intent.StatusVerified
	}
	if err := s.store.UpdateStatus(ctx, orderID, next); err != nil {
		if errors.Is(err, intent.ErrInvalidTransition) {
			// Lost a race against a concurrent verification attempt on the
			// same order; for this caller that is a replay.
			s.rejectReplay(orderID, it.Status)
			return res, intent.ErrInvalidState
		}
		if errors.Is(err, intent.ErrNotFound) {
			return res, err
		}
		return res, fmt.Errorf("verifier: settle intent: %w", err)
	}

	res.Verified = match
	if match {
		span.SetAttributes(attribute.String("verification.result", "verified"))
		s.countVerification("verified")
	} else {
		span.SetAttributes(attribute.String("verification.result", "failed"))
		s.countVerification("failed")
		s.logger.Warn().
			Str("order_id", orderID).
			Str("payment_id", paymentID).
			Msg("signature mismatch")
	}
	return res, nil
}

func (s *Service) rejectReplay(orderID string, status intent.Status) {
	// Replays are rejected, not crashed on; log them as an abuse signal.
	s.logger.Warn().
		Str("order_id", orderID).
		Str("status", string(status)).
		Msg("verification replay rejected")
	s.countVerification("replay")
	if obs.ReplayRejectedTotal != nil {
		obs.ReplayRejectedTotal.Inc()
	}
}

func (s *Service) countVerification(result string) {
	if obs.VerificationTotal != nil {
		obs.VerificationTotal.WithLabelValues(result).Inc()
	}
}
