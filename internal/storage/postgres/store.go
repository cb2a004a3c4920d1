package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rakhadjo/payverify/internal/intent"
)

const uniqueViolationCode = "23505"

// Store persists order intents in Postgres. The primary key on order_id gives
// atomic inserts; the conditional UPDATE gives the single terminal transition.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps the provided pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Put inserts a new intent, rejecting duplicate ids.
func (s *Store) Put(ctx context.Context, it intent.OrderIntent) error {
	const stmt = `
INSERT INTO order_intents (order_id, amount_minor_units, currency, status, created_at)
VALUES ($1, $2, $3, $4, $5)`

	_, err := s.pool.Exec(ctx, stmt,
		it.OrderID, it.AmountMinorUnits, it.Currency, string(it.Status), it.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return intent.ErrDuplicateOrderID
		}
		return fmt.Errorf("insert order intent: %w", err)
	}
	return nil
}

// Get returns a copy of the stored intent.
func (s *Store) Get(ctx context.Context, orderID string) (intent.OrderIntent, error) {
	const query = `
SELECT order_id, amount_minor_units, currency, status, created_at
FROM order_intents
WHERE order_id = $1`

	var (
		it     intent.OrderIntent
		status string
	)
	err := s.pool.QueryRow(ctx, query, orderID).
		Scan(&it.OrderID, &it.AmountMinorUnits, &it.Currency, &status, &it.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return intent.OrderIntent{}, intent.ErrNotFound
		}
		return intent.OrderIntent{}, fmt.Errorf("get order intent: %w", err)
	}
	parsed, err := intent.ParseStatus(status)
	if err != nil {
		return intent.OrderIntent{}, fmt.Errorf("get order intent: %w", err)
	}
	it.Status = parsed
	return it, nil
}

// UpdateStatus transitions the intent out of StatusCreated exactly once. The
// WHERE clause carries the state guard so two racing callers cannot both win.
func (s *Store) UpdateStatus(ctx context.Context, orderID string, next intent.Status) error {
	const stmt = `
UPDATE order_intents
SET status = $2
WHERE order_id = $1 AND status = $3`

	tag, err := s.pool.Exec(ctx, stmt, orderID, string(next), string(intent.StatusCreated))
	if err != nil {
		return fmt.Errorf("update order intent status: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM order_intents WHERE order_id = $1)`, orderID,
	).Scan(&exists); err != nil {
		return fmt.Errorf("check order intent: %w", err)
	}
	if !exists {
		return intent.ErrNotFound
	}
	return intent.ErrInvalidTransition
}

// Ping probes the pool for readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}
