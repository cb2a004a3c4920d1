package intent

import "context"

// Store owns all OrderIntent records. Put and UpdateStatus must be atomic per
// order id: no concurrent caller may observe a half-written intent, and only
// one of several racing transitions out of StatusCreated may succeed.
type Store interface {
	// Put inserts a new intent. Returns ErrDuplicateOrderID if the id is taken.
	Put(ctx context.Context, it OrderIntent) error
	// Get returns a copy of the intent or ErrNotFound.
	Get(ctx context.Context, orderID string) (OrderIntent, error)
	// UpdateStatus performs the single terminal transition. Returns
	// ErrNotFound for unknown ids and ErrInvalidTransition when the current
	// status is no longer StatusCreated.
	UpdateStatus(ctx context.Context, orderID string, next Status) error
}
