package intent_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rakhadjo/payverify/internal/intent"
)

// runStoreTests exercises the Store contract shared by every backend.
func runStoreTests(t *testing.T, newStore func(t *testing.T) intent.Store) {
	t.Helper()

	sample := func(orderID string) intent.OrderIntent {
		return intent.OrderIntent{
			OrderID:          orderID,
			AmountMinorUnits: 50_000,
			Currency:         "INR",
			Status:           intent.StatusCreated,
			CreatedAt:        time.Now().UTC().Truncate(time.Millisecond),
		}
	}

	t.Run("put then get returns equal intent", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		want := sample("ord_roundtrip")
		require.NoError(t, store.Put(ctx, want))

		got, err := store.Get(ctx, "ord_roundtrip")
		require.NoError(t, err)
		require.Equal(t, want.OrderID, got.OrderID)
		require.Equal(t, want.AmountMinorUnits, got.AmountMinorUnits)
		require.Equal(t, want.Currency, got.Currency)
		require.Equal(t, want.Status, got.Status)
		require.True(t, want.CreatedAt.Equal(got.CreatedAt), "created_at drifted: %v vs %v", want.CreatedAt, got.CreatedAt)
	})

	t.Run("duplicate id rejected", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		require.NoError(t, store.Put(ctx, sample("ord_dup")))
		require.ErrorIs(t, store.Put(ctx, sample("ord_dup")), intent.ErrDuplicateOrderID)
	})

	t.Run("get unknown id", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Get(context.Background(), "ord_missing")
		require.ErrorIs(t, err, intent.ErrNotFound)
	})

	t.Run("update unknown id", func(t *testing.T) {
		store := newStore(t)
		err := store.UpdateStatus(context.Background(), "ord_missing", intent.StatusVerified)
		require.ErrorIs(t, err, intent.ErrNotFound)
	})

	t.Run("status transitions exactly once", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		require.NoError(t, store.Put(ctx, sample("ord_once")))

		require.NoError(t, store.UpdateStatus(ctx, "ord_once", intent.StatusVerified))
		require.ErrorIs(t, store.UpdateStatus(ctx, "ord_once", intent.StatusFailed), intent.ErrInvalidTransition)

		got, err := store.Get(ctx, "ord_once")
		require.NoError(t, err)
		require.Equal(t, intent.StatusVerified, got.Status)
	})

	t.Run("concurrent transitions admit a single winner", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		require.NoError(t, store.Put(ctx, sample("ord_race")))

		const attempts = 16
		var wg sync.WaitGroup
		wins := make(chan intent.Status, attempts)
		for i := 0; i < attempts; i++ {
			next := intent.StatusVerified
			if i%2 == 1 {
				next = intent.StatusFailed
			}
			wg.Add(1)
			go func(next intent.Status) {
				defer wg.Done()
				if err := store.UpdateStatus(ctx, "ord_race", next); err == nil {
					wins <- next
				}
			}(next)
		}
		wg.Wait()
		close(wins)

		var winners []intent.Status
		for w := range wins {
			winners = append(winners, w)
		}
		require.Len(t, winners, 1)

		got, err := store.Get(ctx, "ord_race")
		require.NoError(t, err)
		require.Equal(t, winners[0], got.Status)
	})
}
