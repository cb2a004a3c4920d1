package intent

import (
	"context"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "intent:"

// Lua keeps the existence check and the write in one round trip so racing
// callers cannot interleave between them.
var (
	putScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("HSET", KEYS[1],
  "order_id", ARGV[1],
  "amount", ARGV[2],
  "currency", ARGV[3],
  "status", ARGV[4],
  "created_at", ARGV[5])
return 1
`)

	transitionScript = redis.NewScript(`
local cur = redis.call("HGET", KEYS[1], "status")
if not cur then
  return "missing"
end
if cur ~= ARGV[1] then
  return "terminal"
end
redis.call("HSET", KEYS[1], "status", ARGV[2])
return "ok"
`)
)

// RedisStore keeps intents in Redis hashes. Suitable when several API
// replicas must share one record store.
type RedisStore struct {
	Client *redis.Client
}

// NewRedisStore wraps the provided client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{Client: client}
}

func redisKey(orderID string) string { return redisKeyPrefix + orderID }

// Put inserts a new intent, rejecting duplicate ids.
func (s *RedisStore) Put(ctx context.Context, it OrderIntent) error {
	inserted, err := putScript.Run(ctx, s.Client,
		[]string{redisKey(it.OrderID)},
		it.OrderID,
		strconv.FormatInt(it.AmountMinorUnits, 10),
		it.Currency,
		string(it.Status),
		it.CreatedAt.UTC().Format(time.RFC3339Nano),
	).Int()
	if err != nil {
		return fmt.Errorf("redis put intent: %w", err)
	}
	if inserted == 0 {
		return ErrDuplicateOrderID
	}
	return nil
}

// Get returns a copy of the stored intent.
func (s *RedisStore) Get(ctx context.Context, orderID string) (OrderIntent, error) {
	fields, err := s.Client.HGetAll(ctx, redisKey(orderID)).Result()
	if err != nil {
		return OrderIntent{}, fmt.Errorf("redis get intent: %w", err)
	}
	if len(fields) == 0 {
		return OrderIntent{}, ErrNotFound
	}
	return decodeIntent(fields)
}

// UpdateStatus transitions the intent out of StatusCreated exactly once.
func (s *RedisStore) UpdateStatus(ctx context.Context, orderID string, next Status) error {
	outcome, err := transitionScript.Run(ctx, s.Client,
		[]string{redisKey(orderID)},
		string(StatusCreated),
		string(next),
	).Text()
	if err != nil {
		return fmt.Errorf("redis update intent status: %w", err)
	}
	switch outcome {
	case "ok":
		return nil
	case "missing":
		return ErrNotFound
	case "terminal":
		return ErrInvalidTransition
	default:
		return fmt.Errorf("redis update intent status: unexpected outcome %q", outcome)
	}
}

// Ping probes the backing Redis connection for readiness checks.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.Client.Ping(ctx).Err()
}

func decodeIntent(fields map[string]string) (OrderIntent, error) {
	amount, err := strconv.ParseInt(fields["amount"], 10, 64)
	if err != nil {
		return OrderIntent{}, fmt.Errorf("decode intent amount: %w", err)
	}
	status, err := ParseStatus(fields["status"])
	if err != nil {
		return OrderIntent{}, fmt.Errorf("decode intent status: %w", err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, fields["created_at"])
	if err != nil {
		return OrderIntent{}, fmt.Errorf("decode intent created_at: %w", err)
	}
	return OrderIntent{
		OrderID:          fields["order_id"],
		AmountMinorUnits: amount,
		Currency:         fields["currency"],
		Status:           status,
		CreatedAt:        createdAt,
	}, nil
}
