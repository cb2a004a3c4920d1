package verifier

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/rakhadjo/payverify/internal/common"
)

// ReplayGuard short-circuits byte-identical verification payloads at the
// transport boundary using a Redis SetNX tombstone. The store's state guard
// remains authoritative; this only sheds repeated traffic before it reaches
// the core.
type ReplayGuard struct {
	Client *redis.Client
	TTL    time.Duration
}

// Seen registers the payload and reports whether it was already submitted.
func (g *ReplayGuard) Seen(ctx context.Context, body []byte) (bool, error) {
	if g == nil || g.Client == nil || g.TTL <= 0 {
		return false, nil
	}
	key := "verify:" + common.Sha256Hex(body)
	fresh, err := g.Client.SetNX(ctx, key, "1", g.TTL).Result()
	if err != nil {
		return false, err
	}
	return !fresh, nil
}
