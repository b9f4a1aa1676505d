package daraja

import (
	"context"
	"time"

	"github.com/dukamoja/pos-backend/pkg/logger"
	"github.com/dukamoja/pos-backend/pkg/redis"
)

// Idempotency scopes for gateway deliveries.
const (
	scopeStkCallback = "stk_callback"
	scopeC2BConfirm  = "c2b_confirm"
)

const guardTTL = 24 * time.Hour

// Guard is the fast-path dedup for gateway retries. It is an optimization
// only: the persisted transaction status stays the authoritative duplicate
// check, so the guard fails open when Redis is unreachable.
type Guard struct {
	store redis.IdempotencyStore
	logg  *logger.Logger
}

// NewGuard wires a delivery dedup guard. A nil store disables the fast path.
func NewGuard(store redis.IdempotencyStore, logg *logger.Logger) *Guard {
	return &Guard{store: store, logg: logg}
}

// Begin claims the delivery. It returns false when the same delivery was
// already claimed within the TTL.
func (g *Guard) Begin(ctx context.Context, scope, id string) bool {
	if g == nil || g.store == nil || id == "" {
		return true
	}
	key := g.store.IdempotencyKey(scope, id)
	ok, err := g.store.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), guardTTL)
	if err != nil {
		if g.logg != nil {
			g.logg.Warn(g.logg.WithField(ctx, "idempotency_key", key), "webhooks.guard_unavailable")
		}
		return true
	}
	return ok
}

// Release frees the claim so a failed delivery can be retried by the gateway.
func (g *Guard) Release(ctx context.Context, scope, id string) {
	if g == nil || g.store == nil || id == "" {
		return
	}
	key := g.store.IdempotencyKey(scope, id)
	if err := g.store.Del(ctx, key); err != nil && g.logg != nil {
		g.logg.Warn(g.logg.WithField(ctx, "idempotency_key", key), "webhooks.guard_release_failed")
	}
}
