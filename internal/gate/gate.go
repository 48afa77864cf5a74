package gate

import (
	"context"
	"strconv"
	"time"

	libredis "github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"emergency-service/internal/alerts"
	"emergency-service/internal/logging"
)

// CreationGate caps how often one originator may create alerts, independent of
// any request-level throttling. The counter lives in a shared store so the cap
// holds across process instances.
type CreationGate struct {
	limiter *limiter.Limiter
	logger  *logging.Logger
}

// New builds a gate allowing maxAlerts per window per originator over the
// given store.
func New(store limiter.Store, maxAlerts int, window time.Duration, logger *logging.Logger) *CreationGate {
	rate := limiter.Rate{Period: window, Limit: int64(maxAlerts)}
	return &CreationGate{
		limiter: limiter.New(store, rate),
		logger:  logger,
	}
}

// NewRedisStore builds the shared counter store over an existing redis client.
func NewRedisStore(client *libredis.Client) (limiter.Store, error) {
	return sredis.NewStoreWithOptions(client, limiter.StoreOptions{
		Prefix:   "emergency_gate",
		MaxRetry: 3,
	})
}

// NewMemoryStore is the single-process fallback when redis is not configured.
func NewMemoryStore() limiter.Store {
	return memory.NewStore()
}

// Allow admits or denies one alert creation. The gate fails open: an
// unreachable counter store must not block a plea for help, so store errors
// are logged and the alert is admitted.
func (g *CreationGate) Allow(ctx context.Context, originatorID int64) error {
	lctx, err := g.limiter.Get(ctx, "alert:"+strconv.FormatInt(originatorID, 10))
	if err != nil {
		g.logger.Errorf("Rate store unavailable, admitting alert from user %d: %v", originatorID, err)
		return nil
	}
	if lctx.Reached {
		g.logger.Warnf("User %d hit the alert creation cap", originatorID)
		return alerts.ErrRateLimited
	}
	return nil
}
