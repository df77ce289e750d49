package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/sttgateway/internal/cache"
)

// counterTTL keeps a monthly counter readable for a little while after the
// month ends.
const counterTTL = 40 * 24 * time.Hour

// TierSource resolves a tenant's plan tier from the system of record.
type TierSource interface {
	PlanTier(ctx context.Context, tenantID uuid.UUID) (string, error)
}

// RedisStore keeps per-user monthly counters in Redis and caches tenant
// tiers for a short time.
type RedisStore struct {
	cache   *cache.Cache
	tiers   TierSource
	tierTTL time.Duration
}

func NewRedisStore(c *cache.Cache, tiers TierSource, tierTTL time.Duration) *RedisStore {
	return &RedisStore{cache: c, tiers: tiers, tierTTL: tierTTL}
}

// CounterKey names the counter for one user, service and calendar month (UTC).
func CounterKey(service string, userID uuid.UUID, at time.Time) string {
	return fmt.Sprintf("quota:%s:%s:%s", service, userID, at.UTC().Format("2006-01"))
}

func (s *RedisStore) Used(ctx context.Context, userID uuid.UUID, service string, period time.Time) (float64, error) {
	return s.cache.GetFloat(ctx, CounterKey(service, userID, period))
}

// Add increments the counter for the month containing at.
func (s *RedisStore) Add(ctx context.Context, userID uuid.UUID, service string, at time.Time, units float64) (float64, error) {
	return s.cache.IncrByFloat(ctx, CounterKey(service, userID, at), units, counterTTL)
}

func (s *RedisStore) Tier(ctx context.Context, tenantID uuid.UUID) (string, error) {
	key := "quota:tier:" + tenantID.String()
	if s.tierTTL > 0 {
		var tier string
		if err := s.cache.Get(ctx, key, &tier); err == nil && tier != "" {
			return tier, nil
		} else if err != nil && !errors.Is(err, cache.ErrMiss) {
			return "", err
		}
	}

	tier, err := s.tiers.PlanTier(ctx, tenantID)
	if err != nil {
		return "", err
	}
	if s.tierTTL > 0 {
		_ = s.cache.Set(ctx, key, tier, s.tierTTL)
	}
	return tier, nil
}
