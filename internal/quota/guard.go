package quota

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/sttgateway/internal/config"
	"github.com/nikhilbhutani/sttgateway/internal/metrics"
)

// Unlimited is the ceiling sentinel for tiers without a quota.
const Unlimited = -1

// Status is the outcome of a quota check. QuotaRemaining is in audio minutes
// and is Unlimited for tiers without a ceiling.
type Status struct {
	Allowed        bool    `json:"allowed"`
	Tier           string  `json:"tier"`
	QuotaRemaining float64 `json:"quotaRemaining"`
	Reason         string  `json:"reason,omitempty"`
	Degraded       bool    `json:"-"` // the check could not reach the store and failed open
}

// Store reads period consumption and plan tiers.
type Store interface {
	Used(ctx context.Context, userID uuid.UUID, service string, period time.Time) (float64, error)
	Tier(ctx context.Context, tenantID uuid.UUID) (string, error)
}

type Guard struct {
	store       Store
	ceilings    map[string]float64
	defaultTier string
	estimate    float64
	logger      *slog.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

func NewGuard(store Store, cfg config.QuotaConfig, logger *slog.Logger, m *metrics.Metrics) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.DefaultMetrics
	}
	defaultTier := cfg.DefaultTier
	if defaultTier == "" {
		defaultTier = "free"
	}
	estimate := cfg.EstimateSeconds / 60
	if estimate <= 0 {
		estimate = 0.5
	}
	return &Guard{
		store:       store,
		ceilings:    cfg.Ceilings,
		defaultTier: defaultTier,
		estimate:    estimate,
		logger:      logger,
		metrics:     m,
		now:         time.Now,
	}
}

// DefaultEstimate is the units charged against the quota before the audio
// duration is known.
func (g *Guard) DefaultEstimate() float64 {
	return g.estimate
}

// Check decides whether userID may consume estimatedUnits more of service in
// the current month. A finite ceiling allows the request iff
// used+estimatedUnits <= ceiling. When the store cannot be read the check
// fails open and the status is marked Degraded.
func (g *Guard) Check(ctx context.Context, userID, tenantID uuid.UUID, service string, estimatedUnits float64) Status {
	if estimatedUnits <= 0 {
		estimatedUnits = g.estimate
	}

	tier, err := g.store.Tier(ctx, tenantID)
	if err != nil {
		g.logger.Warn("quota tier lookup failed, allowing request",
			"tenant_id", tenantID, "error", err)
		return g.record(Status{Allowed: true, Tier: g.defaultTier, QuotaRemaining: Unlimited, Degraded: true})
	}
	ceiling, ok := g.ceilings[tier]
	if !ok {
		g.logger.Warn("unknown plan tier, using default", "tier", tier, "default", g.defaultTier)
		tier = g.defaultTier
		ceiling = g.ceilings[tier]
	}

	if ceiling < 0 {
		return g.record(Status{Allowed: true, Tier: tier, QuotaRemaining: Unlimited})
	}

	used, err := g.store.Used(ctx, userID, service, g.now())
	if err != nil {
		g.logger.Warn("quota usage lookup failed, allowing request",
			"user_id", userID, "tier", tier, "error", err)
		return g.record(Status{Allowed: true, Tier: tier, QuotaRemaining: ceiling, Degraded: true})
	}

	remaining := ceiling - used
	if remaining < 0 {
		remaining = 0
	}
	if used+estimatedUnits <= ceiling {
		return g.record(Status{Allowed: true, Tier: tier, QuotaRemaining: remaining})
	}
	return g.record(Status{
		Allowed:        false,
		Tier:           tier,
		QuotaRemaining: remaining,
		Reason: fmt.Sprintf("monthly %s limit of %g minutes reached on the %s plan (%g used)",
			service, ceiling, tier, roundMinutes(used)),
	})
}

func (g *Guard) record(s Status) Status {
	decision := "allowed"
	switch {
	case s.Degraded:
		decision = "fail_open"
	case !s.Allowed:
		decision = "denied"
	}
	g.metrics.QuotaDecisions.WithLabelValues(s.Tier, decision).Inc()
	return s
}

func roundMinutes(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
