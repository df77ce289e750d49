package quota

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/sttgateway/internal/config"
	"github.com/nikhilbhutani/sttgateway/internal/metrics"
	"github.com/nikhilbhutani/sttgateway/internal/models"
)

type fakeStore struct {
	used    float64
	tier    string
	usedErr error
	tierErr error
}

func (f *fakeStore) Used(context.Context, uuid.UUID, string, time.Time) (float64, error) {
	return f.used, f.usedErr
}

func (f *fakeStore) Tier(context.Context, uuid.UUID) (string, error) {
	return f.tier, f.tierErr
}

func newTestGuard(store Store) *Guard {
	return NewGuard(store, config.QuotaConfig{
		Ceilings:        map[string]float64{"free": 60, "paid": 600, "enterprise": Unlimited},
		DefaultTier:     "free",
		EstimateSeconds: 30,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)), metrics.NewMetrics(nil))
}

func TestGuard_Boundary(t *testing.T) {
	store := &fakeStore{used: 59, tier: "free"}
	g := newTestGuard(store)
	user, tenantID := uuid.New(), uuid.New()

	s := g.Check(context.Background(), user, tenantID, models.ServiceSTT, 1)
	if !s.Allowed || s.Tier != "free" || s.QuotaRemaining != 1 {
		t.Fatalf("used=59 estimate=1 ceiling=60: %+v", s)
	}

	store.used = 60
	s = g.Check(context.Background(), user, tenantID, models.ServiceSTT, 1)
	if s.Allowed {
		t.Fatalf("used=60 estimate=1 ceiling=60 should be denied: %+v", s)
	}
	if s.Reason == "" || s.QuotaRemaining != 0 {
		t.Fatalf("denied status = %+v", s)
	}
}

func TestGuard_DeniesStrictlyAboveCeiling(t *testing.T) {
	tests := []struct {
		used, estimate float64
		want           bool
	}{
		{0, 60, true},
		{0, 60.01, false},
		{59.5, 0.5, true},
		{59.6, 0.5, false},
		{75, 1, false},
	}
	for _, tt := range tests {
		g := newTestGuard(&fakeStore{used: tt.used, tier: "free"})
		s := g.Check(context.Background(), uuid.New(), uuid.New(), models.ServiceSTT, tt.estimate)
		if s.Allowed != tt.want {
			t.Errorf("used=%v estimate=%v: allowed=%v, want %v", tt.used, tt.estimate, s.Allowed, tt.want)
		}
	}
}

func TestGuard_Unlimited(t *testing.T) {
	g := newTestGuard(&fakeStore{used: 1e9, tier: "enterprise", usedErr: errors.New("must not be read")})
	s := g.Check(context.Background(), uuid.New(), uuid.New(), models.ServiceSTT, 1e6)
	if !s.Allowed || s.QuotaRemaining != Unlimited || s.Degraded {
		t.Fatalf("enterprise: %+v", s)
	}
}

func TestGuard_FailsOpen(t *testing.T) {
	down := errors.New("dial tcp: connection refused")

	s := newTestGuard(&fakeStore{tier: "free", usedErr: down}).Check(context.Background(), uuid.New(), uuid.New(), models.ServiceSTT, 1)
	if !s.Allowed || !s.Degraded || s.Tier != "free" {
		t.Fatalf("usage store down: %+v", s)
	}

	s = newTestGuard(&fakeStore{tierErr: down}).Check(context.Background(), uuid.New(), uuid.New(), models.ServiceSTT, 1)
	if !s.Allowed || !s.Degraded {
		t.Fatalf("tier store down: %+v", s)
	}
}

func TestGuard_DefaultEstimateAndUnknownTier(t *testing.T) {
	g := newTestGuard(&fakeStore{used: 59.6, tier: "legacy"})
	if g.DefaultEstimate() != 0.5 {
		t.Fatalf("default estimate = %v", g.DefaultEstimate())
	}
	// Unknown tiers fall back to free; 59.6 + 0.5 > 60.
	s := g.Check(context.Background(), uuid.New(), uuid.New(), models.ServiceSTT, 0)
	if s.Allowed || s.Tier != "free" {
		t.Fatalf("status = %+v", s)
	}
}
