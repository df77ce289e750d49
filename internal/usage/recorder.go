package usage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/sttgateway/internal/metrics"
	"github.com/nikhilbhutani/sttgateway/internal/models"
)

// Recorder persists usage records.
type Recorder interface {
	Record(ctx context.Context, rec models.UsageRecord) error
}

// NewRecord builds a usage record priced from p. Failed attempts should pass
// zero units.
func (p *Prices) NewRecord(userID, tenantID uuid.UUID, service, provider, language string, units float64, chars int, latency time.Duration, success bool) models.UsageRecord {
	return models.UsageRecord{
		ID:           uuid.New(),
		UserID:       userID,
		TenantID:     tenantID,
		Service:      service,
		Units:        units,
		CostEstimate: p.Estimate(provider, units, chars),
		Provider:     provider,
		Language:     language,
		LatencyMs:    latency.Milliseconds(),
		Success:      success,
		Timestamp:    time.Now().UTC(),
	}
}

// Dispatcher writes records off the request path. Errors are logged and
// counted, never returned.
type Dispatcher struct {
	recorder Recorder
	name     string
	timeout  time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
	wg       sync.WaitGroup
}

func NewDispatcher(recorder Recorder, name string, timeout time.Duration, logger *slog.Logger, m *metrics.Metrics) *Dispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.DefaultMetrics
	}
	return &Dispatcher{recorder: recorder, name: name, timeout: timeout, logger: logger, metrics: m}
}

// Dispatch records rec in the background. The write outlives the request
// context but not the dispatcher timeout.
func (d *Dispatcher) Dispatch(ctx context.Context, rec models.UsageRecord) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()

		if err := d.safeRecord(ctx, rec); err != nil {
			d.metrics.UsageRecordFailures.WithLabelValues(d.name).Inc()
			d.logger.Error("failed to record usage",
				"recorder", d.name,
				"usage_id", rec.ID,
				"tenant_id", rec.TenantID,
				"provider", rec.Provider,
				"units", rec.Units,
				"error", err,
			)
		}
	}()
}

// Wait blocks until every dispatched write has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) safeRecord(ctx context.Context, rec models.UsageRecord) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("recorder panic: %v", r)
		}
	}()
	return d.recorder.Record(ctx, rec)
}
