package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/sttgateway/internal/queue"
	"github.com/nikhilbhutani/sttgateway/internal/usage"
)

// UsageWorker persists queued usage records.
type UsageWorker struct {
	recorder usage.Recorder
}

func NewUsageWorker(recorder usage.Recorder) *UsageWorker {
	return &UsageWorker{recorder: recorder}
}

func (w *UsageWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.UsageRecordPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		// A payload that cannot be decoded will never succeed.
		return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}
	rec := payload.Record

	if err := w.recorder.Record(ctx, rec); err != nil {
		return fmt.Errorf("record usage %s: %w", rec.ID, err)
	}

	slog.Info("usage recorded",
		"usage_id", rec.ID,
		"tenant_id", rec.TenantID,
		"provider", rec.Provider,
		"units", rec.Units,
	)
	return nil
}
