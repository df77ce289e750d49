package usage

import (
	"context"

	"github.com/nikhilbhutani/sttgateway/internal/models"
)

// Enqueuer hands a record to the background worker.
type Enqueuer interface {
	EnqueueUsageRecord(ctx context.Context, rec models.UsageRecord) error
}

// QueueRecorder defers the write to cmd/worker, which retries with backoff
// until the database accepts it.
type QueueRecorder struct {
	queue Enqueuer
}

func NewQueueRecorder(q Enqueuer) *QueueRecorder {
	return &QueueRecorder{queue: q}
}

func (r *QueueRecorder) Record(ctx context.Context, rec models.UsageRecord) error {
	return r.queue.EnqueueUsageRecord(ctx, rec)
}
