package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nikhilbhutani/sttgateway/internal/models"
)

// Counter is the quota counter a recorded unit is charged to.
type Counter interface {
	Add(ctx context.Context, userID uuid.UUID, service string, at time.Time, units float64) (float64, error)
}

// Store is the append-only usage log in Postgres.
type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Insert writes rec. It reports false when a record with the same id already
// exists, which happens when a queued write is retried.
func (s *Store) Insert(ctx context.Context, rec models.UsageRecord) (bool, error) {
	var id uuid.UUID
	err := s.db.QueryRow(ctx,
		`INSERT INTO stt_usage_logs (id, tenant_id, user_id, service, units, cost_estimate, provider, language, latency_ms, success, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (id) DO NOTHING
		 RETURNING id`,
		rec.ID, rec.TenantID, rec.UserID, rec.Service, rec.Units, rec.CostEstimate,
		rec.Provider, rec.Language, rec.LatencyMs, rec.Success, rec.Timestamp,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert usage log: %w", err)
	}
	return true, nil
}

type Summary struct {
	Provider     string  `json:"provider"`
	TotalCalls   int     `json:"total_calls"`
	FailedCalls  int     `json:"failed_calls"`
	TotalMinutes float64 `json:"total_minutes"`
	TotalCost    float64 `json:"total_cost_estimate"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
}

// Summary aggregates a tenant's usage per provider between from and to.
func (s *Store) Summary(ctx context.Context, tenantID uuid.UUID, from, to *time.Time) ([]Summary, error) {
	query := `SELECT provider, COUNT(*) AS total_calls,
			         COUNT(*) FILTER (WHERE NOT success) AS failed_calls,
			         COALESCE(SUM(units), 0) AS total_minutes,
			         COALESCE(SUM(cost_estimate), 0) AS total_cost,
			         COALESCE(AVG(latency_ms), 0) AS avg_latency_ms
			  FROM stt_usage_logs WHERE tenant_id = $1`
	args := []interface{}{tenantID}
	argIdx := 2

	if from != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *from)
		argIdx++
	}
	if to != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *to)
		argIdx++
	}
	query += " GROUP BY provider ORDER BY total_cost DESC"

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query usage summary: %w", err)
	}
	defer rows.Close()

	summaries := []Summary{}
	for rows.Next() {
		var us Summary
		if err := rows.Scan(&us.Provider, &us.TotalCalls, &us.FailedCalls, &us.TotalMinutes, &us.TotalCost, &us.AvgLatencyMs); err != nil {
			return nil, fmt.Errorf("scan usage summary: %w", err)
		}
		summaries = append(summaries, us)
	}
	return summaries, rows.Err()
}

// logWriter is the part of Store a StoreRecorder needs.
type logWriter interface {
	Insert(ctx context.Context, rec models.UsageRecord) (bool, error)
}

// StoreRecorder appends the record to the usage log and then charges its
// units to the quota counter. A duplicate record is not charged twice.
type StoreRecorder struct {
	log     logWriter
	counter Counter
}

func NewStoreRecorder(log logWriter, counter Counter) *StoreRecorder {
	return &StoreRecorder{log: log, counter: counter}
}

func (r *StoreRecorder) Record(ctx context.Context, rec models.UsageRecord) error {
	inserted, err := r.log.Insert(ctx, rec)
	if err != nil {
		return err
	}
	if !inserted || rec.Units <= 0 || r.counter == nil {
		return nil
	}
	if _, err := r.counter.Add(ctx, rec.UserID, rec.Service, rec.Timestamp, rec.Units); err != nil {
		return fmt.Errorf("charge quota counter: %w", err)
	}
	return nil
}
