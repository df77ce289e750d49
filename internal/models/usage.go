package models

import (
	"time"

	"github.com/google/uuid"
)

const ServiceSTT = "stt"

// UsageRecord is one billable transcription attempt. Records are written once
// and never updated.
type UsageRecord struct {
	ID           uuid.UUID `json:"id" db:"id"`
	UserID       uuid.UUID `json:"user_id" db:"user_id"`
	TenantID     uuid.UUID `json:"tenant_id" db:"tenant_id"`
	Service      string    `json:"service" db:"service"`
	Units        float64   `json:"units" db:"units"` // audio minutes
	CostEstimate float64   `json:"cost_estimate" db:"cost_estimate"`
	Provider     string    `json:"provider" db:"provider"`
	Language     string    `json:"language" db:"language"`
	LatencyMs    int64     `json:"latency_ms" db:"latency_ms"`
	Success      bool      `json:"success" db:"success"`
	Timestamp    time.Time `json:"timestamp" db:"created_at"`
}
