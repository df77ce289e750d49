package queue

import "github.com/nikhilbhutani/sttgateway/internal/models"

const (
	TypeUsageRecord = "usage:record"
)

type UsageRecordPayload struct {
	Record models.UsageRecord `json:"record"`
}
