package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/sttgateway/internal/tenant"
	"github.com/nikhilbhutani/sttgateway/internal/usage"
)

type UsageSummarizer interface {
	Summary(ctx context.Context, tenantID uuid.UUID, from, to *time.Time) ([]usage.Summary, error)
}

type UsageHandler struct {
	store UsageSummarizer
}

func NewUsageHandler(store UsageSummarizer) *UsageHandler {
	return &UsageHandler{store: store}
}

// Summary reports the caller's tenant usage per provider. start_date and
// end_date are optional RFC 3339 bounds.
func (h *UsageHandler) Summary(w http.ResponseWriter, r *http.Request) {
	p, ok := tenant.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var startDate, endDate *time.Time
	for _, q := range []struct {
		name string
		dst  **time.Time
	}{{"start_date", &startDate}, {"end_date", &endDate}} {
		s := r.URL.Query().Get(q.name)
		if s == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid "+q.name)
			return
		}
		*q.dst = &t
	}

	summary, err := h.store.Summary(r.Context(), p.TenantID, startDate, endDate)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load usage")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"usage": summary})
}
