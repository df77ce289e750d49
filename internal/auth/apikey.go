package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"log/slog"
	"net/http"
	"time"

	"github.com/nikhilbhutani/sttgateway/internal/tenant"
)

type APIKeyMiddleware struct {
	dir        Directory
	headerName string
}

func NewAPIKeyMiddleware(dir Directory, headerName string) *APIKeyMiddleware {
	return &APIKeyMiddleware{
		dir:        dir,
		headerName: headerName,
	}
}

// Authenticate attaches the key owner's principal when the API key header is
// present. Requests without the header fall through to the JWT middleware.
func (m *APIKeyMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(m.headerName)
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}

		hash := HashAPIKey(key)

		ak, err := m.dir.GetAPIKey(r.Context(), hash)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}

		if ak.ExpiresAt != nil && ak.ExpiresAt.Before(time.Now()) {
			writeError(w, http.StatusUnauthorized, "API key expired")
			return
		}

		if subtle.ConstantTimeCompare([]byte(ak.KeyHash), []byte(hash)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}

		// Usage is billed per user, so tenant-wide keys cannot transcribe.
		if ak.UserID == nil {
			writeError(w, http.StatusUnauthorized, "API key is not bound to a user")
			return
		}

		t, err := m.dir.GetByID(r.Context(), ak.TenantID)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "tenant not found")
			return
		}

		user, err := m.dir.GetUserByID(r.Context(), *ak.UserID)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "user not found")
			return
		}

		go func() {
			ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 5*time.Second)
			defer cancel()
			if err := m.dir.TouchAPIKey(ctx, ak.ID); err != nil {
				slog.Warn("failed to update api key last use", "key_id", ak.ID, "error", err)
			}
		}()

		ctx := tenant.WithTenant(r.Context(), t)
		ctx = tenant.WithUser(ctx, user)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func HashAPIKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}
