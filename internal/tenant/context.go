package tenant

import (
	"context"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/sttgateway/internal/models"
)

type contextKey string

const (
	tenantKey contextKey = "tenant"
	userKey   contextKey = "user"
)

// Principal is the authenticated caller a transcription is billed to.
type Principal struct {
	UserID   uuid.UUID
	TenantID uuid.UUID
}

func WithTenant(ctx context.Context, t *models.Tenant) context.Context {
	return context.WithValue(ctx, tenantKey, t)
}

func FromContext(ctx context.Context) *models.Tenant {
	t, _ := ctx.Value(tenantKey).(*models.Tenant)
	return t
}

func WithUser(ctx context.Context, u *models.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

func UserFromContext(ctx context.Context) *models.User {
	u, _ := ctx.Value(userKey).(*models.User)
	return u
}

// PrincipalFromContext reports the caller only when both a tenant and a user
// were attached by the auth middleware.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	t := FromContext(ctx)
	u := UserFromContext(ctx)
	if t == nil || u == nil {
		return Principal{}, false
	}
	return Principal{UserID: u.ID, TenantID: t.ID}, true
}
