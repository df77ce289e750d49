package tenant

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nikhilbhutani/sttgateway/internal/models"
)

type Service struct {
	db *pgxpool.Pool
}

func NewService(db *pgxpool.Pool) *Service {
	return &Service{db: db}
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	var t models.Tenant
	err := s.db.QueryRow(ctx,
		"SELECT id, name, slug, plan_tier, settings, created_at, updated_at FROM tenants WHERE id = $1", id,
	).Scan(&t.ID, &t.Name, &t.Slug, &t.PlanTier, &t.Settings, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	return &t, nil
}

func (s *Service) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	err := s.db.QueryRow(ctx,
		"SELECT id, tenant_id, email, full_name, created_at FROM users WHERE id = $1", id,
	).Scan(&u.ID, &u.TenantID, &u.Email, &u.FullName, &u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// GetAPIKey looks up an API key by the hex sha256 of its plaintext.
func (s *Service) GetAPIKey(ctx context.Context, keyHash string) (*models.APIKey, error) {
	var ak models.APIKey
	err := s.db.QueryRow(ctx,
		`SELECT id, tenant_id, user_id, key_hash, name, expires_at, created_at
		 FROM api_keys WHERE key_hash = $1`, keyHash,
	).Scan(&ak.ID, &ak.TenantID, &ak.UserID, &ak.KeyHash, &ak.Name, &ak.ExpiresAt, &ak.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get api key: %w", err)
	}
	return &ak, nil
}

// TouchAPIKey records the last time a key was used.
func (s *Service) TouchAPIKey(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.Exec(ctx, "UPDATE api_keys SET last_used_at = now() WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("touch api key: %w", err)
	}
	return nil
}

// PlanTier returns the subscription tier of a tenant.
func (s *Service) PlanTier(ctx context.Context, tenantID uuid.UUID) (string, error) {
	var tier string
	err := s.db.QueryRow(ctx, "SELECT plan_tier FROM tenants WHERE id = $1", tenantID).Scan(&tier)
	if err != nil {
		return "", fmt.Errorf("get plan tier: %w", err)
	}
	return tier, nil
}
