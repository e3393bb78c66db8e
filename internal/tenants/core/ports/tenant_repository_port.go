package ports

import (
	"context"

	"logforge/internal/tenants/core/domain"
)

type TenantRepositoryPort interface {
	FindByStatus(ctx context.Context, status domain.Status) ([]domain.Tenant, error)
	// FindByID returns found = false, err = nil when no row exists.
	FindByID(ctx context.Context, id int64) (t domain.Tenant, found bool, err error)
}
