package postgres

import (
	"context"
	"fmt"

	"logforge/internal/platform/postgres"
	"logforge/internal/tenants/core/domain"
	"logforge/internal/tenants/core/ports"
)

type TenantRepository struct {
	db postgres.Session
}

func NewTenantRepository(db postgres.Session) *TenantRepository {
	return &TenantRepository{db: db}
}

var _ ports.TenantRepositoryPort = (*TenantRepository)(nil)

const selectTenantColumns = `
SELECT id, name, status, external_api_base_url, api_key, created_at, updated_at
FROM tenants`

func (r *TenantRepository) FindByStatus(ctx context.Context, status domain.Status) ([]domain.Tenant, error) {
	rows, err := r.db.QueryContext(ctx, selectTenantColumns+`
WHERE status = $1
ORDER BY id`, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []domain.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tenants, nil
}

func (r *TenantRepository) FindByID(ctx context.Context, id int64) (domain.Tenant, bool, error) {
	rows, err := r.db.QueryContext(ctx, selectTenantColumns+`
WHERE id = $1`, id)
	if err != nil {
		return domain.Tenant{}, false, err
	}
	defer rows.Close()

	if !rows.Next() {
		return domain.Tenant{}, false, rows.Err()
	}
	t, err := scanTenant(rows)
	if err != nil {
		return domain.Tenant{}, false, err
	}
	return t, true, rows.Err()
}

func scanTenant(rows postgres.RowScanner) (domain.Tenant, error) {
	var (
		t      domain.Tenant
		status string
	)
	if err := rows.Scan(&t.ID, &t.Name, &status, &t.ExternalAPIBaseURL, &t.APIKey, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return domain.Tenant{}, fmt.Errorf("scan tenant: %w", err)
	}
	t.Status = domain.Status(status)
	return t, nil
}
