package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"logforge/internal/tenants/core/domain"
	"logforge/internal/tenants/core/ports"
)

var (
	ErrInvalidTenantID = errors.New("invalid tenant identifier")
	ErrTenantNotFound  = errors.New("tenant not found")
	ErrTenantInactive  = errors.New("tenant is inactive")
)

// Directory resolves tenant identifiers to connection metadata. It is read
// only; tenants are administered elsewhere.
type Directory struct {
	repo ports.TenantRepositoryPort
}

func NewDirectory(repo ports.TenantRepositoryPort) *Directory {
	return &Directory{repo: repo}
}

// ListActive returns active tenants ordered by ascending ID so partitioning is
// deterministic across runs.
func (d *Directory) ListActive(ctx context.Context) ([]domain.Tenant, error) {
	tenants, err := d.repo.FindByStatus(ctx, domain.StatusActive)
	if err != nil {
		return nil, fmt.Errorf("list active tenants: %w", err)
	}

	sort.SliceStable(tenants, func(i, j int) bool {
		return tenants[i].ID < tenants[j].ID
	})
	return tenants, nil
}

// Resolve parses tenantID as the numeric primary key and returns the tenant
// only when it exists and is active.
func (d *Directory) Resolve(ctx context.Context, tenantID string) (domain.Tenant, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(tenantID), 10, 64)
	if err != nil || id <= 0 {
		return domain.Tenant{}, fmt.Errorf("%w: %q", ErrInvalidTenantID, tenantID)
	}

	t, found, err := d.repo.FindByID(ctx, id)
	if err != nil {
		return domain.Tenant{}, fmt.Errorf("resolve tenant %s: %w", tenantID, err)
	}
	if !found {
		return domain.Tenant{}, fmt.Errorf("%w: %s", ErrTenantNotFound, tenantID)
	}
	if !t.Active() {
		return domain.Tenant{}, fmt.Errorf("%w: %s", ErrTenantInactive, tenantID)
	}
	return t, nil
}
