package postgres

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"logforge/internal/platform/postgres"
	"logforge/internal/platform/postgres/pgtest"
	"logforge/internal/tenants/core/domain"
)

func tenantRow(id int64, status string) []any {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return []any{id, "tenant", status, "http://logs.example", "key", now, now}
}

// ------------------------------------------------------------
// FIND BY STATUS
// ------------------------------------------------------------

func TestTenantRepository_FindByStatus(t *testing.T) {
	db := &pgtest.Session{
		QueryFn: func(ctx context.Context, query string, args ...any) (postgres.RowScanner, error) {
			if !strings.Contains(query, "FROM tenants") {
				t.Fatalf("unexpected query: %s", query)
			}
			if args[0] != "ACTIVE" {
				t.Fatalf("expected status arg ACTIVE, got %v", args[0])
			}
			return pgtest.NewRows(tenantRow(1, "ACTIVE"), tenantRow(2, "ACTIVE")), nil
		},
	}

	repo := NewTenantRepository(db)

	tenants, err := repo.FindByStatus(context.Background(), domain.StatusActive)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tenants) != 2 {
		t.Fatalf("expected 2 tenants, got %d", len(tenants))
	}
	if tenants[1].ID != 2 || tenants[1].Status != domain.StatusActive {
		t.Fatalf("unexpected tenant: %+v", tenants[1])
	}
}

// ------------------------------------------------------------
// FIND BY ID
// ------------------------------------------------------------

func TestTenantRepository_FindByID_NotFound(t *testing.T) {
	repo := NewTenantRepository(&pgtest.Session{})

	_, found, err := repo.FindByID(context.Background(), 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Fatalf("expected found=false")
	}
}

func TestTenantRepository_FindByID_Found(t *testing.T) {
	db := &pgtest.Session{
		QueryFn: func(ctx context.Context, query string, args ...any) (postgres.RowScanner, error) {
			return pgtest.NewRows(tenantRow(7, "INACTIVE")), nil
		},
	}

	tenant, found, err := NewTenantRepository(db).FindByID(context.Background(), 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !found || tenant.ID != 7 || tenant.Active() {
		t.Fatalf("unexpected result: found=%v tenant=%+v", found, tenant)
	}
}

func TestTenantRepository_QueryError(t *testing.T) {
	db := &pgtest.Session{
		QueryFn: func(ctx context.Context, query string, args ...any) (postgres.RowScanner, error) {
			return nil, errors.New("db error")
		},
	}

	if _, err := NewTenantRepository(db).FindByStatus(context.Background(), domain.StatusActive); err == nil {
		t.Fatalf("expected error, got nil")
	}
}
