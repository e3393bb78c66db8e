package ports

import (
	"context"

	"logforge/internal/batch"
	"logforge/internal/ingest/core/domain"
	tenantdomain "logforge/internal/tenants/core/domain"
)

type TenantDirectoryPort interface {
	ListActive(ctx context.Context) ([]tenantdomain.Tenant, error)
	Resolve(ctx context.Context, tenantID string) (tenantdomain.Tenant, error)
}

// LogSourcePort performs a single call against a tenant's external log
// endpoint. Retries, deadlines and concurrency limits are applied by the caller.
type LogSourcePort interface {
	Fetch(ctx context.Context, tenant tenantdomain.Tenant, window batch.Window) ([]domain.FetchedLog, error)
}

type RawLogRepositoryPort interface {
	InsertRawLogs(ctx context.Context, logs []domain.RawLog) error
}

type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}
