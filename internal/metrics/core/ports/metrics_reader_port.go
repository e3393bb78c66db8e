package ports

import (
	"context"
	"time"

	"logforge/internal/batch"
	"logforge/internal/metrics/core/domain"
	tenantdomain "logforge/internal/tenants/core/domain"
)

type MetricsReaderPort interface {
	QueryMetrics(ctx context.Context, f domain.MetricsFilter, page domain.PageRequest) (domain.MetricsPage, error)
}

// AggregationReaderPort groups normalized events with event time in
// [from, to) by tenant, UTC date and type. Groups come back in key order,
// strictly after the given key when it is non-nil.
type AggregationReaderPort interface {
	ReadAggregations(ctx context.Context, window batch.Window, after *domain.MetricKey, limit int) ([]domain.Aggregation, error)
}

type DailyMetricRepositoryPort interface {
	// FindInRange returns stored rows whose tenant and type are in the given
	// sets and whose date is within [minDate, maxDate]. Inside a transaction
	// the rows stay locked until it ends.
	FindInRange(ctx context.Context, tenantIDs, eventTypes []string, minDate, maxDate time.Time) ([]domain.DailyMetric, error)
	SaveAll(ctx context.Context, metrics []domain.DailyMetric) error
}

type TenantResolverPort interface {
	Resolve(ctx context.Context, tenantID string) (tenantdomain.Tenant, error)
}

type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}
