package app

import (
	"context"

	ingestpg "logforge/internal/ingest/adapters/postgres"
	ingestports "logforge/internal/ingest/core/ports"
	metricspg "logforge/internal/metrics/adapters/postgres"
	metricsports "logforge/internal/metrics/core/ports"
	normalizepg "logforge/internal/normalize/adapters/postgres"
	normalizeports "logforge/internal/normalize/core/ports"
	"logforge/internal/platform/memstore"
	"logforge/internal/platform/postgres"
	tenantpg "logforge/internal/tenants/adapters/postgres"
	tenantports "logforge/internal/tenants/core/ports"
)

// Store is every storage port the pipeline and the query API need, plus the
// transaction boundary they share.
type Store interface {
	tenantports.TenantRepositoryPort
	ingestports.RawLogRepositoryPort
	normalizeports.RawLogReaderPort
	normalizeports.NormalizedEventRepositoryPort
	normalizeports.FailedLogRepositoryPort
	metricsports.AggregationReaderPort
	metricsports.DailyMetricRepositoryPort
	metricsports.MetricsReaderPort
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type postgresStore struct {
	*postgres.DB
	*tenantpg.TenantRepository
	*ingestpg.RawLogRepository
	*normalizepg.Repository
	*metricspg.MetricsRepository
}

// NewPostgresStore binds all repositories to one connection pool so they
// join the same ctx-carried transactions.
func NewPostgresStore(db *postgres.DB) Store {
	return &postgresStore{
		DB:                db,
		TenantRepository:  tenantpg.NewTenantRepository(db),
		RawLogRepository:  ingestpg.NewRawLogRepository(db),
		Repository:        normalizepg.NewRepository(db),
		MetricsRepository: metricspg.NewMetricsRepository(db),
	}
}

var (
	_ Store = (*postgresStore)(nil)
	_ Store = (*memstore.Store)(nil)
)
